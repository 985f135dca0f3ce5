// Copyright 2026 The Sandtrap Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package arch

import (
	"sandtrap.dev/sandtrap/pkg/abi/linux"
)

// SignalContext64 is equivalent to struct sigcontext, the type passed as the
// third argument to signal handlers installed with SA_SIGINFO
// (arch/x86/include/uapi/asm/sigcontext.h).
type SignalContext64 struct {
	R8      uint64
	R9      uint64
	R10     uint64
	R11     uint64
	R12     uint64
	R13     uint64
	R14     uint64
	R15     uint64
	Rdi     uint64
	Rsi     uint64
	Rbp     uint64
	Rbx     uint64
	Rdx     uint64
	Rax     uint64
	Rcx     uint64
	Rsp     uint64
	Rip     uint64
	Eflags  uint64
	Cs      uint16
	Gs      uint16
	Fs      uint16
	Ss      uint16
	Err     uint64
	Trapno  uint64
	Oldmask linux.SignalSet
	Cr2     uint64

	// Pointer to a struct _fpstate.
	Fpstate  uint64
	Reserved [8]uint64
}

// PC returns the interrupted instruction pointer.
//
//go:nosplit
func (c *SignalContext64) PC() uintptr {
	return uintptr(c.Rip)
}

// SetPC rewrites the instruction pointer so that the interrupted thread
// resumes at addr when the handler returns. This is the fault path's only
// permitted context mutation.
//
//go:nosplit
func (c *SignalContext64) SetPC(addr uintptr) {
	c.Rip = uint64(addr)
}

// UContext64 is equivalent to ucontext_t on amd64
// (arch/x86/include/uapi/asm/ucontext.h).
type UContext64 struct {
	Flags    uint64
	Link     uint64
	Stack    linux.SignalStack
	MContext SignalContext64
	Sigset   linux.SignalSet
}
