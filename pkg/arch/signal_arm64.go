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

type aarch64Ctx struct {
	Magic uint32
	Size  uint32
}

// FpsimdContext is equivalent to struct fpsimd_context
// (arch/arm64/include/uapi/asm/sigcontext.h).
type FpsimdContext struct {
	Head  aarch64Ctx
	Fpsr  uint32
	Fpcr  uint32
	Vregs [64]uint64 // actually [32]uint128
}

// SignalContext64 is equivalent to struct sigcontext on arm64
// (arch/arm64/include/uapi/asm/sigcontext.h).
type SignalContext64 struct {
	FaultAddr uint64
	Regs      [31]uint64
	Sp        uint64
	Pc        uint64
	Pstate    uint64
	_pad      [8]byte       // __attribute__((__aligned__(16)))
	Fpsimd64  FpsimdContext // size = 528
	Reserved  [3568]uint8
}

// PC returns the interrupted instruction pointer.
//
//go:nosplit
func (c *SignalContext64) PC() uintptr {
	return uintptr(c.Pc)
}

// SetPC rewrites the instruction pointer so that the interrupted thread
// resumes at addr when the handler returns. This is the fault path's only
// permitted context mutation.
//
//go:nosplit
func (c *SignalContext64) SetPC(addr uintptr) {
	c.Pc = uint64(addr)
}

// UContext64 is equivalent to ucontext on arm64
// (arch/arm64/include/uapi/asm/ucontext.h).
type UContext64 struct {
	Flags  uint64
	Link   uint64
	Stack  linux.SignalStack
	Sigset linux.SignalSet
	// glibc uses a 1024-bit sigset_t.
	_pad [(1024 - 64) / 8]byte
	// sigcontext must be aligned to 16-byte.
	_pad2 [8]byte
	// last for future expansion.
	MContext SignalContext64
}
