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

// Package linux contains the Linux signal ABI types and constants needed to
// classify and re-deliver hardware faults. Layouts match the kernel's
// uapi/asm-generic definitions, not glibc's.
package linux

import (
	"sandtrap.dev/sandtrap/pkg/bits"
)

const (
	// SignalMaximum is the highest valid signal number.
	SignalMaximum = 64

	// FirstStdSignal is the lowest standard signal number.
	FirstStdSignal = 1

	// LastStdSignal is the highest standard signal number.
	LastStdSignal = 31
)

// Signal is a signal number.
type Signal int

// IsValid returns true if s is a valid standard or realtime signal. (0 is not
// considered valid; interfaces special-casing signal number 0 should check for
// 0 first before asserting validity.)
func (s Signal) IsValid() bool {
	return s > 0 && s <= SignalMaximum
}

// Index returns the index for signal s into arrays of both standard and
// realtime signals (e.g. signal masks).
//
// Preconditions: s.IsValid().
func (s Signal) Index() int {
	return int(s - 1)
}

// Signals.
const (
	SIGABRT = Signal(6)
	SIGBUS  = Signal(7)
	SIGFPE  = Signal(8)
	SIGILL  = Signal(4)
	SIGKILL = Signal(9)
	SIGSEGV = Signal(11)
	SIGSTOP = Signal(19)
	SIGSYS  = Signal(31)
	SIGTRAP = Signal(5)
)

// SignalSet is a signal mask with a bit corresponding to each signal.
type SignalSet uint64

// SignalSetSize is the size in bytes of a SignalSet.
const SignalSetSize = 8

// MakeSignalSet returns SignalSet with the bit corresponding to each of the
// given signals set.
func MakeSignalSet(sigs ...Signal) SignalSet {
	indices := make([]int, len(sigs))
	for i, sig := range sigs {
		indices[i] = sig.Index()
	}
	return SignalSet(bits.Mask64(indices...))
}

// SignalSetOf returns a SignalSet with a single signal set.
func SignalSetOf(sig Signal) SignalSet {
	return SignalSet(bits.MaskOf64(sig.Index()))
}

// 'how' values for rt_sigprocmask(2).
const (
	// SIG_BLOCK blocks the signals in the set.
	SIG_BLOCK = 0

	// SIG_UNBLOCK unblocks the signals in the set.
	SIG_UNBLOCK = 1

	// SIG_SETMASK sets the signal mask to set.
	SIG_SETMASK = 2
)

// Signal actions for rt_sigaction(2), from uapi/asm-generic/signal-defs.h.
const (
	// SIG_DFL performs the default action.
	SIG_DFL = 0

	// SIG_IGN ignores the signal.
	SIG_IGN = 1
)

// Signal action flags for rt_sigaction(2), from uapi/asm-generic/signal.h.
const (
	SA_NOCLDSTOP = 0x00000001
	SA_NOCLDWAIT = 0x00000002
	SA_SIGINFO   = 0x00000004
	SA_RESTORER  = 0x04000000
	SA_ONSTACK   = 0x08000000
	SA_RESTART   = 0x10000000
	SA_NODEFER   = 0x40000000
	SA_RESETHAND = 0x80000000
)

// Generic si_code values, from uapi/asm-generic/siginfo.h. Positive codes are
// kernel-generated; codes at or below zero identify the userspace mechanism
// that raised the signal.
const (
	// SI_USER: sent by kill, sigsend, raise.
	SI_USER = 0

	// SI_KERNEL: sent by the kernel from somewhere.
	SI_KERNEL = 0x80

	// SI_QUEUE: sent by sigqueue.
	SI_QUEUE = -1

	// SI_TIMER: sent by timer expiration.
	SI_TIMER = -2

	// SI_MESGQ: sent by real time mesq state change.
	SI_MESGQ = -3

	// SI_ASYNCIO: sent by AIO completion.
	SI_ASYNCIO = -4

	// SI_SIGIO: sent by queued SIGIO.
	SI_SIGIO = -5

	// SI_TKILL: sent by tkill system call.
	SI_TKILL = -6
)

// SIGSEGV si_code values, from uapi/asm-generic/siginfo.h.
const (
	// SEGV_MAPERR: address not mapped to object.
	SEGV_MAPERR = 1

	// SEGV_ACCERR: invalid permissions for mapped object.
	SEGV_ACCERR = 2
)

// SigAction represents struct sigaction as passed to rt_sigaction(2).
type SigAction struct {
	Handler  uint64
	Flags    uint64
	Restorer uint64
	Mask     SignalSet
}

// SignalStack represents information about a signal stack, and is equivalent
// to stack_t.
type SignalStack struct {
	Addr  uint64
	Flags uint32
	_     uint32
	Size  uint64
}
