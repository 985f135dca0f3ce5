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

//go:build linux
// +build linux

// Package sighandling provides raw signal management, bypassing the Go
// runtime's signal handling. It is used for low-level fault handlers where
// signal.Notify is not appropriate.
//
// The errno-returning functions perform a single raw system call and are
// safe to call from fault-handler context.
package sighandling

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
	"sandtrap.dev/sandtrap/pkg/abi/linux"
)

// ReplaceSignalHandler replaces the existing signal handler for the provided
// signal with the function pointer at `handler`. This bypasses the Go runtime
// signal handlers, and should only be used for low-level signal handlers where
// use of signal.Notify is not appropriate.
//
// It stores the value of the previously set handler in previous.
func ReplaceSignalHandler(sig linux.Signal, handler uintptr, previous *uintptr) error {
	var sa linux.SigAction

	// Get the existing signal handler information, and save the current
	// handler. Once we replace it, we will use this pointer to fall back to
	// it when we receive other signals.
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&sa)), linux.SignalSetSize, 0, 0); e != 0 {
		return e
	}

	// Fail if there isn't a previous handler.
	if sa.Handler == 0 {
		return fmt.Errorf("previous handler for signal %x isn't set", sig)
	}

	*previous = uintptr(sa.Handler)

	// Install our own handler.
	sa.Handler = uint64(handler)
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&sa)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		return e
	}

	return nil
}

// RestoreDefault resets the disposition of sig to SIG_DFL.
//
//go:nosplit
func RestoreDefault(sig linux.Signal) unix.Errno {
	sa := linux.SigAction{Handler: linux.SIG_DFL}
	_, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&sa)), 0, linux.SignalSetSize, 0, 0)
	return e
}

// UnblockSignals removes set from the calling thread's signal mask and
// returns the previous mask.
//
//go:nosplit
func UnblockSignals(set linux.SignalSet) (linux.SignalSet, unix.Errno) {
	var old linux.SignalSet
	_, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_UNBLOCK, uintptr(unsafe.Pointer(&set)), uintptr(unsafe.Pointer(&old)), linux.SignalSetSize, 0, 0)
	return old, e
}

// SetSignalMask replaces the calling thread's signal mask with set.
//
//go:nosplit
func SetSignalMask(set linux.SignalSet) unix.Errno {
	_, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_SETMASK, uintptr(unsafe.Pointer(&set)), 0, linux.SignalSetSize, 0, 0)
	return e
}

// SignalMask returns the calling thread's current signal mask.
//
//go:nosplit
func SignalMask() (linux.SignalSet, unix.Errno) {
	var old linux.SignalSet
	_, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_BLOCK, 0, uintptr(unsafe.Pointer(&old)), linux.SignalSetSize, 0, 0)
	return old, e
}

// RaiseToCurrentThread directs sig at the calling thread, with raise(3)
// semantics, via tgkill(2).
//
//go:nosplit
func RaiseToCurrentThread(sig linux.Signal) unix.Errno {
	pid, _, _ := unix.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	_, _, e := unix.RawSyscall(unix.SYS_TGKILL, pid, tid, uintptr(sig))
	return e
}
