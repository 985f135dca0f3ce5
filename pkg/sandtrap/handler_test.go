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

package sandtrap

import (
	"fmt"
	"runtime"
	"testing"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"sandtrap.dev/sandtrap/pkg/abi/linux"
	"sandtrap.dev/sandtrap/pkg/arch"
	"sandtrap.dev/sandtrap/pkg/sighandling"
)

func segvInfo(code int32, addr uint64) *linux.SignalInfo {
	info := &linux.SignalInfo{Signo: int32(linux.SIGSEGV), Code: code}
	info.SetAddr(addr)
	return info
}

func faultContext(pc uintptr) *arch.UContext64 {
	var uc arch.UContext64
	uc.MContext.SetPC(pc)
	return &uc
}

// testRegistry returns a registry holding [0x1000, 0x2000) with one
// protected instruction at offset 0x10 landing at offset 0x20.
func testRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	if _, err := r.Register(0x1000, 0x1000, []ProtectedInstruction{{FaultOffset: 0x10, RecoveryOffset: 0x20}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func TestHandlerRedirectsProtectedFault(t *testing.T) {
	r := testRegistry(t)
	tc := newTestThread(t)
	uc := faultContext(0x1010)

	before := Stats()
	tc.SetInSandbox(true)
	if !tryHandleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0xdead0000), uc) {
		t.Fatalf("tryHandleFault = false, want true")
	}
	if got := uc.MContext.PC(); got != 0x1020 {
		t.Errorf("PC after redirect = %#x, want 0x1020", got)
	}
	// The flag stays clear on recovery; re-entering sandboxed code is the
	// landing pad's responsibility.
	if tc.IsInSandbox() {
		t.Errorf("thread still flagged in-sandbox after redirect")
	}
	if got := Stats().Recovered - before.Recovered; got != 1 {
		t.Errorf("recovered count delta = %d, want 1", got)
	}
}

func TestHandlerUnprotectedOffset(t *testing.T) {
	r := testRegistry(t)
	tc := newTestThread(t)
	uc := faultContext(0x1050)

	tc.SetInSandbox(true)
	if tryHandleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0xdead0000), uc) {
		t.Fatalf("tryHandleFault = true for unprotected offset, want false")
	}
	if got := uc.MContext.PC(); got != 0x1050 {
		t.Errorf("PC = %#x after unhandled fault, want unchanged 0x1050", got)
	}
	// No redirect happened, so the thread is still logically in sandbox.
	if !tc.IsInSandbox() {
		t.Errorf("in-sandbox flag not restored after unhandled fault")
	}
}

func TestHandlerIgnoresThreadOutsideSandbox(t *testing.T) {
	r := testRegistry(t)
	tc := newTestThread(t)
	uc := faultContext(0x1010)

	// Flag clear: never ours, regardless of address. Holding the metadata
	// lock across the call proves the handler does not touch it on this
	// path: it would deadlock here otherwise.
	r.mu.Lock()
	handled := tryHandleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0xdead0000), uc)
	r.mu.Unlock()
	if handled {
		t.Fatalf("tryHandleFault = true for thread outside sandbox, want false")
	}
	if tc.IsInSandbox() {
		t.Errorf("flag flipped by a fault that was not ours")
	}
	if got := uc.MContext.PC(); got != 0x1010 {
		t.Errorf("PC = %#x, want unchanged 0x1010", got)
	}
}

func TestHandlerIgnoresUnregisteredThread(t *testing.T) {
	r := testRegistry(t)
	uc := faultContext(0x1010)
	if tryHandleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0xdead0000), uc) {
		t.Fatalf("tryHandleFault = true on a thread with no execution context, want false")
	}
}

func TestHandlerRejectsWrongKind(t *testing.T) {
	r := testRegistry(t)
	tc := newTestThread(t)
	tc.SetInSandbox(true)
	defer tc.SetInSandbox(false)

	// Wrong signal.
	if tryHandleFault(r, linux.SIGBUS, segvInfo(linux.SEGV_MAPERR, 0), faultContext(0x1010)) {
		t.Errorf("tryHandleFault accepted SIGBUS")
	}
	// Right signal, raised from userspace.
	for _, code := range []int32{linux.SI_USER, linux.SI_QUEUE, linux.SI_TIMER, linux.SI_ASYNCIO, linux.SI_MESGQ, linux.SI_TKILL} {
		if tryHandleFault(r, linux.SIGSEGV, segvInfo(code, 0), faultContext(0x1010)) {
			t.Errorf("tryHandleFault accepted userspace-raised signal with code %d", code)
		}
	}
}

func TestHandlerRestoresSignalMask(t *testing.T) {
	r := testRegistry(t)
	tc := newTestThread(t)

	before, errno := sighandling.SignalMask()
	if errno != 0 {
		t.Fatalf("SignalMask: errno %d", errno)
	}
	for _, pc := range []uintptr{0x1010, 0x1050} { // one hit, one miss
		tc.SetInSandbox(true)
		tryHandleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0), faultContext(pc))
		tc.SetInSandbox(false)
		after, errno := sighandling.SignalMask()
		if errno != 0 {
			t.Fatalf("SignalMask: errno %d", errno)
		}
		if after != before {
			t.Errorf("signal mask after fault at %#x = %#x, want %#x", pc, after, before)
		}
	}
}

// stubDispositions replaces the disposition-restore and re-delivery seams
// with counters, since the real paths terminate the process.
func stubDispositions(t *testing.T) (restored, redelivered *[]linux.Signal) {
	t.Helper()
	var res, red []linux.Signal
	restoreDefaultDisposition = func(sig linux.Signal) unix.Errno {
		res = append(res, sig)
		return 0
	}
	redeliverFault = func(sig linux.Signal) unix.Errno {
		red = append(red, sig)
		return 0
	}
	t.Cleanup(func() {
		restoreDefaultDisposition = sighandling.RestoreDefault
		redeliverFault = sighandling.RaiseToCurrentThread
	})
	return &res, &red
}

func TestUnhandledKernelFaultIsRedelivered(t *testing.T) {
	restored, redelivered := stubDispositions(t)
	r := testRegistry(t)
	tc := newTestThread(t)

	before := Stats()
	tc.SetInSandbox(true)
	handleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0xdead0000), faultContext(0x1050))
	tc.SetInSandbox(false)

	if got := len(*restored); got != 1 || (*restored)[0] != linux.SIGSEGV {
		t.Errorf("default disposition restored %d times (%v), want exactly once for SIGSEGV", got, *restored)
	}
	if got := len(*redelivered); got != 1 || (*redelivered)[0] != linux.SIGSEGV {
		t.Errorf("fault re-delivered %d times (%v), want exactly once for SIGSEGV", got, *redelivered)
	}
	if got := Stats().Unrecovered - before.Unrecovered; got != 1 {
		t.Errorf("unrecovered count delta = %d, want 1", got)
	}
}

func TestUnhandledUserFaultIsNotRedelivered(t *testing.T) {
	restored, redelivered := stubDispositions(t)
	r := testRegistry(t)

	handleFault(r, linux.SIGSEGV, segvInfo(linux.SI_USER, 0), faultContext(0x1010))

	if got := len(*restored); got != 1 {
		t.Errorf("default disposition restored %d times, want 1", got)
	}
	if got := len(*redelivered); got != 0 {
		t.Errorf("userspace-raised signal re-delivered %d times, want 0", got)
	}
}

func TestHandledFaultLeavesDispositionAlone(t *testing.T) {
	restored, redelivered := stubDispositions(t)
	r := testRegistry(t)
	tc := newTestThread(t)

	tc.SetInSandbox(true)
	handleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0), faultContext(0x1010))

	if len(*restored) != 0 || len(*redelivered) != 0 {
		t.Errorf("recoverable fault touched disposition (restored=%v, redelivered=%v)", *restored, *redelivered)
	}
}

// TestConcurrentFaults has N threads fault simultaneously inside N disjoint
// ranges; each must resolve to its own landing pad.
func TestConcurrentFaults(t *testing.T) {
	const numThreads = 8
	r := NewRegistry()
	for i := 0; i < numThreads; i++ {
		base := uintptr(0x100000 * (i + 1))
		instr := []ProtectedInstruction{{FaultOffset: 0x10, RecoveryOffset: uintptr(0x20 + i)}}
		if _, err := r.Register(base, 0x1000, instr); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}

	var g errgroup.Group
	for i := 0; i < numThreads; i++ {
		i := i
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()
			tc, err := RegisterThread()
			if err != nil {
				return err
			}
			defer UnregisterThread(tc)
			defer tc.SetInSandbox(false)

			base := uintptr(0x100000 * (i + 1))
			want := base + uintptr(0x20+i)
			for iter := 0; iter < 100; iter++ {
				uc := faultContext(base + 0x10)
				tc.SetInSandbox(true)
				if !tryHandleFault(r, linux.SIGSEGV, segvInfo(linux.SEGV_MAPERR, 0), uc) {
					return fmt.Errorf("thread %d: fault at %#x not handled", i, base+0x10)
				}
				if got := uc.MContext.PC(); got != want {
					return fmt.Errorf("thread %d: PC = %#x, want %#x", i, got, want)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
}
