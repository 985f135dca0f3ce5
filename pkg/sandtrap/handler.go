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
	"sandtrap.dev/sandtrap/pkg/abi/linux"
	"sandtrap.dev/sandtrap/pkg/arch"
	"sandtrap.dev/sandtrap/pkg/sighandling"
)

// segvSet is the mask manipulated inside the handler, computed up front so
// the fault path performs nothing but the two sigprocmask calls.
var segvSet = linux.SignalSetOf(linux.SIGSEGV)

// Seams for the disposition restore and re-delivery syscalls, overridden by
// tests; the real implementations terminate the process.
var (
	restoreDefaultDisposition = sighandling.RestoreDefault
	redeliverFault            = sighandling.RaiseToCurrentThread
)

// TryHandleFault decides whether the fault described by (signo, info, uc) is
// a recoverable sandboxed out-of-bounds access. If it is, the interrupted
// context's instruction pointer is rewritten to the landing pad and
// TryHandleFault returns true; the caller returns from the signal handler
// and execution resumes there. Otherwise the context is untouched and
// TryHandleFault returns false.
//
// Runs in fault-handler context: see the package doc for the rules.
func TryHandleFault(signo linux.Signal, info *linux.SignalInfo, uc *arch.UContext64) bool {
	return tryHandleFault(processRegistry, signo, info, uc)
}

func tryHandleFault(r *Registry, signo linux.Signal, info *linux.SignalInfo, uc *arch.UContext64) bool {
	// Bail out early in case we got called for the wrong kind of signal.
	if signo != linux.SIGSEGV {
		return false
	}

	// Make sure the fault was generated by the kernel and not some other
	// source.
	if !isKernelGeneratedSignal(info) {
		return false
	}

	// Ensure the faulting thread was actually running sandboxed code.
	tc := currentThread()
	if tc == nil || !tc.IsInSandbox() {
		return false
	}

	// Clear the flag before anything else, primarily to protect against
	// nested faults: if the handler itself faults, the nested invocation
	// must bail out at the gate above rather than re-enter the lookup. A
	// clear flag is also the metadata lock's acquisition precondition.
	tc.SetInSandbox(false)

	if redirectToLandingPad(r, tc, uc) {
		recoveredFaults.Add(1)
		// The flag stays clear: control resumes at the landing pad,
		// which re-enters sandbox bookkeeping itself if it returns to
		// sandboxed execution.
		return true
	}

	// Not a recoverable fault. The thread is still logically inside
	// sandboxed code, so put the flag back; the signal mask was restored
	// before this store.
	tc.SetInSandbox(true)
	return false
}

// redirectToLandingPad performs the registry lookup and, on a hit, the
// instruction-pointer rewrite.
//
// It runs with SIGSEGV unblocked so that if the lookup itself faults, the
// nested fault is delivered fatally (reaching the crash reporter) instead of
// being suppressed or hanging the thread. The prior mask is restored on
// every path, before the caller touches the in-sandbox flag again; the
// restore is ordered that way so a fault between restore and flag store
// cannot find the flag set while we hold handler state.
func redirectToLandingPad(r *Registry, tc *ThreadContext, uc *arch.UContext64) bool {
	oldMask, maskErrno := sighandling.UnblockSignals(segvSet)

	redirected := false
	r.lock(tc)
	if target, ok := r.lookupLocked(uc.MContext.PC()); ok {
		uc.MContext.SetPC(target)
		redirected = true
	}
	r.unlock()

	if maskErrno == 0 {
		sighandling.SetSignalMask(oldMask)
	}
	return redirected
}

// HandleFault is the signal-handler entry point, called by the installed
// trampoline with the delivered signal and the interrupted machine context.
//
// If the fault is recoverable the context has been redirected and HandleFault
// simply returns. Otherwise it restores the default disposition for the
// fault kind and, for kernel-generated faults, re-raises it so the platform's
// normal fatal path runs; a userspace-raised signal is left to the OS to
// re-drive through the now-default handler. Either way the fault is never
// swallowed.
//
// Runs in fault-handler context: see the package doc for the rules.
func HandleFault(signo linux.Signal, info *linux.SignalInfo, uc *arch.UContext64) {
	handleFault(processRegistry, signo, info, uc)
}

func handleFault(r *Registry, signo linux.Signal, info *linux.SignalInfo, uc *arch.UContext64) {
	if tryHandleFault(r, signo, info, uc) {
		return
	}
	unrecoveredFaults.Add(1)
	restoreDefaultDisposition(signo)
	if isKernelGeneratedSignal(info) {
		redeliverFault(signo)
	}
}
