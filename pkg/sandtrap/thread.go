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
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"sandtrap.dev/sandtrap/pkg/atomicbitops"
)

// ThreadContext is the sandbox execution state of one OS thread. It is
// created by RegisterThread and owned exclusively by that thread: only the
// owning thread may call SetInSandbox.
type ThreadContext struct {
	tid int32

	// inSandbox is true only while the owning thread is executing (or
	// about to enter) registered sandboxed code. It gates the fault
	// handler's interest in faults on this thread, and its inverse is the
	// precondition for acquiring the registry's metadata lock.
	inSandbox atomicbitops.Bool
}

// SetInSandbox flags the owning thread as executing sandboxed code. The
// embedding engine must call SetInSandbox(true) immediately before
// transferring control into sandboxed code and SetInSandbox(false)
// immediately after control returns, on every path out including unwinding;
// the flag is never cleared implicitly.
//
// Only the owning thread may call this.
//
//go:nosplit
func (tc *ThreadContext) SetInSandbox(v bool) {
	tc.inSandbox.Store(v)
}

// IsInSandbox returns whether the owning thread is flagged as executing
// sandboxed code.
//
//go:nosplit
func (tc *ThreadContext) IsInSandbox() bool {
	return tc.inSandbox.Load()
}

var (
	// threadsMu serializes thread table mutation. It is never taken on the
	// fault path.
	threadsMu sync.Mutex

	// threads is an immutable snapshot of all registered thread contexts.
	// Mutation republishes a whole new slice, never edits in place, so the
	// handler can scan a loaded snapshot without locks or allocation.
	threads atomic.Pointer[[]*ThreadContext]
)

// RegisterThread creates the sandbox execution context for the calling OS
// thread. The caller must have pinned itself with runtime.LockOSThread and
// must call UnregisterThread from the same thread before unpinning. The
// context's flag starts clear.
func RegisterThread() (*ThreadContext, error) {
	tid := int32(unix.Gettid())

	threadsMu.Lock()
	defer threadsMu.Unlock()

	var cur []*ThreadContext
	if p := threads.Load(); p != nil {
		cur = *p
	}
	for _, tc := range cur {
		if tc.tid == tid {
			return nil, fmt.Errorf("thread %d already has a sandbox execution context", tid)
		}
	}
	tc := &ThreadContext{tid: tid}
	next := make([]*ThreadContext, 0, len(cur)+1)
	next = append(next, cur...)
	next = append(next, tc)
	threads.Store(&next)
	return tc, nil
}

// UnregisterThread retires the calling thread's context. The flag must be
// clear: unregistering a thread that is flagged as executing sandboxed code
// is a programming error in the embedding engine.
func UnregisterThread(tc *ThreadContext) {
	if tc.IsInSandbox() {
		panic("thread unregistered while flagged in-sandbox")
	}

	threadsMu.Lock()
	defer threadsMu.Unlock()

	var cur []*ThreadContext
	if p := threads.Load(); p != nil {
		cur = *p
	}
	next := make([]*ThreadContext, 0, len(cur))
	found := false
	for _, t := range cur {
		if t == tc {
			found = true
			continue
		}
		next = append(next, t)
	}
	if !found {
		panic("unregister of unknown thread context")
	}
	threads.Store(&next)
}

// currentThread returns the calling thread's context, or nil if the thread
// was never registered. A linear tid scan over the current snapshot; the
// thread population is small and stable, and the scan is allocation-free.
//
// Must not allocate; runs in fault-handler context.
//
//go:nosplit
func currentThread() *ThreadContext {
	p := threads.Load()
	if p == nil {
		return nil
	}
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	for _, tc := range *p {
		if uintptr(tc.tid) == tid {
			return tc
		}
	}
	return nil
}
