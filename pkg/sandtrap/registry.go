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

	"github.com/google/btree"
)

// indexDegree is the btree degree of the address-ordered range index.
const indexDegree = 8

// Registry maps compiled code ranges to their protected-instruction tables.
//
// All state is guarded by a single metadata lock. Taking locks on the fault
// path is risky because a fault while holding the lock would deadlock against
// itself when the handler re-enters; the lock may therefore only be taken by
// a thread whose in-sandbox flag is clear, which lock asserts. The handler
// clears the flag before acquiring, so a nested fault bails out at the flag
// gate instead of deadlocking.
//
// Registration and release happen only from ordinary execution. The fault
// handler is strictly a reader.
type Registry struct {
	mu sync.Mutex

	// entries is slot-indexed by Handle. Released slots are set to nil and
	// recycled through free; the slice never shrinks, so a handle can
	// never alias a slot the handler believes is live.
	entries []*CodeRange
	free    []Handle

	// index orders live entries by base address. It serves two purposes:
	// neighbor checks make the no-overlap invariant O(log n) to enforce at
	// registration, and the handler uses it as a broad code-range filter
	// before scanning an instruction table. Lookups through the index must
	// produce identical outcomes to a linear scan over entries; see
	// lookupLinearLocked.
	index *btree.BTreeG[*CodeRange]

	// Scratch state for index descents on the fault path. The pivot and
	// the iterator closure are allocated once here because creating either
	// during a lookup would allocate in fault-handler context. Guarded by
	// mu.
	pivot      *CodeRange
	searchAddr uintptr
	searchHit  *CodeRange
	descend    func(*CodeRange) bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{
		index: btree.NewG(indexDegree, func(a, b *CodeRange) bool {
			return a.base < b.base
		}),
		pivot: &CodeRange{},
	}
	r.descend = func(cr *CodeRange) bool {
		// First entry at or below searchAddr; no second candidate can
		// contain the address since live ranges never overlap.
		if r.searchAddr-cr.base < cr.size {
			r.searchHit = cr
		}
		return false
	}
	return r
}

// lock acquires the metadata lock on behalf of tc (nil for a thread that has
// no sandbox execution context).
//
// Precondition: tc's in-sandbox flag is clear. Violating it means a fault on
// this thread while the lock is held would re-enter the handler and deadlock
// acquiring the lock again; that is a programming error in the embedding
// engine, so it is asserted rather than handled.
func (r *Registry) lock(tc *ThreadContext) {
	if tc != nil && tc.IsInSandbox() {
		panic("metadata lock acquired while thread is flagged in-sandbox")
	}
	r.mu.Lock()
}

func (r *Registry) unlock() {
	r.mu.Unlock()
}

// Register publishes a code object's memory region and protected-instruction
// table. The table is copied; the published entry is immutable for its
// lifetime. Register fails if the region is empty, wraps the address space,
// overlaps a live entry, or if any offset falls outside the region.
//
// The caller must not be flagged as executing sandboxed code.
func (r *Registry) Register(base, size uintptr, instructions []ProtectedInstruction) (Handle, error) {
	if size == 0 {
		return InvalidHandle, fmt.Errorf("code range at %#x has zero size", base)
	}
	if base+size < base {
		return InvalidHandle, fmt.Errorf("code range [%#x, %#x+%#x) wraps the address space", base, base, size)
	}
	for _, pi := range instructions {
		if pi.FaultOffset >= size || pi.RecoveryOffset >= size {
			return InvalidHandle, fmt.Errorf("protected instruction (%#x, %#x) outside code range of size %#x", pi.FaultOffset, pi.RecoveryOffset, size)
		}
	}

	cr := &CodeRange{
		base:         base,
		size:         size,
		instructions: append([]ProtectedInstruction(nil), instructions...),
	}

	r.lock(currentThread())
	defer r.unlock()

	if other := r.overlapLocked(base, size); other != nil {
		return InvalidHandle, fmt.Errorf("code range [%#x, %#x) overlaps registered range [%#x, %#x)", base, base+size, other.base, other.base+other.size)
	}

	var h Handle
	if n := len(r.free); n > 0 {
		h = r.free[n-1]
		r.free = r.free[:n-1]
		r.entries[h] = cr
	} else {
		h = Handle(len(r.entries))
		r.entries = append(r.entries, cr)
	}
	r.index.ReplaceOrInsert(cr)

	log.WithFields(logFields{
		"base":      fmt.Sprintf("%#x", base),
		"size":      size,
		"protected": len(instructions),
		"handle":    h,
	}).Debug("Registered code range")
	return h, nil
}

// Release retires the entry identified by h. The slot is emptied in place so
// indices the handler may be holding stay valid; it is recycled by a later
// Register. Releasing an unknown or already-released handle is an error.
//
// The caller must not be flagged as executing sandboxed code.
func (r *Registry) Release(h Handle) error {
	r.lock(currentThread())
	defer r.unlock()

	if h < 0 || int(h) >= len(r.entries) || r.entries[h] == nil {
		return fmt.Errorf("release of unknown code range handle %d", h)
	}
	cr := r.entries[h]
	r.index.Delete(cr)
	r.entries[h] = nil
	r.free = append(r.free, h)

	log.WithFields(logFields{
		"base":   fmt.Sprintf("%#x", cr.base),
		"handle": h,
	}).Debug("Released code range")
	return nil
}

// lookupLocked returns the landing pad address for a fault at addr, if addr
// is a protected instruction of some live range. The index narrows the
// search to the single candidate range; the instruction table is then
// scanned linearly. Outcomes are identical to lookupLinearLocked by
// construction, which the tests verify.
//
// Preconditions: r.mu is held. Must not allocate; runs in fault-handler
// context.
func (r *Registry) lookupLocked(addr uintptr) (uintptr, bool) {
	r.searchAddr = addr
	r.searchHit = nil
	r.pivot.base = addr
	r.index.DescendLessOrEqual(r.pivot, r.descend)
	if r.searchHit == nil {
		return 0, false
	}
	return r.searchHit.recoveryFor(addr)
}

// lookupLinearLocked is the reference lookup: a linear scan over all slots
// testing containment, then a scan of the matching range's instruction
// table. The index-based lookupLocked must agree with it on every address.
//
// Preconditions: r.mu is held.
func (r *Registry) lookupLinearLocked(addr uintptr) (uintptr, bool) {
	for _, cr := range r.entries {
		if cr == nil {
			continue
		}
		if cr.contains(addr) {
			return cr.recoveryFor(addr)
		}
	}
	return 0, false
}

// overlapLocked returns a live entry whose range intersects [base,
// base+size), or nil. Only the index neighbors of base can intersect.
//
// Preconditions: r.mu is held.
func (r *Registry) overlapLocked(base, size uintptr) *CodeRange {
	var hit *CodeRange
	r.pivot.base = base
	r.index.DescendLessOrEqual(r.pivot, func(cr *CodeRange) bool {
		if base-cr.base < cr.size {
			hit = cr
		}
		return false
	})
	if hit != nil {
		return hit
	}
	r.index.AscendGreaterOrEqual(r.pivot, func(cr *CodeRange) bool {
		if cr.base-base < size {
			hit = cr
		}
		return false
	})
	return hit
}

// processRegistry is the singleton consulted by the installed fault handler.
// It exists at the process-lifecycle boundary only; everything else operates
// on an explicit *Registry.
var processRegistry = NewRegistry()

// RegisterCode publishes a compiled code object's protected-instruction
// metadata with the process registry. See Registry.Register.
func RegisterCode(base, size uintptr, instructions []ProtectedInstruction) (Handle, error) {
	return processRegistry.Register(base, size, instructions)
}

// ReleaseCode retires a code object previously published with RegisterCode.
// See Registry.Release.
func ReleaseCode(h Handle) error {
	return processRegistry.Release(h)
}
