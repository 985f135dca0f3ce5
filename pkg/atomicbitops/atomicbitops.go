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

// Package atomicbitops provides small wrappers around sync/atomic that may be
// safely used from fault-handler context: every operation is a single atomic
// access with no allocation and no locking.
package atomicbitops

import "sync/atomic"

// Uint32 is an atomic uint32.
//
// The zero value is zero.
type Uint32 struct {
	value uint32
}

// FromUint32 returns a Uint32 initialized to value val.
//
//go:nosplit
func FromUint32(val uint32) Uint32 {
	return Uint32{value: val}
}

// Load is analogous to atomic.LoadUint32.
//
//go:nosplit
func (u *Uint32) Load() uint32 {
	return atomic.LoadUint32(&u.value)
}

// Store is analogous to atomic.StoreUint32.
//
//go:nosplit
func (u *Uint32) Store(val uint32) {
	atomic.StoreUint32(&u.value, val)
}

// Add is analogous to atomic.AddUint32.
//
//go:nosplit
func (u *Uint32) Add(val uint32) uint32 {
	return atomic.AddUint32(&u.value, val)
}

// Swap is analogous to atomic.SwapUint32.
//
//go:nosplit
func (u *Uint32) Swap(val uint32) uint32 {
	return atomic.SwapUint32(&u.value, val)
}

// CompareAndSwap is analogous to atomic.CompareAndSwapUint32.
//
//go:nosplit
func (u *Uint32) CompareAndSwap(old, new uint32) bool {
	return atomic.CompareAndSwapUint32(&u.value, old, new)
}

// Uint64 is an atomic uint64.
//
// The zero value is zero.
type Uint64 struct {
	value uint64
}

// FromUint64 returns a Uint64 initialized to value val.
//
//go:nosplit
func FromUint64(val uint64) Uint64 {
	return Uint64{value: val}
}

// Load is analogous to atomic.LoadUint64.
//
//go:nosplit
func (u *Uint64) Load() uint64 {
	return atomic.LoadUint64(&u.value)
}

// Store is analogous to atomic.StoreUint64.
//
//go:nosplit
func (u *Uint64) Store(val uint64) {
	atomic.StoreUint64(&u.value, val)
}

// Add is analogous to atomic.AddUint64.
//
//go:nosplit
func (u *Uint64) Add(val uint64) uint64 {
	return atomic.AddUint64(&u.value, val)
}

// Swap is analogous to atomic.SwapUint64.
//
//go:nosplit
func (u *Uint64) Swap(val uint64) uint64 {
	return atomic.SwapUint64(&u.value, val)
}
