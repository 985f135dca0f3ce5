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

// ProtectedInstruction identifies one instruction within a compiled code
// object whose fault is expected and recoverable, and the landing pad that
// compensates for it. Both offsets are relative to the code object's base and
// are produced by the compiler.
type ProtectedInstruction struct {
	// FaultOffset is the offset of the instruction that is allowed to
	// fault.
	FaultOffset uintptr

	// RecoveryOffset is the offset at which execution resumes after the
	// fault.
	RecoveryOffset uintptr
}

// CodeRange describes the memory region of one compiled code object and its
// protected-instruction table. A CodeRange is immutable once published to a
// Registry: the fault handler reads it concurrently without holding any lock
// on the entry itself, so mutation is only ever replace-the-entire-entry.
type CodeRange struct {
	base         uintptr
	size         uintptr
	instructions []ProtectedInstruction
}

// Base returns the starting address of the code object's memory region.
func (cr *CodeRange) Base() uintptr {
	return cr.base
}

// Size returns the length in bytes of the code object's memory region.
func (cr *CodeRange) Size() uintptr {
	return cr.size
}

// contains returns true if addr falls within [base, base+size).
//
//go:nosplit
func (cr *CodeRange) contains(addr uintptr) bool {
	return addr >= cr.base && addr-cr.base < cr.size
}

// recoveryFor returns the absolute landing pad address for a fault at addr,
// if addr is one of the range's protected instructions. A linear scan is
// deliberate: it is allocation-free and trivially auditable, and instruction
// tables are produced once per offset by the compiler so at most one entry
// can match.
//
//go:nosplit
func (cr *CodeRange) recoveryFor(addr uintptr) (uintptr, bool) {
	offset := addr - cr.base
	for i := 0; i < len(cr.instructions); i++ {
		if cr.instructions[i].FaultOffset == offset {
			return cr.base + cr.instructions[i].RecoveryOffset, true
		}
	}
	return 0, false
}

// Handle identifies a registered CodeRange. It is the entry's slot index in
// the registry and stays valid until released.
type Handle int32

// InvalidHandle is never returned by a successful registration.
const InvalidHandle Handle = -1
