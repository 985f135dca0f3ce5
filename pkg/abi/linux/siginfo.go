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

package linux

import (
	"encoding/binary"
)

// SignalInfo represents information about a signal being delivered, and is
// equivalent to struct siginfo in the Linux kernel
// (linux/include/uapi/asm-generic/siginfo.h).
type SignalInfo struct {
	Signo int32 // Signal number.
	Errno int32 // Errno value.
	Code  int32 // Signal code.
	_     uint32

	// struct siginfo::_sifields is a union; fields are accessed through
	// methods. Only the _sigfault member (faulting address, for SIGILL,
	// SIGFPE, SIGSEGV and SIGBUS) and the _kill member (sender pid/uid)
	// are meaningful to fault interception.
	//
	// _sifields is padded so that the size of siginfo is
	// SI_MAX_SIZE = 128 bytes.
	Fields [128 - 16]byte
}

// Addr returns the si_addr field: the faulting memory reference.
func (s *SignalInfo) Addr() uint64 {
	return binary.NativeEndian.Uint64(s.Fields[0:8])
}

// SetAddr sets the si_addr field.
func (s *SignalInfo) SetAddr(val uint64) {
	binary.NativeEndian.PutUint64(s.Fields[0:8], val)
}

// PID returns the si_pid field.
func (s *SignalInfo) PID() int32 {
	return int32(binary.NativeEndian.Uint32(s.Fields[0:4]))
}

// SetPID mutates the si_pid field.
func (s *SignalInfo) SetPID(val int32) {
	binary.NativeEndian.PutUint32(s.Fields[0:4], uint32(val))
}
