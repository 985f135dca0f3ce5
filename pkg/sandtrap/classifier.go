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
)

// isKernelGeneratedSignal returns true if info describes a fault raised by
// the kernel in response to a hardware condition, as opposed to one raised
// synthetically from userspace (kill, sigqueue, timers, AIO, message
// queues). Only kernel-generated faults correspond to an actual memory
// access by sandboxed code, so anything else is never ours.
//
//go:nosplit
func isKernelGeneratedSignal(info *linux.SignalInfo) bool {
	return info.Code > 0 && info.Code != linux.SI_USER &&
		info.Code != linux.SI_QUEUE && info.Code != linux.SI_TIMER &&
		info.Code != linux.SI_ASYNCIO && info.Code != linux.SI_MESGQ
}
