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
	"sandtrap.dev/sandtrap/pkg/atomicbitops"
)

// Fault counters. Single atomic increments, so the fault path may bump them.
var (
	recoveredFaults   atomicbitops.Uint64
	unrecoveredFaults atomicbitops.Uint64
)

// FaultStats is a snapshot of the process-wide fault counters.
type FaultStats struct {
	// Recovered counts faults redirected to a landing pad.
	Recovered uint64

	// Unrecovered counts faults deferred to default handling. It is only
	// observable when the disposition-restore path is stubbed out, since
	// the real path terminates the process.
	Unrecovered uint64
}

// Stats returns the current fault counters.
func Stats() FaultStats {
	return FaultStats{
		Recovered:   recoveredFaults.Load(),
		Unrecovered: unrecoveredFaults.Load(),
	}
}
