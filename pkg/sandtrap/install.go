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

	"sandtrap.dev/sandtrap/pkg/abi/linux"
	"sandtrap.dev/sandtrap/pkg/atomicbitops"
	"sandtrap.dev/sandtrap/pkg/sighandling"
)

var (
	enabled atomicbitops.Bool

	// savedSegvHandler is the SIGSEGV handler that was installed before
	// Enable replaced it, kept so Disable can put it back.
	savedSegvHandler uintptr
)

// Enable installs handlerAddr as the process SIGSEGV handler, replacing
// whatever handler the runtime had installed. handlerAddr must be the
// address of a platform trampoline that forwards the delivered signal
// number, siginfo and ucontext to HandleFault without growing the Go stack;
// supplying that trampoline is the embedding engine's responsibility.
func Enable(handlerAddr uintptr) error {
	if enabled.Swap(true) {
		return fmt.Errorf("fault interception is already enabled")
	}
	if err := sighandling.ReplaceSignalHandler(linux.SIGSEGV, handlerAddr, &savedSegvHandler); err != nil {
		enabled.Store(false)
		return fmt.Errorf("unable to install fault handler: %w", err)
	}
	log.WithField("handler", fmt.Sprintf("%#x", handlerAddr)).Info("Fault interception enabled")
	return nil
}

// Disable restores the SIGSEGV handler that was installed before Enable.
func Disable() error {
	if !enabled.Load() {
		return fmt.Errorf("fault interception is not enabled")
	}
	var prev uintptr
	if err := sighandling.ReplaceSignalHandler(linux.SIGSEGV, savedSegvHandler, &prev); err != nil {
		return fmt.Errorf("unable to restore previous fault handler: %w", err)
	}
	enabled.Store(false)
	log.Info("Fault interception disabled")
	return nil
}

// Enabled returns whether the fault handler is installed.
func Enabled() bool {
	return enabled.Load()
}
