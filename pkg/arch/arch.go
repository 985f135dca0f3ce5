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

// Package arch provides the machine context delivered to a signal handler:
// the architecture's struct sigcontext and struct ucontext, as laid out by
// the Linux kernel.
//
// The context is owned exclusively by the handler for the duration of one
// invocation. The only mutation the fault path is permitted to perform is
// SignalContext64.SetPC; everything else is read-only.
package arch
