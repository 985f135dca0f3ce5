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

// Package sandtrap lets a runtime that executes compiled sandboxed bytecode
// treat certain out-of-bounds memory-protection faults as recoverable control
// flow instead of fatal errors. Compiled code may issue a raw access that is
// allowed to fault; if the fault occurs at an instruction the runtime has
// registered as protected, the interrupted context is redirected to that
// instruction's landing pad and execution resumes there.
//
// The embedding engine registers each compiled code object's protected
// instructions with RegisterCode, registers every sandbox-executing OS thread
// with RegisterThread, and brackets entry to and exit from sandboxed code
// with ThreadContext.SetInSandbox, including all unwinding paths. A fault is
// recovered only when all three pieces of state agree; any other fault
// converges to the platform's default fatal handling and is never swallowed.
//
// PLEASE READ BEFORE CHANGING THE FAULT PATH!
//
// Everything reachable from TryHandleFault executes while a SIGSEGV is being
// handled, which is a notoriously easy environment to get wrong, and getting
// it wrong is a security vulnerability rather than a bug. Rules for that
// path:
//
//  1. No allocation, no logging, no channels, no maps.
//  2. No locking except the code registry's metadata lock, whose
//     non-reentrancy precondition is asserted.
//  3. No calls into other parts of the runtime. The path must stay small
//     enough to audit line by line, and changes to it need security review.
package sandtrap
