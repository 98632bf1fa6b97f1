/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package binding defines the contract between the interpreter core and the
// script runtimes that expose the host request to script code.
//
// A runtime installs the built-in script surface:
//   - register(fn): stores fn as the begin-request handler, replacing and releasing any previous one
//   - Disposition: read-only table with CONTINUE and FINISH result codes
//   - dprint(...) / print(...): writes to the host log sink
//   - global: read-only Config.Properties
//
// and invokes the handler with a Request and a Response capability object
// backed by RequestProxy and ResponseProxy.
//
// Runtimes are registered per script file extension in Registry. The lua and js
// sub packages register themselves on import.
package binding

import (
	"strings"

	"github.com/rulego/hotscript/api/types"
)

// Runtime owns one script interpreter. It is not safe for concurrent use;
// callers serialize access with the owning instance's execution lock.
type Runtime interface {
	// Exec compiles and runs the script source. Running the script is what
	// registers the handler. Failures are *types.ScriptError values.
	Exec(path string, src []byte) error
	// HasHandler reports whether a begin-request handler is registered.
	HasHandler() bool
	// Invoke calls the handler in protected mode. It never panics.
	Invoke(req *RequestProxy, resp *ResponseProxy) Result
	// Close releases the interpreter and every script reference it holds.
	Close()
}

// Options are passed to a Factory when a runtime is built.
type Options struct {
	Logger     types.Logger
	Properties map[string]string
}

// Factory builds a runtime with the built-in bindings installed.
type Factory func(opts Options) (Runtime, error)

// Result is the outcome of one handler invocation.
type Result struct {
	// Code is the numeric value returned by the handler, valid when HasCode is true.
	Code    int
	HasCode bool
	// Err is a *types.ScriptError when the handler raised or panicked.
	Err error
}

// Disposition maps the result to a Disposition. Errors, missing and
// unknown codes all map to Continue; known is false for an unknown code.
func (r Result) Disposition() (d types.Disposition, known bool) {
	if r.Err != nil || !r.HasCode {
		return types.Continue, true
	}
	return types.DispositionFromCode(r.Code)
}

// Printer formats dprint arguments the same way for every runtime.
func Printer(logger types.Logger, args []string) {
	if logger == nil {
		return
	}
	logger.Printf("[script] %s", strings.Join(args, "\t"))
}
