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

package types

import (
	"errors"
	"fmt"
)

var (
	// ErrProxyInvalid is returned by a capability proxy used after its dispatch returned.
	ErrProxyInvalid = errors.New("context object is invalid")
	// ErrNoScript is returned when no backing script matches the configured location.
	ErrNoScript = errors.New("no script found")
	// ErrNoBinding is returned when no script binding is registered for a file extension.
	ErrNoBinding = errors.New("no script binding registered")
	// ErrNotFunction is raised when register is called with a non-callable value.
	ErrNotFunction = errors.New("register expects a function")
	// ErrReadOnly is raised on any write to the constants table.
	ErrReadOnly = errors.New("table is read-only")
	// ErrRuntimeClosed is returned by a runtime used after Close.
	ErrRuntimeClosed = errors.New("runtime is closed")
	// ErrWatcherClosed is returned when subscribing to a closed watcher.
	ErrWatcherClosed = errors.New("watcher is closed")
	// ErrPoolStopped is returned when an instance is requested from a stopped pool.
	ErrPoolStopped = errors.New("pool is stopped")
)

// ErrorKind classifies a failure at the handler-invocation boundary.
type ErrorKind int

const (
	// KindCompile is a script that failed to load or compile.
	KindCompile ErrorKind = iota + 1
	// KindRuntime is an error raised by script code.
	KindRuntime
	// KindHostAPI is a host capability failure propagated out of the script.
	KindHostAPI
	// KindPanic is a Go panic recovered while running script code.
	KindPanic
)

func (k ErrorKind) String() string {
	switch k {
	case KindCompile:
		return "compile"
	case KindRuntime:
		return "runtime"
	case KindHostAPI:
		return "host"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// ScriptError is a failure produced while loading a script or invoking its handler.
type ScriptError struct {
	Kind ErrorKind
	Path string
	Err  error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("%s error in %s: %v", e.Kind, e.Path, e.Err)
}

func (e *ScriptError) Unwrap() error {
	return e.Err
}

// Host failure codes carried by HostError.
const (
	HostCodeFailed = iota + 1
	HostCodeInvalidArgument
	HostCodeHeadersSent
	HostCodeUnavailable
)

// HostError is a failed host capability call. Scripts see it as an error whose
// message and code property carry Code.
type HostError struct {
	Op   string
	Code int
	Err  error
}

func (e *HostError) Error() string {
	return fmt.Sprintf("%s failed (code %d): %v", e.Op, e.Code, e.Err)
}

func (e *HostError) Unwrap() error {
	return e.Err
}

// NewHostError wraps err as a HostError for op. An err that already is a
// HostError keeps its code.
func NewHostError(op string, err error) *HostError {
	var he *HostError
	if errors.As(err, &he) {
		return &HostError{Op: op, Code: he.Code, Err: he.Err}
	}
	return &HostError{Op: op, Code: HostCodeFailed, Err: err}
}
