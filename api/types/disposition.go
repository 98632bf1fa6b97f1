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

// Disposition is the outcome of begin-request handling.
type Disposition int

const (
	// Continue lets the host run its own request pipeline.
	Continue Disposition = iota
	// FinishRequest stops the host pipeline; the script has written the complete response.
	FinishRequest
)

// Handler result codes. Scripts read the same values from the read-only
// Disposition table, so native and script code agree on the mapping.
const (
	ContinueCode = 0
	FinishCode   = 1
)

const (
	// ConstantsTableName is the global name of the read-only constants table.
	ConstantsTableName = "Disposition"
	// RegisterFuncName is the global function a script calls to install its begin-request handler.
	RegisterFuncName = "register"
	// DebugPrintFuncName is the global function that writes to the host log sink.
	DebugPrintFuncName = "dprint"
	// GlobalKey is the global table that holds Config.Properties.
	GlobalKey = "global"
)

// DispositionConstants returns the script-visible constants table.
func DispositionConstants() map[string]int {
	return map[string]int{
		"CONTINUE": ContinueCode,
		"FINISH":   FinishCode,
	}
}

// DispositionFromCode maps a handler result code to a Disposition.
// Unknown codes map to Continue and ok=false.
func DispositionFromCode(code int) (d Disposition, ok bool) {
	switch code {
	case ContinueCode:
		return Continue, true
	case FinishCode:
		return FinishRequest, true
	default:
		return Continue, false
	}
}

func (d Disposition) String() string {
	switch d {
	case Continue:
		return "Continue"
	case FinishRequest:
		return "FinishRequest"
	default:
		return "Unknown"
	}
}
