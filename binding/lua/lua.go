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

// Package lua provides the gopher-lua script runtime. Importing it registers
// the runtime for the .lua extension.
package lua

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/binding"
	lua "github.com/yuin/gopher-lua"
)

// Ext is the script file extension served by this runtime.
const Ext = ".lua"

const (
	requestTypeName   = "HttpRequest"
	responseTypeName  = "HttpResponse"
	hostErrorTypeName = "HostError"
)

func init() {
	_ = binding.Registry.Register(Ext, New)
}

var _ binding.Runtime = (*Runtime)(nil)

// Runtime is one gopher-lua state with the built-in bindings installed.
type Runtime struct {
	L      *lua.LState
	logger types.Logger
	// handler is the registered begin-request function. Replacing it drops
	// the only reference to the previous one.
	handler *lua.LFunction
	path    string
}

// New creates a Lua runtime with the sandboxed standard libraries and the built-in bindings.
func New(opts binding.Options) (binding.Runtime, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath, lua.OpenOs} {
		open(L)
	}
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	if lib, ok := L.GetGlobal(lua.OsLibName).(*lua.LTable); ok {
		// clock and date helpers only
		for _, name := range []string{"exit", "execute", "remove", "rename", "tmpname", "setenv", "setlocale"} {
			lib.RawSetString(name, lua.LNil)
		}
	}

	r := &Runtime{L: L, logger: types.NewLogger(opts.Logger)}
	r.install(opts.Properties)
	return r, nil
}

func (r *Runtime) install(properties map[string]string) {
	L := r.L
	L.SetGlobal(types.RegisterFuncName, L.NewFunction(r.register))
	dprint := L.NewFunction(r.dprint)
	L.SetGlobal(types.DebugPrintFuncName, dprint)
	L.SetGlobal("print", dprint)

	constants := make(map[string]lua.LValue)
	for k, v := range types.DispositionConstants() {
		constants[k] = lua.LNumber(v)
	}
	L.SetGlobal(types.ConstantsTableName, readOnlyTable(L, types.ConstantsTableName, constants))

	global := make(map[string]lua.LValue, len(properties))
	for k, v := range properties {
		global[k] = lua.LString(v)
	}
	L.SetGlobal(types.GlobalKey, readOnlyTable(L, types.GlobalKey, global))

	registerRequestType(L)
	registerResponseType(L)
	registerHostErrorType(L)
}

// readOnlyTable returns a userdata that reads from data and raises on every
// write. The values live on the Go side so rawset and setmetatable cannot reach them.
func readOnlyTable(L *lua.LState, name string, data map[string]lua.LValue) *lua.LUserData {
	ud := L.NewUserData()
	mt := L.NewTable()
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		if v, ok := data[lua.LVAsString(L.Get(2))]; ok {
			L.Push(v)
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}))
	L.SetField(mt, "__newindex", L.NewFunction(func(L *lua.LState) int {
		L.RaiseError("%s: %s", name, types.ErrReadOnly)
		return 0
	}))
	L.SetField(mt, "__len", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(len(data)))
		return 1
	}))
	L.SetField(mt, "__metatable", lua.LString(name))
	L.SetMetatable(ud, mt)
	return ud
}

func (r *Runtime) register(L *lua.LState) int {
	fn, ok := L.Get(1).(*lua.LFunction)
	if !ok {
		L.ArgError(1, types.ErrNotFunction.Error())
		return 0
	}
	r.handler = fn
	return 0
}

func (r *Runtime) dprint(L *lua.LState) int {
	n := L.GetTop()
	args := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		args = append(args, L.ToStringMeta(L.Get(i)).String())
	}
	binding.Printer(r.logger, args)
	return 0
}

// Exec compiles and runs src. A previously registered handler stays in
// place unless the script registers a new one.
func (r *Runtime) Exec(path string, src []byte) error {
	if r.L == nil {
		return &types.ScriptError{Kind: types.KindRuntime, Path: path, Err: types.ErrRuntimeClosed}
	}
	r.path = path
	fn, err := r.L.Load(bytes.NewReader(src), path)
	if err != nil {
		return &types.ScriptError{Kind: types.KindCompile, Path: path, Err: err}
	}
	top := r.L.GetTop()
	defer r.L.SetTop(top)
	if err := r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
		return r.scriptError(err)
	}
	return nil
}

func (r *Runtime) HasHandler() bool {
	return r.handler != nil
}

// Invoke calls the handler with a request and a response userdata.
func (r *Runtime) Invoke(req *binding.RequestProxy, resp *binding.ResponseProxy) (result binding.Result) {
	if r.L == nil || r.handler == nil {
		return result
	}
	L := r.L
	top := L.GetTop()
	defer func() {
		if caught := recover(); caught != nil {
			result = binding.Result{Err: &types.ScriptError{Kind: types.KindPanic, Path: r.path, Err: fmt.Errorf("%v", caught)}}
		}
		L.SetTop(top)
	}()

	reqUD := newUserData(L, req, requestTypeName)
	respUD := newUserData(L, resp, responseTypeName)
	if err := L.CallByParam(lua.P{Fn: r.handler, NRet: 1, Protect: true}, reqUD, respUD); err != nil {
		result.Err = r.scriptError(err)
		return result
	}
	switch ret := L.Get(-1).(type) {
	case lua.LNumber:
		result.Code = int(ret)
		result.HasCode = true
	case lua.LBool:
		// true is shorthand for FINISH
		result.HasCode = true
		if ret {
			result.Code = types.FinishCode
		}
	}
	return result
}

// Close releases the state and the handler reference.
func (r *Runtime) Close() {
	r.handler = nil
	if r.L != nil {
		r.L.Close()
		r.L = nil
	}
}

func (r *Runtime) scriptError(err error) *types.ScriptError {
	var apiErr *lua.ApiError
	if errors.As(err, &apiErr) {
		if ud, ok := apiErr.Object.(*lua.LUserData); ok {
			if he, ok := ud.Value.(*types.HostError); ok {
				return &types.ScriptError{Kind: types.KindHostAPI, Path: r.path, Err: he}
			}
		}
		switch apiErr.Type {
		case lua.ApiErrorSyntax, lua.ApiErrorFile:
			return &types.ScriptError{Kind: types.KindCompile, Path: r.path, Err: err}
		case lua.ApiErrorPanic:
			return &types.ScriptError{Kind: types.KindPanic, Path: r.path, Err: err}
		}
	}
	return &types.ScriptError{Kind: types.KindRuntime, Path: r.path, Err: err}
}

func newUserData(L *lua.LState, value interface{}, typeName string) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = value
	L.SetMetatable(ud, L.GetTypeMetatable(typeName))
	return ud
}

// raise turns a proxy failure into a script error. Host failures are raised
// as HostError userdata so they keep their code across pcall boundaries.
func raise(L *lua.LState, err error) int {
	var he *types.HostError
	if errors.As(err, &he) {
		L.Error(newUserData(L, he, hostErrorTypeName), 1)
		return 0
	}
	L.RaiseError("%s", err.Error())
	return 0
}

func registerHostErrorType(L *lua.LState) {
	mt := L.NewTypeMetatable(hostErrorTypeName)
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		he := checkHostError(L)
		L.Push(lua.LString(he.Error()))
		return 1
	}))
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		he := checkHostError(L)
		switch L.CheckString(2) {
		case "code":
			L.Push(lua.LNumber(he.Code))
		case "op":
			L.Push(lua.LString(he.Op))
		case "message":
			L.Push(lua.LString(he.Error()))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}))
}

func checkHostError(L *lua.LState) *types.HostError {
	ud := L.CheckUserData(1)
	he, ok := ud.Value.(*types.HostError)
	if !ok {
		L.ArgError(1, hostErrorTypeName+" expected")
	}
	return he
}
