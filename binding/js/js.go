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

// Package js provides the goja JavaScript runtime. Importing it registers the
// runtime for the .js extension.
//
// Scripts are compiled in strict mode. The begin-request handler receives the
// request and response objects and returns Disposition.CONTINUE or
// Disposition.FINISH:
//
//	register(function (req, resp) {
//	    if (req.getAbsUrl() === "/ping") {
//	        resp.write("pong");
//	        return Disposition.FINISH;
//	    }
//	    return Disposition.CONTINUE;
//	});
package js

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dop251/goja"
	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/binding"
)

// Ext is the script file extension served by this runtime.
const Ext = ".js"

func init() {
	_ = binding.Registry.Register(Ext, New)
}

var _ binding.Runtime = (*Runtime)(nil)

// Runtime is one goja VM with the built-in bindings installed.
type Runtime struct {
	vm     *goja.Runtime
	logger types.Logger
	// handler is the registered begin-request function. Replacing it drops
	// the only reference to the previous one.
	handler goja.Callable
	path    string
}

// New creates a JavaScript runtime with the built-in bindings installed.
func New(opts binding.Options) (binding.Runtime, error) {
	r := &Runtime{vm: goja.New(), logger: types.NewLogger(opts.Logger)}
	if err := r.install(opts.Properties); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runtime) install(properties map[string]string) error {
	vm := r.vm
	if err := vm.Set(types.RegisterFuncName, r.register); err != nil {
		return err
	}
	if err := vm.Set(types.DebugPrintFuncName, r.dprint); err != nil {
		return err
	}
	if err := vm.Set("print", r.dprint); err != nil {
		return err
	}
	constants := make(map[string]goja.Value)
	for k, v := range types.DispositionConstants() {
		constants[k] = vm.ToValue(v)
	}
	if err := vm.Set(types.ConstantsTableName, vm.NewDynamicObject(&readOnly{vm: vm, name: types.ConstantsTableName, values: constants})); err != nil {
		return err
	}
	global := make(map[string]goja.Value)
	for k, v := range properties {
		global[k] = vm.ToValue(v)
	}
	return vm.Set(types.GlobalKey, vm.NewDynamicObject(&readOnly{vm: vm, name: types.GlobalKey, values: global}))
}

func (r *Runtime) register(call goja.FunctionCall) goja.Value {
	fn, ok := goja.AssertFunction(call.Argument(0))
	if !ok {
		panic(r.vm.NewTypeError(types.ErrNotFunction.Error()))
	}
	r.handler = fn
	return goja.Undefined()
}

func (r *Runtime) dprint(call goja.FunctionCall) goja.Value {
	args := make([]string, 0, len(call.Arguments))
	for _, a := range call.Arguments {
		args = append(args, a.String())
	}
	binding.Printer(r.logger, args)
	return goja.Undefined()
}

// Exec compiles src in strict mode and runs it.
func (r *Runtime) Exec(path string, src []byte) (err error) {
	if r.vm == nil {
		return &types.ScriptError{Kind: types.KindRuntime, Path: path, Err: types.ErrRuntimeClosed}
	}
	r.path = path
	program, err := goja.Compile(path, string(src), true)
	if err != nil {
		return &types.ScriptError{Kind: types.KindCompile, Path: path, Err: err}
	}
	defer func() {
		if caught := recover(); caught != nil {
			err = &types.ScriptError{Kind: types.KindPanic, Path: path, Err: fmt.Errorf("%v", caught)}
		}
	}()
	if _, err := r.vm.RunProgram(program); err != nil {
		return r.scriptError(err)
	}
	return nil
}

func (r *Runtime) HasHandler() bool {
	return r.handler != nil
}

// Invoke calls the handler with fresh request and response objects.
func (r *Runtime) Invoke(req *binding.RequestProxy, resp *binding.ResponseProxy) (result binding.Result) {
	if r.vm == nil || r.handler == nil {
		return result
	}
	defer func() {
		if caught := recover(); caught != nil {
			result = binding.Result{Err: &types.ScriptError{Kind: types.KindPanic, Path: r.path, Err: fmt.Errorf("%s", caught)}}
		}
	}()

	ret, err := r.handler(goja.Undefined(), r.newRequest(req), r.newResponse(resp))
	if err != nil {
		result.Err = r.scriptError(err)
		return result
	}
	if ret == nil || goja.IsUndefined(ret) || goja.IsNull(ret) {
		return result
	}
	switch v := ret.Export().(type) {
	case bool:
		// true is shorthand for FINISH
		result.HasCode = true
		if v {
			result.Code = types.FinishCode
		}
	case int64, float64:
		result.HasCode = true
		result.Code = int(ret.ToInteger())
	}
	return result
}

// Close drops the VM and the handler reference.
func (r *Runtime) Close() {
	r.handler = nil
	r.vm = nil
}

func (r *Runtime) scriptError(err error) *types.ScriptError {
	if he := hostError(err); he != nil {
		return &types.ScriptError{Kind: types.KindHostAPI, Path: r.path, Err: he}
	}
	var syntaxErr *goja.CompilerSyntaxError
	if errors.As(err, &syntaxErr) {
		return &types.ScriptError{Kind: types.KindCompile, Path: r.path, Err: err}
	}
	return &types.ScriptError{Kind: types.KindRuntime, Path: r.path, Err: err}
}

// hostError extracts the HostError carried by a thrown GoError.
func hostError(err error) *types.HostError {
	var he *types.HostError
	if errors.As(err, &he) {
		return he
	}
	var ex *goja.Exception
	if !errors.As(err, &ex) {
		return nil
	}
	obj, ok := ex.Value().(*goja.Object)
	if !ok {
		return nil
	}
	if v := obj.Get("value"); v != nil {
		if he, ok := v.Export().(*types.HostError); ok {
			return he
		}
	}
	return nil
}

// throw raises err as a script exception. Host failures keep their code in
// the `code` property.
func (r *Runtime) throw(err error) {
	obj := r.vm.NewGoError(err)
	var he *types.HostError
	if errors.As(err, &he) {
		_ = obj.Set("code", he.Code)
		_ = obj.Set("op", he.Op)
	}
	panic(obj)
}

// readOnly backs the constants and global objects. Any write or delete
// throws a TypeError and leaves the values unchanged.
type readOnly struct {
	vm     *goja.Runtime
	name   string
	values map[string]goja.Value
}

func (o *readOnly) Get(key string) goja.Value {
	return o.values[key]
}

func (o *readOnly) Set(key string, _ goja.Value) bool {
	panic(o.vm.NewTypeError(fmt.Sprintf("%s.%s: %s", o.name, key, types.ErrReadOnly)))
}

func (o *readOnly) Has(key string) bool {
	_, ok := o.values[key]
	return ok
}

func (o *readOnly) Delete(key string) bool {
	panic(o.vm.NewTypeError(fmt.Sprintf("%s.%s: %s", o.name, key, types.ErrReadOnly)))
}

func (o *readOnly) Keys() []string {
	keys := make([]string, 0, len(o.values))
	for k := range o.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
