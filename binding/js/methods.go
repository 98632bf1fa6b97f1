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

package js

import (
	"net/http"

	"github.com/dop251/goja"
	"github.com/rulego/hotscript/binding"
)

type method = func(call goja.FunctionCall) goja.Value

// newRequest builds the call-scoped request object. Every method goes through
// the proxy, so a stashed object fails once the dispatch returned.
func (r *Runtime) newRequest(p *binding.RequestProxy) *goja.Object {
	vm := r.vm
	str := func(get func(*binding.RequestProxy) (string, error)) method {
		return func(call goja.FunctionCall) goja.Value {
			v, err := get(p)
			r.check(err)
			return vm.ToValue(v)
		}
	}
	return r.object(map[string]method{
		"getFullUrl":       str((*binding.RequestProxy).FullURL),
		"getAbsUrl":        str((*binding.RequestProxy).AbsPath),
		"getHostUrl":       str((*binding.RequestProxy).Host),
		"getQueryString":   str((*binding.RequestProxy).QueryString),
		"getMethod":        str((*binding.RequestProxy).Method),
		"getLocalAddress":  str((*binding.RequestProxy).LocalAddr),
		"getRemoteAddress": str((*binding.RequestProxy).RemoteAddr),
		"read": func(call goja.FunctionCall) goja.Value {
			body, err := p.Read(call.Argument(0).ToBoolean())
			r.check(err)
			if body == nil {
				return goja.Null()
			}
			return vm.ToValue(string(body))
		},
		"setUrl": func(call goja.FunctionCall) goja.Value {
			r.check(p.SetURL(call.Argument(0).String(), optBool(call.Argument(1), true)))
			return goja.Undefined()
		},
		"getHeader": func(call goja.FunctionCall) goja.Value {
			v, ok, err := p.Header(call.Argument(0).String())
			r.check(err)
			if !ok {
				return goja.Null()
			}
			return vm.ToValue(v)
		},
		"setHeader": func(call goja.FunctionCall) goja.Value {
			r.check(p.SetHeader(call.Argument(0).String(), call.Argument(1).String(), optBool(call.Argument(2), true)))
			return goja.Undefined()
		},
		"deleteHeader": func(call goja.FunctionCall) goja.Value {
			r.check(p.DeleteHeader(call.Argument(0).String()))
			return goja.Undefined()
		},
	})
}

func (r *Runtime) newResponse(p *binding.ResponseProxy) *goja.Object {
	vm := r.vm
	status := func(call goja.FunctionCall) goja.Value {
		code, err := p.Status()
		r.check(err)
		return vm.ToValue(code)
	}
	return r.object(map[string]method{
		"status":    status,
		"getStatus": status,
		"setStatus": func(call goja.FunctionCall) goja.Value {
			reason := ""
			if !goja.IsUndefined(call.Argument(1)) {
				reason = call.Argument(1).String()
			}
			r.check(p.SetStatus(int(call.Argument(0).ToInteger()), reason))
			return goja.Undefined()
		},
		"getHeader": func(call goja.FunctionCall) goja.Value {
			v, ok, err := p.Header(call.Argument(0).String())
			r.check(err)
			if !ok {
				return goja.Null()
			}
			return vm.ToValue(v)
		},
		"setHeader": func(call goja.FunctionCall) goja.Value {
			r.check(p.SetHeader(call.Argument(0).String(), call.Argument(1).String(), optBool(call.Argument(2), true)))
			return goja.Undefined()
		},
		"deleteHeader": func(call goja.FunctionCall) goja.Value {
			r.check(p.DeleteHeader(call.Argument(0).String()))
			return goja.Undefined()
		},
		"write": func(call goja.FunctionCall) goja.Value {
			n, err := p.Write([]byte(call.Argument(0).String()))
			r.check(err)
			return vm.ToValue(n)
		},
		"redirect": func(call goja.FunctionCall) goja.Value {
			code := http.StatusFound
			if !goja.IsUndefined(call.Argument(1)) {
				code = int(call.Argument(1).ToInteger())
			}
			r.check(p.Redirect(call.Argument(0).String(), code))
			return goja.Undefined()
		},
		"closeConnection": func(call goja.FunctionCall) goja.Value {
			r.check(p.CloseConnection())
			return goja.Undefined()
		},
		"clear": func(call goja.FunctionCall) goja.Value {
			r.check(p.Clear())
			return goja.Undefined()
		},
	})
}

func (r *Runtime) object(methods map[string]method) *goja.Object {
	obj := r.vm.NewObject()
	for name, fn := range methods {
		_ = obj.Set(name, fn)
	}
	return obj
}

func (r *Runtime) check(err error) {
	if err != nil {
		r.throw(err)
	}
}

func optBool(v goja.Value, def bool) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return def
	}
	return v.ToBoolean()
}
