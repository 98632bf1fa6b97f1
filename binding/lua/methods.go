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

package lua

import (
	"fmt"
	"net/http"

	"github.com/rulego/hotscript/binding"
	lua "github.com/yuin/gopher-lua"
)

var requestMethods = map[string]lua.LGFunction{
	"read":             requestRead,
	"setUrl":           requestSetURL,
	"getFullUrl":       requestString((*binding.RequestProxy).FullURL),
	"getAbsUrl":        requestString((*binding.RequestProxy).AbsPath),
	"getHostUrl":       requestString((*binding.RequestProxy).Host),
	"getQueryString":   requestString((*binding.RequestProxy).QueryString),
	"getMethod":        requestString((*binding.RequestProxy).Method),
	"getLocalAddress":  requestString((*binding.RequestProxy).LocalAddr),
	"getRemoteAddress": requestString((*binding.RequestProxy).RemoteAddr),
	"getHeader":        requestGetHeader,
	"setHeader":        requestSetHeader,
	"deleteHeader":     requestDeleteHeader,
}

var responseMethods = map[string]lua.LGFunction{
	"status":          responseStatus,
	"getStatus":       responseStatus,
	"setStatus":       responseSetStatus,
	"getHeader":       responseGetHeader,
	"setHeader":       responseSetHeader,
	"deleteHeader":    responseDeleteHeader,
	"write":           responseWrite,
	"redirect":        responseRedirect,
	"closeConnection": responseCloseConnection,
	"clear":           responseClear,
}

func registerRequestType(L *lua.LState) {
	mt := L.NewTypeMetatable(requestTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), requestMethods))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(fmt.Sprintf("%s: %p", requestTypeName, L.CheckUserData(1))))
		return 1
	}))
	L.SetField(mt, "__metatable", lua.LString(requestTypeName))
}

func registerResponseType(L *lua.LState) {
	mt := L.NewTypeMetatable(responseTypeName)
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), responseMethods))
	L.SetField(mt, "__tostring", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(fmt.Sprintf("%s: %p", responseTypeName, L.CheckUserData(1))))
		return 1
	}))
	L.SetField(mt, "__metatable", lua.LString(responseTypeName))
}

func checkRequest(L *lua.LState) *binding.RequestProxy {
	ud := L.CheckUserData(1)
	p, ok := ud.Value.(*binding.RequestProxy)
	if !ok {
		L.ArgError(1, requestTypeName+" expected")
	}
	return p
}

func checkResponse(L *lua.LState) *binding.ResponseProxy {
	ud := L.CheckUserData(1)
	p, ok := ud.Value.(*binding.ResponseProxy)
	if !ok {
		L.ArgError(1, responseTypeName+" expected")
	}
	return p
}

func requestString(get func(*binding.RequestProxy) (string, error)) lua.LGFunction {
	return func(L *lua.LState) int {
		v, err := get(checkRequest(L))
		if err != nil {
			return raise(L, err)
		}
		L.Push(lua.LString(v))
		return 1
	}
}

// read([rewrite]) returns the body or nil when there is none.
func requestRead(L *lua.LState) int {
	p := checkRequest(L)
	body, err := p.Read(L.OptBool(2, false))
	if err != nil {
		return raise(L, err)
	}
	if body == nil {
		L.Push(lua.LNil)
	} else {
		L.Push(lua.LString(body))
	}
	return 1
}

// setUrl(url[, resetQuery=true])
func requestSetURL(L *lua.LState) int {
	p := checkRequest(L)
	if err := p.SetURL(L.CheckString(2), L.OptBool(3, true)); err != nil {
		return raise(L, err)
	}
	return 0
}

func requestGetHeader(L *lua.LState) int {
	p := checkRequest(L)
	v, ok, err := p.Header(L.CheckString(2))
	if err != nil {
		return raise(L, err)
	}
	pushOptString(L, v, ok)
	return 1
}

// setHeader(name, value[, replace=true])
func requestSetHeader(L *lua.LState) int {
	p := checkRequest(L)
	if err := p.SetHeader(L.CheckString(2), L.CheckString(3), L.OptBool(4, true)); err != nil {
		return raise(L, err)
	}
	return 0
}

func requestDeleteHeader(L *lua.LState) int {
	p := checkRequest(L)
	if err := p.DeleteHeader(L.CheckString(2)); err != nil {
		return raise(L, err)
	}
	return 0
}

func responseStatus(L *lua.LState) int {
	code, err := checkResponse(L).Status()
	if err != nil {
		return raise(L, err)
	}
	L.Push(lua.LNumber(code))
	return 1
}

// setStatus(code[, reason])
func responseSetStatus(L *lua.LState) int {
	p := checkResponse(L)
	if err := p.SetStatus(L.CheckInt(2), L.OptString(3, "")); err != nil {
		return raise(L, err)
	}
	return 0
}

func responseGetHeader(L *lua.LState) int {
	v, ok, err := checkResponse(L).Header(L.CheckString(2))
	if err != nil {
		return raise(L, err)
	}
	pushOptString(L, v, ok)
	return 1
}

func responseSetHeader(L *lua.LState) int {
	p := checkResponse(L)
	if err := p.SetHeader(L.CheckString(2), L.CheckString(3), L.OptBool(4, true)); err != nil {
		return raise(L, err)
	}
	return 0
}

func responseDeleteHeader(L *lua.LState) int {
	p := checkResponse(L)
	if err := p.DeleteHeader(L.CheckString(2)); err != nil {
		return raise(L, err)
	}
	return 0
}

// write(body) returns the number of bytes written.
func responseWrite(L *lua.LState) int {
	p := checkResponse(L)
	n, err := p.Write([]byte(L.CheckString(2)))
	if err != nil {
		return raise(L, err)
	}
	L.Push(lua.LNumber(n))
	return 1
}

// redirect(url[, code=302])
func responseRedirect(L *lua.LState) int {
	p := checkResponse(L)
	if err := p.Redirect(L.CheckString(2), L.OptInt(3, http.StatusFound)); err != nil {
		return raise(L, err)
	}
	return 0
}

func responseCloseConnection(L *lua.LState) int {
	if err := checkResponse(L).CloseConnection(); err != nil {
		return raise(L, err)
	}
	return 0
}

func responseClear(L *lua.LState) int {
	if err := checkResponse(L).Clear(); err != nil {
		return raise(L, err)
	}
	return 0
}

func pushOptString(L *lua.LState, v string, ok bool) {
	if ok {
		L.Push(lua.LString(v))
	} else {
		L.Push(lua.LNil)
	}
}
