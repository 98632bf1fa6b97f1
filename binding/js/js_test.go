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
	"errors"
	"strings"
	"testing"

	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/binding"
	"github.com/rulego/hotscript/test"
	"github.com/rulego/hotscript/test/assert"
)

func newRuntime(t *testing.T, logger types.Logger, src string) *Runtime {
	rt, err := New(binding.Options{Logger: logger, Properties: map[string]string{"env": "test"}})
	assert.Nil(t, err)
	r := rt.(*Runtime)
	t.Cleanup(r.Close)
	if src != "" {
		assert.Nil(t, r.Exec("main.js", []byte(src)))
	}
	return r
}

func invoke(r *Runtime, ctx *test.HostContext) binding.Result {
	req := binding.NewRequestProxy(ctx.Request())
	resp := binding.NewResponseProxy(ctx.Response())
	defer req.Invalidate()
	defer resp.Invalidate()
	return r.Invoke(req, resp)
}

func TestRegistered(t *testing.T) {
	assert.True(t, binding.Registry.Has("main.js"))
}

func TestInvokeFinish(t *testing.T) {
	r := newRuntime(t, nil, `
register(function (req, resp) {
    resp.setStatus(201);
    resp.setHeader("X-Method", req.getMethod());
    resp.write("hello " + req.getAbsUrl());
    return Disposition.FINISH;
});
`)
	assert.True(t, r.HasHandler())
	ctx := test.NewHostContext("POST", "http://example.com/a/b?x=1", "")
	result := invoke(r, ctx)
	assert.Nil(t, result.Err)
	d, known := result.Disposition()
	assert.True(t, known)
	assert.Equal(t, types.FinishRequest, d)
	assert.Equal(t, 201, ctx.Resp.StatusCode)
	assert.Equal(t, "POST", ctx.Resp.Headers.Get("X-Method"))
	assert.Equal(t, "hello /a/b", ctx.Resp.Body.String())
}

func TestNoHandler(t *testing.T) {
	r := newRuntime(t, nil, `var x = 1;`)
	assert.False(t, r.HasHandler())
	result := invoke(r, test.NewHostContext("GET", "http://example.com/", ""))
	assert.Nil(t, result.Err)
	assert.False(t, result.HasCode)
}

func TestRegisterReplaces(t *testing.T) {
	r := newRuntime(t, nil, `
register(function () { return Disposition.FINISH; });
register(function () { return Disposition.CONTINUE; });
`)
	result := invoke(r, test.NewHostContext("GET", "http://example.com/", ""))
	assert.True(t, result.HasCode)
	assert.Equal(t, types.ContinueCode, result.Code)
}

func TestRegisterRejectsNonFunction(t *testing.T) {
	r := newRuntime(t, nil, "")
	err := r.Exec("main.js", []byte(`register(42);`))
	assert.NotNil(t, err)
	assert.False(t, r.HasHandler())
}

func TestConstantsReadOnly(t *testing.T) {
	r := newRuntime(t, nil, "")
	err := r.Exec("main.js", []byte(`Disposition.FINISH = 7;`))
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), types.ErrReadOnly.Error()))

	assert.NotNil(t, r.Exec("main.js", []byte(`delete Disposition.CONTINUE;`)))
	assert.NotNil(t, r.Exec("main.js", []byte(`global.env = "prod";`)))

	assert.Nil(t, r.Exec("main.js", []byte(`
if (Disposition.FINISH !== 1 || Disposition.CONTINUE !== 0) { throw new Error("changed"); }
if (global.env !== "test") { throw new Error("global changed"); }
if (Object.keys(Disposition).join(",") !== "CONTINUE,FINISH") { throw new Error("keys"); }
`)))
}

func TestScriptErrorKinds(t *testing.T) {
	r := newRuntime(t, nil, "")
	err := r.Exec("main.js", []byte(`this is not js`))
	var se *types.ScriptError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, types.KindCompile, se.Kind)

	assert.Nil(t, r.Exec("main.js", []byte(`register(function () { throw new Error("boom"); });`)))
	result := invoke(r, test.NewHostContext("GET", "http://example.com/", ""))
	assert.True(t, errors.As(result.Err, &se))
	assert.Equal(t, types.KindRuntime, se.Kind)
	assert.True(t, strings.Contains(se.Error(), "boom"))
	d, _ := result.Disposition()
	assert.Equal(t, types.Continue, d)
}

func TestHostErrorPropagates(t *testing.T) {
	r := newRuntime(t, nil, `
register(function (req, resp) {
    resp.write("partial");
    resp.setStatus(500);
    return Disposition.FINISH;
});
`)
	ctx := test.NewHostContext("GET", "http://example.com/", "")
	result := invoke(r, ctx)
	var se *types.ScriptError
	assert.True(t, errors.As(result.Err, &se))
	assert.Equal(t, types.KindHostAPI, se.Kind)
	var he *types.HostError
	assert.True(t, errors.As(result.Err, &he))
	assert.Equal(t, types.HostCodeHeadersSent, he.Code)
}

func TestHostErrorCaughtByScript(t *testing.T) {
	logger := &test.RecordLogger{}
	r := newRuntime(t, logger, `
register(function (req, resp) {
    try {
        req.setHeader("X-A", "1");
    } catch (e) {
        dprint("caught", e.code, e.op);
    }
    return Disposition.CONTINUE;
});
`)
	ctx := test.NewHostContext("GET", "http://example.com/", "")
	ctx.Req.Fail["setHeader"] = errors.New("denied")
	result := invoke(r, ctx)
	assert.Nil(t, result.Err)
	assert.True(t, logger.Contains("[script] caught\t1\tsetHeader"))
}

func TestProxyInvalidAfterInvoke(t *testing.T) {
	r := newRuntime(t, nil, `
var stash = null;
register(function (req, resp) {
    stash = req;
    return Disposition.CONTINUE;
});
`)
	result := invoke(r, test.NewHostContext("GET", "http://example.com/", ""))
	assert.Nil(t, result.Err)
	err := r.Exec("main.js", []byte(`stash.getMethod();`))
	assert.NotNil(t, err)
	assert.True(t, strings.Contains(err.Error(), types.ErrProxyInvalid.Error()))
}

func TestRequestSurface(t *testing.T) {
	logger := &test.RecordLogger{}
	r := newRuntime(t, logger, `
register(function (req, resp) {
    dprint(req.getFullUrl(), req.getHostUrl(), req.getQueryString());
    dprint(req.getLocalAddress(), req.getRemoteAddress());
    dprint(req.read(true));
    req.setHeader("X-Trace", "a");
    req.setHeader("X-Trace", "b", false);
    dprint(req.getHeader("x-trace"), req.getHeader("missing"));
    req.deleteHeader("X-Trace");
    req.setUrl("/rewritten", false);
    return true;
});
`)
	ctx := test.NewHostContext("PUT", "http://example.com/p?q=1", "payload")
	result := invoke(r, ctx)
	assert.Nil(t, result.Err)
	assert.Equal(t, types.FinishCode, result.Code)
	assert.True(t, logger.Contains("http://example.com/p?q=1\texample.com\tq=1"))
	assert.True(t, logger.Contains("127.0.0.1\t10.0.0.7"))
	assert.True(t, logger.Contains("[script] payload"))
	assert.True(t, logger.Contains("a,b\tnull"))
	_, ok := ctx.Req.Header("X-Trace")
	assert.False(t, ok)
	assert.Equal(t, "/rewritten", ctx.Req.URL().Path)
	assert.Equal(t, "q=1", ctx.Req.URL().RawQuery)
}

func TestResponseSurface(t *testing.T) {
	r := newRuntime(t, nil, `
register(function (req, resp) {
    resp.setHeader("X-Temp", "1");
    resp.clear();
    resp.redirect("/login", 307);
    resp.closeConnection();
    return resp.status();
});
`)
	ctx := test.NewHostContext("GET", "http://example.com/", "")
	result := invoke(r, ctx)
	assert.Nil(t, result.Err)
	assert.Equal(t, 307, result.Code)
	_, known := result.Disposition()
	assert.False(t, known)
	assert.Equal(t, "/login", ctx.Resp.Headers.Get("Location"))
	assert.Equal(t, "", ctx.Resp.Headers.Get("X-Temp"))
	assert.True(t, ctx.Resp.Closed)
}

func TestClose(t *testing.T) {
	r := newRuntime(t, nil, `register(function () { return 1; });`)
	r.Close()
	assert.False(t, r.HasHandler())
	result := invoke(r, test.NewHostContext("GET", "http://example.com/", ""))
	assert.False(t, result.HasCode)
	var se *types.ScriptError
	assert.True(t, errors.As(r.Exec("main.js", nil), &se))
}
