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

package engine

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/test"
	"github.com/rulego/hotscript/test/assert"
)

// testConfig returns a config whose script root is an empty temporary directory.
func testConfig(t *testing.T, logger types.Logger, opts ...types.Option) types.Config {
	base := []types.Option{
		types.WithScriptDir(t.TempDir()),
		types.WithAppName("app"),
		types.WithLogger(logger),
		types.WithWatchEnabled(false),
		types.WithWatchDebounce(10 * time.Millisecond),
		types.WithProperties(map[string]string{"env": "test"}),
	}
	return types.NewConfig(append(base, opts...)...)
}

// gatedRequest blocks in Method until the gate is closed.
type gatedRequest struct {
	*test.HostRequest
	started chan struct{}
	gate    chan struct{}
}

func (r *gatedRequest) Method() string {
	r.started <- struct{}{}
	<-r.gate
	return r.HostRequest.Method()
}

type gatedContext struct {
	*test.HostContext
	req *gatedRequest
}

func (c *gatedContext) Request() types.HostRequest {
	return c.req
}

func newGatedContext(started, gate chan struct{}) *gatedContext {
	ctx := test.NewHostContext("GET", "http://example.com/", "")
	return &gatedContext{
		HostContext: ctx,
		req:         &gatedRequest{HostRequest: ctx.Req, started: started, gate: gate},
	}
}

const versionScript = `
register(function(req, resp)
  resp:setHeader("X-Version", "%s")
  resp:setHeader("X-Method", req:getMethod())
  return Disposition.FINISH
end)
`

func script(version string) string {
	return fmt.Sprintf(versionScript, version)
}

func TestInstanceLoad(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger)
	path := test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("1"))

	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	defer inst.Close()
	assert.NotEqual(t, "", inst.ID())
	assert.Equal(t, path, inst.Path())
	assert.True(t, inst.HasHandler())
	assert.Equal(t, uint64(1), inst.Loads())
	assert.Equal(t, WatchDisabled, inst.WatchState())

	ctx := test.NewHostContext("GET", "http://example.com/", "")
	result, invoked := inst.Dispatch(ctx.Request(), ctx.Response())
	assert.True(t, invoked)
	assert.Nil(t, result.Err)
	assert.Equal(t, types.FinishCode, result.Code)
	assert.Equal(t, "1", ctx.Resp.Headers.Get("X-Version"))
	assert.Equal(t, 0, len(logger.Lines()))
}

func TestInstancePicksRegisteredExtension(t *testing.T) {
	cfg := testConfig(t, &test.RecordLogger{})
	test.WriteScript(t, cfg.ScriptRoot(), "main.txt", "not a script")
	path := test.WriteScript(t, cfg.ScriptRoot(), "main.js", `register(function () { return Disposition.FINISH; });`)

	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	defer inst.Close()
	assert.Equal(t, path, inst.Path())
	assert.True(t, inst.HasHandler())
}

func TestInstanceWithoutScript(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger)
	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	defer inst.Close()
	assert.Equal(t, "", inst.Path())
	assert.False(t, inst.HasHandler())
	assert.True(t, logger.Contains(types.ErrNoScript.Error()))

	ctx := test.NewHostContext("GET", "http://example.com/", "")
	_, invoked := inst.Dispatch(ctx.Request(), ctx.Response())
	assert.False(t, invoked)
}

func TestInstanceCompileError(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger)
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", "register(function(")
	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	defer inst.Close()
	assert.False(t, inst.HasHandler())
	assert.True(t, logger.Contains("compile error"))
}

func TestInstanceReloadWaitsForDispatch(t *testing.T) {
	cfg := testConfig(t, &test.RecordLogger{})
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("1"))
	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	defer inst.Close()

	started, gate := make(chan struct{}, 1), make(chan struct{})
	ctx := newGatedContext(started, gate)
	dispatched := make(chan struct{})
	go func() {
		defer close(dispatched)
		inst.Dispatch(ctx.Request(), ctx.Response())
	}()
	<-started

	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("2"))
	reloaded := make(chan error, 1)
	go func() { reloaded <- inst.Reload() }()

	select {
	case <-reloaded:
		t.Fatal("reload did not wait for the in-flight dispatch")
	case <-time.After(50 * time.Millisecond):
	}
	close(gate)
	<-dispatched
	assert.Nil(t, <-reloaded)
	assert.Equal(t, "1", ctx.Resp.Headers.Get("X-Version"))

	next := test.NewHostContext("GET", "http://example.com/", "")
	_, invoked := inst.Dispatch(next.Request(), next.Response())
	assert.True(t, invoked)
	assert.Equal(t, "2", next.Resp.Headers.Get("X-Version"))
	assert.Equal(t, uint64(2), inst.Loads())
}

func TestInstanceReloadFailureDropsHandler(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger)
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("1"))
	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	defer inst.Close()
	assert.True(t, inst.HasHandler())

	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", "error('broken')")
	assert.Nil(t, inst.Reload())
	assert.False(t, inst.HasHandler())
	assert.True(t, logger.Contains("broken"))
}

func TestInstanceClose(t *testing.T) {
	cfg := testConfig(t, &test.RecordLogger{})
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("1"))
	inst, err := NewInstance(cfg, nil, nil)
	assert.Nil(t, err)
	inst.Close()
	inst.Close()
	assert.False(t, inst.HasHandler())
	assert.Equal(t, types.ErrRuntimeClosed, inst.Reload())
}

func TestInstanceHotReload(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger, types.WithWatchEnabled(true))
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("1"))
	w := newTestWatcher(t)

	inst, err := NewInstance(cfg, w, NewMetrics("app"))
	assert.Nil(t, err)
	defer inst.Close()
	assert.Equal(t, WatchArmed, inst.WatchState())

	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("2"))
	assert.True(t, test.Eventually(2*time.Second, func() bool {
		ctx := test.NewHostContext("GET", "http://example.com/", "")
		inst.Dispatch(ctx.Request(), ctx.Response())
		return ctx.Resp.Headers.Get("X-Version") == "2"
	}))
	assert.True(t, test.Eventually(time.Second, func() bool { return inst.WatchState() == WatchArmed }))

	// the subscription was renewed, so a second change is picked up too
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("3"))
	assert.True(t, test.Eventually(2*time.Second, func() bool {
		ctx := test.NewHostContext("GET", "http://example.com/", "")
		inst.Dispatch(ctx.Request(), ctx.Response())
		return ctx.Resp.Headers.Get("X-Version") == "3"
	}))

	inst.Close()
	assert.Equal(t, 0, w.Len())
}

func TestInstanceWatchFailure(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger, types.WithWatchEnabled(true), types.WithAppName(filepath.Join("missing", "app")))
	w := newTestWatcher(t)
	inst, err := NewInstance(cfg, w, nil)
	assert.Nil(t, err)
	defer inst.Close()
	assert.Equal(t, WatchDisabled, inst.WatchState())
	assert.True(t, logger.Contains("hot reload disabled"))
}

func TestInstanceRearmFailure(t *testing.T) {
	logger := &test.RecordLogger{}
	cfg := testConfig(t, logger, types.WithWatchEnabled(true))
	test.WriteScript(t, cfg.ScriptRoot(), "main.lua", script("1"))
	w := newTestWatcher(t)
	inst, err := NewInstance(cfg, w, nil)
	assert.Nil(t, err)
	defer inst.Close()

	// closing the watcher makes the renewal after the next firing fail
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
	inst.onChange()
	assert.Equal(t, WatchDisabled, inst.WatchState())
	assert.True(t, logger.Contains("re-subscribe failed"))

	inst.onChange()
	assert.Equal(t, uint64(2), inst.Loads())
}
