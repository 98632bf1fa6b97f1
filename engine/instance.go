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
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/hotscript/api/types"
	"github.com/rulego/hotscript/binding"
	"github.com/rulego/hotscript/utils/fs"
)

// State is the pool state tag of an instance.
type State int32

const (
	// StateIdle instances wait in the pool.
	StateIdle State = iota
	// StateInUse instances are owned by exactly one caller of Acquire.
	StateInUse
	// StateDestroyed instances are closed and never handed out again.
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateInUse:
		return "InUse"
	case StateDestroyed:
		return "Destroyed"
	default:
		return "Unknown"
	}
}

// WatchState is the hot reload state of an instance.
//
//	Armed -> Firing      a change was notified, the script is reloading
//	Firing -> Rearmed    the one-shot subscription was renewed
//	Rearmed -> Armed
//	Firing -> Disabled   renewing failed, the instance never reloads again
type WatchState int32

const (
	WatchArmed WatchState = iota
	WatchFiring
	WatchRearmed
	WatchDisabled
)

func (s WatchState) String() string {
	switch s {
	case WatchArmed:
		return "Armed"
	case WatchFiring:
		return "Firing"
	case WatchRearmed:
		return "Rearmed"
	case WatchDisabled:
		return "Disabled"
	default:
		return "Unknown"
	}
}

// Instance is one script interpreter with its execution lock. The lock
// serializes handler invocations and reloads, so a reload waits for an
// in-flight dispatch and a dispatch never observes a half loaded script.
//
// Instance 是一个脚本解释器实例，执行锁保证同一时刻只有一个调用或重载在使用该解释器。
type Instance struct {
	id      string
	config  types.Config
	logger  types.Logger
	watcher *Watcher
	metrics *Metrics

	state      atomic.Int32
	watchState atomic.Int32
	loads      atomic.Uint64

	// mu is the execution lock; it guards runtime, path and closed.
	mu      sync.Mutex
	runtime binding.Runtime
	path    string
	closed  bool

	subMu     sync.Mutex
	sub       *Subscription
	unwatched bool
}

// NewInstance builds an instance: it creates the runtime for the backing
// script, runs the script and subscribes to changes of its directory.
// A script that is missing or fails to run is logged and leaves the instance
// without a handler. An error is returned only when the runtime itself
// cannot be constructed.
func NewInstance(config types.Config, watcher *Watcher, metrics *Metrics) (*Instance, error) {
	id, err := uuid.NewV4()
	if err != nil {
		return nil, fmt.Errorf("create instance id: %w", err)
	}
	logger := config.Logger
	if logger == nil {
		logger = types.DefaultLogger()
	}
	inst := &Instance{
		id:      id.String(),
		config:  config,
		logger:  logger,
		watcher: watcher,
		metrics: metrics,
	}
	if err := inst.load(); err != nil {
		return nil, err
	}

	if !config.WatchEnabled || watcher == nil {
		inst.watchState.Store(int32(WatchDisabled))
		return inst, nil
	}
	if err := inst.watch(); err != nil {
		inst.watchState.Store(int32(WatchDisabled))
		logger.Printf("instance %s: hot reload disabled: %v", inst.id, err)
	}
	return inst, nil
}

// ID returns the instance id.
func (i *Instance) ID() string {
	return i.id
}

// State returns the pool state tag.
func (i *Instance) State() State {
	return State(i.state.Load())
}

// WatchState returns the hot reload state.
func (i *Instance) WatchState() WatchState {
	return WatchState(i.watchState.Load())
}

// Loads returns how many times the script was loaded, counting construction.
func (i *Instance) Loads() uint64 {
	return i.loads.Load()
}

// Path returns the backing script path, empty when no script was found.
func (i *Instance) Path() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.path
}

// HasHandler reports whether the script registered a begin-request handler.
func (i *Instance) HasHandler() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.runtime != nil && i.runtime.HasHandler()
}

// Dispatch invokes the registered handler with proxies bound to req and resp.
// It holds the execution lock for the whole call and invalidates both proxies
// before the lock is released. invoked is false when there is no handler.
func (i *Instance) Dispatch(req types.HostRequest, resp types.HostResponse) (result binding.Result, invoked bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed || i.runtime == nil || !i.runtime.HasHandler() {
		return binding.Result{}, false
	}
	reqProxy := binding.NewRequestProxy(req)
	respProxy := binding.NewResponseProxy(resp)
	defer respProxy.Invalidate()
	defer reqProxy.Invalidate()
	return i.runtime.Invoke(reqProxy, respProxy), true
}

// Reload discards the runtime and every script reference it holds, then
// builds a fresh runtime and runs the script again. It waits for an
// in-flight dispatch on this instance. A script that fails to run leaves the
// instance without a handler.
func (i *Instance) Reload() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return types.ErrRuntimeClosed
	}
	if i.runtime != nil {
		i.runtime.Close()
		i.runtime = nil
	}
	return i.load()
}

// Close cancels the change subscription and releases the runtime.
func (i *Instance) Close() {
	i.unwatch()
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	i.closed = true
	if i.runtime != nil {
		i.runtime.Close()
		i.runtime = nil
	}
}

// load runs with the execution lock held, or before the instance is shared.
func (i *Instance) load() error {
	i.loads.Add(1)
	path, err := fs.FindFile(i.config.ScriptRoot(), i.config.ScriptPattern, binding.Registry.Has)
	if err != nil {
		i.path = ""
		i.logger.Printf("instance %s: %v: %v", i.id, types.ErrNoScript, err)
		return nil
	}
	rt, err := binding.Registry.New(path, binding.Options{Logger: i.logger, Properties: i.config.Properties})
	if err != nil {
		return fmt.Errorf("create runtime for %s: %w", path, err)
	}
	i.runtime = rt
	i.path = path

	src, err := os.ReadFile(path)
	if err != nil {
		i.logger.Printf("instance %s: read script: %v", i.id, err)
		return nil
	}
	if err := rt.Exec(path, src); err != nil {
		i.metrics.scriptError(err)
		i.logger.Printf("instance %s: %v", i.id, err)
	}
	return nil
}

func (i *Instance) watch() error {
	i.subMu.Lock()
	defer i.subMu.Unlock()
	if i.unwatched {
		return types.ErrRuntimeClosed
	}
	sub, err := i.watcher.Subscribe(i.config.ScriptRoot(), i.onChange)
	if err != nil {
		return err
	}
	i.sub = sub
	return nil
}

func (i *Instance) unwatch() {
	i.subMu.Lock()
	defer i.subMu.Unlock()
	i.unwatched = true
	if i.sub != nil {
		i.sub.Cancel()
		i.sub = nil
	}
}

// onChange runs on the watcher's firing goroutine.
func (i *Instance) onChange() {
	for {
		s := i.watchState.Load()
		if WatchState(s) == WatchDisabled {
			return
		}
		if i.watchState.CompareAndSwap(s, int32(WatchFiring)) {
			break
		}
	}

	err := i.Reload()
	if errors.Is(err, types.ErrRuntimeClosed) {
		i.watchState.Store(int32(WatchDisabled))
		return
	}
	i.metrics.reloaded(err)
	if err != nil {
		i.logger.Printf("instance %s: reload: %v", i.id, err)
	}

	if err := i.watch(); err != nil {
		i.watchState.Store(int32(WatchDisabled))
		if !errors.Is(err, types.ErrRuntimeClosed) {
			i.logger.Printf("instance %s: re-subscribe failed, hot reload disabled: %v", i.id, err)
		}
		return
	}
	if i.watchState.CompareAndSwap(int32(WatchFiring), int32(WatchRearmed)) {
		i.watchState.CompareAndSwap(int32(WatchRearmed), int32(WatchArmed))
	}
}

func (i *Instance) casState(from, to State) bool {
	return i.state.CompareAndSwap(int32(from), int32(to))
}

func (i *Instance) setState(s State) {
	i.state.Store(int32(s))
}
