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

// Package engine hosts the script interpreters that intercept host requests.
//
// An Engine owns a Pool of Instance values, a Dispatcher that runs the
// begin-request handler of a pooled instance, and a Watcher that reloads
// instances when their script directory changes.
//
// engine 包负责：
//   - 管理解释器实例池（Pool）
//   - 按实例加锁的请求分发（Dispatcher）
//   - 脚本目录变更时的热重载（Watcher）
//
// Usage:
//
//	e, err := engine.New(types.NewConfig(types.WithScriptDir("scripts"), types.WithAppName("shop")))
//	if err != nil {
//		return err
//	}
//	defer e.Stop()
//	if e.BeginRequest(ctx) == types.FinishRequest {
//		return
//	}
package engine

import (
	"fmt"
	"sync"

	"github.com/rulego/hotscript/api/types"

	_ "github.com/rulego/hotscript/binding/js"
	_ "github.com/rulego/hotscript/binding/lua"
)

var _ types.Interceptor = (*Engine)(nil)

// Engine is the module instance the host creates at start and stops at shutdown.
type Engine struct {
	config     types.Config
	watcher    *Watcher
	pool       *Pool
	dispatcher *Dispatcher
	metrics    *Metrics
	stopOnce   sync.Once
}

// New creates an engine from config, after applying opts.
// Instances are created lazily on the first requests.
func New(config types.Config, opts ...types.Option) (*Engine, error) {
	for _, opt := range opts {
		if err := opt(&config); err != nil {
			return nil, err
		}
	}
	if config.MaxPoolSize <= 0 {
		return nil, fmt.Errorf("invalid max pool size %d", config.MaxPoolSize)
	}
	if config.ScriptPattern == "" {
		config.ScriptPattern = types.DefaultScriptPattern
	}
	if config.Logger == nil {
		config.Logger = types.DefaultLogger()
	}

	e := &Engine{
		config:  config,
		metrics: NewMetrics(config.AppName),
	}
	if config.WatchEnabled {
		w, err := NewWatcher(config.Logger, config.WatchDebounce)
		if err != nil {
			config.Logger.Printf("engine: hot reload disabled: %v", err)
		} else {
			e.watcher = w
		}
	}
	e.pool = NewPool(config.MaxPoolSize, e.newInstance, config.Logger)
	e.dispatcher = NewDispatcher(e.pool, config.Logger, e.metrics)

	if config.Registerer != nil {
		if err := e.metrics.Register(config.Registerer, e.pool); err != nil {
			e.Stop()
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return e, nil
}

func (e *Engine) newInstance() (*Instance, error) {
	return NewInstance(e.config, e.watcher, e.metrics)
}

// BeginRequest runs the begin-request handler for ctx.
func (e *Engine) BeginRequest(ctx types.HostContext) types.Disposition {
	return e.dispatcher.BeginRequest(ctx)
}

// Config returns the effective configuration.
func (e *Engine) Config() types.Config {
	return e.config
}

// Pool returns the instance pool.
func (e *Engine) Pool() *Pool {
	return e.pool
}

// Stop closes the watcher and destroys every idle instance. Instances still
// in use are destroyed when released.
func (e *Engine) Stop() {
	e.stopOnce.Do(func() {
		if e.watcher != nil {
			if err := e.watcher.Close(); err != nil {
				e.config.Logger.Printf("engine: close watcher: %v", err)
			}
		}
		e.pool.Stop()
	})
}
