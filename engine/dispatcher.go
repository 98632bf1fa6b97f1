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
	"runtime/debug"

	"github.com/rulego/hotscript/api/types"
)

var _ types.Interceptor = (*Dispatcher)(nil)

// Dispatcher runs the begin-request handler of a pooled instance for each
// host request. It is safe for concurrent use; concurrency is bounded per
// instance by the instance's execution lock and spread across instances by the pool.
//
// Dispatcher 为每个请求从池中取出实例并调用脚本注册的处理函数。
type Dispatcher struct {
	pool    *Pool
	logger  types.Logger
	metrics *Metrics
}

// NewDispatcher creates a dispatcher over pool. metrics may be nil.
func NewDispatcher(pool *Pool, logger types.Logger, metrics *Metrics) *Dispatcher {
	if logger == nil {
		logger = types.DefaultLogger()
	}
	return &Dispatcher{pool: pool, logger: logger, metrics: metrics}
}

// BeginRequest hands the request to the script handler and returns its disposition.
// No failure crosses into the host: a missing instance, a missing handler,
// a script error and a panic all yield Continue. The instance lock and the
// instance itself are released on every path.
func (d *Dispatcher) BeginRequest(ctx types.HostContext) (disposition types.Disposition) {
	disposition = types.Continue
	defer func() {
		if e := recover(); e != nil {
			d.logger.Printf("dispatch: panic: %v\n%s", e, debug.Stack())
			disposition = types.Continue
		}
	}()
	if ctx == nil {
		return
	}
	req, resp := ctx.Request(), ctx.Response()
	if req == nil || resp == nil {
		return
	}

	inst, ok := d.pool.Acquire()
	if !ok {
		return
	}
	defer d.pool.Release(inst)

	result, invoked := inst.Dispatch(req, resp)
	if !invoked {
		d.metrics.disposition(disposition)
		return
	}
	if result.Err != nil {
		d.metrics.scriptError(result.Err)
		d.logger.Printf("dispatch: instance %s: %v", inst.ID(), result.Err)
	}
	disposition, known := result.Disposition()
	if !known {
		d.metrics.unknownCode()
		d.logger.Printf("dispatch: instance %s: handler returned unknown code %d, continuing", inst.ID(), result.Code)
	}
	d.metrics.disposition(disposition)
	return disposition
}
