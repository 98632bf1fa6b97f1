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
	"sync/atomic"

	"github.com/rulego/hotscript/api/types"
)

// InstanceFactory builds a new interpreter instance on a pool miss.
type InstanceFactory func() (*Instance, error)

// PoolStats is a snapshot of the pool counters.
type PoolStats struct {
	// Hits counts acquisitions served from idle instances.
	Hits uint64
	// Misses counts acquisitions that had to construct an instance.
	Misses uint64
	// Created counts successfully constructed instances.
	Created uint64
	// Failed counts construction failures.
	Failed uint64
	// Destroyed counts instances closed because the pool was full or stopped.
	Destroyed uint64
	// Idle is the number of pooled instances.
	Idle int
}

// Pool keeps a bounded set of idle interpreter instances so that requests do
// not pay the runtime construction cost. Acquire and Release are lock-free and
// safe for concurrent use; the only structure shared without an instance lock
// is the idle ring.
//
// Pool 保存有界数量的空闲解释器实例，避免每个请求都构建运行时。
// Acquire 与 Release 无锁且并发安全。
//
// Every instance carries a state tag that changes only by CAS:
//
//	Idle -> InUse      Acquire popped it
//	InUse -> Idle      Release pushed it back
//	Idle -> Destroyed  ring full, or pool stopped
//
// so an instance can never be handed out twice.
type Pool struct {
	ring        *ring
	maxSize     int
	newInstance InstanceFactory
	logger      types.Logger
	stopped     atomic.Bool

	hits      atomic.Uint64
	misses    atomic.Uint64
	created   atomic.Uint64
	failed    atomic.Uint64
	destroyed atomic.Uint64
}

// NewPool creates a pool keeping at most maxSize idle instances.
func NewPool(maxSize int, factory InstanceFactory, logger types.Logger) *Pool {
	if maxSize <= 0 {
		maxSize = types.DefaultMaxPoolSize
	}
	if logger == nil {
		logger = types.DefaultLogger()
	}
	return &Pool{
		ring:        newRing(maxSize),
		maxSize:     maxSize,
		newInstance: factory,
		logger:      logger,
	}
}

// Acquire returns an idle instance or constructs a new one. The returned
// instance is InUse and must be given back with Release exactly once.
// ok is false when the pool is stopped or construction failed; the failure is logged.
func (p *Pool) Acquire() (inst *Instance, ok bool) {
	if p.stopped.Load() {
		p.logger.Printf("pool: acquire: %v", types.ErrPoolStopped)
		return nil, false
	}
	for {
		inst, ok = p.ring.pop()
		if !ok {
			break
		}
		if inst.casState(StateIdle, StateInUse) {
			p.hits.Add(1)
			return inst, true
		}
		p.logger.Printf("pool: discarded instance %s in state %s", inst.ID(), inst.State())
	}

	p.misses.Add(1)
	inst, err := p.newInstance()
	if err != nil {
		p.failed.Add(1)
		p.logger.Printf("pool: create instance: %v", err)
		return nil, false
	}
	p.created.Add(1)
	inst.setState(StateInUse)
	return inst, true
}

// Release returns inst to the pool. When the pool is full or stopped the
// instance is destroyed instead.
func (p *Pool) Release(inst *Instance) {
	if inst == nil {
		return
	}
	if !inst.casState(StateInUse, StateIdle) {
		p.logger.Printf("pool: release of instance %s in state %s", inst.ID(), inst.State())
		return
	}
	if p.stopped.Load() || !p.ring.push(inst) {
		p.destroy(inst)
		return
	}
	// Stop may have drained the ring between the check and the push.
	if p.stopped.Load() {
		p.drain()
	}
}

// Stop destroys every idle instance. Instances released afterwards are
// destroyed and Acquire reports no instance.
func (p *Pool) Stop() {
	p.stopped.Store(true)
	p.drain()
}

// Stopped reports whether Stop was called.
func (p *Pool) Stopped() bool {
	return p.stopped.Load()
}

// Len returns the number of idle instances.
func (p *Pool) Len() int {
	return p.ring.len()
}

// MaxSize returns the idle capacity.
func (p *Pool) MaxSize() int {
	return p.maxSize
}

// Stats returns a snapshot of the pool counters.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Hits:      p.hits.Load(),
		Misses:    p.misses.Load(),
		Created:   p.created.Load(),
		Failed:    p.failed.Load(),
		Destroyed: p.destroyed.Load(),
		Idle:      p.Len(),
	}
}

func (p *Pool) drain() {
	for {
		inst, ok := p.ring.pop()
		if !ok {
			return
		}
		p.destroy(inst)
	}
}

func (p *Pool) destroy(inst *Instance) {
	if !inst.casState(StateIdle, StateDestroyed) {
		return
	}
	inst.Close()
	p.destroyed.Add(1)
}
