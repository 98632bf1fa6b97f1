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
)

// ring is a bounded multi-producer multi-consumer queue of idle instances.
// Each cell carries a sequence number that tells producers and consumers
// whether the cell is free for the lap they are on, so push and pop only
// need a CAS on the shared position and never allocate.
//
// ring 是空闲实例的有界多生产者多消费者队列，push 和 pop 均无锁且不分配内存。
type ring struct {
	cells []cell
	size  uint64
	_     [56]byte
	enq   atomic.Uint64
	_     [56]byte
	deq   atomic.Uint64
	_     [56]byte
}

type cell struct {
	seq  atomic.Uint64
	inst *Instance
}

func newRing(size int) *ring {
	if size < 1 {
		size = 1
	}
	r := &ring{
		cells: make([]cell, size),
		size:  uint64(size),
	}
	for i := range r.cells {
		r.cells[i].seq.Store(uint64(i))
	}
	return r
}

// push adds inst and reports false when the ring is full.
func (r *ring) push(inst *Instance) bool {
	pos := r.enq.Load()
	for {
		c := &r.cells[pos%r.size]
		seq := c.seq.Load()
		switch dif := int64(seq) - int64(pos); {
		case dif == 0:
			if r.enq.CompareAndSwap(pos, pos+1) {
				c.inst = inst
				c.seq.Store(pos + 1)
				return true
			}
			pos = r.enq.Load()
		case dif < 0:
			return false
		default:
			pos = r.enq.Load()
		}
	}
}

// pop removes the oldest instance and reports false when the ring is empty.
func (r *ring) pop() (*Instance, bool) {
	pos := r.deq.Load()
	for {
		c := &r.cells[pos%r.size]
		seq := c.seq.Load()
		switch dif := int64(seq) - int64(pos+1); {
		case dif == 0:
			if r.deq.CompareAndSwap(pos, pos+1) {
				inst := c.inst
				c.inst = nil
				c.seq.Store(pos + r.size)
				return inst, true
			}
			pos = r.deq.Load()
		case dif < 0:
			return nil, false
		default:
			pos = r.deq.Load()
		}
	}
}

// len returns the approximate number of queued instances.
func (r *ring) len() int {
	deq := r.deq.Load()
	enq := r.enq.Load()
	if enq <= deq {
		return 0
	}
	n := enq - deq
	if n > r.size {
		n = r.size
	}
	return int(n)
}
