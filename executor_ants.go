// Copyright (c) 2019 Andy Pan
// Copyright (c) 2018 Joshua J Baker
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package gnet

import (
	"github.com/panjf2000/ants/v2"
)

// AntsExecutor adapts an ants.Pool to the Executor interface, giving the
// "external executor" alternative in §4.4 a concrete, ready-to-use
// implementation instead of requiring every embedder to write their own.
type AntsExecutor struct {
	pool *ants.Pool
}

// NewAntsExecutor builds an AntsExecutor backed by an ants.Pool with the
// given capacity. A non-positive size means unbounded, matching ants'
// own convention.
func NewAntsExecutor(size int) (*AntsExecutor, error) {
	opts := ants.Options{
		PreAlloc:       false,
		Nonblocking:    false,
		ExpiryDuration: 0,
	}
	var pool *ants.Pool
	var err error
	if size <= 0 {
		pool, err = ants.NewPool(ants.DefaultAntsPoolSize, ants.WithOptions(opts))
	} else {
		pool, err = ants.NewPool(size, ants.WithOptions(opts))
	}
	if err != nil {
		return nil, err
	}
	return &AntsExecutor{pool: pool}, nil
}

// Submit implements Executor.
func (e *AntsExecutor) Submit(task func()) error {
	return e.pool.Submit(task)
}

// Running returns the number of currently running goroutines in the pool,
// exposed for observability parity with WorkerPool.Busy.
func (e *AntsExecutor) Running() int {
	return e.pool.Running()
}

// Release tears down the underlying ants.Pool. Endpoint never calls it;
// whoever created the AntsExecutor releases it.
func (e *AntsExecutor) Release() {
	e.pool.Release()
}
