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
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/walkon/gnet/errs"
)

// WorkerPool is a bounded LIFO stack of idle workers plus (current, busy)
// counters. It grows lazily up to maxThreads and blocks requesters when
// saturated, the back-pressure point called out in spec.md §4.4.
//
// Invariant: 0 <= busy <= current <= maxThreads at every lock release (or
// maxThreads < 0, unbounded). Grounded in idiom on the teacher's
// github.com/panjf2000/ants/v2 dependency (LIFO free list, capacity
// governor) though hand-rolled: ants' own pool type doesn't expose the
// mailbox hand-off or idle-scan-exemption semantics this spec requires.
type WorkerPool struct {
	log *zap.Logger

	mu    sync.Mutex
	cond  *sync.Cond
	stack workerStack

	maxThreads int // < 0 means unbounded
	current    atomic.Int64
	busy       atomic.Int64

	handler  Handler
	useComet bool
	closed   bool
}

// NewWorkerPool creates a pool with the given maxThreads ceiling (< 0 for
// unbounded) dispatching to handler. useComet gates whether a Handler may
// park a connection via StateLong (spec.md §6 UseComet); when false,
// StateLong is treated as StateClosed.
func NewWorkerPool(maxThreads int, handler Handler, useComet bool, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	p := &WorkerPool{
		log:        log,
		maxThreads: maxThreads,
		handler:    handler,
		useComet:   useComet,
	}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Acquire blocks until a worker is available (growing the pool if under
// maxThreads) and assigns d to it. This is the single back-pressure point
// in the endpoint: a caller with maxThreads=1 and one in-flight connection
// blocks here until that connection's handler returns.
func (p *WorkerPool) Acquire(d dispatch) error {
	w, err := p.getWorkerThread()
	if err != nil {
		return err
	}
	w.assign(d)
	return nil
}

// getWorkerThread implements spec.md §4.4's createWorkerThread/getWorkerThread
// pairing: pop an idle worker if any; else grow if under the ceiling; else
// wait on the pool's condition variable for one to be recycled.
func (p *WorkerPool) getWorkerThread() (*worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return nil, errs.ErrEndpointClosed
		}
		if w := p.stack.pop(); w != nil {
			p.busy.Inc()
			return w, nil
		}
		if p.maxThreads < 0 || int(p.current.Load()) < p.maxThreads {
			w := newWorker(p)
			p.current.Inc()
			p.busy.Inc()
			return w, nil
		}
		p.cond.Wait()
	}
}

// recycle returns w to the pool, decrements busy, and signals one waiter.
// Called by the worker's own goroutine after a dispatch completes.
func (p *WorkerPool) recycle(w *worker) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		w.stop()
		return
	}
	p.stack.push(w)
	p.busy.Dec()
	p.mu.Unlock()
	p.cond.Signal()
}

// Current returns the number of workers ever created (current <= maxThreads).
func (p *WorkerPool) Current() int { return int(p.current.Load()) }

// Busy returns the number of workers currently processing a dispatch.
func (p *WorkerPool) Busy() int { return int(p.busy.Load()) }

// Close stops accepting new work, waking every blocked Acquire with an
// error, and terminates all idle workers. In-flight workers finish their
// current dispatch (their mailbox send already happened) and are stopped
// when they next try to recycle.
func (p *WorkerPool) Close() {
	p.mu.Lock()
	p.closed = true
	for {
		w := p.stack.pop()
		if w == nil {
			break
		}
		w.stop()
	}
	p.mu.Unlock()
	p.cond.Broadcast()
}
