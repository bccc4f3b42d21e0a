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
	"go.uber.org/zap"
)

// dispatch is the payload handed from a producer (Poller dispatch, or
// Endpoint.processSocket) to a Worker's mailbox.
type dispatch struct {
	conn  *Conn
	event bool  // event vs normal dispatch
	err   error // carried into event dispatch
}

// worker is a long-lived goroutine that waits on a one-slot mailbox,
// dispatches to the Handler, then returns itself to the pool. The mailbox
// is a buffered channel of capacity 1, the teacher-idiom translation of
// the source's assign/await monitor rendezvous (spec.md §9 "Worker
// mailbox"): exactly one hand-off occupies the channel at a time, and the
// producer (assign) blocks if the consumer hasn't drained the previous
// value, because the pool never hands out a worker whose mailbox a
// recycle hasn't already drained.
type worker struct {
	pool *WorkerPool
	log  *zap.Logger

	mailbox chan dispatch
	quit    chan struct{}
}

func newWorker(pool *WorkerPool) *worker {
	w := &worker{
		pool:    pool,
		log:     pool.log,
		mailbox: make(chan dispatch, 1),
		quit:    make(chan struct{}),
	}
	go w.run()
	return w
}

// assign hands off a socket to this worker. Must only be called on a
// worker freshly returned by WorkerPool.getWorkerThread.
func (w *worker) assign(d dispatch) {
	w.mailbox <- d
}

// stop terminates the worker's goroutine; used once the pool has been
// closed (WorkerPool.Close and recycle after Close). Workers parked waiting on their mailbox
// return promptly.
func (w *worker) stop() {
	close(w.quit)
}

func (w *worker) run() {
	for {
		select {
		case d := <-w.mailbox:
			w.dispatchOne(d)
			w.pool.recycle(w)
		case <-w.quit:
			return
		}
	}
}

func (w *worker) dispatchOne(d dispatch) {
	handler := w.pool.handler
	if handler == nil {
		if d.conn != nil {
			_ = d.conn.Close()
		}
		return
	}

	var state SocketState
	if d.event {
		state = handler.Event(d.conn, d.err)
	} else {
		state = handler.Process(d.conn)
	}

	applyState(d.conn, state, w.pool.useComet)
}

// applyState acts on a Handler's returned SocketState: close, re-arm for
// more reads, or park for long-poll. When useComet is false, StateLong is
// downgraded to StateClosed, since a parked connection with no way back
// into the comet idle-scan-exemption path (spec.md §6 UseComet) would
// otherwise leak. Shared by worker.dispatchOne and the external-executor
// equivalent dispatchWithHandler.
func applyState(conn *Conn, state SocketState, useComet bool) {
	if state == StateLong && !useComet {
		state = StateClosed
	}
	switch state {
	case StateClosed:
		_ = conn.Close()
	case StateOpen:
		_ = conn.Rearm()
	case StateLong:
		conn.markParked()
	}
}

// workerStack is the LIFO free-list of idle workers, kept separate from
// WorkerPool's bookkeeping for clarity.
type workerStack struct {
	items []*worker
}

func (s *workerStack) push(w *worker) { s.items = append(s.items, w) }

func (s *workerStack) pop() *worker {
	n := len(s.items)
	if n == 0 {
		return nil
	}
	w := s.items[n-1]
	s.items[n-1] = nil
	s.items = s.items[:n-1]
	return w
}

func (s *workerStack) len() int { return len(s.items) }
