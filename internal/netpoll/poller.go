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

// Package netpoll implements the endpoint's selector (epoll on Linux,
// kqueue on BSD/Darwin) and the single-writer event loop built on top of
// it: one goroutine owns the selector, every other goroutine mutates
// interest sets by enqueueing a closure and waking the selector, per
// spec.md §4.3's "Threading discipline".
package netpoll

import (
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/walkon/gnet/errs"
)

// readyEvent is a single OS-reported readiness notification, normalized
// across the epoll/kqueue backends.
type readyEvent struct {
	fd       int
	readable bool
	writable bool
	hup      bool
	errFlag  bool
}

// backend is implemented once per OS family (poller_linux.go, poller_bsd.go).
type backend interface {
	close() error
	wakeup() error
	addRead(fd int) error
	rearmRead(fd int) error
	disableRead(fd int) error
	remove(fd int) error
	wait(timeout time.Duration) ([]readyEvent, error)
}

// EventHandler receives normalized readiness callbacks from the Poller's
// main loop. Implemented by the root package's dispatch glue so that
// netpoll stays free of any knowledge of Handler/Conn/WorkerPool.
type EventHandler interface {
	// OnReadable is called when fd has data to read and is not a comet
	// wake-up release (that case is handled internally by the Poller).
	OnReadable(fd int, att *KeyAttachment)
	// OnCancelled is called when fd's key has been cancelled, either by
	// the idle-timeout scan or a CancelledKeyException-equivalent error.
	OnCancelled(fd int, att *KeyAttachment, err error)
}

// Poller owns one selector and the events FIFO that external goroutines
// use to request registration/re-arm/cancellation without racing the
// poller goroutine.
type Poller struct {
	log *zap.Logger
	be  backend

	selectorTimeout time.Duration
	soTimeout       time.Duration

	mu     sync.Mutex
	events []func()

	closed    atomic.Bool
	closeOnce sync.Once
	doneCh    chan struct{}

	keysMu sync.RWMutex // guards keys map membership only; fields within a
	keys   map[int]*KeyAttachment // KeyAttachment are owned per §3/§4.3

	keepAliveCount atomic.Int64

	handler EventHandler
}

// newPoller is called by the per-OS Open function.
func newPoller(be backend, log *zap.Logger, selectorTimeout, soTimeout time.Duration) *Poller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{
		log:             log,
		be:              be,
		selectorTimeout: selectorTimeout,
		soTimeout:       soTimeout,
		doneCh:          make(chan struct{}),
		keys:            make(map[int]*KeyAttachment),
	}
}

// SetHandler installs the readiness callback target. Must be called before Run.
func (p *Poller) SetHandler(h EventHandler) { p.handler = h }

// enqueue pushes action onto the events FIFO and wakes the selector,
// matching spec.md §4.3's "enqueue under the events mutex, then wakeup()".
func (p *Poller) enqueue(action func()) error {
	if p.closed.Load() {
		return errs.ErrPollerClosed
	}
	p.mu.Lock()
	p.events = append(p.events, action)
	p.mu.Unlock()
	return p.be.wakeup()
}

// Register enqueues registration of fd for READ readiness with a fresh
// KeyAttachment whose comet flag starts as given; MarkComet can promote
// the key into comet mode later.
func (p *Poller) Register(fd int, comet bool) error {
	return p.enqueue(func() {
		att := NewKeyAttachment(fd, comet)
		p.keysMu.Lock()
		p.keys[fd] = att
		p.keysMu.Unlock()
		p.keepAliveCount.Inc()
		if err := p.be.addRead(fd); err != nil {
			p.log.Debug("register addRead failed", zap.Int("fd", fd), zap.Error(err))
			p.cancelLocked(fd, err)
		}
	})
}

// Add re-arms fd for READ readiness (the "re-arm" operation workers call
// when a connection returns to the poller awaiting more client data).
// Clears WakeUp first, per spec.md §4.3 "Re-arm (add)".
func (p *Poller) Add(fd int) error {
	return p.enqueue(func() {
		p.keysMu.RLock()
		att, ok := p.keys[fd]
		p.keysMu.RUnlock()
		if !ok {
			return
		}
		att.wakeUp.Store(false)
		att.SetParked(false)
		if err := p.be.rearmRead(fd); err != nil {
			p.log.Debug("add rearmRead failed", zap.Int("fd", fd), zap.Error(err))
			p.cancelLocked(fd, err)
		}
	})
}

// MarkParked flips Parked without touching the selector. Conn.markParked
// calls it when a Handler returns StateLong so the idle-timeout scan keeps
// exempting the key; the poller's own dispatch sets Parked directly before
// handing a socket off (spec.md §4.3 step 5 / §9 open question).
func (p *Poller) MarkParked(fd int, parked bool) {
	p.keysMu.RLock()
	att, ok := p.keys[fd]
	p.keysMu.RUnlock()
	if ok {
		att.SetParked(parked)
	}
}

// MarkComet flips a registered key into comet mode: once a Handler
// returns StateLong, every subsequent readiness on this fd must be
// delivered via Event rather than Process (spec.md §6 SocketState.LONG).
// This is the per-registration hoist of the source's shared poller.comet
// flag described in DESIGN.md's Open Questions, set the moment a
// connection actually enters long-poll rather than predicted at accept.
func (p *Poller) MarkComet(fd int) {
	p.keysMu.RLock()
	att, ok := p.keys[fd]
	p.keysMu.RUnlock()
	if ok {
		att.SetComet()
	}
}

// Cancel enqueues cancellation of fd: removes it from the selector and
// deletes its KeyAttachment. Safe to call multiple times.
func (p *Poller) Cancel(fd int) error {
	return p.enqueue(func() {
		p.cancelLocked(fd, nil)
	})
}

// cancelLocked must only be called from the poller goroutine (i.e. from
// within an enqueued action or the main loop itself).
func (p *Poller) cancelLocked(fd int, err error) {
	p.keysMu.Lock()
	att, ok := p.keys[fd]
	if ok {
		delete(p.keys, fd)
	}
	p.keysMu.Unlock()
	if !ok {
		return
	}
	p.keepAliveCount.Dec()
	_ = p.be.remove(fd)
	if p.handler != nil {
		p.handler.OnCancelled(fd, att, err)
	}
}

// KeepAliveCount returns the number of currently registered keys.
func (p *Poller) KeepAliveCount() int64 { return p.keepAliveCount.Load() }

// drainEvents runs every queued action in FIFO order. Errors in one action
// are logged by the action itself; drain never stops early (spec.md §4.3
// step 1).
func (p *Poller) drainEvents() {
	p.mu.Lock()
	batch := p.events
	p.events = nil
	p.mu.Unlock()
	for _, action := range batch {
		action()
	}
}

// Run is the poller goroutine's main loop. It returns when Destroy has been
// called and the loop has observed the close flag.
func (p *Poller) Run() {
	defer close(p.doneCh)
	for {
		p.drainEvents()

		if p.closed.Load() {
			return
		}

		// Bound the wait by soTimeout so the idle scan below runs often
		// enough to notice a key that has been silent for soTimeout.
		timeout := p.selectorTimeout
		if p.soTimeout > 0 && (timeout <= 0 || p.soTimeout < timeout) {
			timeout = p.soTimeout
		}
		events, err := p.be.wait(timeout)
		if err != nil {
			p.log.Error("selector wait failed", zap.Error(err))
			continue
		}

		for _, ev := range events {
			p.dispatchOne(ev)
		}

		p.idleScan()
	}
}

func (p *Poller) dispatchOne(ev readyEvent) {
	p.keysMu.RLock()
	att, ok := p.keys[ev.fd]
	p.keysMu.RUnlock()
	if !ok {
		return
	}

	if ev.hup || ev.errFlag {
		p.cancelLocked(ev.fd, errs.ErrKeyCancelled)
		return
	}

	att.Access()

	if ev.readable {
		if att.WakeUpSet() {
			att.Wake()
			return
		}
		// One-shot readiness: clear read interest and mark Parked before
		// handing off, so the key will not be redelivered and the
		// idle-timeout scan exempts it for the duration of dispatch
		// (spec.md §4.3 step 4, §9 "interestOps==READ idle scan").
		att.SetParked(true)
		if err := p.be.disableRead(ev.fd); err != nil {
			p.log.Debug("disableRead failed", zap.Int("fd", ev.fd), zap.Error(err))
		}
		if p.handler != nil {
			p.handler.OnReadable(ev.fd, att)
		}
	}
	// Writable readiness is a no-op placeholder per spec.md §4.3 step 4.
}

// idleScan implements spec.md §4.3 step 5: cancel any key whose interest
// is effectively READ-only (Parked == false) and has been silent longer
// than soTimeout.
func (p *Poller) idleScan() {
	if p.soTimeout <= 0 {
		return
	}
	var stale []int
	p.keysMu.RLock()
	for fd, att := range p.keys {
		if !att.Parked() && att.Idle(p.soTimeout) {
			stale = append(stale, fd)
		}
	}
	p.keysMu.RUnlock()
	for _, fd := range stale {
		p.cancelLocked(fd, errs.ErrIdleTimeout)
	}
}

// Destroy waits briefly for any in-flight selection to finish, then signals
// the poller goroutine to exit on its next iteration and blocks until it
// does (spec.md §4.3 "Destroy").
func (p *Poller) Destroy(pollTime time.Duration) error {
	var err error
	p.closeOnce.Do(func() {
		time.Sleep(pollTime)
		p.closed.Store(true)
		_ = p.be.wakeup()
		<-p.doneCh
		err = p.be.close()
	})
	return err
}
