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

// Package gnet implements the core of a non-blocking TCP connection
// endpoint: acceptor, poller and bounded worker pool wired behind a
// pluggable Handler, translated from a Java NIO connector's architecture
// into Go idiom (epoll/kqueue via golang.org/x/sys/unix, goroutines and
// channels instead of threads and monitors).
package gnet

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/walkon/gnet/errs"
	"github.com/walkon/gnet/internal/logging"
	"github.com/walkon/gnet/internal/netpoll"
)

// lifecycleState mirrors spec.md §3's
// UNINITIALIZED -> INITIALIZED -> RUNNING -> PAUSED <-> RUNNING -> STOPPED -> DESTROYED.
type lifecycleState int32

const (
	stateUninitialized lifecycleState = iota
	stateInitialized
	stateRunning
	statePaused
	stateStopped
	stateDestroyed
)

// Endpoint is the facade described in spec.md §4.1: lifecycle,
// configuration, poller access, worker-pool integration, and the external
// executor alternative. One Endpoint owns one listening socket.
type Endpoint struct {
	opts *Options
	log  *zap.Logger

	tlsConfig *tls.Config

	listener *net.TCPListener
	poller   *netpoll.Poller
	pool     *WorkerPool
	metrics  *Metrics

	handler  Handler
	executor Executor

	state   atomic.Int32
	running atomic.Bool
	paused  atomic.Bool

	acceptWG sync.WaitGroup
	pollerWG sync.WaitGroup

	connsMu sync.RWMutex
	conns   map[int]*Conn

	sendfileCount atomic.Int64
}

// NewEndpoint builds an Endpoint from the given options and Handler. The
// endpoint is UNINITIALIZED until Init (or Start, which implies it) runs.
func NewEndpoint(handler Handler, opts ...Option) *Endpoint {
	base := apply(DefaultOptions(), opts...)
	log := logging.Nop()
	if base.LogPath != "" {
		log = logging.New(logging.Options{LogPath: base.LogPath})
	}
	return &Endpoint{
		opts:     base,
		log:      log,
		handler:  handler,
		executor: base.Executor,
		conns:    make(map[int]*Conn),
		metrics:  newMetrics(),
	}
}

// SetLogger overrides the endpoint's logger, matching the teacher's
// pattern of an injectable *zap.Logger rather than a package-global.
func (e *Endpoint) SetLogger(log *zap.Logger) {
	if log != nil {
		e.log = log
	}
}

// SetHandler swaps the active Handler. Safe to call before Start; calling
// it while RUNNING takes effect for the next dispatch.
func (e *Endpoint) SetHandler(h Handler) {
	e.handler = h
	if e.pool != nil {
		e.pool.handler = h
	}
}

// SetExecutor installs an external Executor, bypassing WorkerPool for all
// subsequent dispatches (spec.md §4.4 "External executor mode").
func (e *Endpoint) SetExecutor(ex Executor) { e.executor = ex }

func (e *Endpoint) state0() lifecycleState { return lifecycleState(e.state.Load()) }

// Init binds the listening socket to Address:Port. Options.Backlog is not
// applied: the listener uses the operating system's default accept
// backlog. Idempotent while already initialized (spec.md §4.1).
func (e *Endpoint) Init() error {
	if e.state0() >= stateInitialized && e.state0() != stateDestroyed {
		return nil
	}

	tc, err := buildTLSConfig(e.opts.TLS)
	if err != nil {
		return err
	}
	e.tlsConfig = tc

	addr := net.JoinHostPort(e.opts.Address, strconv.Itoa(e.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("gnet: init listen %s: %w", addr, err)
	}
	tcpLn, ok := ln.(*net.TCPListener)
	if !ok {
		_ = ln.Close()
		return fmt.Errorf("gnet: init: expected *net.TCPListener, got %T", ln)
	}
	e.listener = tcpLn

	e.pool = NewWorkerPool(e.opts.MaxThreads, e.handler, e.opts.UseComet, e.log)

	e.state.Store(int32(stateInitialized))
	return nil
}

// Start ensures Init, starts AcceptorThreadCount acceptors and the single
// forced Poller, and marks the endpoint running. Idempotent while running
// (spec.md §4.1).
func (e *Endpoint) Start() error {
	if e.running.Load() {
		return nil
	}
	if err := e.Init(); err != nil {
		return err
	}

	poller, err := netpoll.OpenPoller(e.log, e.opts.SelectorTimeout, positiveOr(e.opts.SOTimeout, 0))
	if err != nil {
		return fmt.Errorf("gnet: start: open poller: %w", err)
	}
	poller.SetHandler(e)
	e.poller = poller
	e.metrics.bind(e)

	e.running.Store(true)
	e.paused.Store(false)
	e.state.Store(int32(stateRunning))

	n := e.opts.AcceptorThreadCount
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		e.acceptWG.Add(1)
		go e.acceptorLoop()
	}

	e.pollerWG.Add(1)
	go func() {
		defer e.pollerWG.Done()
		e.poller.Run()
	}()

	return nil
}

// positiveOr returns d if d > 0, else fallback. spec.md's soTimeout default
// of -1 means "disabled" and must not become a spurious zero-duration
// idle-scan trigger.
func positiveOr(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// Pause sets paused=true and performs the accept-unlock dance: opens a
// loopback connection to the endpoint's own port to break the acceptor out
// of Accept() so it observes the paused flag promptly (spec.md §4.1).
func (e *Endpoint) Pause() error {
	if !e.running.Load() {
		return errs.ErrNotRunning
	}
	if e.paused.Load() {
		return nil
	}
	e.paused.Store(true)
	e.state.Store(int32(statePaused))
	e.unlockAccept()
	return nil
}

// Resume clears paused, allowing acceptors to resume blocking in Accept().
func (e *Endpoint) Resume() error {
	if !e.running.Load() {
		return errs.ErrNotRunning
	}
	e.paused.Store(false)
	e.state.Store(int32(stateRunning))
	return nil
}

// unlockAccept breaks a blocked Accept() by opening (and immediately
// closing) a loopback connection to the listener's own address, the
// portable "accept unlock" hack from spec.md §4.1/§9.
func (e *Endpoint) unlockAccept() {
	addr := e.listener.Addr().String()
	conn, err := net.DialTimeout("tcp", addr, time.Second)
	if err != nil {
		e.log.Debug("accept unlock dial failed", zap.Error(err))
		return
	}
	_ = conn.Close()
}

// Stop sets running=false, unlocks accept, destroys the Poller, and waits
// for the acceptor/poller goroutines to exit.
func (e *Endpoint) Stop() error {
	if !e.running.Load() {
		return nil
	}
	e.running.Store(false)
	e.paused.Store(false)
	e.unlockAccept()

	if e.listener != nil {
		_ = e.listener.Close()
	}

	e.acceptWG.Wait()

	var err error
	if e.poller != nil {
		err = multierr.Append(err, e.poller.Destroy(e.opts.PollTime))
	}
	e.pollerWG.Wait()

	if e.pool != nil {
		e.pool.Close()
	}

	e.state.Store(int32(stateStopped))
	return err
}

// Destroy ensures Stop, releases remaining state, and returns the endpoint
// to UNINITIALIZED so it can be Init'd again.
func (e *Endpoint) Destroy() error {
	if e.state0() == stateDestroyed {
		return nil
	}
	err := e.Stop()

	e.connsMu.Lock()
	e.conns = make(map[int]*Conn)
	e.connsMu.Unlock()

	e.listener = nil
	e.poller = nil
	e.pool = nil
	e.state.Store(int32(stateUninitialized))
	return err
}

func (e *Endpoint) isRunning() bool { return e.running.Load() }
func (e *Endpoint) isPaused() bool  { return e.paused.Load() }

// IsRunning reports whether the endpoint is currently running (including
// while paused).
func (e *Endpoint) IsRunning() bool { return e.running.Load() }

// IsPaused reports whether Pause has been called without a matching Resume.
func (e *Endpoint) IsPaused() bool { return e.paused.Load() }

func (e *Endpoint) addConn(fd int, c *Conn) {
	e.connsMu.Lock()
	e.conns[fd] = c
	e.connsMu.Unlock()
}

func (e *Endpoint) removeConn(fd int) *Conn {
	e.connsMu.Lock()
	c := e.conns[fd]
	delete(e.conns, fd)
	e.connsMu.Unlock()
	return c
}

func (e *Endpoint) lookupConn(fd int) *Conn {
	e.connsMu.RLock()
	defer e.connsMu.RUnlock()
	return e.conns[fd]
}

// OnReadable implements netpoll.EventHandler. It is invoked on the poller
// goroutine for every normal/comet readiness delivery.
func (e *Endpoint) OnReadable(fd int, att *netpoll.KeyAttachment) {
	conn := e.lookupConn(fd)
	if conn == nil {
		return
	}

	if att.Comet() {
		if err := e.processSocket(conn, true, nil); err != nil {
			e.log.Debug("comet dispatch failed, redispatching as error event", zap.Error(err))
			_ = e.processSocket(conn, true, err)
		}
		return
	}

	if err := e.processSocket(conn, false, nil); err != nil {
		e.log.Error("dispatch failed", zap.Error(err))
		_ = conn.Close()
	}
}

// OnCancelled implements netpoll.EventHandler, invoked when a key is
// cancelled by the idle-timeout scan or an I/O error. Comet connections
// receive a final Event(err) callback; others are simply closed.
func (e *Endpoint) OnCancelled(fd int, att *netpoll.KeyAttachment, err error) {
	conn := e.removeConn(fd)
	if conn == nil {
		return
	}
	if errors.Is(err, errs.ErrIdleTimeout) {
		e.metrics.idleTimeouts.Inc()
	}
	e.metrics.closed.Inc()
	if att.Comet() && err != nil {
		_ = e.processSocket(conn, true, err)
	}
	_ = conn.Conn.Close()
}

// processSocket submits conn for dispatch: if no external executor is
// configured, it acquires a Worker (blocking until one is available) and
// hands off via assign; otherwise it submits a one-shot task to the
// executor. Returns an error only on resource-exhaustion; the caller is
// then responsible for closing (spec.md §4.1 processSocket).
func (e *Endpoint) processSocket(conn *Conn, event bool, procErr error) error {
	d := dispatch{conn: conn, event: event, err: procErr}

	if e.executor != nil {
		useComet := e.opts.UseComet
		return e.executor.Submit(func() {
			dispatchWithHandler(e.handler, d, useComet)
		})
	}
	if e.pool == nil {
		return errs.ErrEndpointUninitialized
	}
	return e.pool.Acquire(d)
}

// dispatchWithHandler is the executor-mode equivalent of worker.dispatchOne,
// used when WorkerPool is bypassed entirely.
func dispatchWithHandler(handler Handler, d dispatch, useComet bool) {
	if handler == nil {
		_ = d.conn.Close()
		return
	}
	var state SocketState
	if d.event {
		state = handler.Event(d.conn, d.err)
	} else {
		state = handler.Process(d.conn)
	}
	applyState(d.conn, state, useComet)
}

// GetKeepAliveCount returns the number of currently registered keys.
func (e *Endpoint) GetKeepAliveCount() int64 {
	if e.poller == nil {
		return 0
	}
	return e.poller.KeepAliveCount()
}

// GetSendfileCount returns the number of sendfile transfers completed
// synchronously. Always 0 in this release: no Sendfile implementation is
// wired by default (spec.md §4.6).
func (e *Endpoint) GetSendfileCount() int64 { return e.sendfileCount.Load() }

// GetCurrentThreadCount returns the number of workers ever created by the
// internal pool (0 when an external Executor is configured).
func (e *Endpoint) GetCurrentThreadCount() int {
	if e.pool == nil {
		return 0
	}
	return e.pool.Current()
}

// GetCurrentThreadsBusy returns the number of workers currently processing
// a dispatch.
func (e *Endpoint) GetCurrentThreadsBusy() int {
	if e.pool == nil {
		return 0
	}
	return e.pool.Busy()
}

// Addr returns the listening socket's address, useful for embedders that
// start on an ephemeral port (Options.Port == 0) and need to discover
// which one the kernel assigned.
func (e *Endpoint) Addr() net.Addr {
	if e.listener == nil {
		return nil
	}
	return e.listener.Addr()
}
