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

// Package errs defines the sentinel errors surfaced by the endpoint, poller,
// acceptor and worker pool so callers can test error identity with errors.Is
// instead of matching strings.
package errs

import "errors"

var (
	// ErrEndpointUninitialized is returned when an operation that requires
	// Init has not yet been performed.
	ErrEndpointUninitialized = errors.New("gnet: endpoint not initialized")

	// ErrEndpointClosed is returned by WorkerPool.Acquire once the pool has
	// been closed, which Endpoint.Stop does.
	ErrEndpointClosed = errors.New("gnet: endpoint destroyed")

	// ErrAlreadyRunning reports an endpoint that is already running. Start
	// does not return it: Start on a running endpoint returns nil.
	ErrAlreadyRunning = errors.New("gnet: endpoint already running")

	// ErrNotRunning is returned by Pause/Resume when the endpoint isn't running.
	ErrNotRunning = errors.New("gnet: endpoint not running")

	// ErrPoolExhausted reports a worker pool that cannot grow further with no
	// worker available. No code path in this module returns it:
	// WorkerPool.Acquire blocks until a worker is recycled instead.
	ErrPoolExhausted = errors.New("gnet: worker pool exhausted")

	// ErrListenerClosed reports a listening socket closed by Stop/Destroy.
	// The acceptor loop does not return it; it exits once Accept reports
	// net.ErrClosed.
	ErrListenerClosed = errors.New("gnet: listener closed")

	// ErrPollerClosed is returned by poller operations (Register, Add, enqueue)
	// after the poller has been destroyed.
	ErrPollerClosed = errors.New("gnet: poller closed")

	// ErrKeyCancelled marks a selector key cancelled because the poller saw
	// a hang-up or error on its fd; a comet connection receives it as the
	// err argument of its final Handler.Event callback.
	ErrKeyCancelled = errors.New("gnet: selector key cancelled")

	// ErrHandshakeFailed wraps TLS handshake failures on newly accepted sockets.
	ErrHandshakeFailed = errors.New("gnet: tls handshake failed")

	// ErrIdleTimeout marks a connection closed by the idle-timeout scan, used
	// when delivering a final Event callback to comet-parked handlers.
	ErrIdleTimeout = errors.New("gnet: idle timeout")
)
