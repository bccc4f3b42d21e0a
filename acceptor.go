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
	"errors"
	"net"
	"time"

	"go.uber.org/zap"
)

// acceptorLoop implements spec.md §4.2: block on accept, apply socket
// options, hand the new socket to the endpoint's poller for registration.
// Any error is logged and the loop continues; accept failures must never
// terminate the acceptor (spec.md §7 "Acceptor failure").
func (e *Endpoint) acceptorLoop() {
	defer e.acceptWG.Done()

	for e.isRunning() {
		for e.isPaused() && e.isRunning() {
			time.Sleep(time.Second)
		}
		if !e.isRunning() {
			return
		}

		conn, err := e.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			e.log.Debug("accept failed, retrying", zap.Error(err))
			continue
		}

		tc, ok := conn.(*net.TCPConn)
		if !ok {
			_ = conn.Close()
			continue
		}

		if e.setSocketOptionsAndRegister(tc) {
			e.metrics.accepted.Inc()
		} else {
			_ = tc.Close()
		}
	}
}

// setSocketOptionsAndRegister is the Go expression of spec.md §4.1's
// setSocketOptions: non-blocking + SO_LINGER + TCP_NODELAY + optional TLS
// handshake, then poller.register. Returns false if any step fails.
func (e *Endpoint) setSocketOptionsAndRegister(tc *net.TCPConn) bool {
	if err := setSocketOptions(tc, e.opts); err != nil {
		e.log.Debug("set socket options failed", zap.Error(err))
		return false
	}

	var nc net.Conn = tc
	if e.tlsConfig != nil {
		wrapped, err := maybeHandshake(tc, e.tlsConfig)
		if err != nil {
			e.log.Debug("tls handshake failed", zap.Error(err))
			return false
		}
		nc = wrapped
	}

	fd, err := rawFD(tc)
	if err != nil {
		e.log.Debug("raw fd lookup failed", zap.Error(err))
		return false
	}

	c := newConn(nc, fd, e)
	e.addConn(fd, c)

	if err := e.poller.Register(fd, false); err != nil {
		e.log.Debug("poller register failed", zap.Error(err))
		e.removeConn(fd)
		return false
	}
	return true
}
