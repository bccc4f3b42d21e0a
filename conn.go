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
	"net"
	"sync"

	"github.com/valyala/bytebufferpool"

	"github.com/walkon/gnet/errs"
)

// Conn wraps a non-blocking accepted socket with the pooled read buffer the
// Handler uses for scratch space, generalizing the teacher's
// per-event-loop el.buffer ([]byte sized by ReadBufferCap) into a
// per-connection pooled buffer via bytebufferpool.
type Conn struct {
	net.Conn

	fd int

	endpoint *Endpoint

	bufMu sync.Mutex
	buf   *bytebufferpool.ByteBuffer

	closeOnce sync.Once
}

func newConn(nc net.Conn, fd int, ep *Endpoint) *Conn {
	return &Conn{
		Conn:     nc,
		fd:       fd,
		endpoint: ep,
	}
}

// Buffer returns this connection's pooled scratch buffer, acquiring one
// from the shared bytebufferpool.Pool on first use.
func (c *Conn) Buffer() *bytebufferpool.ByteBuffer {
	c.bufMu.Lock()
	defer c.bufMu.Unlock()
	if c.buf == nil {
		c.buf = bytebufferpool.Get()
	}
	return c.buf
}

// releaseBuffer returns the pooled buffer, called from Close.
func (c *Conn) releaseBuffer() {
	c.bufMu.Lock()
	buf := c.buf
	c.buf = nil
	c.bufMu.Unlock()
	if buf != nil {
		bytebufferpool.Put(buf)
	}
}

// FD returns the raw file descriptor backing this connection, needed by
// the poller's registration map.
func (c *Conn) FD() int { return c.fd }

// Rearm re-registers this connection's fd for READ readiness, clearing
// both the comet wake-up and parked bits (spec.md §4.3 "Re-arm (add)").
// Process/Event dispatch calls this automatically when a Handler returns
// StateOpen. It is also the public re-arm primitive a long-poll Handler
// must call once it has a StateLong connection ready to resume normal
// dispatch: a connection parked via StateLong has its read interest
// disabled and is exempt from the idle-timeout scan until something
// calls Rearm, so an external Handler holding onto a parked *Conn (e.g.
// from a background goroutine woken by an upstream event) is the only
// way such a connection ever becomes readable again.
func (c *Conn) Rearm() error {
	if c.endpoint == nil || c.endpoint.poller == nil {
		return errs.ErrPollerClosed
	}
	return c.endpoint.poller.Add(c.fd)
}

// markParked flips the poller's Parked bit for this connection's key and
// promotes it into comet mode, the action taken when a Handler returns
// StateLong: no re-arm, and every subsequent readiness is delivered via
// Event instead of Process.
func (c *Conn) markParked() {
	if c.endpoint != nil {
		c.endpoint.poller.MarkParked(c.fd, true)
		c.endpoint.poller.MarkComet(c.fd)
	}
}

// Close closes the underlying socket, cancels its selector key, and
// returns its pooled buffer exactly once regardless of how many times
// Close is called.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.releaseBuffer()
		if c.endpoint != nil {
			_ = c.endpoint.poller.Cancel(c.fd)
		}
		err = c.Conn.Close()
	})
	return err
}
