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
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// rawFD extracts the underlying file descriptor from a *net.TCPConn so the
// poller can register it directly with epoll/kqueue, following the pack's
// common pattern of reaching into SyscallConn for raw fd access (e.g.
// other_examples' epoll/kqueue poller files all do the same).
func rawFD(c *net.TCPConn) (int, error) {
	sc, err := c.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	if err := sc.Control(func(fdPtr uintptr) {
		fd = int(fdPtr)
	}); err != nil {
		return -1, err
	}
	return fd, nil
}

// setSocketOptions configures a freshly accepted socket per spec.md §4.1:
// TCP_NODELAY, SO_LINGER (skipped when negative) and non-blocking mode.
// No SO_TIMEOUT or read deadline is set on the socket; Options.SOTimeout
// is used only by the poller's idle-timeout scan. The optional TLS
// handshake is done by the caller, setSocketOptionsAndRegister. Returns an
// error (instead of the source's bool) on any failed step; the caller must
// close the socket.
func setSocketOptions(c *net.TCPConn, opts *Options) error {
	if err := c.SetNoDelay(opts.TCPNoDelay); err != nil {
		return fmt.Errorf("set nodelay: %w", err)
	}

	if opts.SOLinger >= 0 {
		if err := c.SetLinger(opts.SOLinger); err != nil {
			return fmt.Errorf("set linger: %w", err)
		}
	}

	fd, err := rawFD(c)
	if err != nil {
		return fmt.Errorf("raw fd: %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fmt.Errorf("set nonblock: %w", err)
	}

	return nil
}
