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
	"testing"
)

func tcpPipe(t *testing.T) (server, client *net.TCPConn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	acceptedCh := make(chan *net.TCPConn, 1)
	errCh := make(chan error, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		acceptedCh <- c.(*net.TCPConn)
	}()

	dialed, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	select {
	case c := <-acceptedCh:
		server = c
	case err := <-errCh:
		t.Fatalf("accept: %v", err)
	}
	client = dialed.(*net.TCPConn)
	t.Cleanup(func() {
		_ = server.Close()
		_ = client.Close()
	})
	return server, client
}

func TestRawFD(t *testing.T) {
	server, _ := tcpPipe(t)
	fd, err := rawFD(server)
	if err != nil {
		t.Fatalf("rawFD: %v", err)
	}
	if fd < 0 {
		t.Fatalf("rawFD = %d, want non-negative", fd)
	}
}

func TestSetSocketOptions(t *testing.T) {
	server, _ := tcpPipe(t)
	opts := DefaultOptions()
	if err := setSocketOptions(server, opts); err != nil {
		t.Fatalf("setSocketOptions: %v", err)
	}
}

func TestSetSocketOptionsNegativeLingerSkipsSetLinger(t *testing.T) {
	server, _ := tcpPipe(t)
	opts := DefaultOptions()
	opts.SOLinger = -1
	if err := setSocketOptions(server, opts); err != nil {
		t.Fatalf("setSocketOptions: %v", err)
	}
}
