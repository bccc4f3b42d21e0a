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

// Command echoserver is a runnable embedder demonstrating the full
// Endpoint lifecycle with an echo Handler: reads N bytes, writes them
// back, returns StateOpen; closes and returns StateClosed on EOF. Mirrors
// spec.md §8 end-to-end scenario 1.
package main

import (
	"errors"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/walkon/gnet"
	"github.com/walkon/gnet/internal/logging"
)

type echoHandler struct {
	log *log.Logger
}

func (h *echoHandler) Process(conn *gnet.Conn) gnet.SocketState {
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return gnet.StateClosed
		}
		h.log.Printf("read error: %v", err)
		return gnet.StateClosed
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		h.log.Printf("write error: %v", err)
		return gnet.StateClosed
	}
	return gnet.StateOpen
}

func (h *echoHandler) Event(conn *gnet.Conn, err error) gnet.SocketState {
	if err != nil {
		h.log.Printf("event error on fd: %v", err)
		return gnet.StateClosed
	}
	return h.Process(conn)
}

func main() {
	addr := flag.String("address", "127.0.0.1", "listen address")
	port := flag.Int("port", 9000, "listen port")
	maxThreads := flag.Int("max-threads", 40, "worker pool ceiling")
	flag.Parse()

	stdlog := log.New(os.Stderr, "echoserver: ", log.LstdFlags)
	handler := &echoHandler{log: stdlog}

	ep := gnet.NewEndpoint(handler,
		gnet.WithAddress(*addr),
		gnet.WithPort(*port),
		gnet.WithMaxThreads(*maxThreads),
	)
	ep.SetLogger(logging.New(logging.Options{Development: true}))

	if err := ep.Start(); err != nil {
		stdlog.Fatalf("start: %v", err)
	}
	stdlog.Printf("listening on %s:%d", *addr, *port)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	stdlog.Printf("shutting down")
	if err := ep.Destroy(); err != nil {
		stdlog.Fatalf("destroy: %v", err)
	}
}
