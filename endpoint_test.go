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
	"io"
	"net"
	"testing"
	"time"
)

// echoTestHandler implements the scenario described in spec.md §8: reads
// whatever is available, writes it back, returns StateOpen; on EOF it
// returns StateClosed.
type echoTestHandler struct{}

func (echoTestHandler) Process(conn *Conn) SocketState {
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return StateClosed
		}
		return StateClosed
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		return StateClosed
	}
	return StateOpen
}

func (h echoTestHandler) Event(conn *Conn, err error) SocketState {
	if err != nil {
		return StateClosed
	}
	return h.Process(conn)
}

// cometHandler implements spec.md §8 scenario 5: a client message of
// "wait" parks the connection (StateLong) and hands the *Conn to the test
// over a channel, simulating a Handler that waits on an external event
// before resuming; any other message is echoed normally, whether it
// arrives via Process (pre-park) or Event (post-park, since a comet
// connection's future readiness is always delivered through Event).
type cometHandler struct {
	parked chan *Conn
}

func (h *cometHandler) Process(conn *Conn) SocketState {
	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	if err != nil {
		return StateClosed
	}
	if string(buf[:n]) == "wait" {
		h.parked <- conn
		return StateLong
	}
	if _, err := conn.Write(buf[:n]); err != nil {
		return StateClosed
	}
	return StateOpen
}

func (h *cometHandler) Event(conn *Conn, err error) SocketState {
	if err != nil {
		return StateClosed
	}
	return h.Process(conn)
}

func newTestEndpoint(t *testing.T, handler Handler, opts ...Option) *Endpoint {
	t.Helper()
	allOpts := append([]Option{WithAddress("127.0.0.1"), WithPort(0)}, opts...)
	ep := NewEndpoint(handler, allOpts...)
	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() {
		_ = ep.Destroy()
	})
	return ep
}

func TestEndpointEchoRoundTrip(t *testing.T) {
	ep := newTestEndpoint(t, echoTestHandler{}, WithMaxThreads(4))

	conn, err := net.DialTimeout("tcp", ep.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 10; i++ {
		msg := []byte("ping")
		if _, err := conn.Write(msg); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, len(msg))
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(buf) != "ping" {
			t.Fatalf("echo %d = %q, want %q", i, buf, "ping")
		}
	}
}

func TestEndpointLifecycleIdempotent(t *testing.T) {
	ep := NewEndpoint(echoTestHandler{}, WithAddress("127.0.0.1"), WithPort(0))

	if err := ep.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := ep.Init(); err != nil {
		t.Fatalf("second Init: %v", err)
	}

	if err := ep.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := ep.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if !ep.IsRunning() {
		t.Fatalf("IsRunning() = false after Start")
	}

	if err := ep.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := ep.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if ep.IsRunning() {
		t.Fatalf("IsRunning() = true after Stop")
	}

	if err := ep.Destroy(); err != nil {
		t.Fatalf("Destroy: %v", err)
	}
	if err := ep.Destroy(); err != nil {
		t.Fatalf("second Destroy: %v", err)
	}
}

func TestEndpointPauseResume(t *testing.T) {
	ep := newTestEndpoint(t, echoTestHandler{})

	if err := ep.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if !ep.IsPaused() {
		t.Fatalf("IsPaused() = false after Pause")
	}

	conn, err := net.DialTimeout("tcp", ep.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial while paused: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write while paused: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	buf := make([]byte, 4)
	if _, err := conn.Read(buf); err == nil {
		t.Fatalf("expected no response while paused, got data")
	}

	if err := ep.Resume(); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if ep.IsPaused() {
		t.Fatalf("IsPaused() = true after Resume")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read after resume: %v", err)
	}
	if string(buf) != "ping" {
		t.Fatalf("echo after resume = %q, want %q", buf, "ping")
	}
}

func TestEndpointIdleTimeoutClosesConnection(t *testing.T) {
	ep := newTestEndpoint(t, echoTestHandler{}, WithSOTimeout(150*time.Millisecond))

	conn, err := net.DialTimeout("tcp", ep.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hi")); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatalf("read: %v", err)
	}

	time.Sleep(700 * time.Millisecond)

	_ = conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
	_, writeErr := conn.Write([]byte("x"))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, readErr := conn.Read(buf)

	if writeErr == nil && readErr == nil {
		t.Fatalf("expected idle-timed-out connection to fail write or read")
	}
}

func TestEndpointExternalExecutorBypassesPool(t *testing.T) {
	exec, err := NewAntsExecutor(2)
	if err != nil {
		t.Fatalf("NewAntsExecutor: %v", err)
	}
	defer exec.Release()

	ep := newTestEndpoint(t, echoTestHandler{}, WithExecutor(exec))

	var conns []net.Conn
	for i := 0; i < 5; i++ {
		conn, err := net.DialTimeout("tcp", ep.Addr().String(), 2*time.Second)
		if err != nil {
			t.Fatalf("dial %d: %v", i, err)
		}
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()

	for i, conn := range conns {
		if _, err := conn.Write([]byte("ping")); err != nil {
			t.Fatalf("write %d: %v", i, err)
		}
	}
	for i, conn := range conns {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if string(buf) != "ping" {
			t.Fatalf("echo %d = %q, want %q", i, buf, "ping")
		}
	}

	if got := ep.GetCurrentThreadCount(); got != 0 {
		t.Errorf("GetCurrentThreadCount() = %d, want 0 (internal pool unused with external executor)", got)
	}
}

// TestEndpointCometParkAndExternalRearm drives spec.md §8 scenario 5
// end-to-end through the public Handler/Conn/Endpoint boundary: a Handler
// parks a connection via StateLong, a goroutine standing in for an
// external event source later writes to it directly and calls the
// exported Conn.Rearm, and the connection must then resume normal
// dispatch instead of leaking forever.
func TestEndpointCometParkAndExternalRearm(t *testing.T) {
	h := &cometHandler{parked: make(chan *Conn, 1)}
	ep := newTestEndpoint(t, h)

	conn, err := net.DialTimeout("tcp", ep.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("wait")); err != nil {
		t.Fatalf("write wait: %v", err)
	}

	var parkedConn *Conn
	select {
	case parkedConn = <-h.parked:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never parked the connection")
	}

	// While parked, the client must receive nothing, and the connection
	// must still be registered rather than silently dropped.
	_ = conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	probe := make([]byte, 16)
	if _, err := conn.Read(probe); err == nil {
		t.Fatalf("expected no data while parked, got some")
	}
	if got := ep.GetKeepAliveCount(); got != 1 {
		t.Fatalf("GetKeepAliveCount() = %d, want 1 (parked connection still registered)", got)
	}

	// Simulate a background goroutine reacting to an upstream event: push
	// data to the parked client directly (writes need no read-interest),
	// then Rearm so future client writes resume normal dispatch.
	push := []byte("async-push")
	if _, err := parkedConn.Write(push); err != nil {
		t.Fatalf("write to parked conn: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	got := make([]byte, len(push))
	if _, err := io.ReadFull(conn, got); err != nil {
		t.Fatalf("read async push: %v", err)
	}
	if string(got) != string(push) {
		t.Fatalf("async push = %q, want %q", got, push)
	}

	if err := parkedConn.Rearm(); err != nil {
		t.Fatalf("Rearm: %v", err)
	}

	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatalf("write after rearm: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	echoBuf := make([]byte, 4)
	if _, err := io.ReadFull(conn, echoBuf); err != nil {
		t.Fatalf("read echo after rearm: %v", err)
	}
	if string(echoBuf) != "ping" {
		t.Fatalf("echo after rearm = %q, want %q", echoBuf, "ping")
	}
}

// TestEndpointUseCometFalseDowngradesStateLong covers the UseComet gate:
// a Handler still returning StateLong when comet support is disabled must
// not leak a parked connection; it is closed instead.
func TestEndpointUseCometFalseDowngradesStateLong(t *testing.T) {
	h := &cometHandler{parked: make(chan *Conn, 1)}
	ep := newTestEndpoint(t, h, WithUseComet(false))

	conn, err := net.DialTimeout("tcp", ep.Addr().String(), 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("wait")); err != nil {
		t.Fatalf("write wait: %v", err)
	}

	select {
	case <-h.parked:
	case <-time.After(2 * time.Second):
		t.Fatalf("handler never attempted to park")
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	probe := make([]byte, 1)
	if _, err := conn.Read(probe); err == nil {
		t.Fatalf("expected connection closed when UseComet is false, got data/no error")
	}
}
