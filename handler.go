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

// SocketState is the state a Handler returns to tell the core what to do
// with the socket next.
type SocketState int

const (
	// StateOpen tells the core to re-arm read readiness and return the
	// socket to the poller for the next request.
	StateOpen SocketState = iota
	// StateClosed tells the core to close the socket.
	StateClosed
	// StateLong tells the core to leave the socket parked: no re-arm, the
	// handler has taken ownership of re-arm timing (comet/long-poll).
	StateLong
)

func (s SocketState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateLong:
		return "long"
	default:
		return "unknown"
	}
}

// Handler is the boundary between the core and the application-level
// protocol processor. The core delivers a connection to Process for normal
// readiness, or to Event for comet/error readiness, and acts on the
// returned SocketState.
type Handler interface {
	// Process is called when the socket has data ready to read under
	// normal dispatch. The socket is non-blocking.
	Process(conn *Conn) SocketState

	// Event is called for comet (long-poll) readiness or when err is
	// non-nil, a cancelled key or idle-timeout delivering a final callback
	// to a parked handler.
	Event(conn *Conn, err error) SocketState
}

// HandlerFunc adapts a pair of functions to the Handler interface for
// simple cases that don't need a dedicated type.
type HandlerFunc struct {
	ProcessFunc func(conn *Conn) SocketState
	EventFunc   func(conn *Conn, err error) SocketState
}

func (h HandlerFunc) Process(conn *Conn) SocketState {
	if h.ProcessFunc == nil {
		return StateClosed
	}
	return h.ProcessFunc(conn)
}

func (h HandlerFunc) Event(conn *Conn, err error) SocketState {
	if h.EventFunc == nil {
		return StateClosed
	}
	return h.EventFunc(conn, err)
}
