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

import "testing"

func TestSocketStateString(t *testing.T) {
	cases := map[SocketState]string{
		StateOpen:       "open",
		StateClosed:     "closed",
		StateLong:       "long",
		SocketState(99): "unknown",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Errorf("SocketState(%d).String() = %q, want %q", state, got, want)
		}
	}
}

func TestHandlerFuncDefaults(t *testing.T) {
	var h HandlerFunc
	if got := h.Process(nil); got != StateClosed {
		t.Errorf("zero-value HandlerFunc.Process = %v, want StateClosed", got)
	}
	if got := h.Event(nil, nil); got != StateClosed {
		t.Errorf("zero-value HandlerFunc.Event = %v, want StateClosed", got)
	}

	called := false
	h = HandlerFunc{
		ProcessFunc: func(conn *Conn) SocketState {
			called = true
			return StateOpen
		},
	}
	if got := h.Process(nil); got != StateOpen || !called {
		t.Errorf("HandlerFunc.Process did not delegate to ProcessFunc")
	}
}
