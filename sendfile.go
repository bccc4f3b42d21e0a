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

// SendfileData describes a pending sendfile transfer. The payload fields
// are intentionally minimal: this is an interface-only stub per spec.md
// §4.6 "Sendfile (stub in source)" — zero-copy file transmission is a
// Non-goal, implementers may plug in a real OS sendfile syscall behind
// this interface.
type SendfileData struct {
	Conn   *Conn
	Path   string
	Offset int64
	Length int64
}

// Sendfile is the stub interface spec.md §4.6 describes. The core must
// accept its absence, guarded by Options.UseSendfile; no implementation
// ships in this module.
type Sendfile interface {
	// Add attempts to send data. Returning true means it was sent
	// synchronously; false means it was queued or failed and the caller
	// should fall back to a normal write.
	Add(data SendfileData) (bool, error)
	Init() error
	Destroy() error
}

// sendfileCount is tracked by Endpoint for the GetSendfileCount observer
// even though no Sendfile implementation is wired by default.
