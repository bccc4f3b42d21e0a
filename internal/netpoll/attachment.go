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

package netpoll

import (
	"sync"
	"time"

	"go.uber.org/atomic"
)

// KeyAttachment is the per-connection state attached to a registered file
// descriptor. It is created at registration and destroyed when the key is
// cancelled.
//
// Ownership: every state flag and the access stamp is an atomic (FD is set
// once at creation) so they may be read from the poller
// goroutine, worker goroutines, and the endpoint's OnReadable/OnCancelled
// callbacks without a shared mutex guarding field access; WakeUp and the
// Cond pair additionally implement the comet park/notify rendezvous
// described in spec.md §4.5.
type KeyAttachment struct {
	FD int

	lastAccess atomic.Int64 // unix nano

	// comet is true once this connection has entered long-poll mode, i.e.
	// its Handler returned StateLong; every subsequent readiness is then
	// delivered via Event rather than Process. Hoisted onto the
	// per-connection attachment instead of living on Poller (see
	// DESIGN.md "Shared per-poller comet flag" Open Question).
	comet atomic.Bool

	// parked replaces the source's "interestOps == READ" idle-scan
	// predicate (see DESIGN.md Open Questions): true while a worker holds
	// the socket for processing or while a handler has it parked, false
	// while the key is armed for READ and eligible for the idle-timeout
	// scan.
	parked atomic.Bool

	// wakeUp, when true, tells the poller that the next read-readiness on
	// this fd should release a comet-parked handler instead of being
	// dispatched as a normal or event readiness.
	wakeUp atomic.Bool

	Mutex sync.Mutex
	Cond  *sync.Cond
}

// NewKeyAttachment creates a KeyAttachment stamped with the current time.
func NewKeyAttachment(fd int, comet bool) *KeyAttachment {
	ka := &KeyAttachment{FD: fd}
	ka.comet.Store(comet)
	ka.Cond = sync.NewCond(&ka.Mutex)
	ka.Access()
	return ka
}

// Access stamps lastAccess with the current time. Called by the poller on
// every readiness delivery.
func (ka *KeyAttachment) Access() {
	ka.lastAccess.Store(time.Now().UnixNano())
}

// LastAccess returns the last Access() timestamp.
func (ka *KeyAttachment) LastAccess() time.Time {
	return time.Unix(0, ka.lastAccess.Load())
}

// Idle reports whether this key has been silent for longer than d,
// evaluated only against keys for which Parked is false (the caller is
// expected to check Parked before calling Idle, mirroring spec.md §5's
// "only keys whose interest is exactly READ are eligible").
func (ka *KeyAttachment) Idle(d time.Duration) bool {
	return time.Since(ka.LastAccess()) > d
}

// Comet reports whether this connection has entered long-poll mode.
func (ka *KeyAttachment) Comet() bool { return ka.comet.Load() }

// SetComet promotes this connection into long-poll mode.
func (ka *KeyAttachment) SetComet() { ka.comet.Store(true) }

// Parked reports whether this key is currently exempt from the idle scan.
func (ka *KeyAttachment) Parked() bool { return ka.parked.Load() }

// SetParked flips the parked flag.
func (ka *KeyAttachment) SetParked(v bool) { ka.parked.Store(v) }

// WakeUpSet reports whether a comet park is awaiting release.
func (ka *KeyAttachment) WakeUpSet() bool { return ka.wakeUp.Load() }

// ParkAndWait implements the comet park: the caller must be the Handler's
// goroutine. It sets WakeUp, arms the poller for READ via arm, then waits
// on Cond until the poller observes readiness and notifies. Returns when
// woken; the caller is responsible for re-checking any cancellation state
// after waking.
func (ka *KeyAttachment) ParkAndWait(arm func()) {
	ka.Mutex.Lock()
	ka.wakeUp.Store(true)
	arm()
	for ka.wakeUp.Load() {
		ka.Cond.Wait()
	}
	ka.Mutex.Unlock()
}

// Wake clears WakeUp and notifies all parked waiters. Called only by the
// poller goroutine upon observing readiness with WakeUp set.
func (ka *KeyAttachment) Wake() {
	ka.Mutex.Lock()
	ka.wakeUp.Store(false)
	ka.Cond.Broadcast()
	ka.Mutex.Unlock()
}
