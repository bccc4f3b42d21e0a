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

//go:build freebsd || dragonfly || darwin

package netpoll

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// kqueueBackend wraps a kqueue instance with an EVFILT_USER wake trigger,
// grounded on the teacher's loop_bsd.go handleEvent dispatch switch
// (EVFilterSock/EVFilterWrite/EVFilterRead).
type kqueueBackend struct {
	kqfd    int
	wakeIdent uintptr
	events  []unix.Kevent_t
}

const wakeIdent = 0xdeadbeef

// OpenPoller creates a Poller backed by BSD/Darwin kqueue.
func OpenPoller(log *zap.Logger, selectorTimeout, soTimeout time.Duration) (*Poller, error) {
	kqfd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	be := &kqueueBackend{
		kqfd:      kqfd,
		wakeIdent: wakeIdent,
		events:    make([]unix.Kevent_t, 128),
	}
	wakeEv := unix.Kevent_t{
		Ident:  be.wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}
	if _, err := unix.Kevent(kqfd, []unix.Kevent_t{wakeEv}, nil, nil); err != nil {
		_ = unix.Close(kqfd)
		return nil, err
	}
	return newPoller(be, log, selectorTimeout, soTimeout), nil
}

func (b *kqueueBackend) close() error {
	return unix.Close(b.kqfd)
}

func (b *kqueueBackend) wakeup() error {
	ev := unix.Kevent_t{
		Ident:  b.wakeIdent,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}
	_, err := unix.Kevent(b.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) addRead(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uintptr(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD,
	}
	_, err := unix.Kevent(b.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) rearmRead(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uintptr(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}
	_, err := unix.Kevent(b.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) disableRead(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uintptr(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DISABLE,
	}
	_, err := unix.Kevent(b.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) remove(fd int) error {
	ev := unix.Kevent_t{
		Ident:  uintptr(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_DELETE,
	}
	_, err := unix.Kevent(b.kqfd, []unix.Kevent_t{ev}, nil, nil)
	return err
}

func (b *kqueueBackend) wait(timeout time.Duration) ([]readyEvent, error) {
	var ts unix.Timespec
	tsPtr := &ts
	if timeout > 0 {
		ts = unix.NsecToTimespec(int64(timeout))
	} else {
		tsPtr = nil
	}
	n, err := unix.Kevent(b.kqfd, nil, b.events, tsPtr)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := b.events[i]
		if ev.Filter == unix.EVFILT_USER && uintptr(ev.Ident) == b.wakeIdent {
			continue
		}
		fd := int(ev.Ident)
		switch ev.Filter {
		case unix.EVFILT_READ:
			out = append(out, readyEvent{
				fd:       fd,
				readable: true,
				hup:      ev.Flags&unix.EV_EOF != 0,
				errFlag:  ev.Flags&unix.EV_ERROR != 0,
			})
		case unix.EVFILT_WRITE:
			out = append(out, readyEvent{
				fd:       fd,
				writable: true,
				hup:      ev.Flags&unix.EV_EOF != 0,
				errFlag:  ev.Flags&unix.EV_ERROR != 0,
			})
		}
	}
	if n == len(b.events) && len(b.events) < 128*1024 {
		b.events = make([]unix.Kevent_t, len(b.events)*2)
	}
	return out, nil
}
