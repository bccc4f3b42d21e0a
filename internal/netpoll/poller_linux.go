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

//go:build linux

package netpoll

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// epollBackend wraps a raw epoll instance plus an eventfd used to wake
// epoll_wait from other goroutines, grounded on the pack's
// widaT-netpoll/poll_default_linux.go epoll control-op switch
// (EPOLL_CTL_ADD/MOD/DEL, EPOLLIN|EPOLLRDHUP|EPOLLERR).
type epollBackend struct {
	epfd   int
	wakeFD int
	events []unix.EpollEvent
}

// OpenPoller creates a Poller backed by Linux epoll.
func OpenPoller(log *zap.Logger, selectorTimeout, soTimeout time.Duration) (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, _, errno := unix.Syscall(unix.SYS_EVENTFD2, 0, 0, 0)
	if errno != 0 {
		_ = unix.Close(epfd)
		return nil, errno
	}
	be := &epollBackend{
		epfd:   epfd,
		wakeFD: int(wakeFD),
		events: make([]unix.EpollEvent, 128),
	}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, be.wakeFD, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(be.wakeFD),
	}); err != nil {
		_ = unix.Close(be.wakeFD)
		_ = unix.Close(epfd)
		return nil, err
	}
	return newPoller(be, log, selectorTimeout, soTimeout), nil
}

func (b *epollBackend) close() error {
	_ = unix.Close(b.wakeFD)
	return unix.Close(b.epfd)
}

func (b *epollBackend) wakeup() error {
	buf := [8]byte{0, 0, 0, 0, 0, 0, 0, 1}
	_, err := unix.Write(b.wakeFD, buf[:])
	return err
}

func (b *epollBackend) addRead(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLERR,
		Fd:     int32(fd),
	})
}

func (b *epollBackend) rearmRead(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN | unix.EPOLLRDHUP | unix.EPOLLERR,
		Fd:     int32(fd),
	})
}

func (b *epollBackend) disableRead(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_MOD, fd, &unix.EpollEvent{
		Events: 0,
		Fd:     int32(fd),
	})
}

func (b *epollBackend) remove(fd int) error {
	return unix.EpollCtl(b.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (b *epollBackend) wait(timeout time.Duration) ([]readyEvent, error) {
	msec := int(timeout / time.Millisecond)
	if msec <= 0 {
		msec = -1
	}
	n, err := unix.EpollWait(b.epfd, b.events, msec)
	if err != nil {
		if err == unix.EINTR {
			return nil, nil
		}
		return nil, err
	}
	out := make([]readyEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := b.events[i]
		fd := int(ev.Fd)
		if fd == b.wakeFD {
			var buf [8]byte
			_, _ = unix.Read(b.wakeFD, buf[:])
			continue
		}
		out = append(out, readyEvent{
			fd:       fd,
			readable: ev.Events&unix.EPOLLIN != 0,
			writable: ev.Events&unix.EPOLLOUT != 0,
			hup:      ev.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0,
			errFlag:  ev.Events&unix.EPOLLERR != 0,
		})
	}
	if n == len(b.events) && len(b.events) < 128*1024 {
		b.events = make([]unix.EpollEvent, len(b.events)*2)
	}
	return out, nil
}
