//go:build linux

package sys

import (
	"runtime"
	"unsafe"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/gaborbarna/cats-effect/utils"
)

const (
	ReadEvents      = unix.EPOLLPRI | unix.EPOLLIN
	WriteEvents     = unix.EPOLLOUT
	ClosedFdEvents  = unix.EPOLLERR | unix.EPOLLHUP
	ReadWriteEvents = ReadEvents | WriteEvents
)

var (
	wakeVal uint64 = 1
	wakeBuf        = (*(*[8]byte)(unsafe.Pointer(&wakeVal)))[:]
)

// CreatePoll creates an epoll instance plus the eventfd wake channel, with
// the wake channel already registered for read readiness.
func CreatePoll() (pollFd, pollEvFd int, err error) {
	pollFd, err = unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		err = utils.SysError("epoll_create1", err)
		return
	}
	pollEvFd, err = unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(pollFd)
		err = utils.SysError("eventfd", err)
		return
	}
	if err = AddRead(pollFd, pollEvFd); err != nil {
		unix.Close(pollFd)
		unix.Close(pollEvFd)
		return
	}
	return
}

// Trigger forces a blocked WaitPoll to return. Concurrent triggers coalesce
// in the eventfd counter; EAGAIN means a wake is already pending.
func Trigger(pollEvFd int) (err error) {
	if _, err = unix.Write(pollEvFd, wakeBuf); err == unix.EAGAIN {
		err = nil
	}
	return utils.SysError("eventfd_write", err)
}

func epollFdHandler(pollFd, fd, ctlAction int, evs uint32) error {
	var event *unix.EpollEvent
	if ctlAction != unix.EPOLL_CTL_DEL {
		event = &unix.EpollEvent{Fd: int32(fd), Events: evs}
	}
	err := unix.EpollCtl(pollFd, ctlAction, fd, event)
	var eSysName string
	switch ctlAction {
	case unix.EPOLL_CTL_ADD:
		eSysName = "epoll_ctl_add"
	case unix.EPOLL_CTL_MOD:
		eSysName = "epoll_ctl_mod"
	case unix.EPOLL_CTL_DEL:
		eSysName = "epoll_ctl_del"
	}
	return utils.SysError(eSysName, err)
}

func AddReadWrite(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_ADD, ReadWriteEvents)
}

func AddRead(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_ADD, ReadEvents)
}

func AddWrite(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_ADD, WriteEvents)
}

func ModRead(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_MOD, ReadEvents)
}

func ModWrite(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_MOD, WriteEvents)
}

func ModReadWrite(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_MOD, ReadWriteEvents)
}

func UnRegister(pollFd, fd int) error {
	return epollFdHandler(pollFd, fd, unix.EPOLL_CTL_DEL, 0)
}

func toReady(events uint32) (r Ready) {
	if events&ClosedFdEvents != 0 {
		r |= ReadyClosed
	}
	if events&ReadEvents != 0 {
		r |= ReadyRead
	}
	if events&WriteEvents != 0 {
		r |= ReadyWrite
	}
	return
}

// WaitPoll blocks in epoll_wait and feeds results to w. Wake-channel
// readiness is drained here and reported once per iteration as a trailing
// trigger callback with fd == -1.
func WaitPoll(pollFd, pollEvFd int, w WaitCallback, doErr DoError) error {
	events := make([]unix.EpollEvent, InitPollSize)
	evBuf := make([]byte, 8)
	timeout := -1
	for {
		n, err := unix.EpollWait(pollFd, events, timeout)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			timeout = -1
			runtime.Gosched()
			continue
		} else if err != nil {
			err = utils.SysError("epoll_wait", err)
			logger.Errorf("error occurs in epoll: %v", err)
			return err
		}
		timeout = 0

		trigger := false
		for i := 0; i < n; i++ {
			ev := &events[i]
			fd := int(ev.Fd)
			if fd == pollEvFd {
				trigger = true
				_, _ = unix.Read(pollEvFd, evBuf)
				continue
			}
			if err = doErr(w(fd, toReady(ev.Events), false)); err != nil {
				return err
			}
		}
		if trigger {
			if err = doErr(w(-1, 0, true)); err != nil {
				return err
			}
		}
	}
}

// Pipe returns a connected, non-blocking pipe pair (read end, write end).
func Pipe() (rfd, wfd int, err error) {
	var fds [2]int
	if err = unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		err = utils.SysError("pipe2", err)
		return
	}
	return fds[0], fds[1], nil
}
