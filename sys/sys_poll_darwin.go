//go:build darwin

package sys

import (
	"runtime"

	"github.com/moqsien/processes/logger"
	"golang.org/x/sys/unix"

	"github.com/gaborbarna/cats-effect/utils"
)

const (
	kSysAdd = "kevent_add"
	kSysDel = "kevent_del"
)

// CreatePoll creates a kqueue with an EVFILT_USER wake event registered.
// The wake channel is the kqueue itself, so pollEvFd equals pollFd.
func CreatePoll() (pollFd, pollEvFd int, err error) {
	pollFd, err = unix.Kqueue()
	if err != nil {
		err = utils.SysError("kqueue", err)
		return
	}
	_, err = unix.Kevent(pollFd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}, nil, nil)
	if err != nil {
		unix.Close(pollFd)
		err = utils.SysError("kqueue_user_event", err)
		return
	}
	pollEvFd = pollFd
	return
}

// Trigger posts the user event, forcing a blocked WaitPoll to return.
// Repeated triggers coalesce until the loop observes the event.
func Trigger(pollEvFd int) error {
	_, err := unix.Kevent(pollEvFd, []unix.Kevent_t{{
		Ident:  0,
		Filter: unix.EVFILT_USER,
		Fflags: unix.NOTE_TRIGGER,
	}}, nil, nil)
	return utils.SysError("kevent_trigger", err)
}

func keventAdd(pollFd, fd int, filters ...int16) error {
	changes := make([]unix.Kevent_t, 0, len(filters))
	for _, f := range filters {
		changes = append(changes, unix.Kevent_t{
			Ident: uint64(fd), Flags: unix.EV_ADD, Filter: f,
		})
	}
	_, err := unix.Kevent(pollFd, changes, nil, nil)
	return utils.SysError(kSysAdd, err)
}

// keventDel removes filters one by one; ENOENT means the filter was never
// armed and is not an error for interest reconciliation.
func keventDel(pollFd, fd int, filters ...int16) error {
	for _, f := range filters {
		_, err := unix.Kevent(pollFd, []unix.Kevent_t{{
			Ident: uint64(fd), Flags: unix.EV_DELETE, Filter: f,
		}}, nil, nil)
		if err != nil && err != unix.ENOENT {
			return utils.SysError(kSysDel, err)
		}
	}
	return nil
}

func AddReadWrite(pollFd, fd int) error {
	return keventAdd(pollFd, fd, unix.EVFILT_READ, unix.EVFILT_WRITE)
}

func AddRead(pollFd, fd int) error {
	return keventAdd(pollFd, fd, unix.EVFILT_READ)
}

func AddWrite(pollFd, fd int) error {
	return keventAdd(pollFd, fd, unix.EVFILT_WRITE)
}

func ModRead(pollFd, fd int) error {
	if err := keventAdd(pollFd, fd, unix.EVFILT_READ); err != nil {
		return err
	}
	return keventDel(pollFd, fd, unix.EVFILT_WRITE)
}

func ModWrite(pollFd, fd int) error {
	if err := keventAdd(pollFd, fd, unix.EVFILT_WRITE); err != nil {
		return err
	}
	return keventDel(pollFd, fd, unix.EVFILT_READ)
}

func ModReadWrite(pollFd, fd int) error {
	return keventAdd(pollFd, fd, unix.EVFILT_READ, unix.EVFILT_WRITE)
}

func UnRegister(pollFd, fd int) error {
	return keventDel(pollFd, fd, unix.EVFILT_READ, unix.EVFILT_WRITE)
}

func toReady(ev *unix.Kevent_t) (r Ready) {
	if ev.Flags&unix.EV_EOF != 0 || ev.Flags&unix.EV_ERROR != 0 {
		r |= ReadyClosed
	}
	switch ev.Filter {
	case unix.EVFILT_READ:
		r |= ReadyRead
	case unix.EVFILT_WRITE:
		r |= ReadyWrite
	}
	return
}

// WaitPoll blocks in kevent and feeds results to w. The user wake event is
// reported once per iteration as a trailing trigger callback with fd == -1.
func WaitPoll(pollFd, pollEvFd int, w WaitCallback, doErr DoError) error {
	events := make([]unix.Kevent_t, InitPollSize)
	var (
		ts  unix.Timespec
		tsp *unix.Timespec
	)
	for {
		n, err := unix.Kevent(pollFd, nil, events, tsp)
		if n == 0 || (n < 0 && err == unix.EINTR) {
			tsp = nil
			runtime.Gosched()
			continue
		} else if err != nil {
			err = utils.SysError("kevent_wait", err)
			logger.Errorf("error occurs in kqueue: %v", err)
			return err
		}
		tsp = &ts

		trigger := false
		for i := 0; i < n; i++ {
			ev := &events[i]
			if ev.Filter == unix.EVFILT_USER {
				trigger = true
				continue
			}
			if err = doErr(w(int(ev.Ident), toReady(ev), false)); err != nil {
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
	if err = unix.Pipe(fds[:]); err != nil {
		err = utils.SysError("pipe", err)
		return
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err = unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			err = utils.SysError("fcntl", err)
			return
		}
	}
	return fds[0], fds[1], nil
}
