/*
Package sys generalizes the OS selection primitives used by the reactor:
epoll plus an eventfd wake channel on Linux, kqueue plus an EVFILT_USER wake
event on Darwin. One selector loop owns each poll object; every other thread
interacts with it only through Trigger.
*/
package sys

import (
	"golang.org/x/sys/unix"
)

// Ready is a platform-independent readiness mask reported to WaitPoll
// callbacks.
type Ready uint32

const (
	ReadyRead Ready = 1 << iota
	ReadyWrite
	// ReadyClosed marks error or hang-up conditions on the descriptor. The
	// reactor surfaces these as readiness of both directions; the waiter
	// discovers the condition on its own I/O attempt.
	ReadyClosed
)

// WaitCallback handles one poll result. fd is -1 when the call reports only
// a wake-channel trigger. Returning a sentinel understood by the DoError
// filter stops the loop.
type WaitCallback func(fd int, ready Ready, trigger bool) error

// DoError decides which callback errors abort WaitPoll; returning nil
// swallows the error.
type DoError func(err error) error

const (
	MaxPollSize  = 1024
	MinPollSize  = 32
	InitPollSize = 128
)

// EAGAIN is the would-block errno surfaced by non-blocking descriptors.
var EAGAIN error = unix.EAGAIN

func CloseFd(fd int) error {
	return unix.Close(fd)
}

func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

func Read(fd int, p []byte) (int, error) {
	return unix.Read(fd, p)
}

func Write(fd int, p []byte) (int, error) {
	return unix.Write(fd, p)
}

func Writev(fd int, iovs [][]byte) (int, error) {
	return unix.Writev(fd, iovs)
}
