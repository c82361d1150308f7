package pipe

import (
	"sync"

	"github.com/panjf2000/gnet/v2/pkg/buffer/elastic"

	"github.com/gaborbarna/cats-effect/iface"
	"github.com/gaborbarna/cats-effect/sys"
	"github.com/gaborbarna/cats-effect/utils"
	"github.com/gaborbarna/cats-effect/utils/errs"
)

const IovMax = 1024

// Writer is the write end. Writes that would block are queued in an elastic
// out-buffer; the caller selects for write-readiness and calls Flush to
// drain it.
type Writer struct {
	fd     int
	mu     sync.Mutex
	out    *elastic.Buffer
	closed bool
}

func newWriter(fd int) *Writer {
	w := &Writer{fd: fd}
	w.out, _ = elastic.New(1024)
	return w
}

func (that *Writer) GetFd() int {
	return that.fd
}

func (that *Writer) SupportedOps() iface.Op {
	return iface.WriteReady
}

// Write never reports would-block: bytes the pipe cannot take immediately
// are buffered and written by Flush once the descriptor is ready again.
// Buffered bytes keep FIFO order ahead of new writes.
func (that *Writer) Write(p []byte) (int, error) {
	that.mu.Lock()
	defer that.mu.Unlock()
	if that.closed {
		return 0, errs.ErrResourceClosed
	}
	if !that.out.IsEmpty() {
		return that.out.Write(p)
	}
	sent, err := sys.Write(that.fd, p)
	if err != nil {
		if err == sys.EAGAIN {
			return that.out.Write(p)
		}
		return -1, utils.SysError("write", err)
	}
	if sent < len(p) {
		_, _ = that.out.Write(p[sent:])
	}
	return len(p), nil
}

// Flush pushes buffered bytes into the pipe. errs.ErrWouldBlock means the
// pipe filled up again; select for write-readiness and retry.
func (that *Writer) Flush() error {
	that.mu.Lock()
	defer that.mu.Unlock()
	if that.closed {
		return errs.ErrResourceClosed
	}
	for !that.out.IsEmpty() {
		iov := that.out.Peek(0)
		if len(iov) > IovMax {
			iov = iov[:IovMax]
		}
		n, err := sys.Writev(that.fd, iov)
		if n > 0 {
			that.out.Discard(n)
		}
		if err != nil {
			if err == sys.EAGAIN {
				return errs.ErrWouldBlock
			}
			return utils.SysError("writev", err)
		}
	}
	return nil
}

// HasPending reports whether Flush still has queued bytes to deliver.
func (that *Writer) HasPending() bool {
	that.mu.Lock()
	defer that.mu.Unlock()
	return !that.closed && !that.out.IsEmpty()
}

// Close is idempotent. Operations racing in after the buffer is released see
// errs.ErrResourceClosed instead of the released buffer.
func (that *Writer) Close() error {
	that.mu.Lock()
	if that.closed {
		that.mu.Unlock()
		return nil
	}
	that.closed = true
	that.out.Release()
	that.mu.Unlock()
	return utils.SysError("close", sys.CloseFd(that.fd))
}
