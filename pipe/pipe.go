/*
Package pipe provides a connected pair of non-blocking selectable endpoints.
The reactor never touches the bytes moving through them; the endpoints exist
as a concrete resource kind exposing the {descriptor, supported ops}
capability the reactor consumes.
*/
package pipe

import (
	"io"

	"github.com/gaborbarna/cats-effect/iface"
	"github.com/gaborbarna/cats-effect/sys"
	"github.com/gaborbarna/cats-effect/utils"
	"github.com/gaborbarna/cats-effect/utils/errs"
)

// Reader is the read end. It only supports read-readiness; requesting
// write-readiness on it is a caller error the reactor rejects synchronously.
type Reader struct {
	fd int
}

// Pair returns a connected non-blocking (read end, write end) pair.
func Pair() (*Reader, *Writer, error) {
	rfd, wfd, err := sys.Pipe()
	if err != nil {
		return nil, nil, err
	}
	return &Reader{fd: rfd}, newWriter(wfd), nil
}

func (that *Reader) GetFd() int {
	return that.fd
}

func (that *Reader) SupportedOps() iface.Op {
	return iface.ReadReady
}

// Read performs one non-blocking read. A drained pipe reports
// errs.ErrWouldBlock so the caller can re-select and retry; a closed
// write end reports io.EOF.
func (that *Reader) Read(p []byte) (int, error) {
	n, err := sys.Read(that.fd, p)
	if err != nil {
		if err == sys.EAGAIN {
			return 0, errs.ErrWouldBlock
		}
		return 0, utils.SysError("read", err)
	}
	if n == 0 && len(p) > 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (that *Reader) Close() error {
	return utils.SysError("close", sys.CloseFd(that.fd))
}
