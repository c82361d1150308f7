package errs

import "errors"

var (
	ErrUnsupportedOp   = errors.New("operation not supported by resource")
	ErrResourceClosed  = errors.New("resource has been closed")
	ErrReactorShutdown = errors.New("reactor is going to be shutdown")
	ErrWouldBlock      = errors.New("operation would block")
)
