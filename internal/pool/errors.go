package pool

import "errors"

var (
	ErrPoolClosed      = errors.New("pool is closed")
	ErrWorkerCrashed   = errors.New("worker crashed")
	ErrTaskTimeout     = errors.New("task timed out")
	ErrUnknownCategory = errors.New("unknown pool category")
)
