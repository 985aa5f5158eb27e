package storage

import (
	"errors"

	"github.com/joeycumines/go-dslab/kernel"
)

// Sentinel errors every operation wraps via kernel.WrapError, so callers
// can use errors.Is rather than matching on message text.
var (
	ErrAlreadyExists    = errors.New("storage: file already exists")
	ErrNotFound         = errors.New("storage: file not found")
	ErrUnavailable      = errors.New("storage: unavailable")
	ErrBufferSizeExceed = errors.New("storage: buffer size exceeds maximum")
	ErrOutOfMemory      = errors.New("storage: disk out of space")
)

func wrapf(op string, sentinel error) error { return kernel.WrapError(op, sentinel) }
