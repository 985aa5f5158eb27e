package process

import (
	"errors"

	"github.com/joeycumines/go-dslab/kernel"
)

// Simulated-failure sentinels for reliable sends (SendError family) and
// the no-storage-attached case.
var (
	ErrSendTimeout = errors.New("process: send timed out")
	ErrSendNotSent = errors.New("process: message was dropped")
	ErrNoStorage   = errors.New("process: node has no storage attached")
)

func wrapf(op string, sentinel error) error { return kernel.WrapError(op, sentinel) }
