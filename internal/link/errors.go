package link

import (
	"errors"
	"fmt"
)

var (
	ErrAdapterDisabled  = errors.New("link: bluetooth adapter is not enabled")
	ErrPermissionDenied = errors.New("link: bluetooth permission denied")
	ErrDeviceNotFound   = errors.New("link: no matching paired device")
	ErrNotConnected     = errors.New("link: not connected")
	ErrTransport        = errors.New("link: transport i/o error")
)

// TransportError wraps a failure of the underlying stream.
// errors.Is(err, ErrTransport) holds for every TransportError.
type TransportError struct {
	Op  string // "dial", "write" or "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("link: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

func (e *TransportError) Is(target error) bool { return target == ErrTransport }
