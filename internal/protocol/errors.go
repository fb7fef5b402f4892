package protocol

import (
	"errors"
	"fmt"
)

// ErrDisconnected is returned once the transport event stream has ended.
var ErrDisconnected = errors.New("compositor connection closed")

// ConnectionError is fatal: the compositor link could not be established or
// lacks a required capability.
type ConnectionError struct {
	Transport string
	Missing   Capability
	Err       error
}

func (e *ConnectionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Missing != 0 {
		return fmt.Sprintf("connect %s: compositor does not advertise required capabilities: %s", e.Transport, e.Missing)
	}
	return fmt.Sprintf("connect %s: %v", e.Transport, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}
