package aria2

import (
	"errors"
	"fmt"
)

// ErrTaskNotFound reports that aria2 has no download with the requested GID.
// It is returned for both never-existed and already-purged tasks.
var ErrTaskNotFound = errors.New("aria2: task not found")

// ConnError reports a transport-level failure: the RPC endpoint could not be
// reached or did not answer in time.
type ConnError struct {
	Op  string
	Err error
}

func (e *ConnError) Error() string {
	return fmt.Sprintf("aria2: %s: %v", e.Op, e.Err)
}

func (e *ConnError) Unwrap() error { return e.Err }

// RequestError reports that aria2 accepted the connection but rejected the
// request: a JSON-RPC error object or a malformed envelope.
type RequestError struct {
	Method  string
	Code    int
	Message string
}

func (e *RequestError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("aria2: %s: rpc error %d: %s", e.Method, e.Code, e.Message)
	}
	return fmt.Sprintf("aria2: %s: %s", e.Method, e.Message)
}

// IsConnError reports whether err is a transport failure.
func IsConnError(err error) bool {
	var ce *ConnError
	return errors.As(err, &ce)
}
