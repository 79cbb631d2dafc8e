package stream

import (
	"context"
	"errors"
	"fmt"
)

// ErrProtocol is matched by every ProtocolError.
var ErrProtocol = errors.New("protocol error")

// ProtocolError reports a data segment that is neither empty, the [DONE]
// sentinel, nor valid JSON.
type ProtocolError struct {
	Segment string
	Err     error
}

func (e *ProtocolError) Error() string {
	segment := e.Segment
	if len(segment) > 80 {
		segment = segment[:77] + "..."
	}
	return fmt.Sprintf("invalid event payload %q: %v", segment, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func (e *ProtocolError) Is(target error) bool { return target == ErrProtocol }

// TransportError reports a failure reading the underlying byte source.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("error reading response stream: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsCancelled reports whether err is the result of the stream's context
// being cancelled or timing out.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
