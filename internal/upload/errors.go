package upload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptySession = errors.New("upload: no data to upload, capture some frames first")
	ErrTimeout      = errors.New("upload: attempt timed out")
	ErrJobNotFound  = errors.New("upload: job not found")
)

// FailureKind classifies how an attempt failed.
type FailureKind int

const (
	// FailureTransport means no complete response was read.
	FailureTransport FailureKind = iota
	// FailureStatus is a non-2xx response.
	FailureStatus
	// FailureDecode is a 2xx response whose body was not valid JSON.
	FailureDecode
	// FailureRejected is a 2xx response carrying success:false.
	FailureRejected
)

// TransportError describes one failed attempt. StatusCode is zero when no
// response was received.
type TransportError struct {
	Attempt    int
	Kind       FailureKind
	StatusCode int
	Detail     string
	Timeout    bool
	Err        error
}

func (e *TransportError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "upload: attempt %d", e.Attempt)
	switch {
	case e.Timeout:
		b.WriteString(": timed out")
	case e.Kind == FailureStatus && e.Detail != "":
		fmt.Fprintf(&b, ": HTTP %d: %s", e.StatusCode, e.Detail)
	case e.Kind == FailureStatus:
		fmt.Fprintf(&b, ": HTTP %d", e.StatusCode)
	case e.Detail != "":
		fmt.Fprintf(&b, ": %s", e.Detail)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports timeouts as ErrTimeout.
func (e *TransportError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout
}
