package fetch

import (
	"context"
	"errors"
	"fmt"
)

// ErrTimeout is returned when a fetch does not complete within its budget
// or the process outlives its own timeout.
var ErrTimeout = errors.New("fetch timed out")

// ProcessError reports a fetch command that could not be started or exited
// with a non-zero status. Stderr holds the command's diagnostic output.
type ProcessError struct {
	ExitCode int
	Stderr   string
	Err      error
}

func (e *ProcessError) Error() string {
	msg := "fetch process failed"
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("fetch process exited with status %d", e.ExitCode)
	}
	if e.Stderr != "" {
		return msg + ": " + e.Stderr
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ProcessError) Unwrap() error { return e.Err }

// DecodeError reports output that is not a UTF-8 JSON array of candles.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "decode fetch output: " + e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Kind returns a short label for err, suitable for logs and metric labels.
func Kind(err error) string {
	var procErr *ProcessError
	var decErr *DecodeError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.As(err, &procErr):
		return "process"
	case errors.As(err, &decErr):
		return "decode"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "unknown"
	}
}
