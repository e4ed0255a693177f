package projection

import (
	"errors"
	"fmt"
)

// ErrEngineClosed is returned by Post after Close.
var ErrEngineClosed = errors.New("projection engine closed")

// CalculationError reports an unknown message type, malformed input or a
// calculator failure. It is returned as an ERROR reply, never panicked.
type CalculationError struct {
	Type MessageType
	Msg  string
	Err  error
}

func (e *CalculationError) Error() string {
	var s string
	if e.Type != "" {
		s = fmt.Sprintf("%s: %s", e.Type, e.Msg)
	} else {
		s = e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *CalculationError) Unwrap() error {
	return e.Err
}

func invalidInput(format string, args ...any) error {
	return &CalculationError{Msg: fmt.Sprintf(format, args...)}
}
