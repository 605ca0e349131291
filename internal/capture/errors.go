package capture

import (
	"context"
	"errors"
	"fmt"
)

// Detection failure kinds, matched with errors.Is.
var (
	ErrDeviceLost = errors.New("camera device lost")
	ErrTimeout    = errors.New("detection timed out")
)

// DetectionError reports why a detection run produced no result.
type DetectionError struct {
	Kind error
	Err  error
}

func (e *DetectionError) Error() string {
	if e.Err == nil {
		return "detection: " + e.Kind.Error()
	}
	return fmt.Sprintf("detection: %v: %v", e.Kind, e.Err)
}

func (e *DetectionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// fromContext turns a deadline into a Timeout; plain cancellation passes through.
func fromContext(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &DetectionError{Kind: ErrTimeout, Err: err}
	}
	return err
}
