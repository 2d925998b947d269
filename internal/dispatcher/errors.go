package dispatcher

import (
	"errors"
	"fmt"
)

// ErrTotalFailure is matched with errors.Is when neither an AI provider nor
// the photo fallback could produce a result.
var ErrTotalFailure = errors.New("all image generation methods failed")

// FailureError carries the detail of a total failure so the HTTP layer can
// surface it without parsing the message.
type FailureError struct {
	Details string
	cause   error
}

func (e *FailureError) Error() string {
	if e.Details == "" {
		return ErrTotalFailure.Error()
	}
	return fmt.Sprintf("%s: %s", ErrTotalFailure.Error(), e.Details)
}

func (e *FailureError) Unwrap() []error {
	if e.cause == nil {
		return []error{ErrTotalFailure}
	}
	return []error{ErrTotalFailure, e.cause}
}

func newFailure(cause error) error {
	return &FailureError{Details: cause.Error(), cause: cause}
}

// AsFailure extracts the failure detail when err is a total failure.
func AsFailure(err error) (string, bool) {
	var failure *FailureError
	if errors.As(err, &failure) {
		return failure.Details, true
	}
	return "", false
}
