package booking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrBookingNotFound   = errors.New("booking not found")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrNotOwner          = errors.New("booking belongs to another customer")
	ErrForbidden         = errors.New("role may not perform this action")
	// ErrFinalizePending means gate 3 was recorded but the calendar could not
	// be confirmed yet. The reconciler completes it.
	ErrFinalizePending = errors.New("final approval recorded, confirmation pending")
	// ErrStatusChanged is returned by Repository.Update when the stored status
	// no longer matches the expected one.
	ErrStatusChanged = errors.New("booking status changed concurrently")
)

// TransitionError reports a gate, pay or reject attempt from the wrong status.
type TransitionError struct {
	Actual   Status
	Required []Status
}

func (e *TransitionError) Error() string {
	req := make([]string, len(e.Required))
	for i, s := range e.Required {
		req[i] = string(s)
	}
	return fmt.Sprintf("invalid state transition: current status %s, required %s", e.Actual, strings.Join(req, " or "))
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}
