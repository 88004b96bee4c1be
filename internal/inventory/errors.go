package inventory

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrCalendarNotFound = errors.New("calendar not found")
	ErrCalendarExists   = errors.New("calendar already exists")
	ErrVersionMismatch  = errors.New("calendar version mismatch")
	ErrCalendarBusy     = errors.New("calendar is under heavy contention, please retry")
	ErrHoldNotFound     = errors.New("hold not found or expired")
	ErrHoldNotOwned     = errors.New("hold belongs to another user")
	ErrSlotConflict     = errors.New("slot conflict")
	ErrValidation       = errors.New("validation failed")
)

// SlotConflictError lists the requested slots that were not AVAILABLE.
type SlotConflictError struct {
	Indices []int
}

func (e *SlotConflictError) Error() string {
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprint(idx)
	}
	return fmt.Sprintf("slots %s are no longer available", strings.Join(parts, ", "))
}

func (e *SlotConflictError) Is(target error) bool {
	return target == ErrSlotConflict
}

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}
