package appointment

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrPatientNotFound     = fmt.Errorf("patient %w", ErrNotFound)
	ErrPhysicianNotFound   = fmt.Errorf("physician %w", ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("appointment %w", ErrNotFound)

	ErrDuplicateIdentifier = errors.New("identifier already registered")
	ErrNationalIDTaken     = fmt.Errorf("national id: %w", ErrDuplicateIdentifier)
	ErrLicenseTaken        = fmt.Errorf("license number: %w", ErrDuplicateIdentifier)

	ErrRuleViolation       = errors.New("outside physician availability")
	ErrNotWorkingDay       = fmt.Errorf("physician does not work on this weekday: %w", ErrRuleViolation)
	ErrOutsideWorkingHours = fmt.Errorf("time is not within a single working interval: %w", ErrRuleViolation)
	ErrBlockedDate         = fmt.Errorf("physician is blocked on this date: %w", ErrRuleViolation)

	ErrConflict                = errors.New("overlaps an existing appointment")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrScheduleBusy            = errors.New("physician schedule is being modified, please retry")
)

// ValidationError reports structurally invalid input. It is returned before
// any repository access.
type ValidationError struct {
	Fields []string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + strings.Join(e.Fields, "; ")
}

type validator struct {
	fields []string
}

func (v *validator) check(ok bool, msg string) {
	if !ok {
		v.fields = append(v.fields, msg)
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: v.fields}
}
