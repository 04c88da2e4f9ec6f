package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a domain error for callers that only need the category
type ErrorKind string

const (
	KindNotFound        ErrorKind = "NOT_FOUND"
	KindValidation      ErrorKind = "VALIDATION"
	KindAdmissionDenied ErrorKind = "ADMISSION_DENIED"
	KindStateConflict   ErrorKind = "STATE_CONFLICT"
	KindStore           ErrorKind = "STORE"
)

// Error is a kinded domain error. Message is safe to show to the caller.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target without a code
// matches every error of its kind, otherwise codes must match too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// Withf returns a copy of e with a more specific message
func (e *Error) Withf(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

// Kind sentinels
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrAdmissionDenied = &Error{Kind: KindAdmissionDenied}
	ErrStateConflict   = &Error{Kind: KindStateConflict}
	ErrStore           = &Error{Kind: KindStore}
)

// Domain errors
var (
	// Lookup errors
	ErrDestinationNotFound = &Error{Kind: KindNotFound, Code: "DESTINATION_NOT_FOUND", Message: "destination not found"}
	ErrZoneNotFound        = &Error{Kind: KindNotFound, Code: "ZONE_NOT_FOUND", Message: "zone not found"}
	ErrBookingNotFound     = &Error{Kind: KindNotFound, Code: "BOOKING_NOT_FOUND", Message: "booking not found"}
	ErrActionOrderNotFound = &Error{Kind: KindNotFound, Code: "ACTION_ORDER_NOT_FOUND", Message: "action order not found"}

	// Validation errors
	ErrInvalidUserID        = &Error{Kind: KindValidation, Code: "INVALID_USER_ID", Message: "invalid user id"}
	ErrInvalidDestinationID = &Error{Kind: KindValidation, Code: "INVALID_DESTINATION_ID", Message: "invalid destination id"}
	ErrInvalidVisitorCount  = &Error{Kind: KindValidation, Code: "INVALID_VISITOR_COUNT", Message: "number of visitors must be greater than zero"}
	ErrVisitDateInPast      = &Error{Kind: KindValidation, Code: "VISIT_DATE_IN_PAST", Message: "visit date cannot be in the past"}
	ErrVisitorDetailsCount  = &Error{Kind: KindValidation, Code: "VISITOR_DETAILS_MISMATCH", Message: "visitor details must match the number of visitors"}
	ErrInvalidCapacityRule  = &Error{Kind: KindValidation, Code: "INVALID_CAPACITY_RULE", Message: "invalid capacity rule"}
	ErrInvalidPricingRule   = &Error{Kind: KindValidation, Code: "INVALID_PRICING_RULE", Message: "invalid pricing rule"}
	ErrInvalidActionOrder   = &Error{Kind: KindValidation, Code: "INVALID_ACTION_ORDER", Message: "invalid action order"}
	ErrLocationProofMissing = &Error{Kind: KindValidation, Code: "LOCATION_PROOF_REQUIRED", Message: "completion requires a location proof"}
	ErrLocationProofTooFar  = &Error{Kind: KindValidation, Code: "LOCATION_PROOF_TOO_FAR", Message: "completion location is too far from the target"}

	// Admission errors
	ErrDestinationUnavailable = &Error{Kind: KindAdmissionDenied, Code: "DESTINATION_UNAVAILABLE", Message: "destination is not open for bookings"}
	ErrCapacityExceeded       = &Error{Kind: KindAdmissionDenied, Code: "CAPACITY_EXCEEDED", Message: "not enough capacity"}
	ErrZoneBlocked            = &Error{Kind: KindAdmissionDenied, Code: "ZONE_BLOCKED", Message: "zone is at critical capacity, entry is blocked"}

	// Checkpoint and lifecycle errors
	ErrInvalidToken       = &Error{Kind: KindNotFound, Code: "INVALID_TOKEN", Message: "invalid entry token"}
	ErrAlreadyCancelled   = &Error{Kind: KindStateConflict, Code: "ALREADY_CANCELLED", Message: "booking has been cancelled"}
	ErrAlreadyUsed        = &Error{Kind: KindStateConflict, Code: "ALREADY_USED", Message: "booking has already been used"}
	ErrAlreadyCheckedIn   = &Error{Kind: KindStateConflict, Code: "ALREADY_CHECKED_IN", Message: "visitors have already checked in"}
	ErrNotConfirmed       = &Error{Kind: KindStateConflict, Code: "NOT_CONFIRMED", Message: "booking is not confirmed"}
	ErrWrongDate          = &Error{Kind: KindStateConflict, Code: "WRONG_DATE", Message: "booking is not valid today"}
	ErrNotCheckedIn       = &Error{Kind: KindStateConflict, Code: "NOT_CHECKED_IN", Message: "visitors have not checked in"}
	ErrCannotCancel       = &Error{Kind: KindStateConflict, Code: "CANNOT_CANCEL", Message: "completed bookings cannot be cancelled"}
	ErrInvalidTransition  = &Error{Kind: KindStateConflict, Code: "INVALID_TRANSITION", Message: "invalid status transition"}
	ErrDuplicateReference = &Error{Kind: KindStateConflict, Code: "DUPLICATE_REFERENCE", Message: "booking reference already exists"}
)

// NewStoreError wraps a collaborator failure
func NewStoreError(op string, err error) *Error {
	return &Error{Kind: KindStore, Code: "STORE_ERROR", Message: op, Err: err}
}

// DeniedError builds an admission denial carrying a human-readable reason
func DeniedError(reason string) *Error {
	return ErrCapacityExceeded.Withf("%s", reason)
}

// KindOf returns the kind of err, or "" when err is not a domain error
func KindOf(err error) ErrorKind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

// CodeOf returns the code of err, or "" when err is not a domain error
func CodeOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsAdmissionDenied checks if the error is a capacity or crowd-control denial
func IsAdmissionDenied(err error) bool {
	return errors.Is(err, ErrAdmissionDenied)
}

// IsConflictError checks if the error is an illegal state transition
func IsConflictError(err error) bool {
	return errors.Is(err, ErrStateConflict)
}

// IsStoreError checks if the error came from the persistence layer
func IsStoreError(err error) bool {
	return errors.Is(err, ErrStore)
}
