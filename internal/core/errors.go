package core

import (
	"errors"
	"fmt"
)

var (
	ErrNoDataAvailable     = errors.New("no data available")
	ErrBudgetNotFound      = errors.New("budget not found")
	ErrNoInstitutions      = errors.New("no connected institutions")
	ErrInvalidDate         = errors.New("invalid date, expected YYYY-MM-DD")
	ErrInvalidMonth        = errors.New("invalid month, expected YYYY-MM")
	ErrInvalidDateRange    = errors.New("start date after end date")
	ErrEmptyUserID         = errors.New("empty user id")
	ErrEmptyCategory       = errors.New("empty budget category")
	ErrInvalidBudgetAmount = errors.New("budget amount must not be negative")
)

// FailureReason classifies a connector fetch failure.
type FailureReason string

const (
	ReasonAuthRequired FailureReason = "AUTH_REQUIRED"
	ReasonRateLimit    FailureReason = "RATE_LIMIT"
	ReasonTransient    FailureReason = "TRANSIENT"
	ReasonUnknown      FailureReason = "UNKNOWN"
)

// ConnectorError is a classified failure from an institution fetch.
// AUTH_REQUIRED must stay distinguishable at the boundary so callers can
// prompt for reconnection instead of reporting a generic failure.
type ConnectorError struct {
	Reason        FailureReason
	InstitutionID string
	Err           error
}

func (e *ConnectorError) Error() string {
	if e.InstitutionID != "" {
		return fmt.Sprintf("connector %s: %s: %v", e.InstitutionID, e.Reason, e.Err)
	}
	return fmt.Sprintf("connector: %s: %v", e.Reason, e.Err)
}

func (e *ConnectorError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the failure may succeed on a later attempt.
// Auth failures never do; retrying them only burns the provider quota.
func (e *ConnectorError) Retryable() bool {
	switch e.Reason {
	case ReasonRateLimit, ReasonTransient:
		return true
	default:
		return false
	}
}

// AuthRequired reports whether err is a ConnectorError with reason
// AUTH_REQUIRED anywhere in its chain.
func AuthRequired(err error) bool {
	var ce *ConnectorError
	return errors.As(err, &ce) && ce.Reason == ReasonAuthRequired
}

// PersistenceError marks a failed store operation. A failed write never fails
// a summary request that already holds fetched data; it is logged instead.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
