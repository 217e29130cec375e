package core

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors for recovery decisions.
type ErrorCategory string

const (
	ErrCatAdmission        ErrorCategory = "admission"         // Lane admission failure
	ErrCatWait             ErrorCategory = "wait"              // Lane wait failure
	ErrCatRateLimit        ErrorCategory = "rate_limit"        // Provider rate limited
	ErrCatAuth             ErrorCategory = "auth"              // Authentication failure
	ErrCatModelUnavailable ErrorCategory = "model_unavailable" // Requested model down or unknown
	ErrCatContextLength    ErrorCategory = "context_length"    // Prompt exceeds context window
	ErrCatNetwork          ErrorCategory = "network"           // Network connectivity
	ErrCatUnknown          ErrorCategory = "unknown"           // Unclassified runtime failure
	ErrCatValidation       ErrorCategory = "validation"        // Invalid input
	ErrCatInternal         ErrorCategory = "internal"          // Unexpected internal error
)

// ErrValidation creates a validation error.
func ErrValidation(code, message string) *DomainError {
	return &DomainError{
		Category:  ErrCatValidation,
		Code:      code,
		Message:   message,
		Retryable: false,
	}
}

// DomainError represents a structured error from the control plane.
type DomainError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Retryable bool
	Cause     error
	Details   map[string]interface{}
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %s (%v)", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Category == t.Category && e.Code == t.Code
}

// WithCause wraps an underlying error.
func (e *DomainError) WithCause(cause error) *DomainError {
	e.Cause = cause
	return e
}

// WithDetail adds contextual information.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Admission and wait error codes.
const (
	CodeLaneCapacity    = "LANE_AT_CAPACITY"
	CodeAgentNotInLane  = "AGENT_NOT_IN_LANE"
	CodeUnknownLane     = "UNKNOWN_LANE"
	CodeLaneWaitTimeout = "LANE_WAIT_TIMEOUT"
	CodePromotionDenied = "PROMOTION_DENIED"
	CodeAgentBusy       = "AGENT_BUSY"
)

// ErrLaneCapacity reports that a lane has no free slots.
func ErrLaneCapacity(lane string) *DomainError {
	return &DomainError{
		Category:  ErrCatAdmission,
		Code:      CodeLaneCapacity,
		Message:   "Lane at capacity",
		Retryable: true,
		Details:   map[string]interface{}{"lane": lane},
	}
}

// ErrAgentNotInLane reports a release for an agent that holds no lane.
func ErrAgentNotInLane(agentID string) *DomainError {
	return &DomainError{
		Category:  ErrCatAdmission,
		Code:      CodeAgentNotInLane,
		Message:   "Agent not in any lane",
		Retryable: false,
		Details:   map[string]interface{}{"agent_id": agentID},
	}
}

// ErrUnknownLane reports an operation against an unconfigured lane.
func ErrUnknownLane(lane string) *DomainError {
	return &DomainError{
		Category:  ErrCatAdmission,
		Code:      CodeUnknownLane,
		Message:   fmt.Sprintf("Unknown lane: %s", lane),
		Retryable: false,
	}
}

// ErrLaneWaitTimeout reports that a queued waiter timed out before a slot
// became free.
func ErrLaneWaitTimeout(lane string) *DomainError {
	return &DomainError{
		Category:  ErrCatWait,
		Code:      CodeLaneWaitTimeout,
		Message:   "Lane wait timeout",
		Retryable: true,
		Details:   map[string]interface{}{"lane": lane},
	}
}

// ErrPromotionDenied reports a rejected lane promotion with the specific
// reason string.
func ErrPromotionDenied(reason string) *DomainError {
	return &DomainError{
		Category:  ErrCatAdmission,
		Code:      CodePromotionDenied,
		Message:   reason,
		Retryable: false,
	}
}

// ErrAgentBusy reports an acquire for an agent that already holds a
// different lane.
func ErrAgentBusy(agentID, lane string) *DomainError {
	return &DomainError{
		Category:  ErrCatAdmission,
		Code:      CodeAgentBusy,
		Message:   fmt.Sprintf("Agent already holds lane %s", lane),
		Retryable: false,
		Details:   map[string]interface{}{"agent_id": agentID, "lane": lane},
	}
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Retryable
	}
	return false
}

// GetCategory extracts the error category.
func GetCategory(err error) ErrorCategory {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Category
	}
	return ErrCatInternal
}

// GetCode extracts the error code, or "" for unstructured errors.
func GetCode(err error) string {
	var domErr *DomainError
	if errors.As(err, &domErr) {
		return domErr.Code
	}
	return ""
}

// IsCategory checks if an error belongs to a category.
func IsCategory(err error, cat ErrorCategory) bool {
	return GetCategory(err) == cat
}
