package gateway

import (
	"errors"
	"fmt"
	"net"
)

// ProcessorError normalizes processor failures. Retryable errors leave the
// local entity in flight so a later attempt can finish the work; permanent
// errors fail it.
type ProcessorError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func (e *ProcessorError) Error() string {
	return fmt.Sprintf("processor error [%s]: %s", e.Code, e.Message)
}

// NewProcessorError creates a processor error
func NewProcessorError(code, message string, retryable bool) *ProcessorError {
	return &ProcessorError{Code: code, Message: message, Retryable: retryable}
}

// IsRetryable reports whether an error should be retried rather than
// treated as a terminal failure. Unknown error shapes default to retryable
// so transient infrastructure faults never mark money-movement as FAILED.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProcessorError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	return true
}

// Retryable error codes shared by the adapters
const (
	CodeRateLimited    = "rate_limited"
	CodeAPIUnavailable = "api_unavailable"
	CodeNetwork        = "network_error"

	CodeCardDeclined       = "card_declined"
	CodeInsufficientFunds  = "insufficient_funds"
	CodeInvalidRequest     = "invalid_request"
	CodeAccountNotEligible = "account_not_eligible"
	CodeNotFound           = "resource_missing"
)
