package service

import (
	"fmt"
	"net/http"
)

// ServiceError is a client-facing failure carrying its HTTP status and a stable code.
// Errors that are not ServiceErrors are storage or programming faults.
type ServiceError struct {
	Status    int
	Code      string
	Message   string
	Cause     error
	Conflicts []ConflictEntry
}

func (e *ServiceError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *ServiceError) Unwrap() error { return e.Cause }

func newServiceError(status int, code, message string, cause error) *ServiceError {
	return &ServiceError{Status: status, Code: code, Message: message, Cause: cause}
}

func badRequest(code, message string, cause error) *ServiceError {
	return newServiceError(http.StatusBadRequest, code, message, cause)
}

func notFound(code, message string) *ServiceError {
	return newServiceError(http.StatusNotFound, code, message, nil)
}

const (
	CodeInvalidID       = "MARGIN_INVALID_ID"
	CodeInvalidValue    = "MARGIN_INVALID_VALUE"
	CodeInvalidDate     = "MARGIN_INVALID_DATE"
	CodeFutureStart     = "MARGIN_FUTURE_START"
	CodeInvalidWindow   = "MARGIN_INVALID_WINDOW"
	CodeDuplicateStart  = "MARGIN_DUPLICATE_START"
	CodeMarginNotFound  = "MARGIN_NOT_FOUND"
	CodeMarginConflict  = "MARGIN_CONFLICT"
	CodeInvalidCurrency = "RATE_INVALID_CURRENCY"
	CodeInvalidAmount   = "RATE_INVALID_AMOUNT"
	CodeInvalidRateDate = "RATE_INVALID_DATE"
	CodeRateNotFound    = "RATE_NOT_FOUND"
	CodeInvalidAction   = "AUDIT_INVALID_ACTION"
)
