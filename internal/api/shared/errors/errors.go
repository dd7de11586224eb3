package errors

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/feral-file/ff-custody-ledger/internal/domain"
)

// ErrorCode represents a standardized error code
type ErrorCode string

const (
	// Client errors (4xx)
	ErrCodeBadRequest       ErrorCode = "bad_request"
	ErrCodeNotFound         ErrorCode = "not_found"
	ErrCodeValidationFailed ErrorCode = "validation_failed"
	ErrCodeUnauthenticated  ErrorCode = "unauthenticated"

	// Ledger rejections
	ErrCodeUnauthorized             ErrorCode = "unauthorized"
	ErrCodeUnauthorizedIssuance     ErrorCode = "unauthorized_issuance"
	ErrCodeInvalidAddress           ErrorCode = "invalid_address"
	ErrCodeTokenNotFound            ErrorCode = "token_not_found"
	ErrCodeTransferNotFound         ErrorCode = "transfer_not_found"
	ErrCodeTransferAlreadyPending   ErrorCode = "transfer_already_pending"
	ErrCodeNotOwner                 ErrorCode = "not_owner"
	ErrCodeNotRecipient             ErrorCode = "not_recipient"
	ErrCodeUnauthorizedCancellation ErrorCode = "unauthorized_cancellation"
	ErrCodeDirectTransferDisabled   ErrorCode = "direct_transfer_disabled"
	ErrCodeInvalidSerialHash        ErrorCode = "invalid_serial_hash"
	ErrCodeSerialAlreadySet         ErrorCode = "serial_already_set"
	ErrCodeSerialHashAlreadyExists  ErrorCode = "serial_hash_already_exists"
	ErrCodeSerialNotFound           ErrorCode = "serial_not_found"
	ErrCodeAlreadyAuthorized        ErrorCode = "already_authorized"
	ErrCodeNotAuthorized            ErrorCode = "not_authorized"

	// Server errors (5xx)
	ErrCodeInternalError ErrorCode = "internal_error"
)

// APIError represents a structured API error that carries error code and details
type APIError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	jsonErr, _ := json.Marshal(e)
	return string(jsonErr)
}

// ErrorResponse is the envelope every error is returned in
type ErrorResponse struct {
	Error *APIError `json:"error"`
}

// Error constructors for common error types
func NewBadRequestError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeBadRequest,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewNotFoundError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeNotFound,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewValidationError(details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeValidationFailed,
		Message: "Validation failed",
		Details: strings.Join(details, ", "),
	}
}

func NewUnauthenticatedError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeUnauthenticated,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

func NewInternalError(message string, details ...string) *APIError {
	return &APIError{
		Code:    ErrCodeInternalError,
		Message: message,
		Details: strings.Join(details, ", "),
	}
}

// ledgerErrors maps ledger rejections to their status and code.
// ErrUnauthorizedIssuance precedes ErrUnauthorized because it wraps it.
var ledgerErrors = []struct {
	err    error
	status int
	code   ErrorCode
}{
	{domain.ErrUnauthorizedIssuance, http.StatusForbidden, ErrCodeUnauthorizedIssuance},
	{domain.ErrUnauthorized, http.StatusForbidden, ErrCodeUnauthorized},
	{domain.ErrNotOwner, http.StatusForbidden, ErrCodeNotOwner},
	{domain.ErrNotRecipient, http.StatusForbidden, ErrCodeNotRecipient},
	{domain.ErrUnauthorizedCancellation, http.StatusForbidden, ErrCodeUnauthorizedCancellation},
	{domain.ErrDirectTransferDisabled, http.StatusForbidden, ErrCodeDirectTransferDisabled},
	{domain.ErrTokenNotFound, http.StatusNotFound, ErrCodeTokenNotFound},
	{domain.ErrTransferNotFound, http.StatusNotFound, ErrCodeTransferNotFound},
	{domain.ErrSerialNotFound, http.StatusNotFound, ErrCodeSerialNotFound},
	{domain.ErrInvalidAddress, http.StatusBadRequest, ErrCodeInvalidAddress},
	{domain.ErrInvalidSerialHash, http.StatusBadRequest, ErrCodeInvalidSerialHash},
	{domain.ErrTransferAlreadyPending, http.StatusConflict, ErrCodeTransferAlreadyPending},
	{domain.ErrSerialAlreadySet, http.StatusConflict, ErrCodeSerialAlreadySet},
	{domain.ErrSerialHashAlreadyExists, http.StatusConflict, ErrCodeSerialHashAlreadyExists},
	{domain.ErrAlreadyAuthorized, http.StatusConflict, ErrCodeAlreadyAuthorized},
	{domain.ErrNotAuthorized, http.StatusConflict, ErrCodeNotAuthorized},
}

// FromLedgerError maps a ledger error to its HTTP status and API error.
// The second result is false for errors that are not ledger rejections.
func FromLedgerError(err error) (int, *APIError, bool) {
	for _, m := range ledgerErrors {
		if errors.Is(err, m.err) {
			return m.status, &APIError{Code: m.code, Message: m.err.Error(), Details: detailsOf(err, m.err)}, true
		}
	}
	return http.StatusInternalServerError, NewInternalError("Internal server error"), false
}

// detailsOf returns the context wrapped around a sentinel, if any
func detailsOf(err, sentinel error) string {
	if err.Error() == sentinel.Error() {
		return ""
	}
	return err.Error()
}
