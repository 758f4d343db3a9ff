package errors

import (
	stderrors "errors"
)

// DomainError is a sentinel returned by services. Handlers translate it into an
// APIError with FromError. Compare with errors.Is.
type DomainError struct {
	Code    ErrorCode
	Message string
	Field   string
}

func (e *DomainError) Error() string {
	return e.Message
}

// New declares a sentinel domain error.
func New(code ErrorCode, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// NewField declares a sentinel validation error bound to a request field.
func NewField(field, message string) *DomainError {
	return &DomainError{Code: ErrValidation, Message: message, Field: field}
}

// FromError converts any error into an APIError. Unknown errors become
// INTERNAL_ERROR without leaking their text to the client.
func FromError(err error) *APIError {
	if err == nil {
		return nil
	}

	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr
	}

	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return &APIError{
			Code:    domainErr.Code,
			Message: domainErr.Message,
			Field:   domainErr.Field,
			Status:  domainErr.Code.StatusCode(),
		}
	}

	return InternalError("internal server error")
}

// CodeOf returns the error code carried by err, or INTERNAL_ERROR.
func CodeOf(err error) ErrorCode {
	var domainErr *DomainError
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Code
	}
	return ErrInternalError
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}
