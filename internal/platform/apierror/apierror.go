// Package apierror defines the error envelope shared by every endpoint and
// the echo error handler that renders it.
package apierror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeConflict             = "CONFLICT"
	CodeNotFound             = "NOT_FOUND"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodePayloadTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeInternal             = "INTERNAL_ERROR"
)

// Machine-readable errorCode values.
const (
	ErrMissingRequiredFields = "MISSING_REQUIRED_FIELDS"
	ErrInvalidField          = "INVALID_FIELD"
	ErrInvalidQuery          = "INVALID_QUERY"
	ErrNoUpdatableFields     = "NO_UPDATABLE_FIELDS"
	ErrDuplicateKey          = "DUPLICATE_KEY"
	ErrDuplicatePatient      = "DUPLICATE_PATIENT"
	ErrPatientNotFound       = "PATIENT_NOT_FOUND"
	ErrUserNotFound          = "USER_NOT_FOUND"
)

// Error is the envelope {code, message, errorCode?, details?}.
type Error struct {
	Status    int      `json:"-"`
	Code      string   `json:"code"`
	Message   string   `json:"message"`
	ErrorCode string   `json:"errorCode,omitempty"`
	Details   []string `json:"details,omitempty"`
}

func (e *Error) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("%s: %s %v", e.Code, e.Message, e.Details)
	}
	return e.Code + ": " + e.Message
}

func Validation(errorCode, message string, details ...string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: message, ErrorCode: errorCode, Details: details}
}

func Conflict(errorCode, message string) *Error {
	return &Error{Status: http.StatusConflict, Code: CodeConflict, Message: message, ErrorCode: errorCode}
}

func NotFound(errorCode, message string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: message, ErrorCode: errorCode}
}

func UnsupportedMediaType(message string) *Error {
	return &Error{Status: http.StatusUnsupportedMediaType, Code: CodeUnsupportedMediaType, Message: message}
}

func PayloadTooLarge(limit int64) *Error {
	return &Error{Status: http.StatusRequestEntityTooLarge, Code: CodePayloadTooLarge,
		Message: fmt.Sprintf("request body exceeds %d bytes", limit)}
}

// Internal wraps a store or runtime failure; the underlying message is kept.
func Internal(err error) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: err.Error()}
}

// From converts any error into an envelope.
func From(err error) *Error {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return fromHTTPError(httpErr)
	}
	return Internal(err)
}

func fromHTTPError(he *echo.HTTPError) *Error {
	msg := http.StatusText(he.Code)
	if m, ok := he.Message.(string); ok && m != "" {
		msg = m
	}
	out := &Error{Status: he.Code, Message: msg}
	switch he.Code {
	case http.StatusBadRequest:
		out.Code = CodeValidation
	case http.StatusNotFound:
		out.Code = CodeNotFound
	case http.StatusConflict:
		out.Code = CodeConflict
	case http.StatusUnsupportedMediaType:
		out.Code = CodeUnsupportedMediaType
	case http.StatusRequestEntityTooLarge:
		out.Code = CodePayloadTooLarge
	case http.StatusInternalServerError:
		out.Code = CodeInternal
	default:
		out.Code = http.StatusText(he.Code)
	}
	return out
}

// Handler is installed as echo's HTTPErrorHandler.
func Handler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		apiErr := From(err)
		if apiErr.Status >= http.StatusInternalServerError {
			logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("request failed")
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(apiErr.Status)
		} else {
			writeErr = c.JSON(apiErr.Status, apiErr)
		}
		if writeErr != nil {
			logger.Error().Err(writeErr).Msg("write error response")
		}
	}
}
