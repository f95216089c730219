package http

import (
	"fmt"
	"net/http"
)

// AppError is a domain failure rendered into the response envelope.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

// WithParam sets one error param, e.g. the index of a rejected batch item.
func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = map[string]interface{}{}
	}
	e.Params[key] = value
	return e
}

func (e *AppError) WithField(field string) *AppError {
	e.Field = field
	return e
}

func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

func appError(status int, code, message string) *AppError {
	return &AppError{Code: code, Message: message, Status: status}
}

func NotFoundError(message string) *AppError {
	return appError(http.StatusNotFound, "ERR_NOT_FOUND", message)
}

func NotFoundErrorf(format string, a ...interface{}) *AppError {
	return NotFoundError(fmt.Sprintf(format, a...))
}

func BadRequestError(message string) *AppError {
	return appError(http.StatusBadRequest, "ERR_BAD_REQUEST", message)
}

// TooManyRequestsError is returned when a client exceeds its rate limit.
func TooManyRequestsError(message string) *AppError {
	return appError(http.StatusTooManyRequests, "ERR_RATE_LIMITED", message)
}

// UnavailableError is returned while a dependency or the ingest path is down.
func UnavailableError(message string) *AppError {
	return appError(http.StatusServiceUnavailable, "ERR_UNAVAILABLE", message)
}

func InternalError(message string) *AppError {
	return appError(http.StatusInternalServerError, "ERR_INTERNAL", message)
}
