package models

import (
	"errors"
	"net/http"
)

// Error types reported in error.type.
const (
	ErrorTypeInvalidRequest = "invalid_request_error"
	ErrorTypeServer         = "server_error"
	ErrorTypeUpstream       = "upstream_error"
)

// Error codes reported in error.code.
const (
	CodeInvalidRequest      = "invalid_request"
	CodeServerMisconfigured = "server_misconfigured"
	CodeUpstreamError       = "upstream_error"
	CodeNotFound            = "not_found"
	CodeInternal            = "internal_error"
)

// APIError is an error that knows how it is reported to the client.
type APIError struct {
	Status  int
	Type    string
	Code    string
	Message string
	Param   string
}

func (e *APIError) Error() string {
	return e.Message
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains the error fields clients look at.
type ErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param,omitempty"`
	Code    string `json:"code"`
}

// Envelope converts the error into its wire form.
func (e *APIError) Envelope() ErrorResponse {
	return ErrorResponse{Error: ErrorDetail{
		Message: e.Message,
		Type:    e.Type,
		Param:   e.Param,
		Code:    e.Code,
	}}
}

// NewInvalidRequest reports a malformed inbound request (400).
func NewInvalidRequest(message, param string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeInvalidRequest,
		Message: message,
		Param:   param,
	}
}

// NewServerMisconfigured reports missing required configuration (500).
func NewServerMisconfigured(message string) *APIError {
	return &APIError{
		Status:  http.StatusInternalServerError,
		Type:    ErrorTypeServer,
		Code:    CodeServerMisconfigured,
		Message: message,
	}
}

// NewUpstreamError reports an upstream failure. A status outside the error
// range becomes 500.
func NewUpstreamError(status int, message string) *APIError {
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}
	return &APIError{
		Status:  status,
		Type:    ErrorTypeUpstream,
		Code:    CodeUpstreamError,
		Message: message,
	}
}

// NewNotFound reports an unmatched route (404).
func NewNotFound(message string) *APIError {
	return &APIError{
		Status:  http.StatusNotFound,
		Type:    ErrorTypeInvalidRequest,
		Code:    CodeNotFound,
		Message: message,
	}
}

// AsAPIError returns the APIError in err's chain, or a generic 500 for anything else.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return &APIError{
		Status:  http.StatusInternalServerError,
		Type:    ErrorTypeServer,
		Code:    CodeInternal,
		Message: "internal server error",
	}
}
