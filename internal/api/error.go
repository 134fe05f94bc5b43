package api

import (
	"encoding/json"
	"net/http"
)

const genericErrorMessage = "An unexpected error occurred"

// Error is the uniform shape every failed remote call is reduced to.
// Detail carries the server's structured explanation when one was
// returned; Message is the transport-level fallback. Status is the HTTP
// status code, or zero when the failure never produced a response.
type Error struct {
	Detail  string `json:"detail,omitempty"`
	Message string `json:"message,omitempty"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Detail
	}
	if e.Message != "" {
		return e.Message
	}
	return genericErrorMessage
}

// NotFound reports whether the failure was a 404. The Dexcom status
// endpoint uses 404 to mean "never connected", which callers treat as a
// benign state rather than an error.
func (e *Error) NotFound() bool {
	return e.Status == http.StatusNotFound
}

// normalizeResponse converts a non-2xx response body into an *Error.
// A parseable JSON body carrying detail or message is forwarded
// verbatim; anything else gets the generic message.
func normalizeResponse(status int, body []byte) *Error {
	apiErr := &Error{Status: status}
	if len(body) > 0 {
		if err := json.Unmarshal(body, apiErr); err == nil && (apiErr.Detail != "" || apiErr.Message != "") {
			return apiErr
		}
	}
	apiErr.Detail = ""
	apiErr.Message = genericErrorMessage
	return apiErr
}

// normalizeTransport converts a failure that never yielded a response
// (connection refused, timeout, cancelled context) into an *Error.
func normalizeTransport(err error) *Error {
	_ = err // the transport detail is logged by the caller, never surfaced
	return &Error{Message: genericErrorMessage}
}

// AsError returns err as an *Error, wrapping unrecognized values in the
// generic shape so callers can always classify by Detail.
func AsError(err error) *Error {
	if apiErr, ok := err.(*Error); ok {
		return apiErr
	}
	return &Error{Message: genericErrorMessage}
}
