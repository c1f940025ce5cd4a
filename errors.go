package aiola

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Error is the generic SDK error. It wraps unexpected failures at an SDK
// boundary and non-classified API responses.
type Error struct {
	Message string
	Status  int
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "aiola error"
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ErrConnectionNotEstablished is returned when audio is sent on a
// streaming connection that is not connected.
var ErrConnectionNotEstablished = &Error{Message: "Connection not established"}

// ValidationError is returned when caller input is rejected before any
// network activity.
type ValidationError struct {
	Param   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Param, e.Message)
}

// AuthenticationError is returned when credentials are missing, expired,
// unparsable, or rejected by the service.
type AuthenticationError struct {
	Message string
	Status  int
	Cause   error
}

func (e *AuthenticationError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "invalid or missing credentials"
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *AuthenticationError) Unwrap() error {
	return e.Cause
}

// ConnectionError is returned when the service could not be reached.
type ConnectionError struct {
	Message string
	Cause   error
}

func (e *ConnectionError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = "failed to connect to the API"
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// ServerError is returned for 5xx responses.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server error (%d)", e.Status)
	}
	return fmt.Sprintf("server error (%d): %s", e.Status, e.Message)
}

// FileError is returned when a file argument is missing or unreadable.
type FileError struct {
	Message string
	Cause   error
}

func (e *FileError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *FileError) Unwrap() error {
	return e.Cause
}

// StreamingError is returned when the live streaming channel cannot be
// established or operated.
type StreamingError struct {
	Message string
	Cause   error
}

func (e *StreamingError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *StreamingError) Unwrap() error {
	return e.Cause
}

// isSDKError reports whether err already belongs to the SDK taxonomy.
func isSDKError(err error) bool {
	var (
		base   *Error
		valErr *ValidationError
		auth   *AuthenticationError
		conn   *ConnectionError
		server *ServerError
		file   *FileError
		stream *StreamingError
	)
	return errors.As(err, &base) || errors.As(err, &valErr) || errors.As(err, &auth) ||
		errors.As(err, &conn) || errors.As(err, &server) || errors.As(err, &file) ||
		errors.As(err, &stream)
}

// handleAPIError parses an HTTP response and returns the appropriate error.
func handleAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var detail struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	_ = json.Unmarshal(body, &detail)

	getMessage := func() string {
		if s, ok := detail.Detail.(string); ok && s != "" {
			return s
		}
		if detail.Message != "" {
			return detail.Message
		}
		return string(body)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return &AuthenticationError{Message: getMessage(), Status: resp.StatusCode}
	}

	if resp.StatusCode >= 500 {
		return &ServerError{Status: resp.StatusCode, Message: getMessage()}
	}

	return &Error{Status: resp.StatusCode, Message: getMessage()}
}
