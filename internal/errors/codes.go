package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
)

// ErrorCode represents a specific error type for chat client operations.
type ErrorCode string

const (
	// ErrCodeTransport indicates the request never produced an HTTP response.
	ErrCodeTransport ErrorCode = "TRANSPORT"
	// ErrCodeServer indicates the server answered with a non-2xx status.
	ErrCodeServer ErrorCode = "SERVER"
	// ErrCodeMalformedPayload indicates a response body that could not be decoded.
	ErrCodeMalformedPayload ErrorCode = "MALFORMED_PAYLOAD"
	// ErrCodeInvalidArgument indicates invalid input parameters.
	ErrCodeInvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// ErrCodeContextCanceled indicates the operation was canceled.
	ErrCodeContextCanceled ErrorCode = "CONTEXT_CANCELED"
	// ErrCodeUnknown is used when nothing more specific is known.
	ErrCodeUnknown ErrorCode = "UNKNOWN_ERROR"
)

// UnknownError is the display string used when no message can be extracted from an error.
const UnknownError = string(ErrCodeUnknown)

// ChatError represents a structured error for chat client operations.
type ChatError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *ChatError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ChatError) Unwrap() error {
	return e.Cause
}

// WithContext adds context to the error.
func (e *ChatError) WithContext(key string, value interface{}) *ChatError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// GetCode returns the error code.
func (e *ChatError) GetCode() ErrorCode {
	return e.Code
}

// Transport creates a transport error.
func Transport(cause error) *ChatError {
	return &ChatError{Code: ErrCodeTransport, Message: "request failed", Cause: cause}
}

// MalformedPayload creates a malformed payload error.
func MalformedPayload(msg string, cause error) *ChatError {
	return &ChatError{Code: ErrCodeMalformedPayload, Message: msg, Cause: cause}
}

// InvalidArgument creates an invalid argument error.
func InvalidArgument(msg string) *ChatError {
	return &ChatError{Code: ErrCodeInvalidArgument, Message: msg}
}

// ContextCanceled creates a context canceled error.
func ContextCanceled(cause error) *ChatError {
	return &ChatError{Code: ErrCodeContextCanceled, Message: "operation canceled", Cause: cause}
}

// Wrap wraps an existing error with additional context.
func Wrap(cause error, code ErrorCode, msg string) *ChatError {
	return &ChatError{Code: code, Message: msg, Cause: cause}
}

// IsCode checks if an error (or anything it wraps) carries a specific code.
func IsCode(err error, code ErrorCode) bool {
	return GetCodeFromError(err, "") == code
}

// GetCodeFromError extracts the error code from any error.
// Returns the provided default code if no ChatError or ServerError is found in the chain.
func GetCodeFromError(err error, defaultCode ErrorCode) ErrorCode {
	var chatErr *ChatError
	if stderrors.As(err, &chatErr) {
		return chatErr.Code
	}
	var srvErr ServerError
	if stderrors.As(err, &srvErr) {
		return ErrCodeServer
	}
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return ErrCodeContextCanceled
	}
	return defaultCode
}

// ServerError is implemented by errors that carry a structured server error body.
type ServerError interface {
	error
	// ServerMessage returns the body's "message" field, if any.
	ServerMessage() string
	// ServerErrorText returns the body's "error" field, if any.
	ServerErrorText() string
}

// Normalize reduces any error to a single display string.
// Order: server message field, server error field, the error's own text, UnknownError.
func Normalize(err error) string {
	if err == nil {
		return ""
	}

	var srvErr ServerError
	if stderrors.As(err, &srvErr) {
		if msg := strings.TrimSpace(srvErr.ServerMessage()); msg != "" {
			return msg
		}
		if msg := strings.TrimSpace(srvErr.ServerErrorText()); msg != "" {
			return msg
		}
	}

	var chatErr *ChatError
	if stderrors.As(err, &chatErr) && chatErr.Cause != nil {
		if msg := strings.TrimSpace(chatErr.Cause.Error()); msg != "" {
			return msg
		}
	}

	if msg := strings.TrimSpace(err.Error()); msg != "" {
		return msg
	}
	return UnknownError
}
