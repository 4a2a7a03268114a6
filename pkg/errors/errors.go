// SPDX-License-Identifier: Apache-2.0
// Package errors provides the typed error used across Onyx.
//
// Every component reports failures as an *OnyxError carrying a Code, so callers
// can decide whether a failure is recoverable at the local scope (a failed
// step, an oracle that returned nothing) or has to end an agent.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies Onyx errors for monitoring and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal system error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates the input was invalid.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeDuplicateName indicates a registry already holds the name.
	CodeDuplicateName ErrorCode = "DUPLICATE_NAME"

	// CodeNotFound indicates a resource was not found.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMethodNotFound indicates a selected module or method is not registered.
	CodeMethodNotFound ErrorCode = "METHOD_NOT_FOUND"

	// CodeSchemaViolation indicates arguments do not satisfy a method schema.
	CodeSchemaViolation ErrorCode = "SCHEMA_VIOLATION"

	// CodeActionFailed indicates a method handler returned an error.
	CodeActionFailed ErrorCode = "ACTION_FAILED"

	// CodeOracleUnavailable indicates the decision oracle gave no usable answer.
	CodeOracleUnavailable ErrorCode = "ORACLE_UNAVAILABLE"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeRateLimit indicates rate limiting was triggered.
	CodeRateLimit ErrorCode = "RATE_LIMITED"

	// CodeLLMError indicates an LLM provider error.
	CodeLLMError ErrorCode = "LLM_ERROR"

	// CodeChannelError indicates a channel transport failed.
	CodeChannelError ErrorCode = "CHANNEL_ERROR"

	// CodeNoOrchestrator indicates a component was used before being wired.
	CodeNoOrchestrator ErrorCode = "NO_ORCHESTRATOR"
)

// OnyxError is a typed error with context for observability.
// It implements the error interface and can be unwrapped with errors.As().
type OnyxError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
	StatusCode  int // HTTP status for the server channel
}

// Error implements the error interface.
func (e *OnyxError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *OnyxError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *OnyxError with the same code.
func (e *OnyxError) Is(target error) bool {
	t, ok := target.(*OnyxError)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

// MarshalJSON implements json.Marshaler for structured logging.
func (e *OnyxError) MarshalJSON() ([]byte, error) {
	cause := ""
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Code        string                 `json:"code"`
		Message     string                 `json:"message"`
		Err         string                 `json:"error,omitempty"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		StatusCode  int                    `json:"status_code"`
	}{
		Code:        string(e.Code),
		Message:     e.Message,
		Err:         cause,
		Context:     e.Context,
		Attributes:  e.Attributes,
		Recoverable: e.Recoverable,
		StatusCode:  e.StatusCode,
	})
}

// New creates a new OnyxError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *OnyxError {
	return &OnyxError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
		StatusCode: codeToStatusCode(code),
	}
}

// Sentinel returns a bare error of the given code, suitable for errors.Is.
func Sentinel(code ErrorCode) *OnyxError {
	return &OnyxError{Code: code, StatusCode: codeToStatusCode(code)}
}

// WithContext adds a key-value pair to the error context.
func (e *OnyxError) WithContext(key string, value interface{}) *OnyxError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTEL traces.
func (e *OnyxError) WithAttribute(key, value string) *OnyxError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be recovered from.
func (e *OnyxError) WithRecoverable(recoverable bool) *OnyxError {
	e.Recoverable = recoverable
	return e
}

// AsOnyxError finds an *OnyxError in err's chain, or wraps err as internal.
func AsOnyxError(err error) *OnyxError {
	if err == nil {
		return nil
	}
	var oe *OnyxError
	if stderrors.As(err, &oe) {
		return oe
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether err's chain contains an *OnyxError with code.
func HasCode(err error, code ErrorCode) bool {
	var oe *OnyxError
	if !stderrors.As(err, &oe) {
		return false
	}
	return oe.Code == code
}

// IsRecoverable reports whether err is an *OnyxError marked recoverable.
func IsRecoverable(err error) bool {
	var oe *OnyxError
	if !stderrors.As(err, &oe) {
		return false
	}
	return oe.Recoverable
}

// RecoverableString returns "true" or "false" as a string for observability.
func (e *OnyxError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

func codeToStatusCode(code ErrorCode) int {
	switch code {
	case CodeNotFound, CodeMethodNotFound:
		return 404
	case CodeInvalidInput, CodeSchemaViolation:
		return 400
	case CodeDuplicateName:
		return 409
	case CodeTimeout:
		return 408
	case CodeRateLimit:
		return 429
	case CodeOracleUnavailable, CodeNoOrchestrator:
		return 503
	default:
		return 500
	}
}
