package nfc

import (
	"context"
	"errors"
	"strings"
)

// ErrorCode classifies watch and read failures for programmatic handling.
type ErrorCode int

const (
	ErrCodeNotSupported ErrorCode = iota + 100
	ErrCodeNotAllowed
	ErrCodeNotReadable
	ErrCodeNetwork
	ErrCodeAborted
	ErrCodeSyntax
	ErrCodeInvalidState
	ErrCodeInvalidData
	ErrCodeDeviceNotFound
)

// errorNames are the symbolic names reported in status messages. They follow
// the DOMException names a browser NFC implementation rejects with.
var errorNames = map[ErrorCode]string{
	ErrCodeNotSupported:   "NotSupportedError",
	ErrCodeNotAllowed:     "NotAllowedError",
	ErrCodeNotReadable:    "NotReadableError",
	ErrCodeNetwork:        "NetworkError",
	ErrCodeAborted:        "AbortError",
	ErrCodeSyntax:         "SyntaxError",
	ErrCodeInvalidState:   "InvalidStateError",
	ErrCodeInvalidData:    "DataError",
	ErrCodeDeviceNotFound: "NotFoundError",
}

// NFCError provides structured error information for programmatic handling.
type NFCError struct {
	Code    ErrorCode
	Op      string // operation that failed, e.g. "Watch"
	Message string
	Cause   error
}

func (e *NFCError) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

func (e *NFCError) Unwrap() error {
	return e.Cause
}

func (e *NFCError) Is(target error) bool {
	if t, ok := target.(*NFCError); ok {
		return e.Code == t.Code
	}
	return false
}

// Name returns the symbolic name of the error kind.
func (e *NFCError) Name() string {
	if name, ok := errorNames[e.Code]; ok {
		return name
	}
	return "Error"
}

// Sentinels usable with errors.Is.
var (
	ErrNotSupported   = &NFCError{Code: ErrCodeNotSupported, Message: "NFC is not supported"}
	ErrAborted        = &NFCError{Code: ErrCodeAborted, Message: "watch aborted"}
	ErrDeviceNotFound = &NFCError{Code: ErrCodeDeviceNotFound, Message: "no NFC device found"}
	ErrInvalidState   = &NFCError{Code: ErrCodeInvalidState, Message: "invalid state"}
)

// WrapError wraps an existing error with NFC context.
func WrapError(code ErrorCode, op, message string, cause error) *NFCError {
	return &NFCError{
		Code:    code,
		Op:      op,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidDataError creates an error for malformed tag content.
func NewInvalidDataError(op string, cause error) *NFCError {
	return WrapError(ErrCodeInvalidData, op, "invalid data", cause)
}

// NewNotReadableError creates an error for a device that cannot be opened or
// read.
func NewNotReadableError(op string, cause error) *NFCError {
	return WrapError(ErrCodeNotReadable, op, "device not readable", cause)
}

// NewNotAllowedError creates an error for a rejected registration.
func NewNotAllowedError(op string, cause error) *NFCError {
	return WrapError(ErrCodeNotAllowed, op, "operation not allowed", cause)
}

// GetErrorCode extracts the ErrorCode from an error if it's an NFCError.
// Returns 0 if the error is not an NFCError.
func GetErrorCode(err error) ErrorCode {
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Code
	}
	return 0
}

// ErrorName returns the symbolic name of err for status reporting. Context
// cancellation maps to "AbortError" and deadline expiry to "TimeoutError";
// anything unclassified is "Error".
func ErrorName(err error) string {
	if err == nil {
		return ""
	}
	var nfcErr *NFCError
	if errors.As(err, &nfcErr) {
		return nfcErr.Name()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return "AbortError"
	case errors.Is(err, context.DeadlineExceeded):
		return "TimeoutError"
	}
	return "Error"
}
