package core

import (
	"errors"
	"fmt"
)

// ErrorCode classifies failures surfaced to callers.
type ErrorCode string

const (
	CodeUnsupportedFormat ErrorCode = "UNSUPPORTED_FORMAT"
	CodeWriteFailed       ErrorCode = "WRITE_FAILED"
	CodeInvalidValue      ErrorCode = "INVALID_VALUE"
	CodeNetwork           ErrorCode = "NETWORK_FAILED"
	CodeService           ErrorCode = "SERVICE_FAILED"
	CodeReadOnly          ErrorCode = "READ_ONLY"
)

// Error is the structured error returned by the dispatcher, the OCR clients
// and the redaction session.
type Error struct {
	Code    ErrorCode
	Op      string // "read", "write", "strip", "ocr", ...
	Path    string
	Key     string // Metadata key, for INVALID_VALUE
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Key != "" {
		msg += " [" + e.Key + "]"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += fmt.Sprintf(" (caused by: %v)", e.Cause)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error carrying the same code, so callers can write
// errors.Is(err, core.ErrUnsupportedFormat).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is.
var (
	ErrUnsupportedFormat = &Error{Code: CodeUnsupportedFormat}
	ErrWrite             = &Error{Code: CodeWriteFailed}
	ErrValue             = &Error{Code: CodeInvalidValue}
	ErrNetwork           = &Error{Code: CodeNetwork}
	ErrService           = &Error{Code: CodeService}
	ErrReadOnly          = &Error{Code: CodeReadOnly}
)

// Factory functions for common errors

func NewUnsupportedFormatError(op, path, ext string) *Error {
	return &Error{
		Code:    CodeUnsupportedFormat,
		Op:      op,
		Path:    path,
		Message: fmt.Sprintf("unsupported file type %q", ext),
	}
}

func NewWriteError(path string, cause error) *Error {
	return &Error{Code: CodeWriteFailed, Op: "write", Path: path, Cause: cause}
}

func NewValueError(key, input string, cause error) *Error {
	return &Error{
		Code:    CodeInvalidValue,
		Op:      "coerce",
		Key:     key,
		Message: fmt.Sprintf("cannot use %q", input),
		Cause:   cause,
	}
}

func NewNetworkError(endpoint string, cause error) *Error {
	return &Error{Code: CodeNetwork, Op: "ocr", Path: endpoint, Cause: cause}
}

func NewServiceError(path string, status int, msg string) *Error {
	return &Error{
		Code:    CodeService,
		Op:      "ocr",
		Path:    path,
		Message: fmt.Sprintf("service status %d: %s", status, msg),
	}
}

// NewReadOnlyError reports a format that can be viewed but not written.
func NewReadOnlyError(format string) *Error {
	return &Error{Code: CodeReadOnly, Message: format + " metadata is read-only"}
}
