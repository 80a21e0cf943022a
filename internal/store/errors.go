package store

import (
	"errors"
	"fmt"
	"strings"
)

// InputError indicates a malformed request, such as an empty path list.
// It is always reported before the store is touched.
type InputError struct {
	Message string
}

func (e *InputError) Error() string { return e.Message }

// IOError indicates an unreadable source file or an unreachable store.
type IOError struct {
	Message string
	Err     error
}

func (e *IOError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *IOError) Unwrap() error { return e.Err }

// ParseError indicates delimited content the loader could not read.
type ParseError struct {
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// NotFoundError indicates a table that is not present in the store.
type NotFoundError struct {
	Message string
}

func (e *NotFoundError) Error() string { return e.Message }

// ErrInput creates an InputError with a formatted message.
func ErrInput(format string, args ...interface{}) *InputError {
	return &InputError{Message: fmt.Sprintf(format, args...)}
}

// ErrNotFound creates a NotFoundError with a formatted message.
func ErrNotFound(format string, args ...interface{}) *NotFoundError {
	return &NotFoundError{Message: fmt.Sprintf(format, args...)}
}

// WrapIO wraps err as an IOError with a formatted message.
func WrapIO(err error, format string, args ...interface{}) *IOError {
	return &IOError{Message: fmt.Sprintf(format, args...), Err: err}
}

// WrapParse wraps err as a ParseError with a formatted message.
func WrapParse(err error, format string, args ...interface{}) *ParseError {
	return &ParseError{Message: fmt.Sprintf(format, args...), Err: err}
}

// ClassifyLoadError sorts an error raised by DuckDB while loading a file.
// DuckDB prefixes filesystem failures with "IO Error"; everything else the
// CSV reader raises is treated as a parse failure.
func ClassifyLoadError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "IO Error") {
		return WrapIO(err, format, args...)
	}
	return WrapParse(err, format, args...)
}

// IsInput reports whether err is, or wraps, an InputError.
func IsInput(err error) bool {
	var e *InputError
	return errors.As(err, &e)
}

// IsIO reports whether err is, or wraps, an IOError.
func IsIO(err error) bool {
	var e *IOError
	return errors.As(err, &e)
}

// IsParse reports whether err is, or wraps, a ParseError.
func IsParse(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var e *NotFoundError
	return errors.As(err, &e)
}
