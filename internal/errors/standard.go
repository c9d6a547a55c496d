// Package errors provides standardized infrastructure errors for pyrite.
// Translation problems are diagnostics; these errors cover IO, cache,
// validator and configuration failures.
package errors

import (
	"errors"
	"fmt"
	"runtime"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryParse     ErrorCategory = "PARSE"
	CategoryIO        ErrorCategory = "IO"
	CategoryCache     ErrorCategory = "CACHE"
	CategoryValidator ErrorCategory = "VALIDATOR"
	CategoryConfig    ErrorCategory = "CONFIG"
	CategoryVersion   ErrorCategory = "VERSION"
)

// Sentinel errors, matched with errors.Is.
var (
	ErrVersionMismatch = errors.New("version mismatch")
	ErrCacheCorrupt    = errors.New("cache corrupt")
	ErrLocked          = errors.New("resource locked")
	ErrTimeout         = errors.New("timed out")
)

// StandardError provides a consistent error format
type StandardError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Context  map[string]interface{}
	Caller   string
	Err      error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

func (e *StandardError) Unwrap() error { return e.Err }

// NewStandardError creates a new standardized error
func NewStandardError(category ErrorCategory, code, message string, context map[string]interface{}) *StandardError {
	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Context:  context,
		Caller:   caller(2),
	}
}

func caller(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	if fn := runtime.FuncForPC(pc); fn != nil {
		return fn.Name()
	}
	return "unknown"
}

// Wrap attaches a category and code to err. A nil err yields nil.
func Wrap(err error, category ErrorCategory, code, message string) error {
	if err == nil {
		return nil
	}
	return &StandardError{
		Category: category,
		Code:     code,
		Message:  message,
		Caller:   caller(2),
		Err:      err,
	}
}

// CategoryOf returns the category of the first StandardError in err's
// chain, or "" if there is none.
func CategoryOf(err error) ErrorCategory {
	var se *StandardError
	if errors.As(err, &se) {
		return se.Category
	}
	return ""
}

// Common error constructors

func IOFailure(op, path string, err error) error {
	se := NewStandardError(CategoryIO, "IO_FAILURE",
		fmt.Sprintf("%s %s", op, path),
		map[string]interface{}{"op": op, "path": path})
	se.Err = err
	return se
}

func CacheCorrupt(detail string, err error) error {
	se := NewStandardError(CategoryCache, "CACHE_CORRUPT", detail, nil)
	se.Err = fmt.Errorf("%w: %v", ErrCacheCorrupt, err)
	return se
}

func VersionMismatch(what, have, want string) error {
	se := NewStandardError(CategoryVersion, "VERSION_MISMATCH",
		fmt.Sprintf("%s version %s does not satisfy %s", what, have, want),
		map[string]interface{}{"have": have, "want": want})
	se.Err = ErrVersionMismatch
	return se
}

func InvalidConfig(field, reason string) error {
	return NewStandardError(CategoryConfig, "INVALID_CONFIG",
		fmt.Sprintf("%s: %s", field, reason),
		map[string]interface{}{"field": field})
}

func Locked(path string) error {
	se := NewStandardError(CategoryIO, "LOCKED", "cannot lock "+path, nil)
	se.Err = ErrLocked
	return se
}
