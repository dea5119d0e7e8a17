package types

import (
	"errors"
	"fmt"
)

// ErrorCode is a typed string for categorizing data-access errors.
type ErrorCode string

// Error code constants.
// Callers MUST compare against these constants instead of hardcoded strings.
const (
	// Query shape
	ErrCodeOnlyOne          ErrorCode = "query_only_one_no_rows"
	ErrCodeInvalidFragment  ErrorCode = "query_invalid_fragment"
	ErrCodeUniqueConstraint ErrorCode = "conflict_unique_constraint"

	// Migrations
	ErrCodeMigrationLocked         ErrorCode = "migration_locked"
	ErrCodeMigrationAlreadyApplied ErrorCode = "migration_already_applied"
	ErrCodeMigrationFile           ErrorCode = "migration_file_invalid"
	ErrCodeMigrationsDirUnset      ErrorCode = "migration_dir_unset"

	// Internal
	ErrCodeInternalDB ErrorCode = "internal_database_error"
)

// detailConstraint is the Details key carrying a violated constraint name.
const detailConstraint = "constraint"

// AppError is the standard error type returned by the data-access packages.
// Errors from the driver that are not classified are returned unwrapped;
// everything the core decides on its own is expressed as an AppError so
// callers can branch on Code with errors.As.
type AppError struct {
	Code    ErrorCode      `json:"code"`
	Message string         `json:"message"`
	Err     error          `json:"-"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/errors.As support.
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetails returns a copy of the error with the provided details merged in.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	merged := make(map[string]any, len(e.Details)+len(details))
	for k, v := range e.Details {
		merged[k] = v
	}
	for k, v := range details {
		merged[k] = v
	}
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     e.Err,
		Details: merged,
	}
}

// NewAppError creates a new AppError with the given code, message, and optional
// underlying error.
func NewAppError(code ErrorCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewAppErrorWithDetails creates a new AppError with the given code, message,
// underlying error, and structured details.
func NewAppErrorWithDetails(code ErrorCode, message string, err error, details map[string]any) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
		Details: details,
	}
}

// NewUniqueConstraintError builds the error reported when a write violates a
// unique constraint. The constraint name is kept in Details.
func NewUniqueConstraintError(message, constraint string, err error) *AppError {
	return NewAppErrorWithDetails(ErrCodeUniqueConstraint, message, err, map[string]any{
		detailConstraint: constraint,
	})
}

// HasCode reports whether any AppError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	for err != nil {
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Code == code {
			return true
		}
		err = appErr.Err
	}
	return false
}

// ConstraintName returns the violated constraint carried by a unique
// constraint error, if err is one.
func ConstraintName(err error) (string, bool) {
	var appErr *AppError
	if !errors.As(err, &appErr) || appErr.Code != ErrCodeUniqueConstraint {
		return "", false
	}
	name, ok := appErr.Details[detailConstraint].(string)
	return name, ok
}
