package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind identifies an error class of the API taxonomy.
type Kind string

const (
	KindValidation         Kind = "VALIDATION_ERROR"
	KindBadRequest         Kind = "BAD_REQUEST"
	KindConflict           Kind = "CONFLICT"
	KindInvalidCredentials Kind = "INVALID_CREDENTIALS"
	KindAccountLocked      Kind = "ACCOUNT_LOCKED"
	KindAccountDeactivated Kind = "ACCOUNT_DEACTIVATED"
	KindTokenExpired       Kind = "TOKEN_EXPIRED"
	KindInvalidToken       Kind = "INVALID_TOKEN"
	KindUnauthorized       Kind = "UNAUTHORIZED"
	KindForbidden          Kind = "FORBIDDEN"
	KindNotFound           Kind = "NOT_FOUND"
	KindInternal           Kind = "INTERNAL_ERROR"
)

// FieldError is a single field-level validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// AppError is an error with a stable, user-safe message and an HTTP status.
type AppError struct {
	Kind    Kind
	Status  int
	Message string
	Fields  []FieldError
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Validation creates a 400 error carrying field-level details.
func Validation(fields []FieldError) *AppError {
	return &AppError{
		Kind:    KindValidation,
		Status:  http.StatusBadRequest,
		Message: "Validation failed",
		Fields:  fields,
	}
}

// BadRequest creates a 400 error.
func BadRequest(message string) *AppError {
	return &AppError{Kind: KindBadRequest, Status: http.StatusBadRequest, Message: message}
}

// Conflict creates a 409 error.
func Conflict(message string) *AppError {
	return &AppError{Kind: KindConflict, Status: http.StatusConflict, Message: message}
}

// InvalidCredentials creates the 401 returned for both unknown emails and wrong passwords.
func InvalidCredentials() *AppError {
	return &AppError{
		Kind:    KindInvalidCredentials,
		Status:  http.StatusUnauthorized,
		Message: "Invalid email or password",
	}
}

// IncorrectCurrentPassword is the change-password variant of InvalidCredentials.
func IncorrectCurrentPassword() *AppError {
	return &AppError{
		Kind:    KindInvalidCredentials,
		Status:  http.StatusBadRequest,
		Message: "Current password is incorrect",
	}
}

// AccountLocked creates a 403 error; retry is a human-readable window such as "2 hours".
func AccountLocked(retry string) *AppError {
	return &AppError{
		Kind:    KindAccountLocked,
		Status:  http.StatusForbidden,
		Message: fmt.Sprintf("Account locked due to too many failed attempts. Try again in %s.", retry),
	}
}

// AccountDeactivated creates a 403 error.
func AccountDeactivated() *AppError {
	return &AppError{
		Kind:    KindAccountDeactivated,
		Status:  http.StatusForbidden,
		Message: "Account deactivated. Contact support.",
	}
}

// TokenExpired creates a 401 error.
func TokenExpired() *AppError {
	return &AppError{
		Kind:    KindTokenExpired,
		Status:  http.StatusUnauthorized,
		Message: "Token expired. Please log in again.",
	}
}

// InvalidToken creates a 401 error.
func InvalidToken() *AppError {
	return &AppError{
		Kind:    KindInvalidToken,
		Status:  http.StatusUnauthorized,
		Message: "Invalid token. Please log in again.",
	}
}

// Unauthorized creates a 401 error.
func Unauthorized(message string) *AppError {
	return &AppError{Kind: KindUnauthorized, Status: http.StatusUnauthorized, Message: message}
}

// Forbidden creates a 403 error.
func Forbidden(message string) *AppError {
	return &AppError{Kind: KindForbidden, Status: http.StatusForbidden, Message: message}
}

// NotFound creates a 404 error.
func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Status: http.StatusNotFound, Message: message}
}

// Internal wraps an unexpected error. The cause is logged, never sent to clients.
func Internal(err error) *AppError {
	return &AppError{
		Kind:    KindInternal,
		Status:  http.StatusInternalServerError,
		Message: "Internal server error",
		Err:     err,
	}
}

// As extracts an *AppError from err. Anything else becomes Internal.
func As(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// IsKind reports whether err is an *AppError of the given kind.
func IsKind(err error, kind Kind) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == kind
}
