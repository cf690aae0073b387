package utils

import (
	"errors"
	"fmt"
)

// AppError application error structure
type AppError struct {
	Code    ResponseCode `json:"code"`
	Message string       `json:"message"`
	Err     error        `json:"-"`
}

// Error implement error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("code: %d, message: %s, error: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("code: %d, message: %s", e.Code, e.Message)
}

// Unwrap implement errors.Unwrap interface
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is reports whether target is an AppError carrying the same code, so a
// wrapped copy of a predefined error still matches it.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError create new application error
func NewError(code ResponseCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithErr create application error with original error
func NewErrorWithErr(code ResponseCode, message string, err error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// WrapError wraps err under the code and message of a predefined error
func WrapError(err error, base *AppError) *AppError {
	return &AppError{
		Code:    base.Code,
		Message: base.Message,
		Err:     err,
	}
}

// Predefined errors
var (
	ErrInvalidParam = NewError(CodeInvalidParam, "invalid parameter")
	ErrUnauthorized = NewError(CodeUnauthorized, "unauthorized")
	ErrRateLimit    = NewError(CodeRateLimit, "rate limit exceeded")

	ErrUserNotFound     = NewError(CodeUserNotFound, "user not found")
	ErrUserExists       = NewError(CodeUserExists, "username already exists")
	ErrInvalidPassword  = NewError(CodeInvalidPassword, "username or password incorrect")
	ErrInvalidToken     = NewError(CodeInvalidToken, "token invalid")
	ErrAnonymousSession = NewError(CodeAnonymousSession, "invalid anonymous session token")

	ErrCartItemNotFound  = NewError(CodeCartItemNotFound, "cart item not found")
	ErrShopNotFound      = NewError(CodeShopNotFound, "shop not found")
	ErrServiceNotOffered = NewError(CodeServiceNotOffered, "service not offered by this shop")

	ErrMergeFailed = NewError(CodeMergeFailed, "failed to merge anonymous data")

	ErrInternalError = NewError(CodeInternalError, "internal server error")
	ErrServiceError  = NewError(CodeServiceError, "service error")
	ErrDatabaseError = NewError(CodeDatabaseError, "database error")
	ErrRedisError    = NewError(CodeRedisError, "redis error")
	ErrTokenConfig   = NewError(CodeConfigError, "token signing configuration missing")
)

// IsAppError check if it's an application error
func IsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsNotFound reports whether err is one of the not-found conditions
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCartItemNotFound) ||
		errors.Is(err, ErrShopNotFound) ||
		errors.Is(err, ErrServiceNotOffered) ||
		errors.Is(err, ErrUserNotFound)
}

// GetErrorCode get error code
func GetErrorCode(err error) ResponseCode {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Code
	}
	return CodeInternalError
}

// GetErrorMessage returns the client-safe message; unknown errors never leak their text
func GetErrorMessage(err error) string {
	if appErr, ok := IsAppError(err); ok {
		return appErr.Message
	}
	return ErrInternalError.Message
}
