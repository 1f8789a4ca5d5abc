package errors

import (
	"errors"
	"fmt"
)

// AppError represents an application-level error with a code and optional cause
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is matches AppErrors by code so sentinel values survive wrapping.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !errors.As(target, &other) {
		return false
	}
	return e.Code == other.Code
}

// New creates a new AppError
func New(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// UserMessage extracts the text suitable for showing in the conversation log.
// For AppErrors that is the bare message without the code prefix.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

// Error codes
const (
	ErrCodeAuthRequired     = "AUTH_REQUIRED"
	ErrCodeConfigInvalid    = "CONFIG_INVALID"
	ErrCodeHTTP             = "HTTP_ERROR"
	ErrCodeRefreshFailed    = "CREDENTIAL_REFRESH_FAILED"
	ErrCodeSessionResponse  = "SESSION_RESPONSE_INVALID"
	ErrCodeEmptyResponse    = "EXCHANGE_EMPTY_RESPONSE"
	ErrCodeMalformedContent = "EXCHANGE_MALFORMED_CONTENT"
	ErrCodeUserIDMissing    = "USER_ID_MISSING"
	ErrCodeNoRedirectURL    = "LINK_NO_REDIRECT_URL"
	ErrCodePopupBlocked     = "LINK_POPUP_BLOCKED"
	ErrCodeLinkStatus       = "LINK_STATUS_FAILED"
	ErrCodeRelayFailed      = "RELAY_FAILED"
	ErrCodeCredentialSource = "CREDENTIAL_SOURCE_FAILED"
)
