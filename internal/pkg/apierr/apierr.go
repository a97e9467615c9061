package apierr

import "net/http"

// Error codes as they appear in the JSON error envelope.
const (
	CodeUnauthenticated  = "unauthenticated"
	CodeForbidden        = "forbidden"
	CodeRateLimited      = "rate_limited"
	CodeValidation       = "validation_error"
	CodeConfiguration    = "configuration_error"
	CodeProvider         = "provider_error"
	CodeStoreUnavailable = "store_unavailable"
	CodeNotFound         = "not_found"
	CodeUnavailable      = "unavailable"
	CodeInternal         = "internal_error"
)

type Error struct {
	Status            int
	Code              string
	Message           string
	RetryAfterSeconds int64
}

func (e *Error) Error() string { return e.Message }

func Unauthenticated(msg string) *Error {
	return &Error{Status: http.StatusUnauthorized, Code: CodeUnauthenticated, Message: msg}
}

func Forbidden(msg string) *Error {
	return &Error{Status: http.StatusForbidden, Code: CodeForbidden, Message: msg}
}

// RateLimited carries the honest retry-after hint; callers must never see a
// value below 1.
func RateLimited(msg string, retryAfter int64) *Error {
	if retryAfter < 1 {
		retryAfter = 1
	}
	return &Error{Status: http.StatusTooManyRequests, Code: CodeRateLimited, Message: msg, RetryAfterSeconds: retryAfter}
}

func Validation(msg string) *Error {
	return &Error{Status: http.StatusBadRequest, Code: CodeValidation, Message: msg}
}

func Configuration(msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeConfiguration, Message: msg}
}

func Provider(msg string) *Error {
	return &Error{Status: http.StatusBadGateway, Code: CodeProvider, Message: msg}
}

func NotFound(msg string) *Error {
	return &Error{Status: http.StatusNotFound, Code: CodeNotFound, Message: msg}
}

func Unavailable(msg string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeUnavailable, Message: msg}
}

func Internal(msg string) *Error {
	return &Error{Status: http.StatusInternalServerError, Code: CodeInternal, Message: msg}
}

func StoreUnavailable(msg string) *Error {
	return &Error{Status: http.StatusServiceUnavailable, Code: CodeStoreUnavailable, Message: msg}
}
