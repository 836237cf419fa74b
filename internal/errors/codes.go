package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// ErrorCode represents internal error codes for sidecar operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Configuration errors, raised eagerly at construction
	ErrCodeConfig           ErrorCode = 1000
	ErrCodeLiteFSNotRunning ErrorCode = 1001
	ErrCodeNodeIDUnset      ErrorCode = 1002

	// Runtime errors
	ErrCodeInternal      ErrorCode = 2000
	ErrCodeNoPrimary     ErrorCode = 2001
	ErrCodeCircuitOpen   ErrorCode = 2002
	ErrCodeForwardFailed ErrorCode = 2003
	ErrCodeRateLimited   ErrorCode = 2004
)

// SidecarError represents a structured error with code and context
type SidecarError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *SidecarError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *SidecarError) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps internal error codes to the status served to clients
func (e *SidecarError) HTTPStatus() int {
	switch e.Code {
	case ErrCodeOK:
		return http.StatusOK
	case ErrCodeConfig, ErrCodeNodeIDUnset, ErrCodeInternal:
		return http.StatusInternalServerError
	case ErrCodeLiteFSNotRunning, ErrCodeNoPrimary, ErrCodeCircuitOpen:
		return http.StatusServiceUnavailable
	case ErrCodeForwardFailed:
		return http.StatusBadGateway
	case ErrCodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// NewSidecarError creates a new SidecarError
func NewSidecarError(code ErrorCode, message string, cause error) *SidecarError {
	return &SidecarError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *SidecarError) WithDetail(key string, value interface{}) *SidecarError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func ConfigError(message string) *SidecarError {
	return NewSidecarError(ErrCodeConfig, message, nil)
}

func ConfigErrorf(format string, args ...interface{}) *SidecarError {
	return NewSidecarError(ErrCodeConfig, fmt.Sprintf(format, args...), nil)
}

// LiteFSNotRunning reports that the replication mount is absent.
func LiteFSNotRunning(mountPath string) *SidecarError {
	return NewSidecarError(ErrCodeLiteFSNotRunning,
		fmt.Sprintf("LiteFS is not running: mount path %s does not exist", mountPath), nil).
		WithDetail("mount_path", mountPath)
}

func NodeIDUnset(source string) *SidecarError {
	return NewSidecarError(ErrCodeNodeIDUnset, fmt.Sprintf("node ID is not set (source: %s)", source), nil).
		WithDetail("source", source)
}

func NoPrimary() *SidecarError {
	return NewSidecarError(ErrCodeNoPrimary, "no primary is known for forwarding", nil)
}

func CircuitOpen(primaryURL string) *SidecarError {
	return NewSidecarError(ErrCodeCircuitOpen, fmt.Sprintf("circuit breaker is open for %s", primaryURL), nil).
		WithDetail("primary_url", primaryURL)
}

func ForwardFailed(primaryURL string, cause error) *SidecarError {
	return NewSidecarError(ErrCodeForwardFailed, fmt.Sprintf("failed to forward request to %s", primaryURL), cause).
		WithDetail("primary_url", primaryURL)
}

func RateLimited() *SidecarError {
	return NewSidecarError(ErrCodeRateLimited, "forwarding rate limit exceeded", nil)
}

func InternalError(message string, cause error) *SidecarError {
	return NewSidecarError(ErrCodeInternal, message, cause)
}

// IsSidecarError checks if an error is a SidecarError
func IsSidecarError(err error) bool {
	var se *SidecarError
	return stderrors.As(err, &se)
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	var se *SidecarError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// IsConfigError reports configuration errors. LiteFSNotRunning and
// NodeIDUnset are kinds of configuration error.
func IsConfigError(err error) bool {
	var se *SidecarError
	if !stderrors.As(err, &se) {
		return false
	}
	switch se.Code {
	case ErrCodeConfig, ErrCodeLiteFSNotRunning, ErrCodeNodeIDUnset:
		return true
	default:
		return false
	}
}

// IsLiteFSNotRunning reports whether err carries ErrCodeLiteFSNotRunning
func IsLiteFSNotRunning(err error) bool {
	return GetCode(err) == ErrCodeLiteFSNotRunning && IsSidecarError(err)
}
