package deploy

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigurationError reports a fatal problem with the deploy inputs: a missing
// app name, a missing credential or a missing artifact.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// NewConfigurationError creates a ConfigurationError with a formatted reason
func NewConfigurationError(format string, args ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, args...)}
}

// AppNotFoundError is returned when the platform does not know the application.
type AppNotFoundError struct {
	App string
}

func (e *AppNotFoundError) Error() string {
	return fmt.Sprintf("could not find app: %s", e.App)
}

// PackagingError wraps any I/O failure that happened while staging the slug.
type PackagingError struct {
	cause error
}

// NewPackagingError wraps cause as a PackagingError
func NewPackagingError(cause error) error {
	return &PackagingError{cause: cause}
}

func (e *PackagingError) Error() string {
	return "there was an error packaging the application for deployment: " + e.cause.Error()
}

// Cause returns the original failure (github.com/pkg/errors convention)
func (e *PackagingError) Cause() error { return e.cause }

// Unwrap returns the original failure
func (e *PackagingError) Unwrap() error { return e.cause }

// TransportError wraps a failed platform call. StatusCode is zero when no
// response was received.
type TransportError struct {
	Op         string
	StatusCode int
	cause      error
}

// NewTransportError wraps cause as a TransportError for op
func NewTransportError(op string, statusCode int, cause error) error {
	return &TransportError{Op: op, StatusCode: statusCode, cause: cause}
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed (HTTP %d): %v", e.Op, e.StatusCode, e.cause)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.cause)
}

// Cause returns the original failure
func (e *TransportError) Cause() error { return e.cause }

// Unwrap returns the original failure
func (e *TransportError) Unwrap() error { return e.cause }

// IsAppNotFound reports whether err is, or wraps, an AppNotFoundError
func IsAppNotFound(err error) bool {
	var target *AppNotFoundError
	return errors.As(err, &target)
}

// IsConfiguration reports whether err is, or wraps, a ConfigurationError
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsPackaging reports whether err is, or wraps, a PackagingError
func IsPackaging(err error) bool {
	var target *PackagingError
	return errors.As(err, &target)
}

// IsTransport reports whether err is, or wraps, a TransportError
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}
