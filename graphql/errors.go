package graphql

import (
	"fmt"
)

type SanitizedError interface {
	error
	SanitizedError() string
}

type SafeError struct {
	message string
	inner   error
}

type ClientError SafeError

func (e ClientError) Error() string {
	return e.message
}

func (e ClientError) SanitizedError() string {
	return e.message
}

func (e SafeError) Error() string {
	return e.message
}

func (e SafeError) SanitizedError() string {
	return e.message
}

func NewClientError(format string, a ...interface{}) error {
	return ClientError{message: fmt.Sprintf(format, a...)}
}

func (e SafeError) Unwrap() error {
	return e.inner
}

func NewSafeError(format string, a ...interface{}) error {
	return SafeError{message: fmt.Sprintf(format, a...)}
}

// WrapAsSafeError wraps err with a message that is safe to show to clients.
func WrapAsSafeError(err error, format string, a ...interface{}) error {
	return SafeError{message: fmt.Sprintf(format, a...), inner: err}
}

// SanitizeError returns the message of err that may be shown to clients.
func SanitizeError(err error) string {
	if sanitized, ok := err.(SanitizedError); ok {
		return sanitized.SanitizedError()
	}
	return "Internal server error"
}

// ConfigError is a build-time contract violation: the host types cannot be
// turned into a schema. No schema is published when one occurs.
type ConfigError struct {
	// Type is the schema or Go type being built.
	Type string
	// Field is the offending field or member, if any.
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s.%s: %s", e.Type, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// NewConfigError builds a ConfigError for typ (and optionally field).
func NewConfigError(typ, field, format string, a ...interface{}) *ConfigError {
	return &ConfigError{Type: typ, Field: field, Message: fmt.Sprintf(format, a...)}
}

// ResolutionError is returned when a value of an interface or union cannot be
// mapped to a registered concrete type. It fails a single field, never the
// whole query.
type ResolutionError struct {
	Abstract string
	GoType   string
	Reason   string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve concrete type of %s for value of type %s: %s", e.Abstract, e.GoType, e.Reason)
}
