package model

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a contract, factor, or availability problem.
// It is always fatal and never defaulted around.
type ConfigurationError struct {
	Retailer string
	Reason   string
}

func (e *ConfigurationError) Error() string {
	if e.Retailer == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: retailer %q: %s", e.Retailer, e.Reason)
}

// NewConfigurationError builds a ConfigurationError with a formatted reason.
func NewConfigurationError(retailer, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Retailer: retailer, Reason: fmt.Sprintf(format, args...)}
}

// SourceFormatError reports a malformed retailer extract. It aborts the
// whole run, not only the offending retailer.
type SourceFormatError struct {
	Retailer string
	Path     string
	Line     int    // 0 when the problem is not tied to a row
	Column   string // empty when the problem is not tied to a column
	Reason   string
}

func (e *SourceFormatError) Error() string {
	msg := fmt.Sprintf("source format: retailer %q", e.Retailer)
	if e.Path != "" {
		msg += fmt.Sprintf(" file %s", e.Path)
	}
	if e.Line > 0 {
		msg += fmt.Sprintf(" line %d", e.Line)
	}
	if e.Column != "" {
		msg += fmt.Sprintf(" column %q", e.Column)
	}
	return msg + ": " + e.Reason
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsSourceFormatError reports whether err wraps a SourceFormatError.
func IsSourceFormatError(err error) bool {
	var target *SourceFormatError
	return errors.As(err, &target)
}
