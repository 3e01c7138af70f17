// Package detectorerr defines the semantic error kinds used across the
// detection pipeline (spec §7), so callers can branch on Kind rather
// than string-matching error messages.
package detectorerr

import (
	"errors"
	"fmt"
)

// Kind is a semantic error category, stable across error message
// wording changes.
type Kind string

const (
	ConfigInvalid    Kind = "config_invalid"
	ConfigIOError    Kind = "config_io_error"
	AudioDeviceError Kind = "audio_device_error"
	StreamError      Kind = "stream_error"
	PacketMalformed  Kind = "packet_malformed"
	ClassifierError  Kind = "classifier_error"
	WebhookError     Kind = "webhook_error"
	Conflict         Kind = "conflict"
)

// Error wraps an underlying cause with a semantic Kind and optional
// Field (for ConfigInvalid diagnostics pointing at a specific settings
// path, e.g. "vban.port").
type Error struct {
	Kind  Kind
	Field string
	Err   error
}

func (e *Error) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with kind.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// WithField wraps err with kind and a field diagnostic.
func WithField(kind Kind, field string, err error) *Error {
	return &Error{Kind: kind, Field: field, Err: err}
}

// Is reports whether err is a detectorerr.Error of the given kind,
// so callers can write `detectorerr.Is(err, detectorerr.Conflict)`.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
