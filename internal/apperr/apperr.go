// Package apperr defines the error kinds the batch and verdict pipelines report.
// Parse and Transcription errors are scoped to one input file and never abort a
// batch; IO and Service errors are fatal for the command that hit them.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindParse
	KindTranscription
	KindIO
	KindService
)

func (k Kind) String() string {
	switch k {
	case KindParse:
		return "PARSE"
	case KindTranscription:
		return "TRANSCRIPTION"
	case KindIO:
		return "IO"
	case KindService:
		return "SERVICE"
	default:
		return "UNKNOWN"
	}
}

// AppError carries a kind, a message, optional metadata and the underlying cause.
type AppError struct {
	Kind     Kind
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Kind, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(": %v", e.Cause)
	}
	return s
}

func (e *AppError) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg}
}

func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(err error, kind Kind, msg string) *AppError {
	return &AppError{Kind: kind, Message: msg, Cause: err}
}

func Wrapf(err error, kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: err}
}

func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// KindOf returns the kind of the first AppError in err's chain.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsRecoverable reports whether the error only invalidates a single input file.
func IsRecoverable(err error) bool {
	switch KindOf(err) {
	case KindParse, KindTranscription:
		return true
	default:
		return false
	}
}
