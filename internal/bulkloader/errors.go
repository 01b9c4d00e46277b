package bulkloader

import (
	"errors"
	"fmt"
)

// Kind classifies loader failures so callers can map them to responses.
type Kind int

const (
	KindInternal Kind = iota
	KindUnsupportedFileType
	KindUnreadableFile
	KindConfiguration
	KindPermissionDenied
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindUnsupportedFileType:
		return "unsupported file type"
	case KindUnreadableFile:
		return "unreadable file"
	case KindConfiguration:
		return "configuration error"
	case KindPermissionDenied:
		return "permission denied"
	case KindValidation:
		return "validation error"
	default:
		return "internal error"
	}
}

// Error is returned for every classified loader failure.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches kind sentinels such as ErrPermissionDenied.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrUnsupportedFileType = &Error{Kind: KindUnsupportedFileType}
	ErrUnreadableFile      = &Error{Kind: KindUnreadableFile}
	ErrConfiguration       = &Error{Kind: KindConfiguration}
	ErrPermissionDenied    = &Error{Kind: KindPermissionDenied}
	ErrValidation          = &Error{Kind: KindValidation}
)

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

func configError(format string, args ...any) *Error {
	return newError(KindConfiguration, nil, format, args...)
}

func permissionError(action, class string) *Error {
	return newError(KindPermissionDenied, nil, "not allowed to %s '%s' records", action, class)
}

// NewValidationError lets entity hooks reject a row.
func NewValidationError(format string, args ...any) error {
	return newError(KindValidation, nil, format, args...)
}

// NewConfigurationError reports a request the store cannot serve, such
// as a filter on an unknown field.
func NewConfigurationError(err error, format string, args ...any) error {
	return newError(KindConfiguration, err, format, args...)
}

// KindOf returns the Kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
