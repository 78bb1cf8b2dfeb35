package session

import (
	"fmt"
)

type Kind int

const (
	KindMalformedTarget Kind = iota + 1
	KindServerOffline
	KindBadStatus
	KindUnauthorized
	KindAuthenticationFailed
	KindUnexpectedStatus
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindMalformedTarget:
		return "malformed target"
	case KindServerOffline:
		return "server offline"
	case KindBadStatus:
		return "bad status response"
	case KindUnauthorized:
		return "unauthorized"
	case KindAuthenticationFailed:
		return "authentication failed"
	case KindUnexpectedStatus:
		return "unexpected status"
	case KindTransport:
		return "transport error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Error is returned by Warmup and Call. Errors match each other by Kind under
// errors.Is, so callers can test against the Err* values.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

var (
	ErrMalformedTarget      = &Error{Kind: KindMalformedTarget}
	ErrServerOffline        = &Error{Kind: KindServerOffline}
	ErrBadStatus            = &Error{Kind: KindBadStatus}
	ErrUnauthorized         = &Error{Kind: KindUnauthorized}
	ErrAuthenticationFailed = &Error{Kind: KindAuthenticationFailed}
	ErrUnexpectedStatus     = &Error{Kind: KindUnexpectedStatus}
	ErrTransport            = &Error{Kind: KindTransport}
)

func (e *Error) Error() string {
	msg := e.Kind.String()
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		Err:     err,
	}
}
