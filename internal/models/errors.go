package models

import "errors"

type ErrorKind string

const (
	KindDecode              ErrorKind = "decode_error"
	KindModelFault          ErrorKind = "model_fault"
	KindFeedbackGeneration  ErrorKind = "feedback_generation_error"
	KindResourceUnavailable ErrorKind = "resource_unavailable"
)

// Error is a pipeline failure tagged with its kind. errors.Is matches any
// *Error of the same kind, so callers compare against the sentinels below.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

var (
	ErrDecode              = &Error{Kind: KindDecode}
	ErrModelFault          = &Error{Kind: KindModelFault}
	ErrFeedbackGeneration  = &Error{Kind: KindFeedbackGeneration}
	ErrResourceUnavailable = &Error{Kind: KindResourceUnavailable}
)

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
