package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds. Match them with errors.Is.
var (
	ErrInsufficientData    = errors.New("insufficient data")
	ErrInsufficientOverlap = fmt.Errorf("%w: insufficient overlap", ErrInsufficientData)
	ErrInvalidParameter    = errors.New("invalid parameter")
	ErrNonPositiveDefinite = errors.New("matrix is not positive definite")
	ErrDataUnavailable     = errors.New("data unavailable")
)

// Error carries the kind of failure plus the operation and the offending
// asset or parameter, so callers can report it verbatim.
type Error struct {
	Kind    error
	Op      string
	Subject string
	Msg     string
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	b.WriteString(e.Kind.Error())
	if e.Subject != "" {
		b.WriteString(" [")
		b.WriteString(e.Subject)
		b.WriteString("]")
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the underlying cause.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InsufficientData reports that subject has too little history for op.
func InsufficientData(op, subject, format string, args ...any) error {
	return &Error{Kind: ErrInsufficientData, Op: op, Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

// InsufficientOverlap reports that aligned series share too few timestamps.
func InsufficientOverlap(op, subject, format string, args ...any) error {
	return &Error{Kind: ErrInsufficientOverlap, Op: op, Subject: subject, Msg: fmt.Sprintf(format, args...)}
}

// InvalidParameter reports an out-of-domain input named by param.
func InvalidParameter(op, param, format string, args ...any) error {
	return &Error{Kind: ErrInvalidParameter, Op: op, Subject: param, Msg: fmt.Sprintf(format, args...)}
}

// NonPositiveDefinite reports a matrix that cannot be factorized.
func NonPositiveDefinite(op, format string, args ...any) error {
	return &Error{Kind: ErrNonPositiveDefinite, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// DataUnavailable wraps an upstream provider failure for symbol.
func DataUnavailable(op, symbol string, cause error) error {
	return &Error{Kind: ErrDataUnavailable, Op: op, Subject: symbol, Err: cause}
}

// KindName maps err onto its taxonomy name, or "InternalError" when it does
// not belong to the taxonomy.
func KindName(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInsufficientOverlap):
		return "InsufficientOverlapError"
	case errors.Is(err, ErrInsufficientData):
		return "InsufficientDataError"
	case errors.Is(err, ErrInvalidParameter):
		return "InvalidParameterError"
	case errors.Is(err, ErrNonPositiveDefinite):
		return "NonPositiveDefiniteError"
	case errors.Is(err, ErrDataUnavailable):
		return "DataUnavailableError"
	default:
		return "InternalError"
	}
}

// Subject returns the asset or parameter attached to err, if any.
func Subject(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Subject
	}
	return ""
}
