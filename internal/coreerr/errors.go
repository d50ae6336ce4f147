// Package coreerr provides a chainable error builder (not a drop-in
// replacement for Go's errors package), extended with the taxonomy of
// error Kinds the tunnel core raises.
package coreerr

import (
	"runtime"
	"strings"

	"github.com/0xinf0/nooshdaroo-sub001/internal/corelog"
)

const trim = len("github.com/0xinf0/nooshdaroo-sub001/")

// Kind classifies an Error for the propagation policy of the error and
// health taxonomy. The zero value Unclassified behaves like a plain error.
type Kind int

const (
	Unclassified Kind = iota
	PsfParseError
	PsfMatchError
	HandshakeMismatch
	HandshakeTimeout
	DecryptFail
	NonceRegression
	PayloadTooLarge
	UnknownProtocol
	Bypass
	PathUnreachable
)

func (k Kind) String() string {
	switch k {
	case PsfParseError:
		return "PsfParseError"
	case PsfMatchError:
		return "PsfMatchError"
	case HandshakeMismatch:
		return "HandshakeMismatch"
	case HandshakeTimeout:
		return "HandshakeTimeout"
	case DecryptFail:
		return "DecryptFail"
	case NonceRegression:
		return "NonceRegression"
	case PayloadTooLarge:
		return "PayloadTooLarge"
	case UnknownProtocol:
		return "UnknownProtocol"
	case Bypass:
		return "Bypass"
	case PathUnreachable:
		return "PathUnreachable"
	default:
		return "Unclassified"
	}
}

type hasInnerError interface {
	Unwrap() error
}

type hasSeverity interface {
	Severity() corelog.Severity
}

// Error is an error object with an underlying error, a Kind, and a severity.
type Error struct {
	kind     Kind
	message  []interface{}
	caller   string
	inner    error
	severity corelog.Severity
}

// Error implements error.Error().
func (err *Error) Error() string {
	b := strings.Builder{}
	if err.kind != Unclassified {
		b.WriteByte('[')
		b.WriteString(err.kind.String())
		b.WriteString("] ")
	}
	if len(err.caller) > 0 {
		b.WriteString(err.caller)
		b.WriteString(": ")
	}
	b.WriteString(concat(err.message...))
	if err.inner != nil {
		b.WriteString(" > ")
		b.WriteString(err.inner.Error())
	}
	return b.String()
}

// Unwrap implements hasInnerError.Unwrap().
func (err *Error) Unwrap() error {
	return err.inner
}

// Base sets the underlying error that caused this one.
func (err *Error) Base(e error) *Error {
	err.inner = e
	return err
}

// WithKind tags this error with a taxonomy classification.
func (err *Error) WithKind(k Kind) *Error {
	err.kind = k
	return err
}

// Is reports whether err (or any error it wraps) carries the given Kind.
func Is(err error, k Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			if e.kind == k {
				return true
			}
			err = e.inner
			continue
		}
		u, ok := err.(hasInnerError)
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (err *Error) atSeverity(s corelog.Severity) *Error {
	err.severity = s
	return err
}

func (err *Error) Severity() corelog.Severity {
	if err.inner == nil {
		return err.severity
	}
	if s, ok := err.inner.(hasSeverity); ok {
		if as := s.Severity(); as < err.severity {
			return as
		}
	}
	return err.severity
}

func (err *Error) AtDebug() *Error   { return err.atSeverity(corelog.SeverityDebug) }
func (err *Error) AtInfo() *Error    { return err.atSeverity(corelog.SeverityInfo) }
func (err *Error) AtWarning() *Error { return err.atSeverity(corelog.SeverityWarning) }
func (err *Error) AtError() *Error   { return err.atSeverity(corelog.SeverityError) }

func (err *Error) String() string { return err.Error() }

// New returns a new Error with a message formed from the given arguments,
// tagging the caller's package.func the way the teacher's builder does.
func New(msg ...interface{}) *Error {
	pc, _, _, _ := runtime.Caller(1)
	details := runtime.FuncForPC(pc).Name()
	if len(details) >= trim {
		details = details[trim:]
	}
	if i := strings.Index(details, "."); i > 0 {
		details = details[:i]
	}
	return &Error{
		message:  msg,
		severity: corelog.SeverityInfo,
		caller:   details,
	}
}

// Cause returns the root cause of err, unwrapping nested Errors.
func Cause(err error) error {
	if err == nil {
		return nil
	}
	for {
		inner, ok := err.(hasInnerError)
		if !ok {
			return err
		}
		u := inner.Unwrap()
		if u == nil {
			return err
		}
		err = u
	}
}

// GetSeverity returns the severity of err, including any inner errors.
func GetSeverity(err error) corelog.Severity {
	if s, ok := err.(hasSeverity); ok {
		return s.Severity()
	}
	return corelog.SeverityInfo
}

func concat(vals ...interface{}) string {
	b := strings.Builder{}
	for _, v := range vals {
		if s, ok := v.(string); ok {
			b.WriteString(s)
			continue
		}
		if s, ok := v.(interface{ String() string }); ok {
			b.WriteString(s.String())
			continue
		}
		if e, ok := v.(error); ok {
			b.WriteString(e.Error())
			continue
		}
		b.WriteString(toString(v))
	}
	return b.String()
}
