package psf

import "fmt"

// ParseErrorKind enumerates the parser's failure modes (spec §4.1).
type ParseErrorKind int

const (
	UnexpectedToken ParseErrorKind = iota
	UnknownSemantic
	DuplicateField
	CyclicReference
	InvariantViolated
)

func (k ParseErrorKind) String() string {
	switch k {
	case UnexpectedToken:
		return "UnexpectedToken"
	case UnknownSemantic:
		return "UnknownSemantic"
	case DuplicateField:
		return "DuplicateField"
	case CyclicReference:
		return "CyclicReference"
	case InvariantViolated:
		return "InvariantViolated"
	default:
		return "Unknown"
	}
}

// ParseError is the error type raised while lexing/parsing a .psf file
// (spec §4.1 "Errors").
type ParseError struct {
	File string
	Line int
	Kind ParseErrorKind
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s:%d: %s: %s", e.File, e.Line, e.Kind, e.Msg)
}
