package review

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// ErrorKind classifies a recovered failure.
type ErrorKind string

const (
	KindTransport  ErrorKind = "transport"
	KindParse      ErrorKind = "parse"
	KindValidation ErrorKind = "validation"
	KindUnexpected ErrorKind = "unexpected"
)

// snippetLen bounds the payload excerpt carried by a ParseError.
const snippetLen = 200

// TransportError wraps a failed analyzer call: network, timeout or quota.
type TransportError struct {
	Stage   Stage
	Subject string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s analysis of %s failed: %v", e.Stage, e.Subject, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ParseError reports analyzer output that did not decode into the expected
// structure. Snippet holds the start of the offending payload.
type ParseError struct {
	Snippet string
	Err     error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing analyzer response: %v (payload: %q)", e.Err, e.Snippet)
}

func (e *ParseError) Unwrap() error { return e.Err }

// UnexpectedFault is a panic recovered inside a stage task.
type UnexpectedFault struct {
	Value any
	Stack []byte
}

func (e *UnexpectedFault) Error() string {
	return fmt.Sprintf("unexpected fault: %v", e.Value)
}

// KindOf returns the ErrorKind for err.
func KindOf(err error) ErrorKind {
	var te *TransportError
	var pe *ParseError
	switch {
	case errors.As(err, &te):
		return KindTransport
	case errors.As(err, &pe):
		return KindParse
	default:
		return KindUnexpected
	}
}

// truncate returns at most n runes of s.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
