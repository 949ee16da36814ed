package compiler

import (
	"errors"
	"fmt"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
)

// Syntax error codes (E200-E299)
const (
	ErrUnknownDirective  = "E201" // directive name not in the vocabulary
	ErrMismatchedClose   = "E202" // close marker without matching open
	ErrUnclosedDirective = "E203" // directive still open at end of input
	ErrDanglingFlag      = "E204" // rewrite directive not followed by an element
	ErrBranchOutside     = "E205" // when/otherwise outside choose
	ErrInvalidExpression = "E206" // expression failed to parse
	ErrMissingArgument   = "E207" // required directive parameter absent
	ErrInvalidPattern    = "E208" // match path failed to compile
	ErrMismatchedTag     = "E209" // end tag does not match the open element
	ErrCallArity         = "E210" // call arguments do not fit the signature
	ErrMalformedSource   = "E211" // front end could not parse the source
	ErrUnexpectedParam   = "E212" // parameter the directive does not accept
)

// TemplateSyntaxError reports a compile-time failure with its location.
// Compilation stops at the first one; no partial tree is returned.
type TemplateSyntaxError struct {
	Code     string `json:"code"`
	Filename string `json:"filename,omitempty"`
	Line     int    `json:"line"`
	Column   int    `json:"column"`
	Message  string `json:"message"`
}

func (e *TemplateSyntaxError) Error() string {
	name := e.Filename
	if name == "" {
		name = "<string>"
	}
	if e.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", name, e.Line, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", name, e.Message)
}

// Pos returns the error location.
func (e *TemplateSyntaxError) Pos() event.Pos {
	return event.Pos{Filename: e.Filename, Line: e.Line, Column: e.Column}
}

// IsTemplateSyntaxError reports whether err is a TemplateSyntaxError.
func IsTemplateSyntaxError(err error) bool {
	var se *TemplateSyntaxError
	return errors.As(err, &se)
}

// SyntaxErrorf builds a TemplateSyntaxError at pos. Front ends use it to
// report malformed source.
func SyntaxErrorf(code string, pos event.Pos, format string, args ...any) *TemplateSyntaxError {
	return &TemplateSyntaxError{
		Code:     code,
		Filename: pos.Filename,
		Line:     pos.Line,
		Column:   pos.Column,
		Message:  fmt.Sprintf(format, args...),
	}
}

// wrapExprError converts an expression parse failure into a
// TemplateSyntaxError, keeping the absolute position the parser computed.
func wrapExprError(err error, pos event.Pos) error {
	var se *expr.SyntaxError
	if errors.As(err, &se) {
		p := pos
		if se.Line > 0 {
			p.Line, p.Column = se.Line, se.Column
		}
		return SyntaxErrorf(ErrInvalidExpression, p, "invalid expression %q: %s", se.Source, se.Message)
	}
	return SyntaxErrorf(ErrInvalidExpression, pos, "%v", err)
}
