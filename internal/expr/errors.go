package expr

import (
	"errors"
	"fmt"
)

// SyntaxError reports an expression that fails to lex or parse. Line and
// Column are absolute template positions when the expression was parsed
// with a base position.
type SyntaxError struct {
	Source  string
	Line    int
	Column  int
	Message string
}

func (e *SyntaxError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%d:%d: invalid expression %q: %s", e.Line, e.Column, e.Source, e.Message)
	}
	return fmt.Sprintf("invalid expression %q: %s", e.Source, e.Message)
}

// UndefinedVariableError reports a name absent from every reachable scope
// under strict lookup.
type UndefinedVariableError struct {
	Name string
}

func (e *UndefinedVariableError) Error() string {
	return fmt.Sprintf("%q is not defined", e.Name)
}

// ExpressionError reports a failure while evaluating an expression, such
// as a type mismatch or a failing function call.
type ExpressionError struct {
	Source  string
	Message string
	Err     error
}

func (e *ExpressionError) Error() string {
	msg := e.Message
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = fmt.Sprintf("%s: %v", msg, e.Err)
		}
	}
	if e.Source != "" {
		return fmt.Sprintf("evaluating %q: %s", e.Source, msg)
	}
	return msg
}

func (e *ExpressionError) Unwrap() error {
	return e.Err
}

// IsUndefined reports whether err is (or wraps) an UndefinedVariableError.
func IsUndefined(err error) bool {
	var ue *UndefinedVariableError
	return errors.As(err, &ue)
}

func errorf(format string, args ...any) error {
	return &ExpressionError{Message: fmt.Sprintf(format, args...)}
}
