package engine

import (
	"errors"
	"fmt"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
)

// DirectiveError reports a directive whose contract was violated at render
// time.
//
// Directive errors include:
//   - for over a value that is not iterable, or unpacking the wrong arity
//   - call naming an unknown macro, or arguments that do not fit it
//   - when or otherwise rendered outside a choose
//   - include without a loader, or an unresolvable include
//   - nesting past the engine's max depth
type DirectiveError struct {
	// Kind is the offending directive.
	Kind compiler.Kind

	// Reason is a human-readable description.
	Reason string

	// Pos locates the directive in its template.
	Pos event.Pos
}

// Error implements the error interface.
func (e *DirectiveError) Error() string {
	return fmt.Sprintf("%s directive: %s", e.Kind, e.Reason)
}

// IsDirectiveError returns true if the error is a DirectiveError.
// Uses errors.As to handle wrapped errors.
func IsDirectiveError(err error) bool {
	var de *DirectiveError
	return errors.As(err, &de)
}

// RenderError wraps a render-time failure with its location. The stream
// ends after yielding it.
//
// RenderError unwraps, so callers can still match the cause:
//
//	var ue *expr.UndefinedVariableError
//	if errors.As(err, &ue) { ... }
type RenderError struct {
	// Template is the name of the template being rendered when the failure
	// happened. For failures inside an include it names the included
	// template.
	Template string

	// Pos is the position of the failing node.
	Pos event.Pos

	Err error
}

// Error implements the error interface.
func (e *RenderError) Error() string {
	pos := e.Pos
	if pos.Filename == "" {
		pos.Filename = e.Template
	}
	return fmt.Sprintf("%s: %v", pos, e.Err)
}

func (e *RenderError) Unwrap() error {
	return e.Err
}

// IsRenderError returns true if the error is a RenderError.
func IsRenderError(err error) bool {
	var re *RenderError
	return errors.As(err, &re)
}

// errStopped unwinds a render whose consumer stopped pulling events.
var errStopped = errors.New("consumer stopped")
