package cli

import (
	"errors"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/loader"
	"github.com/roach88/weft/internal/markup"
	"github.com/roach88/weft/internal/serialize"
	"github.com/roach88/weft/internal/xpath"
)

// Error codes for CLI output.
const (
	ErrCodeGeneric       = "E001" // Generic/unknown error
	ErrCodeNotFound      = "E002" // Template or file not found
	ErrCodeSyntax        = "E003" // Template syntax error
	ErrCodeRender        = "E004" // Render-time failure
	ErrCodeData          = "E005" // Data context could not be loaded
	ErrCodeWriteFailed   = "E006" // File write error
	ErrCodeConfig        = "E007" // Invalid config file or environment
	ErrCodeSerialization = "E008" // Malformed event stream
	ErrCodePattern       = "E009" // Invalid path pattern
	ErrCodeStore         = "E010" // Template store failure
	ErrCodeParse         = "E011" // Input document could not be parsed
)

// codedError carries an explicit code for failures that have no typed
// error of their own.
type codedError struct {
	code string
	exit int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code string, exit int, err error) error {
	return &codedError{code: code, exit: exit, err: err}
}

// classify maps an error to its CLI code and exit status. Render failures
// exit 1; everything that stops before rendering exits 2.
func classify(err error) (string, int) {
	var coded *codedError
	if errors.As(err, &coded) {
		return coded.code, coded.exit
	}
	switch {
	case compiler.IsTemplateSyntaxError(err):
		return ErrCodeSyntax, ExitCommandError
	case loader.IsTemplateNotFound(err):
		return ErrCodeNotFound, ExitCommandError
	case xpath.IsPatternSyntaxError(err):
		return ErrCodePattern, ExitCommandError
	case markup.IsParseError(err):
		return ErrCodeParse, ExitCommandError
	case serialize.IsSerializationError(err):
		return ErrCodeSerialization, ExitFailure
	case engine.IsRenderError(err), engine.IsDirectiveError(err), expr.IsUndefined(err):
		return ErrCodeRender, ExitFailure
	}
	return ErrCodeGeneric, ExitFailure
}

// errorDetails returns structured fields for JSON error output.
func errorDetails(err error) any {
	var se *compiler.TemplateSyntaxError
	if errors.As(err, &se) {
		return se
	}
	var re *engine.RenderError
	if errors.As(err, &re) {
		return map[string]any{
			"template": re.Template,
			"line":     re.Pos.Line,
			"column":   re.Pos.Column,
		}
	}
	var nf *loader.TemplateNotFoundError
	if errors.As(err, &nf) {
		return nf
	}
	return nil
}
