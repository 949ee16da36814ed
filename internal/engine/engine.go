package engine

import (
	"errors"
	"log/slog"
	"maps"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/xpath"
)

// Loader resolves the templates named by include directives. relativeTo is
// the name of the including template, so implementations can resolve
// relative references against it.
type Loader interface {
	Load(name, relativeTo string) (*compiler.Tree, error)
}

// Engine renders compiled directive trees.
//
// An Engine holds configuration only. It is immutable after New and safe
// for concurrent use; every Render builds its own context, so independent
// renders never share mutable state.
type Engine struct {
	lookup   expr.Lookup
	loader   Loader
	maxDepth int
	ids      RenderIDGenerator
	globals  map[string]any
}

// EngineOption allows configuration of engine parameters.
type EngineOption func(*Engine)

// WithLookup sets how undefined names are treated.
//
// Default: expr.Strict, which fails the render with an
// UndefinedVariableError. expr.Lenient yields expr.Undefined instead,
// which renders as nothing.
func WithLookup(mode expr.Lookup) EngineOption {
	return func(e *Engine) {
		e.lookup = mode
	}
}

// WithLoader sets the loader used by include directives. Without one,
// includes fail with a DirectiveError.
func WithLoader(l Loader) EngineOption {
	return func(e *Engine) {
		e.loader = l
	}
}

// WithMaxDepth bounds the nesting of macro calls, match bodies and
// includes.
//
// Default: 64 levels (DefaultMaxDepth).
func WithMaxDepth(n int) EngineOption {
	return func(e *Engine) {
		e.maxDepth = n
	}
}

// WithRenderIDs sets the generator for the render IDs that appear in logs.
//
// Default: UUIDv7Generator. Tests use NewFixedGenerator.
func WithRenderIDs(g RenderIDGenerator) EngineOption {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithGlobals adds names visible to every render. Data passed to Render
// shadows them.
func WithGlobals(vars map[string]any) EngineOption {
	return func(e *Engine) {
		maps.Copy(e.globals, vars)
	}
}

// New creates an Engine.
//
// The HTML and XML functions are always available to templates: they
// parse a string into a Fragment, so ${HTML(body)} splices markup instead
// of escaped text.
func New(opts ...EngineOption) *Engine {
	e := &Engine{
		lookup:   expr.Strict,
		maxDepth: DefaultMaxDepth,
		ids:      UUIDv7Generator{},
		globals:  defaultGlobals(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Render returns the lazy output stream of tree rendered against data.
//
// Nothing is evaluated until the stream is ranged over, and evaluation
// stops as soon as the consumer stops pulling. Each range over the stream
// renders afresh. A failure is yielded once, as a *RenderError, and ends
// the stream; events yielded before it stand.
func (e *Engine) Render(tree *compiler.Tree, data map[string]any) event.Stream {
	return func(yield func(event.Event, error) bool) {
		r := &renderer{
			engine:   e,
			id:       e.ids.Generate(),
			template: tree.Name,
			depth:    depthGuard{max: e.maxDepth},
		}
		slog.Debug("render started", "template", tree.Name, "render_id", r.id)

		emitted := 0
		top := &stage{r: r, allow: allowAll, chain: &xpath.Chain{}, next: func(ev event.Event) error {
			if !yield(ev, nil) {
				return errStopped
			}
			emitted++
			return nil
		}}
		sc := NewScope(e.globals).Child(data).Child(nil)

		err := r.nodes(tree.Nodes, sc, top.emit)
		switch {
		case errors.Is(err, errStopped):
			slog.Debug("render stopped by consumer", "template", tree.Name, "render_id", r.id, "events", emitted)
		case err != nil:
			slog.Debug("render failed", "template", tree.Name, "render_id", r.id, "error", err)
			yield(event.Event{}, err)
		default:
			slog.Debug("render finished", "template", tree.Name, "render_id", r.id, "events", emitted)
		}
	}
}
