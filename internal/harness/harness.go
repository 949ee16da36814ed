package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"testing/fstest"
	"time"

	"github.com/roach88/weft/internal/compiler"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/loader"
	"github.com/roach88/weft/internal/serialize"
	"github.com/roach88/weft/internal/store"
	"github.com/roach88/weft/internal/testutil"
)

// storeEpoch is the first timestamp of the scenario store clock.
var storeEpoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// TraceEvent is one rendered event in a form suited to golden files.
type TraceEvent struct {
	Seq  int    `json:"seq"`
	Kind string `json:"kind"`
	Name string `json:"name,omitempty"`
	Data string `json:"data,omitempty"`
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	Pass bool `json:"pass"`

	// Output is the serialized render output.
	Output string `json:"output"`

	// Trace contains the rendered events in order.
	Trace []TraceEvent `json:"trace"`

	// Err is the compile or render failure, if any.
	Err error `json:"-"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	events []event.Event
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

func (r *Result) addEvent(ev event.Event) {
	r.events = append(r.events, ev)
	te := TraceEvent{Seq: len(r.Trace) + 1, Kind: ev.Kind.String()}
	switch ev.Kind {
	case event.Start:
		te.Name = ev.Name.String()
		if len(ev.Attrs) > 0 {
			te.Data = ev.Attrs.String()
		}
	case event.End:
		te.Name = ev.Name.String()
	case event.PI:
		te.Name = ev.Target
		te.Data = ev.Data
	case event.Doctype:
		te.Name = ev.Doctype.Name
	case event.StartNS, event.EndNS:
		te.Name = ev.Prefix
		te.Data = ev.URI
	default:
		te.Data = ev.Data
	}
	r.Trace = append(r.Trace, te)
}

// Harness holds the per-scenario rendering setup.
type Harness struct {
	loader *loader.Loader
	engine *engine.Engine
	store  *store.Store
	logger *slog.Logger
}

// Run executes a test scenario and returns the result.
//
// Each scenario gets a fresh loader, and a fresh in-memory database when
// it asks for the store. The returned error is reserved for harness
// failures; compile and render failures are checked against Expect and
// reported through Result.
func Run(scenario *Scenario) (*Result, error) {
	ctx := context.Background()

	h, err := newHarness(ctx, scenario)
	if err != nil {
		return nil, err
	}
	defer h.close()

	result := NewResult()
	h.render(scenario, result)

	checkExpect(scenario.Expect, result)
	if result.Err != nil && scenario.Expect == nil {
		result.AddError(fmt.Sprintf("unexpected error: %v", result.Err))
	}
	for _, assertion := range scenario.Assertions {
		if err := evaluateAssertion(result, assertion); err != nil {
			result.AddError(err.Error())
		}
	}

	h.logger.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"events", len(result.Trace))
	return result, nil
}

func newHarness(ctx context.Context, scenario *Scenario) (*Harness, error) {
	h := &Harness{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)), // Suppress logs in tests
	}

	var resolver loader.Resolver
	if scenario.Store {
		st, err := store.Open(":memory:",
			store.WithClock(testutil.NewStepClock(storeEpoch, time.Second).Now),
			store.WithIDs(testutil.NewSequenceIDs("rev")))
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		h.store = st
		for _, name := range sortedNames(scenario.Templates) {
			if _, err := st.Put(ctx, name, []byte(scenario.Templates[name])); err != nil {
				st.Close()
				return nil, fmt.Errorf("failed to store template %s: %w", name, err)
			}
		}
		resolver = st
	} else {
		fsys := fstest.MapFS{}
		for name, src := range scenario.Templates {
			fsys[name] = &fstest.MapFile{Data: []byte(src), ModTime: storeEpoch}
		}
		resolver = loader.NewFSResolver(fsys)
	}

	opts := scenario.Options
	var loaderOpts []loader.Option
	if opts.Dialect != "" {
		loaderOpts = append(loaderOpts, loader.WithDialect(opts.Dialect))
	}
	h.loader = loader.New(resolver, loaderOpts...)

	lookup := expr.Strict
	if opts.Lenient {
		lookup = expr.Lenient
	}
	engineOpts := []engine.EngineOption{
		engine.WithLoader(h.loader),
		engine.WithLookup(lookup),
		engine.WithRenderIDs(testutil.NewSequenceIDs("render")),
	}
	if opts.MaxDepth > 0 {
		engineOpts = append(engineOpts, engine.WithMaxDepth(opts.MaxDepth))
	}
	h.engine = engine.New(engineOpts...)
	return h, nil
}

func (h *Harness) close() {
	if h.store != nil {
		h.store.Close()
	}
}

// render compiles and renders the entry template into result. The trace
// keeps every event produced before a failure.
func (h *Harness) render(scenario *Scenario, result *Result) {
	tree, err := h.loader.Load(scenario.Entry, "")
	if err != nil {
		result.Err = err
		return
	}

	for ev, err := range h.engine.Render(tree, scenario.Data) {
		if err != nil {
			result.Err = err
			return
		}
		result.addEvent(ev)
	}

	opts := scenario.Options
	out, err := serialize.String(event.FromSlice(result.events), serialize.Options{
		Method:          opts.Method,
		Doctype:         opts.Doctype,
		Normalize:       opts.Normalize,
		StripWhitespace: opts.StripWhitespace,
	})
	if err != nil {
		result.Err = err
		return
	}
	result.Output = out
}

func checkExpect(expect *Expect, result *Result) {
	if expect == nil {
		return
	}
	wantErr := expect.Error != "" || expect.ErrorKind != ""
	switch {
	case wantErr && result.Err == nil:
		result.AddError(fmt.Sprintf("expected an error, got output %q", result.Output))
		return
	case !wantErr && result.Err != nil:
		result.AddError(fmt.Sprintf("unexpected error: %v", result.Err))
		return
	}

	if expect.Error != "" && !strings.Contains(result.Err.Error(), expect.Error) {
		result.AddError(fmt.Sprintf("error %q does not contain %q", result.Err, expect.Error))
	}
	if expect.ErrorKind != "" {
		if kind := errorKind(result.Err); kind != expect.ErrorKind {
			result.AddError(fmt.Sprintf("error kind is %s, want %s: %v", kind, expect.ErrorKind, result.Err))
		}
	}
	if expect.Output != nil && result.Err == nil && result.Output != *expect.Output {
		result.AddError(fmt.Sprintf("output mismatch\n  Expected: %q\n  Actual: %q", *expect.Output, result.Output))
	}
}

// errorKind names the category of a compile or render failure.
func errorKind(err error) string {
	var undefined *expr.UndefinedVariableError
	switch {
	case compiler.IsTemplateSyntaxError(err):
		return "syntax"
	case loader.IsTemplateNotFound(err):
		return "not_found"
	case errors.As(err, &undefined):
		return "undefined"
	case serialize.IsSerializationError(err):
		return "serialization"
	case engine.IsRenderError(err), engine.IsDirectiveError(err):
		return "render"
	}
	return "unknown"
}

func sortedNames(m map[string]string) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
