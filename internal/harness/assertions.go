package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/xpath"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s %s\n", ev.Seq, ev.Kind, ev.Name, ev.Data)
		}
	}

	return buf.String()
}

// evaluateAssertion dispatches to the check for the assertion type.
func evaluateAssertion(result *Result, assertion Assertion) error {
	switch assertion.Type {
	case AssertOutputContains:
		return assertOutputContains(result.Output, assertion)
	case AssertOutputExcludes:
		return assertOutputExcludes(result.Output, assertion)
	case AssertSelectCount:
		return assertSelectCount(result, assertion)
	case AssertSelectText:
		return assertSelectText(result, assertion)
	case AssertTraceCount:
		return assertTraceCount(result.Trace, assertion)
	case AssertTraceOrder:
		return assertTraceOrder(result.Trace, assertion)
	}
	return fmt.Errorf("unknown assertion type %q", assertion.Type)
}

func assertOutputContains(output string, assertion Assertion) error {
	if strings.Contains(output, assertion.Text) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputContains,
		Expected: fmt.Sprintf("output containing %q", assertion.Text),
		Actual:   fmt.Sprintf("%q", output),
	}
}

func assertOutputExcludes(output string, assertion Assertion) error {
	if !strings.Contains(output, assertion.Text) {
		return nil
	}
	return &AssertionError{
		Type:     AssertOutputExcludes,
		Expected: fmt.Sprintf("output without %q", assertion.Text),
		Actual:   fmt.Sprintf("%q", output),
	}
}

// selectEvents runs a path pattern over the rendered events, relative to
// the document element.
func selectEvents(result *Result, assertion Assertion) ([]event.Event, error) {
	p, err := xpath.Compile(assertion.Path, xpath.WithNamespaces(assertion.Namespaces))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", assertion.Type, err)
	}
	return event.Collect(xpath.Select(event.FromSlice(result.events), p))
}

// assertSelectCount counts the top-level selections: elements and text
// runs.
func assertSelectCount(result *Result, assertion Assertion) error {
	selected, err := selectEvents(result, assertion)
	if err != nil {
		return err
	}
	count, depth := 0, 0
	for _, ev := range selected {
		switch ev.Kind {
		case event.Start:
			if depth == 0 {
				count++
			}
			depth++
		case event.End:
			depth--
		case event.Text:
			if depth == 0 {
				count++
			}
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertSelectCount,
		Expected: fmt.Sprintf("%d selections for %s", assertion.Count, assertion.Path),
		Actual:   fmt.Sprintf("%d selections", count),
		Trace:    result.Trace,
	}
}

func assertSelectText(result *Result, assertion Assertion) error {
	selected, err := selectEvents(result, assertion)
	if err != nil {
		return err
	}
	text, err := event.TextContent(event.FromSlice(selected))
	if err != nil {
		return err
	}
	if text == assertion.Text {
		return nil
	}
	return &AssertionError{
		Type:     AssertSelectText,
		Expected: fmt.Sprintf("%q selected by %s", assertion.Text, assertion.Path),
		Actual:   fmt.Sprintf("%q", text),
	}
}

// assertTraceCount checks that the trace holds exactly Count events of Kind.
func assertTraceCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Kind == assertion.Kind {
			count++
		}
	}
	if count == assertion.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d %s events", assertion.Count, assertion.Kind),
		Actual:   fmt.Sprintf("%d %s events", count, assertion.Kind),
		Trace:    trace,
	}
}

// assertTraceOrder checks that elements open in the listed order.
// Other elements may open in between.
func assertTraceOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, ev := range trace {
		if next == len(assertion.Elements) {
			break
		}
		if ev.Kind == event.Start.String() && localName(ev.Name) == assertion.Elements[next] {
			next++
		}
	}
	if next == len(assertion.Elements) {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("elements in order: %v", assertion.Elements),
		Actual:   fmt.Sprintf("missing %s after %v", assertion.Elements[next], assertion.Elements[:next]),
		Trace:    trace,
	}
}

// localName strips the {uri} prefix of a QName string.
func localName(name string) string {
	if i := strings.LastIndexByte(name, '}'); i >= 0 {
		return name[i+1:]
	}
	return name
}
