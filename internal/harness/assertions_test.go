package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/weft/internal/event"
)

// sampleResult holds <ul><li>a</li><li class="x">b</li></ul>.
func sampleResult() *Result {
	r := NewResult()
	for _, ev := range []event.Event{
		event.StartEvent(event.Name("ul"), nil, event.Pos{}),
		event.StartEvent(event.Name("li"), nil, event.Pos{}),
		event.TextEvent("a", event.Pos{}),
		event.EndEvent(event.Name("li"), event.Pos{}),
		event.StartEvent(event.Name("li"), event.Attrs{{Name: event.Name("class"), Value: "x"}}, event.Pos{}),
		event.TextEvent("b", event.Pos{}),
		event.EndEvent(event.Name("li"), event.Pos{}),
		event.EndEvent(event.Name("ul"), event.Pos{}),
	} {
		r.addEvent(ev)
	}
	r.Output = `<ul><li>a</li><li class="x">b</li></ul>`
	return r
}

func TestTraceEvents(t *testing.T) {
	r := sampleResult()
	require.Len(t, r.Trace, 8)
	assert.Equal(t, TraceEvent{Seq: 5, Kind: "START", Name: "li", Data: `[class="x"]`}, r.Trace[4])
	assert.Equal(t, TraceEvent{Seq: 6, Kind: "TEXT", Data: "b"}, r.Trace[5])
}

func TestAssertions(t *testing.T) {
	tests := []struct {
		name      string
		assertion Assertion
		pass      bool
	}{
		{"contains", Assertion{Type: AssertOutputContains, Text: `class="x"`}, true},
		{"contains missing", Assertion{Type: AssertOutputContains, Text: "<ol>"}, false},
		{"excludes", Assertion{Type: AssertOutputExcludes, Text: "<ol>"}, true},
		{"excludes present", Assertion{Type: AssertOutputExcludes, Text: "<li>"}, false},
		{"select count", Assertion{Type: AssertSelectCount, Path: "li", Count: 2}, true},
		{"select count predicate", Assertion{Type: AssertSelectCount, Path: "li[@class='x']", Count: 1}, true},
		{"select count wrong", Assertion{Type: AssertSelectCount, Path: "li", Count: 3}, false},
		{"select text", Assertion{Type: AssertSelectText, Path: "li/text()", Text: "ab"}, true},
		{"select text wrong", Assertion{Type: AssertSelectText, Path: "li[@class='x']", Text: "a"}, false},
		{"trace count", Assertion{Type: AssertTraceCount, Kind: "END", Count: 3}, true},
		{"trace count wrong", Assertion{Type: AssertTraceCount, Kind: "TEXT", Count: 1}, false},
		{"trace order", Assertion{Type: AssertTraceOrder, Elements: []string{"ul", "li", "li"}}, true},
		{"trace order wrong", Assertion{Type: AssertTraceOrder, Elements: []string{"li", "ul"}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := evaluateAssertion(sampleResult(), tt.assertion)
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, tt.assertion.Type, ae.Type)
			assert.Contains(t, err.Error(), "Assertion failed: "+tt.assertion.Type)
		})
	}
}

func TestAssertionBadPattern(t *testing.T) {
	err := evaluateAssertion(sampleResult(), Assertion{Type: AssertSelectCount, Path: "li["})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "select_count")
}

func TestAssertionErrorIncludesTrace(t *testing.T) {
	err := evaluateAssertion(sampleResult(), Assertion{Type: AssertTraceCount, Kind: "COMMENT", Count: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Full trace:")
	assert.Contains(t, err.Error(), "[3] TEXT  a")
}

func TestLocalName(t *testing.T) {
	assert.Equal(t, "p", localName("{urn:x}p"))
	assert.Equal(t, "p", localName("p"))
}
