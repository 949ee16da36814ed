package harness

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a conformance test scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. It also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Entry is the template to render.
	Entry string `yaml:"entry"`

	// Templates maps template names to their source.
	Templates map[string]string `yaml:"templates"`

	// Store resolves the templates through an in-memory SQLite store.
	Store bool `yaml:"store,omitempty"`

	// Data is the render context.
	Data map[string]any `yaml:"data,omitempty"`

	// Options configure compilation, rendering and serialization.
	Options Options `yaml:"options,omitempty"`

	// Expect checks the overall outcome.
	Expect *Expect `yaml:"expect,omitempty"`

	// Assertions check the rendered output and event trace.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Options mirror the render settings of the CLI.
type Options struct {
	Dialect         string `yaml:"dialect,omitempty"`
	Method          string `yaml:"method,omitempty"`
	Doctype         string `yaml:"doctype,omitempty"`
	Lenient         bool   `yaml:"lenient,omitempty"`
	StripWhitespace bool   `yaml:"strip_whitespace,omitempty"`
	Normalize       bool   `yaml:"normalize,omitempty"`
	MaxDepth        int    `yaml:"max_depth,omitempty"`
}

// Expect specifies the expected outcome of a scenario.
type Expect struct {
	// Output is the exact serialized output.
	Output *string `yaml:"output,omitempty"`

	// Error is a substring of the expected failure message.
	Error string `yaml:"error,omitempty"`

	// ErrorKind classifies the expected failure:
	// syntax, not_found, undefined, render or serialization.
	ErrorKind string `yaml:"error_kind,omitempty"`
}

// Assertion validates the output or the event trace.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Text is the expected substring (output_contains, output_excludes)
	// or selected text (select_text).
	Text string `yaml:"text,omitempty"`

	// Path is a path pattern (select_count, select_text).
	Path string `yaml:"path,omitempty"`

	// Namespaces bind pattern prefixes to URIs.
	Namespaces map[string]string `yaml:"namespaces,omitempty"`

	// Kind is an event kind such as START or TEXT (trace_count).
	Kind string `yaml:"kind,omitempty"`

	// Count is the expected number of matches (select_count, trace_count).
	Count int `yaml:"count"`

	// Elements lists local element names in opening order (trace_order).
	Elements []string `yaml:"elements,omitempty"`
}

// Assertion type constants.
const (
	AssertOutputContains = "output_contains"
	AssertOutputExcludes = "output_excludes"
	AssertSelectCount    = "select_count"
	AssertSelectText     = "select_text"
	AssertTraceCount     = "trace_count"
	AssertTraceOrder     = "trace_order"
)

// Error kinds accepted by Expect.ErrorKind.
var errorKinds = []string{"syntax", "not_found", "undefined", "render", "serialization"}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(bytes.NewReader(data))
}

// ParseScenario parses and validates a scenario.
func ParseScenario(r io.Reader) (*Scenario, error) {
	// Parse YAML with strict field validation (catches typos like "assertion:" vs "assertions:")
	var scenario Scenario
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Templates) == 0 {
		return fmt.Errorf("templates map is required and must be non-empty")
	}

	if s.Entry == "" {
		return fmt.Errorf("entry is required")
	}
	if _, ok := s.Templates[s.Entry]; !ok {
		return fmt.Errorf("entry %q is not among the templates", s.Entry)
	}

	if s.Expect == nil && len(s.Assertions) == 0 {
		return fmt.Errorf("expect or assertions is required")
	}

	if s.Expect != nil {
		if s.Expect.Output != nil && (s.Expect.Error != "" || s.Expect.ErrorKind != "") {
			return fmt.Errorf("expect: output and error are mutually exclusive")
		}
		if s.Expect.ErrorKind != "" && !slices.Contains(errorKinds, s.Expect.ErrorKind) {
			return fmt.Errorf("expect: unknown error_kind %q", s.Expect.ErrorKind)
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertOutputContains, AssertOutputExcludes:
		if a.Text == "" {
			return fmt.Errorf("assertions[%d]: text is required for %s", index, a.Type)
		}
	case AssertSelectCount:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for select_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for select_count", index)
		}
	case AssertSelectText:
		if a.Path == "" {
			return fmt.Errorf("assertions[%d]: path is required for select_text", index)
		}
	case AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for trace_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Elements) == 0 {
			return fmt.Errorf("assertions[%d]: elements list is required for trace_order", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
