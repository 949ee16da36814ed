package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

// DataError reports a data context file or --set value that could not be
// loaded.
type DataError struct {
	Source  string
	Message string
}

func (e *DataError) Error() string {
	return fmt.Sprintf("%s: %s", e.Source, e.Message)
}

// LoadData reads a render context. The format follows the extension:
// .cue is evaluated as CUE and must be concrete; .yaml, .yml and .json
// are decoded as YAML, which also accepts JSON.
func LoadData(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &DataError{Source: path, Message: err.Error()}
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		return decodeCUE(data, path)
	case ".yaml", ".yml", ".json":
		return decodeYAML(data, path)
	default:
		return nil, &DataError{Source: path, Message: "unsupported data format: want .yaml, .yml, .json or .cue"}
	}
}

func decodeYAML(data []byte, source string) (map[string]any, error) {
	out := map[string]any{}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	if err := decoder.Decode(&out); err != nil {
		if len(bytes.TrimSpace(data)) == 0 {
			return out, nil
		}
		return nil, &DataError{Source: source, Message: err.Error()}
	}
	return out, nil
}

// decodeCUE evaluates a CUE file. Only concrete values can reach a
// template, so incomplete fields are an error.
func decodeCUE(data []byte, source string) (map[string]any, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(source))
	if err := value.Err(); err != nil {
		return nil, &DataError{Source: source, Message: fmt.Sprintf("compiling CUE: %v", err)}
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, &DataError{Source: source, Message: fmt.Sprintf("CUE value is not concrete: %v", err)}
	}
	out := map[string]any{}
	if err := value.Decode(&out); err != nil {
		return nil, &DataError{Source: source, Message: fmt.Sprintf("decoding CUE: %v", err)}
	}
	return out, nil
}

// ApplySet assigns one --set key=value pair. Dotted keys create nested
// maps. The value is read as YAML, so numbers, booleans and flow lists
// keep their type; anything that does not parse stays a string.
func ApplySet(data map[string]any, assignment string) error {
	key, raw, ok := strings.Cut(assignment, "=")
	if !ok || key == "" {
		return &DataError{Source: "--set " + assignment, Message: "want key=value"}
	}

	var value any = raw
	if raw != "" {
		var parsed any
		if err := yaml.Unmarshal([]byte(raw), &parsed); err == nil {
			value = parsed
		}
	}

	parts := strings.Split(key, ".")
	m := data
	for _, part := range parts[:len(parts)-1] {
		next, ok := m[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			m[part] = next
		}
		m = next
	}
	m[parts[len(parts)-1]] = value
	return nil
}
