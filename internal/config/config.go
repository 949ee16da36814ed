// Package config loads weft settings from a YAML file and WEFT_*
// environment variables. Command-line flags are applied on top by the
// CLI.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/expr"
	"github.com/roach88/weft/internal/loader"
	"github.com/roach88/weft/internal/serialize"
)

// EnvPrefix starts every environment override.
const EnvPrefix = "WEFT_"

// Config holds the settings shared by the render and select commands.
type Config struct {
	// SearchPath lists template directories, searched in order.
	// Relative entries are resolved against the config file's directory.
	SearchPath []string `yaml:"search_path"`

	// Dialect is auto, markup or text.
	Dialect string `yaml:"dialect"`

	// Method is the serialization method: xml, xhtml, html or text.
	Method string `yaml:"method"`

	// Doctype names a well-known doctype written before the output.
	Doctype string `yaml:"doctype,omitempty"`

	// Lookup is strict or lenient.
	Lookup string `yaml:"lookup"`

	// MaxDepth bounds macro, match and include nesting.
	MaxDepth int `yaml:"max_depth"`

	Normalize       bool `yaml:"normalize"`
	StripWhitespace bool `yaml:"strip_whitespace"`

	// Database is a template store consulted after the search path.
	Database string `yaml:"database,omitempty"`
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		SearchPath: []string{"."},
		Dialect:    loader.DialectAuto,
		Method:     serialize.DefaultMethod,
		Lookup:     expr.Strict.String(),
		MaxDepth:   engine.DefaultMaxDepth,
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := cfg.decode(bytes.NewReader(data)); err != nil {
			return Config{}, err
		}
		cfg.resolvePaths(filepath.Dir(path))
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Parse reads YAML settings over the defaults. It neither resolves paths
// nor consults the environment.
func Parse(r io.Reader) (Config, error) {
	cfg := Default()
	if err := cfg.decode(r); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

func (c *Config) resolvePaths(base string) {
	for i, dir := range c.SearchPath {
		if !filepath.IsAbs(dir) {
			c.SearchPath[i] = filepath.Join(base, dir)
		}
	}
	if c.Database != "" && !filepath.IsAbs(c.Database) {
		c.Database = filepath.Join(base, c.Database)
	}
}

// ApplyEnv overrides fields from WEFT_* variables read through getenv.
// WEFT_SEARCH_PATH uses the OS path list separator.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(EnvPrefix + key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v := getenv(EnvPrefix + key)
		if v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
		return nil
	}

	if v := getenv(EnvPrefix + "SEARCH_PATH"); v != "" {
		c.SearchPath = filepath.SplitList(v)
	}
	str("DIALECT", &c.Dialect)
	str("METHOD", &c.Method)
	str("DOCTYPE", &c.Doctype)
	str("LOOKUP", &c.Lookup)
	str("DATABASE", &c.Database)
	if v := getenv(EnvPrefix + "MAX_DEPTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_DEPTH: %w", EnvPrefix, err)
		}
		c.MaxDepth = n
	}
	if err := boolean("NORMALIZE", &c.Normalize); err != nil {
		return err
	}
	return boolean("STRIP_WHITESPACE", &c.StripWhitespace)
}

// Validate checks every enumerated field.
func (c Config) Validate() error {
	switch c.Dialect {
	case loader.DialectAuto, loader.DialectMarkup, loader.DialectText:
	default:
		return fmt.Errorf("dialect %q: must be auto, markup or text", c.Dialect)
	}
	if _, ok := serialize.LookupFormat(c.Method); !ok {
		return fmt.Errorf("method %q: must be one of %s", c.Method, strings.Join(methodNames(), ", "))
	}
	if c.Doctype != "" {
		if _, ok := serialize.LookupDoctype(c.Doctype); !ok {
			return fmt.Errorf("unknown doctype %q", c.Doctype)
		}
	}
	if _, err := expr.ParseLookup(c.Lookup); err != nil {
		return err
	}
	if c.MaxDepth < 1 {
		return fmt.Errorf("max_depth must be positive, got %d", c.MaxDepth)
	}
	return nil
}

// LookupMode returns the parsed Lookup field.
func (c Config) LookupMode() expr.Lookup {
	mode, _ := expr.ParseLookup(c.Lookup)
	return mode
}

// SerializeOptions returns the serializer settings.
func (c Config) SerializeOptions() serialize.Options {
	return serialize.Options{
		Method:          c.Method,
		Doctype:         c.Doctype,
		Normalize:       c.Normalize,
		StripWhitespace: c.StripWhitespace,
	}
}

func methodNames() []string {
	return []string{"xml", "xhtml", "html", "text"}
}
