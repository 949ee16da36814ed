package cli

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/config"
	"github.com/roach88/weft/internal/engine"
	"github.com/roach88/weft/internal/loader"
	"github.com/roach88/weft/internal/serialize"
	"github.com/roach88/weft/internal/store"
)

// RenderOptions holds flags for the render command.
type RenderOptions struct {
	*RootOptions
	Data            string
	Set             []string
	Method          string
	Doctype         string
	Dialect         string
	SearchPath      []string
	Database        string
	Lenient         bool
	Normalize       bool
	StripWhitespace bool
	MaxDepth        int
	Output          string

	// RenderIDs allows overriding the render ID generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	RenderIDs engine.RenderIDGenerator
}

// RenderResult is the JSON payload of a successful render.
type RenderResult struct {
	Template string `json:"template"`
	Output   string `json:"output,omitempty"`
	File     string `json:"file,omitempty"`
	Bytes    int    `json:"bytes"`
}

// NewRenderCommand creates the render command.
func NewRenderCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RenderOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template",
		Long: `Render a template against a data context and print the result.

The template is a file path or a name looked up in the search path and
then in the template store. Data comes from a YAML, JSON or CUE file and
from --set assignments, which win over the file.

Example:
  weft render page.html --data ctx.yaml --method html --doctype html5
  weft render letter.txt --set name=Ann --set items='[milk, eggs]'
  weft render --db ./templates.db layout/page.html -o page.html`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRender(opts, args[0], cmd)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.Data, "data", "", "data context file (.yaml, .yml, .json or .cue)")
	flags.StringArrayVar(&opts.Set, "set", nil, "set a context value (key=value, dotted keys nest)")
	flags.StringVar(&opts.Method, "method", "", "serialization method (xml|xhtml|html|text)")
	flags.StringVar(&opts.Doctype, "doctype", "", "doctype to emit first (html5, xhtml-strict, ...)")
	flags.StringVar(&opts.Dialect, "dialect", "", "template dialect (auto|markup|text)")
	flags.StringSliceVar(&opts.SearchPath, "search-path", nil, "template directories, searched in order")
	flags.StringVar(&opts.Database, "db", "", "template store consulted after the search path")
	flags.BoolVar(&opts.Lenient, "lenient", false, "render undefined names as nothing instead of failing")
	flags.BoolVar(&opts.Normalize, "normalize", false, "apply Unicode NFC to the output")
	flags.BoolVar(&opts.StripWhitespace, "strip-whitespace", false, "collapse blank lines and trailing spaces")
	flags.IntVar(&opts.MaxDepth, "max-depth", 0, "nesting limit for macros, matches and includes")
	flags.StringVarP(&opts.Output, "output", "o", "", "write the output to a file")

	return cmd
}

func runRender(opts *RenderOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.Settings()
	if err != nil {
		return formatter.Fail(withCode(ErrCodeConfig, ExitCommandError, err))
	}
	opts.apply(cmd, &cfg)
	if err := cfg.Validate(); err != nil {
		return formatter.Fail(withCode(ErrCodeConfig, ExitCommandError, err))
	}

	data, err := opts.context()
	if err != nil {
		return formatter.Fail(withCode(ErrCodeData, ExitCommandError, err))
	}

	ldr, tplName, closeStore, err := openLoader(cfg, name)
	if err != nil {
		return formatter.Fail(err)
	}
	defer closeStore()

	tree, err := ldr.Load(tplName, "")
	if err != nil {
		return formatter.Fail(loadFailure(err))
	}
	formatter.VerboseLog("Compiled %s (%s)", tree.Name, tree.Dialect)

	engineOpts := []engine.EngineOption{
		engine.WithLoader(ldr),
		engine.WithLookup(cfg.LookupMode()),
		engine.WithMaxDepth(cfg.MaxDepth),
	}
	if opts.RenderIDs != nil {
		engineOpts = append(engineOpts, engine.WithRenderIDs(opts.RenderIDs))
	}
	eng := engine.New(engineOpts...)

	var buf bytes.Buffer
	if err := serialize.Render(&buf, eng.Render(tree, data), cfg.SerializeOptions()); err != nil {
		return formatter.Fail(err)
	}

	result := RenderResult{Template: tree.Name, Bytes: buf.Len()}
	if opts.Output != "" {
		if err := os.WriteFile(opts.Output, buf.Bytes(), 0o644); err != nil {
			return formatter.Fail(withCode(ErrCodeWriteFailed, ExitCommandError, fmt.Errorf("writing output file: %w", err)))
		}
		result.File = opts.Output
		if formatter.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(formatter.Writer, "Wrote %d bytes to %s\n", result.Bytes, opts.Output)
		return nil
	}

	if formatter.Format == "json" {
		result.Output = buf.String()
		return formatter.Success(result)
	}
	_, err = formatter.Writer.Write(buf.Bytes())
	return err
}

// apply lets explicitly set flags win over the config file and environment.
func (o *RenderOptions) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("method") {
		cfg.Method = o.Method
	}
	if flags.Changed("doctype") {
		cfg.Doctype = o.Doctype
	}
	if flags.Changed("dialect") {
		cfg.Dialect = o.Dialect
	}
	if flags.Changed("search-path") {
		cfg.SearchPath = o.SearchPath
	}
	if flags.Changed("db") {
		cfg.Database = o.Database
	}
	if flags.Changed("lenient") {
		cfg.Lookup = "strict"
		if o.Lenient {
			cfg.Lookup = "lenient"
		}
	}
	if flags.Changed("normalize") {
		cfg.Normalize = o.Normalize
	}
	if flags.Changed("strip-whitespace") {
		cfg.StripWhitespace = o.StripWhitespace
	}
	if flags.Changed("max-depth") {
		cfg.MaxDepth = o.MaxDepth
	}
}

// context builds the render data from --data and --set.
func (o *RenderOptions) context() (map[string]any, error) {
	data := map[string]any{}
	if o.Data != "" {
		loaded, err := LoadData(o.Data)
		if err != nil {
			return nil, err
		}
		data = loaded
	}
	for _, assignment := range o.Set {
		if err := ApplySet(data, assignment); err != nil {
			return nil, err
		}
	}
	return data, nil
}

// openLoader builds the resolver chain for a template argument. A path to
// an existing file puts its directory first; the search path and the
// store follow. The returned func closes the store.
func openLoader(cfg config.Config, arg string) (*loader.Loader, string, func(), error) {
	var chain loader.Chain
	name := arg
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		chain = append(chain, loader.NewDirResolver(filepath.Dir(arg)))
		name = filepath.Base(arg)
	}
	if len(cfg.SearchPath) > 0 {
		chain = append(chain, loader.NewDirResolver(cfg.SearchPath...))
	}

	closeStore := func() {}
	if cfg.Database != "" {
		st, err := store.Open(cfg.Database)
		if err != nil {
			return nil, "", nil, withCode(ErrCodeStore, ExitCommandError, err)
		}
		chain = append(chain, st)
		closeStore = func() { st.Close() }
	}
	return loader.New(chain, loader.WithDialect(cfg.Dialect)), name, closeStore, nil
}

// loadFailure gives loader errors without a typed category a command-error
// exit status.
func loadFailure(err error) error {
	if code, _ := classify(err); code == ErrCodeGeneric {
		return withCode(ErrCodeNotFound, ExitCommandError, err)
	}
	return err
}
