package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/compiler"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Dialect string
	Output  string // output file path
}

// CompilationResult is a compiled template's outline and diagnostics.
type CompilationResult struct {
	Template string                     `json:"template"`
	Dialect  string                     `json:"dialect"`
	Outline  []compiler.OutlineNode     `json:"outline"`
	Warnings []compiler.ValidationError `json:"warnings,omitempty"`
	Cycles   []compiler.CycleWarning    `json:"cycles,omitempty"`
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <template>",
		Short: "Compile a template and print its directive tree",
		Long: `Compile a template and print an outline of its directive tree.

Syntax errors are reported with their file, line and column. A template
that compiles is also checked for likely mistakes (calls that cannot be
resolved, shadowed defs, discarded element bodies) and for defs that call
each other recursively.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Dialect, "dialect", "", "template dialect (auto|markup|text)")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the JSON outline to a file")

	return cmd
}

func runCompile(opts *CompileOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	cfg, err := opts.Settings()
	if err != nil {
		return formatter.Fail(withCode(ErrCodeConfig, ExitCommandError, err))
	}
	if cmd.Flags().Changed("dialect") {
		cfg.Dialect = opts.Dialect
	}
	if err := cfg.Validate(); err != nil {
		return formatter.Fail(withCode(ErrCodeConfig, ExitCommandError, err))
	}

	ldr, tplName, closeStore, err := openLoader(cfg, name)
	if err != nil {
		return formatter.Fail(err)
	}
	defer closeStore()

	tree, err := ldr.Load(tplName, "")
	if err != nil {
		var se *compiler.TemplateSyntaxError
		if errors.As(err, &se) {
			return outputSyntaxError(formatter, se)
		}
		return formatter.Fail(loadFailure(err))
	}

	result := &CompilationResult{
		Template: tree.Name,
		Dialect:  tree.Dialect,
		Outline:  tree.Outline(),
		Warnings: compiler.Validate(tree),
		Cycles:   compiler.AnalyzeRecursion(tree),
	}
	for _, w := range result.Warnings {
		formatter.VerboseLog("warning: %s", w.Error())
	}

	if opts.Output != "" {
		if err := writeOutlineFile(result, opts.Output); err != nil {
			return formatter.Fail(withCode(ErrCodeWriteFailed, ExitCommandError, fmt.Errorf("writing output file: %w", err)))
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %s (%s)\n\n", result.Template, result.Dialect)
	if err := compiler.WriteOutline(formatter.Writer, result.Outline); err != nil {
		return err
	}

	if len(result.Warnings) > 0 {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Warnings:")
		for _, w := range result.Warnings {
			fmt.Fprintf(formatter.Writer, "  %s\n", w.Error())
		}
	}

	if len(result.Cycles) > 0 {
		fmt.Fprintln(formatter.Writer)
		fmt.Fprintln(formatter.Writer, "Recursion:")
		for _, c := range result.Cycles {
			fmt.Fprintf(formatter.Writer, "  %s: %s\n", c.Level, c.Message)
		}
	}

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "\nWrote outline to %s\n", outputFile)
	}

	return nil
}

// outputSyntaxError reports a compile failure with its location.
// Compilation errors are command-level errors (exit code 2).
func outputSyntaxError(formatter *OutputFormatter, se *compiler.TemplateSyntaxError) error {
	var werr error
	if formatter.Format == "json" {
		werr = formatter.Error(se.Code, se.Message, se)
	} else {
		_, werr = fmt.Fprintf(formatter.Writer, "✗ Compilation failed\n\n%s\n  %s: %s\n\n", se.Pos(), se.Code, se.Message)
	}
	if werr != nil {
		return WrapExitError(ExitCommandError, ErrCodeSyntax, errors.Join(se, fmt.Errorf("writing error output: %w", werr)))
	}
	return WrapExitError(ExitCommandError, ErrCodeSyntax, se)
}

// writeOutlineFile writes the compilation result as indented JSON.
func writeOutlineFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling outline: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
