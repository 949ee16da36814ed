package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/event"
	"github.com/roach88/weft/internal/markup"
	"github.com/roach88/weft/internal/serialize"
	"github.com/roach88/weft/internal/xpath"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	HTML       bool
	Method     string
	Namespaces []string
}

// SelectResult is the JSON payload of a selection.
type SelectResult struct {
	Pattern string            `json:"pattern"`
	Output  string            `json:"output,omitempty"`
	Attrs   map[string]string `json:"attrs,omitempty"`
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select <pattern> <file>",
		Short: "Run a path pattern over a document",
		Long: `Run a path pattern over an XML or HTML document and print what it
selects, relative to the document element.

Element and text selections are serialized; a trailing @name or @* step
prints the selected attributes, one name="value" per line.

Example:
  weft select 'li[@class="odd"]' list.xml
  weft select --html 'body/*/@id' page.html
  weft select --ns a=urn:atom 'a:entry/a:title' feed.xml`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.HTML, "html", false, "parse the input as HTML")
	cmd.Flags().StringVar(&opts.Method, "method", "", "serialization method (xml|xhtml|html|text)")
	cmd.Flags().StringArrayVar(&opts.Namespaces, "ns", nil, "bind a pattern prefix (prefix=uri)")

	return cmd
}

func runSelect(opts *SelectOptions, pattern, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	ns := map[string]string{}
	for _, binding := range opts.Namespaces {
		prefix, uri, ok := strings.Cut(binding, "=")
		if !ok || prefix == "" {
			return formatter.Fail(withCode(ErrCodeGeneric, ExitCommandError, fmt.Errorf("--ns %q: want prefix=uri", binding)))
		}
		ns[prefix] = uri
	}
	p, err := xpath.Compile(pattern, xpath.WithNamespaces(ns))
	if err != nil {
		return formatter.Fail(err)
	}

	f, err := os.Open(path)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeNotFound, ExitCommandError, err))
	}
	defer f.Close()

	var doc event.Stream
	if opts.HTML {
		doc = markup.ParseHTML(f, path)
	} else {
		doc = markup.ParseXML(f, path)
	}

	if p.Attributes() {
		attrs, err := xpath.SelectAttrs(doc, p)
		if err != nil {
			return formatter.Fail(parseFailure(err))
		}
		return outputAttrs(formatter, pattern, attrs)
	}

	method := opts.Method
	if method == "" {
		method = serialize.DefaultMethod
		if opts.HTML {
			method = "html"
		}
	}
	out, err := serialize.String(xpath.Select(doc, p), serialize.Options{Method: method})
	if err != nil {
		return formatter.Fail(parseFailure(err))
	}

	if formatter.Format == "json" {
		return formatter.Success(SelectResult{Pattern: pattern, Output: out})
	}
	fmt.Fprintln(formatter.Writer, out)
	return nil
}

func outputAttrs(formatter *OutputFormatter, pattern string, attrs event.Attrs) error {
	if formatter.Format == "json" {
		m := make(map[string]string, len(attrs))
		for _, a := range attrs {
			m[a.Name.String()] = a.Value
		}
		return formatter.Success(SelectResult{Pattern: pattern, Attrs: m})
	}
	for _, a := range attrs {
		fmt.Fprintf(formatter.Writer, "%s=%q\n", a.Name, a.Value)
	}
	return nil
}

// parseFailure gives input parse errors a command-error exit status.
func parseFailure(err error) error {
	if markup.IsParseError(err) {
		return withCode(ErrCodeParse, ExitCommandError, err)
	}
	return err
}
