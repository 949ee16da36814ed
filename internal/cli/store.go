package cli

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/weft/internal/store"
)

// StoreOptions holds flags shared by the store subcommands.
type StoreOptions struct {
	*RootOptions
	Database string
}

// RevisionInfo is the JSON form of a stored revision, without its source.
type RevisionInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Seq       int64     `json:"seq"`
	Hash      string    `json:"hash"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

func revisionInfo(rev store.Revision) RevisionInfo {
	return RevisionInfo{
		ID:        rev.ID,
		Name:      rev.Name,
		Seq:       rev.Seq,
		Hash:      rev.Hash,
		CreatedAt: rev.CreatedAt,
		Size:      len(rev.Source),
	}
}

// NewStoreCommand creates the store command and its subcommands.
func NewStoreCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &StoreOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the SQLite template store",
		Long: `Manage templates kept in a SQLite database.

Every put appends a revision. Rendering with --db uses the newest
revision of each template, including templates pulled in by xi:include.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Database, "db", "", "path to SQLite database (defaults to the config database)")

	put := &cobra.Command{
		Use:           "put <name> <file>",
		Short:         "Store a file as the newest revision of a template",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStorePut(opts, args[0], args[1], cmd)
		},
	}
	list := &cobra.Command{
		Use:           "list",
		Short:         "List stored templates with their newest revision",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreList(opts, cmd)
		},
	}
	history := &cobra.Command{
		Use:           "history <name>",
		Short:         "List every revision of a template",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStoreHistory(opts, args[0], cmd)
		},
	}
	cmd.AddCommand(put, list, history)

	return cmd
}

func (o *StoreOptions) open() (*store.Store, error) {
	path := o.Database
	if path == "" {
		cfg, err := o.Settings()
		if err != nil {
			return nil, withCode(ErrCodeConfig, ExitCommandError, err)
		}
		path = cfg.Database
	}
	if path == "" {
		return nil, withCode(ErrCodeStore, ExitCommandError, errors.New("no database: pass --db or set database in the config"))
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, withCode(ErrCodeStore, ExitCommandError, err)
	}
	return st, nil
}

func runStorePut(opts *StoreOptions, name, file string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	source, err := os.ReadFile(file)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeNotFound, ExitCommandError, err))
	}
	st, err := opts.open()
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	rev, err := st.Put(cmd.Context(), name, source)
	if err != nil {
		return formatter.Fail(withCode(ErrCodeStore, ExitCommandError, err))
	}
	formatter.VerboseLog("Stored %d bytes from %s", len(source), file)

	if formatter.Format == "json" {
		return formatter.Success(revisionInfo(rev))
	}
	fmt.Fprintf(formatter.Writer, "✓ %s revision %d (%s)\n", rev.Name, rev.Seq, rev.ID)
	return nil
}

func runStoreList(opts *StoreOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.open()
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	revs, err := st.List(cmd.Context())
	if err != nil {
		return formatter.Fail(withCode(ErrCodeStore, ExitCommandError, err))
	}
	return outputRevisions(formatter, revs)
}

func runStoreHistory(opts *StoreOptions, name string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	st, err := opts.open()
	if err != nil {
		return formatter.Fail(err)
	}
	defer st.Close()

	revs, err := st.History(cmd.Context(), name)
	if err != nil {
		return formatter.Fail(err)
	}
	return outputRevisions(formatter, revs)
}

func outputRevisions(formatter *OutputFormatter, revs []store.Revision) error {
	infos := make([]RevisionInfo, len(revs))
	for i, rev := range revs {
		infos[i] = revisionInfo(rev)
	}
	if formatter.Format == "json" {
		return formatter.Success(infos)
	}

	tw := tabwriter.NewWriter(formatter.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSEQ\tREVISION\tCREATED\tBYTES")
	for _, info := range infos {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%d\n", info.Name, info.Seq, info.ID, info.CreatedAt.Format(time.RFC3339), info.Size)
	}
	return tw.Flush()
}
