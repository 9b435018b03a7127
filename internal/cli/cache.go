package cli

import (
	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/store"
)

// CacheOptions holds flags for the cache commands.
type CacheOptions struct {
	*RootOptions
	Path string
	Kind string
}

// NewCacheCommand creates the cache command group.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CacheOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the introspection cache",
		Long: `The introspection cache keeps build system query output (cargo metadata)
keyed by the content of the project manifests, so repeated builds of an
unchanged project skip the query.`,
	}
	cmd.PersistentFlags().StringVar(&opts.Path, "cache", "", "introspection cache database (default $"+CacheEnv+")")
	cmd.PersistentFlags().StringVar(&opts.Kind, "kind", "", "restrict to one entry kind (e.g. cargo-metadata/v1)")

	cmd.AddCommand(&cobra.Command{
		Use:           "info",
		Short:         "Show the number of cached entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCacheInfo(cmd, opts)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:           "purge",
		Short:         "Delete cached entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCachePurge(cmd, opts)
		},
	})

	return cmd
}

func (opts *CacheOptions) open() (*store.Store, string, error) {
	path := opts.Path
	if path == "" {
		path = opts.Getenv(CacheEnv)
	}
	if path == "" {
		return nil, "", NewExitError(ExitCommandError, "no cache configured: pass --cache or set "+CacheEnv)
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, "", err
	}
	return st, path, nil
}

func runCacheInfo(cmd *cobra.Command, opts *CacheOptions) error {
	formatter := opts.formatter(cmd)

	st, path, err := opts.open()
	if err != nil {
		return formatter.Fail("cache info", err)
	}
	defer st.Close()

	n, err := st.Count(cmd.Context(), opts.Kind)
	if err != nil {
		return formatter.Fail("cache info", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"path": path, "kind": opts.Kind, "entries": n})
	}
	formatter.Check("%s", path)
	formatter.Field("entries", n)
	return nil
}

func runCachePurge(cmd *cobra.Command, opts *CacheOptions) error {
	formatter := opts.formatter(cmd)

	st, path, err := opts.open()
	if err != nil {
		return formatter.Fail("cache purge", err)
	}
	defer st.Close()

	n, err := st.Purge(cmd.Context(), opts.Kind)
	if err != nil {
		return formatter.Fail("cache purge", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"path": path, "kind": opts.Kind, "deleted": n})
	}
	formatter.Check("Purged %d entries from %s", n, path)
	return nil
}
