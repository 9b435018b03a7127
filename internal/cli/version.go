package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/meta"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the tool and record format versions",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := rootOpts.formatter(cmd)
			if rootOpts.Format == "json" {
				return formatter.Success(map[string]any{
					"version":        meta.ToolVersion,
					"format_version": meta.FormatVersion,
					"max_supported":  meta.MaxSupportedVersion,
				})
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "shieldmeta %s (record format %d)\n",
				meta.ToolVersion, meta.FormatVersion)
			return err
		},
	}
}
