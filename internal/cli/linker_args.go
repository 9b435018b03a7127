package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/elfnote"
)

// LinkerArgsOptions holds flags for the linker-args command.
type LinkerArgsOptions struct {
	*RootOptions
	Build BuildFlags
	Raw   bool
	Probe string
}

// NewLinkerArgsCommand creates the linker-args command.
func NewLinkerArgsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LinkerArgsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "linker-args",
		Short: "Print the linker arguments embedding the package metadata",
		Long: `Synthesize the record and print the arguments that make the linker emit it
as a package metadata note, one argument per line.

By default the arguments target a compiler driver (-Xlinker ...). Use --raw
when invoking the linker directly. --probe checks first that the given linker
supports the option.`,
		Args:          cobra.NoArgs,
		Example:       `  shieldmeta linker-args --config build/.config --dts board.yaml --probe arm-none-eabi-ld`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLinkerArgs(cmd, opts)
		},
	}

	opts.Build.register(cmd)
	cmd.Flags().BoolVar(&opts.Raw, "raw", false, "print arguments for the linker itself")
	cmd.Flags().StringVar(&opts.Probe, "probe", "", "linker to check for "+elfnote.LinkerFlag+" support")

	return cmd
}

func runLinkerArgs(cmd *cobra.Command, opts *LinkerArgsOptions) error {
	formatter := opts.formatter(cmd)

	if opts.Probe != "" {
		if err := elfnote.Probe(cmd.Context(), opts.Runner, opts.Probe); err != nil {
			return formatter.Fail("linker probe", err)
		}
		formatter.VerboseLog("%s supports %s", opts.Probe, elfnote.LinkerFlag)
	}

	res, err := runPipeline(cmd.Context(), opts.RootOptions, &opts.Build)
	if err != nil {
		return formatter.Fail("synthesis", err)
	}

	args := elfnote.LinkerArgs(res.Document)
	if opts.Raw {
		args = elfnote.RawLinkerArgs(res.Document)
	}

	if opts.Format == "json" {
		return formatter.SuccessWithBuild(res.BuildID, map[string]any{"args": args})
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), strings.Join(args, "\n"))
	return err
}
