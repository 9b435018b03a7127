package cli

import (
	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/toolchain"
)

// CargoConfigOptions holds flags for the cargo-config command.
type CargoConfigOptions struct {
	*RootOptions
	OutDir       string
	Target       string
	TargetFile   string
	RustargsFile string
	Rustflags    string
}

// NewCargoConfigCommand creates the cargo-config command.
func NewCargoConfigCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CargoConfigOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "cargo-config",
		Short: "Generate the cargo configuration of a Rust task",
		Long: `Write <outdir>/.cargo/config.toml setting the build target, the target
directory, the rustflags and OUT_DIR for a Rust task built out of tree.

The target comes from --target or the first line of --target-file. Rustflags
are the lines of --rustargs-file followed by --rustflags.`,
		Args:          cobra.NoArgs,
		Example:       `  shieldmeta cargo-config --outdir build/blinky --target-file build/rust_target --rustargs-file build/rustargs`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCargoConfig(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.OutDir, "outdir", "", "output directory")
	cmd.Flags().StringVar(&opts.Target, "target", "", "target triple")
	cmd.Flags().StringVar(&opts.TargetFile, "target-file", "", "file holding the target triple")
	cmd.Flags().StringVar(&opts.RustargsFile, "rustargs-file", "", "file holding one rustc argument per line")
	cmd.Flags().StringVar(&opts.Rustflags, "rustflags", "", "extra space separated rustc arguments")
	_ = cmd.MarkFlagRequired("outdir")
	cmd.MarkFlagsMutuallyExclusive("target", "target-file")
	cmd.MarkFlagsOneRequired("target", "target-file")

	return cmd
}

func runCargoConfig(cmd *cobra.Command, opts *CargoConfigOptions) error {
	formatter := opts.formatter(cmd)

	target := opts.Target
	if opts.TargetFile != "" {
		t, err := toolchain.ReadRustTarget(opts.TargetFile)
		if err != nil {
			return formatter.Fail("cargo configuration", err)
		}
		target = t
	}

	flags, err := toolchain.ReadRustflags(opts.RustargsFile, opts.Rustflags)
	if err != nil {
		return formatter.Fail("cargo configuration", err)
	}

	path, err := toolchain.GenerateCargoConfig(opts.OutDir, target, flags)
	if err != nil {
		return formatter.Fail("cargo configuration", err)
	}

	if opts.Format == "json" {
		return formatter.Success(map[string]any{"path": path, "target": target, "rustflags": flags})
	}
	formatter.Check("Cargo configuration written: %s", path)
	formatter.Field("target", target)
	return nil
}
