package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/command"
	"github.com/outpost-os/shieldmeta/internal/pipeline"
)

// RootOptions holds global flags for all commands, plus the collaborators
// tests replace.
type RootOptions struct {
	Verbose   bool
	Format    string // "json" | "text"
	LogLevel  string
	LogFormat string

	// Runner executes external tools. Defaults to command.Exec.
	Runner command.Runner
	// Getenv reads the environment. Defaults to os.Getenv.
	Getenv func(string) string
	// IDs generates build ids. Defaults to pipeline.UUIDv7Generator.
	IDs pipeline.IDGenerator

	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// ValidLogLevels defines the allowed --log-level values.
var ValidLogLevels = []string{"debug", "info", "warn", "error"}

// NewRootCommand creates the root command for the shieldmeta CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Runner == nil {
		opts.Runner = command.Exec
	}
	if opts.Getenv == nil {
		opts.Getenv = os.Getenv
	}
	if opts.IDs == nil {
		opts.IDs = pipeline.UUIDv7Generator{}
	}

	cmd := &cobra.Command{
		Use:   "shieldmeta",
		Short: "shieldmeta - package metadata for Outpost tasks",
		Long: `Generate, embed and verify the package metadata record of an Outpost task.

The record merges the task's resolved Kconfig, its hardware description and
the build system's view of the project. It is embedded in the task ELF image
as a package metadata note and checked by the runtime at load time.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if !slices.Contains(ValidLogLevels, opts.LogLevel) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid log level %q: must be one of %v", opts.LogLevel, ValidLogLevels))
			}
			level := opts.LogLevel
			if opts.Verbose && level == "info" {
				level = "debug"
			}
			opts.logger = newLogger(level, opts.LogFormat, cmd.ErrOrStderr())
			slog.SetDefault(opts.logger)
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (text|json)")

	cmd.AddCommand(NewSynthCommand(opts))
	cmd.AddCommand(NewLinkerArgsCommand(opts))
	cmd.AddCommand(NewEmbedCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewDumpCommand(opts))
	cmd.AddCommand(NewCargoConfigCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewVersionCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code.
// Errors the commands have not already reported are written to stderr.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	return execute(ctx, NewRootCommand(), args, stdout, stderr)
}

func execute(ctx context.Context, cmd *cobra.Command, args []string, stdout, stderr io.Writer) int {
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// cobra usage errors: unknown command or flag, wrong arg count
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return ExitCommandError
	}
	if !exitErr.Reported {
		fmt.Fprintf(stderr, "Error: %v\n", exitErr)
	}
	return exitErr.Code
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
