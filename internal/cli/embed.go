package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/elfnote"
)

// EmbedOptions holds flags for the embed command.
type EmbedOptions struct {
	*RootOptions
	Build   BuildFlags
	Objcopy string
}

// NewEmbedCommand creates the embed command.
func NewEmbedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmbedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "embed <elf>",
		Short: "Embed the package metadata note into a linked image",
		Long: `Synthesize the record and write it into the image's .note.package section
with objcopy. An existing note is replaced. The note is read back and
compared once written.`,
		Args:          cobra.ExactArgs(1),
		Example:       `  shieldmeta embed --config build/.config --dts board.yaml --builddir build build/task.elf`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmbed(cmd, opts, args[0])
		},
	}

	opts.Build.register(cmd)
	cmd.Flags().StringVar(&opts.Objcopy, "objcopy", elfnote.DefaultObjcopy, "objcopy executable")

	return cmd
}

func runEmbed(cmd *cobra.Command, opts *EmbedOptions, path string) error {
	formatter := opts.formatter(cmd)

	res, err := runPipeline(cmd.Context(), opts.RootOptions, &opts.Build)
	if err != nil {
		return formatter.Fail("synthesis", err)
	}

	embedder := &elfnote.Embedder{Run: opts.Runner, Objcopy: opts.Objcopy}
	if err := embedder.Embed(cmd.Context(), path, res.Document); err != nil {
		return formatter.Fail("embedding", err)
	}

	if opts.Format == "json" {
		return formatter.SuccessWithBuild(res.BuildID, map[string]any{
			"image":    path,
			"section":  elfnote.SectionName,
			"length":   res.Record.Length,
			"checksum": fmt.Sprintf("%08x", res.Record.Checksum),
		})
	}
	formatter.Check("Embedded %s into %s", elfnote.SectionName, path)
	formatter.Field("length", res.Record.Length)
	formatter.Field("checksum", fmt.Sprintf("%08x", res.Record.Checksum))
	return nil
}
