package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/pipeline"
)

// SynthOptions holds flags for the synth command.
type SynthOptions struct {
	*RootOptions
	Build    BuildFlags
	Output   string
	Metadata string
}

// SynthResult is the JSON payload of a successful synth.
type SynthResult struct {
	Output         string `json:"output"`
	Metadata       string `json:"metadata,omitempty"`
	Name           string `json:"name"`
	Version        string `json:"version"`
	Length         uint32 `json:"length"`
	Checksum       string `json:"checksum"`
	ConfigDigest   string `json:"config_digest"`
	HardwareDigest string `json:"hardware_digest"`
	RecordDigest   string `json:"record_digest"`
}

// NewSynthCommand creates the synth command.
func NewSynthCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SynthOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize the package metadata record",
		Long: `Load the task configuration, the hardware description and the build system
facts, cross-check them and write the serialized metadata record.

Use -o - to write the raw record to standard output.`,
		Args: cobra.NoArgs,
		Example: `  shieldmeta synth --config build/.config --dts board.yaml --builddir build -o task.meta
  shieldmeta synth --toolchain cargo --manifest Cargo.toml --config .config --dts board.yaml \
      -o task.meta --metadata task.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSynth(cmd, opts)
		},
	}

	opts.Build.register(cmd)
	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "record output path (- for stdout)")
	cmd.Flags().StringVar(&opts.Metadata, "metadata", "", "also write the package metadata JSON document")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func runSynth(cmd *cobra.Command, opts *SynthOptions) error {
	formatter := opts.formatter(cmd)

	res, err := runPipeline(cmd.Context(), opts.RootOptions, &opts.Build)
	if err != nil {
		return formatter.Fail("synthesis", err)
	}

	outs := []output{{path: opts.Output, data: res.Raw}}
	if opts.Metadata != "" {
		outs = append(outs, output{path: opts.Metadata, data: res.Document})
	}
	if err := writeOutputs(cmd, outs...); err != nil {
		return formatter.Fail("synthesis", err)
	}

	// Raw bytes on stdout leave no room for a report.
	if opts.Output == "-" || opts.Metadata == "-" {
		return nil
	}

	result := synthResult(res, opts.Output, opts.Metadata)
	if opts.Format == "json" {
		return formatter.SuccessWithBuild(res.BuildID, result)
	}

	formatter.Check("Record synthesized: %s", opts.Output)
	formatter.Field("task", fmt.Sprintf("%s %s", result.Name, result.Version))
	formatter.Field("length", result.Length)
	formatter.Field("checksum", result.Checksum)
	formatter.Field("config digest", result.ConfigDigest)
	formatter.Field("hardware digest", result.HardwareDigest)
	if opts.Metadata != "" {
		formatter.Field("metadata", opts.Metadata)
	}
	formatter.VerboseLog("build id: %s", res.BuildID)
	return nil
}

func synthResult(res *pipeline.Result, output, metadata string) SynthResult {
	rec := res.Record
	return SynthResult{
		Output:         output,
		Metadata:       metadata,
		Name:           rec.Toolchain.Name,
		Version:        rec.Toolchain.Version,
		Length:         rec.Length,
		Checksum:       fmt.Sprintf("%08x", rec.Checksum),
		ConfigDigest:   rec.Config.Digest.String(),
		HardwareDigest: rec.Hardware.Digest.String(),
		RecordDigest:   meta.RecordDigest(res.Raw).String(),
	}
}
