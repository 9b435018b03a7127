package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/elfnote"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// VerifyOptions holds flags for the verify command.
type VerifyOptions struct {
	*RootOptions
}

// VerifyResult is the JSON payload of a successful verify.
type VerifyResult struct {
	Image         string `json:"image"`
	FormatVersion uint16 `json:"format_version"`
	Length        uint32 `json:"length"`
	Checksum      string `json:"checksum"`
	Name          string `json:"name"`
	Version       string `json:"version"`
	Arch          string `json:"arch"`
	RecordDigest  string `json:"record_digest"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &VerifyOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "verify <elf>",
		Short: "Verify the package metadata embedded in an image",
		Long: `Extract the package metadata note from a linked image and check it:
exactly one .note.package section, a well-formed note, a supported format
version, matching length, checksum and section digests, and task fields in
the JSON document that agree with the record.

Exits with status 1 when the image fails verification.`,
		Args:          cobra.ExactArgs(1),
		Example:       `  shieldmeta verify build/task.elf`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cmd, opts, args[0])
		},
	}

	return cmd
}

func runVerify(cmd *cobra.Command, opts *VerifyOptions, path string) error {
	formatter := opts.formatter(cmd)

	ex, err := elfnote.Verify(path)
	if err != nil {
		return formatter.Fail("verification", err)
	}

	rec := ex.Record
	result := VerifyResult{
		Image:         path,
		FormatVersion: rec.FormatVersion,
		Length:        rec.Length,
		Checksum:      fmt.Sprintf("%08x", rec.Checksum),
		Name:          rec.Toolchain.Name,
		Version:       rec.Toolchain.Version,
		Arch:          rec.Hardware.Arch,
		RecordDigest:  meta.RecordDigest(ex.Raw).String(),
	}

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	formatter.Check("%s verified", path)
	formatter.Field("task", fmt.Sprintf("%s %s (%s)", result.Name, result.Version, result.Arch))
	formatter.Field("format version", result.FormatVersion)
	formatter.Field("length", result.Length)
	formatter.Field("checksum", result.Checksum)
	formatter.VerboseLog("record digest: %s", result.RecordDigest)
	return nil
}
