package cli

import (
	"bytes"
	"debug/elf"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/elfnote"
	"github.com/outpost-os/shieldmeta/internal/kconfig"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// DumpOptions holds flags for the dump command.
type DumpOptions struct {
	*RootOptions
}

// DumpResult is the JSON payload of dump.
type DumpResult struct {
	Source   string                   `json:"source"`
	Digest   string                   `json:"digest"`
	Record   *meta.Record             `json:"record"`
	Metadata *elfnote.PackageMetadata `json:"metadata,omitempty"`
}

// NewDumpCommand creates the dump command.
func NewDumpCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DumpOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dump <record|elf>",
		Short: "Decode and print a metadata record",
		Long: `Decode a serialized record, or the record embedded in an ELF image, and
print its contents. The record is integrity checked while decoding.`,
		Args: cobra.ExactArgs(1),
		Example: `  shieldmeta dump task.meta
  shieldmeta dump --format json build/task.elf`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDump(cmd, opts, args[0])
		},
	}

	return cmd
}

func runDump(cmd *cobra.Command, opts *DumpOptions, path string) error {
	formatter := opts.formatter(cmd)

	data, err := os.ReadFile(path)
	if err != nil {
		return formatter.Fail("dump", err)
	}

	result := DumpResult{Source: path}
	raw := data
	if bytes.HasPrefix(data, []byte(elf.ELFMAG)) {
		ex, err := elfnote.Extract(path)
		if err != nil {
			return formatter.Fail("dump", err)
		}
		result.Record, result.Metadata, raw = ex.Record, ex.Metadata, ex.Raw
	} else {
		rec, err := meta.Unmarshal(data)
		if err != nil {
			return formatter.Fail("dump", fmt.Errorf("%s: %w", path, err))
		}
		result.Record = rec
	}
	result.Digest = meta.RecordDigest(raw).String()

	if opts.Format == "json" {
		return formatter.Success(result)
	}
	printRecord(cmd.OutOrStdout(), result)
	return nil
}

func printRecord(w io.Writer, d DumpResult) {
	rec := d.Record
	task := rec.Config.Task
	autoStart, mode := kconfig.DecodeJobFlags(task.Flags)

	cyan.Fprintf(w, "%s\n", d.Source)
	fmt.Fprintf(w, "  format version: %d\n", rec.FormatVersion)
	fmt.Fprintf(w, "  length:         %d\n", rec.Length)
	fmt.Fprintf(w, "  checksum:       %08x\n", rec.Checksum)
	fmt.Fprintf(w, "  digest:         %s\n", d.Digest)

	cyan.Fprintln(w, "config")
	fmt.Fprintf(w, "  digest:         %s\n", rec.Config.Digest)
	fmt.Fprintf(w, "  magic:          %#x\n", task.Magic)
	fmt.Fprintf(w, "  priority:       %d\n", task.Priority)
	fmt.Fprintf(w, "  quantum:        %d\n", task.Quantum)
	fmt.Fprintf(w, "  auto start:     %t\n", autoStart)
	fmt.Fprintf(w, "  exit mode:      %s\n", mode)
	fmt.Fprintf(w, "  stack size:     %#x\n", task.StackSize)
	fmt.Fprintf(w, "  heap size:      %#x\n", task.HeapSize)
	fmt.Fprintf(w, "  memory domain:  %s\n", task.MemoryDomain)
	fmt.Fprintf(w, "  sched class:    %s\n", task.SchedClass)
	for _, e := range rec.Config.Entries {
		fmt.Fprintf(w, "  %s=%s\n", e.Key, e.Value)
	}

	cyan.Fprintln(w, "hardware")
	fmt.Fprintf(w, "  digest:         %s\n", rec.Hardware.Digest)
	fmt.Fprintf(w, "  arch:           %s\n", rec.Hardware.Arch)
	for _, r := range rec.Hardware.Regions {
		fmt.Fprintf(w, "  region %-8s %#010x-%#010x %s\n", r.Name, r.Base, r.End(), r.Kind)
	}
	for _, p := range rec.Hardware.Peripherals {
		irqs := make([]string, len(p.Interrupts))
		for i, irq := range p.Interrupts {
			irqs[i] = fmt.Sprint(irq)
		}
		fmt.Fprintf(w, "  device %-8s %#010x-%#010x %s irq [%s]\n",
			p.ID, p.Base, p.End(), p.Compatible, strings.Join(irqs, ", "))
	}

	cyan.Fprintln(w, "toolchain")
	tc := rec.Toolchain
	fmt.Fprintf(w, "  name:           %s\n", tc.Name)
	fmt.Fprintf(w, "  version:        %s\n", tc.Version)
	fmt.Fprintf(w, "  target:         %s\n", tc.Target)
	fmt.Fprintf(w, "  arch:           %s\n", tc.Arch)
	fmt.Fprintf(w, "  build system:   %s\n", tc.BuildSystem)
	for _, dep := range tc.Dependencies {
		fmt.Fprintf(w, "  depends on %s %s\n", dep.Name, dep.Constraint)
	}
}
