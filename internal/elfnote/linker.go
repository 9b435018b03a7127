package elfnote

import (
	"context"
	"strings"

	"github.com/outpost-os/shieldmeta/internal/command"
	"github.com/outpost-os/shieldmeta/internal/diag"
)

// LinkerFlag is the linker option that emits the package metadata note.
const LinkerFlag = "--package-metadata"

// LinkerArgs returns the compiler driver arguments passing doc to the
// linker.
func LinkerArgs(doc []byte) []string {
	return []string{"-Xlinker", LinkerFlag + "=" + string(doc)}
}

// RawLinkerArgs returns the arguments for invoking the linker directly.
func RawLinkerArgs(doc []byte) []string {
	return []string{LinkerFlag + "=" + string(doc)}
}

// Probe checks that linker understands --package-metadata by reading its
// --help output.
func Probe(ctx context.Context, run command.Runner, linker string) error {
	out, err := run(ctx, "", linker, "--help")
	if err != nil {
		return diag.Wrap(diag.KindEmbed, err, "probing linker %s", linker)
	}
	if !strings.Contains(string(out), LinkerFlag) {
		version := "unknown version"
		if v, err := run(ctx, "", linker, "--version"); err == nil {
			if line, _, _ := strings.Cut(strings.TrimSpace(string(v)), "\n"); line != "" {
				version = line
			}
		}
		return diag.New(diag.KindEmbed, "linker %s does not support %s", linker, LinkerFlag).
			Mismatch(LinkerFlag+" support", version)
	}
	return nil
}
