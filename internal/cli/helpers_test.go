package cli

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/fatih/color"

	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func TestMain(m *testing.M) {
	color.NoColor = true
	os.Exit(m.Run())
}

const testBuildID = "019a0000-0000-7000-8000-000000000001"

// result is the outcome of one CLI invocation.
type result struct {
	code   int
	stdout string
	stderr string
}

// testOptions returns root options wired to r, an empty environment and a
// fixed build id.
func testOptions(r *testutil.FakeRunner, env map[string]string) *RootOptions {
	return &RootOptions{
		Runner: r.Run,
		Getenv: func(k string) string { return env[k] },
		IDs:    testutil.FixedBuildID(testBuildID),
	}
}

// run executes the CLI with opts the way Execute does.
func run(t *testing.T, opts *RootOptions, args ...string) result {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), newRootCommand(opts), args, &stdout, &stderr)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

// cargoRunner answers cargo metadata for the sample project.
func cargoRunner() *testutil.FakeRunner {
	return testutil.NewFakeRunner().Output("cargo", testutil.SampleCargoMetadata)
}

// buildArgs returns the pipeline flags building p with the cargo provider.
func buildArgs(p testutil.SampleProject) []string {
	return []string{
		"--toolchain", "cargo",
		"--manifest", p.Manifest,
		"--target", "thumbv7em-none-eabihf",
		"--config", p.Config,
		"--dts", p.Hardware,
		"--dts-include", p.IncludeDir,
	}
}

func args(cmd string, lists ...[]string) []string {
	out := []string{cmd}
	for _, l := range lists {
		out = append(out, l...)
	}
	return out
}
