package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "shieldmeta", cmd.Use)
	assert.Contains(t, cmd.Long, "package metadata")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"synth", "linker-args", "embed", "verify", "dump", "cargo-config", "cache", "version"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	levelFlag := cmd.PersistentFlags().Lookup("log-level")
	require.NotNil(t, levelFlag)
	assert.Equal(t, "info", levelFlag.DefValue)

	logFormatFlag := cmd.PersistentFlags().Lookup("log-format")
	require.NotNil(t, logFormatFlag)
	assert.Equal(t, "text", logFormatFlag.DefValue)
}

func TestBuildCommandFlags(t *testing.T) {
	for _, name := range []string{"synth", "linker-args", "embed"} {
		t.Run(name, func(t *testing.T) {
			cmd, _, err := NewRootCommand().Find([]string{name})
			require.NoError(t, err)

			for _, flag := range []string{"config", "dts", "dts-include", "builddir", "manifest", "target", "cache"} {
				assert.NotNil(t, cmd.Flags().Lookup(flag), "--%s", flag)
			}
			toolchainFlag := cmd.Flags().Lookup("toolchain")
			require.NotNil(t, toolchainFlag)
			assert.Equal(t, "meson", toolchainFlag.DefValue)
		})
	}
}

func TestSynthCommandFlags(t *testing.T) {
	cmd, _, err := NewRootCommand().Find([]string{"synth"})
	require.NoError(t, err)

	outputFlag := cmd.Flags().Lookup("output")
	require.NotNil(t, outputFlag)
	assert.Equal(t, "o", outputFlag.Shorthand)
	require.NotNil(t, cmd.Flags().Lookup("metadata"))
}

func TestEmbedCommandFlags(t *testing.T) {
	cmd, _, err := NewRootCommand().Find([]string{"embed"})
	require.NoError(t, err)

	objcopyFlag := cmd.Flags().Lookup("objcopy")
	require.NotNil(t, objcopyFlag)
	assert.Equal(t, "arm-none-eabi-objcopy", objcopyFlag.DefValue)
}

func TestInvalidGlobalFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"format", []string{"--format", "xml", "version"}, `invalid format "xml"`},
		{"log level", []string{"--log-level", "trace", "version"}, `invalid log level "trace"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, testOptions(testutil.NewFakeRunner(), nil), tt.args...)
			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, tt.want)
		})
	}
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown command", []string{"frobnicate"}},
		{"missing argument", []string{"verify"}},
		{"missing required flag", []string{"synth", "-o", "out.bin"}},
		{"unknown flag", []string{"version", "--bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, testOptions(testutil.NewFakeRunner(), nil), tt.args...)
			assert.Equal(t, ExitCommandError, res.code)
			assert.Contains(t, res.stderr, "Error:")
		})
	}
}

func TestExecuteVersion(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Execute(context.Background(), []string{"version"}, &stdout, &stderr)

	assert.Equal(t, ExitSuccess, code)
	assert.Equal(t, "shieldmeta "+meta.ToolVersion+" (record format 1)\n", stdout.String())
	assert.Empty(t, stderr.String())
}

func TestVersionJSON(t *testing.T) {
	res := run(t, testOptions(testutil.NewFakeRunner(), nil), "--format", "json", "version")
	require.Equal(t, ExitSuccess, res.code)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Version       string `json:"version"`
			FormatVersion uint16 `json:"format_version"`
			MaxSupported  uint16 `json:"max_supported"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(res.stdout), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, meta.ToolVersion, resp.Data.Version)
	assert.Equal(t, meta.FormatVersion, resp.Data.FormatVersion)
	assert.Equal(t, meta.MaxSupportedVersion, resp.Data.MaxSupported)
}

func TestVerboseEnablesDebugLogs(t *testing.T) {
	p := testutil.WriteSampleProject(t)
	out := t.TempDir() + "/task.meta"

	res := run(t, testOptions(cargoRunner(), nil), args("synth", buildArgs(p), []string{"-o", out, "-v"})...)
	require.Equal(t, ExitSuccess, res.code, res.stdout)
	assert.Contains(t, res.stderr, "record synthesized")
	assert.Contains(t, res.stderr, "build_id="+testBuildID)
}

func TestJSONLogFormat(t *testing.T) {
	p := testutil.WriteSampleProject(t)
	out := t.TempDir() + "/task.meta"

	res := run(t, testOptions(cargoRunner(), nil),
		args("synth", buildArgs(p), []string{"-o", out, "--log-level", "debug", "--log-format", "json"})...)
	require.Equal(t, ExitSuccess, res.code, res.stdout)

	line, _, _ := bytes.Cut([]byte(res.stderr), []byte("\n"))
	var entry map[string]any
	require.NoError(t, json.Unmarshal(line, &entry))
	assert.Equal(t, "DEBUG", entry["level"])
}
