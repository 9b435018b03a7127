package toolchain

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/toml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func TestWriteCargoConfig(t *testing.T) {
	var buf bytes.Buffer
	err := WriteCargoConfig(&buf, CargoConfig{
		Target:    "thumbv7em-none-eabihf",
		TargetDir: "/build/blinky",
		Rustflags: []string{"-C", "link-arg=-Tlink.x"},
		OutDir:    "/build/blinky",
	})
	require.NoError(t, err)

	var got cargoConfigFile
	_, err = toml.Decode(buf.String(), &got)
	require.NoError(t, err)
	assert.Equal(t, "thumbv7em-none-eabihf", got.Build.Target)
	assert.Equal(t, "/build/blinky", got.Build.TargetDir)
	assert.Equal(t, []string{"-C", "link-arg=-Tlink.x"}, got.Build.Rustflags)
	assert.Equal(t, map[string]string{"OUT_DIR": "/build/blinky"}, got.Env)
	assert.Contains(t, buf.String(), "[build]\n")
	assert.Contains(t, buf.String(), "[env]\n")
}

func TestWriteCargoConfigWithoutOutDir(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCargoConfig(&buf, CargoConfig{Target: "thumbv6m-none-eabi"}))
	assert.NotContains(t, buf.String(), "[env]")
}

func TestGenerateCargoConfig(t *testing.T) {
	out := t.TempDir()
	path, err := GenerateCargoConfig(out, "thumbv7em-none-eabihf", []string{"-Cforce-frame-pointers"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, ".cargo", "config.toml"), path)

	var got cargoConfigFile
	_, err = toml.DecodeFile(path, &got)
	require.NoError(t, err)
	assert.Equal(t, out, got.Build.TargetDir)
	assert.Equal(t, out, got.Env["OUT_DIR"])
}

func TestGeneratedConfigFeedsTargetResolution(t *testing.T) {
	root := cargoProject(t, map[string]string{})
	_, err := GenerateCargoConfig(root, "thumbv8m.main-none-eabihf", nil)
	require.NoError(t, err)

	tc, err := introspectCargo(t, Options{
		Manifest: filepath.Join(root, "Cargo.toml"),
		Runner:   testutil.NewFakeRunner().Output("cargo", testutil.SampleCargoMetadata).Run,
		Getenv:   env(nil),
	})
	require.NoError(t, err)
	assert.Equal(t, "thumbv8m.main", tc.Arch)
}

func TestReadRustInputs(t *testing.T) {
	dir := testutil.WriteFiles(t, t.TempDir(), map[string]string{
		"target":   "thumbv7em-none-eabihf\nignored\n",
		"rustargs": "-C\nopt-level=s\n\n",
		"empty":    "",
	})

	target, err := ReadRustTarget(filepath.Join(dir, "target"))
	require.NoError(t, err)
	assert.Equal(t, "thumbv7em-none-eabihf", target)

	_, err = ReadRustTarget(filepath.Join(dir, "empty"))
	assert.ErrorContains(t, err, "is empty")

	flags, err := ReadRustflags(filepath.Join(dir, "rustargs"), "--cfg shield  -g")
	require.NoError(t, err)
	assert.Equal(t, []string{"-C", "opt-level=s", "--cfg", "shield", "-g"}, flags)

	flags, err = ReadRustflags("", "")
	require.NoError(t, err)
	assert.Empty(t, flags)

	_, err = ReadRustflags(filepath.Join(dir, "missing"), "")
	assert.Error(t, err)
	_, statErr := os.Stat(filepath.Join(dir, "missing"))
	assert.True(t, os.IsNotExist(statErr))
}
