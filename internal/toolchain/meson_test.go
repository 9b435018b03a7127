package toolchain

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func mesonBuildDir(t *testing.T, overrides map[string]string) string {
	t.Helper()
	files := map[string]string{
		"build/meson-info/intro-projectinfo.json":  testutil.SampleMesonProjectInfo,
		"build/meson-info/intro-dependencies.json": testutil.SampleMesonDependencies,
		"build/meson-info/intro-machines.json":     testutil.SampleMesonMachines,
	}
	for k, v := range overrides {
		if v == "" {
			delete(files, k)
			continue
		}
		files[k] = v
	}
	root := testutil.WriteFiles(t, t.TempDir(), files)
	return filepath.Join(root, "build")
}

func introspectMeson(t *testing.T, opts Options) (*meta.ToolchainInfo, error) {
	t.Helper()
	p, err := New(KindMeson, opts)
	require.NoError(t, err)
	return p.Introspect(context.Background())
}

func TestMesonIntrospect(t *testing.T) {
	dir := mesonBuildDir(t, nil)

	tc, err := introspectMeson(t, Options{BuildDir: dir, Runner: testutil.NewFakeRunner().Run})
	require.NoError(t, err)
	assert.Equal(t, &meta.ToolchainInfo{
		Name:         "blinky",
		Version:      "1.2.0",
		Target:       "thumbv7em-none-eabihf",
		Arch:         "thumbv7em",
		BuildSystem:  meta.BuildSystemMeson,
		Dependencies: []meta.Dependency{{Name: "shield", Constraint: "0.3.0"}},
	}, tc)
}

func TestMesonVersionFromSourceTree(t *testing.T) {
	dir := mesonBuildDir(t, map[string]string{
		"build/meson-info/intro-projectinfo.json": `{"version": "undefined", "descriptive_name": "blinky"}`,
		"build/meson-info/meson-info.json":        `{"directories": {"source": "/src/blinky", "build": "/src/blinky/build"}}`,
	})
	r := testutil.NewFakeRunner().Output("git", "v0.4.1\n")

	tc, err := introspectMeson(t, Options{BuildDir: dir, Runner: r.Run})
	require.NoError(t, err)
	assert.Equal(t, "0.4.1", tc.Version)
	assert.Equal(t, "/src/blinky", r.CallsTo("git")[0].Dir)
}

func TestMesonTargetOverride(t *testing.T) {
	dir := mesonBuildDir(t, nil)

	tc, err := introspectMeson(t, Options{BuildDir: dir, Target: "thumbv7em-none-eabi"})
	require.NoError(t, err)
	assert.Equal(t, "thumbv7em-none-eabi", tc.Target)

	_, err = introspectMeson(t, Options{BuildDir: dir, Target: "thumbv8m.main-none-eabi"})
	require.Error(t, err)
	de, ok := diag.As(err)
	require.True(t, ok)
	assert.Equal(t, diag.KindIntrospection, de.Kind)
	assert.Equal(t, "thumbv7em", de.Expected)
	assert.Equal(t, "thumbv8m.main", de.Found)
}

func TestMesonOptionalFiles(t *testing.T) {
	dir := mesonBuildDir(t, map[string]string{
		"build/meson-info/intro-dependencies.json": "",
		"build/meson-info/intro-machines.json":     "",
	})

	tc, err := introspectMeson(t, Options{BuildDir: dir, Target: "riscv32imac-unknown-none-elf"})
	require.NoError(t, err)
	assert.Equal(t, "riscv32imac", tc.Arch)
	assert.Nil(t, tc.Dependencies)
}

func TestMesonErrors(t *testing.T) {
	tests := []struct {
		name string
		opts func(t *testing.T) Options
		msg  string
	}{
		{"no build dir", func(t *testing.T) Options { return Options{} }, "no meson build directory"},
		{"not configured", func(t *testing.T) Options { return Options{BuildDir: t.TempDir()} }, "not a configured meson build directory"},
		{"missing project info", func(t *testing.T) Options {
			return Options{BuildDir: mesonBuildDir(t, map[string]string{"build/meson-info/intro-projectinfo.json": ""})}
		}, "reading meson introspection data"},
		{"bad json", func(t *testing.T) Options {
			return Options{BuildDir: mesonBuildDir(t, map[string]string{"build/meson-info/intro-projectinfo.json": "{"})}
		}, "decoding meson introspection data"},
		{"empty name", func(t *testing.T) Options {
			return Options{BuildDir: mesonBuildDir(t, map[string]string{"build/meson-info/intro-projectinfo.json": `{"version": "1.0.0"}`})}
		}, "meson project has no name"},
		{"unknown cpu", func(t *testing.T) Options {
			return Options{BuildDir: mesonBuildDir(t, map[string]string{"build/meson-info/intro-machines.json": `{"host": {"cpu": "z80", "cpu_family": "z80"}}`})}
		}, "cannot map meson host cpu"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := introspectMeson(t, tt.opts(t))
			require.Error(t, err)
			assert.True(t, diag.IsKind(err, diag.KindIntrospection))
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}
