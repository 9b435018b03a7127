package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/outpost-os/shieldmeta/internal/pipeline"
	"github.com/outpost-os/shieldmeta/internal/store"
	"github.com/outpost-os/shieldmeta/internal/toolchain"
)

// CacheEnv names the environment variable holding the introspection cache
// path used when --cache is not given.
const CacheEnv = "SHIELDMETA_CACHE"

// BuildFlags are the pipeline inputs shared by synth, linker-args and
// embed.
type BuildFlags struct {
	Config      string
	Hardware    string
	IncludeDirs []string
	Toolchain   string
	BuildDir    string
	Manifest    string
	Target      string
	Cache       string
}

func (b *BuildFlags) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&b.Config, "config", "", "resolved Kconfig file (.config)")
	f.StringVar(&b.Hardware, "dts", "", "hardware description")
	f.StringArrayVar(&b.IncludeDirs, "dts-include", nil, "hardware description include directory (repeatable)")
	f.StringVar(&b.Toolchain, "toolchain", string(toolchain.KindMeson), "build system (meson|cargo)")
	f.StringVar(&b.BuildDir, "builddir", ".", "meson build directory")
	f.StringVar(&b.Manifest, "manifest", "Cargo.toml", "cargo manifest path")
	f.StringVar(&b.Target, "target", "", "target triple override")
	f.StringVar(&b.Cache, "cache", "", "introspection cache database (default $"+CacheEnv+")")
	_ = cmd.MarkFlagRequired("config")
	_ = cmd.MarkFlagRequired("dts")
}

// runPipeline builds the record for the flags. The introspection cache is
// opened for the duration of the run when configured.
func runPipeline(ctx context.Context, opts *RootOptions, b *BuildFlags) (*pipeline.Result, error) {
	cachePath := b.Cache
	if cachePath == "" {
		cachePath = opts.Getenv(CacheEnv)
	}

	var cache toolchain.Cache
	if cachePath != "" {
		st, err := store.Open(cachePath)
		if err != nil {
			return nil, fmt.Errorf("opening cache %s: %w", cachePath, err)
		}
		defer st.Close()
		cache = st
	}

	provider, err := toolchain.New(toolchain.Kind(b.Toolchain), toolchain.Options{
		BuildDir: b.BuildDir,
		Manifest: b.Manifest,
		Target:   b.Target,
		Runner:   opts.Runner,
		Getenv:   opts.Getenv,
		Cache:    cache,
	})
	if err != nil {
		return nil, err
	}

	return pipeline.Run(ctx, pipeline.Inputs{
		ConfigPath:   b.Config,
		HardwarePath: b.Hardware,
		IncludeDirs:  b.IncludeDirs,
		Toolchain:    provider,
	}, pipeline.Options{
		IDs:    opts.IDs,
		Logger: opts.logger,
	})
}

// formatter returns the OutputFormatter for cmd.
func (opts *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// output is one artifact written by a command. A path of "-" is the
// command output.
type output struct {
	path string
	data []byte
}

// writeOutputs stages every file output in a temporary file next to its
// destination and renames them into place once all were written. Outputs
// to "-" are written last.
func writeOutputs(cmd *cobra.Command, outs ...output) error {
	type staged struct{ tmp, path string }
	var files []staged
	defer func() {
		for _, f := range files {
			os.Remove(f.tmp)
		}
	}()

	for _, o := range outs {
		if o.path == "-" {
			continue
		}
		if info, err := os.Stat(o.path); err == nil && info.IsDir() {
			return fmt.Errorf("writing %s: is a directory", o.path)
		}
		f, err := os.CreateTemp(filepath.Dir(o.path), "."+filepath.Base(o.path)+"-*")
		if err != nil {
			return fmt.Errorf("writing %s: %w", o.path, err)
		}
		files = append(files, staged{tmp: f.Name(), path: o.path})
		_, err = f.Write(o.data)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err == nil {
			err = os.Chmod(f.Name(), 0o644)
		}
		if err != nil {
			return fmt.Errorf("writing %s: %w", o.path, err)
		}
	}

	for len(files) > 0 {
		if err := os.Rename(files[0].tmp, files[0].path); err != nil {
			return fmt.Errorf("writing %s: %w", files[0].path, err)
		}
		files = files[1:]
	}

	for _, o := range outs {
		if o.path != "-" {
			continue
		}
		if _, err := cmd.OutOrStdout().Write(o.data); err != nil {
			return err
		}
	}
	return nil
}
