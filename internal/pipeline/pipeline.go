package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/outpost-os/shieldmeta/internal/devicetree"
	"github.com/outpost-os/shieldmeta/internal/elfnote"
	"github.com/outpost-os/shieldmeta/internal/kconfig"
	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/synth"
	"github.com/outpost-os/shieldmeta/internal/toolchain"
)

// Inputs names the three inputs of a build.
type Inputs struct {
	// ConfigPath is the resolved Kconfig output (.config).
	ConfigPath string

	// HardwarePath is the top-level hardware description.
	HardwarePath string

	// IncludeDirs are searched for hardware description includes, in order.
	IncludeDirs []string

	// Toolchain introspects the project's build system.
	Toolchain toolchain.Provider
}

// Options configures a run.
type Options struct {
	// IDs generates the build id. Defaults to UUIDv7Generator.
	IDs IDGenerator

	// Logger receives stage logs, with the build id attached.
	// Defaults to slog.Default().
	Logger *slog.Logger
}

// Result is the output of a successful run.
type Result struct {
	BuildID   string
	Config    *meta.TaskConfig
	Hardware  *meta.HardwareDescriptor // bound to the task's devices
	Toolchain *meta.ToolchainInfo
	Record    *meta.Record
	Raw       []byte
	Metadata  *elfnote.PackageMetadata
	Document  []byte // Metadata as JSON
}

// Run executes the pipeline.
func Run(ctx context.Context, in Inputs, opts Options) (*Result, error) {
	if in.Toolchain == nil {
		return nil, fmt.Errorf("no toolchain provider")
	}
	if opts.IDs == nil {
		opts.IDs = UUIDv7Generator{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	res := &Result{BuildID: opts.IDs.Generate()}
	log := opts.Logger.With("build_id", res.BuildID)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	log.Debug("loading inputs",
		"config", in.ConfigPath,
		"hardware", in.HardwarePath,
		"toolchain", in.Toolchain.Name())

	var hw *meta.HardwareDescriptor
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		cfg, err := kconfig.Load(in.ConfigPath)
		if err != nil {
			return fmt.Errorf("loading configuration: %w", err)
		}
		res.Config = cfg
		log.Debug("configuration loaded", "keys", cfg.Len())
		return nil
	})
	g.Go(func() error {
		d, err := devicetree.Load(in.HardwarePath, in.IncludeDirs)
		if err != nil {
			return fmt.Errorf("loading hardware description: %w", err)
		}
		hw = d
		log.Debug("hardware description loaded", "arch", d.Arch,
			"regions", len(d.Regions), "peripherals", len(d.Peripherals))
		return nil
	})
	g.Go(func() error {
		tc, err := in.Toolchain.Introspect(gctx)
		if err != nil {
			return fmt.Errorf("introspecting %s: %w", in.Toolchain.Name(), err)
		}
		res.Toolchain = tc
		log.Debug("toolchain introspected", "name", tc.Name, "version", tc.Version, "target", tc.Target)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	devices, err := kconfig.Devices(res.Config)
	if err != nil {
		return nil, fmt.Errorf("reading declared devices: %w", err)
	}
	if res.Hardware, err = devicetree.Restrict(hw, devices); err != nil {
		return nil, fmt.Errorf("binding hardware: %w", err)
	}

	if res.Record, res.Raw, err = synth.Synthesize(res.Config, res.Hardware, res.Toolchain); err != nil {
		return nil, fmt.Errorf("synthesizing record: %w", err)
	}
	res.Metadata = elfnote.NewPackageMetadata(res.Record, res.Raw)
	if res.Document, err = res.Metadata.Marshal(); err != nil {
		return nil, err
	}

	log.Debug("record synthesized", "length", res.Record.Length,
		"checksum", fmt.Sprintf("%08x", res.Record.Checksum))
	return res, nil
}
