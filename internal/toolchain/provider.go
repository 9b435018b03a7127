package toolchain

import (
	"context"
	"fmt"
	"os"

	"github.com/outpost-os/shieldmeta/internal/command"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// Provider introspects one build system.
type Provider interface {
	// Name returns the build system name (e.g., "meson", "cargo").
	Name() string

	// Introspect returns the project's toolchain facts.
	Introspect(ctx context.Context) (*meta.ToolchainInfo, error)
}

// Kind selects a Provider implementation.
type Kind string

const (
	KindMeson Kind = "meson"
	KindCargo Kind = "cargo"
)

// Kinds lists the supported build systems.
var Kinds = []Kind{KindMeson, KindCargo}

// Cache stores command output keyed by input content hash.
// A nil Cache disables caching.
type Cache interface {
	Get(ctx context.Context, kind, key string) ([]byte, bool, error)
	Put(ctx context.Context, kind, key string, data []byte) error
}

// Options configures a Provider.
type Options struct {
	// BuildDir is the meson build directory.
	BuildDir string

	// Manifest is the path to Cargo.toml.
	Manifest string

	// Target overrides the target triple.
	Target string

	// Runner executes external tools. Defaults to command.Exec.
	Runner command.Runner

	// Getenv reads the invocation environment. Defaults to os.Getenv.
	Getenv func(string) string

	// Cache holds cargo metadata output between invocations.
	Cache Cache
}

func (o Options) withDefaults() Options {
	if o.Runner == nil {
		o.Runner = command.Exec
	}
	if o.Getenv == nil {
		o.Getenv = os.Getenv
	}
	return o
}

// New returns the Provider for kind.
func New(kind Kind, opts Options) (Provider, error) {
	opts = opts.withDefaults()
	switch kind {
	case KindMeson:
		return &Meson{opts: opts}, nil
	case KindCargo:
		return &Cargo{opts: opts}, nil
	default:
		return nil, fmt.Errorf("unknown toolchain %q: must be one of %v", kind, Kinds)
	}
}
