package toolchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// CacheKindCargoMetadata is the cache namespace of cargo metadata output.
const CacheKindCargoMetadata = "cargo-metadata/v1"

// Cargo reads the package manifest and queries cargo for the workspace graph.
type Cargo struct {
	opts Options
}

func (c *Cargo) Name() string { return string(KindCargo) }

type cargoManifest struct {
	Package      *cargoPackage   `toml:"package"`
	Workspace    *cargoWorkspace `toml:"workspace"`
	Dependencies map[string]any  `toml:"dependencies"`
}

type cargoPackage struct {
	Name    string `toml:"name"`
	Version any    `toml:"version"`
}

type cargoWorkspace struct {
	Members []string `toml:"members"`
	Package struct {
		Version string `toml:"version"`
	} `toml:"package"`
}

type cargoMetadata struct {
	Packages         []cargoPackageMetadata `json:"packages"`
	WorkspaceMembers []string               `json:"workspace_members"`
	WorkspaceRoot    string                 `json:"workspace_root"`
}

type cargoPackageMetadata struct {
	Name         string                    `json:"name"`
	Version      string                    `json:"version"`
	ID           string                    `json:"id"`
	ManifestPath string                    `json:"manifest_path"`
	Dependencies []cargoDependencyMetadata `json:"dependencies"`
}

type cargoDependencyMetadata struct {
	Name string  `json:"name"`
	Req  string  `json:"req"`
	Kind *string `json:"kind"` // null for normal dependencies
}

// Introspect implements Provider.
func (c *Cargo) Introspect(ctx context.Context) (*meta.ToolchainInfo, error) {
	path := c.opts.Manifest
	if path == "" {
		path = "Cargo.toml"
	}
	path, err := filepath.Abs(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindIntrospection, err, "resolving manifest path")
	}
	dir := filepath.Dir(path)

	data, man, err := readManifest(path)
	if err != nil {
		return nil, err
	}
	if man.Package == nil {
		return nil, diag.New(diag.KindIntrospection, "manifest has no [package] table").At(path, 0)
	}
	name := man.Package.Name
	if name == "" {
		return nil, diag.New(diag.KindIntrospection, "package name is empty").At(path, 0)
	}
	if env := c.opts.Getenv("CARGO_PKG_NAME"); env != "" && env != name {
		return nil, diag.New(diag.KindIntrospection, "package name differs from the build environment").
			At(path, 0).Mismatch(env, name)
	}

	version, err := manifestVersion(path, man)
	if err != nil {
		return nil, err
	}

	target, err := c.target(dir)
	if err != nil {
		return nil, err
	}

	md, err := c.metadata(ctx, path, data)
	if err != nil {
		return nil, err
	}
	pkg, err := member(md, path, name)
	if err != nil {
		return nil, err
	}

	tc := &meta.ToolchainInfo{
		Name:        meta.NFC(name),
		Target:      target,
		Arch:        ArchFromTarget(target),
		BuildSystem: meta.BuildSystemCargo,
	}
	if pkg.Version != "" {
		version = pkg.Version
	}
	tc.Version = ResolveVersion(ctx, c.opts.Runner, dir, version)

	seen := make(map[string]bool)
	for _, d := range pkg.Dependencies {
		if d.Kind != nil || seen[d.Name] {
			continue // dev and build dependencies are not linked into the task
		}
		seen[d.Name] = true
		tc.Dependencies = append(tc.Dependencies, meta.Dependency{Name: d.Name, Constraint: d.Req})
	}
	if tc.Dependencies == nil {
		tc.Dependencies = manifestDependencies(man.Dependencies)
	}
	sort.SliceStable(tc.Dependencies, func(i, j int) bool {
		return tc.Dependencies[i].Name < tc.Dependencies[j].Name
	})
	return tc, nil
}

func readManifest(path string) ([]byte, *cargoManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, diag.Wrap(diag.KindIntrospection, err, "cargo manifest not found").At(path, 0)
		}
		return nil, nil, diag.Wrap(diag.KindIntrospection, err, "reading cargo manifest").At(path, 0)
	}
	var man cargoManifest
	if _, err := toml.Decode(string(data), &man); err != nil {
		line := 0
		var perr toml.ParseError
		if errors.As(err, &perr) {
			line = perr.Position.Line
		}
		return nil, nil, diag.Wrap(diag.KindIntrospection, err, "parsing cargo manifest").At(path, line)
	}
	return data, &man, nil
}

// manifestVersion returns the declared package version, following
// version.workspace = true to the enclosing workspace.
func manifestVersion(path string, man *cargoManifest) (string, error) {
	switch v := man.Package.Version.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case map[string]any:
		if inherit, _ := v["workspace"].(bool); !inherit {
			return "", diag.New(diag.KindIntrospection, "unsupported package.version table").At(path, 0)
		}
		if man.Workspace != nil && man.Workspace.Package.Version != "" {
			return man.Workspace.Package.Version, nil
		}
		root, ws, err := findWorkspace(filepath.Dir(filepath.Dir(path)))
		if err != nil {
			return "", err
		}
		if ws == nil {
			return "", diag.New(diag.KindIntrospection, "version.workspace = true outside of a workspace").At(path, 0)
		}
		if ws.Workspace.Package.Version == "" {
			return "", diag.New(diag.KindIntrospection, "workspace does not define package.version").At(root, 0)
		}
		return ws.Workspace.Package.Version, nil
	default:
		return "", diag.New(diag.KindIntrospection, "package.version has type %T", v).At(path, 0)
	}
}

// findWorkspace returns the nearest Cargo.toml at or above dir that has a
// [workspace] table, or a nil manifest when there is none.
func findWorkspace(dir string) (string, *cargoManifest, error) {
	for d := dir; ; d = filepath.Dir(d) {
		path := filepath.Join(d, "Cargo.toml")
		if _, err := os.Stat(path); err == nil {
			_, man, err := readManifest(path)
			if err != nil {
				return "", nil, err
			}
			if man.Workspace != nil {
				return path, man, nil
			}
		}
		if parent := filepath.Dir(d); parent == d {
			return "", nil, nil
		}
	}
}

// target resolves the triple from the override, CARGO_BUILD_TARGET, then
// the nearest .cargo/config.toml.
func (c *Cargo) target(dir string) (string, error) {
	if c.opts.Target != "" {
		return c.opts.Target, nil
	}
	if t := c.opts.Getenv("CARGO_BUILD_TARGET"); t != "" {
		return t, nil
	}
	for d := dir; ; d = filepath.Dir(d) {
		path := filepath.Join(d, ".cargo", "config.toml")
		if _, err := os.Stat(path); err == nil {
			var cfg cargoConfigFile
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return "", diag.Wrap(diag.KindIntrospection, err, "parsing cargo configuration").At(path, 0)
			}
			if cfg.Build.Target != "" {
				return cfg.Build.Target, nil
			}
		}
		if parent := filepath.Dir(d); parent == d {
			break
		}
	}
	return "", diag.New(diag.KindIntrospection, "no target triple configured").
		Mismatch("--target, CARGO_BUILD_TARGET or [build] target", "none")
}

// metadata runs cargo metadata, going through the cache when one is set.
func (c *Cargo) metadata(ctx context.Context, path string, manifest []byte) (*cargoMetadata, error) {
	key, err := metadataKey(path, manifest)
	if err != nil {
		return nil, err
	}
	if c.opts.Cache != nil {
		out, ok, err := c.opts.Cache.Get(ctx, CacheKindCargoMetadata, key)
		if err != nil {
			slog.Warn("cargo metadata cache read failed", "error", err)
		} else if ok {
			slog.Debug("cargo metadata cache hit", "key", key)
			return decodeMetadata(out)
		}
	}

	out, err := c.opts.Runner(ctx, filepath.Dir(path), "cargo", "metadata",
		"--no-deps", "--format-version", "1", "--manifest-path", path)
	if err != nil {
		return nil, diag.Wrap(diag.KindIntrospection, err, "querying cargo metadata")
	}
	md, err := decodeMetadata(out)
	if err != nil {
		return nil, err
	}
	if c.opts.Cache != nil {
		if err := c.opts.Cache.Put(ctx, CacheKindCargoMetadata, key, out); err != nil {
			slog.Warn("cargo metadata cache write failed", "error", err)
		}
	}
	return md, nil
}

func decodeMetadata(out []byte) (*cargoMetadata, error) {
	var md cargoMetadata
	if err := json.Unmarshal(out, &md); err != nil {
		return nil, diag.Wrap(diag.KindIntrospection, err, "decoding cargo metadata")
	}
	return &md, nil
}

// metadataKey hashes the inputs cargo metadata depends on: the manifest,
// the workspace root manifest when the package is a member, and the lock
// file at the workspace root.
func metadataKey(path string, manifest []byte) (string, error) {
	h := sha256.New()
	h.Write([]byte(CacheKindCargoMetadata))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(manifest)
	h.Write([]byte{0})

	rootDir := filepath.Dir(path)
	root, _, err := findWorkspace(rootDir)
	if err != nil {
		return "", err
	}
	if root != "" && root != path {
		data, err := os.ReadFile(root)
		if err != nil {
			return "", diag.Wrap(diag.KindIntrospection, err, "reading workspace manifest").At(root, 0)
		}
		rootDir = filepath.Dir(root)
		h.Write([]byte(root))
		h.Write([]byte{0})
		h.Write(data)
		h.Write([]byte{0})
	}
	if lock, err := os.ReadFile(filepath.Join(rootDir, "Cargo.lock")); err == nil {
		h.Write(lock)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// member finds the manifest's package in the metadata and checks it is a
// workspace member. Package names are unique within a workspace.
func member(md *cargoMetadata, path, name string) (*cargoPackageMetadata, error) {
	members := make(map[string]bool, len(md.WorkspaceMembers))
	for _, id := range md.WorkspaceMembers {
		members[id] = true
	}
	var names []string
	for i := range md.Packages {
		p := &md.Packages[i]
		if members[p.ID] {
			names = append(names, p.Name)
		}
		if p.Name == name && members[p.ID] {
			return p, nil
		}
	}
	sort.Strings(names)
	return nil, diag.New(diag.KindIntrospection, "package is not a member of the cargo workspace").
		At(path, 0).Mismatch(name, strings.Join(names, ","))
}

// manifestDependencies reads [dependencies] entries: a version string or a
// table with version, path or git.
func manifestDependencies(deps map[string]any) []meta.Dependency {
	var out []meta.Dependency
	for name, spec := range deps {
		constraint := "*"
		switch s := spec.(type) {
		case string:
			constraint = s
		case map[string]any:
			switch {
			case s["version"] != nil:
				constraint = fmt.Sprint(s["version"])
			case s["path"] != nil:
				constraint = "path:" + fmt.Sprint(s["path"])
			case s["git"] != nil:
				constraint = "git:" + fmt.Sprint(s["git"])
			case s["workspace"] == true:
				constraint = "workspace"
			}
			if pkg, ok := s["package"].(string); ok {
				name = pkg
			}
		}
		out = append(out, meta.Dependency{Name: name, Constraint: constraint})
	}
	return out
}
