package toolchain

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// CargoConfig is the per-application cargo configuration generated for a
// Rust task.
type CargoConfig struct {
	Target    string
	TargetDir string
	Rustflags []string
	OutDir    string
}

type cargoConfigFile struct {
	Build cargoBuild        `toml:"build"`
	Env   map[string]string `toml:"env,omitempty"`
}

type cargoBuild struct {
	Target    string   `toml:"target,omitempty"`
	TargetDir string   `toml:"target-dir,omitempty"`
	Rustflags []string `toml:"rustflags,omitempty"`
}

// WriteCargoConfig encodes cfg as a .cargo/config.toml document.
func WriteCargoConfig(w io.Writer, cfg CargoConfig) error {
	file := cargoConfigFile{
		Build: cargoBuild{
			Target:    cfg.Target,
			TargetDir: cfg.TargetDir,
			Rustflags: cfg.Rustflags,
		},
	}
	if cfg.OutDir != "" {
		file.Env = map[string]string{"OUT_DIR": cfg.OutDir}
	}
	enc := toml.NewEncoder(w)
	enc.Indent = ""
	return enc.Encode(file)
}

// GenerateCargoConfig writes <outDir>/.cargo/config.toml with target-dir
// and OUT_DIR set to outDir, and returns the file path.
func GenerateCargoConfig(outDir, target string, rustflags []string) (string, error) {
	abs, err := filepath.Abs(outDir)
	if err != nil {
		return "", fmt.Errorf("resolving output directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(abs, ".cargo"), 0o755); err != nil {
		return "", fmt.Errorf("creating .cargo directory: %w", err)
	}

	path := filepath.Join(abs, ".cargo", "config.toml")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	cfg := CargoConfig{Target: target, TargetDir: abs, Rustflags: rustflags, OutDir: abs}
	if err := WriteCargoConfig(f, cfg); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}

// ReadRustTarget returns the first line of a target file.
func ReadRustTarget(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading target file: %w", err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("target file %s is empty", path)
	}
	return line, nil
}

// ReadRustflags returns the non-empty lines of a rustargs file followed by
// the space separated extra arguments.
func ReadRustflags(path, extra string) ([]string, error) {
	var flags []string
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("reading rustargs file: %w", err)
		}
		defer f.Close()
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			if l := strings.TrimSpace(sc.Text()); l != "" {
				flags = append(flags, l)
			}
		}
		if err := sc.Err(); err != nil {
			return nil, fmt.Errorf("reading rustargs file: %w", err)
		}
	}
	return append(flags, strings.Fields(extra)...), nil
}
