package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// Meson reads the introspection files meson writes into
// <builddir>/meson-info at configure time.
type Meson struct {
	opts Options
}

func (m *Meson) Name() string { return string(KindMeson) }

type mesonInfo struct {
	Directories struct {
		Source string `json:"source"`
		Build  string `json:"build"`
	} `json:"directories"`
}

type mesonProjectInfo struct {
	Version         string `json:"version"`
	DescriptiveName string `json:"descriptive_name"`
}

type mesonDependency struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type mesonMachine struct {
	System    string `json:"system"`
	CPUFamily string `json:"cpu_family"`
	CPU       string `json:"cpu"`
}

type mesonMachines struct {
	Host mesonMachine `json:"host"`
}

// Introspect implements Provider.
func (m *Meson) Introspect(ctx context.Context) (*meta.ToolchainInfo, error) {
	if m.opts.BuildDir == "" {
		return nil, diag.New(diag.KindIntrospection, "no meson build directory given")
	}
	infoDir := filepath.Join(m.opts.BuildDir, "meson-info")
	if st, err := os.Stat(infoDir); err != nil || !st.IsDir() {
		return nil, diag.New(diag.KindIntrospection, "not a configured meson build directory").
			Mismatch(infoDir, "no such directory")
	}

	var project mesonProjectInfo
	if err := readIntro(infoDir, "intro-projectinfo.json", &project, true); err != nil {
		return nil, err
	}
	if project.DescriptiveName == "" {
		return nil, diag.New(diag.KindIntrospection, "meson project has no name").At(filepath.Join(infoDir, "intro-projectinfo.json"), 0)
	}

	var deps []mesonDependency
	if err := readIntro(infoDir, "intro-dependencies.json", &deps, false); err != nil {
		return nil, err
	}

	var machines mesonMachines
	if err := readIntro(infoDir, "intro-machines.json", &machines, false); err != nil {
		return nil, err
	}
	target, arch, err := m.target(machines.Host)
	if err != nil {
		return nil, err
	}

	sourceDir := m.opts.BuildDir
	var info mesonInfo
	if err := readIntro(infoDir, "meson-info.json", &info, false); err != nil {
		return nil, err
	}
	if info.Directories.Source != "" {
		sourceDir = info.Directories.Source
	}

	tc := &meta.ToolchainInfo{
		Name:        meta.NFC(project.DescriptiveName),
		Version:     ResolveVersion(ctx, m.opts.Runner, sourceDir, project.Version),
		Target:      target,
		Arch:        arch,
		BuildSystem: meta.BuildSystemMeson,
	}
	for _, d := range deps {
		constraint := d.Version
		if constraint == "" || constraint == "unknown" {
			constraint = "*"
		}
		tc.Dependencies = append(tc.Dependencies, meta.Dependency{Name: d.Name, Constraint: constraint})
	}
	sort.SliceStable(tc.Dependencies, func(i, j int) bool {
		return tc.Dependencies[i].Name < tc.Dependencies[j].Name
	})
	return tc, nil
}

// target picks the triple and arch from the override or the host machine.
// An override that contradicts a recognized host machine is rejected.
func (m *Meson) target(host mesonMachine) (triple, arch string, err error) {
	hostArch, known := ArchForCPU(host.CPU, host.CPUFamily)
	if m.opts.Target != "" {
		arch = ArchFromTarget(m.opts.Target)
		if known && hostArch != arch {
			return "", "", diag.New(diag.KindIntrospection, "target override disagrees with the meson host machine").
				Mismatch(hostArch, arch)
		}
		return m.opts.Target, arch, nil
	}
	if !known {
		return "", "", diag.New(diag.KindIntrospection, "cannot map meson host cpu to a target architecture").
			Mismatch("a supported cpu", host.CPU)
	}
	return DefaultTriple(hostArch), hostArch, nil
}

// readIntro decodes one meson introspection file. Optional files that do not
// exist leave v untouched.
func readIntro(dir, name string, v any, required bool) error {
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !required {
			return nil
		}
		return diag.Wrap(diag.KindIntrospection, err, "reading meson introspection data").At(path, 0)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return diag.Wrap(diag.KindIntrospection, err, "decoding meson introspection data").At(path, 0)
	}
	return nil
}
