package devicetree

import (
	"bytes"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

var yamlLine = regexp.MustCompile(`line (\d+)`)

// Load reads the hardware description at path, resolving includes against
// the including file's directory and then includeDirs.
func Load(path string, includeDirs []string) (*meta.HardwareDescriptor, error) {
	l := &loader{includeDirs: includeDirs, active: make(map[string]bool)}
	t, err := l.load(path)
	if err != nil {
		return nil, err
	}
	hw, err := t.descriptor()
	if err != nil {
		return nil, err
	}
	if err := Validate(hw); err != nil {
		return nil, diag.Wrap(diag.KindHardwareParse, err, "invalid hardware description").At(path, 0)
	}
	return hw, nil
}

// LoadFor loads the description and restricts it to the given devices.
func LoadFor(path string, includeDirs, devices []string) (*meta.HardwareDescriptor, error) {
	hw, err := Load(path, includeDirs)
	if err != nil {
		return nil, err
	}
	return Restrict(hw, devices)
}

type loader struct {
	includeDirs []string
	active      map[string]bool
}

// tree accumulates merged nodes. Later definitions replace earlier ones in
// place, so order follows first appearance.
type tree struct {
	arch        string
	archFile    string
	memory      []located[memoryNode]
	peripherals []located[peripheralNode]
}

type located[T any] struct {
	file string
	node T
}

func (l *loader) load(path string) (*tree, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindHardwareParse, err, "resolving path").At(path, 0)
	}
	if l.active[abs] {
		return nil, diag.New(diag.KindHardwareParse, "include cycle through %s", path).At(path, 0)
	}
	l.active[abs] = true
	defer delete(l.active, abs)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, diag.Wrap(diag.KindHardwareParse, err, "hardware description not found").At(path, 0)
		}
		return nil, diag.Wrap(diag.KindHardwareParse, err, "reading hardware description").At(path, 0)
	}

	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		line := 0
		if m := yamlLine.FindStringSubmatch(err.Error()); m != nil {
			line, _ = strconv.Atoi(m[1])
		}
		return nil, diag.Wrap(diag.KindHardwareParse, err, "malformed hardware description").At(path, line)
	}
	switch {
	case doc.Schema == 0:
		return nil, diag.New(diag.KindHardwareParse, "missing schema version").At(path, 0)
	case doc.Schema != SchemaVersion:
		return nil, diag.New(diag.KindHardwareParse, "unsupported schema version %d", doc.Schema).
			At(path, 0).Mismatch(strconv.Itoa(SchemaVersion), strconv.Itoa(doc.Schema))
	}
	slog.Debug("loaded hardware description", "path", path, "includes", len(doc.Include))

	t := &tree{}
	for _, inc := range doc.Include {
		incPath, err := l.resolve(path, inc)
		if err != nil {
			return nil, err
		}
		sub, err := l.load(incPath)
		if err != nil {
			return nil, err
		}
		t.merge(sub)
	}

	own := &tree{arch: doc.Arch, archFile: path}
	for _, m := range doc.Memory {
		own.memory = append(own.memory, located[memoryNode]{file: path, node: m})
	}
	for _, p := range doc.Peripherals {
		own.peripherals = append(own.peripherals, located[peripheralNode]{file: path, node: p})
	}
	t.merge(own)
	return t, nil
}

// resolve finds an included file next to the includer, then in the include
// directories.
func (l *loader) resolve(includer, name string) (string, error) {
	if filepath.IsAbs(name) {
		if _, err := os.Stat(name); err == nil {
			return name, nil
		}
	} else {
		candidates := []string{filepath.Join(filepath.Dir(includer), name)}
		for _, dir := range l.includeDirs {
			candidates = append(candidates, filepath.Join(dir, name))
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				return c, nil
			}
		}
	}
	return "", diag.New(diag.KindHardwareParse, "include %q not found", name).At(includer, 0)
}

func (t *tree) merge(o *tree) {
	if o.arch != "" {
		t.arch, t.archFile = o.arch, o.archFile
	}
	for _, m := range o.memory {
		t.memory = upsert(t.memory, m, func(a, b memoryNode) bool { return a.Name == b.Name })
	}
	for _, p := range o.peripherals {
		t.peripherals = upsert(t.peripherals, p, func(a, b peripheralNode) bool { return a.ID == b.ID })
	}
}

func upsert[T any](list []located[T], v located[T], same func(a, b T) bool) []located[T] {
	for i := range list {
		if same(list[i].node, v.node) {
			list[i] = v
			return list
		}
	}
	return append(list, v)
}

// descriptor converts merged nodes, dropping disabled peripherals.
func (t *tree) descriptor() (*meta.HardwareDescriptor, error) {
	hw := &meta.HardwareDescriptor{Arch: t.arch}
	for _, m := range t.memory {
		if m.node.Name == "" {
			return nil, diag.New(diag.KindHardwareParse, "memory region without name").At(m.file, m.node.line)
		}
		base, size, err := reg(m.node.Reg)
		if err != nil {
			return nil, diag.Wrap(diag.KindHardwareParse, err, "memory region %s", m.node.Name).
				At(m.file, m.node.line).WithFields(m.node.Name)
		}
		hw.Regions = append(hw.Regions, meta.Region{Name: m.node.Name, Kind: m.node.Kind, Base: base, Size: size})
	}
	for _, p := range t.peripherals {
		if p.node.ID == "" {
			return nil, diag.New(diag.KindHardwareParse, "peripheral without id").At(p.file, p.node.line)
		}
		on, err := p.node.enabled()
		if err != nil {
			return nil, diag.Wrap(diag.KindHardwareParse, err, "peripheral %s", p.node.ID).
				At(p.file, p.node.line).WithFields(p.node.ID)
		}
		if !on {
			continue
		}
		base, size, err := reg(p.node.Reg)
		if err != nil {
			return nil, diag.Wrap(diag.KindHardwareParse, err, "peripheral %s", p.node.ID).
				At(p.file, p.node.line).WithFields(p.node.ID)
		}
		hw.Peripherals = append(hw.Peripherals, meta.Peripheral{
			ID:         p.node.ID,
			Compatible: p.node.Compatible,
			Base:       base,
			Size:       size,
			Interrupts: append([]uint32(nil), p.node.Interrupts...),
		})
	}
	return hw, nil
}
