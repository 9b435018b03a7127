package devicetree

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// SchemaVersion is the hardware document schema this package reads.
const SchemaVersion = 1

// document is the on-disk form of a hardware description.
type document struct {
	Schema      int              `yaml:"schema"`
	Arch        string           `yaml:"arch"`
	Include     []string         `yaml:"include"`
	Memory      []memoryNode     `yaml:"memory"`
	Peripherals []peripheralNode `yaml:"peripherals"`
}

type memoryNode struct {
	Name string   `yaml:"name"`
	Reg  []uint64 `yaml:"reg"`
	Kind string   `yaml:"kind"`

	line int
}

func (m *memoryNode) UnmarshalYAML(n *yaml.Node) error {
	if err := knownKeys(n, "memory", "name", "reg", "kind"); err != nil {
		return err
	}
	type plain memoryNode
	if err := n.Decode((*plain)(m)); err != nil {
		return err
	}
	m.line = n.Line
	return nil
}

type peripheralNode struct {
	ID         string   `yaml:"id"`
	Compatible string   `yaml:"compatible"`
	Reg        []uint64 `yaml:"reg"`
	Interrupts []uint32 `yaml:"interrupts"`
	Status     string   `yaml:"status"`

	line int
}

func (p *peripheralNode) UnmarshalYAML(n *yaml.Node) error {
	if err := knownKeys(n, "peripheral", "id", "compatible", "reg", "interrupts", "status"); err != nil {
		return err
	}
	type plain peripheralNode
	if err := n.Decode((*plain)(p)); err != nil {
		return err
	}
	p.line = n.Line
	return nil
}

// knownKeys rejects mapping keys outside fields. Node.Decode does not
// inherit the decoder's KnownFields setting.
func knownKeys(n *yaml.Node, what string, fields ...string) error {
	if n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		k := n.Content[i]
		if !slices.Contains(fields, k.Value) {
			return fmt.Errorf("line %d: unknown %s field %q", k.Line, what, k.Value)
		}
	}
	return nil
}

// enabled reports whether the node's status keeps it in the descriptor.
func (p peripheralNode) enabled() (bool, error) {
	switch p.Status {
	case "", "okay", "ok":
		return true, nil
	case "disabled":
		return false, nil
	default:
		return false, fmt.Errorf("unknown status %q", p.Status)
	}
}

// reg splits a [base, size] pair.
func reg(r []uint64) (base, size uint64, err error) {
	if len(r) != 2 {
		return 0, 0, fmt.Errorf("reg must be [base, size], got %d values", len(r))
	}
	base, size = r[0], r[1]
	if err := checkRange(base, size); err != nil {
		return 0, 0, fmt.Errorf("reg %w", err)
	}
	return base, size, nil
}

// checkRange rejects empty ranges and ranges past the end of the address
// space.
func checkRange(base, size uint64) error {
	if size == 0 {
		return fmt.Errorf("size is zero")
	}
	if base+size < base {
		return fmt.Errorf("[%#x, %#x] wraps the address space", base, size)
	}
	return nil
}
