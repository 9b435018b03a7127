package meta

import (
	"encoding/hex"
	"sort"
)

// TaskConfig is a resolved task configuration.
// Keys are unique. It is built once by the configuration loader and not
// modified afterwards.
type TaskConfig struct {
	entries map[string]Value
}

// NewTaskConfig returns an empty configuration.
func NewTaskConfig() *TaskConfig {
	return &TaskConfig{entries: make(map[string]Value)}
}

// Set stores a value. It reports false if the key was already present,
// in which case the existing value is kept.
func (c *TaskConfig) Set(key string, v Value) bool {
	if _, ok := c.entries[key]; ok {
		return false
	}
	c.entries[key] = v
	return true
}

// Get returns the value for key.
func (c *TaskConfig) Get(key string) (Value, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Len returns the number of keys.
func (c *TaskConfig) Len() int {
	return len(c.entries)
}

// Keys returns all keys in byte order.
func (c *TaskConfig) Keys() []string {
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Entries returns all entries sorted by key.
func (c *TaskConfig) Entries() []Entry {
	keys := c.Keys()
	if len(keys) == 0 {
		return nil
	}
	out := make([]Entry, len(keys))
	for i, k := range keys {
		out[i] = Entry{Key: k, Value: c.entries[k]}
	}
	return out
}

// Region is a memory region of the target.
type Region struct {
	Name string `json:"name"`
	Kind string `json:"kind,omitempty"`
	Base uint64 `json:"base"`
	Size uint64 `json:"size"`
}

// End returns the first address past the region.
func (r Region) End() uint64 {
	return r.Base + r.Size
}

// Peripheral is a memory-mapped device with its interrupt lines.
type Peripheral struct {
	ID         string   `json:"id"`
	Compatible string   `json:"compatible,omitempty"`
	Base       uint64   `json:"base"`
	Size       uint64   `json:"size"`
	Interrupts []uint32 `json:"interrupts,omitempty"`
}

// End returns the first address past the peripheral's register window.
func (p Peripheral) End() uint64 {
	return p.Base + p.Size
}

// Overlaps reports whether the two half-open address ranges intersect.
func (p Peripheral) Overlaps(o Peripheral) bool {
	return p.Base < o.End() && o.Base < p.End()
}

// HardwareDescriptor is the hardware capability set of a target.
// Peripherals keep declaration order.
type HardwareDescriptor struct {
	Arch        string       `json:"arch"`
	Regions     []Region     `json:"regions,omitempty"`
	Peripherals []Peripheral `json:"peripherals,omitempty"`
}

// Region looks up a memory region by name.
func (h *HardwareDescriptor) Region(name string) (Region, bool) {
	for _, r := range h.Regions {
		if r.Name == name {
			return r, true
		}
	}
	return Region{}, false
}

// Peripheral looks up a peripheral by id.
func (h *HardwareDescriptor) Peripheral(id string) (Peripheral, bool) {
	for _, p := range h.Peripherals {
		if p.ID == id {
			return p, true
		}
	}
	return Peripheral{}, false
}

// BuildSystem names the build system a toolchain provider introspects.
type BuildSystem string

const (
	BuildSystemMeson BuildSystem = "meson"
	BuildSystemCargo BuildSystem = "cargo"
)

// VersionUnknown marks a project version that is neither declared nor
// derivable from version control.
const VersionUnknown = "unknown"

// Dependency is a declared project dependency.
type Dependency struct {
	Name       string `json:"name"`
	Constraint string `json:"constraint"`
}

// ToolchainInfo describes the project as seen by its build system.
type ToolchainInfo struct {
	Name         string       `json:"name"`
	Version      string       `json:"version"`
	Target       string       `json:"target"`
	Arch         string       `json:"arch"`
	BuildSystem  BuildSystem  `json:"build_system"`
	Dependencies []Dependency `json:"dependencies,omitempty"`
}

// Digest is a domain-separated SHA-256 digest.
type Digest [32]byte

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// MarshalText renders the digest as lowercase hex.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Header is the fixed-layout record header.
type Header struct {
	FormatVersion uint16 `json:"format_version"`
	Length        uint32 `json:"length"`
	Checksum      uint32 `json:"checksum"`
}

// TaskFields are the configuration values the runtime reads directly.
type TaskFields struct {
	Magic        uint64 `json:"magic"`
	Priority     uint8  `json:"priority"`
	Quantum      uint8  `json:"quantum"`
	Flags        uint32 `json:"flags"`
	StackSize    uint32 `json:"stack_size"`
	HeapSize     uint32 `json:"heap_size"`
	MemoryDomain string `json:"memory_domain"`
	SchedClass   string `json:"sched_class"`
}

// ConfigSection is the configuration sub-section of a record.
type ConfigSection struct {
	Digest  Digest     `json:"digest"`
	Task    TaskFields `json:"task"`
	Entries []Entry    `json:"entries,omitempty"`
}

// HardwareSection is the hardware sub-section of a record, holding only
// the hardware bound to the task.
type HardwareSection struct {
	Digest      Digest       `json:"digest"`
	Arch        string       `json:"arch"`
	Regions     []Region     `json:"regions,omitempty"`
	Peripherals []Peripheral `json:"peripherals,omitempty"`
}

// Record is the package metadata record embedded into a task binary.
type Record struct {
	Header    `json:"header"`
	Config    ConfigSection   `json:"config"`
	Hardware  HardwareSection `json:"hardware"`
	Toolchain ToolchainInfo   `json:"toolchain"`
}
