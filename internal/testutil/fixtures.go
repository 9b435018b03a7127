package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/outpost-os/shieldmeta/internal/meta"
)

// SampleKconfig is a resolved configuration for the sample task.
const SampleKconfig = `#
# Automatically generated file; DO NOT EDIT.
# Outpost task configuration
#
CONFIG_TASK_MAGIC_VALUE=0xdeadcafe
CONFIG_TASK_PRIORITY=2
CONFIG_TASK_QUANTUM=10
CONFIG_TASK_AUTO_START=y
# CONFIG_TASK_EXIT_NORESTART is not set
CONFIG_TASK_EXIT_PANIC=y
CONFIG_TASK_STACK_SIZE=0x800
CONFIG_TASK_HEAP_SIZE=0x1000
CONFIG_TASK_SCHED_CLASS="rt"
CONFIG_TASK_MEMORY_DOMAIN="ram0"
CONFIG_TASK_DEVICES="usart1"
CONFIG_VENDOR_FEATURE=y
`

// SampleSoC is the SoC level hardware description included by SampleBoard.
const SampleSoC = `schema: 1
arch: thumbv7em
memory:
  - {name: flash0, reg: [0x08000000, 0x100000], kind: flash}
  - {name: ram0, reg: [0x20000000, 0x10000], kind: ram}
peripherals:
  - id: usart1
    compatible: "st,stm32-usart"
    reg: [0x40011000, 0x400]
    interrupts: [37]
  - id: usart2
    compatible: "st,stm32-usart"
    reg: [0x40004400, 0x400]
    interrupts: [38]
    status: disabled
  - id: i2c1
    compatible: "st,stm32-i2c"
    reg: [0x40005400, 0x400]
    interrupts: [31, 32]
`

// SampleBoard is the top-level hardware description of the sample target.
const SampleBoard = `schema: 1
include: [soc.yaml]
peripherals:
  - id: usart2
    compatible: "st,stm32-usart"
    reg: [0x40004400, 0x400]
    interrupts: [38]
`

// SampleCargoManifest is the sample task's Cargo.toml.
const SampleCargoManifest = `[package]
name = "blinky"
version = "1.2.0"
edition = "2021"

[dependencies]
shield = { version = "0.3", features = ["std"] }
`

// SampleCargoMetadata is the output of cargo metadata for SampleCargoManifest
// checked out at /src/blinky.
const SampleCargoMetadata = `{
  "packages": [
    {
      "name": "blinky",
      "version": "1.2.0",
      "id": "path+file:///src/blinky#1.2.0",
      "manifest_path": "/src/blinky/Cargo.toml",
      "dependencies": [
        {"name": "shield", "req": "^0.3", "kind": null},
        {"name": "proptest", "req": "^1", "kind": "dev"}
      ]
    }
  ],
  "workspace_members": ["path+file:///src/blinky#1.2.0"],
  "target_directory": "/src/blinky/target",
  "workspace_root": "/src/blinky",
  "version": 1
}`

// Meson introspection files for the sample task.
const (
	SampleMesonProjectInfo  = `{"version": "1.2.0", "descriptive_name": "blinky", "subproject_dir": "subprojects", "subprojects": []}`
	SampleMesonDependencies = `[{"name": "shield", "version": "0.3.0", "compile_args": [], "link_args": []}]`
	SampleMesonMachines     = `{
  "host": {"system": "none", "cpu_family": "arm", "cpu": "cortex-m4", "endian": "little"},
  "build": {"system": "linux", "cpu_family": "x86_64", "cpu": "x86_64", "endian": "little"}
}`
)

// WriteFiles writes name -> content pairs under dir, creating parent
// directories, and returns dir.
func WriteFiles(t *testing.T, dir string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("creating %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("writing %s: %v", path, err)
		}
	}
	return dir
}

// SampleConfig returns the configuration SampleKconfig loads to.
func SampleConfig() *meta.TaskConfig {
	cfg := meta.NewTaskConfig()
	for _, e := range sampleEntries() {
		cfg.Set(e.Key, e.Value)
	}
	return cfg
}

func sampleEntries() []meta.Entry {
	return []meta.Entry{
		{Key: "CONFIG_TASK_AUTO_START", Value: meta.Bool(true)},
		{Key: "CONFIG_TASK_DEVICES", Value: meta.String("usart1")},
		{Key: "CONFIG_TASK_EXIT_NORESTART", Value: meta.Bool(false)},
		{Key: "CONFIG_TASK_EXIT_PANIC", Value: meta.Bool(true)},
		{Key: "CONFIG_TASK_HEAP_SIZE", Value: meta.Int(0x1000)},
		{Key: "CONFIG_TASK_MAGIC_VALUE", Value: meta.Int(0xdeadcafe)},
		{Key: "CONFIG_TASK_MEMORY_DOMAIN", Value: meta.String("ram0")},
		{Key: "CONFIG_TASK_PRIORITY", Value: meta.Int(2)},
		{Key: "CONFIG_TASK_QUANTUM", Value: meta.Int(10)},
		{Key: "CONFIG_TASK_SCHED_CLASS", Value: meta.String("rt")},
		{Key: "CONFIG_TASK_STACK_SIZE", Value: meta.Int(0x800)},
		{Key: "CONFIG_VENDOR_FEATURE", Value: meta.Bool(true)},
	}
}

// SampleHardware returns the full descriptor SampleBoard loads to.
func SampleHardware() *meta.HardwareDescriptor {
	return &meta.HardwareDescriptor{
		Arch: "thumbv7em",
		Regions: []meta.Region{
			{Name: "flash0", Kind: "flash", Base: 0x08000000, Size: 0x100000},
			{Name: "ram0", Kind: "ram", Base: 0x20000000, Size: 0x10000},
		},
		Peripherals: []meta.Peripheral{
			{ID: "usart1", Compatible: "st,stm32-usart", Base: 0x40011000, Size: 0x400, Interrupts: []uint32{37}},
			{ID: "usart2", Compatible: "st,stm32-usart", Base: 0x40004400, Size: 0x400, Interrupts: []uint32{38}},
			{ID: "i2c1", Compatible: "st,stm32-i2c", Base: 0x40005400, Size: 0x400, Interrupts: []uint32{31, 32}},
		},
	}
}

// SampleToolchain returns the cargo introspection result of the sample task.
func SampleToolchain() *meta.ToolchainInfo {
	return &meta.ToolchainInfo{
		Name:         "blinky",
		Version:      "1.2.0",
		Target:       "thumbv7em-none-eabihf",
		Arch:         "thumbv7em",
		BuildSystem:  meta.BuildSystemCargo,
		Dependencies: []meta.Dependency{{Name: "shield", Constraint: "^0.3"}},
	}
}

// SampleRecord returns the unsealed record synthesized from the sample
// inputs. Call meta.Seal to fill digests, length and checksum.
func SampleRecord() *meta.Record {
	return &meta.Record{
		Header: meta.Header{FormatVersion: meta.FormatVersion},
		Config: meta.ConfigSection{
			Task: meta.TaskFields{
				Magic:        0xdeadcafe,
				Priority:     2,
				Quantum:      10,
				Flags:        0x05,
				StackSize:    0x800,
				HeapSize:     0x1000,
				MemoryDomain: "ram0",
				SchedClass:   "rt",
			},
			Entries: sampleEntries(),
		},
		Hardware: meta.HardwareSection{
			Arch:    "thumbv7em",
			Regions: []meta.Region{{Name: "ram0", Kind: "ram", Base: 0x20000000, Size: 0x10000}},
			Peripherals: []meta.Peripheral{
				{ID: "usart1", Compatible: "st,stm32-usart", Base: 0x40011000, Size: 0x400, Interrupts: []uint32{37}},
			},
		},
		Toolchain: *SampleToolchain(),
	}
}

// SealedSampleRecord returns SampleRecord sealed, with its serialized bytes.
func SealedSampleRecord(t *testing.T) (*meta.Record, []byte) {
	t.Helper()
	rec := SampleRecord()
	raw, err := meta.Seal(rec)
	if err != nil {
		t.Fatalf("sealing sample record: %v", err)
	}
	return rec, raw
}

// SampleProject locates an on-disk copy of the sample task inputs.
type SampleProject struct {
	Root       string
	Config     string
	Hardware   string
	IncludeDir string
	Manifest   string
}

// WriteSampleProject writes the sample configuration, hardware description
// and Cargo manifest under a fresh temp dir.
func WriteSampleProject(t *testing.T) SampleProject {
	t.Helper()
	root := WriteFiles(t, t.TempDir(), map[string]string{
		"build/.config":    SampleKconfig,
		"board/board.yaml": SampleBoard,
		"dts/soc.yaml":     SampleSoC,
		"Cargo.toml":       SampleCargoManifest,
	})
	return SampleProject{
		Root:       root,
		Config:     filepath.Join(root, "build", ".config"),
		Hardware:   filepath.Join(root, "board", "board.yaml"),
		IncludeDir: filepath.Join(root, "dts"),
		Manifest:   filepath.Join(root, "Cargo.toml"),
	}
}
