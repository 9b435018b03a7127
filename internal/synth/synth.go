package synth

import (
	"log/slog"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/outpost-os/shieldmeta/internal/devicetree"
	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/kconfig"
	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/toolchain"
)

// Alignment is the granularity the kernel allocates task stack and heap with.
const Alignment = 32

// AlignTo rounds n up to a multiple of align, which must be a power of two.
func AlignTo(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}

// Synthesize validates the three inputs, builds the record and seals it.
// hw may be the full descriptor or one already restricted to the task's
// devices; only the task's memory domain and bound peripherals are recorded.
func Synthesize(cfg *meta.TaskConfig, hw *meta.HardwareDescriptor, tc *meta.ToolchainInfo) (*meta.Record, []byte, error) {
	if cfg == nil || hw == nil || tc == nil {
		return nil, nil, diag.New(diag.KindSerialization, "synthesize called with a nil input")
	}

	if err := kconfig.ValidateConfig(cfg); err != nil {
		return nil, nil, err
	}
	task, err := kconfig.TaskOf(cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := devicetree.Validate(hw); err != nil {
		return nil, nil, diag.Wrap(diag.KindHardwareParse, err, "invalid hardware descriptor")
	}
	if err := validateToolchain(tc); err != nil {
		return nil, nil, err
	}

	if tc.Arch != hw.Arch {
		return nil, nil, diag.New(diag.KindConsistency, "toolchain architecture does not match the hardware").
			WithFields("toolchain.arch", "hardware.arch").Mismatch(hw.Arch, tc.Arch)
	}

	region, err := memoryDomain(task, hw)
	if err != nil {
		return nil, nil, err
	}
	bound, err := devicetree.Restrict(hw, task.Devices)
	if err != nil {
		return nil, nil, err
	}

	rec := &meta.Record{
		Header: meta.Header{FormatVersion: meta.FormatVersion},
		Config: meta.ConfigSection{
			Task:    normalizeTask(task.Fields()),
			Entries: normalizeEntries(cfg.Entries()),
		},
		Hardware: meta.HardwareSection{
			Arch:        meta.NFC(hw.Arch),
			Regions:     []meta.Region{normalizeRegion(region)},
			Peripherals: normalizePeripherals(bound.Peripherals),
		},
		Toolchain: normalizeToolchain(tc),
	}

	raw, err := meta.Seal(rec)
	if err != nil {
		return nil, nil, err
	}
	back, err := meta.Unmarshal(raw)
	if err != nil {
		return nil, nil, diag.Wrap(diag.KindSerialization, err, "sealed record does not verify")
	}
	if !reflect.DeepEqual(back, rec) {
		return nil, nil, diag.New(diag.KindSerialization, "sealed record does not decode to the synthesized record")
	}

	slog.Debug("record synthesized",
		"name", rec.Toolchain.Name,
		"length", rec.Length,
		"checksum", strconv.FormatUint(uint64(rec.Checksum), 16),
		"peripherals", len(rec.Hardware.Peripherals))
	return rec, raw, nil
}

func validateToolchain(tc *meta.ToolchainInfo) error {
	if tc.Name == "" {
		return diag.New(diag.KindIntrospection, "project name is empty").WithFields("toolchain.name")
	}
	if tc.Version != meta.VersionUnknown && !toolchain.IsSemver(tc.Version) {
		return diag.New(diag.KindIntrospection, "project version is not a semantic version").
			WithFields("toolchain.version").Mismatch("MAJOR.MINOR.PATCH or "+meta.VersionUnknown, tc.Version)
	}
	if tc.Arch == "" {
		return diag.New(diag.KindIntrospection, "toolchain reports no architecture").WithFields("toolchain.arch")
	}
	return nil
}

// memoryDomain resolves the task's memory domain to a hardware region and
// checks the aligned stack and heap fit in it.
func memoryDomain(task *kconfig.Task, hw *meta.HardwareDescriptor) (meta.Region, error) {
	region, ok := hw.Region(task.MemoryDomain)
	if !ok {
		names := make([]string, len(hw.Regions))
		for i, r := range hw.Regions {
			names[i] = r.Name
		}
		return meta.Region{}, diag.New(diag.KindConsistency, "memory domain %q is not a hardware memory region", task.MemoryDomain).
			WithFields(kconfig.KeyMemoryDomain, "hardware.memory").Mismatch("one of ["+strings.Join(names, ", ")+"]", task.MemoryDomain)
	}

	need := AlignTo(uint64(task.StackSize), Alignment) + AlignTo(uint64(task.HeapSize), Alignment)
	if need > region.Size {
		return meta.Region{}, diag.New(diag.KindConsistency,
			"stack and heap need %#x bytes, memory domain %q has %#x", need, region.Name, region.Size).
			WithFields(kconfig.KeyStackSize, kconfig.KeyHeapSize, kconfig.KeyMemoryDomain)
	}
	return region, nil
}

func normalizeTask(t meta.TaskFields) meta.TaskFields {
	t.MemoryDomain = meta.NFC(t.MemoryDomain)
	t.SchedClass = meta.NFC(t.SchedClass)
	return t
}

// normalizeEntries returns the entries with NFC keys and string values,
// sorted by normalized key.
func normalizeEntries(entries []meta.Entry) []meta.Entry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]meta.Entry, len(entries))
	for i, e := range entries {
		out[i] = meta.Entry{Key: meta.NFC(e.Key), Value: normalizeValue(e.Value)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func normalizeValue(v meta.Value) meta.Value {
	switch v := v.(type) {
	case meta.String:
		return meta.String(meta.NFC(string(v)))
	case meta.Enum:
		return meta.Enum(meta.NFC(string(v)))
	default:
		return v
	}
}

func normalizeRegion(r meta.Region) meta.Region {
	r.Name = meta.NFC(r.Name)
	r.Kind = meta.NFC(r.Kind)
	return r
}

func normalizePeripherals(ps []meta.Peripheral) []meta.Peripheral {
	if len(ps) == 0 {
		return nil
	}
	out := make([]meta.Peripheral, len(ps))
	for i, p := range ps {
		p.ID = meta.NFC(p.ID)
		p.Compatible = meta.NFC(p.Compatible)
		if len(p.Interrupts) == 0 {
			p.Interrupts = nil
		} else {
			p.Interrupts = append([]uint32(nil), p.Interrupts...)
		}
		out[i] = p
	}
	return out
}

func normalizeToolchain(tc *meta.ToolchainInfo) meta.ToolchainInfo {
	out := meta.ToolchainInfo{
		Name:        meta.NFC(tc.Name),
		Version:     meta.NFC(tc.Version),
		Target:      meta.NFC(tc.Target),
		Arch:        meta.NFC(tc.Arch),
		BuildSystem: meta.BuildSystem(meta.NFC(string(tc.BuildSystem))),
	}
	for _, d := range tc.Dependencies {
		out.Dependencies = append(out.Dependencies, meta.Dependency{
			Name:       meta.NFC(d.Name),
			Constraint: meta.NFC(d.Constraint),
		})
	}
	return out
}
