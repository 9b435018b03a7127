package kconfig

import (
	"fmt"
	"strings"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// Recognized configuration keys.
const (
	KeyPrefix       = "CONFIG_TASK_"
	KeyMagicValue   = KeyPrefix + "MAGIC_VALUE"
	KeyPriority     = KeyPrefix + "PRIORITY"
	KeyQuantum      = KeyPrefix + "QUANTUM"
	KeyStackSize    = KeyPrefix + "STACK_SIZE"
	KeyHeapSize     = KeyPrefix + "HEAP_SIZE"
	KeyMemoryDomain = KeyPrefix + "MEMORY_DOMAIN"
	KeySchedClass   = KeyPrefix + "SCHED_CLASS"
	KeyDevices      = KeyPrefix + "DEVICES"
	KeyAutoStart    = KeyPrefix + "AUTO_START"
	KeyExitPrefix   = KeyPrefix + "EXIT_"
)

// DefaultSchedClass applies when SCHED_CLASS is not set.
const DefaultSchedClass = "normal"

// ExitMode is the job behaviour when the task exits.
// The numeric values are the runtime's job flag encoding.
type ExitMode uint8

const (
	ExitNoRestart       ExitMode = 0
	ExitRestart         ExitMode = 1
	ExitPanic           ExitMode = 2
	ExitPeriodicRestart ExitMode = 3
	ExitReset           ExitMode = 4
)

var exitModes = []ExitMode{ExitNoRestart, ExitRestart, ExitPanic, ExitPeriodicRestart, ExitReset}

func (m ExitMode) String() string {
	switch m {
	case ExitNoRestart:
		return "norestart"
	case ExitRestart:
		return "restart"
	case ExitPanic:
		return "panic"
	case ExitPeriodicRestart:
		return "periodic"
	case ExitReset:
		return "reset"
	default:
		return fmt.Sprintf("exitmode(%d)", uint8(m))
	}
}

// ExitModes returns all exit modes in flag order.
func ExitModes() []ExitMode {
	return append([]ExitMode(nil), exitModes...)
}

// JobFlags packs the start and exit modes: bit 0 is auto start, bits 1..3
// hold the exit mode.
func JobFlags(autoStart bool, mode ExitMode) uint32 {
	flags := (uint32(mode) & 0x7) << 1
	if autoStart {
		flags |= 0x1
	}
	return flags
}

// DecodeJobFlags is the inverse of JobFlags.
func DecodeJobFlags(flags uint32) (autoStart bool, mode ExitMode) {
	return flags&0x1 == 1, ExitMode((flags >> 1) & 0x7)
}

// Task is the typed view of the recognized task keys.
type Task struct {
	Magic        uint64
	Priority     uint8
	Quantum      uint8
	StackSize    uint32
	HeapSize     uint32
	AutoStart    bool
	ExitMode     ExitMode
	SchedClass   string
	MemoryDomain string
	Devices      []string
}

// Fields returns the record view of the task.
func (t *Task) Fields() meta.TaskFields {
	return meta.TaskFields{
		Magic:        t.Magic,
		Priority:     t.Priority,
		Quantum:      t.Quantum,
		Flags:        JobFlags(t.AutoStart, t.ExitMode),
		StackSize:    t.StackSize,
		HeapSize:     t.HeapSize,
		MemoryDomain: t.MemoryDomain,
		SchedClass:   t.SchedClass,
	}
}

// TaskOf extracts the task view from a validated configuration.
func TaskOf(cfg *meta.TaskConfig) (*Task, error) {
	t := &Task{SchedClass: DefaultSchedClass}

	magic, err := intKey(cfg, KeyMagicValue, true, 0, 1<<63-1)
	if err != nil {
		return nil, err
	}
	t.Magic = uint64(magic)

	pri, err := intKey(cfg, KeyPriority, true, 0, 255)
	if err != nil {
		return nil, err
	}
	t.Priority = uint8(pri)

	quantum, err := intKey(cfg, KeyQuantum, true, 0, 255)
	if err != nil {
		return nil, err
	}
	t.Quantum = uint8(quantum)

	stack, err := intKey(cfg, KeyStackSize, true, 1, 0xFFFF)
	if err != nil {
		return nil, err
	}
	t.StackSize = uint32(stack)

	heap, err := intKey(cfg, KeyHeapSize, false, 0, 0xFFFFFFFF)
	if err != nil {
		return nil, err
	}
	t.HeapSize = uint32(heap)

	if t.MemoryDomain, err = stringKey(cfg, KeyMemoryDomain, true); err != nil {
		return nil, err
	}
	if class, err := stringKey(cfg, KeySchedClass, false); err != nil {
		return nil, err
	} else if class != "" {
		t.SchedClass = class
	}

	if v, ok := cfg.Get(KeyAutoStart); ok {
		b, ok := v.(meta.Bool)
		if !ok {
			return nil, typeError(KeyAutoStart, "bool", v)
		}
		t.AutoStart = bool(b)
	}

	for _, mode := range exitModes {
		key := KeyExitPrefix + strings.ToUpper(mode.String())
		if v, ok := cfg.Get(key); ok && v == meta.Bool(true) {
			t.ExitMode = mode
			break
		}
	}

	if t.Devices, err = Devices(cfg); err != nil {
		return nil, err
	}
	return t, nil
}

// Devices returns the peripheral ids the task declares, in declaration order.
// The list is separated by commas and/or whitespace.
func Devices(cfg *meta.TaskConfig) ([]string, error) {
	raw, err := stringKey(cfg, KeyDevices, false)
	if err != nil {
		return nil, err
	}
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	if len(fields) == 0 {
		return nil, nil
	}
	seen := make(map[string]bool, len(fields))
	for _, id := range fields {
		if seen[id] {
			return nil, diag.New(diag.KindConfigValue, "device %q listed more than once", id).WithFields(KeyDevices)
		}
		seen[id] = true
	}
	return fields, nil
}

func intKey(cfg *meta.TaskConfig, key string, required bool, lo, hi int64) (int64, error) {
	v, ok := cfg.Get(key)
	if !ok {
		if required {
			return 0, diag.New(diag.KindConfigValue, "missing required key").WithFields(key)
		}
		return 0, nil
	}
	i, ok := v.(meta.Int)
	if !ok {
		return 0, typeError(key, "int", v)
	}
	if int64(i) < lo || int64(i) > hi {
		return 0, diag.New(diag.KindConfigValue, "value %d out of range [%d, %d]", int64(i), lo, hi).WithFields(key)
	}
	return int64(i), nil
}

func stringKey(cfg *meta.TaskConfig, key string, required bool) (string, error) {
	v, ok := cfg.Get(key)
	if !ok {
		if required {
			return "", diag.New(diag.KindConfigValue, "missing required key").WithFields(key)
		}
		return "", nil
	}
	switch s := v.(type) {
	case meta.String:
		return string(s), nil
	case meta.Enum:
		return string(s), nil
	}
	return "", typeError(key, "string", v)
}

func typeError(key, want string, v meta.Value) error {
	return diag.New(diag.KindConfigValue, "expected %s, got %s %s", want, v.Kind(), v).WithFields(key)
}
