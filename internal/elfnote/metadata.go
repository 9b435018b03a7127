package elfnote

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/kconfig"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

const (
	// ApplicationType is the package type of a task image.
	ApplicationType = "outpost application"
	// OS is the operating system the package targets.
	OS = "outpost"
)

// TaskMetadata is the task object of the package metadata document.
// Sizes and the magic value are hex strings, priority and quantum decimal
// strings.
type TaskMetadata struct {
	MagicValue    string `json:"magic_value"`
	Priority      string `json:"priority"`
	Quantum       string `json:"quantum"`
	AutoStart     bool   `json:"auto_start"`
	ExitNoRestart bool   `json:"exit_norestart"`
	ExitRestart   bool   `json:"exit_restart"`
	ExitPanic     bool   `json:"exit_panic"`
	ExitPeriodic  bool   `json:"exit_periodic"`
	ExitReset     bool   `json:"exit_reset"`
	StackSize     string `json:"stack_size"`
	HeapSize      string `json:"heap_size"`
}

// PackageMetadata is the JSON document stored in the package note.
type PackageMetadata struct {
	Type    string       `json:"type"`
	OS      string       `json:"os"`
	Name    string       `json:"name"`
	Version string       `json:"version"`
	Arch    string       `json:"arch"`
	Task    TaskMetadata `json:"task"`
	Record  string       `json:"record"`
}

// NewPackageMetadata builds the document for a sealed record and its
// serialized bytes.
func NewPackageMetadata(rec *meta.Record, raw []byte) *PackageMetadata {
	return &PackageMetadata{
		Type:    ApplicationType,
		OS:      OS,
		Name:    rec.Toolchain.Name,
		Version: rec.Toolchain.Version,
		Arch:    rec.Toolchain.Arch,
		Task:    taskMetadata(rec.Config.Task),
		Record:  base64.StdEncoding.EncodeToString(raw),
	}
}

func taskMetadata(t meta.TaskFields) TaskMetadata {
	autoStart, mode := kconfig.DecodeJobFlags(t.Flags)
	return TaskMetadata{
		MagicValue:    hexString(t.Magic),
		Priority:      strconv.FormatUint(uint64(t.Priority), 10),
		Quantum:       strconv.FormatUint(uint64(t.Quantum), 10),
		AutoStart:     autoStart,
		ExitNoRestart: mode == kconfig.ExitNoRestart,
		ExitRestart:   mode == kconfig.ExitRestart,
		ExitPanic:     mode == kconfig.ExitPanic,
		ExitPeriodic:  mode == kconfig.ExitPeriodicRestart,
		ExitReset:     mode == kconfig.ExitReset,
		StackSize:     hexString(uint64(t.StackSize)),
		HeapSize:      hexString(uint64(t.HeapSize)),
	}
}

func hexString(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}

// Marshal encodes the document as compact JSON.
func (m *PackageMetadata) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(m); err != nil {
		return nil, diag.Wrap(diag.KindSerialization, err, "encoding package metadata")
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// ParsePackageMetadata decodes a package metadata document and checks it
// describes an application.
func ParsePackageMetadata(data []byte) (*PackageMetadata, error) {
	var m PackageMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, diag.Wrap(diag.KindVerify, err, "decoding package metadata")
	}
	if m.Type != ApplicationType {
		return nil, diag.New(diag.KindVerify, "package is not an application").
			WithFields("type").Mismatch(ApplicationType, m.Type)
	}
	return &m, nil
}

// RawRecord returns the serialized record carried by the document.
func (m *PackageMetadata) RawRecord() ([]byte, error) {
	if m.Record == "" {
		return nil, diag.New(diag.KindVerify, "package metadata carries no record").WithFields("record")
	}
	raw, err := base64.StdEncoding.DecodeString(m.Record)
	if err != nil {
		return nil, diag.Wrap(diag.KindVerify, err, "decoding record").WithFields("record")
	}
	return raw, nil
}

// Check compares the document's plain fields with the record they were
// derived from and reports every field that disagrees.
func (m *PackageMetadata) Check(rec *meta.Record) error {
	want := NewPackageMetadata(rec, nil)
	var fields []string
	var first [2]string
	mismatch := func(name, w, got string) {
		if w == got {
			return
		}
		if fields == nil {
			first = [2]string{w, got}
		}
		fields = append(fields, name)
	}

	mismatch("os", want.OS, m.OS)
	mismatch("name", want.Name, m.Name)
	mismatch("version", want.Version, m.Version)
	mismatch("arch", want.Arch, m.Arch)
	mismatch("task.magic_value", want.Task.MagicValue, m.Task.MagicValue)
	mismatch("task.priority", want.Task.Priority, m.Task.Priority)
	mismatch("task.quantum", want.Task.Quantum, m.Task.Quantum)
	mismatch("task.auto_start", fmt.Sprint(want.Task.AutoStart), fmt.Sprint(m.Task.AutoStart))
	mismatch("task.exit_mode", exitMode(want.Task), exitMode(m.Task))
	mismatch("task.stack_size", want.Task.StackSize, m.Task.StackSize)
	mismatch("task.heap_size", want.Task.HeapSize, m.Task.HeapSize)

	if fields != nil {
		return diag.New(diag.KindVerify, "package metadata disagrees with the embedded record").
			WithFields(fields...).Mismatch(first[0], first[1])
	}
	return nil
}

// exitMode renders the exit flags of t; several set flags are joined.
func exitMode(t TaskMetadata) string {
	var out string
	for _, f := range []struct {
		set  bool
		mode kconfig.ExitMode
	}{
		{t.ExitNoRestart, kconfig.ExitNoRestart},
		{t.ExitRestart, kconfig.ExitRestart},
		{t.ExitPanic, kconfig.ExitPanic},
		{t.ExitPeriodic, kconfig.ExitPeriodicRestart},
		{t.ExitReset, kconfig.ExitReset},
	} {
		if !f.set {
			continue
		}
		if out != "" {
			out += "+"
		}
		out += f.mode.String()
	}
	return out
}
