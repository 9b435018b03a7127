package meta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"golang.org/x/text/unicode/norm"
)

// NFC returns s in Unicode normalization form C.
// Every string written to a record passes through NFC first.
func NFC(s string) string {
	return norm.NFC.String(s)
}

// encoder appends the canonical little-endian encoding of record fields.
type encoder struct {
	buf []byte
	err error
}

func (e *encoder) u8(v uint8)   { e.buf = append(e.buf, v) }
func (e *encoder) u16(v uint16) { e.buf = binary.LittleEndian.AppendUint16(e.buf, v) }
func (e *encoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *encoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *encoder) count(n int) {
	if n > math.MaxUint32 {
		e.fail(fmt.Errorf("count %d exceeds u32", n))
		return
	}
	e.u32(uint32(n))
}

func (e *encoder) str(s string) {
	s = NFC(s)
	e.count(len(s))
	e.buf = append(e.buf, s...)
}

func (e *encoder) raw(b []byte) { e.buf = append(e.buf, b...) }

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) value(v Value) {
	if v == nil {
		e.fail(errors.New("nil configuration value"))
		return
	}
	e.u8(uint8(v.Kind()))
	switch val := v.(type) {
	case Bool:
		if val {
			e.u8(1)
		} else {
			e.u8(0)
		}
	case Int:
		e.u64(uint64(val))
	case String:
		e.str(string(val))
	case Enum:
		e.str(string(val))
	default:
		e.fail(fmt.Errorf("unsupported value type %T", v))
	}
}

// section writes a u32 size (including itself) followed by body.
func (e *encoder) section(body []byte) {
	size := len(body) + 4
	if size > math.MaxUint32 {
		e.fail(fmt.Errorf("section size %d exceeds u32", size))
		return
	}
	e.u32(uint32(size))
	e.raw(body)
}

// decoder reads the canonical encoding. The first failure sticks; later
// reads return zero values.
type decoder struct {
	buf []byte
	off int
	err error
}

var errShort = errors.New("unexpected end of data")

func (d *decoder) take(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || len(d.buf)-d.off < n {
		d.err = fmt.Errorf("%w at offset %d (need %d bytes)", errShort, d.off, n)
		return nil
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b
}

func (d *decoder) u8() uint8 {
	if b := d.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u16() uint16 {
	if b := d.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// count reads a u32 element count, bounded by the bytes left so a corrupt
// count cannot force a huge allocation.
func (d *decoder) count(minElem int) int {
	n := int(d.u32())
	if d.err == nil && n*minElem > len(d.buf)-d.off {
		d.err = fmt.Errorf("count %d at offset %d exceeds remaining data", n, d.off-4)
		return 0
	}
	return n
}

func (d *decoder) str() string {
	n := d.count(1)
	return string(d.take(n))
}

func (d *decoder) value() Value {
	kind := ValueKind(d.u8())
	switch kind {
	case KindBool:
		switch d.u8() {
		case 0:
			return Bool(false)
		case 1:
			return Bool(true)
		default:
			d.fail(fmt.Errorf("invalid bool at offset %d", d.off-1))
		}
	case KindInt:
		return Int(int64(d.u64()))
	case KindString:
		return String(d.str())
	case KindEnum:
		return Enum(d.str())
	default:
		d.fail(fmt.Errorf("invalid value kind %d at offset %d", kind, d.off-1))
	}
	return nil
}

func (d *decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// section reads a size-prefixed section and returns its body.
func (d *decoder) section(name string) []byte {
	size := d.u32()
	if d.err != nil {
		return nil
	}
	if size < 4 {
		d.fail(fmt.Errorf("%s section size %d smaller than its prefix", name, size))
		return nil
	}
	return d.take(int(size) - 4)
}

// done fails if bytes remain unread.
func (d *decoder) done(what string) {
	if d.err == nil && d.off != len(d.buf) {
		d.err = fmt.Errorf("%s: %d trailing bytes", what, len(d.buf)-d.off)
	}
}

func encodeConfigBody(task TaskFields, entries []Entry) ([]byte, error) {
	e := &encoder{}
	e.u64(task.Magic)
	e.u8(task.Priority)
	e.u8(task.Quantum)
	e.u32(task.Flags)
	e.u32(task.StackSize)
	e.u32(task.HeapSize)
	e.str(task.MemoryDomain)
	e.str(task.SchedClass)
	e.count(len(entries))
	prev := ""
	for i, ent := range entries {
		if i > 0 && ent.Key <= prev {
			e.fail(fmt.Errorf("entries not strictly sorted at %q", ent.Key))
		}
		prev = ent.Key
		e.str(ent.Key)
		e.value(ent.Value)
	}
	return e.buf, e.err
}

func decodeConfigBody(body []byte) (TaskFields, []Entry, error) {
	d := &decoder{buf: body}
	var t TaskFields
	t.Magic = d.u64()
	t.Priority = d.u8()
	t.Quantum = d.u8()
	t.Flags = d.u32()
	t.StackSize = d.u32()
	t.HeapSize = d.u32()
	t.MemoryDomain = d.str()
	t.SchedClass = d.str()
	var entries []Entry
	if n := d.count(6); n > 0 {
		entries = make([]Entry, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			key := d.str()
			entries = append(entries, Entry{Key: key, Value: d.value()})
		}
	}
	d.done("config section")
	return t, entries, d.err
}

// EncodeConfig returns the canonical encoding of a configuration body,
// the bytes covered by the config digest.
func EncodeConfig(task TaskFields, entries []Entry) ([]byte, error) {
	return encodeConfigBody(task, entries)
}

func encodeHardwareBody(arch string, regions []Region, periphs []Peripheral) ([]byte, error) {
	e := &encoder{}
	e.str(arch)
	e.count(len(regions))
	for _, r := range regions {
		e.str(r.Name)
		e.str(r.Kind)
		e.u64(r.Base)
		e.u64(r.Size)
	}
	e.count(len(periphs))
	for _, p := range periphs {
		e.str(p.ID)
		e.str(p.Compatible)
		e.u64(p.Base)
		e.u64(p.Size)
		e.count(len(p.Interrupts))
		for _, irq := range p.Interrupts {
			e.u32(irq)
		}
	}
	return e.buf, e.err
}

func decodeHardwareBody(body []byte) (string, []Region, []Peripheral, error) {
	d := &decoder{buf: body}
	arch := d.str()
	var regions []Region
	if n := d.count(24); n > 0 {
		regions = make([]Region, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			var r Region
			r.Name = d.str()
			r.Kind = d.str()
			r.Base = d.u64()
			r.Size = d.u64()
			regions = append(regions, r)
		}
	}
	var periphs []Peripheral
	if n := d.count(28); n > 0 {
		periphs = make([]Peripheral, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			var p Peripheral
			p.ID = d.str()
			p.Compatible = d.str()
			p.Base = d.u64()
			p.Size = d.u64()
			if m := d.count(4); m > 0 {
				p.Interrupts = make([]uint32, m)
				for j := range p.Interrupts {
					p.Interrupts[j] = d.u32()
				}
			}
			periphs = append(periphs, p)
		}
	}
	d.done("hardware section")
	return arch, regions, periphs, d.err
}

// EncodeHardware returns the canonical encoding of a hardware body,
// the bytes covered by the hardware digest.
func EncodeHardware(arch string, regions []Region, periphs []Peripheral) ([]byte, error) {
	return encodeHardwareBody(arch, regions, periphs)
}

func encodeToolchainBody(tc ToolchainInfo) ([]byte, error) {
	e := &encoder{}
	e.str(tc.Name)
	e.str(tc.Version)
	e.str(tc.Target)
	e.str(tc.Arch)
	e.str(string(tc.BuildSystem))
	e.count(len(tc.Dependencies))
	for _, dep := range tc.Dependencies {
		e.str(dep.Name)
		e.str(dep.Constraint)
	}
	return e.buf, e.err
}

func decodeToolchainBody(body []byte) (ToolchainInfo, error) {
	d := &decoder{buf: body}
	var tc ToolchainInfo
	tc.Name = d.str()
	tc.Version = d.str()
	tc.Target = d.str()
	tc.Arch = d.str()
	tc.BuildSystem = BuildSystem(d.str())
	if n := d.count(8); n > 0 {
		tc.Dependencies = make([]Dependency, 0, n)
		for i := 0; i < n && d.err == nil; i++ {
			name := d.str()
			tc.Dependencies = append(tc.Dependencies, Dependency{Name: name, Constraint: d.str()})
		}
	}
	d.done("toolchain section")
	return tc, d.err
}
