package meta

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/outpost-os/shieldmeta/internal/diag"
)

// Verification failures wrapped by the diag.KindVerify errors Unmarshal returns.
var (
	ErrTruncated          = errors.New("record truncated")
	ErrUnsupportedVersion = errors.New("unsupported format version")
	ErrLengthMismatch     = errors.New("length mismatch")
	ErrChecksumMismatch   = errors.New("checksum mismatch")
	ErrDigestMismatch     = errors.New("digest mismatch")
	ErrMalformed          = errors.New("malformed record")
)

// Seal computes the section digests, length and checksum of rec, stores them
// in rec and returns the serialized record.
// rec is left untouched on error.
func Seal(rec *Record) ([]byte, error) {
	sealed := *rec
	cfgBody, err := encodeConfigBody(rec.Config.Task, rec.Config.Entries)
	if err != nil {
		return nil, diag.Wrap(diag.KindSerialization, err, "encoding config section")
	}
	hwBody, err := encodeHardwareBody(rec.Hardware.Arch, rec.Hardware.Regions, rec.Hardware.Peripherals)
	if err != nil {
		return nil, diag.Wrap(diag.KindSerialization, err, "encoding hardware section")
	}
	sealed.Config.Digest = ConfigDigest(cfgBody)
	sealed.Hardware.Digest = HardwareDigest(hwBody)

	raw, err := Marshal(&sealed)
	if err != nil {
		return nil, err
	}
	sealed.Length = uint32(len(raw))
	sealed.Checksum = binary.LittleEndian.Uint32(raw[checksumOffset:])
	*rec = sealed
	return raw, nil
}

// Marshal serializes rec in the canonical layout. The stored section digests
// must match the section contents; Length and Checksum are computed, not read
// from rec.
func Marshal(rec *Record) ([]byte, error) {
	if rec.FormatVersion == 0 || rec.FormatVersion > MaxSupportedVersion {
		return nil, diag.New(diag.KindSerialization, "cannot write format version %d", rec.FormatVersion)
	}

	cfgBody, err := encodeConfigBody(rec.Config.Task, rec.Config.Entries)
	if err != nil {
		return nil, diag.Wrap(diag.KindSerialization, err, "encoding config section")
	}
	if ConfigDigest(cfgBody) != rec.Config.Digest {
		return nil, diag.New(diag.KindSerialization, "config digest does not match section contents")
	}
	hwBody, err := encodeHardwareBody(rec.Hardware.Arch, rec.Hardware.Regions, rec.Hardware.Peripherals)
	if err != nil {
		return nil, diag.Wrap(diag.KindSerialization, err, "encoding hardware section")
	}
	if HardwareDigest(hwBody) != rec.Hardware.Digest {
		return nil, diag.New(diag.KindSerialization, "hardware digest does not match section contents")
	}
	tcBody, err := encodeToolchainBody(rec.Toolchain)
	if err != nil {
		return nil, diag.Wrap(diag.KindSerialization, err, "encoding toolchain section")
	}

	e := &encoder{buf: make([]byte, 0, HeaderSize+len(cfgBody)+len(hwBody)+len(tcBody)+76)}
	e.u16(rec.FormatVersion)
	e.u32(0) // length, patched below
	e.u32(0) // checksum, patched below
	e.section(append(rec.Config.Digest[:], cfgBody...))
	e.section(append(rec.Hardware.Digest[:], hwBody...))
	e.section(tcBody)
	if e.err != nil {
		return nil, diag.Wrap(diag.KindSerialization, e.err, "encoding record")
	}
	if len(e.buf) > math.MaxUint32 {
		return nil, diag.New(diag.KindSerialization, "record size %d exceeds u32", len(e.buf))
	}

	raw := e.buf
	binary.LittleEndian.PutUint32(raw[2:], uint32(len(raw)))
	binary.LittleEndian.PutUint32(raw[checksumOffset:], Checksum(raw))
	return raw, nil
}

// ReadHeader decodes the header without validating it.
func ReadHeader(raw []byte) (Header, error) {
	if len(raw) < HeaderSize {
		return Header{}, diag.Wrap(diag.KindVerify, ErrTruncated,
			"record is %d bytes, header needs %d", len(raw), HeaderSize)
	}
	return Header{
		FormatVersion: binary.LittleEndian.Uint16(raw[0:]),
		Length:        binary.LittleEndian.Uint32(raw[2:]),
		Checksum:      binary.LittleEndian.Uint32(raw[checksumOffset:]),
	}, nil
}

// Unmarshal verifies and decodes a serialized record.
//
// Checks run in order: header present, format version supported, length
// matches, checksum matches, sections decode and digests match. A version
// newer than MaxSupportedVersion is rejected before anything else is read.
func Unmarshal(raw []byte) (*Record, error) {
	h, err := ReadHeader(raw)
	if err != nil {
		return nil, err
	}
	if h.FormatVersion > MaxSupportedVersion {
		return nil, diag.Wrap(diag.KindVerify, ErrUnsupportedVersion,
			"format version %d is newer than supported version %d", h.FormatVersion, MaxSupportedVersion).
			Mismatch(fmt.Sprintf("<= %d", MaxSupportedVersion), fmt.Sprint(h.FormatVersion))
	}
	if h.FormatVersion == 0 {
		return nil, diag.Wrap(diag.KindVerify, ErrMalformed, "format version 0 is invalid")
	}
	if int64(h.Length) != int64(len(raw)) {
		return nil, diag.Wrap(diag.KindVerify, ErrLengthMismatch, "header length disagrees with record size").
			Mismatch(fmt.Sprint(h.Length), fmt.Sprint(len(raw)))
	}
	if sum := Checksum(raw); sum != h.Checksum {
		return nil, diag.Wrap(diag.KindVerify, ErrChecksumMismatch, "record checksum does not match contents").
			Mismatch(fmt.Sprintf("%08x", h.Checksum), fmt.Sprintf("%08x", sum))
	}

	d := &decoder{buf: raw, off: HeaderSize}
	cfgSec := d.section("config")
	hwSec := d.section("hardware")
	tcSec := d.section("toolchain")
	d.done("record")
	if d.err != nil {
		return nil, diag.Wrap(diag.KindVerify, fmt.Errorf("%w: %v", ErrMalformed, d.err), "decoding record")
	}

	rec := &Record{Header: h}
	if err := decodeDigested(cfgSec, &rec.Config.Digest, "config", ConfigDigest, func(body []byte) error {
		var err error
		rec.Config.Task, rec.Config.Entries, err = decodeConfigBody(body)
		return err
	}); err != nil {
		return nil, err
	}
	if err := decodeDigested(hwSec, &rec.Hardware.Digest, "hardware", HardwareDigest, func(body []byte) error {
		var err error
		rec.Hardware.Arch, rec.Hardware.Regions, rec.Hardware.Peripherals, err = decodeHardwareBody(body)
		return err
	}); err != nil {
		return nil, err
	}
	if rec.Toolchain, err = decodeToolchainBody(tcSec); err != nil {
		return nil, diag.Wrap(diag.KindVerify, fmt.Errorf("%w: %v", ErrMalformed, err), "decoding toolchain section")
	}
	return rec, nil
}

func decodeDigested(sec []byte, dst *Digest, name string, digest func([]byte) Digest, decode func([]byte) error) error {
	if len(sec) < len(dst) {
		return diag.Wrap(diag.KindVerify, ErrMalformed, "%s section shorter than its digest", name)
	}
	copy(dst[:], sec)
	body := sec[len(dst):]
	if got := digest(body); got != *dst {
		return diag.Wrap(diag.KindVerify, ErrDigestMismatch, "%s section digest does not match contents", name).
			Mismatch(dst.String(), got.String())
	}
	if err := decode(body); err != nil {
		return diag.Wrap(diag.KindVerify, fmt.Errorf("%w: %v", ErrMalformed, err), "decoding %s section", name)
	}
	return nil
}
