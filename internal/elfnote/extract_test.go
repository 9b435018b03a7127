package elfnote

import (
	"debug/elf"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func noteSection(data []byte) testutil.ELFSection {
	return testutil.ELFSection{Name: SectionName, Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Data: data}
}

func imageWith(t *testing.T, md *PackageMetadata) string {
	t.Helper()
	doc, err := md.Marshal()
	require.NoError(t, err)
	return testutil.WriteELF(t, t.TempDir(), "blinky.elf",
		testutil.TextSection, noteSection(Note(binary.LittleEndian, doc)))
}

func TestExtract(t *testing.T) {
	rec, raw := testutil.SealedSampleRecord(t)
	path := imageWith(t, NewPackageMetadata(rec, raw))

	ex, err := Extract(path)
	require.NoError(t, err)
	assert.Equal(t, rec, ex.Record)
	assert.Equal(t, raw, ex.Raw)
	assert.Equal(t, "blinky", ex.Metadata.Name)
}

func TestExtractSectionErrors(t *testing.T) {
	note := Note(binary.LittleEndian, []byte(`{"type":"outpost application"}`))

	tests := []struct {
		name     string
		sections []testutil.ELFSection
		msg      string
	}{
		{name: "no section", sections: []testutil.ELFSection{testutil.TextSection}, msg: "no .note.package section"},
		{name: "two sections", sections: []testutil.ELFSection{noteSection(note), noteSection(note)}, msg: "2 .note.package sections"},
		{name: "foreign note", sections: []testutil.ELFSection{noteSection(append([]byte{4, 0, 0, 0, 0, 0, 0, 0, 3, 0, 0, 0}, "GNU\x00"...))}, msg: "note owner"},
		{name: "not json", sections: []testutil.ELFSection{noteSection(Note(binary.LittleEndian, []byte("{")))}, msg: "decoding package metadata"},
		{name: "no record", sections: []testutil.ELFSection{noteSection(note)}, msg: "carries no record"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := testutil.WriteELF(t, t.TempDir(), "blinky.elf", tt.sections...)
			_, err := Extract(path)
			require.Error(t, err)
			assert.True(t, diag.IsKind(err, diag.KindVerify), "error: %v", err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestExtractMissingFile(t *testing.T) {
	_, err := Extract(t.TempDir() + "/missing.elf")
	assert.True(t, diag.IsKind(err, diag.KindVerify))
}

func TestExtractDetectsTamperedRecord(t *testing.T) {
	rec, raw := testutil.SealedSampleRecord(t)
	tampered := append([]byte(nil), raw...)
	tampered[meta.HeaderSize+40] ^= 0x01

	md := NewPackageMetadata(rec, tampered)
	_, err := Extract(imageWith(t, md))
	require.Error(t, err)
	assert.True(t, errors.Is(err, meta.ErrChecksumMismatch))
	assert.True(t, diag.IsKind(err, diag.KindVerify))
}

func TestExtractRejectsNewerFormat(t *testing.T) {
	rec, raw := testutil.SealedSampleRecord(t)
	newer := append([]byte(nil), raw...)
	binary.LittleEndian.PutUint16(newer, meta.MaxSupportedVersion+1)

	md := NewPackageMetadata(rec, newer)
	_, err := Extract(imageWith(t, md))
	require.Error(t, err)
	assert.True(t, errors.Is(err, meta.ErrUnsupportedVersion))
}

func TestVerifyCrossChecksDocument(t *testing.T) {
	rec, raw := testutil.SealedSampleRecord(t)
	md := NewPackageMetadata(rec, raw)
	md.Task.StackSize = "0x4000"

	path := imageWith(t, md)
	_, err := Extract(path)
	require.NoError(t, err)

	_, err = Verify(path)
	require.Error(t, err)
	de, ok := diag.As(err)
	require.True(t, ok)
	assert.Equal(t, []string{"task.stack_size"}, de.Fields)
	assert.Equal(t, "0x800", de.Expected)
	assert.Equal(t, "0x4000", de.Found)
}

func TestVerifyReportsRecordNotDocument(t *testing.T) {
	rec, raw := testutil.SealedSampleRecord(t)
	md := NewPackageMetadata(rec, raw)
	md.Record = base64.StdEncoding.EncodeToString(raw[:len(raw)-1])

	_, err := Verify(imageWith(t, md))
	assert.True(t, errors.Is(err, meta.ErrLengthMismatch))
}
