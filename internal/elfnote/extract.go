package elfnote

import (
	"debug/elf"
	"fmt"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/meta"
)

// Extracted is the package metadata read from an image.
type Extracted struct {
	Metadata *PackageMetadata
	Record   *meta.Record
	Raw      []byte
}

// readDocument returns the JSON descriptor of the single package note in
// the image at path.
func readDocument(path string) ([]byte, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, diag.Wrap(diag.KindVerify, err, "opening ELF image").At(path, 0)
	}
	defer f.Close()

	var found []*elf.Section
	for _, s := range f.Sections {
		if s.Name == SectionName {
			found = append(found, s)
		}
	}
	switch len(found) {
	case 0:
		return nil, diag.New(diag.KindVerify, "no %s section", SectionName).At(path, 0)
	case 1:
	default:
		return nil, diag.New(diag.KindVerify, "%d %s sections, want exactly one", len(found), SectionName).At(path, 0)
	}

	data, err := found[0].Data()
	if err != nil {
		return nil, diag.Wrap(diag.KindVerify, err, "reading %s", SectionName).At(path, 0)
	}
	desc, err := ParseNote(f.ByteOrder, data)
	if err != nil {
		return nil, diag.Wrap(diag.KindVerify, err, "parsing %s", SectionName).At(path, 0)
	}
	return desc, nil
}

// Extract reads the package note of the image at path and decodes the
// record it carries. The record's length, checksum and digests are checked.
func Extract(path string) (*Extracted, error) {
	desc, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	md, err := ParsePackageMetadata(desc)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	raw, err := md.RawRecord()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rec, err := meta.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &Extracted{Metadata: md, Record: rec, Raw: raw}, nil
}

// Verify extracts the record and also checks the document's plain task
// fields agree with it.
func Verify(path string) (*Extracted, error) {
	ex, err := Extract(path)
	if err != nil {
		return nil, err
	}
	if err := ex.Metadata.Check(ex.Record); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return ex, nil
}
