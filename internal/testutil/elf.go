package testutil

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// ELFSection is a section to place in a generated ELF image.
type ELFSection struct {
	Name  string
	Type  elf.SectionType
	Flags elf.SectionFlag
	Data  []byte
}

// TextSection is a small executable section so images are not empty.
var TextSection = ELFSection{
	Name:  ".text",
	Type:  elf.SHT_PROGBITS,
	Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
	Data:  []byte{0x70, 0x47, 0x00, 0xbf}, // bx lr; nop
}

// BuildELF returns a little-endian 32-bit ARM executable holding the given
// sections, followed by a .shstrtab. It has no program headers.
func BuildELF(sections ...ELFSection) []byte {
	const (
		ehdrSize = 52
		shdrSize = 40
	)

	// Section name table: leading NUL, then each name.
	shstrtab := []byte{0}
	nameOff := make([]uint32, len(sections)+1)
	for i, s := range sections {
		nameOff[i] = uint32(len(shstrtab))
		shstrtab = append(append(shstrtab, s.Name...), 0)
	}
	nameOff[len(sections)] = uint32(len(shstrtab))
	shstrtab = append(append(shstrtab, ".shstrtab"...), 0)

	var body bytes.Buffer
	offsets := make([]uint32, len(sections)+1)
	for i, s := range sections {
		pad(&body, ehdrSize, 4)
		offsets[i] = uint32(ehdrSize + body.Len())
		body.Write(s.Data)
	}
	offsets[len(sections)] = uint32(ehdrSize + body.Len())
	body.Write(shstrtab)
	pad(&body, ehdrSize, 4)
	shoff := uint32(ehdrSize + body.Len())

	hdr := elf.Header32{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_ARM),
		Version:   uint32(elf.EV_CURRENT),
		Shoff:     shoff,
		Ehsize:    ehdrSize,
		Phentsize: 32,
		Shentsize: shdrSize,
		Shnum:     uint16(len(sections) + 2),
		Shstrndx:  uint16(len(sections) + 1),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS32)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var out bytes.Buffer
	_ = binary.Write(&out, binary.LittleEndian, hdr)
	out.Write(body.Bytes())

	shdrs := []elf.Section32{{}} // SHN_UNDEF
	for i, s := range sections {
		align := uint32(1)
		if s.Type == elf.SHT_NOTE || s.Flags&elf.SHF_EXECINSTR != 0 {
			align = 4
		}
		shdrs = append(shdrs, elf.Section32{
			Name:      nameOff[i],
			Type:      uint32(s.Type),
			Flags:     uint32(s.Flags),
			Off:       offsets[i],
			Size:      uint32(len(s.Data)),
			Addralign: align,
		})
	}
	shdrs = append(shdrs, elf.Section32{
		Name:      nameOff[len(sections)],
		Type:      uint32(elf.SHT_STRTAB),
		Off:       offsets[len(sections)],
		Size:      uint32(len(shstrtab)),
		Addralign: 1,
	})
	_ = binary.Write(&out, binary.LittleEndian, shdrs)

	return out.Bytes()
}

// WriteELF writes BuildELF(sections...) to dir/name and returns the path.
func WriteELF(t *testing.T, dir, name string, sections ...ELFSection) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildELF(sections...), 0o755); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// ReadSections parses an ELF image and returns its sections by name.
func ReadSections(t *testing.T, path string) map[string]ELFSection {
	t.Helper()
	f, err := elf.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	out := make(map[string]ELFSection, len(f.Sections))
	for _, s := range f.Sections {
		if s.Type == elf.SHT_NULL || s.Name == ".shstrtab" {
			continue
		}
		data, err := s.Data()
		if err != nil {
			t.Fatalf("reading section %s: %v", s.Name, err)
		}
		out[s.Name] = ELFSection{Name: s.Name, Type: s.Type, Flags: s.Flags, Data: data}
	}
	return out
}

func pad(buf *bytes.Buffer, base, align int) {
	for (base+buf.Len())%align != 0 {
		buf.WriteByte(0)
	}
}

// Objcopy is a Handler standing in for objcopy: it writes the output image (the
// last argument) as TextSection plus the allocated note section named by
// --add-section or --update-section.
func Objcopy(c Call) ([]byte, error) {
	var name, file string
	for i, a := range c.Args {
		if (a == "--add-section" || a == "--update-section") && i+1 < len(c.Args) {
			name, file, _ = strings.Cut(c.Args[i+1], "=")
		}
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("reading section file: %w", err)
	}
	image := c.Args[len(c.Args)-1]
	note := ELFSection{Name: name, Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Data: data}
	return nil, os.WriteFile(image, BuildELF(TextSection, note), 0o755)
}
