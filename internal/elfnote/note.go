package elfnote

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

const (
	// SectionName is the section the linker places package metadata in.
	SectionName = ".note.package"
	// NoteOwner is the note owner name.
	NoteOwner = "FDO"
	// NoteType is the note type of FDO package metadata.
	NoteType uint32 = 0xcafe1a7e
)

// noteHeaderSize covers namesz, descsz, type and the padded owner name.
const noteHeaderSize = 12 + 4

// Note encodes desc as a NUL-terminated FDO package metadata note. The
// descriptor is padded to a 4-byte boundary.
func Note(order binary.ByteOrder, desc []byte) []byte {
	descsz := len(desc) + 1
	out := make([]byte, 0, noteHeaderSize+align4(descsz))
	var word [4]byte
	for _, v := range []uint32{uint32(len(NoteOwner) + 1), uint32(descsz), NoteType} {
		order.PutUint32(word[:], v)
		out = append(out, word[:]...)
	}
	out = append(out, NoteOwner...)
	out = append(out, 0)
	out = append(out, desc...)
	for len(out) < noteHeaderSize+align4(descsz) {
		out = append(out, 0)
	}
	return out
}

// ParseNote returns the descriptor of the package metadata note in data,
// without its trailing NUL padding.
func ParseNote(order binary.ByteOrder, data []byte) ([]byte, error) {
	if len(data) < 12 {
		return nil, fmt.Errorf("note is %d bytes, header needs 12", len(data))
	}
	namesz := order.Uint32(data[0:])
	descsz := order.Uint32(data[4:])
	typ := order.Uint32(data[8:])

	nameEnd := 12 + uint64(namesz)
	descOff := 12 + uint64(align4(int(namesz)))
	descEnd := descOff + uint64(descsz)
	if descEnd > uint64(len(data)) || nameEnd > uint64(len(data)) {
		return nil, fmt.Errorf("note sizes (name %d, desc %d) exceed section size %d", namesz, descsz, len(data))
	}

	owner := string(bytes.TrimRight(data[12:nameEnd], "\x00"))
	if owner != NoteOwner {
		return nil, fmt.Errorf("note owner is %q, want %q", owner, NoteOwner)
	}
	if typ != NoteType {
		return nil, fmt.Errorf("note type is %#x, want %#x", typ, NoteType)
	}
	return bytes.TrimRight(data[descOff:descEnd], "\x00"), nil
}

func align4(n int) int {
	return (n + 3) &^ 3
}
