package elfnote

import (
	"context"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/outpost-os/shieldmeta/internal/diag"
	"github.com/outpost-os/shieldmeta/internal/testutil"
)

func fakeObjcopy(t *testing.T) *testutil.FakeRunner {
	return testutil.NewFakeRunner().Handle("objcopy", testutil.Objcopy)
}

func sampleDocument(t *testing.T) []byte {
	t.Helper()
	rec, raw := testutil.SealedSampleRecord(t)
	doc, err := NewPackageMetadata(rec, raw).Marshal()
	require.NoError(t, err)
	return doc
}

func TestEmbedAddsSection(t *testing.T) {
	dir := t.TempDir()
	path := testutil.WriteELF(t, dir, "blinky.elf", testutil.TextSection)
	r := fakeObjcopy(t)
	doc := sampleDocument(t)

	e := &Embedder{Run: r.Run, Objcopy: "objcopy"}
	require.NoError(t, e.Embed(context.Background(), path, doc))

	calls := r.CallsTo("objcopy")
	require.Len(t, calls, 1)
	args := calls[0].Args
	assert.Equal(t, "--add-section", args[0])
	assert.True(t, strings.HasPrefix(args[1], SectionName+"="))
	assert.Equal(t, []string{"--set-section-flags", SectionName + "=alloc,readonly", path}, args[2:5])
	require.Len(t, args, 6)
	assert.Equal(t, dir, filepath.Dir(args[5]))
	assert.NotEqual(t, path, args[5])
	assert.Equal(t, dir, calls[0].Dir)

	sections := testutil.ReadSections(t, path)
	got, err := ParseNote(binary.LittleEndian, sections[SectionName].Data)
	require.NoError(t, err)
	assert.Equal(t, doc, got)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are removed")
}

func TestEmbedUpdatesExistingSection(t *testing.T) {
	old := testutil.ELFSection{
		Name:  SectionName,
		Type:  elf.SHT_NOTE,
		Flags: elf.SHF_ALLOC,
		Data:  Note(binary.LittleEndian, []byte(`{"type":"outpost application"}`)),
	}
	path := testutil.WriteELF(t, t.TempDir(), "blinky.elf", testutil.TextSection, old)
	r := fakeObjcopy(t)

	e := &Embedder{Run: r.Run, Objcopy: "objcopy"}
	require.NoError(t, e.Embed(context.Background(), path, sampleDocument(t)))

	args := r.CallsTo("objcopy")[0].Args
	assert.Equal(t, "--update-section", args[0])
	assert.Len(t, args, 4)
	assert.Equal(t, path, args[2])

	ex, err := Verify(path)
	require.NoError(t, err)
	assert.Equal(t, "blinky", ex.Record.Toolchain.Name)
}

func TestEmbedDefaultObjcopy(t *testing.T) {
	path := testutil.WriteELF(t, t.TempDir(), "blinky.elf", testutil.TextSection)
	r := testutil.NewFakeRunner().Fail(DefaultObjcopy, "unrecognized option")

	err := (&Embedder{Run: r.Run}).Embed(context.Background(), path, []byte("{}"))
	require.Error(t, err)
	assert.Len(t, r.CallsTo(DefaultObjcopy), 1)
}

func TestEmbedErrors(t *testing.T) {
	doc := []byte(`{"type":"outpost application"}`)

	t.Run("not an ELF image", func(t *testing.T) {
		dir := t.TempDir()
		path := testutil.WriteFiles(t, dir, map[string]string{"blinky.elf": "text"}) + "/blinky.elf"
		err := (&Embedder{Run: fakeObjcopy(t).Run, Objcopy: "objcopy"}).Embed(context.Background(), path, doc)
		assert.True(t, diag.IsKind(err, diag.KindEmbed))
	})

	t.Run("objcopy fails", func(t *testing.T) {
		path := testutil.WriteELF(t, t.TempDir(), "blinky.elf", testutil.TextSection)
		r := testutil.NewFakeRunner().Fail("objcopy", "objcopy: can't add section '.note.package': file format not recognized")
		err := (&Embedder{Run: r.Run, Objcopy: "objcopy"}).Embed(context.Background(), path, doc)
		require.Error(t, err)
		de, ok := diag.As(err)
		require.True(t, ok)
		assert.Equal(t, diag.KindEmbed, de.Kind)
		assert.Contains(t, err.Error(), "file format not recognized")
	})

	t.Run("section missing afterwards", func(t *testing.T) {
		dir := t.TempDir()
		path := testutil.WriteELF(t, dir, "blinky.elf", testutil.TextSection)
		before, err := os.ReadFile(path)
		require.NoError(t, err)
		r := testutil.NewFakeRunner().Handle("objcopy", copyImage)

		err = (&Embedder{Run: r.Run, Objcopy: "objcopy"}).Embed(context.Background(), path, doc)
		assert.True(t, diag.IsKind(err, diag.KindEmbed))
		assert.ErrorContains(t, err, "no .note.package section")
		assertUntouched(t, dir, path, before)
	})

	t.Run("section holds other metadata", func(t *testing.T) {
		dir := t.TempDir()
		path := testutil.WriteELF(t, dir, "blinky.elf", testutil.TextSection)
		before, err := os.ReadFile(path)
		require.NoError(t, err)
		other := Note(binary.LittleEndian, []byte(`{"type":"other"}`))
		r := testutil.NewFakeRunner().Handle("objcopy", func(c testutil.Call) ([]byte, error) {
			note := testutil.ELFSection{Name: SectionName, Type: elf.SHT_NOTE, Flags: elf.SHF_ALLOC, Data: other}
			out := c.Args[len(c.Args)-1]
			return nil, os.WriteFile(out, testutil.BuildELF(testutil.TextSection, note), 0o644)
		})

		err = (&Embedder{Run: r.Run, Objcopy: "objcopy"}).Embed(context.Background(), path, doc)
		assert.True(t, diag.IsKind(err, diag.KindEmbed))
		assert.ErrorContains(t, err, "does not hold the written metadata")
		assertUntouched(t, dir, path, before)
	})

	t.Run("objcopy failure leaves the image", func(t *testing.T) {
		dir := t.TempDir()
		path := testutil.WriteELF(t, dir, "blinky.elf", testutil.TextSection)
		before, err := os.ReadFile(path)
		require.NoError(t, err)
		r := testutil.NewFakeRunner().Fail("objcopy", "objcopy: out of memory")

		err = (&Embedder{Run: r.Run, Objcopy: "objcopy"}).Embed(context.Background(), path, doc)
		require.Error(t, err)
		assertUntouched(t, dir, path, before)
	})
}

func TestEmbedKeepsImageMode(t *testing.T) {
	path := testutil.WriteELF(t, t.TempDir(), "blinky.elf", testutil.TextSection)
	require.NoError(t, os.Chmod(path, 0o751))

	e := &Embedder{Run: fakeObjcopy(t).Run, Objcopy: "objcopy"}
	require.NoError(t, e.Embed(context.Background(), path, sampleDocument(t)))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o751), info.Mode().Perm())
}

// copyImage is an objcopy that copies its input to its output unchanged.
func copyImage(c testutil.Call) ([]byte, error) {
	in, out := c.Args[len(c.Args)-2], c.Args[len(c.Args)-1]
	data, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}
	return nil, os.WriteFile(out, data, 0o644)
}

// assertUntouched checks path still holds before and no temporary file is
// left in dir.
func assertUntouched(t *testing.T, dir, path string, before []byte) {
	t.Helper()
	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
