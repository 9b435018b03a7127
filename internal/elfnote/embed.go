package elfnote

import (
	"bytes"
	"context"
	"debug/elf"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/outpost-os/shieldmeta/internal/command"
	"github.com/outpost-os/shieldmeta/internal/diag"
)

// DefaultObjcopy is the objcopy used when none is configured.
const DefaultObjcopy = "arm-none-eabi-objcopy"

// Embedder writes package metadata notes into linked images with objcopy.
type Embedder struct {
	Run     command.Runner
	Objcopy string
}

// Embed places doc into the image at path, replacing an existing package
// note. objcopy writes a temporary image next to path which is read back
// and renamed over path only when it holds doc.
func (e *Embedder) Embed(ctx context.Context, path string, doc []byte) error {
	objcopy := e.Objcopy
	if objcopy == "" {
		objcopy = DefaultObjcopy
	}

	info, err := os.Stat(path)
	if err != nil {
		return diag.Wrap(diag.KindEmbed, err, "opening ELF image").At(path, 0)
	}
	f, err := elf.Open(path)
	if err != nil {
		return diag.Wrap(diag.KindEmbed, err, "opening ELF image").At(path, 0)
	}
	order := f.ByteOrder
	exists := f.Section(SectionName) != nil
	f.Close()

	dir := filepath.Dir(path)
	note, err := writeTemp(dir, ".note-package-*", Note(order, doc))
	if err != nil {
		return diag.Wrap(diag.KindEmbed, err, "writing note file")
	}
	defer os.Remove(note)
	out, err := writeTemp(dir, "."+filepath.Base(path)+"-*", nil)
	if err != nil {
		return diag.Wrap(diag.KindEmbed, err, "creating output image")
	}
	defer os.Remove(out)

	args := []string{"--add-section", SectionName + "=" + note,
		"--set-section-flags", SectionName + "=alloc,readonly"}
	if exists {
		args = []string{"--update-section", SectionName + "=" + note}
	}
	args = append(args, path, out)

	slog.Debug("embedding package metadata", "path", path, "replace", exists, "bytes", len(doc))
	if _, err := e.Run(ctx, dir, objcopy, args...); err != nil {
		return diag.Wrap(diag.KindEmbed, err, "objcopy rejected the package metadata section").At(path, 0)
	}

	got, err := readDocument(out)
	if err != nil {
		return diag.Wrap(diag.KindEmbed, err, "reading back the embedded section").At(path, 0)
	}
	if !bytes.Equal(got, doc) {
		return diag.New(diag.KindEmbed, "embedded section does not hold the written metadata").At(path, 0)
	}
	if err := os.Chmod(out, info.Mode().Perm()); err != nil {
		return diag.Wrap(diag.KindEmbed, err, "setting image mode").At(path, 0)
	}
	if err := os.Rename(out, path); err != nil {
		return diag.Wrap(diag.KindEmbed, err, "replacing ELF image").At(path, 0)
	}
	return nil
}

// writeTemp creates a file matching pattern in dir holding data and
// returns its name.
func writeTemp(dir, pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		return "", err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}
