// Package elfnote embeds a sealed metadata record into a task ELF image and
// extracts it back.
//
// The record travels inside the linker's package metadata note: a
// .note.package section holding one ELF note owned by "FDO" whose
// descriptor is a JSON document. The document carries the task fields the
// relocation tooling reads directly, plus the full serialized record in
// base64. Embedding goes through the linker (--package-metadata) or, for an
// already linked image, through objcopy.
package elfnote
