// Package pipeline runs one metadata build: it loads the configuration, the
// hardware description and the toolchain facts concurrently, joins on all
// three, binds the task's hardware and synthesizes the record.
//
// A run either returns a complete Result or an error; nothing is produced
// from partial inputs.
package pipeline
