// Package testutil provides fixtures and test doubles shared by package tests:
// a sample task (configuration, hardware, toolchain, record), a recording
// command runner, a fixed build id generator and a minimal ELF writer.
package testutil
