// Package kconfig loads a resolved Kconfig output (.config) into a typed
// task configuration.
//
// The file is consumed as already resolved: one KEY=VALUE per line, with
// "# KEY is not set" for disabled options. Keys under CONFIG_TASK_ are
// validated against an embedded CUE schema; all other keys are kept as is.
package kconfig
