// Package diag defines the error taxonomy shared by every pipeline stage.
//
// All stage failures are reported as *Error values. Every kind is terminal
// for the current build invocation; nothing in shieldmeta retries.
package diag
