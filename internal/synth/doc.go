// Package synth merges a task configuration, a hardware descriptor and the
// toolchain facts into one sealed package metadata record.
//
// Synthesis is all-or-nothing: every input is validated on its own, then
// against the others, and the serialized record is decoded back and compared
// before it is returned. On any failure no record and no bytes are returned.
//
// Errors:
//   - diag.KindConsistency: cross-validation failed (architecture, memory
//     domain, region fit, peripheral overlap)
//   - diag.KindSerialization: the record did not survive its own round trip
//   - the loaders' kinds when an input breaks its own invariants
package synth
