// Package store provides the SQLite-backed introspection cache.
//
// Toolchain providers cache the output of expensive build-system queries
// (cargo metadata) keyed by a hash of the inputs that determine it, so an
// entry is never stale: changed inputs produce a new key.
//
// # Table
//
//   - introspections: (kind, key) -> data, with a logical seq
//
// Ordering and eviction use seq (a logical clock), never timestamps. Each
// kind keeps at most MaxEntriesPerKind rows; Put evicts the lowest seq.
//
// # Connection
//
// The DSN sets WAL journaling, synchronous=NORMAL and a 5s busy timeout.
// Schema changes are numbered migrations tracked in PRAGMA user_version; a
// cache from a newer release is refused rather than downgraded.
//
// The cache is an optimization only. Callers treat every error as a miss.
package store
