// Package meta provides the package metadata data model and its canonical
// binary layout.
//
// This package contains the types exchanged between pipeline stages and the
// codec for the embedded record. All other internal packages import meta;
// meta imports only diag.
//
// Key layout constraints:
//   - All integers are little-endian and fixed width
//   - Strings are NFC normalized and u32 length-prefixed
//   - Sections are u32 size-prefixed; the size includes its own prefix
//   - The header checksum covers the full record with the checksum field zeroed
package meta
