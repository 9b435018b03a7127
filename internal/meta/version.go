package meta

// Version constants for the record layout and the tool.
const (
	// FormatVersion is the record layout version written by this tool.
	FormatVersion uint16 = 1

	// MaxSupportedVersion is the newest record layout this tool can read.
	MaxSupportedVersion uint16 = FormatVersion

	// ToolVersion is the shieldmeta release.
	ToolVersion = "0.1.0"
)

// HeaderSize is the encoded size of the record header:
// format_version (u16), length (u32), checksum (u32).
const HeaderSize = 10

// checksumOffset is the byte offset of the checksum field in the header.
const checksumOffset = 6
