package meta

import (
	"crypto/sha256"
	"hash/crc32"
)

// Domain prefixes for section digests.
// Version suffix enables future algorithm migration.
const (
	DomainConfig   = "outpost/config/v1"
	DomainHardware = "outpost/hardware/v1"
	DomainRecord   = "outpost/record/v1"
)

// hashWithDomain computes SHA-256 hash with domain separation.
// Format: SHA256(domain + 0x00 + data)
func hashWithDomain(domain string, data []byte) Digest {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	var d Digest
	copy(d[:], h.Sum(nil))
	return d
}

// ConfigDigest computes the digest of an encoded configuration body.
func ConfigDigest(body []byte) Digest {
	return hashWithDomain(DomainConfig, body)
}

// HardwareDigest computes the digest of an encoded hardware body.
func HardwareDigest(body []byte) Digest {
	return hashWithDomain(DomainHardware, body)
}

// RecordDigest identifies a serialized record.
func RecordDigest(raw []byte) Digest {
	return hashWithDomain(DomainRecord, raw)
}

// Checksum computes the header checksum of a serialized record: CRC-32
// (IEEE) over all bytes with the checksum field treated as zero.
func Checksum(raw []byte) uint32 {
	if len(raw) < HeaderSize {
		return crc32.ChecksumIEEE(raw)
	}
	h := crc32.NewIEEE()
	h.Write(raw[:checksumOffset])
	h.Write([]byte{0, 0, 0, 0})
	h.Write(raw[HeaderSize:])
	return h.Sum32()
}
