package meta

import (
	"crypto/sha256"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashWithDomainSeparation(t *testing.T) {
	data := []byte("payload")
	assert.NotEqual(t, ConfigDigest(data), HardwareDigest(data))

	want := sha256.Sum256(append([]byte(DomainConfig+"\x00"), data...))
	assert.Equal(t, Digest(want), ConfigDigest(data))
}

func TestDigestString(t *testing.T) {
	var d Digest
	d[0] = 0xab
	assert.Equal(t, "ab"+repeat("00", 31), d.String())

	text, err := d.MarshalText()
	assert.NoError(t, err)
	assert.Equal(t, d.String(), string(text))
}

func TestChecksumIgnoresChecksumField(t *testing.T) {
	raw := []byte{1, 0, 12, 0, 0, 0, 0xaa, 0xbb, 0xcc, 0xdd, 0x42, 0x43}
	zeroed := []byte{1, 0, 12, 0, 0, 0, 0, 0, 0, 0, 0x42, 0x43}

	assert.Equal(t, crc32.ChecksumIEEE(zeroed), Checksum(raw))
}

func repeat(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
