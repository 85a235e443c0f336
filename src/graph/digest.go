package graph

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// DigestSize is the length in bytes of a Digest.
const DigestSize = 32

// Digest is a SHA256 value. Its text form is 64 lower-case hex characters.
type Digest [DigestSize]byte

// ZeroDigest is the all-zero digest. Its text form is 64 zeros.
var ZeroDigest Digest

// DigestFromBytes copies b into a Digest.
func DigestFromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != DigestSize {
		return d, fmt.Errorf("digest must be %d bytes, got %d", DigestSize, len(b))
	}
	copy(d[:], b)
	return d, nil
}

// ParseDigest decodes the hex form produced by Hex.
func ParseDigest(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, err
	}
	return DigestFromBytes(b)
}

// Bytes ...
func (d Digest) Bytes() []byte {
	return d[:]
}

// Hex ...
func (d Digest) Hex() string {
	return hex.EncodeToString(d[:])
}

// String ...
func (d Digest) String() string {
	return d.Hex()
}

// IsZero ...
func (d Digest) IsZero() bool {
	return d == ZeroDigest
}

// Less orders digests lexicographically.
func (d Digest) Less(o Digest) bool {
	return bytes.Compare(d[:], o[:]) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Digest) UnmarshalText(text []byte) error {
	parsed, err := ParseDigest(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
