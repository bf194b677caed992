package phash

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
)

// ErrLengthMismatch is returned when two codes of different bit length
// are compared.
var ErrLengthMismatch = errors.New("phash: code length mismatch")

// Code is a fixed-length perceptual hash, most significant bit first.
// The zero value is an empty code.
type Code []byte

// FromUint64 packs a 64-bit hash into a Code.
func FromUint64(v uint64) Code {
	c := make(Code, 8)
	binary.BigEndian.PutUint64(c, v)
	return c
}

// ParseHex decodes a hex string produced by Code.String.
func ParseHex(s string) (Code, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("phash: parse %q: %w", s, err)
	}
	return Code(b), nil
}

// Bits returns the bit length of the code.
func (c Code) Bits() int { return len(c) * 8 }

// Empty reports whether the code carries no bits.
func (c Code) Empty() bool { return len(c) == 0 }

// Uint64 returns the code as an integer. It is only meaningful for
// 64-bit codes.
func (c Code) Uint64() (uint64, bool) {
	if len(c) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(c), true
}

func (c Code) String() string { return hex.EncodeToString(c) }

// MarshalText encodes the code as lowercase hex.
func (c Code) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText decodes a hex-encoded code.
func (c *Code) UnmarshalText(text []byte) error {
	b, err := ParseHex(string(text))
	if err != nil {
		return err
	}
	*c = b
	return nil
}

// Distance returns the Hamming distance between two codes. Codes of
// different lengths have no meaningful distance and yield
// ErrLengthMismatch.
func Distance(a, b Code) (int, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d bits", ErrLengthMismatch, a.Bits(), b.Bits())
	}
	d := 0
	for i := range a {
		d += bits.OnesCount8(a[i] ^ b[i])
	}
	return d, nil
}

// Similar returns true if the Hamming distance between two codes
// is less than or equal to the threshold. Mismatched codes are never similar.
func Similar(a, b Code, threshold int) bool {
	d, err := Distance(a, b)
	return err == nil && d <= threshold
}
