package phash

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestDistance(t *testing.T) {
	tests := []struct {
		name string
		a, b uint64
		want int
	}{
		{"identical", 0xFF, 0xFF, 0},
		{"all different", 0, ^uint64(0), 64},
		{"one bit", 0, 1, 1},
		{"two bits", 0, 3, 2},
		{"zero zero", 0, 0, 0},
		{"high bit", 1 << 63, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Distance(FromUint64(tt.a), FromUint64(tt.b))
			if err != nil {
				t.Fatalf("Distance(%x, %x) error: %v", tt.a, tt.b, err)
			}
			if got != tt.want {
				t.Errorf("Distance(%x, %x) = %d, want %d", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDistance_Symmetric(t *testing.T) {
	codes := []uint64{0, 1, 0xdeadbeefcafebabe, 0x0123456789abcdef, ^uint64(0)}
	for _, a := range codes {
		for _, b := range codes {
			ab, _ := Distance(FromUint64(a), FromUint64(b))
			ba, _ := Distance(FromUint64(b), FromUint64(a))
			if ab != ba {
				t.Errorf("Distance(%x, %x) = %d but Distance(%x, %x) = %d", a, b, ab, b, a, ba)
			}
		}
	}
}

func TestDistance_LengthMismatch(t *testing.T) {
	a := FromUint64(0)
	b := Code{0, 0, 0, 0}

	_, err := Distance(a, b)
	if !errors.Is(err, ErrLengthMismatch) {
		t.Fatalf("expected ErrLengthMismatch, got %v", err)
	}
	if Similar(a, b, 64) {
		t.Error("codes of different length must never be similar")
	}
}

func TestSimilar_Boundary(t *testing.T) {
	a := FromUint64(0)
	b := FromUint64(0x1f) // 5 bits

	if !Similar(a, b, 5) {
		t.Error("distance equal to threshold should be similar")
	}
	if Similar(a, b, 4) {
		t.Error("distance above threshold should not be similar")
	}
}

func TestCode_HexRoundTrip(t *testing.T) {
	c := FromUint64(0x00ff00ff00ff00ff)
	if got := c.String(); got != "00ff00ff00ff00ff" {
		t.Errorf("String() = %q", got)
	}

	data, err := json.Marshal(struct {
		H Code `json:"h"`
	}{c})
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"h":"00ff00ff00ff00ff"}` {
		t.Errorf("json = %s", data)
	}

	var back struct {
		H Code `json:"h"`
	}
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if v, ok := back.H.Uint64(); !ok || v != 0x00ff00ff00ff00ff {
		t.Errorf("decoded = %x (ok=%v)", v, ok)
	}
	if back.H.Bits() != 64 {
		t.Errorf("Bits() = %d, want 64", back.H.Bits())
	}
}

func TestParseHex_Invalid(t *testing.T) {
	if _, err := ParseHex("zz"); err == nil {
		t.Error("expected error for invalid hex")
	}
}
