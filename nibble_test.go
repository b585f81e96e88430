package mpf

import (
	"reflect"
	"testing"
)

func TestNibble_String(t *testing.T) {
	tests := []struct {
		value Nibble
		print string
	}{
		{Nibble(0), "0"},
		{Nibble(9), "9"},
		{Nibble(10), "a"},
		{Nibble(15), "f"},
		{Nibble(16), "?"},
		{Nibble(255), "?"},
	}
	for _, test := range tests {
		if got := test.value.String(); got != test.print {
			t.Errorf("Nibble(%d).String() = %q, want %q", test.value, got, test.print)
		}
	}
}

func TestCommonPrefixLength(t *testing.T) {
	tests := []struct {
		a, b []Nibble
		want int
	}{
		{nil, nil, 0},
		{[]Nibble{}, []Nibble{1}, 0},
		{[]Nibble{1}, []Nibble{}, 0},
		{[]Nibble{1}, []Nibble{1}, 1},
		{[]Nibble{1, 2}, []Nibble{1, 2}, 2},
		{[]Nibble{1, 2, 3}, []Nibble{1, 2, 4}, 2},
		{[]Nibble{1, 2, 3}, []Nibble{9, 2, 3}, 0},
	}
	for _, test := range tests {
		if got := commonPrefixLength(test.a, test.b); got != test.want {
			t.Errorf("commonPrefixLength(%v, %v) = %d, want %d", test.a, test.b, got, test.want)
		}
	}
}

func TestPackPrefix_RoundTrip(t *testing.T) {
	tests := [][]Nibble{
		{},
		{1},
		{1, 2},
		{1, 2, 3},
		{0xF, 0x0, 0xA, 0xB, 0xC},
	}
	for _, nibbles := range tests {
		packed := packPrefix(nibbles)
		got, consumed, err := unpackPrefix(packed)
		if err != nil {
			t.Fatalf("unpackPrefix(%v) returned error: %v", packed, err)
		}
		if consumed != len(packed) {
			t.Errorf("unpackPrefix consumed %d bytes, want %d", consumed, len(packed))
		}
		if !reflect.DeepEqual(got, nibbles) {
			if len(got) == 0 && len(nibbles) == 0 {
				continue
			}
			t.Errorf("round trip mismatch: got %v, want %v", got, nibbles)
		}
	}
}

func TestPackPrefix_OddLengthDisambiguatedByLengthByte(t *testing.T) {
	odd := packPrefix([]Nibble{0xA, 0xB, 0xC})
	even := packPrefix([]Nibble{0xA, 0xB, 0xC, 0x0})
	if odd[0] == even[0] {
		t.Fatalf("length bytes should differ between odd and even nibble counts")
	}
}

func TestUnpackPrefix_RejectsTruncatedInput(t *testing.T) {
	if _, _, err := unpackPrefix([]byte{5}); err != ErrCorruptNode {
		t.Errorf("expected ErrCorruptNode for truncated prefix, got %v", err)
	}
	if _, _, err := unpackPrefix(nil); err != ErrCorruptNode {
		t.Errorf("expected ErrCorruptNode for empty input, got %v", err)
	}
}
