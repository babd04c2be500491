package protocol

import (
	"bytes"
	"testing"
)

func TestStuffUnstuffRoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x01, 0x02, 0x03},
		{FLAG},
		{ESC},
		{FLAG, ESC, FLAG, ESC},
		bytes.Repeat([]byte{FLAG, ESC, 0x00, 0xFF}, 20),
	}

	for _, c := range cases {
		stuffed := Stuff(c)
		got, err := Unstuff(stuffed)
		if err != nil {
			t.Fatalf("Unstuff(Stuff(%x)) returned error: %v", c, err)
		}
		if !bytes.Equal(got, c) {
			t.Errorf("round trip mismatch: want %x, got %x", c, got)
		}
	}
}

func TestStuffNeverContainsBareFlag(t *testing.T) {
	data := bytes.Repeat([]byte{FLAG, ESC, 0x10, 0x7F}, 50)
	stuffed := Stuff(data)
	for i, b := range stuffed {
		if b == FLAG {
			t.Fatalf("stuffed output contains bare FLAG at offset %d", i)
		}
	}
}

func TestUnstuffBareFlagFails(t *testing.T) {
	if _, err := Unstuff([]byte{0x01, FLAG, 0x02}); err == nil {
		t.Error("expected error for bare flag byte")
	}
}

func TestUnstuffTrailingEscapeFails(t *testing.T) {
	if _, err := Unstuff([]byte{0x01, ESC}); err == nil {
		t.Error("expected error for trailing escape")
	}
}

func TestUnstuffInvalidEscapeFails(t *testing.T) {
	if _, err := Unstuff([]byte{ESC, 0x99}); err == nil {
		t.Error("expected error for invalid escape sequence")
	}
}

func TestStuffWorstCaseSize(t *testing.T) {
	data := bytes.Repeat([]byte{FLAG}, 10)
	stuffed := Stuff(data)
	if len(stuffed) != 2*len(data) {
		t.Errorf("worst case size = %d, want %d", len(stuffed), 2*len(data))
	}
}
