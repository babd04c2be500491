package protocol

import "testing"

func TestCRC16KnownVector(t *testing.T) {
	// check value for poly 0x1021, init 0xFFFF, final XOR 0xFFFF (not
	// reflected) over the standard "123456789" check string.
	got := CRC16([]byte("123456789"))
	want := uint16(0xD64E)
	if got != want {
		t.Errorf("CRC16(123456789) = 0x%04X, want 0x%04X", got, want)
	}
}

func TestCRC16RoundTrip(t *testing.T) {
	cases := [][]byte{
		{},
		{0x00},
		{0x01, 0x02, 0x03, 0x04, 0x05},
		make([]byte, 300),
	}
	for _, c := range cases {
		appended := AppendCRC16(append([]byte{}, c...))
		v, err := ExtractVerifyCRC16(appended)
		if err != nil {
			t.Fatalf("ExtractVerifyCRC16 error: %v", err)
		}
		if !v.Valid {
			t.Errorf("expected valid CRC for %x", c)
		}
		if len(v.Data) != len(c) {
			t.Errorf("data length = %d, want %d", len(v.Data), len(c))
		}
	}
}

func TestCRC16DetectsCorruption(t *testing.T) {
	data := []byte("hello data link layer")
	appended := AppendCRC16(append([]byte{}, data...))
	appended[3] ^= 0xFF // flip a bit in the data region

	v, err := ExtractVerifyCRC16(appended)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Valid {
		t.Error("expected corruption to be detected")
	}
}

func TestExtractVerifyCRC16TooShort(t *testing.T) {
	if _, err := ExtractVerifyCRC16([]byte{0x01}); err == nil {
		t.Error("expected error for buffer shorter than CRC size")
	}
}

func BenchmarkCRC16(b *testing.B) {
	data := make([]byte, 1024)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		CRC16(data)
	}
}
