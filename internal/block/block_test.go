package block

import "testing"

func TestSealZeroesSum(t *testing.T) {
	b := New()
	for i := 0; i < ChecksumOffset; i++ {
		b[i] = byte(i * 7)
	}
	Seal(b)
	if !Valid(b) {
		t.Fatalf("sealed block sum = %d, want 0", Sum(b))
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want byte
	}{
		{name: "empty", in: nil, want: 0x00},
		{name: "single", in: []byte{0x01}, want: 0xFF},
		{name: "wraps", in: []byte{0xFF, 0x02}, want: 0xFF},
		{name: "already zero", in: []byte{0x80, 0x80}, want: 0x00},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Checksum(tc.in); got != tc.want {
				t.Fatalf("Checksum = 0x%02X, want 0x%02X", got, tc.want)
			}
		})
	}
}

func TestSplitIgnoresTrailingBytes(t *testing.T) {
	blob := make([]byte, Size*2+5)
	blocks := Split(blob)
	if len(blocks) != 2 {
		t.Fatalf("Split returned %d blocks, want 2", len(blocks))
	}
	for i, b := range blocks {
		if len(b) != Size {
			t.Fatalf("block %d length = %d, want %d", i, len(b), Size)
		}
	}
}

func TestSealIgnoresShortSlices(t *testing.T) {
	b := []byte{0x01, 0x02}
	Seal(b)
	if b[0] != 0x01 || b[1] != 0x02 {
		t.Fatalf("Seal modified a short slice: %v", b)
	}
}
