// Package block holds the helpers shared by every 128-byte EDID block
// encoder: size constants, extension tags and the two's-complement checksum.
package block

const (
	// Size is the length of the root block and of every extension block.
	Size = 128
	// ChecksumOffset is the index of the checksum byte inside a block.
	ChecksumOffset = Size - 1
)

// Extension tags stored in byte 0 of an extension block.
const (
	TagCTA       byte = 0x02
	TagDisplayID byte = 0x70
	TagBlockMap  byte = 0xF0
)

// Sum returns the byte sum of b modulo 256.
func Sum(b []byte) byte {
	var sum byte
	for _, v := range b {
		sum += v
	}
	return sum
}

// Checksum returns the value that brings the byte sum of b to zero.
func Checksum(b []byte) byte {
	return ^Sum(b) + 1
}

// New returns a zeroed block.
func New() []byte {
	return make([]byte, Size)
}

// Seal stores the checksum of bytes 0..126 in byte 127.
func Seal(b []byte) {
	if len(b) != Size {
		return
	}
	b[ChecksumOffset] = 0
	b[ChecksumOffset] = Checksum(b[:ChecksumOffset])
}

// Valid reports whether b is a full block whose bytes sum to zero.
func Valid(b []byte) bool {
	return len(b) == Size && Sum(b) == 0
}

// Split cuts blob into consecutive blocks. Trailing bytes that do not form
// a whole block are ignored.
func Split(blob []byte) [][]byte {
	n := len(blob) / Size
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, blob[i*Size:(i+1)*Size])
	}
	return out
}
