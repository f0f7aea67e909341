package cta

import (
	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/timing"
)

// Revision is the CTA-861 extension revision written in byte 1.
const Revision = 0x03

// DataStart is the offset of the first data block.
const DataStart = 4

// Header flag bits in byte 3.
const (
	FlagUnderscan byte = 0x80
	FlagAudio     byte = 0x40
	FlagYCC444    byte = 0x20
	FlagYCC422    byte = 0x10
)

// Block is a packed extension and what made it in.
type Block struct {
	Bytes      []byte
	DataBlocks int
	DTDs       int
	DTDOffset  int
}

// Build packs dataBlocks in order from byte 4, stopping at the first block
// that would reach the checksum byte, then fills the rest with as many
// 18-byte dtds as fit. native is the count of native detailed timings
// reported in byte 3, limited to the DTDs included.
func Build(dataBlocks [][]byte, dtds [][]byte, audio bool, native int) Block {
	b := block.New()
	b[0] = block.TagCTA
	b[1] = Revision

	offset := DataStart
	included := 0
	for _, db := range dataBlocks {
		if offset+len(db) >= block.ChecksumOffset {
			break
		}
		copy(b[offset:], db)
		offset += len(db)
		included++
	}
	b[2] = byte(offset)

	maxDTDs := (block.ChecksumOffset - offset) / timing.DTDSize
	n := min(len(dtds), max(0, maxDTDs))

	flags := FlagUnderscan | FlagYCC444 | FlagYCC422
	if audio {
		flags |= FlagAudio
	}
	b[3] = flags | byte(min(native, n)&0x0f)

	pos := offset
	for _, d := range dtds[:n] {
		copy(b[pos:], d)
		pos += timing.DTDSize
	}
	block.Seal(b)
	return Block{Bytes: b, DataBlocks: included, DTDs: n, DTDOffset: offset}
}
