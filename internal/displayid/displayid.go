// Package displayid builds DisplayID 1.3 extension blocks carrying
// product identification, display parameters, a display interface block
// and Type I detailed timings.
package displayid

import (
	"math"

	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/link"
	"example.com/edidgen/internal/timing"
)

// Version is the DisplayID structure version written in byte 1.
const Version = 0x13

// MaxPayload is the data bytes available between the 5-byte section header
// and the section checksum, leaving byte 127 for the EDID checksum.
const MaxPayload = 121

// Data block tags.
const (
	TagProductID  byte = 0x00
	TagParameters byte = 0x01
	TagTimingI    byte = 0x03
	TagInterface  byte = 0x0F
)

// Product types written in byte 3 of the first section.
const (
	ProductExtension byte = 0x00
	ProductMonitor   byte = 0x03
)

// TimingEntrySize is the length of one Type I detailed timing.
const TimingEntrySize = 20

const headerSize = 3

// DataBlock prefixes payload with the tag, revision and length header.
func DataBlock(tag, revision byte, payload []byte) []byte {
	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, tag, revision, byte(len(payload)))
	return append(out, payload...)
}

// ProductIDBlock identifies the product: a zero OUI, product code 1,
// serial 1, week 1 of year, and up to 32 characters of name.
func ProductIDBlock(name string, year int) []byte {
	if len(name) > 32 {
		name = name[:32]
	}
	y := max(0, min(255, year-2000))
	payload := []byte{
		0x00, 0x00, 0x00,
		0x01, 0x00,
		0x01, 0x00, 0x00, 0x00,
		0x01,
		byte(y),
		byte(len(name)),
	}
	payload = append(payload, name...)
	return DataBlock(TagProductID, 0x00, payload)
}

// ParametersBlock reports the native pixel format of the preferred mode
// and the supported bit depth (8 or 10 bpc).
func ParametersBlock(preferred timing.Mode, deepColor bool) []byte {
	nibble := byte(7)
	if deepColor {
		nibble = 9
	}
	w, h := preferred.Width, preferred.Height
	payload := []byte{
		0x00, 0x00, 0x00, 0x00,
		byte(w), byte(w >> 8),
		byte(h), byte(h >> 8),
		0x00, 0xFF, 0x00,
		nibble<<4 | nibble,
	}
	return DataBlock(TagParameters, 0x00, payload)
}

// InterfaceBlock describes an HDMI interface at the resolved version with
// RGB/YCbCr 4:4:4 and 4:2:2 depth flags.
func InterfaceBlock(deepColor bool, version link.Version) []byte {
	f444, f422 := byte(0x02), byte(0x01)
	if deepColor {
		f444, f422 = 0x06, 0x03
	}
	var v byte
	switch version {
	case link.HDMI21:
		v = 0x21
	case link.HDMI20:
		v = 0x20
	default:
		v = 0x14
	}
	payload := []byte{0x71, v, f444, f444, f422, 0x00, 0x00, 0x00, 0x00, 0x00}
	return DataBlock(TagInterface, 0x00, payload)
}

// AspectCode maps a mode's aspect to the Type I aspect field.
func AspectCode(m timing.Mode) byte {
	switch m.Aspect() {
	case "1:1":
		return 0
	case "5:4":
		return 1
	case "4:3":
		return 2
	case "15:9":
		return 3
	case "16:9":
		return 4
	case "16:10":
		return 5
	case "64:27":
		return 6
	case "256:135":
		return 7
	default:
		return 8
	}
}

// Entry is a timing offered for DisplayID placement.
type Entry struct {
	Key    string
	Mode   timing.Mode
	Timing timing.Timing
}

func minusOne(v int) int {
	return max(1, v) - 1
}

func put16(b []byte, v int) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putPorch(b []byte, v int, positive bool) {
	enc := minusOne(v)
	b[0] = byte(enc)
	b[1] = byte(enc>>8) & 0x7f
	if positive {
		b[1] |= 0x80
	}
}

// TimingEntry encodes e as a 20-byte Type I timing. Every count is stored
// minus one; the clock is in 10 kHz units minus one.
func TimingEntry(e Entry, preferred bool) []byte {
	t := e.Timing
	out := make([]byte, TimingEntrySize)

	clock := max(1, int(math.Floor(float64(t.DotClockKHz)/10+0.5))) - 1
	out[0] = byte(clock)
	out[1] = byte(clock >> 8)
	out[2] = byte(clock >> 16)

	flags := AspectCode(e.Mode) & 0x0f
	if preferred {
		flags |= 0x80
	}
	out[3] = flags

	put16(out[4:], minusOne(t.HActive))
	put16(out[6:], minusOne(t.HBlank()))
	putPorch(out[8:], t.HFrontPorch(), t.HSyncPos)
	put16(out[10:], minusOne(t.HSyncWidth()))
	put16(out[12:], minusOne(t.VActive))
	put16(out[14:], minusOne(t.VBlank()))
	putPorch(out[16:], t.VFrontPorch(), t.VSyncPos)
	put16(out[18:], minusOne(t.VSyncWidth()))
	return out
}

// TimingBlock wraps the entries in a Type I timing data block.
func TimingBlock(entries []Entry, preferredKey string) []byte {
	payload := make([]byte, 0, len(entries)*TimingEntrySize)
	for _, e := range entries {
		payload = append(payload, TimingEntry(e, preferredKey != "" && e.Key == preferredKey)...)
	}
	return DataBlock(TagTimingI, 0x00, payload)
}

// Section assembles one extension block. It returns nil when the combined
// data blocks exceed MaxPayload.
func Section(productType byte, extensionCount int, dataBlocks ...[]byte) []byte {
	var data []byte
	for _, db := range dataBlocks {
		data = append(data, db...)
	}
	if len(data) > MaxPayload {
		return nil
	}
	b := block.New()
	b[0] = block.TagDisplayID
	b[1] = Version
	b[2] = byte(len(data))
	b[3] = productType
	b[4] = byte(extensionCount)
	copy(b[5:], data)
	idx := 5 + len(data)
	b[idx] = block.Checksum(b[1:idx])
	block.Seal(b)
	return b
}

// SectionChecksumValid reports whether a DisplayID section's internal
// checksum matches its declared length.
func SectionChecksumValid(b []byte) bool {
	if len(b) != block.Size || b[0] != block.TagDisplayID {
		return false
	}
	n := int(b[2])
	if n > MaxPayload {
		return false
	}
	return block.Sum(b[1:6+n]) == 0
}
