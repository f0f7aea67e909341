package edid

import (
	"math"
	"strings"

	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/timing"
)

// Header is the fixed 8-byte EDID magic.
var Header = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

const (
	DefaultVendor = "GSS"
	DefaultName   = "edid.build"
)

// Descriptor tags.
const (
	descName  byte = 0xFC
	descRange byte = 0xFD
	descDummy byte = 0x10
)

// Range is the display range limits descriptor content.
type Range struct {
	MinVHz      int `json:"minVHz"`
	MaxVHz      int `json:"maxVHz"`
	MinHKHz     int `json:"minHKHz"`
	MaxHKHz     int `json:"maxHKHz"`
	MaxClockMHz int `json:"maxClockMHz"`
}

// ManufacturerID packs a three letter PNP id into two big-endian bytes.
// Short codes are padded with 'X' and letters outside A-Z are clamped.
func ManufacturerID(code string) [2]byte {
	code = strings.ToUpper(code)
	for len(code) < 3 {
		code += "X"
	}
	var c [3]int
	for i := 0; i < 3; i++ {
		c[i] = max(1, min(26, int(code[i])-'A'+1))
	}
	packed := c[0]<<10 | c[1]<<5 | c[2]
	return [2]byte{byte(packed >> 8), byte(packed)}
}

// chromaticity returns bytes 25..34 for sRGB primaries and D65 white.
func chromaticity() []byte {
	pts := [][2]float64{{0.64, 0.33}, {0.30, 0.60}, {0.15, 0.06}, {0.3127, 0.329}}
	var v [8]int
	for i, p := range pts {
		v[2*i] = int(math.Floor(p[0]*1024 + 0.5))
		v[2*i+1] = int(math.Floor(p[1]*1024 + 0.5))
	}
	out := make([]byte, 10)
	out[0] = byte((v[0]&3)<<6 | (v[1]&3)<<4 | (v[2]&3)<<2 | v[3]&3)
	out[1] = byte((v[4]&3)<<6 | (v[5]&3)<<4 | (v[6]&3)<<2 | v[7]&3)
	for i := range v {
		out[2+i] = byte(v[i] >> 2)
	}
	return out
}

func descriptor(tag byte, payload []byte) []byte {
	d := make([]byte, timing.DTDSize)
	d[3] = tag
	copy(d[5:], payload)
	return d
}

func nameDescriptor(name string) []byte {
	if len(name) > 12 {
		name = name[:12]
	}
	p := []byte(strings.Repeat(" ", 13))
	copy(p, name)
	p[len(name)] = 0x0A
	return descriptor(descName, p)
}

func rangeDescriptor(r Range) []byte {
	clock := min(255, int(math.Ceil(float64(r.MaxClockMHz)/10)))
	p := []byte{
		byte(r.MinVHz), byte(r.MaxVHz), byte(r.MinHKHz), byte(r.MaxHKHz), byte(clock),
		0x00, 0x0A, 0x20, 0x20, 0x20, 0x20, 0x20, 0x20,
	}
	return descriptor(descRange, p)
}

// BaseParams is the input to BuildBase.
type BaseParams struct {
	Vendor     string
	Name       string
	Year       int
	Preferred  []byte
	Range      Range
	Extensions int
}

// BuildBase assembles the 128-byte EDID 1.3 root block.
func BuildBase(p BaseParams) []byte {
	b := block.New()
	copy(b, Header)
	id := ManufacturerID(p.Vendor)
	b[8], b[9] = id[0], id[1]
	b[10] = 0x01 // product code
	b[12] = 0x01 // serial
	b[16] = 1
	b[17] = byte(max(0, min(255, p.Year-1990)))
	b[18] = 0x01
	b[19] = 0x03
	b[20] = 0x80 // digital input
	b[23] = 0x78 // gamma 2.2
	b[24] = 0x07 // RGB 4:4:4, sRGB default, preferred timing in DTD 1
	copy(b[25:], chromaticity())
	for i := 38; i < 54; i++ {
		b[i] = 0x01
	}
	copy(b[54:], p.Preferred)
	copy(b[72:], rangeDescriptor(p.Range))
	copy(b[90:], nameDescriptor(p.Name))
	copy(b[108:], descriptor(descDummy, nil))
	b[126] = byte(p.Extensions)
	block.Seal(b)
	return b
}

// blockMapSlots is how many extension tags one block map can list.
const blockMapSlots = 126

// MaxExtensions is the most extension blocks an EDID may carry: one block
// map and the blocks it lists.
const MaxExtensions = 1 + blockMapSlots

// BuildBlockMap lists each extension tag from byte 1.
func BuildBlockMap(tags []byte) []byte {
	b := block.New()
	b[0] = block.TagBlockMap
	for i := 0; i < len(tags) && i < blockMapSlots; i++ {
		b[1+i] = tags[i]
	}
	block.Seal(b)
	return b
}
