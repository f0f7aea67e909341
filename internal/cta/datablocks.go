// Package cta encodes CTA-861 data blocks and packs them, together with
// detailed timing descriptors, into a revision 3 extension block.
package cta

import (
	"math"

	"example.com/edidgen/internal/link"
)

// Data block tag codes (bits 7..5 of the header byte).
const (
	TagAudio    byte = 0x01
	TagVideo    byte = 0x02
	TagVendor   byte = 0x03
	TagSpeaker  byte = 0x04
	TagExtended byte = 0x07
)

// Extended tag codes carried in the first payload byte of tag 7 blocks.
const (
	ExtVideoCapability byte = 0x00
	ExtColorimetry     byte = 0x05
	ExtHDRStatic       byte = 0x06
	ExtY420Capability  byte = 0x0F
)

// MaxPayload is the largest payload a data block header can describe.
const MaxPayload = 31

// MaxVideoCodes is the number of short video descriptors one VDB can hold.
const MaxVideoCodes = MaxPayload

// DataBlock prefixes data with its tag/length header, truncating it to the
// 31-byte limit.
func DataBlock(tag byte, data []byte) []byte {
	n := min(len(data), MaxPayload)
	out := make([]byte, 0, n+1)
	out = append(out, (tag&0x07)<<5|byte(n))
	return append(out, data[:n]...)
}

// VideoBlock is an encoded video data block and the code bookkeeping behind it.
type VideoBlock struct {
	Block   []byte
	Used    []int
	Dropped []int
	All     []int
}

// BuildVideoBlock lists preferred first, then codes in order, deduplicated
// and restricted to 1..127. Code 1 is always appended for baseline
// compatibility. Codes beyond the first 31 are reported in Dropped.
func BuildVideoBlock(preferred int, codes []int) *VideoBlock {
	seen := map[int]bool{}
	var all []int
	push := func(c int) {
		if c < 1 || c > 127 || seen[c] {
			return
		}
		seen[c] = true
		all = append(all, c)
	}
	push(preferred)
	for _, c := range codes {
		push(c)
	}
	push(1)

	used := all
	var dropped []int
	if len(all) > MaxVideoCodes {
		used = all[:MaxVideoCodes]
		dropped = all[MaxVideoCodes:]
	}
	payload := make([]byte, len(used))
	for i, c := range used {
		payload[i] = byte(c)
	}
	return &VideoBlock{
		Block:   DataBlock(TagVideo, payload),
		Used:    used,
		Dropped: dropped,
		All:     all,
	}
}

// AudioBlocks returns an LPCM 2-channel short audio descriptor (32/44.1/48
// kHz, 16/20/24-bit) and a front left/right speaker allocation.
func AudioBlocks() [][]byte {
	return [][]byte{
		DataBlock(TagAudio, []byte{0x09, 0x07, 0x07}),
		DataBlock(TagSpeaker, []byte{0x01, 0x00, 0x00}),
	}
}

// VideoCapabilityBlock declares selectable RGB/YCC quantisation and
// underscan behaviour for all formats.
func VideoCapabilityBlock() []byte {
	return DataBlock(TagExtended, []byte{ExtVideoCapability, 0xCA})
}

// HDRBlocks returns the BT.2020 colorimetry block and an HDR static
// metadata block advertising SMPTE ST 2084.
func HDRBlocks() [][]byte {
	return [][]byte{
		DataBlock(TagExtended, []byte{ExtColorimetry, 0xC0, 0x00}),
		DataBlock(TagExtended, []byte{ExtHDRStatic, 0x04, 0x01}),
	}
}

// HDMIVSDB builds the HDMI Licensing vendor block (OUI 00-0C-03) with
// physical address 0.0.0.0. maxTMDSMHz is encoded in 5 MHz units, capped
// at 340 MHz.
func HDMIVSDB(maxTMDSMHz int, deepColor bool) []byte {
	maxClock := min(68, int(math.Ceil(float64(maxTMDSMHz)/5)))
	var flags byte
	if deepColor {
		flags |= 0x18 // DC_30bit | DC_Y444
	}
	return DataBlock(TagVendor, []byte{0x03, 0x0C, 0x00, 0x00, 0x00, flags, byte(maxClock)})
}

// HFParams configures the HDMI Forum vendor block.
type HFParams struct {
	MaxTMDSMHz   int
	VRR          *link.VRRRange
	FRLRate      int
	DSC          bool
	DSCMaxSlices int
	DSC10bpc     bool
}

var sliceCodes = map[int]byte{1: 0, 2: 1, 4: 3, 6: 4, 8: 5, 10: 6, 12: 7, 16: 15}

// HFVSDB builds the HDMI Forum vendor block (OUI C4-5D-D8, version 1) with
// SCDC present. VRR bytes follow when VRR or DSC is set; DSC 1.2 bytes
// follow when DSC is set.
func HFVSDB(p HFParams) []byte {
	var maxClock byte
	if p.MaxTMDSMHz > 0 {
		tmds := min(link.MaxTMDSMHz, p.MaxTMDSMHz)
		maxClock = byte(math.Ceil(float64(tmds) / 5))
	}
	frl := byte(p.FRLRate&0x0f) << 4
	data := []byte{0xD8, 0x5D, 0xC4, 0x01, maxClock, 0x80, frl}

	if p.VRR != nil || p.DSC {
		var packed, vmax byte
		if p.VRR != nil {
			lo := max(link.VRRMinFloor, min(link.VRRMinCeil, p.VRR.Min))
			hi := max(link.VRRMaxFloor, min(link.VRRMaxCeil, p.VRR.Max))
			packed = byte(lo&0x3f) | byte((hi>>8)&0x03)<<6
			vmax = byte(hi)
		}
		data = append(data, 0x00, packed, vmax)
	}

	if p.DSC {
		flags := byte(0x80)
		if p.DSC10bpc {
			flags |= 0x01
		}
		slices := max(1, min(16, p.DSCMaxSlices))
		code, ok := sliceCodes[slices]
		if !ok {
			code = 1
		}
		data = append(data, flags, frl|code&0x0f, 0x00)
	}
	return DataBlock(TagVendor, data)
}

// Y420CapabilityMap marks the VDB positions whose code only fits the link
// at 4:2:0. It returns nil when no position is marked.
func Y420CapabilityMap(used []int, needsY420 func(code int) bool) []byte {
	bitmap := make([]byte, (len(used)+7)/8)
	marked := false
	for i, c := range used {
		if !needsY420(c) {
			continue
		}
		bitmap[i/8] |= 1 << (i % 8)
		marked = true
	}
	if !marked {
		return nil
	}
	return DataBlock(TagExtended, append([]byte{ExtY420Capability}, bitmap...))
}
