package timing

// DTDSize is the length of a detailed timing descriptor.
const DTDSize = 18

// MaxDTDPixelClockKHz is the largest clock a DTD can carry (16 bits of
// 10 kHz units).
const MaxDTDPixelClockKHz = 655350

// Field widths of a detailed timing descriptor.
const (
	maxDTDCount      = 1<<12 - 1 // active and blanking
	maxDTDHPorchSync = 1<<10 - 1 // horizontal front porch and sync width
	maxDTDVPorchSync = 1<<6 - 1  // vertical front porch and sync width
)

// FitsDTD reports whether t can be encoded as a detailed timing descriptor:
// the clock and every count must fit its field without truncation.
func FitsDTD(t Timing) bool {
	if t.DotClockKHz <= 0 || t.DotClockKHz > MaxDTDPixelClockKHz {
		return false
	}
	in := func(v, limit int) bool { return v >= 0 && v <= limit }
	return in(t.HActive, maxDTDCount) && in(t.HBlank(), maxDTDCount) &&
		in(t.VActive, maxDTDCount) && in(t.VBlank(), maxDTDCount) &&
		in(t.HFrontPorch(), maxDTDHPorchSync) && in(t.HSyncWidth(), maxDTDHPorchSync) &&
		in(t.VFrontPorch(), maxDTDVPorchSync) && in(t.VSyncWidth(), maxDTDVPorchSync)
}

// EncodeDTD packs t into the 18-byte detailed timing descriptor layout:
// little-endian clock, 12-bit active/blank pairs, then porch and sync
// fields split across the shared nibble bytes. Image size and border are
// left zero; byte 17 marks digital separate sync with t's polarities.
func EncodeDTD(t Timing) []byte {
	hActive := t.HActive
	hBlank := t.HBlank()
	vActive := t.VActive
	vBlank := t.VBlank()
	hfp := t.HFrontPorch()
	hsw := t.HSyncWidth()
	vfp := t.VFrontPorch()
	vsw := t.VSyncWidth()

	clock := (t.DotClockKHz + 5) / 10

	d := make([]byte, DTDSize)
	d[0] = byte(clock)
	d[1] = byte(clock >> 8)
	d[2] = byte(hActive)
	d[3] = byte(hBlank)
	d[4] = byte((hActive>>8)<<4) | byte((hBlank>>8)&0x0f)
	d[5] = byte(vActive)
	d[6] = byte(vBlank)
	d[7] = byte((vActive>>8)<<4) | byte((vBlank>>8)&0x0f)
	d[8] = byte(hfp)
	d[9] = byte(hsw)
	d[10] = byte((vfp&0x0f)<<4) | byte(vsw&0x0f)
	d[11] = byte((hfp>>8)&0x03)<<6 |
		byte((hsw>>8)&0x03)<<4 |
		byte((vfp>>4)&0x03)<<2 |
		byte((vsw>>4)&0x03)

	flags := byte(0x10)
	if t.VSyncPos {
		flags |= 0x08
	}
	if t.HSyncPos {
		flags |= 0x04
	}
	d[17] = flags
	return d
}
