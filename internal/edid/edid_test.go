package edid

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/cta"
	"example.com/edidgen/internal/link"
	"example.com/edidgen/internal/timing"
	"example.com/edidgen/internal/vic"
)

func fixedGenerator(t *testing.T) *Generator {
	t.Helper()
	return NewGenerator(Options{Now: func() time.Time {
		return time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	}})
}

func mode(w, h, r int) timing.Mode {
	return timing.Mode{Width: w, Height: h, Refresh: r}
}

func requireWellFormed(t *testing.T, res *Result) {
	t.Helper()
	require.NotEmpty(t, res.Bytes)
	require.Zero(t, len(res.Bytes)%block.Size)
	blocks := block.Split(res.Bytes)
	require.Equal(t, len(blocks)-1, int(res.Bytes[126]))
	for i, b := range blocks {
		assert.True(t, block.Valid(b), "block %d checksum", i)
	}
	assert.Equal(t, Header, res.Bytes[:8])
}

func TestScenarioSingleCTA(t *testing.T) {
	res := fixedGenerator(t).Generate(Request{
		DefaultMode: mode(1920, 1080, 60),
		Modes:       []timing.Mode{mode(1280, 720, 60)},
		Audio:       true,
	})
	requireWellFormed(t, res)

	assert.Len(t, res.Bytes, 256)
	assert.Equal(t, byte(block.TagCTA), res.Bytes[128])
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Valid)
	assert.Equal(t, link.HDMI14, res.Metadata.HDMIVersion)
	assert.Nil(t, res.Metadata.DisplayID)
	assert.Nil(t, res.Metadata.MaxTMDSHFMHz)
	assert.Equal(t, []timing.Mode{mode(1920, 1080, 60), mode(1280, 720, 60)}, res.AdvertisedModes)
	assert.Equal(t, res.AdvertisedModes, res.CTAModes)

	// Audio flag and the VDB lead with the default mode's code.
	assert.NotZero(t, res.Bytes[128+3]&cta.FlagAudio)
	assert.Equal(t, []byte{0x43, 16, 4, 1}, res.Bytes[132:136])

	// Preferred DTD is CVT-RB 1080p60 at 138.5 MHz.
	assert.Equal(t, []byte{0x1A, 0x36}, res.Bytes[54:56])
	assert.Equal(t, byte(2024-1990), res.Bytes[17])

	assert.Equal(t, Range{MinVHz: 59, MaxVHz: 60, MinHKHz: 31, MaxHKHz: 68, MaxClockMHz: 149}, res.Metadata.Range)
	assert.Equal(t, []string{
		"Preferred timing: 1920x1080 @ 60Hz (DTD)",
		"CTA modes: 1920x1080 @ 60Hz, 1280x720 @ 60Hz",
		"DisplayID modes: None",
		"CTA extension: Audio",
		"Color depth: 8-bit",
		"VRR: Off",
		"Required link: HDMI 1.4",
		"FRL: Not advertised",
		"DSC: Off",
		"Validation: OK",
	}, res.Summary)
}

func TestScenarioDeepColorHDR(t *testing.T) {
	res := fixedGenerator(t).Generate(Request{
		DefaultMode: mode(3840, 2160, 60),
		DeepColor:   true,
		HDR:         true,
	})
	requireWellFormed(t, res)

	assert.Empty(t, res.Warnings)
	assert.NotEqual(t, link.HDMI14, res.Metadata.HDMIVersion)
	ext := res.Bytes[128:256]
	for _, db := range cta.HDRBlocks() {
		assert.True(t, bytes.Contains(ext[:ext[2]], db), "HDR block % x missing", db)
	}
	assert.Contains(t, res.Summary, "CTA extension: No audio + HDR10")
	assert.Contains(t, res.Summary, "Color depth: 10-bit")
}

func TestScenarioVRRSingleRate(t *testing.T) {
	res := fixedGenerator(t).Generate(Request{
		DefaultMode: mode(1920, 1080, 60),
		Modes:       []timing.Mode{mode(1280, 720, 60)},
		VRR:         true,
	})
	requireWellFormed(t, res)

	assert.Equal(t, []string{"VRR needs at least two refresh rates. Add another rate to create a range."}, res.Warnings)
	assert.Nil(t, res.Metadata.VRR)
	assert.False(t, res.Features.VRR)
	assert.Contains(t, res.Summary, "VRR: Off")
}

func TestScenarioBandwidthExceeded(t *testing.T) {
	res := fixedGenerator(t).Generate(Request{
		DefaultMode: mode(7680, 4320, 240),
		DSC:         true,
	})
	requireWellFormed(t, res)

	assert.Equal(t, link.HDMI21, res.Metadata.HDMIVersion)
	assert.True(t, res.Metadata.DSCEnabled)
	assert.True(t, res.Features.DSC)
	assert.Equal(t, []string{
		"Some modes still exceed HDMI 2.1 bandwidth even with DSC and may not work: 7680x4320@240.",
		"Default mode can't fit base EDID timing limits; falling back to 640x480@60.",
		"Display range max clock capped at 2550 MHz (EDID limit).",
	}, res.Warnings)
	assert.Equal(t, MaxRangeClockMHz, res.Metadata.Range.MaxClockMHz)
	assert.Equal(t, FallbackMode, res.PreferredMode)

	// The default is carried by DisplayID, so it is not reported as dropped.
	require.NotNil(t, res.Metadata.DisplayID)
	assert.Equal(t, []timing.Mode{mode(7680, 4320, 240)}, res.Metadata.DisplayID.Modes)
	assert.Equal(t, []timing.Mode{mode(7680, 4320, 240)}, res.AdvertisedModes)
	assert.Empty(t, res.CTAModes)
	assert.Equal(t, "12Gx4", res.Metadata.FRLRate)
	assert.True(t, res.Valid)
}

func TestScenarioMixedModesWithBlockMap(t *testing.T) {
	req := Request{
		DefaultMode: mode(3840, 2160, 60),
		Modes: []timing.Mode{
			mode(1920, 1080, 60),
			mode(1920, 1080, 48),
			mode(1280, 720, 60),
			mode(2560, 1440, 144),
			mode(3440, 1440, 100),
			mode(2560, 1080, 75),
			mode(3000, 1920, 144),
		},
		Audio: true,
		HDR:   true,
		DSC:   true,
		VRR:   true,
	}
	res := fixedGenerator(t).Generate(req)
	requireWellFormed(t, res)

	blocks := block.Split(res.Bytes)
	require.GreaterOrEqual(t, len(blocks), 4)
	assert.Equal(t, byte(block.TagBlockMap), blocks[1][0])
	assert.Equal(t, byte(block.TagCTA), blocks[2][0])
	assert.Equal(t, byte(block.TagDisplayID), blocks[3][0])
	assert.True(t, res.Valid)

	require.NotNil(t, res.Metadata.DisplayID)
	ctaKeys := map[string]bool{}
	for _, m := range res.CTAModes {
		ctaKeys[m.Key()] = true
	}
	for _, m := range res.Metadata.DisplayID.Modes {
		assert.False(t, ctaKeys[m.Key()], "%s advertised twice", m.Key())
	}
	assert.Contains(t, res.Metadata.DisplayID.Modes, mode(3000, 1920, 144))
	assert.Len(t, res.AdvertisedModes, len(res.CTAModes)+len(res.Metadata.DisplayID.Modes))
	assert.Len(t, res.AdvertisedModes, 8)

	require.NotNil(t, res.Metadata.VRR)
	assert.Equal(t, link.VRRRange{Min: 48, Max: 144}, *res.Metadata.VRR)
	assert.Equal(t, link.HDMI21, res.Metadata.HDMIVersion)
	assert.Equal(t, res.Metadata.Extensions, len(blocks)-1)
}

func TestGenerateIsDeterministic(t *testing.T) {
	g := fixedGenerator(t)
	req := Request{
		DefaultMode: mode(2560, 1440, 144),
		Modes:       []timing.Mode{mode(1920, 1080, 60), mode(3440, 1440, 100)},
		HDR:         true,
		VRR:         true,
	}
	a := g.Generate(req)
	b := g.Generate(req)
	assert.Equal(t, a.Bytes, b.Bytes)
	assert.Equal(t, a.Warnings, b.Warnings)
	assert.Equal(t, a.Summary, b.Summary)
}

func TestDuplicateModesAreIdempotent(t *testing.T) {
	g := fixedGenerator(t)
	base := Request{DefaultMode: mode(1920, 1080, 60), Modes: []timing.Mode{mode(1280, 720, 60)}}
	dup := base
	dup.Modes = []timing.Mode{mode(1280, 720, 60), mode(1920, 1080, 60), mode(1280, 720, 60)}

	a := g.Generate(base)
	b := g.Generate(dup)
	assert.Equal(t, a.Bytes, b.Bytes)
	assert.Equal(t, []string{
		"Duplicate mode removed: 1920x1080@60.",
		"Duplicate mode removed: 1280x720@60.",
	}, b.Warnings)
	assert.Equal(t, a.RequestedModes, b.RequestedModes)
}

func TestSyntheticTable(t *testing.T) {
	table, err := vic.New([]vic.Entry{
		{Code: 1, Width: 640, Height: 480, Refresh: 60, PixelClockKHz: 25175, HFreqHz: 31469, Aspect: "4:3"},
	})
	require.NoError(t, err)
	g := NewGenerator(Options{Table: table, Vendor: "ABC", ProductName: "bench"})

	res := g.Generate(Request{DefaultMode: mode(1920, 1080, 60)})
	requireWellFormed(t, res)
	assert.Equal(t, []timing.Mode{mode(1920, 1080, 60)}, res.CTAModes)
	// Only the baseline code is listed.
	assert.Equal(t, []byte{0x41, 1}, res.Bytes[132:134])
	id := ManufacturerID("ABC")
	assert.Equal(t, id[:], res.Bytes[8:10])
	assert.True(t, bytes.Contains(res.Bytes[90:108], []byte("bench\n")))
}

func TestManyCustomModesSpillToDisplayID(t *testing.T) {
	req := Request{DefaultMode: mode(1920, 1080, 60)}
	for r := 61; r < 75; r++ {
		req.Modes = append(req.Modes, mode(1600, 900, r))
	}
	res := fixedGenerator(t).Generate(req)
	requireWellFormed(t, res)

	require.NotNil(t, res.Metadata.DisplayID)
	assert.GreaterOrEqual(t, res.Metadata.DisplayID.Blocks, 2)
	assert.Len(t, res.AdvertisedModes, 15)
	assert.Empty(t, res.Warnings)
}

func TestManufacturerID(t *testing.T) {
	assert.Equal(t, [2]byte{0x1E, 0x73}, ManufacturerID("GSS"))
	assert.Equal(t, ManufacturerID("GSS"), ManufacturerID("gss"))
	assert.Equal(t, ManufacturerID("AXX"), ManufacturerID("A"))
}

func TestFormatHex(t *testing.T) {
	b := make([]byte, 18)
	b[0], b[15], b[17] = 0xAB, 0x01, 0xFF
	got := FormatHex(b)
	assert.Equal(t, "ab 00 00 00 00 00 00 00 00 00 00 00 00 00 00 01\n00 ff", got)

	back, err := ParseHex(got)
	require.NoError(t, err)
	assert.Equal(t, b, back)
	assert.Equal(t, "", FormatHex(nil))
}

func TestWideDefaultFallsBack(t *testing.T) {
	// 5120 active pixels overflow the 12-bit DTD field although the clock fits.
	wide := mode(5120, 1440, 30)
	res := fixedGenerator(t).Generate(Request{DefaultMode: wide})
	requireWellFormed(t, res)

	assert.Equal(t, []string{"Default mode can't fit base EDID timing limits; falling back to 640x480@60."}, res.Warnings)
	assert.Equal(t, FallbackMode, res.PreferredMode)
	hActive := int(res.Bytes[54+2]) | int(res.Bytes[54+4]>>4)<<8
	assert.Equal(t, 640, hActive)

	require.NotNil(t, res.Metadata.DisplayID)
	assert.Equal(t, []timing.Mode{wide}, res.Metadata.DisplayID.Modes)
	assert.Equal(t, []timing.Mode{wide}, res.AdvertisedModes)
	assert.True(t, res.Valid)
}

func TestVideoCodesBeyondLimitSpillToDisplayID(t *testing.T) {
	g := fixedGenerator(t)
	seen := map[string]bool{}
	var modes []timing.Mode
	for _, e := range g.Table().Entries() {
		m := e.Mode()
		if e.Code > 127 || e.Interlaced || e.PixelClockKHz > 300000 || seen[m.Key()] {
			continue
		}
		if got, ok := g.Table().Match(m); !ok || got.Code > 127 {
			continue
		}
		seen[m.Key()] = true
		modes = append(modes, m)
		if len(modes) == 40 {
			break
		}
	}
	require.Len(t, modes, 40)

	req := Request{DefaultMode: modes[0], Modes: modes[1:]}
	res := g.Generate(req)
	requireWellFormed(t, res)
	assert.Empty(t, res.Warnings)
	assert.True(t, res.Valid)

	blocks := block.Split(res.Bytes)
	require.Equal(t, byte(block.TagCTA), blocks[2][0])
	vdb := blocks[2][4:]
	require.Equal(t, byte(cta.TagVideo), vdb[0]>>5)
	n := int(vdb[0] & 0x1f)
	require.Equal(t, cta.MaxVideoCodes, n)
	inVDB := map[int]bool{}
	for _, c := range vdb[1 : 1+n] {
		inVDB[int(c)] = true
	}

	require.NotNil(t, res.Metadata.DisplayID)
	assert.Len(t, res.CTAModes, cta.MaxVideoCodes)
	assert.Len(t, res.Metadata.DisplayID.Modes, len(modes)-cta.MaxVideoCodes)
	assert.Equal(t, modes, res.AdvertisedModes)
	for _, m := range res.Metadata.DisplayID.Modes {
		e, _ := g.Table().Match(m)
		assert.False(t, inVDB[e.Code], "%s is in both the VDB and DisplayID", m.Key())
	}

	// The same request lands the same way every time.
	again := g.Generate(req)
	assert.Equal(t, res.Bytes, again.Bytes)
	assert.Equal(t, res.Metadata.DisplayID.Modes, again.Metadata.DisplayID.Modes)
}

func TestExtensionCountStaysWithinBlockMap(t *testing.T) {
	modes := make([]timing.Mode, 0, 1400)
	for i := 0; i < 1400; i++ {
		modes = append(modes, mode(1000+2*i, 777, 60))
	}
	res := fixedGenerator(t).Generate(Request{DefaultMode: modes[0], Modes: modes[1:]})
	requireWellFormed(t, res)
	assert.True(t, res.Valid, "warnings: %v", res.Warnings)

	blocks := block.Split(res.Bytes)
	assert.Equal(t, byte(MaxExtensions), res.Bytes[126])
	assert.Len(t, blocks, 1+MaxExtensions)
	assert.Equal(t, MaxExtensions, res.Metadata.Extensions)
	assert.Equal(t, byte(block.TagBlockMap), blocks[1][0])
	assert.Equal(t, byte(block.TagCTA), blocks[2][0])
	for _, b := range blocks[3:] {
		assert.Equal(t, byte(block.TagDisplayID), b[0])
	}
	require.NotNil(t, res.Metadata.DisplayID)
	assert.Equal(t, MaxExtensions-2, res.Metadata.DisplayID.Blocks)
	assert.Equal(t, byte(MaxExtensions-3), blocks[3][4])

	var dtdWarning, didWarning bool
	for _, w := range res.Warnings {
		dtdWarning = dtdWarning || strings.HasPrefix(w, "CTA has room for ")
		didWarning = didWarning || strings.HasPrefix(w, "DisplayID ran out of space; dropped: ")
	}
	assert.True(t, dtdWarning, "missing CTA detailed timing warning: %v", res.Warnings)
	assert.True(t, didWarning, "missing DisplayID warning: %v", res.Warnings)

	assert.Equal(t, modes[0], res.PreferredMode)
	assert.Contains(t, res.AdvertisedModes, modes[0])
	assert.NotContains(t, res.AdvertisedModes, modes[len(modes)-1])
	assert.Less(t, len(res.AdvertisedModes), len(modes))
}
