package displayid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/link"
	"example.com/edidgen/internal/timing"
)

func entry(w, h, r int) Entry {
	m := timing.Mode{Width: w, Height: h, Refresh: r}
	return Entry{Key: m.Key(), Mode: m, Timing: timing.Synthesize(m)}
}

func TestSubBlockLayouts(t *testing.T) {
	p := ProductIDBlock("edid.build", 2026)
	require.Len(t, p, 25)
	assert.Equal(t, []byte{TagProductID, 0x00, 22}, p[:3])
	assert.Equal(t, byte(26), p[13])
	assert.Equal(t, byte(10), p[14])
	assert.Equal(t, "edid.build", string(p[15:]))

	params := ParametersBlock(timing.Mode{Width: 3840, Height: 2160, Refresh: 60}, true)
	require.Len(t, params, 15)
	assert.Equal(t, []byte{0x00, 0x0F, 0x70, 0x08}, params[7:11])
	assert.Equal(t, byte(0x99), params[14])

	iface := InterfaceBlock(false, link.HDMI20)
	assert.Equal(t, []byte{TagInterface, 0x00, 10, 0x71, 0x20, 0x02, 0x02, 0x01}, iface[:8])
}

func TestProductNameTruncated(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyz0123456789"
	p := ProductIDBlock(long, 1990)
	assert.Equal(t, byte(32), p[14])
	assert.Equal(t, byte(0), p[13])
}

func TestAspectCode(t *testing.T) {
	assert.Equal(t, byte(4), AspectCode(timing.Mode{Width: 3840, Height: 2160}))
	assert.Equal(t, byte(5), AspectCode(timing.Mode{Width: 1920, Height: 1200}))
	assert.Equal(t, byte(7), AspectCode(timing.Mode{Width: 4096, Height: 2160}))
	assert.Equal(t, byte(0), AspectCode(timing.Mode{Width: 1080, Height: 1080}))
	assert.Equal(t, byte(8), AspectCode(timing.Mode{Width: 3000, Height: 1920}))
}

func TestTimingEntry(t *testing.T) {
	e := entry(1920, 1080, 60)
	b := TimingEntry(e, true)
	require.Len(t, b, TimingEntrySize)
	clock := int(b[0]) | int(b[1])<<8 | int(b[2])<<16
	assert.Equal(t, 13849, clock)
	assert.Equal(t, byte(0x84), b[3])
	assert.Equal(t, []byte{0x7F, 0x07}, b[4:6])  // 1919
	assert.Equal(t, []byte{0x9F, 0x00}, b[6:8])  // 159
	assert.Equal(t, []byte{0x2F, 0x80}, b[8:10]) // 47, h+
	assert.Equal(t, []byte{0x1F, 0x00}, b[10:12])
	assert.Equal(t, []byte{0x37, 0x04}, b[12:14]) // 1079
	assert.Equal(t, []byte{0x1E, 0x00}, b[14:16])
	assert.Equal(t, []byte{0x02, 0x00}, b[16:18]) // 2, v-
	assert.Equal(t, []byte{0x04, 0x00}, b[18:20])
}

func TestSectionChecksums(t *testing.T) {
	sec := Section(ProductMonitor, 0, TimingBlock([]Entry{entry(2560, 1440, 144)}, ""))
	require.NotNil(t, sec)
	assert.Equal(t, block.TagDisplayID, sec[0])
	assert.Equal(t, byte(Version), sec[1])
	assert.Equal(t, byte(23), sec[2])
	assert.True(t, block.Valid(sec))
	assert.True(t, SectionChecksumValid(sec))

	sec[10] ^= 0xFF
	assert.False(t, SectionChecksumValid(sec))
}

func TestSectionRejectsOversizedPayload(t *testing.T) {
	assert.Nil(t, Section(ProductMonitor, 0, make([]byte, MaxPayload+1)))
	assert.NotNil(t, Section(ProductMonitor, 0, make([]byte, MaxPayload)))
}

func TestCapacities(t *testing.T) {
	required := len(ProductIDBlock("edid.build", 2026)) +
		len(ParametersBlock(timing.Mode{}, false)) +
		len(InterfaceBlock(false, link.HDMI14))
	assert.Equal(t, 3, Capacity(required))
	assert.Equal(t, 5, ContinuationCapacity)
	assert.Equal(t, 1, Capacity(MaxPayload))
}

func TestBuildDistributesAcrossSections(t *testing.T) {
	var entries []Entry
	for i := 0; i < 9; i++ {
		entries = append(entries, entry(2000+8*i, 1500, 120))
	}
	res := Build(Params{
		Entries:   entries,
		Preferred: timing.Mode{Width: 3840, Height: 2160, Refresh: 60},
		Version:   link.HDMI21,
		Name:      "edid.build",
		Year:      2026,
	})
	require.Len(t, res.Blocks, 3)
	assert.Len(t, res.Included, 9)
	assert.Empty(t, res.Dropped)

	assert.Equal(t, ProductMonitor, res.Blocks[0][3])
	assert.Equal(t, byte(2), res.Blocks[0][4])
	for i, b := range res.Blocks {
		assert.True(t, block.Valid(b), "block %d", i)
		assert.True(t, SectionChecksumValid(b), "block %d", i)
	}
	assert.Equal(t, ProductExtension, res.Blocks[1][3])
	assert.Equal(t, byte(3+5*TimingEntrySize), res.Blocks[1][2])
	assert.Equal(t, byte(3+1*TimingEntrySize), res.Blocks[2][2])
}

func TestBuildFlagsOnlyPreferred(t *testing.T) {
	entries := []Entry{entry(3000, 1920, 144), entry(3456, 2234, 120)}

	res := Build(Params{Entries: entries, Preferred: entries[1].Mode, Name: "x"})
	require.Len(t, res.Blocks, 1)
	countPreferred := func(b []byte) []int {
		var idx []int
		// product(3+13) + params(15) + iface(13) + timing header(3)
		start := 5 + 16 + 15 + 13 + 3
		for i := 0; i < 2; i++ {
			if b[start+i*TimingEntrySize+3]&0x80 != 0 {
				idx = append(idx, i)
			}
		}
		return idx
	}
	assert.Equal(t, []int{1}, countPreferred(res.Blocks[0]))

	res = Build(Params{Entries: entries, Preferred: timing.Mode{Width: 1, Height: 1, Refresh: 1}, Name: "x"})
	assert.Empty(t, countPreferred(res.Blocks[0]))
}

func TestBuildRespectsMaxBlocks(t *testing.T) {
	var entries []Entry
	for i := 0; i < 9; i++ {
		entries = append(entries, entry(2000+8*i, 1500, 120))
	}
	res := Build(Params{
		Entries:   entries,
		Preferred: timing.Mode{Width: 3840, Height: 2160, Refresh: 60},
		Version:   link.HDMI21,
		Name:      "edid.build",
		Year:      2026,
		MaxBlocks: 2,
	})
	require.Len(t, res.Blocks, 2)
	assert.Equal(t, byte(1), res.Blocks[0][4])
	assert.Len(t, res.Included, 8)
	assert.Equal(t, entries[8:], res.Dropped)

	res = Build(Params{Entries: entries, Name: "edid.build", Year: 2026, MaxBlocks: 1})
	require.Len(t, res.Blocks, 1)
	assert.Equal(t, byte(0), res.Blocks[0][4])
	assert.Len(t, res.Included, len(entries)-len(res.Dropped))
}

func TestBuildEmpty(t *testing.T) {
	res := Build(Params{})
	assert.Empty(t, res.Blocks)
	assert.Empty(t, res.Included)
	assert.Empty(t, res.Dropped)
}

func TestCapacityWithLongName(t *testing.T) {
	name := fmt.Sprintf("%032d", 0)
	required := len(ProductIDBlock(name, 2026)) + 15 + 13
	assert.Equal(t, 2, Capacity(required))
}
