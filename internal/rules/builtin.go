package rules

import (
	"bytes"
	"fmt"

	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/displayid"
)

var edidHeader = []byte{0x00, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0x00}

func (e *Engine) RegisterBuiltins() {
	e.Register("CheckLength", CheckLength)
	e.Register("CheckHeader", CheckHeader)
	e.Register("CheckExtensionCount", CheckExtensionCount)
	e.Register("CheckChecksums", CheckChecksums)
	e.Register("CheckCTADataBlocks", CheckCTADataBlocks)
	e.Register("CheckDisplayIDSections", CheckDisplayIDSections)
	e.Register("CheckBlockMap", CheckBlockMap)
}

func CheckLength(ctx *Context, rule Rule) []Finding {
	if len(ctx.Data) < block.Size || len(ctx.Data)%block.Size != 0 {
		return []Finding{{Block: NoBlock, Message: "EDID length is not a multiple of 128 bytes."}}
	}
	return nil
}

func CheckHeader(ctx *Context, rule Rule) []Finding {
	if len(ctx.Data) < len(edidHeader) || !bytes.Equal(ctx.Data[:len(edidHeader)], edidHeader) {
		return []Finding{{Block: 0, Message: "Base block header is invalid."}}
	}
	return nil
}

func CheckExtensionCount(ctx *Context, rule Rule) []Finding {
	if len(ctx.Data) < block.Size {
		return nil
	}
	want := int(ctx.Data[126])
	if len(ctx.Data)/block.Size-1 != want {
		return []Finding{{Block: 0, Offset: 126, Message: "Extension count does not match EDID length."}}
	}
	return nil
}

func CheckChecksums(ctx *Context, rule Rule) []Finding {
	var out []Finding
	for i, b := range ctx.Blocks() {
		if !block.Valid(b) {
			out = append(out, Finding{Block: i, Offset: block.ChecksumOffset, Message: fmt.Sprintf("Checksum failed in block %d.", i)})
		}
	}
	return out
}

// CheckCTADataBlocks walks each CTA extension's data block chain from byte 4
// and requires it to land exactly on the DTD offset in byte 2.
func CheckCTADataBlocks(ctx *Context, rule Rule) []Finding {
	var out []Finding
	for i, b := range ctx.Blocks() {
		if i == 0 || b[0] != block.TagCTA {
			continue
		}
		end := int(b[2])
		if end < 4 || end > block.ChecksumOffset {
			out = append(out, Finding{Block: i, Offset: 2, Message: fmt.Sprintf("CTA block %d has an invalid DTD offset.", i)})
			continue
		}
		idx := 4
		for idx < end {
			idx += 1 + int(b[idx]&0x1f)
		}
		if idx != end {
			out = append(out, Finding{Block: i, Offset: 4, Message: fmt.Sprintf("CTA block %d data block lengths are invalid.", i)})
		}
	}
	return out
}

func CheckDisplayIDSections(ctx *Context, rule Rule) []Finding {
	var out []Finding
	for i, b := range ctx.Blocks() {
		if i == 0 || b[0] != block.TagDisplayID {
			continue
		}
		if !displayid.SectionChecksumValid(b) {
			out = append(out, Finding{Block: i, Offset: 5 + int(b[2]), Message: fmt.Sprintf("DisplayID block %d section checksum failed.", i)})
		}
	}
	return out
}

// CheckBlockMap compares a block map in block 1 against the tags of the
// blocks that follow it.
func CheckBlockMap(ctx *Context, rule Rule) []Finding {
	blocks := ctx.Blocks()
	if len(blocks) < 2 || blocks[1][0] != block.TagBlockMap {
		return nil
	}
	m := blocks[1]
	rest := blocks[2:]
	for j := 0; j < 126; j++ {
		var want byte
		if j < len(rest) {
			want = rest[j][0]
		}
		if m[1+j] != want {
			return []Finding{{Block: 1, Offset: 1 + j, Message: "Block map does not match extension tags."}}
		}
	}
	return nil
}
