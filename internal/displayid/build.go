package displayid

import (
	"example.com/edidgen/internal/link"
	"example.com/edidgen/internal/timing"
)

// Params is the input to Build.
type Params struct {
	Entries   []Entry
	Preferred timing.Mode
	DeepColor bool
	Version   link.Version
	Name      string
	Year      int
	// MaxBlocks caps the sections emitted, primary included. Zero means no cap.
	MaxBlocks int
}

// Result lists the sections produced and how the entries were placed.
type Result struct {
	Blocks   [][]byte
	Included []Entry
	Dropped  []Entry
}

// Capacity returns how many timing entries fit beside required header
// data blocks, never less than one.
func Capacity(required int) int {
	return max(1, (MaxPayload-required-headerSize)/TimingEntrySize)
}

// ContinuationCapacity is the entry count of a section holding only timings.
var ContinuationCapacity = (MaxPayload - headerSize) / TimingEntrySize

// Build distributes p.Entries over a primary section, which also carries
// product, parameter and interface blocks, and as many timing-only
// continuation sections as needed, up to p.MaxBlocks. A continuation chunk that cannot be
// assembled is dropped; if the primary section cannot be assembled nothing
// is emitted and every entry is dropped.
func Build(p Params) Result {
	if len(p.Entries) == 0 {
		return Result{}
	}

	// Only an entry matching the preferred mode is flagged.
	preferredKey := p.Preferred.Key()

	product := ProductIDBlock(p.Name, p.Year)
	params := ParametersBlock(p.Preferred, p.DeepColor)
	iface := InterfaceBlock(p.DeepColor, p.Version)
	baseCap := Capacity(len(product) + len(params) + len(iface))

	n := min(baseCap, len(p.Entries))
	primary := p.Entries[:n]
	remaining := p.Entries[n:]

	var res Result
	res.Included = append(res.Included, primary...)
	var continuations [][]byte
	for len(remaining) > 0 {
		if p.MaxBlocks > 0 && 1+len(continuations) >= p.MaxBlocks {
			res.Dropped = append(res.Dropped, remaining...)
			break
		}
		k := min(ContinuationCapacity, len(remaining))
		chunk := remaining[:k]
		remaining = remaining[k:]
		sec := Section(ProductExtension, 0, TimingBlock(chunk, preferredKey))
		if sec == nil {
			res.Dropped = append(res.Dropped, chunk...)
			continue
		}
		continuations = append(continuations, sec)
		res.Included = append(res.Included, chunk...)
	}

	first := Section(ProductMonitor, len(continuations), product, params, iface, TimingBlock(primary, preferredKey))
	if first == nil {
		return Result{Dropped: append([]Entry(nil), p.Entries...)}
	}
	res.Blocks = append([][]byte{first}, continuations...)
	return res
}
