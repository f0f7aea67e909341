// Package edid assembles a complete EDID blob: the EDID 1.3 root block, a
// CTA-861 extension, optional DisplayID extensions and a block map, and
// self-validates the result.
package edid

import (
	"fmt"
	"math"
	"strings"
	"time"

	"example.com/edidgen/internal/block"
	"example.com/edidgen/internal/common"
	"example.com/edidgen/internal/cta"
	"example.com/edidgen/internal/displayid"
	"example.com/edidgen/internal/link"
	"example.com/edidgen/internal/rules"
	"example.com/edidgen/internal/timing"
	"example.com/edidgen/internal/vic"
)

// MaxAdditionalDTDs is the number of non-preferred detailed timings the
// CTA extension is budgeted for.
const MaxAdditionalDTDs = 5

// MaxRangeClockMHz is the largest clock the range descriptor can express.
const MaxRangeClockMHz = 2550

// FallbackMode replaces a default mode that no DTD can carry.
var FallbackMode = timing.Mode{Width: 640, Height: 480, Refresh: 60}

// Request describes the display to synthesise. Modes are in addition to
// DefaultMode.
type Request struct {
	DefaultMode     timing.Mode   `json:"defaultMode" yaml:"defaultMode"`
	Modes           []timing.Mode `json:"modes" yaml:"modes"`
	Audio           bool          `json:"audio" yaml:"audio"`
	HDR             bool          `json:"hdr" yaml:"hdr"`
	DeepColor       bool          `json:"deepColor" yaml:"deepColor"`
	DSC             bool          `json:"dsc" yaml:"dsc"`
	VRR             bool          `json:"vrr" yaml:"vrr"`
	ListedModesOnly bool          `json:"listedModesOnly" yaml:"listedModesOnly"`
}

// DisplayIDSummary reports what the DisplayID extensions carry.
type DisplayIDSummary struct {
	Blocks int           `json:"blocks"`
	Modes  []timing.Mode `json:"modes"`
}

// Metadata is the resolved link and layout information.
type Metadata struct {
	HDMIVersion      link.Version      `json:"hdmiVersion"`
	MaxPixelClockKHz int               `json:"maxPixelClockKHz"`
	MaxTMDSHDMIMHz   int               `json:"maxTmdsHdmiMhz"`
	MaxTMDSHFMHz     *int              `json:"maxTmdsHfMhz"`
	VRR              *link.VRRRange    `json:"vrrRange"`
	FRLAdvertised    bool              `json:"frlAdvertised"`
	FRLRate          string            `json:"frlRate,omitempty"`
	DSCRequired      bool              `json:"dscRequired"`
	DSCEnabled       bool              `json:"dscEnabled"`
	Chroma           link.Chroma       `json:"chromaAssumed"`
	DisplayID        *DisplayIDSummary `json:"displayId"`
	Range            Range             `json:"range"`
	Extensions       int               `json:"extensions"`
}

// Features echoes the capability flags that ended up advertised.
type Features struct {
	Audio           bool `json:"audio"`
	HDR             bool `json:"hdr"`
	DeepColor       bool `json:"deepColor"`
	VRR             bool `json:"vrr"`
	DSC             bool `json:"dsc"`
	ListedModesOnly bool `json:"listedModesOnly"`
}

// Result is one generation outcome.
type Result struct {
	Bytes           []byte        `json:"-"`
	Warnings        []string      `json:"warnings"`
	Summary         []string      `json:"summary"`
	Metadata        Metadata      `json:"metadata"`
	Features        Features      `json:"features"`
	PreferredMode   timing.Mode   `json:"preferredMode"`
	AdvertisedModes []timing.Mode `json:"advertisedModes"`
	CTAModes        []timing.Mode `json:"ctaModes"`
	RequestedModes  []timing.Mode `json:"requestedModes"`
	Valid           bool          `json:"valid"`
}

// Options configures a Generator.
type Options struct {
	Table       *vic.Table
	Vendor      string
	ProductName string
	Now         func() time.Time
	// Verbose logs degraded outcomes through common.Logf.
	Verbose bool
}

// Generator is a pure EDID synthesiser over an immutable VIC table. It is
// safe for concurrent use.
type Generator struct {
	table   *vic.Table
	vendor  string
	name    string
	now     func() time.Time
	verbose bool
}

// NewGenerator applies defaults to opts.
func NewGenerator(opts Options) *Generator {
	g := &Generator{table: opts.Table, vendor: opts.Vendor, name: opts.ProductName, now: opts.Now, verbose: opts.Verbose}
	if g.table == nil {
		g.table = vic.Default()
	}
	if g.vendor == "" {
		g.vendor = DefaultVendor
	}
	if g.name == "" {
		g.name = DefaultName
	}
	if g.now == nil {
		g.now = time.Now
	}
	return g
}

// Table returns the generator's reference table.
func (g *Generator) Table() *vic.Table {
	return g.table
}

type modeInfo struct {
	mode     timing.Mode
	key      string
	vic      *vic.Entry
	timing   timing.Timing
	clockKHz int
}

func (m modeInfo) code() int {
	if m.vic == nil {
		return 0
	}
	return m.vic.Code
}

func (m modeInfo) entry() displayid.Entry {
	return displayid.Entry{Key: m.key, Mode: m.mode, Timing: m.timing}
}

// rangeAcc tracks the display range as modes are folded in.
type rangeAcc struct {
	minV, maxV, minH, maxH float64
	maxClockKHz            int
}

func newRangeAcc() *rangeAcc {
	return &rangeAcc{minV: 240, minH: 1000}
}

func (r *rangeAcc) fold(vHz, hKHz float64, clockKHz int) {
	r.minV = math.Min(r.minV, vHz)
	r.maxV = math.Max(r.maxV, vHz)
	if hKHz > 0 {
		r.minH = math.Min(r.minH, hKHz)
		r.maxH = math.Max(r.maxH, hKHz)
	}
	r.maxClockKHz = max(r.maxClockKHz, clockKHz)
}

func (r *rangeAcc) limits() (Range, bool) {
	clockMHz := float64(r.maxClockKHz) / 1000
	return Range{
		MinVHz:      max(24, int(math.Floor(r.minV))),
		MaxVHz:      min(240, int(math.Ceil(r.maxV))),
		MinHKHz:     max(15, int(math.Floor(r.minH))),
		MaxHKHz:     min(255, int(math.Ceil(r.maxH))),
		MaxClockMHz: min(MaxRangeClockMHz, int(math.Ceil(clockMHz))),
	}, clockMHz > MaxRangeClockMHz
}

// Generate synthesises an EDID for req using the default table and clock.
func Generate(req Request) *Result {
	return NewGenerator(Options{}).Generate(req)
}

// Generate runs the full pipeline. It never fails: capacity and bandwidth
// shortfalls are reported in Result.Warnings.
func (g *Generator) Generate(req Request) *Result {
	var warnings []string

	modes, dups := timing.Dedupe(append([]timing.Mode{req.DefaultMode}, req.Modes...))
	for _, k := range dups {
		warnings = append(warnings, fmt.Sprintf("Duplicate mode removed: %s.", k))
	}
	defaultKey := req.DefaultMode.Key()

	acc := newRangeAcc()
	infos := make([]modeInfo, 0, len(modes))
	streams := make([]link.Stream, 0, len(modes))
	for _, m := range modes {
		info := modeInfo{mode: m, key: m.Key(), timing: timing.Synthesize(m)}
		if e, ok := g.table.Match(m); ok {
			info.vic = &e
			info.clockKHz = e.PixelClockKHz
			acc.fold(float64(e.Refresh), e.HFreqKHz(), e.PixelClockKHz)
		} else {
			info.clockKHz = info.timing.DotClockKHz
			acc.fold(info.timing.VRefreshHz, info.timing.HFreqKHz, info.timing.DotClockKHz)
		}
		infos = append(infos, info)
		streams = append(streams, link.Stream{Key: info.key, Width: m.Width, Refresh: m.Refresh, PixelClockKHz: info.clockKHz})
	}
	if e, ok := g.table.ByCode(1); ok {
		acc.fold(float64(e.Refresh), e.HFreqKHz(), e.PixelClockKHz)
	}

	var unsupported []modeInfo
	for _, info := range infos {
		if info.vic == nil && !timing.FitsDTD(info.timing) {
			unsupported = append(unsupported, info)
		}
	}

	lr := link.Resolve(link.Params{Streams: streams, DeepColor: req.DeepColor, DSC: req.DSC, VRR: req.VRR})
	warnings = append(warnings, lr.Warnings...)

	// Preferred timing: the default mode, or the fallback when its clock or
	// counts do not fit a DTD.
	preferred := infos[0]
	nativeDefault := true
	if !timing.FitsDTD(preferred.timing) {
		warnings = append(warnings, fmt.Sprintf("Default mode can't fit base EDID timing limits; falling back to %s.", FallbackMode.Key()))
		fb := timing.CVT(FallbackMode.Width, FallbackMode.Height, FallbackMode.Refresh, false)
		preferred = modeInfo{mode: FallbackMode, key: FallbackMode.Key(), timing: fb, clockKHz: fb.DotClockKHz}
		nativeDefault = false
	}
	acc.fold(preferred.timing.VRefreshHz, preferred.timing.HFreqKHz, 0)
	preferredDTD := timing.EncodeDTD(preferred.timing)

	// CTA data blocks.
	codes := make([]int, 0, len(infos))
	for _, info := range infos {
		codes = append(codes, info.code())
	}
	vdb := cta.BuildVideoBlock(infos[0].code(), codes)
	dataBlocks := [][]byte{vdb.Block}
	if lr.Y420Fallback {
		y420 := cta.Y420CapabilityMap(vdb.Used, func(code int) bool {
			e, ok := g.table.ByCode(code)
			return ok && lr.NeedsY420(e.PixelClockKHz)
		})
		if y420 != nil {
			dataBlocks = append(dataBlocks, y420)
		}
	}
	if req.Audio {
		dataBlocks = append(dataBlocks, cta.AudioBlocks()...)
	}
	dataBlocks = append(dataBlocks, cta.VideoCapabilityBlock())
	dataBlocks = append(dataBlocks, cta.HDMIVSDB(lr.MaxTMDSHDMIMHz, req.DeepColor))
	if lr.NeedsHFVSDB {
		dataBlocks = append(dataBlocks, cta.HFVSDB(cta.HFParams{
			MaxTMDSMHz:   lr.MaxTMDSHFMHz,
			VRR:          lr.VRR,
			FRLRate:      lr.FRLRate,
			DSC:          lr.DSCEnabled,
			DSCMaxSlices: lr.DSCMaxSlices,
			DSC10bpc:     lr.DSC10bpc,
		}))
	}
	if req.HDR {
		dataBlocks = append(dataBlocks, cta.HDRBlocks()...)
	}

	// Additional DTDs: synthesised modes other than the preferred one.
	var eligible []modeInfo
	for _, info := range infos {
		if info.vic != nil || info.key == preferred.key || !timing.FitsDTD(info.timing) {
			continue
		}
		eligible = append(eligible, info)
	}
	budgeted := eligible[:min(len(eligible), MaxAdditionalDTDs)]
	dtds := [][]byte{preferredDTD}
	for _, info := range budgeted {
		dtds = append(dtds, timing.EncodeDTD(info.timing))
	}
	native := 0
	if nativeDefault {
		native = 1
	}
	ctaBlock := cta.Build(dataBlocks, dtds, req.Audio, native)
	room := max(0, min(MaxAdditionalDTDs, ctaBlock.DTDs-1))
	keptDTD := budgeted[:min(len(budgeted), room)]

	// CTA bookkeeping.
	ctaKeys := map[string]bool{}
	used := map[int]bool{}
	for _, c := range vdb.Used {
		used[c] = true
	}
	var droppedVDB []modeInfo
	for _, info := range infos {
		if info.vic == nil {
			continue
		}
		if used[info.vic.Code] {
			ctaKeys[info.key] = true
		} else if info.vic.Code <= 127 {
			droppedVDB = append(droppedVDB, info)
		}
	}
	if preferred.vic == nil && nativeDefault && ctaBlock.DTDs > 0 {
		ctaKeys[preferred.key] = true
	}
	for _, info := range keptDTD {
		ctaKeys[info.key] = true
	}
	var droppedDTD []modeInfo
	for _, info := range eligible {
		if !ctaKeys[info.key] {
			droppedDTD = append(droppedDTD, info)
		}
	}

	// DisplayID takes every requested mode CTA could not carry.
	var candidates []displayid.Entry
	for _, info := range infos {
		if !ctaKeys[info.key] {
			candidates = append(candidates, info.entry())
		}
	}
	did := displayid.Build(displayid.Params{
		Entries:   candidates,
		Preferred: req.DefaultMode,
		DeepColor: req.DeepColor,
		Version:   lr.Version,
		Name:      g.name,
		Year:      g.now().Year(),
		// The block map and the CTA extension take two of the slots.
		MaxBlocks: MaxExtensions - 2,
	})
	didKeys := map[string]bool{}
	var didModes []timing.Mode
	for _, e := range did.Included {
		didKeys[e.Key] = true
		didModes = append(didModes, e.Mode)
	}

	rng, capped := acc.limits()
	if capped {
		warnings = append(warnings, "Display range max clock capped at 2550 MHz (EDID limit).")
	}

	extensions := append([][]byte{ctaBlock.Bytes}, did.Blocks...)
	if len(extensions) > 1 {
		tags := make([]byte, len(extensions))
		for i, b := range extensions {
			tags[i] = b[0]
		}
		extensions = append([][]byte{BuildBlockMap(tags)}, extensions...)
	}
	base := BuildBase(BaseParams{
		Vendor:     g.vendor,
		Name:       g.name,
		Year:       g.now().Year(),
		Preferred:  preferredDTD,
		Range:      rng,
		Extensions: len(extensions),
	})
	blob := make([]byte, 0, block.Size*(1+len(extensions)))
	blob = append(blob, base...)
	for _, b := range extensions {
		blob = append(blob, b...)
	}

	notInDID := func(list []modeInfo) []modeInfo {
		var out []modeInfo
		for _, info := range list {
			if !didKeys[info.key] {
				out = append(out, info)
			}
		}
		return out
	}
	if l := notInDID(droppedVDB); len(l) > 0 {
		warnings = append(warnings, fmt.Sprintf("CTA can list up to %d standard modes; extras were dropped: %s. Try fewer modes or lower refresh rates.", cta.MaxVideoCodes, formatInfos(l)))
	}
	if l := notInDID(droppedDTD); len(l) > 0 {
		warnings = append(warnings, fmt.Sprintf("CTA has room for %d additional detailed timings; extras were dropped: %s. Try fewer custom modes.", room, formatInfos(l)))
	}
	if l := notInDID(unsupported); len(l) > 0 {
		warnings = append(warnings, fmt.Sprintf("Some modes couldn't fit in CTA or DisplayID blocks; dropped: %s. Try fewer modes or lower refresh/resolution.", formatInfos(l)))
	}
	if len(did.Dropped) > 0 {
		var l []string
		for _, e := range did.Dropped {
			l = append(l, e.Mode.String())
		}
		warnings = append(warnings, fmt.Sprintf("DisplayID ran out of space; dropped: %s. Try fewer modes or lower refresh rates.", strings.Join(l, ", ")))
	}

	issues := rules.Validate(blob)
	warnings = append(warnings, issues...)

	res := &Result{
		Bytes:          blob,
		Warnings:       warnings,
		PreferredMode:  preferred.mode,
		RequestedModes: modes,
		Valid:          len(issues) == 0,
		Features: Features{
			Audio:           req.Audio,
			HDR:             req.HDR,
			DeepColor:       req.DeepColor,
			VRR:             lr.VRR != nil,
			DSC:             lr.DSCEnabled,
			ListedModesOnly: req.ListedModesOnly,
		},
		Metadata: Metadata{
			HDMIVersion:      lr.Version,
			MaxPixelClockKHz: acc.maxClockKHz,
			MaxTMDSHDMIMHz:   lr.MaxTMDSHDMIMHz,
			VRR:              lr.VRR,
			FRLAdvertised:    lr.FRLLabel() != "",
			FRLRate:          lr.FRLLabel(),
			DSCRequired:      lr.DSCRequired,
			DSCEnabled:       lr.DSCEnabled,
			Chroma:           lr.Chroma,
			Range:            rng,
			Extensions:       len(extensions),
		},
	}
	if lr.MaxTMDSHFMHz > 0 {
		v := lr.MaxTMDSHFMHz
		res.Metadata.MaxTMDSHFMHz = &v
	}
	if len(did.Blocks) > 0 {
		res.Metadata.DisplayID = &DisplayIDSummary{Blocks: len(did.Blocks), Modes: didModes}
	}
	for _, m := range modes {
		k := m.Key()
		if ctaKeys[k] {
			res.CTAModes = append(res.CTAModes, m)
		}
		if ctaKeys[k] || didKeys[k] {
			res.AdvertisedModes = append(res.AdvertisedModes, m)
		}
	}
	res.Summary = summaryLines(res, req)
	if g.verbose && len(warnings) > 0 {
		common.Logf("edid for %s: %d blocks, %d warnings", defaultKey, len(blob)/block.Size, len(warnings))
	}
	return res
}

func formatInfos(list []modeInfo) string {
	parts := make([]string, len(list))
	for i, info := range list {
		parts[i] = info.mode.String()
	}
	return strings.Join(parts, ", ")
}
