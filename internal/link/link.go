// Package link models HDMI link bandwidth for a set of video streams and
// resolves the capability tier an EDID must advertise: TMDS clock, FRL rate,
// DSC and chroma fallback, and the VRR range.
package link

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Version is the HDMI capability tier a sink has to declare.
type Version string

const (
	HDMI14 Version = "HDMI 1.4"
	HDMI20 Version = "HDMI 2.0"
	HDMI21 Version = "HDMI 2.1"
)

// Chroma is the subsampling assumed for the bandwidth budget.
type Chroma string

const (
	Chroma444 Chroma = "4:4:4"
	Chroma420 Chroma = "4:2:0"
)

const (
	// MaxTMDSMHz is the TMDS character rate ceiling before FRL is needed.
	MaxTMDSMHz = 600
	// MaxHDMI14TMDSMHz is the ceiling an HDMI 1.4 VSDB can declare.
	MaxHDMI14TMDSMHz = 340
	// MaxFRLRawGbps is the top fixed-rate lane configuration (12G x 4).
	MaxFRLRawGbps = 48
)

// FRLRate is one fixed-rate link configuration.
type FRLRate struct {
	Code    int
	RawGbps float64
	Label   string
}

// FRLRates lists the configurations in ascending capacity.
var FRLRates = []FRLRate{
	{Code: 1, RawGbps: 9, Label: "3Gx3"},
	{Code: 2, RawGbps: 18, Label: "6Gx3"},
	{Code: 3, RawGbps: 24, Label: "6Gx4"},
	{Code: 4, RawGbps: 32, Label: "8Gx4"},
	{Code: 5, RawGbps: 40, Label: "10Gx4"},
	{Code: 6, RawGbps: 48, Label: "12Gx4"},
}

// FRLCode returns the smallest rate code whose capacity covers rawGbps.
func FRLCode(rawGbps float64) (int, bool) {
	for _, r := range FRLRates {
		if rawGbps <= r.RawGbps {
			return r.Code, true
		}
	}
	return 0, false
}

// FRLLabel returns the lane label for a rate code, or "" for none.
func FRLLabel(code int) string {
	for _, r := range FRLRates {
		if r.Code == code {
			return r.Label
		}
	}
	return ""
}

// BPP holds the bits per pixel for each encoding option.
type BPP struct {
	Full int
	Y420 int
	DSC  int
}

// BitsPerPixel returns the 8-bit or 10-bit budget set.
func BitsPerPixel(deepColor bool) BPP {
	if deepColor {
		return BPP{Full: 30, Y420: 15, DSC: 10}
	}
	return BPP{Full: 24, Y420: 12, DSC: 8}
}

// TMDSMHz is the TMDS character rate of a pixel clock at bpp.
func TMDSMHz(pixelClockKHz int, bpp int) float64 {
	return float64(pixelClockKHz) / 1000 * float64(bpp) / 24
}

// FRLRawGbps is the FRL rate including the 18/16 line coding overhead.
func FRLRawGbps(pixelClockKHz int, bpp int) float64 {
	return float64(pixelClockKHz) * float64(bpp) / 1e6 * 18 / 16
}

// Stream is one mode's contribution to the link budget.
type Stream struct {
	Key           string
	Width         int
	Refresh       int
	PixelClockKHz int
}

// VRRRange is a variable refresh window in Hz.
type VRRRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

func (v VRRRange) String() string {
	return fmt.Sprintf("%d-%d Hz", v.Min, v.Max)
}

// VRR bounds.
const (
	VRRMinFloor = 24
	VRRMinCeil  = 48
	VRRMaxFloor = 100
	VRRMaxCeil  = 240
)

const (
	warnVRRTwoRates = "VRR needs at least two refresh rates. Add another rate to create a range."
	warnVRRClamped  = "VRR range clamped to supported limits (24-48 Hz min, 100-240 Hz max)."
	warnY420        = "DSC off, assuming 4:2:0: DSC required by bandwidth but you disabled it."
	warnY420Over    = "Some modes still exceed HDMI 2.1 bandwidth even with 4:2:0 and may not work: %s."
	warnDSCOver     = "Some modes still exceed HDMI 2.1 bandwidth even with DSC and may not work: %s."
)

// ResolveVRR derives the VRR window from the requested refresh rates. A
// single distinct rate cannot form a window and disables VRR.
func ResolveVRR(refreshes []int) (*VRRRange, []string) {
	distinct := map[int]bool{}
	for _, r := range refreshes {
		distinct[r] = true
	}
	if len(distinct) < 2 {
		return nil, []string{warnVRRTwoRates}
	}
	lo, hi := math.MaxInt, 0
	for r := range distinct {
		lo = min(lo, r)
		hi = max(hi, r)
	}
	cMin := clamp(lo, VRRMinFloor, VRRMinCeil)
	cMax := clamp(hi, VRRMaxFloor, VRRMaxCeil)
	var warnings []string
	if cMin != lo || cMax != hi {
		warnings = append(warnings, warnVRRClamped)
	}
	if cMax <= cMin {
		return nil, append(warnings, warnVRRTwoRates)
	}
	return &VRRRange{Min: cMin, Max: cMax}, warnings
}

// Params is the input to Resolve.
type Params struct {
	Streams   []Stream
	DeepColor bool
	DSC       bool
	VRR       bool
}

// Resolution is the resolved link tier and its supporting figures.
type Resolution struct {
	BPP               BPP
	MaxPixelClockKHz  int
	FullMaxFRLRawGbps float64
	MaxTMDSMHz        float64
	MaxFRLRawGbps     float64
	DSCRequired       bool
	DSCEnabled        bool
	Y420Fallback      bool
	Chroma            Chroma
	RequiresFRL       bool
	FRLRate           int
	Version           Version
	VRR               *VRRRange
	MaxTMDSHDMIMHz    int
	MaxTMDSHFMHz      int
	NeedsHFVSDB       bool
	DSCMaxSlices      int
	DSC10bpc          bool
	Warnings          []string
}

// Resolve computes the link tier for p. It never fails; degraded outcomes
// are reported in Warnings.
func Resolve(p Params) Resolution {
	res := Resolution{
		BPP:          BitsPerPixel(p.DeepColor),
		Chroma:       Chroma444,
		DSCMaxSlices: 1,
	}

	if p.VRR {
		refreshes := make([]int, 0, len(p.Streams))
		for _, s := range p.Streams {
			refreshes = append(refreshes, s.Refresh)
		}
		vrr, warnings := ResolveVRR(refreshes)
		res.VRR = vrr
		res.Warnings = append(res.Warnings, warnings...)
	}

	maxWidth := 0
	for _, s := range p.Streams {
		res.MaxPixelClockKHz = max(res.MaxPixelClockKHz, s.PixelClockKHz)
		maxWidth = max(maxWidth, s.Width)
		if s.PixelClockKHz > 0 {
			res.FullMaxFRLRawGbps = math.Max(res.FullMaxFRLRawGbps, FRLRawGbps(s.PixelClockKHz, res.BPP.Full))
		}
	}

	res.DSCRequired = res.FullMaxFRLRawGbps > MaxFRLRawGbps
	res.DSCEnabled = p.DSC && res.DSCRequired
	res.Y420Fallback = res.DSCRequired && !res.DSCEnabled

	if res.Y420Fallback {
		res.Chroma = Chroma420
		for _, s := range p.Streams {
			if res.overFull(s.PixelClockKHz) {
				res.Warnings = append(res.Warnings, warnY420)
				break
			}
		}
		if over := res.OverBudget(p.Streams); len(over) > 0 {
			res.Warnings = append(res.Warnings, fmt.Sprintf(warnY420Over, strings.Join(over, ", ")))
		}
	}

	for _, s := range p.Streams {
		if s.PixelClockKHz <= 0 {
			continue
		}
		bpp := res.EffectiveBPP(s.PixelClockKHz)
		res.MaxTMDSMHz = math.Max(res.MaxTMDSMHz, TMDSMHz(s.PixelClockKHz, bpp))
		res.MaxFRLRawGbps = math.Max(res.MaxFRLRawGbps, FRLRawGbps(s.PixelClockKHz, bpp))
	}

	res.RequiresFRL = res.MaxTMDSMHz > MaxTMDSMHz
	if res.RequiresFRL || res.DSCEnabled {
		if code, ok := FRLCode(res.MaxFRLRawGbps); ok {
			res.FRLRate = code
		} else {
			res.FRLRate = FRLRates[len(FRLRates)-1].Code
			// Without DSC the 4:2:0 warning already covers this.
			if over := res.OverBudget(p.Streams); res.DSCEnabled && len(over) > 0 {
				res.Warnings = append(res.Warnings, fmt.Sprintf(warnDSCOver, strings.Join(over, ", ")))
			}
		}
	}

	switch {
	case res.RequiresFRL || res.VRR != nil || res.DSCEnabled:
		res.Version = HDMI21
	case res.MaxTMDSMHz > MaxHDMI14TMDSMHz:
		res.Version = HDMI20
	default:
		res.Version = HDMI14
	}

	rounded := int(math.Ceil(res.MaxTMDSMHz))
	res.MaxTMDSHDMIMHz = min(MaxHDMI14TMDSMHz, rounded)
	res.NeedsHFVSDB = res.VRR != nil || res.RequiresFRL || res.DSCEnabled
	if res.NeedsHFVSDB {
		switch {
		case res.FRLRate >= 2:
			res.MaxTMDSHFMHz = MaxTMDSMHz
		case rounded > MaxHDMI14TMDSMHz:
			res.MaxTMDSHFMHz = min(MaxTMDSMHz, rounded)
		}
	}

	if res.DSCEnabled {
		res.DSC10bpc = p.DeepColor
		switch {
		case maxWidth >= 7680:
			res.DSCMaxSlices = 8
		case maxWidth >= 3840:
			res.DSCMaxSlices = 4
		default:
			res.DSCMaxSlices = 2
		}
	}
	return res
}

func (r Resolution) overFull(pixelClockKHz int) bool {
	return pixelClockKHz > 0 && FRLRawGbps(pixelClockKHz, r.BPP.Full) > MaxFRLRawGbps
}

// EffectiveBPP is the bpp a stream is budgeted at after DSC or 4:2:0.
func (r Resolution) EffectiveBPP(pixelClockKHz int) int {
	if !r.overFull(pixelClockKHz) {
		return r.BPP.Full
	}
	if r.DSCEnabled {
		return r.BPP.DSC
	}
	if r.Y420Fallback {
		return r.BPP.Y420
	}
	return r.BPP.Full
}

// NeedsY420 reports whether a stream only fits the link at 4:2:0.
func (r Resolution) NeedsY420(pixelClockKHz int) bool {
	return r.Y420Fallback && r.overFull(pixelClockKHz) &&
		FRLRawGbps(pixelClockKHz, r.BPP.Y420) <= MaxFRLRawGbps
}

// FRLLabel returns the advertised lane label, or "" when FRL is not used.
func (r Resolution) FRLLabel() string {
	return FRLLabel(r.FRLRate)
}

// DSCLabel describes the compression state for summaries.
func (r Resolution) DSCLabel() string {
	switch {
	case r.DSCEnabled:
		return "On"
	case r.DSCRequired:
		return "Off (4:2:0)"
	default:
		return "Off"
	}
}

// OverBudget returns the keys of streams that exceed the top FRL tier at
// their effective bpp, sorted. The over-budget warnings name these keys.
func (r Resolution) OverBudget(streams []Stream) []string {
	var keys []string
	for _, s := range streams {
		if s.PixelClockKHz <= 0 {
			continue
		}
		if FRLRawGbps(s.PixelClockKHz, r.EffectiveBPP(s.PixelClockKHz)) > MaxFRLRawGbps {
			keys = append(keys, s.Key)
		}
	}
	sort.Strings(keys)
	return keys
}

func clamp(v, lo, hi int) int {
	return max(lo, min(hi, v))
}
