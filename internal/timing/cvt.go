package timing

import "math"

// Timing is a complete progressive video timing. Horizontal values are in
// pixels, vertical values in lines.
type Timing struct {
	HActive     int     `json:"hActive"`
	HSyncStart  int     `json:"hSyncStart"`
	HSyncEnd    int     `json:"hSyncEnd"`
	HTotal      int     `json:"hTotal"`
	VActive     int     `json:"vActive"`
	VSyncStart  int     `json:"vSyncStart"`
	VSyncEnd    int     `json:"vSyncEnd"`
	VTotal      int     `json:"vTotal"`
	DotClockKHz int     `json:"dotClockKHz"`
	HFreqKHz    float64 `json:"hFreqKHz"`
	VRefreshHz  float64 `json:"vRefreshHz"`
	HSyncPos    bool    `json:"hSyncPositive"`
	VSyncPos    bool    `json:"vSyncPositive"`
	Reduced     bool    `json:"reducedBlanking"`
}

func (t Timing) HBlank() int      { return t.HTotal - t.HActive }
func (t Timing) VBlank() int      { return t.VTotal - t.VActive }
func (t Timing) HFrontPorch() int { return t.HSyncStart - t.HActive }
func (t Timing) HSyncWidth() int  { return t.HSyncEnd - t.HSyncStart }
func (t Timing) VFrontPorch() int { return t.VSyncStart - t.VActive }
func (t Timing) VSyncWidth() int  { return t.VSyncEnd - t.VSyncStart }

const (
	hGranularity = 8
	minVPorch    = 3
	minVBPorch   = 6
	clockStep    = 250.0

	minVSyncBP   = 550.0
	hSyncPercent = 8.0
	mFactor      = 600.0
	cFactor      = 40.0
	kFactor      = 128.0
	jFactor      = 20.0

	rbMinVBlank = 460.0
	rbHSync     = 32.0
	rbHBlank    = 160.0
	rbVFPorch   = 3
)

// VSyncWidth picks the vertical sync width CVT assigns to an aspect ratio.
func VSyncWidth(width, height int) int {
	switch {
	case height%3 == 0 && height*4/3 == width:
		return 4
	case height%9 == 0 && height*16/9 == width:
		return 5
	case height%10 == 0 && height*16/10 == width:
		return 6
	case height%4 == 0 && height*5/4 == width:
		return 7
	case height%9 == 0 && height*15/9 == width:
		return 7
	default:
		return 10
	}
}

// CVT synthesises a progressive timing with standard or reduced blanking.
// The arithmetic follows the xorg cvt generator so results match common
// inspection tools, e.g. 1920x1080@60 RB gives 138.50 MHz.
func CVT(width, height, refresh int, reduced bool) Timing {
	hDisplay := float64(width - width%hGranularity)
	vDisplay := float64(height)
	vSync := float64(VSyncWidth(width, height))
	field := float64(refresh)

	var hPeriod, hTotal, vTotal float64
	var hSyncStart, hSyncEnd, vSyncStart, vSyncEnd float64

	if !reduced {
		mPrime := mFactor * kFactor / 256
		cPrime := (cFactor-jFactor)*kFactor/256 + jFactor

		hPeriod = (1000000.0/field - minVSyncBP) / (vDisplay + minVPorch)

		vSyncBP := math.Floor(minVSyncBP/hPeriod) + 1
		if vSyncBP < vSync+minVPorch {
			vSyncBP = vSync + minVPorch
		}
		vTotal = vDisplay + vSyncBP + minVPorch

		pct := cPrime - mPrime*hPeriod/1000.0
		if pct < 20 {
			pct = 20
		}
		hBlank := hDisplay * pct / (100.0 - pct)
		hBlank -= math.Mod(hBlank, 2*hGranularity)
		hTotal = hDisplay + hBlank

		hSyncEnd = hDisplay + hBlank/2
		hSyncStart = hSyncEnd - hTotal*hSyncPercent/100
		hSyncStart += hGranularity - math.Mod(hSyncStart, hGranularity)

		vSyncStart = vDisplay + minVPorch
		vSyncEnd = vSyncStart + vSync
	} else {
		hPeriod = (1000000.0/field - rbMinVBlank) / vDisplay

		vbi := math.Floor(rbMinVBlank/hPeriod) + 1
		if vbi < rbVFPorch+vSync+minVBPorch {
			vbi = rbVFPorch + vSync + minVBPorch
		}
		vTotal = vDisplay + vbi
		hTotal = hDisplay + rbHBlank

		hSyncEnd = hDisplay + rbHBlank/2
		hSyncStart = hSyncEnd - rbHSync

		vSyncStart = vDisplay + rbVFPorch
		vSyncEnd = vSyncStart + vSync
	}

	dot := hTotal * 1000.0 / hPeriod
	dot -= math.Mod(dot, clockStep)

	return Timing{
		HActive:     int(hDisplay),
		HSyncStart:  round(hSyncStart),
		HSyncEnd:    round(hSyncEnd),
		HTotal:      round(hTotal),
		VActive:     int(vDisplay),
		VSyncStart:  round(vSyncStart),
		VSyncEnd:    round(vSyncEnd),
		VTotal:      round(vTotal),
		DotClockKHz: round(dot),
		HFreqKHz:    dot / hTotal,
		VRefreshHz:  1000.0 * dot / (hTotal * vTotal),
		HSyncPos:    reduced,
		VSyncPos:    !reduced,
		Reduced:     reduced,
	}
}

// Synthesize runs CVT for m with the blanking mode UseReducedBlanking picks.
func Synthesize(m Mode) Timing {
	return CVT(m.Width, m.Height, m.Refresh, UseReducedBlanking(m))
}

func round(v float64) int {
	return int(math.Floor(v + 0.5))
}
