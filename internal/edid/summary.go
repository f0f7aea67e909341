package edid

import (
	"strings"

	"example.com/edidgen/internal/timing"
)

func joinModes(modes []timing.Mode) string {
	if len(modes) == 0 {
		return "None"
	}
	parts := make([]string, len(modes))
	for i, m := range modes {
		parts[i] = m.String()
	}
	return strings.Join(parts, ", ")
}

func summaryLines(res *Result, req Request) []string {
	var didModes []timing.Mode
	if res.Metadata.DisplayID != nil {
		didModes = res.Metadata.DisplayID.Modes
	}
	ext := "No audio"
	if req.Audio {
		ext = "Audio"
	}
	if req.HDR {
		ext += " + HDR10"
	}
	depth := "8-bit"
	if req.DeepColor {
		depth = "10-bit"
	}
	vrr := "Off"
	if res.Metadata.VRR != nil {
		vrr = res.Metadata.VRR.String()
	}
	frl := res.Metadata.FRLRate
	if frl == "" {
		frl = "Not advertised"
	}
	dsc := "Off"
	switch {
	case res.Metadata.DSCEnabled:
		dsc = "On"
	case res.Metadata.DSCRequired:
		dsc = "Off (4:2:0)"
	}
	validation := "Validation: OK"
	if !res.Valid {
		validation = "Validation: Issues found"
	}
	return []string{
		"Preferred timing: " + res.PreferredMode.String() + " (DTD)",
		"CTA modes: " + joinModes(res.CTAModes),
		"DisplayID modes: " + joinModes(didModes),
		"CTA extension: " + ext,
		"Color depth: " + depth,
		"VRR: " + vrr,
		"Required link: " + string(res.Metadata.HDMIVersion),
		"FRL: " + frl,
		"DSC: " + dsc,
		validation,
	}
}
