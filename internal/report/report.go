// Package report renders a generation outcome as JSON, CBOR or PDF.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fxamacker/cbor/v2"

	"example.com/edidgen/internal/common"
	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/rules"
)

// Version is bumped when the report layout changes.
const Version = 1

// Report is the persisted record of one generation.
type Report struct {
	Version         int                    `json:"version" cbor:"1,keyasint"`
	GeneratedAt     time.Time              `json:"generatedAt" cbor:"2,keyasint"`
	Request         edid.Request           `json:"request" cbor:"3,keyasint"`
	SHA256          string                 `json:"sha256" cbor:"4,keyasint"`
	Size            int                    `json:"size" cbor:"5,keyasint"`
	Hex             string                 `json:"hex" cbor:"6,keyasint"`
	Warnings        []string               `json:"warnings" cbor:"7,keyasint"`
	Summary         []string               `json:"summary" cbor:"8,keyasint"`
	Metadata        edid.Metadata          `json:"metadata" cbor:"9,keyasint"`
	Features        edid.Features          `json:"features" cbor:"10,keyasint"`
	PreferredMode   string                 `json:"preferredMode" cbor:"11,keyasint"`
	AdvertisedModes []string               `json:"advertisedModes" cbor:"12,keyasint"`
	Acceptance      rules.AcceptanceReport `json:"acceptance" cbor:"13,keyasint"`
}

// New builds a report for res. The acceptance section is produced by
// re-running the rule engine over the bytes with clock now.
func New(req edid.Request, res *edid.Result, now time.Time) (Report, error) {
	eng := rules.NewDefaultEngine()
	eng.SetClock(func() time.Time { return now })
	if _, err := eng.Eval(&rules.Context{File: "edid.bin", Data: res.Bytes}); err != nil {
		return Report{}, fmt.Errorf("evaluate rules: %w", err)
	}
	rep := Report{
		Version:       Version,
		GeneratedAt:   now.UTC(),
		Request:       req,
		SHA256:        common.Sha256Hex(res.Bytes),
		Size:          len(res.Bytes),
		Hex:           edid.FormatHex(res.Bytes),
		Warnings:      res.Warnings,
		Summary:       res.Summary,
		Metadata:      res.Metadata,
		Features:      res.Features,
		PreferredMode: res.PreferredMode.Key(),
		Acceptance:    eng.MakeAcceptance(),
	}
	for _, m := range res.AdvertisedModes {
		rep.AdvertisedModes = append(rep.AdvertisedModes, m.Key())
	}
	return rep, nil
}

func SaveJSON(rep Report, out string) error {
	b, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func LoadJSON(path string) (Report, error) {
	var rep Report
	b, err := os.ReadFile(path)
	if err != nil {
		return rep, err
	}
	err = json.Unmarshal(b, &rep)
	return rep, err
}

var cborEnc = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	em, err := opts.EncMode()
	if err != nil {
		panic(fmt.Sprintf("report: cbor encoder: %v", err))
	}
	return em
}()

// MarshalCBOR encodes rep with deterministic (core) CBOR.
func MarshalCBOR(rep Report) ([]byte, error) {
	return cborEnc.Marshal(rep)
}

func UnmarshalCBOR(b []byte) (Report, error) {
	var rep Report
	err := cbor.Unmarshal(b, &rep)
	return rep, err
}

func SaveCBOR(rep Report, out string) error {
	b, err := MarshalCBOR(rep)
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}
