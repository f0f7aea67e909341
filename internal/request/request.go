// Package request turns caller input (mode strings, request documents and
// flags) into edid.Request values and applies the DSC policy.
package request

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"

	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/timing"
)

//go:embed schema.json
var schema []byte

var (
	ErrInvalidMode   = errors.New("invalid mode")
	ErrNoDefaultMode = errors.New("default mode is required")
	ErrSchema        = errors.New("request does not match schema")
)

// ParseMode parses "WxH@R". Spaces and a trailing "Hz" are allowed, so the
// output of timing.Mode.String parses back. Fractional values are rounded.
func ParseMode(s string) (timing.Mode, error) {
	raw := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
	raw = strings.TrimSuffix(raw, "hz")
	dims, rate, ok := strings.Cut(raw, "@")
	if !ok {
		return timing.Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	w, h, ok := strings.Cut(dims, "x")
	if !ok {
		return timing.Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, s)
	}
	var vals [3]int
	for i, part := range []string{w, h, rate} {
		v, err := strconv.ParseFloat(part, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return timing.Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, s)
		}
		vals[i] = int(math.Round(v))
		if vals[i] <= 0 {
			return timing.Mode{}, fmt.Errorf("%w: %q", ErrInvalidMode, s)
		}
	}
	return timing.Mode{Width: vals[0], Height: vals[1], Refresh: vals[2]}, nil
}

// ParseModes parses every entry, failing on the first bad one.
func ParseModes(list []string) ([]timing.Mode, error) {
	out := make([]timing.Mode, 0, len(list))
	for _, s := range list {
		if strings.TrimSpace(s) == "" {
			continue
		}
		m, err := ParseMode(s)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// Document is the on-disk request format.
type Document struct {
	DefaultMode     string   `json:"defaultMode" yaml:"defaultMode"`
	Modes           []string `json:"modes,omitempty" yaml:"modes,omitempty"`
	Audio           bool     `json:"audio,omitempty" yaml:"audio,omitempty"`
	HDR             bool     `json:"hdr,omitempty" yaml:"hdr,omitempty"`
	DeepColor       bool     `json:"deepColor,omitempty" yaml:"deepColor,omitempty"`
	VRR             bool     `json:"vrr,omitempty" yaml:"vrr,omitempty"`
	ListedModesOnly bool     `json:"listedModesOnly,omitempty" yaml:"listedModesOnly,omitempty"`
	DSC             Policy   `json:"dsc,omitempty" yaml:"dsc,omitempty"`
}

// Request converts the document into a generator request and DSC policy.
func (d Document) Request() (edid.Request, Policy, error) {
	if strings.TrimSpace(d.DefaultMode) == "" {
		return edid.Request{}, "", ErrNoDefaultMode
	}
	def, err := ParseMode(d.DefaultMode)
	if err != nil {
		return edid.Request{}, "", err
	}
	modes, err := ParseModes(d.Modes)
	if err != nil {
		return edid.Request{}, "", err
	}
	policy, err := ParsePolicy(string(d.DSC))
	if err != nil {
		return edid.Request{}, "", err
	}
	return edid.Request{
		DefaultMode:     def,
		Modes:           modes,
		Audio:           d.Audio,
		HDR:             d.HDR,
		DeepColor:       d.DeepColor,
		VRR:             d.VRR,
		ListedModesOnly: d.ListedModesOnly,
		DSC:             policy == PolicyOn,
	}, policy, nil
}

// Decode reads a request document in "json" or "yaml" format and validates
// it against the embedded schema.
func Decode(r io.Reader, format string) (Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Document{}, err
	}
	var generic interface{}
	switch strings.ToLower(format) {
	case "json":
		if err := json.Unmarshal(data, &generic); err != nil {
			return Document{}, fmt.Errorf("parse request: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &generic); err != nil {
			return Document{}, fmt.Errorf("parse request: %w", err)
		}
	default:
		return Document{}, fmt.Errorf("unknown request format %q", format)
	}
	if generic == nil {
		return Document{}, ErrNoDefaultMode
	}
	canonical, err := json.Marshal(generic)
	if err != nil {
		return Document{}, fmt.Errorf("parse request: %w", err)
	}
	if err := validate(canonical); err != nil {
		return Document{}, err
	}
	var doc Document
	if err := json.Unmarshal(canonical, &doc); err != nil {
		return Document{}, fmt.Errorf("parse request: %w", err)
	}
	return doc, nil
}

// LoadFile decodes a request document, picking the format from the file
// extension.
func LoadFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, err
	}
	defer f.Close()
	format := strings.TrimPrefix(filepath.Ext(path), ".")
	doc, err := Decode(f, format)
	if err != nil {
		return Document{}, fmt.Errorf("%s: %w", path, err)
	}
	return doc, nil
}

func validate(doc []byte) error {
	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if result.Valid() {
		return nil
	}
	var details []string
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s", ErrSchema, strings.Join(details, "; "))
}
