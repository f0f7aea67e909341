// Package vic holds the CTA-861 Video Identification Code catalogue used to
// map a requested mode onto a standard timing.
package vic

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"example.com/edidgen/internal/timing"
)

//go:embed cta861.json
var builtin []byte

// ErrUnknownFormat is returned when a table file has an unsupported extension.
var ErrUnknownFormat = errors.New("unknown table format")

// Entry is one catalogued timing.
type Entry struct {
	Code          int    `json:"vic" yaml:"vic"`
	Width         int    `json:"width" yaml:"width"`
	Height        int    `json:"height" yaml:"height"`
	Refresh       int    `json:"refresh" yaml:"refresh"`
	PixelClockKHz int    `json:"pixclk" yaml:"pixclk"`
	HFreqHz       int    `json:"hfreq" yaml:"hfreq"`
	Interlaced    bool   `json:"interlaced" yaml:"interlaced"`
	Aspect        string `json:"aspect" yaml:"aspect"`
}

// HFreqKHz returns the horizontal frequency in kHz.
func (e Entry) HFreqKHz() float64 {
	return float64(e.HFreqHz) / 1000
}

// Mode returns the entry's resolution and refresh as a Mode.
func (e Entry) Mode() timing.Mode {
	return timing.Mode{Width: e.Width, Height: e.Height, Refresh: e.Refresh}
}

// Table is an immutable catalogue. Lookups are safe for concurrent use.
type Table struct {
	entries []Entry
	byCode  map[int]Entry
	byKey   map[string][]Entry
}

// New builds a table from entries. Entries with non-positive dimensions or a
// code outside 1..255 are rejected.
func New(entries []Entry) (*Table, error) {
	t := &Table{
		entries: make([]Entry, 0, len(entries)),
		byCode:  make(map[int]Entry, len(entries)),
		byKey:   make(map[string][]Entry),
	}
	for i, e := range entries {
		if e.Code < 1 || e.Code > 255 {
			return nil, fmt.Errorf("entry %d: code %d out of range", i, e.Code)
		}
		if e.Width <= 0 || e.Height <= 0 || e.Refresh <= 0 || e.PixelClockKHz <= 0 {
			return nil, fmt.Errorf("entry %d (vic %d): dimensions and clock must be positive", i, e.Code)
		}
		if _, dup := t.byCode[e.Code]; dup {
			return nil, fmt.Errorf("entry %d: duplicate vic %d", i, e.Code)
		}
		t.entries = append(t.entries, e)
		t.byCode[e.Code] = e
		k := e.Mode().Key()
		t.byKey[k] = append(t.byKey[k], e)
	}
	return t, nil
}

// Default returns the embedded CTA-861 catalogue. It is parsed on first use
// and shared; a Table is read-only once built.
var Default = sync.OnceValue(func() *Table {
	t, err := Load(bytes.NewReader(builtin), "json")
	if err != nil {
		panic("vic: embedded table: " + err.Error())
	}
	return t
})

// Load decodes a table from r. format is "json" or "yaml".
func Load(r io.Reader, format string) (*Table, error) {
	var entries []Entry
	switch strings.ToLower(format) {
	case "json":
		if err := json.NewDecoder(r).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode json table: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&entries); err != nil {
			return nil, fmt.Errorf("decode yaml table: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
	return New(entries)
}

// LoadFile reads a table from path, choosing the decoder by extension.
func LoadFile(path string) (*Table, error) {
	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	if format != "json" && format != "yaml" && format != "yml" {
		return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(f, format)
}

// Match returns the progressive entry for m. When several entries share the
// resolution and refresh, the one whose aspect hint equals m's approximate
// aspect wins; otherwise the first listed.
func (t *Table) Match(m timing.Mode) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	aspect := m.Aspect()
	var first *Entry
	for _, e := range t.byKey[m.Key()] {
		if e.Interlaced {
			continue
		}
		if e.Aspect == aspect {
			return e, true
		}
		if first == nil {
			e := e
			first = &e
		}
	}
	if first == nil {
		return Entry{}, false
	}
	return *first, true
}

// ByCode looks up an entry by its code.
func (t *Table) ByCode(code int) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.byCode[code]
	return e, ok
}

// Entries returns a copy of the catalogue in table order.
func (t *Table) Entries() []Entry {
	if t == nil {
		return nil
	}
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len reports the number of entries.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}
