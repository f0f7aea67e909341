// Package manifest records SHA-256 digests of generated artifacts.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"example.com/edidgen/internal/common"
)

type Item struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	Sha256 string `json:"sha256"`
	Type   string `json:"type"`
}

type Manifest struct {
	CreatedAt time.Time `json:"createdAt"`
	ShaAlgo   string    `json:"shaAlgo"`
	Items     []Item    `json:"items"`
}

// Build hashes each path. Paths are recorded as given.
func Build(paths []string, now time.Time) (Manifest, error) {
	m := Manifest{CreatedAt: now.UTC(), ShaAlgo: "sha256"}
	for _, p := range paths {
		hex, sz, err := common.Sha256OfFile(p)
		if err != nil {
			return m, err
		}
		m.Items = append(m.Items, Item{Path: p, Size: sz, Sha256: hex, Type: ItemType(p)})
	}
	return m, nil
}

// ItemType classifies an artifact by extension.
func ItemType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bin", ".edid":
		return "edid"
	case ".hex":
		return "hex"
	case ".json":
		return "json"
	case ".cbor":
		return "cbor"
	case ".ndjson", ".jsonl":
		return "diagnostics"
	case ".pdf":
		return "pdf"
	}
	return "other"
}

func Save(m Manifest, out string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(out, b, 0644)
}

func Load(path string) (Manifest, error) {
	var m Manifest
	b, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}

// Verify re-hashes every item and returns one message per mismatch.
// Relative item paths are resolved against baseDir.
func Verify(m Manifest, baseDir string) []string {
	var problems []string
	for _, it := range m.Items {
		p := it.Path
		if !filepath.IsAbs(p) && baseDir != "" {
			p = filepath.Join(baseDir, p)
		}
		sum, sz, err := common.Sha256OfFile(p)
		switch {
		case err != nil:
			problems = append(problems, fmt.Sprintf("%s: %v", it.Path, err))
		case sum != it.Sha256:
			problems = append(problems, fmt.Sprintf("%s: sha256 mismatch", it.Path))
		case sz != it.Size:
			problems = append(problems, fmt.Sprintf("%s: size %d, want %d", it.Path, sz, it.Size))
		}
	}
	return problems
}
