// Package server exposes the EDID generator and validator over HTTP.
package server

import (
	"cmp"
	"os"
	"path/filepath"
	"time"

	"example.com/edidgen/internal/common"
	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/report"
	"example.com/edidgen/internal/request"
	"example.com/edidgen/internal/vic"
)

// Server owns the generator, the artifact store and the counters behind the
// HTTP API.
type Server struct {
	artifacts  *ArtifactStore
	workDir    string
	uploadsDir string
	generator  *edid.Generator
	policy     request.Policy
	lang       report.Language
	now        func() time.Time
	metrics    *Metrics
	stats      *common.Metrics
}

// Options configures server creation.
type Options struct {
	StorageDir  string
	Table       *vic.Table
	Vendor      string
	ProductName string
	// DefaultDSC applies when a request leaves dsc unset.
	DefaultDSC request.Policy
	Lang       report.Language
	// Now overrides the clock, e.g. to freeze the manufacture year.
	Now func() time.Time
}

// NewServer prepares a private work directory under opts.StorageDir and a
// generator configured from opts.
func NewServer(opts Options) (*Server, error) {
	root := cmp.Or(opts.StorageDir, os.TempDir())
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	workDir, err := os.MkdirTemp(root, "edidd-")
	if err != nil {
		return nil, err
	}
	uploadsDir := filepath.Join(workDir, "uploads")
	if err := os.Mkdir(uploadsDir, 0o755); err != nil {
		os.RemoveAll(workDir)
		return nil, err
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Server{
		artifacts:  newArtifactStore(),
		workDir:    workDir,
		uploadsDir: uploadsDir,
		generator: edid.NewGenerator(edid.Options{
			Table:       opts.Table,
			Vendor:      opts.Vendor,
			ProductName: opts.ProductName,
			Now:         now,
			Verbose:     true,
		}),
		policy:  cmp.Or(opts.DefaultDSC, request.PolicyAuto),
		lang:    cmp.Or(opts.Lang, report.LangEnglish),
		now:     now,
		metrics: NewMetrics(),
		stats:   common.NewMetrics(),
	}, nil
}

// Close deletes the work directory and every artifact in it.
func (s *Server) Close() error {
	if s == nil || s.workDir == "" {
		return nil
	}
	return os.RemoveAll(s.workDir)
}

// Stats returns the running generation totals.
func (s *Server) Stats() common.MetricsSnapshot {
	return s.stats.Snapshot()
}
