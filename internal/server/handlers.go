package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"example.com/edidgen/internal/edid"
	"example.com/edidgen/internal/manifest"
	"example.com/edidgen/internal/report"
	"example.com/edidgen/internal/request"
	"example.com/edidgen/internal/rules"
)

const maxRequestBytes = 1 << 20

// GenerateResponse is the JSON body of a successful /generate call.
type GenerateResponse struct {
	ID        string        `json:"id"`
	Report    report.Report `json:"report"`
	Artifacts []ArtifactRef `json:"artifacts"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	format := "json"
	if ct := r.Header.Get("Content-Type"); strings.Contains(ct, "yaml") {
		format = "yaml"
	}
	doc, err := request.Decode(io.LimitReader(r.Body, maxRequestBytes), format)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	explicitDSC := doc.DSC != ""
	req, policy, err := doc.Request()
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if !explicitDSC {
		policy = s.policy
	}
	lang := s.lang
	if q := r.URL.Query().Get("lang"); q != "" {
		if lang, err = report.ParseLanguage(q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}

	start := time.Now()
	res := request.Run(s.generator, req, policy)
	s.observe(res, time.Since(start))

	rep, err := report.New(req, res, s.now())
	if err != nil {
		http.Error(w, fmt.Sprintf("report: %v", err), http.StatusInternalServerError)
		return
	}
	arts, err := s.storeGeneration(res, rep, lang, r.URL.Query().Get("pdf") != "false")
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	switch negotiate(r) {
	case "cbor":
		data, err := report.MarshalCBOR(rep)
		if err != nil {
			http.Error(w, fmt.Sprintf("encode cbor: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/cbor")
		w.Header().Set("X-Artifact-Id", arts[0].ID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	case "bin":
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("X-Artifact-Id", arts[0].ID)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Bytes)
	default:
		writeJSON(w, http.StatusOK, GenerateResponse{ID: arts[0].ID, Report: rep, Artifacts: arts})
	}
}

func (s *Server) observe(res *edid.Result, d time.Duration) {
	s.stats.Observe(len(res.Bytes), len(res.Warnings), res.Valid, d)
	s.metrics.Generations.WithLabelValues(string(res.Metadata.HDMIVersion)).Inc()
	s.metrics.OutputBytes.Observe(float64(len(res.Bytes)))
	s.metrics.Duration.Observe(d.Seconds())
	for _, warn := range res.Warnings {
		s.metrics.Warnings.WithLabelValues(WarningCategory(warn)).Inc()
	}
}

// storeGeneration writes the blob, its hex dump and reports as artifacts.
// The blob is always first.
func (s *Server) storeGeneration(res *edid.Result, rep report.Report, lang report.Language, withPDF bool) ([]ArtifactRef, error) {
	type output struct {
		pattern, name, kind string
		data                func() ([]byte, error)
	}
	outputs := []output{
		{"edid-*.bin", "edid.bin", "edid", func() ([]byte, error) { return res.Bytes, nil }},
		{"edid-*.hex", "edid.hex", "hex", func() ([]byte, error) { return []byte(edid.FormatHex(res.Bytes) + "\n"), nil }},
		{"report-*.json", "report.json", "report", func() ([]byte, error) { return json.MarshalIndent(rep, "", "  ") }},
		{"report-*.cbor", "report.cbor", "report", func() ([]byte, error) { return report.MarshalCBOR(rep) }},
	}
	if withPDF {
		outputs = append(outputs, output{"report-*.pdf", "report.pdf", "report", func() ([]byte, error) { return report.RenderPDF(rep, lang) }})
	}
	refs := make([]ArtifactRef, 0, len(outputs))
	for _, o := range outputs {
		data, err := o.data()
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", o.name, err)
		}
		path, err := s.writeTemp(o.pattern, data)
		if err != nil {
			return nil, fmt.Errorf("write %s: %w", o.name, err)
		}
		art, err := s.addArtifact(path, o.name, "", o.kind)
		if err != nil {
			return nil, registerErr(o.name, err)
		}
		refs = append(refs, toRef(art))
	}
	return refs, nil
}

func negotiate(r *http.Request) string {
	if f := r.URL.Query().Get("format"); f != "" {
		return strings.ToLower(f)
	}
	accept := r.Header.Get("Accept")
	switch {
	case strings.Contains(accept, "application/cbor"):
		return "cbor"
	case strings.Contains(accept, "application/octet-stream"):
		return "bin"
	}
	return "json"
}

// ValidateResponse is the JSON body of a non-streaming /validate call.
type ValidateResponse struct {
	Acceptance rules.AcceptanceReport `json:"acceptance"`
	Issues     []string               `json:"issues"`
	Artifacts  []ArtifactRef          `json:"artifacts"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	data, name, err := s.validationInput(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	engine := rules.NewDefaultEngine()
	engine.SetClock(s.now)
	if v := q.Get("includeTimestamps"); v != "" {
		include, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "includeTimestamps must be a boolean", http.StatusBadRequest)
			return
		}
		engine.SetConfigValue("diag.include_timestamps", include)
	}
	diags, err := engine.Eval(&rules.Context{File: name, Data: data})
	if err != nil {
		http.Error(w, fmt.Sprintf("eval: %v", err), http.StatusInternalServerError)
		return
	}
	rep := engine.MakeAcceptance()
	outcome := "pass"
	if !rep.Summary.Pass {
		outcome = "fail"
	}
	s.metrics.Validations.WithLabelValues(outcome).Inc()

	var artifacts []ArtifactRef
	var buf bytes.Buffer
	if err := engine.WriteNDJSON(&buf); err == nil {
		if path, err := s.writeTemp("diagnostics-*.ndjson", buf.Bytes()); err == nil {
			if art, err := s.addArtifact(path, "diagnostics.ndjson", "application/x-ndjson", "diagnostics"); err == nil {
				artifacts = append(artifacts, toRef(art))
			}
		}
	}

	if q.Get("stream") == "true" {
		w.Header().Set("Content-Type", "application/x-ndjson")
		writer := NewNDJSONWriter(w)
		for _, d := range diags {
			if err := writer.WriteDiagnostic(d); err != nil {
				return
			}
		}
		_ = writer.WriteObject(struct {
			Type       string                 `json:"type"`
			Acceptance rules.AcceptanceReport `json:"acceptance"`
			Artifacts  []ArtifactRef          `json:"artifacts"`
			Total      int                    `json:"diagnostics"`
		}{Type: "acceptance", Acceptance: rep, Artifacts: artifacts, Total: writer.Lines()})
		return
	}
	writeJSON(w, http.StatusOK, ValidateResponse{Acceptance: rep, Issues: engine.Issues(), Artifacts: artifacts})
}

// validationInput reads the blob from ?artifact=ID, a hex text body or a
// raw binary body.
func (s *Server) validationInput(r *http.Request) ([]byte, string, error) {
	if id := r.URL.Query().Get("artifact"); id != "" {
		art, ok := s.getArtifact(id)
		if !ok {
			return nil, "", fmt.Errorf("unknown artifact %s", id)
		}
		data, err := os.ReadFile(art.Path)
		if err != nil {
			return nil, "", err
		}
		return maybeHex(data, art.Name), art.Name, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return nil, "", fmt.Errorf("read body: %w", err)
	}
	if len(data) == 0 {
		return nil, "", errors.New("empty body")
	}
	if strings.HasPrefix(r.Header.Get("Content-Type"), "text/") {
		decoded, err := edid.ParseHex(string(data))
		if err != nil {
			return nil, "", fmt.Errorf("invalid hex: %w", err)
		}
		return decoded, "edid.hex", nil
	}
	return data, "edid.bin", nil
}

func maybeHex(data []byte, name string) []byte {
	if strings.EqualFold(filepath.Ext(name), ".hex") {
		if decoded, err := edid.ParseHex(string(data)); err == nil {
			return decoded
		}
	}
	return data
}

// VICEntry is one row of the /vic listing.
type VICEntry struct {
	Code          int     `json:"vic"`
	Mode          string  `json:"mode"`
	PixelClockKHz int     `json:"pixelClockKHz"`
	HFreqKHz      float64 `json:"hfreqKHz"`
	Interlaced    bool    `json:"interlaced"`
	Aspect        string  `json:"aspect"`
}

func (s *Server) handleVIC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	table := s.generator.Table()
	entries := table.Entries()
	if q := r.URL.Query().Get("mode"); q != "" {
		m, err := request.ParseMode(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		e, ok := table.Match(m)
		if !ok {
			http.NotFound(w, r)
			return
		}
		entries = entries[:0:0]
		entries = append(entries, e)
	}
	out := make([]VICEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, VICEntry{
			Code:          e.Code,
			Mode:          e.Mode().Key(),
			PixelClockKHz: e.PixelClockKHz,
			HFreqKHz:      e.HFreqKHz(),
			Interlaced:    e.Interlaced,
			Aspect:        e.Aspect,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Artifacts []string `json:"artifacts"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid json: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Artifacts) == 0 {
		http.Error(w, "artifacts required", http.StatusBadRequest)
		return
	}
	var paths []string
	for _, id := range req.Artifacts {
		art, ok := s.getArtifact(id)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown artifact %s", id), http.StatusBadRequest)
			return
		}
		paths = append(paths, art.Path)
	}
	m, err := manifest.Build(paths, s.now())
	if err != nil {
		http.Error(w, fmt.Sprintf("build manifest: %v", err), http.StatusInternalServerError)
		return
	}
	for i := range m.Items {
		m.Items[i].Path = filepath.Base(m.Items[i].Path)
	}
	outPath, err := s.tempPath("manifest-*.json")
	if err != nil {
		http.Error(w, fmt.Sprintf("manifest temp: %v", err), http.StatusInternalServerError)
		return
	}
	if err := manifest.Save(m, outPath); err != nil {
		http.Error(w, fmt.Sprintf("write manifest: %v", err), http.StatusInternalServerError)
		return
	}
	art, err := s.addArtifact(outPath, "manifest.json", "application/json", "manifest")
	if err != nil {
		http.Error(w, registerErr("manifest", err).Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Manifest manifest.Manifest `json:"manifest"`
		Artifact ArtifactRef       `json:"artifact"`
	}{Manifest: m, Artifact: toRef(art)})
}

func (s *Server) handleArtifacts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/artifacts")
	id = strings.TrimPrefix(id, "/")
	if id == "" {
		writeJSON(w, http.StatusOK, s.listArtifacts())
		return
	}
	art, ok := s.getArtifact(id)
	if !ok {
		http.NotFound(w, r)
		return
	}
	f, err := os.Open(art.Path)
	if err != nil {
		http.Error(w, fmt.Sprintf("open artifact: %v", err), http.StatusInternalServerError)
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		http.Error(w, fmt.Sprintf("stat artifact: %v", err), http.StatusInternalServerError)
		return
	}
	if art.ContentType != "" {
		w.Header().Set("Content-Type", art.ContentType)
	}
	w.Header().Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", art.Name))
	_, _ = io.Copy(w, f)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.stats.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"generations": snap.Generations,
		"vicEntries":  s.generator.Table().Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
