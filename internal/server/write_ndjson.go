package server

import (
	"encoding/json"
	"net/http"
	"sync"

	"example.com/edidgen/internal/rules"
)

// NDJSONWriter streams one JSON record per line, flushing after each record
// when the response supports it. Diagnostic lines carry "type":"diagnostic"
// so clients can tell them apart from the trailing summary.
type NDJSONWriter struct {
	mu    sync.Mutex
	enc   *json.Encoder
	flush func()
	lines int
}

func NewNDJSONWriter(w http.ResponseWriter) *NDJSONWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	nw := &NDJSONWriter{enc: enc, flush: func() {}}
	if f, ok := w.(http.Flusher); ok {
		nw.flush = f.Flush
	}
	return nw
}

type diagnosticLine struct {
	Type string `json:"type"`
	rules.Diagnostic
}

func (w *NDJSONWriter) WriteDiagnostic(d rules.Diagnostic) error {
	return w.WriteObject(diagnosticLine{Type: "diagnostic", Diagnostic: d})
}

// WriteObject encodes v as a single line. Encoder.Encode appends the newline.
func (w *NDJSONWriter) WriteObject(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(v); err != nil {
		return err
	}
	w.lines++
	w.flush()
	return nil
}

// Lines reports how many records have been written.
func (w *NDJSONWriter) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}
