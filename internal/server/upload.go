package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"example.com/edidgen/internal/block"
)

const maxUploadBytes = 8 << 20

var errUploadTooLarge = fmt.Errorf("upload exceeds %d bytes", maxUploadBytes)

// handleUpload stores EDID blobs for a later /validate?artifact=ID. Hex dumps
// are decoded on the way in so every stored artifact is raw bytes.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	mr, err := r.MultipartReader()
	if err != nil {
		http.Error(w, fmt.Sprintf("parse multipart: %v", err), http.StatusBadRequest)
		return
	}
	var refs []ArtifactRef
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			http.Error(w, fmt.Sprintf("read multipart: %v", err), http.StatusBadRequest)
			return
		}
		name := part.FileName()
		if name == "" {
			part.Close()
			continue
		}
		ref, err := s.storeUpload(name, part)
		part.Close()
		if err != nil {
			status := http.StatusBadRequest
			if errors.Is(err, errUploadTooLarge) {
				status = http.StatusRequestEntityTooLarge
			}
			http.Error(w, fmt.Sprintf("upload %s: %v", name, err), status)
			return
		}
		refs = append(refs, ref)
	}
	if len(refs) == 0 {
		http.Error(w, "no files uploaded", http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Files []ArtifactRef `json:"files"`
	}{Files: refs})
}

func (s *Server) storeUpload(name string, src io.Reader) (ArtifactRef, error) {
	data, err := io.ReadAll(io.LimitReader(src, maxUploadBytes+1))
	if err != nil {
		return ArtifactRef{}, err
	}
	if len(data) > maxUploadBytes {
		return ArtifactRef{}, errUploadTooLarge
	}
	data = maybeHex(data, name)
	if len(data) == 0 || len(data)%block.Size != 0 {
		return ArtifactRef{}, fmt.Errorf("%d bytes is not a whole number of %d-byte blocks", len(data), block.Size)
	}

	dest, err := os.CreateTemp(s.uploadsDir, "upload-*.bin")
	if err != nil {
		return ArtifactRef{}, err
	}
	_, werr := dest.Write(data)
	if cerr := dest.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(dest.Name())
		return ArtifactRef{}, werr
	}
	art, err := s.addArtifact(dest.Name(), filepath.Base(name), "application/octet-stream", "upload")
	if err != nil {
		os.Remove(dest.Name())
		return ArtifactRef{}, err
	}
	return toRef(art), nil
}
