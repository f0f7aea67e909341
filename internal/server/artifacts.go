package server

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// ArtifactRef is the public view of a stored file, as returned by the API.
type ArtifactRef struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// Artifact is a generated or uploaded file living under the work directory.
type Artifact struct {
	ArtifactRef
	Path string
}

// ArtifactStore indexes artifacts by ID and lists them in insertion order.
type ArtifactStore struct {
	mu    sync.RWMutex
	byID  map[string]Artifact
	order []string
}

func newArtifactStore() *ArtifactStore {
	return &ArtifactStore{byID: make(map[string]Artifact)}
}

// Put registers the file at path and returns the stored entry.
func (st *ArtifactStore) Put(path, name, contentType, kind string) (Artifact, error) {
	if path == "" {
		return Artifact{}, errors.New("empty path")
	}
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, err
	}
	if name == "" {
		name = filepath.Base(path)
	}
	if contentType == "" {
		contentType = contentTypeFor(name)
	}
	art := Artifact{
		ArtifactRef: ArtifactRef{
			ID:          uuid.NewString(),
			Name:        name,
			ContentType: contentType,
			Size:        info.Size(),
			Kind:        kind,
		},
		Path: path,
	}
	st.mu.Lock()
	st.byID[art.ID] = art
	st.order = append(st.order, art.ID)
	st.mu.Unlock()
	return art, nil
}

func (st *ArtifactStore) Get(id string) (Artifact, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	art, ok := st.byID[id]
	return art, ok
}

func (st *ArtifactStore) List() []ArtifactRef {
	st.mu.RLock()
	defer st.mu.RUnlock()
	refs := make([]ArtifactRef, 0, len(st.order))
	for _, id := range st.order {
		refs = append(refs, st.byID[id].ArtifactRef)
	}
	return refs
}

var artifactTypes = map[string]string{
	".bin":    "application/octet-stream",
	".cbor":   "application/cbor",
	".json":   "application/json",
	".pdf":    "application/pdf",
	".ndjson": "application/x-ndjson",
	".hex":    "text/plain; charset=utf-8",
}

func contentTypeFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ct, ok := artifactTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// Helpers used by the handlers.

func (s *Server) tempPath(pattern string) (string, error) {
	f, err := os.CreateTemp(s.workDir, pattern)
	if err != nil {
		return "", err
	}
	name := f.Name()
	return name, f.Close()
}

func (s *Server) writeTemp(pattern string, data []byte) (string, error) {
	path, err := s.tempPath(pattern)
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0o644)
}

func (s *Server) addArtifact(path, displayName, contentType, kind string) (Artifact, error) {
	return s.artifacts.Put(path, displayName, contentType, kind)
}

func (s *Server) getArtifact(id string) (Artifact, bool) {
	return s.artifacts.Get(id)
}

func (s *Server) listArtifacts() []ArtifactRef {
	return s.artifacts.List()
}

func toRef(art Artifact) ArtifactRef {
	return art.ArtifactRef
}

func registerErr(what string, err error) error {
	return fmt.Errorf("register %s: %w", what, err)
}
