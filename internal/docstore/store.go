// Package docstore persists the shared business documents as flat JSON
// files with atomic replace-on-write semantics.
package docstore

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/venturelab/sprint-copilot/internal/shared"
)

// Document names. Each maps to one JSON file under the data directory.
const (
	DocSprints  = "sprints"
	DocBMC      = "business_model_canvas"
	DocVPC      = "value_proposition_canvas"
	DocSegments = "customer_segments"
)

// document is one named JSON file plus its serialization point. Updates to
// the same document never interleave; updates to different documents are
// independent.
type document struct {
	mu    sync.Mutex
	path  string
	empty func() map[string]any
}

// Store provides atomic load/merge-update/save over the named documents.
// It knows nothing about sessions or phases.
type Store struct {
	docs map[string]*document
}

// New creates a store over the four standard documents in dataDir. The
// directory is created if missing.
func New(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, shared.StoreIO("failed to create data directory", err)
	}
	emptyObject := func() map[string]any { return map[string]any{} }
	return &Store{
		docs: map[string]*document{
			DocSprints: {
				path: filepath.Join(dataDir, "sprints.json"),
				empty: func() map[string]any {
					return map[string]any{"sprints": []any{}, "sprint_analysis": map[string]any{}}
				},
			},
			DocBMC: {
				path:  filepath.Join(dataDir, "business_model_canvas.json"),
				empty: emptyObject,
			},
			DocVPC: {
				path:  filepath.Join(dataDir, "value_proposition_canvas.json"),
				empty: emptyObject,
			},
			DocSegments: {
				path: filepath.Join(dataDir, "customer_segments.json"),
				empty: func() map[string]any {
					return map[string]any{"customer_segments": []any{}}
				},
			},
		},
	}, nil
}

func (s *Store) doc(name string) (*document, error) {
	d, ok := s.docs[name]
	if !ok {
		return nil, shared.NotFound("unknown document %q", name)
	}
	return d, nil
}

// Load returns the current full document. A missing or corrupt file yields
// the document's empty default rather than an error.
func (s *Store) Load(name string) (map[string]any, error) {
	d, err := s.doc(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.read(), nil
}

// Update applies patch at key using merge-on-matching-shape rules and
// persists the result atomically. It returns the full updated document.
func (s *Store) Update(name, key string, patch json.RawMessage) (map[string]any, error) {
	patchVal, err := parsePatch(patch)
	if err != nil {
		return nil, err
	}

	d, err := s.doc(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	data := d.read()
	data[key] = mergeValue(data[key], patchVal)

	if err := d.write(data); err != nil {
		return nil, err
	}
	return data, nil
}

// UpdateByID locates the first element of the list at listKey whose "id"
// field equals id, merges patch into that element only, and persists the
// document. It returns the updated element, or NotFound when no element
// matches; the on-disk document is unchanged on any failure.
func (s *Store) UpdateByID(name, listKey, id string, patch json.RawMessage) (map[string]any, error) {
	patchVal, err := parsePatch(patch)
	if err != nil {
		return nil, err
	}

	d, err := s.doc(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	data := d.read()
	list, _ := data[listKey].([]any)
	idx := -1
	for i, elem := range list {
		if m, ok := elem.(map[string]any); ok && m["id"] == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, shared.NotFound("element %q not found in %s.%s", id, name, listKey)
	}

	list[idx] = mergeValue(list[idx], patchVal)
	data[listKey] = list

	if err := d.write(data); err != nil {
		return nil, err
	}
	updated, ok := list[idx].(map[string]any)
	if !ok {
		// Patch was not a mapping; the element was replaced verbatim.
		return map[string]any{"id": id, "value": list[idx]}, nil
	}
	return updated, nil
}

// Apply runs fn against the current document value and persists the result,
// all under the document's serialization point. fn may mutate the value in
// place; returning an error abandons the update and leaves the on-disk
// document unchanged. Callers use this for read-modify-write sequences that
// must not interleave with other writers.
func (s *Store) Apply(name string, fn func(data map[string]any) error) (map[string]any, error) {
	d, err := s.doc(name)
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	data := d.read()
	if err := fn(data); err != nil {
		return nil, err
	}
	if err := d.write(data); err != nil {
		return nil, err
	}
	return data, nil
}

func parsePatch(patch json.RawMessage) (any, error) {
	var v any
	if err := json.Unmarshal(patch, &v); err != nil {
		return nil, shared.Validation("patch is not well-formed JSON: %v", err)
	}
	return v, nil
}

// read loads the document from disk, falling back to the empty default on a
// missing or corrupt file. Callers must hold d.mu.
func (d *document) read() map[string]any {
	raw, err := os.ReadFile(d.path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("Failed to read document, using default", "path", d.path, "error", err)
		}
		return d.empty()
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		slog.Warn("Document is not valid JSON, using default", "path", d.path, "error", err)
		return d.empty()
	}
	return data
}

// write persists data atomically: marshal, write a temp file in the same
// directory, fsync, then rename over the document path. A concurrent reader
// observes either the fully-old or fully-new file, never a torn write.
// Callers must hold d.mu.
func (d *document) write(data map[string]any) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return shared.Validation("document not serializable: %v", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(d.path), filepath.Base(d.path)+".*.tmp")
	if err != nil {
		return shared.StoreIO("failed to create temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return shared.StoreIO("failed to write temp file", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return shared.StoreIO("failed to sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return shared.StoreIO("failed to close temp file", err)
	}
	if err := os.Rename(tmpName, d.path); err != nil {
		_ = os.Remove(tmpName)
		return shared.StoreIO("failed to replace document", err)
	}
	return nil
}
