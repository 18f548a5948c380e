package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadManifest reads the manifest JSON at path, returning an empty
// Manifest if the file does not exist yet (spec §4.8/§9: the manifest
// is a single authoritative JSON map, not per-file blobs).
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewManifest(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("graph: read manifest %s: %w", path, err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("graph: parse manifest %s: %w", path, err)
	}
	if m.Files == nil {
		m.Files = make(map[string]ManifestEntry)
	}
	return &m, nil
}

// SaveManifest writes m to path as a single JSON file via a temp-file-
// then-rename, so a crash mid-write never leaves a half-written
// manifest (spec §4.8: "after each batch the manifest is rewritten as a
// single JSON file, atomic rename"), the same idiom
// search.VectorStore.Save uses for its own persisted state.
func SaveManifest(path string, m *Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("graph: create manifest dir: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: marshal manifest: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("graph: write temp manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("graph: rename manifest: %w", err)
	}
	return nil
}
