// ABOUTME: File-backed Snapshot implementation using a single JSON document
// ABOUTME: The whole conversation map is rewritten on every save

package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileSnapshot persists the conversation map as one JSON document on disk.
type FileSnapshot struct {
	path string
}

// NewFileSnapshot creates a snapshot backed by the given file path.
// Parent directories are created if needed.
func NewFileSnapshot(path string) (*FileSnapshot, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileSnapshot{path: path}, nil
}

// LoadAll reads the snapshot file. A missing file yields an empty map.
func (f *FileSnapshot) LoadAll() (map[string][]Message, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string][]Message), nil
		}
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	conversations := make(map[string][]Message)
	if err := json.Unmarshal(data, &conversations); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}
	return conversations, nil
}

// SaveAll rewrites the snapshot file in full. The document is written to a
// temporary file and renamed into place so a crash mid-write never leaves a
// truncated snapshot behind.
func (f *FileSnapshot) SaveAll(conversations map[string][]Message) error {
	data, err := json.MarshalIndent(conversations, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("replacing snapshot: %w", err)
	}
	return nil
}
