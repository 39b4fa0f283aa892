// Package export writes compiled archives to disk as indented JSON.
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"twarchive/internal/model"
)

// WriteTimeline writes tl as {"tweets": [...], "users": [...]}. Tweets keep
// the timeline's order and users are sorted by id, so equal timelines
// produce identical bytes.
func WriteTimeline(path string, tl *model.Timeline) error {
	return WriteJSON(path, tl)
}

// ReadTimeline loads a file written by WriteTimeline.
func ReadTimeline(path string) (*model.Timeline, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("export: read %s: %w", path, err)
	}
	tl := model.NewTimeline()
	if err := json.Unmarshal(b, tl); err != nil {
		return nil, fmt.Errorf("export: decode %s: %w", path, err)
	}
	return tl, nil
}

// WriteJSON writes v indented, replacing path atomically.
func WriteJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("export: encode: %w", err)
	}
	b = append(b, '\n')
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("export: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".export-*")
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("export: write %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("export: %w", err)
	}
	return nil
}
