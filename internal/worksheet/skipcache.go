package worksheet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"rpm/internal/schedule"
)

// SkipCache is the durable local copy of the skip registry, a JSON file.
type SkipCache struct {
	Path string
}

type skipFile struct {
	Version int                `json:"version"`
	Keys    []schedule.SkipKey `json:"keys"`
}

// Load returns the stored keys; a missing file yields none.
func (c SkipCache) Load() ([]schedule.SkipKey, error) {
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var f skipFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse skip cache %s: %w", c.Path, err)
	}
	return f.Keys, nil
}

// Save replaces the file contents atomically.
func (c SkipCache) Save(keys []schedule.SkipKey) error {
	if keys == nil {
		keys = []schedule.SkipKey{}
	}
	data, err := json.MarshalIndent(skipFile{Version: 1, Keys: keys}, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.Path), 0o755); err != nil {
		return err
	}
	tmp := c.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, c.Path)
}
