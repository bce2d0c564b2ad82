package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"stablePool/internal/model"
)

// WriteFileAtomic writes data to path through a temp file and rename, creating
// parent directories as needed.
func WriteFileAtomic(path string, data []byte) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tmp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

// SaveSnapshot writes snapshot as indented JSON.
func SaveSnapshot(path string, snapshot model.PoolSnapshot) error {
	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := WriteFileAtomic(path, append(data, '\n')); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func LoadSnapshot(path string) (model.PoolSnapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("read snapshot: %w", err)
	}
	var snapshot model.PoolSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return model.PoolSnapshot{}, fmt.Errorf("parse snapshot %s: %w", path, err)
	}
	return snapshot, nil
}
