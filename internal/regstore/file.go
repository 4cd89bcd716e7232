package regstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// LoadFile reads a JSON document into out.
//
// exists reports whether the file was present at all; corrupt reports
// whether it existed but failed to parse. A corrupt file is left untouched
// on disk; the caller degrades to an empty in-memory registry and gates
// writes until the operator repairs or removes it.
func LoadFile(path string, out any) (exists bool, corrupt bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, false
		}
		return true, true
	}

	if err := json.Unmarshal(data, out); err != nil {
		return true, true
	}

	return true, false
}

// SaveFile writes value as indented JSON to path atomically: write to a
// temp file in the same directory, then rename over the destination.
func SaveFile(path string, value any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create registry directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", path, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpPath, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to save %s: %w", path, err)
	}

	return nil
}
