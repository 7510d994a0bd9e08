// Package store provides atomic JSON snapshot persistence.
//
// Every durable mutation in overseer goes through Save: marshal the document,
// write it to a temp file in the same directory, fsync, then rename over the
// target. A crash between two operations therefore never leaves a torn state.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// Save atomically writes v as indented JSON to path, creating parent
// directories as needed.
func Save(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename snapshot: %w", err)
	}
	return nil
}

// Load reads the JSON document at path into v. A missing file is not an
// error; v is left untouched and Load returns false. A malformed file is
// treated as corruption: it is logged as a warning and reported as absent so
// the owning store resets to its empty initial state rather than crashing.
func Load(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("read snapshot: %w", err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		log.Printf("[store] warning: malformed snapshot %s, resetting: %v", path, err)
		return false, nil
	}
	return true, nil
}
