// Package statefile persists the agent's small JSON state documents.
// The contract is deliberately forgiving: a missing, empty, or
// unparsable file is the same as no prior state, never a fatal error.
// The documents assume a single writer; concurrent runs are out of
// contract (the scheduler invokes at most one agent at a time).
package statefile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/NetHorror/netbird-delayed-auto-update-windows/internal/logging"
)

var log = logging.L("statefile")

// Load reads the document at path. nil with no error means no prior
// state.
func Load[T any](path string) (*T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read state file %s: %w", path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		log.Warn("discarding unparsable state file", "path", path, logging.KeyError, err)
		return nil, nil
	}
	return &v, nil
}

// Save writes the document atomically: temp file in the same directory,
// then rename over the destination.
func Save[T any](path string, v *T) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state file %s: %w", path, err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write state file %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace state file %s: %w", path, err)
	}
	return nil
}
