package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/levertask/internal/store"
)

// checkpointFile is the in-progress session filename.
const checkpointFile = "session-checkpoint.json"

// SaveCheckpoint persists the session recorded so far to a JSON file in the
// given directory, creating it if needed. A crashed session can be recovered
// from the checkpoint with LoadCheckpoint.
func SaveCheckpoint(dir string, s *store.Session) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session checkpoint: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating checkpoint directory: %w", err)
	}
	path := filepath.Join(dir, checkpointFile)

	// Write atomically via temp file + rename.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing session checkpoint temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		// Clean up temp file on rename failure.
		os.Remove(tmp)
		return fmt.Errorf("renaming session checkpoint file: %w", err)
	}

	return nil
}

// LoadCheckpoint reads a checkpoint from the given directory. It returns
// (nil, nil) when there is none.
func LoadCheckpoint(dir string) (*store.Session, error) {
	data, err := os.ReadFile(filepath.Join(dir, checkpointFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session checkpoint: %w", err)
	}

	var s store.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("unmarshaling session checkpoint: %w", err)
	}
	return &s, nil
}

// CheckpointPath returns the expected path for the checkpoint file in the given directory.
func CheckpointPath(dir string) string {
	return filepath.Join(dir, checkpointFile)
}

// RemoveCheckpoint removes the checkpoint file from the given directory.
// It is not an error if the file does not exist.
func RemoveCheckpoint(dir string) error {
	if err := os.Remove(filepath.Join(dir, checkpointFile)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing session checkpoint: %w", err)
	}
	return nil
}
