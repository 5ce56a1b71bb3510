// Package store implements the crash-safe flat-file persistence layer for
// the current set of station records.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/wxagg/aggregator/internal/weather"
)

// Store owns the canonical data file and the mutex that serializes all
// access to it. Callers (the pipeline worker and the sweeper) take the
// mutex explicitly around a load/mutate/save sequence; Store itself does
// not serialize Load/Save/Purge against each other.
type Store struct {
	path    string
	tmpPath string
	log     *slog.Logger

	mu sync.Mutex
}

// New creates a Store backed by the file at path. The sibling temp file
// used for atomic replacement lives in the same directory so the rename is
// guaranteed atomic on the same storage volume.
func New(path string, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	tmp := filepath.Join(dir, base[:len(base)-len(ext)]+".tmp")
	return &Store{path: path, tmpPath: tmp, log: log}
}

// Lock acquires the store mutex. Callers must pair every Lock with Unlock.
func (s *Store) Lock() { s.mu.Lock() }

// Unlock releases the store mutex.
func (s *Store) Unlock() { s.mu.Unlock() }

// Load returns the current list of records. A missing or empty file yields
// an empty list. A parse failure is logged and also yields an empty list:
// it never propagates to the caller, matching the collaborator's own
// swallow-and-continue behavior.
func (s *Store) Load() ([]weather.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("store: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	var records []weather.Record
	if err := json.Unmarshal(data, &records); err != nil {
		s.log.Error("store: parse failure, treating data file as empty", "path", s.path, "error", err)
		return nil, nil
	}
	return records, nil
}

// Save writes the full record list, replacing the canonical file
// atomically: it writes to a sibling temp file, then renames it over the
// canonical path.
func (s *Store) Save(records []weather.Record) error {
	data, err := weather.EncodeList(records)
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}

	if dir := filepath.Dir(s.tmpPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("store: create dir %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(s.tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("store: write temp file %s: %w", s.tmpPath, err)
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		return fmt.Errorf("store: rename %s -> %s: %w", s.tmpPath, s.path, err)
	}
	return nil
}

// Purge removes the canonical data file, if present. It is called on
// aggregator shutdown so tests and restarts start from a clean slate.
func (s *Store) Purge() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("store: remove %s: %w", s.path, err)
	}
	return nil
}
