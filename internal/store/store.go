// Package store archives finished captures on disk and keeps an in-memory
// index for the gallery API.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/framefit/passportcam/internal/log"
	"github.com/framefit/passportcam/pkg/pipeline"
)

// ErrNotFound is returned when a photo id is not in the archive.
var ErrNotFound = errors.New("store: photo not found")

const indexFile = "index.json"

// Entry describes one archived photo.
type Entry struct {
	ID         string    `json:"id"`
	TakenAt    time.Time `json:"taken_at"`
	Background bool      `json:"background"`
	Size       int       `json:"size"`
}

// Store is a directory of JPEG files plus a JSON index, newest first.
type Store struct {
	dir string

	mu      sync.RWMutex
	entries []Entry
}

// Open creates the directory if needed and loads the index. Index entries
// whose files have gone missing are dropped.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("store: create directory: %w", err)
	}

	s := &Store{dir: dir}
	if err := s.loadIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// Dir returns the archive directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the photo to disk and prepends it to the index.
func (s *Store) Save(p pipeline.Photo) (Entry, error) {
	if p.ID == "" || len(p.JPEG) == 0 {
		return Entry{}, errors.New("store: photo has no id or data")
	}

	path := filepath.Join(s.dir, p.ID+".jpg")
	if err := os.WriteFile(path, p.JPEG, 0644); err != nil {
		return Entry{}, fmt.Errorf("store: write photo: %w", err)
	}

	entry := Entry{
		ID:         p.ID,
		TakenAt:    p.TakenAt,
		Background: p.Background,
		Size:       len(p.JPEG),
	}

	s.mu.Lock()
	s.entries = append([]Entry{entry}, s.entries...)
	err := s.saveIndexLocked()
	s.mu.Unlock()

	if err != nil {
		// The photo itself is safe on disk; index rebuild on next Open
		// will not recover metadata, so surface the failure.
		return entry, err
	}

	log.Info("photo archived", "id", entry.ID, "bytes", entry.Size)
	return entry, nil
}

// List returns all entries, newest first.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the JPEG bytes for an archived photo. Only indexed ids are
// served, so the id never reaches the filesystem unchecked.
func (s *Store) Get(id string) ([]byte, error) {
	s.mu.RLock()
	found := false
	for _, e := range s.entries {
		if e.ID == id {
			found = true
			break
		}
	}
	s.mu.RUnlock()

	if !found {
		return nil, ErrNotFound
	}

	data, err := os.ReadFile(filepath.Join(s.dir, id+".jpg"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: read photo: %w", err)
	}
	return data, nil
}

// Delete removes a photo and its index entry.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, e := range s.entries {
		if e.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ErrNotFound
	}

	if err := os.Remove(filepath.Join(s.dir, id+".jpg")); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: remove photo: %w", err)
	}
	s.entries = append(s.entries[:idx], s.entries[idx+1:]...)
	return s.saveIndexLocked()
}

// Count returns the number of archived photos.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *Store) loadIndex() error {
	data, err := os.ReadFile(filepath.Join(s.dir, indexFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store: read index: %w", err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("store: parse index: %w", err)
	}

	kept := entries[:0]
	for _, e := range entries {
		if _, err := os.Stat(filepath.Join(s.dir, e.ID+".jpg")); err == nil {
			kept = append(kept, e)
		} else {
			log.Warn("dropping index entry with missing file", "id", e.ID)
		}
	}
	s.entries = kept
	return nil
}

func (s *Store) saveIndexLocked() error {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(s.dir, indexFile), data, 0644); err != nil {
		return fmt.Errorf("store: write index: %w", err)
	}
	return nil
}
