package offline

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// MemoryStore keeps the snapshot in process memory. Used in tests and for
// sessions that do not need crash durability.
type MemoryStore[T any] struct {
	entries []Entry[T]
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore[T any]() *MemoryStore[T] {
	return &MemoryStore[T]{}
}

func (s *MemoryStore[T]) Load() ([]Entry[T], error) {
	out := make([]Entry[T], len(s.entries))
	copy(out, s.entries)
	return out, nil
}

func (s *MemoryStore[T]) Save(entries []Entry[T]) error {
	s.entries = make([]Entry[T], len(entries))
	copy(s.entries, entries)
	return nil
}

// FileStore persists the snapshot as one JSON file. Writes go to a temp
// file in the same directory followed by a rename, so a crash mid-write
// leaves the previous snapshot intact.
type FileStore[T any] struct {
	path string
}

// NewFileStore creates a store writing to path. The parent directory must
// exist.
func NewFileStore[T any](path string) *FileStore[T] {
	return &FileStore[T]{path: path}
}

func (s *FileStore[T]) Load() ([]Entry[T], error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []Entry[T]{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var entries []Entry[T]
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return entries, nil
}

func (s *FileStore[T]) Save(entries []Entry[T]) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace %s: %w", s.path, err)
	}
	return nil
}
