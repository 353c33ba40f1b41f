package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/MrWong99/chordcoord/internal/fretboard"
)

// FileStore keeps every value as a string under its key in one JSON file,
// the way browser local storage does. Favorites are themselves a JSON array.
// With an empty path nothing is written to disk.
type FileStore struct {
	path string
	now  func() time.Time

	mu     sync.Mutex
	values map[string]string
}

var _ Store = (*FileStore)(nil)

// NewFileStore loads path if it exists. A missing file is an empty store.
func NewFileStore(path string) (*FileStore, error) {
	s := &FileStore{path: path, now: time.Now, values: make(map[string]string)}
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: read %s: %w", path, err)
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &s.values); err != nil {
			return nil, fmt.Errorf("store: parse %s: %w", path, err)
		}
	}
	return s, nil
}

// NewMemoryStore returns a FileStore that never touches disk.
func NewMemoryStore() *FileStore {
	s, _ := NewFileStore("")
	return s
}

// Tempo implements [Store].
func (s *FileStore) Tempo(context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return parseTempo(s.values[KeyTempo]), nil
}

// SaveTempo implements [Store] and metronome.TempoStore.
func (s *FileStore) SaveTempo(_ context.Context, bpm int) error {
	if err := validTempo(bpm); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[KeyTempo] = strconv.Itoa(bpm)
	return s.flushLocked()
}

// Favorites implements [Store].
func (s *FileStore) Favorites(context.Context) ([]Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.favoritesLocked()
}

// AddFavorite implements [Store].
func (s *FileStore) AddFavorite(_ context.Context, name, tuningName string, positions []fretboard.Position) (Favorite, error) {
	fav, err := newFavorite(name, tuningName, positions, s.now())
	if err != nil {
		return Favorite{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	favs, err := s.favoritesLocked()
	if err != nil {
		return Favorite{}, err
	}
	if err := s.saveFavoritesLocked(append(favs, fav)); err != nil {
		return Favorite{}, err
	}
	return fav, nil
}

// RemoveFavorite implements [Store].
func (s *FileStore) RemoveFavorite(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	favs, err := s.favoritesLocked()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(favs, func(f Favorite) bool { return f.ID == id })
	if i < 0 {
		return nil
	}
	return s.saveFavoritesLocked(slices.Delete(favs, i, i+1))
}

// RenameFavorite implements [Store].
func (s *FileStore) RenameFavorite(_ context.Context, id, customName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	favs, err := s.favoritesLocked()
	if err != nil {
		return err
	}
	i := slices.IndexFunc(favs, func(f Favorite) bool { return f.ID == id })
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	favs[i].CustomName = customName
	return s.saveFavoritesLocked(favs)
}

// FindByPositions implements [Store].
func (s *FileStore) FindByPositions(_ context.Context, positions []fretboard.Position, tuningName string) (Favorite, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	favs, err := s.favoritesLocked()
	if err != nil {
		return Favorite{}, false, err
	}
	key := PositionKey(positions)
	for _, f := range favs {
		if f.TuningName == tuningName && PositionKey(f.Positions) == key {
			return f, true, nil
		}
	}
	return Favorite{}, false, nil
}

func (s *FileStore) favoritesLocked() ([]Favorite, error) {
	raw, ok := s.values[KeyFavorites]
	if !ok || raw == "" {
		return []Favorite{}, nil
	}
	var favs []Favorite
	if err := json.Unmarshal([]byte(raw), &favs); err != nil {
		return nil, fmt.Errorf("store: decode favorites: %w", err)
	}
	return favs, nil
}

func (s *FileStore) saveFavoritesLocked(favs []Favorite) error {
	data, err := json.Marshal(favs)
	if err != nil {
		return fmt.Errorf("store: encode favorites: %w", err)
	}
	s.values[KeyFavorites] = string(data)
	return s.flushLocked()
}

// flushLocked replaces the file atomically via a temp file and rename.
func (s *FileStore) flushLocked() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return fmt.Errorf("store: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("store: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".chordcoord-*.json")
	if err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("store: write: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("store: write: %w", err)
	}
	return nil
}
