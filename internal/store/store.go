// Package store persists the metronome tempo and the chord notebook.
//
// Two backends are provided: [FileStore] keeps a JSON document of string
// values under fixed keys, and [PostgresStore] uses two small tables.
package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/chordcoord/internal/fretboard"
)

// Keys of the persisted values.
const (
	KeyTempo     = "metronome_bpm"
	KeyFavorites = "chord_coordinator_favorites"
)

// DefaultTempo is returned by Tempo when nothing usable is stored.
const DefaultTempo = 120

// ErrNotFound is returned when a favorite id does not exist.
var ErrNotFound = errors.New("store: favorite not found")

// ErrInvalidFavorite is returned by AddFavorite for a missing name or tuning.
var ErrInvalidFavorite = errors.New("store: invalid favorite")

// Favorite is a saved fretboard selection.
type Favorite struct {
	ID         string               `json:"id"`
	Name       string               `json:"name"`
	CustomName string               `json:"customName,omitempty"`
	TuningName string               `json:"tuningName"`
	Positions  []fretboard.Position `json:"positions"`
	// CreatedAt is milliseconds since the Unix epoch.
	CreatedAt int64 `json:"createdAt"`
}

// DisplayName returns the custom name if set, otherwise the chord name.
func (f Favorite) DisplayName() string {
	if f.CustomName != "" {
		return f.CustomName
	}
	return f.Name
}

// Store is implemented by every backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// Tempo returns the saved tempo, or [DefaultTempo].
	Tempo(ctx context.Context) (int, error)
	SaveTempo(ctx context.Context, bpm int) error

	// Favorites returns every favorite, oldest first.
	Favorites(ctx context.Context) ([]Favorite, error)
	// AddFavorite saves a copy of positions under a fresh id.
	AddFavorite(ctx context.Context, name, tuningName string, positions []fretboard.Position) (Favorite, error)
	// RemoveFavorite deletes by id. Unknown ids are not an error.
	RemoveFavorite(ctx context.Context, id string) error
	// RenameFavorite sets the custom name. Unknown ids return [ErrNotFound].
	RenameFavorite(ctx context.Context, id, customName string) error
	// FindByPositions returns the favorite with the same string/fret pairs
	// in the same tuning, in any order.
	FindByPositions(ctx context.Context, positions []fretboard.Position, tuningName string) (Favorite, bool, error)
}

// PositionKey is the order-independent identity of a selection.
func PositionKey(positions []fretboard.Position) string {
	parts := make([]string, len(positions))
	for i, p := range positions {
		parts[i] = strconv.Itoa(p.String) + "-" + strconv.Itoa(p.Fret)
	}
	slices.Sort(parts)
	return strings.Join(parts, "|")
}

func newFavorite(name, tuningName string, positions []fretboard.Position, now time.Time) (Favorite, error) {
	var errs []error
	if strings.TrimSpace(name) == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if tuningName == "" {
		errs = append(errs, errors.New("tuningName is required"))
	}
	if err := errors.Join(errs...); err != nil {
		return Favorite{}, fmt.Errorf("%w: %w", ErrInvalidFavorite, err)
	}
	return Favorite{
		ID:         uuid.NewString(),
		Name:       name,
		TuningName: tuningName,
		Positions:  append([]fretboard.Position{}, positions...),
		CreatedAt:  now.UnixMilli(),
	}, nil
}

func parseTempo(v string) int {
	// Anything that does not read as a positive number falls back.
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return DefaultTempo
	}
	return int(f)
}

func validTempo(bpm int) error {
	if bpm <= 0 {
		return fmt.Errorf("store: tempo must be positive, got %d", bpm)
	}
	return nil
}
