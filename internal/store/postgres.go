package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/chordcoord/internal/fretboard"
)

// Schema is the SQL DDL used by [PostgresStore.Migrate].
const Schema = `
CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS favorites (
    id           TEXT PRIMARY KEY,
    name         TEXT NOT NULL,
    custom_name  TEXT NOT NULL DEFAULT '',
    tuning_name  TEXT NOT NULL,
    positions    JSONB NOT NULL DEFAULT '[]',
    position_key TEXT NOT NULL,
    created_at   BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_favorites_lookup ON favorites(tuning_name, position_key);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Connect opens a pool for dsn and verifies it with a ping.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return pool, nil
}

// PostgresStore is a [Store] backed by PostgreSQL.
type PostgresStore struct {
	db  DB
	now func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore returns a store on db. Call [PostgresStore.Migrate]
// before first use.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// Tempo implements [Store].
func (s *PostgresStore) Tempo(ctx context.Context) (int, error) {
	var v string
	err := s.db.QueryRow(ctx, `SELECT value FROM settings WHERE key = $1`, KeyTempo).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return DefaultTempo, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: tempo: %w", err)
	}
	return parseTempo(v), nil
}

// SaveTempo implements [Store].
func (s *PostgresStore) SaveTempo(ctx context.Context, bpm int) error {
	if err := validTempo(bpm); err != nil {
		return err
	}
	const query = `
		INSERT INTO settings (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
	if _, err := s.db.Exec(ctx, query, KeyTempo, strconv.Itoa(bpm)); err != nil {
		return fmt.Errorf("store: save tempo: %w", err)
	}
	return nil
}

const favoriteColumns = `id, name, custom_name, tuning_name, positions, created_at`

// Favorites implements [Store].
func (s *PostgresStore) Favorites(ctx context.Context) ([]Favorite, error) {
	rows, err := s.db.Query(ctx, `SELECT `+favoriteColumns+` FROM favorites ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: favorites: %w", err)
	}
	favs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Favorite, error) {
		return scanFavorite(row)
	})
	if err != nil {
		return nil, fmt.Errorf("store: favorites: %w", err)
	}
	if favs == nil {
		favs = []Favorite{}
	}
	return favs, nil
}

// AddFavorite implements [Store].
func (s *PostgresStore) AddFavorite(ctx context.Context, name, tuningName string, positions []fretboard.Position) (Favorite, error) {
	fav, err := newFavorite(name, tuningName, positions, s.now())
	if err != nil {
		return Favorite{}, err
	}
	posJSON, err := json.Marshal(fav.Positions)
	if err != nil {
		return Favorite{}, fmt.Errorf("store: marshal positions: %w", err)
	}
	const query = `
		INSERT INTO favorites (id, name, custom_name, tuning_name, positions, position_key, created_at)
		VALUES ($1, $2, '', $3, $4, $5, $6)`
	_, err = s.db.Exec(ctx, query, fav.ID, fav.Name, fav.TuningName, posJSON, PositionKey(fav.Positions), fav.CreatedAt)
	if err != nil {
		return Favorite{}, fmt.Errorf("store: add favorite: %w", err)
	}
	return fav, nil
}

// RemoveFavorite implements [Store].
func (s *PostgresStore) RemoveFavorite(ctx context.Context, id string) error {
	if _, err := s.db.Exec(ctx, `DELETE FROM favorites WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: remove favorite: %w", err)
	}
	return nil
}

// RenameFavorite implements [Store].
func (s *PostgresStore) RenameFavorite(ctx context.Context, id, customName string) error {
	tag, err := s.db.Exec(ctx, `UPDATE favorites SET custom_name = $2 WHERE id = $1`, id, customName)
	if err != nil {
		return fmt.Errorf("store: rename favorite: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// FindByPositions implements [Store].
func (s *PostgresStore) FindByPositions(ctx context.Context, positions []fretboard.Position, tuningName string) (Favorite, bool, error) {
	query := `SELECT ` + favoriteColumns + ` FROM favorites
		WHERE tuning_name = $1 AND position_key = $2
		ORDER BY created_at LIMIT 1`
	fav, err := scanFavorite(s.db.QueryRow(ctx, query, tuningName, PositionKey(positions)))
	if errors.Is(err, pgx.ErrNoRows) {
		return Favorite{}, false, nil
	}
	if err != nil {
		return Favorite{}, false, fmt.Errorf("store: find favorite: %w", err)
	}
	return fav, true, nil
}

func scanFavorite(row pgx.Row) (Favorite, error) {
	var (
		f       Favorite
		posJSON []byte
	)
	if err := row.Scan(&f.ID, &f.Name, &f.CustomName, &f.TuningName, &posJSON, &f.CreatedAt); err != nil {
		return Favorite{}, err
	}
	if err := json.Unmarshal(posJSON, &f.Positions); err != nil {
		return Favorite{}, fmt.Errorf("unmarshal positions: %w", err)
	}
	return f, nil
}
