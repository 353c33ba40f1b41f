package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ---------------------------------------------------------------------------
// Test helpers: mock DB types
// ---------------------------------------------------------------------------

type mockRow struct {
	values []any
	err    error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	return assign(r.values, dest)
}

type mockRows struct {
	data   [][]any
	idx    int
	closed bool
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return nil }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }

func (r *mockRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	r.idx++
	return true
}

func (r *mockRows) Scan(dest ...any) error { return assign(r.data[r.idx-1], dest) }

func assign(row, dest []any) error {
	if len(dest) != len(row) {
		return fmt.Errorf("scan: expected %d columns, got %d destinations", len(row), len(dest))
	}
	for i, v := range row {
		switch d := dest[i].(type) {
		case *string:
			*d = v.(string)
		case *[]byte:
			*d = v.([]byte)
		case *int64:
			*d = v.(int64)
		default:
			return fmt.Errorf("scan: unsupported type at index %d: %T", i, dest[i])
		}
	}
	return nil
}

type execCall struct {
	sql  string
	args []any
}

type mockDB struct {
	queryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFunc    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	execTag      string
	execErr      error
	execs        []execCall
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if m.queryRowFunc != nil {
		return m.queryRowFunc(ctx, sql, args...)
	}
	return &mockRow{err: pgx.ErrNoRows}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if m.queryFunc != nil {
		return m.queryFunc(ctx, sql, args...)
	}
	return &mockRows{}, nil
}

func (m *mockDB) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.execs = append(m.execs, execCall{sql: sql, args: args})
	return pgconn.NewCommandTag(m.execTag), m.execErr
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	if err := NewPostgresStore(db).Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if len(db.execs) != 1 || !strings.Contains(db.execs[0].sql, "CREATE TABLE IF NOT EXISTS favorites") {
		t.Errorf("execs = %+v", db.execs)
	}

	db = &mockDB{execErr: errors.New("permission denied")}
	if err := NewPostgresStore(db).Migrate(context.Background()); err == nil || !strings.Contains(err.Error(), "store: migrate") {
		t.Errorf("err = %v", err)
	}
}

func TestPostgresStore_Tempo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		row     *mockRow
		want    int
		wantErr bool
	}{
		{name: "stored", row: &mockRow{values: []any{"84"}}, want: 84},
		{name: "unset", row: &mockRow{err: pgx.ErrNoRows}, want: DefaultTempo},
		{name: "garbage", row: &mockRow{values: []any{"x"}}, want: DefaultTempo},
		{name: "db error", row: &mockRow{err: errors.New("conn reset")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var gotKey any
			db := &mockDB{queryRowFunc: func(_ context.Context, _ string, args ...any) pgx.Row {
				gotKey = args[0]
				return tt.row
			}}
			bpm, err := NewPostgresStore(db).Tempo(context.Background())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v", err)
			}
			if bpm != tt.want {
				t.Errorf("bpm = %d, want %d", bpm, tt.want)
			}
			if gotKey != KeyTempo {
				t.Errorf("key = %v", gotKey)
			}
		})
	}
}

func TestPostgresStore_SaveTempo(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	if err := s.SaveTempo(context.Background(), 72); err != nil {
		t.Fatalf("SaveTempo: %v", err)
	}
	if len(db.execs) != 1 || db.execs[0].args[1] != "72" || !strings.Contains(db.execs[0].sql, "ON CONFLICT") {
		t.Errorf("execs = %+v", db.execs)
	}
	if err := s.SaveTempo(context.Background(), -1); err == nil {
		t.Error("negative tempo accepted")
	}
	if len(db.execs) != 1 {
		t.Error("invalid tempo reached the database")
	}
}

func TestPostgresStore_AddAndList(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	fav, err := s.AddFavorite(context.Background(), "C Major", "Standard", cShape)
	if err != nil {
		t.Fatalf("AddFavorite: %v", err)
	}
	args := db.execs[0].args
	if args[0] != fav.ID || args[4] != "1-3|2-2|3-0" {
		t.Errorf("insert args = %v", args)
	}
	posJSON := args[3].([]byte)

	db.queryFunc = func(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
		return &mockRows{data: [][]any{
			{fav.ID, "C Major", "campfire", "Standard", posJSON, fav.CreatedAt},
		}}, nil
	}
	favs, err := s.Favorites(context.Background())
	if err != nil {
		t.Fatalf("Favorites: %v", err)
	}
	if len(favs) != 1 || favs[0].CustomName != "campfire" || favs[0].Positions[1].Note != "E" {
		t.Errorf("favorites = %+v", favs)
	}

	db.queryFunc = nil
	if favs, _ := s.Favorites(context.Background()); favs == nil || len(favs) != 0 {
		t.Errorf("empty favorites = %#v", favs)
	}
}

func TestPostgresStore_Rename(t *testing.T) {
	t.Parallel()

	db := &mockDB{execTag: "UPDATE 1"}
	s := NewPostgresStore(db)
	if err := s.RenameFavorite(context.Background(), "id-1", "barre C"); err != nil {
		t.Fatalf("RenameFavorite: %v", err)
	}
	db.execTag = "UPDATE 0"
	if err := s.RenameFavorite(context.Background(), "id-2", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStore_FindByPositions(t *testing.T) {
	t.Parallel()

	db := &mockDB{}
	s := NewPostgresStore(db)
	if _, ok, err := s.FindByPositions(context.Background(), cShape, "Standard"); ok || err != nil {
		t.Fatalf("empty find = %v, %v", ok, err)
	}

	var gotArgs []any
	db.queryRowFunc = func(_ context.Context, _ string, args ...any) pgx.Row {
		gotArgs = args
		return &mockRow{values: []any{"id-1", "C Major", "", "Standard", []byte(`[{"string":1,"fret":3,"note":"C"}]`), int64(5)}}
	}
	fav, ok, err := s.FindByPositions(context.Background(), cShape, "Standard")
	if err != nil || !ok || fav.ID != "id-1" || fav.CreatedAt != 5 {
		t.Fatalf("find = %+v, %v, %v", fav, ok, err)
	}
	if gotArgs[0] != "Standard" || gotArgs[1] != "1-3|2-2|3-0" {
		t.Errorf("args = %v", gotArgs)
	}
}
