package source

import (
	"context"
	"io"

	"github.com/banshee-data/trackeff.report/internal/aod"
	"github.com/banshee-data/trackeff.report/internal/db"
)

// SQLite streams events from the AOD tables in collision index order.
type SQLite struct {
	db     *db.DB
	owned  bool
	ids    []int64
	next   int
	loaded bool
}

// OpenSQLite opens (and migrates) an AOD database.
func OpenSQLite(path string) (*SQLite, error) {
	database, err := db.NewDB(path)
	if err != nil {
		return nil, err
	}
	return &SQLite{db: database, owned: true}, nil
}

// NewSQLite reads from an already open database. Close leaves it open.
func NewSQLite(database *db.DB) *SQLite {
	return &SQLite{db: database}
}

func (s *SQLite) Next(ctx context.Context) (*aod.Event, error) {
	if !s.loaded {
		ids, err := s.db.CollisionIDs(ctx)
		if err != nil {
			return nil, err
		}
		s.ids = ids
		s.loaded = true
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.ids) {
		return nil, io.EOF
	}
	id := s.ids[s.next]
	s.next++
	return s.db.LoadEvent(ctx, id)
}

func (s *SQLite) Close() error {
	if s.owned {
		return s.db.Close()
	}
	return nil
}

// SQLiteSink stores events into the AOD tables.
type SQLiteSink struct {
	ctx     context.Context
	db      *db.DB
	written int64
}

// CreateSQLite opens (and migrates) path for writing events.
func CreateSQLite(ctx context.Context, path string) (*SQLiteSink, error) {
	database, err := db.NewDB(path)
	if err != nil {
		return nil, err
	}
	return &SQLiteSink{ctx: ctx, db: database}, nil
}

func (s *SQLiteSink) Write(ev *aod.Event) error {
	if err := s.db.InsertEvent(s.ctx, ev); err != nil {
		return err
	}
	s.written++
	return nil
}

// Written returns the number of events stored.
func (s *SQLiteSink) Written() int64 { return s.written }

func (s *SQLiteSink) Close() error { return s.db.Close() }

var (
	_ Source = (*Slice)(nil)
	_ Source = (*JSONL)(nil)
	_ Source = (*SQLite)(nil)
	_ Sink   = (*Writer)(nil)
	_ Sink   = (*SQLiteSink)(nil)
)
