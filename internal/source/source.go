// Package source reads analysis events from JSON-lines files or an AOD
// SQLite database.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/banshee-data/trackeff.report/internal/aod"
)

// ErrUnknownFormat is returned by Open for an unrecognised file extension.
var ErrUnknownFormat = errors.New("unknown event source format")

// Source yields events in order. Next returns io.EOF after the last event.
type Source interface {
	Next(ctx context.Context) (*aod.Event, error)
	Close() error
}

// Format identifies an on-disk event format.
type Format string

const (
	FormatJSONL  Format = "jsonl"
	FormatSQLite Format = "sqlite"
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".db", ".sqlite", ".sqlite3":
		return FormatSQLite, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownFormat, path)
}

// Open opens path with the reader matching its extension.
func Open(path string) (Source, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatSQLite {
		src, err := OpenSQLite(path)
		if err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := OpenJSONL(path)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// Sink receives events, as written by the generator.
type Sink interface {
	Write(ev *aod.Event) error
	Close() error
}

// Create opens a sink for path by extension.
func Create(ctx context.Context, path string) (Sink, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatSQLite {
		sink, err := CreateSQLite(ctx, path)
		if err != nil {
			return nil, err
		}
		return sink, nil
	}
	sink, err := CreateJSONL(path)
	if err != nil {
		return nil, err
	}
	return sink, nil
}

// Slice serves events from memory.
type Slice struct {
	events []*aod.Event
	next   int
}

// NewSlice returns a source over events.
func NewSlice(events ...*aod.Event) *Slice {
	return &Slice{events: events}
}

func (s *Slice) Next(ctx context.Context) (*aod.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.events) {
		return nil, io.EOF
	}
	ev := s.events[s.next]
	s.next++
	return ev, nil
}

func (s *Slice) Close() error { return nil }
