package source

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/trackeff.report/internal/aod"
)

// maxLineBytes bounds a single encoded event.
const maxLineBytes = 64 << 20

// record is the JSON-lines encoding of one event.
type record struct {
	Collision aod.Collision `json:"collision"`
	Tracks    []aod.Track   `json:"tracks"`
	V0s       []aod.V0      `json:"v0s"`
}

// JSONL reads one event per line. Blank lines are skipped.
type JSONL struct {
	closer  io.Closer
	scanner *bufio.Scanner
	line    int
}

// OpenJSONL opens a JSON-lines file.
func OpenJSONL(path string) (*JSONL, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	src := NewJSONL(f)
	src.closer = f
	return src, nil
}

// NewJSONL reads events from r. Close does not close r.
func NewJSONL(r io.Reader) *JSONL {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &JSONL{scanner: sc}
}

func (j *JSONL) Next(ctx context.Context) (*aod.Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !j.scanner.Scan() {
			if err := j.scanner.Err(); err != nil {
				return nil, fmt.Errorf("line %d: %w", j.line+1, err)
			}
			return nil, io.EOF
		}
		j.line++
		line := bytes.TrimSpace(j.scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", j.line, err)
		}
		return aod.NewEvent(rec.Collision, rec.V0s, rec.Tracks), nil
	}
}

// Line returns the number of lines consumed so far.
func (j *JSONL) Line() int { return j.line }

func (j *JSONL) Close() error {
	if j.closer == nil {
		return nil
	}
	return j.closer.Close()
}

// Writer encodes events as JSON lines.
type Writer struct {
	w       *bufio.Writer
	closer  io.Closer
	written int64
}

// NewWriter writes events to w. Close flushes but does not close w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// CreateJSONL creates or truncates path for writing.
func CreateJSONL(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	wr := NewWriter(f)
	wr.closer = f
	return wr, nil
}

// Write appends one event. Tracks are written in index order.
func (w *Writer) Write(ev *aod.Event) error {
	rec := record{Collision: ev.Collision, Tracks: ev.TrackList(), V0s: ev.V0s}
	if rec.V0s == nil {
		rec.V0s = []aod.V0{}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	w.written++
	return nil
}

// Written returns the number of events written.
func (w *Writer) Written() int64 { return w.written }

func (w *Writer) Close() error {
	err := w.w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
