package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go-hep.org/x/hep/hbook"

	"github.com/banshee-data/trackeff.report/internal/hist"
	"github.com/banshee-data/trackeff.report/internal/k0seff"
)

// Run is one stored execution of the analysis.
type Run struct {
	ID            string          `json:"run_id"`
	StartedAt     time.Time       `json:"started_at"`
	FinishedAt    time.Time       `json:"finished_at"`
	Registry      string          `json:"registry"`
	Input         string          `json:"input"`
	Config        json.RawMessage `json:"config"`
	Stats         k0seff.Stats    `json:"stats"`
	EventsSkipped int64           `json:"events_skipped"`
}

// Duration returns the wall time of the run.
func (r Run) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// HistogramInfo describes a stored histogram without its bins.
type HistogramInfo struct {
	Name   string         `json:"name"`
	Kind   hist.Kind      `json:"kind"`
	Title  string         `json:"title"`
	Axes   []hist.Axis    `json:"axes"`
	Labels map[int]string `json:"labels,omitempty"`
}

func h1Title(h *hbook.H1D) string {
	if s, ok := h.Ann["title"].(string); ok {
		return s
	}
	return ""
}

// RecordRun stores the run metadata and every histogram of reg. A missing
// run ID is generated.
func (db *DB) RecordRun(ctx context.Context, run *Run, reg *hist.Registry) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if len(run.Config) == 0 {
		run.Config = json.RawMessage("{}")
	}
	if run.Registry == "" {
		run.Registry = reg.Name()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `INSERT INTO analysis_runs (
			run_id, started_unix_nanos, finished_unix_nanos, registry, input, config_json,
			events_seen, events_selected, events_skipped, candidates_evaluated, candidates_accepted
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(), run.Registry, run.Input, string(run.Config),
		run.Stats.EventsSeen, run.Stats.EventsSelected, run.EventsSkipped,
		run.Stats.CandidatesEvaluated, run.Stats.CandidatesAccepted,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for pos, name := range reg.Names() {
		kind, _ := reg.Kind(name)
		switch kind {
		case hist.KindH1:
			err = insertH1(ctx, tx, run.ID, pos, reg.H1(name))
		case hist.KindSparse:
			err = insertSparse(ctx, tx, run.ID, pos, reg.Sparse(name))
		}
		if err != nil {
			return fmt.Errorf("store histogram %s: %w", name, err)
		}
	}
	return tx.Commit()
}

func insertHistogram(ctx context.Context, tx *sql.Tx, runID string, pos int, info HistogramInfo, yoda *string) error {
	axes, err := json.Marshal(info.Axes)
	if err != nil {
		return err
	}
	labels := []byte("{}")
	if len(info.Labels) > 0 {
		if labels, err = json.Marshal(info.Labels); err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO run_histograms (
			run_id, name, kind, title, position, axes_json, labels_json, yoda
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, info.Name, string(info.Kind), info.Title, pos, string(axes), string(labels), yoda)
	return err
}

func insertH1(ctx context.Context, tx *sql.Tx, runID string, pos int, h *hist.H1) error {
	raw, err := h.MarshalYODA()
	if err != nil {
		return err
	}
	yoda := string(raw)
	info := HistogramInfo{
		Name:   h.Ann["name"].(string),
		Kind:   hist.KindH1,
		Title:  h1Title(h.H1D),
		Axes:   []hist.Axis{h.Axis},
		Labels: h.BinLabels(),
	}
	if err := insertHistogram(ctx, tx, runID, pos, info, &yoda); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_h1_bins (
			run_id, name, bin, entries, sumw, sumw2, sumwx, sumwx2
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	insert := func(bin int, d *hbook.Dist1D) error {
		if d.Entries() == 0 {
			return nil
		}
		_, err := stmt.ExecContext(ctx, runID, info.Name, bin,
			d.Entries(), d.SumW(), d.SumW2(), d.SumWX(), d.SumWX2())
		return err
	}
	if err := insert(0, h.Binning.Underflow()); err != nil {
		return err
	}
	for i := range h.Binning.Bins {
		if err := insert(i+1, &h.Binning.Bins[i].Dist); err != nil {
			return err
		}
	}
	return insert(h.Axis.NBins+1, h.Binning.Overflow())
}

func insertSparse(ctx context.Context, tx *sql.Tx, runID string, pos int, s *hist.Sparse) error {
	info := HistogramInfo{Name: s.Name(), Kind: hist.KindSparse, Title: s.Title(), Axes: s.Axes()}
	if err := insertHistogram(ctx, tx, runID, pos, info, nil); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_sparse_bins (run_id, name, bins, entries, sumw, sumw2) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	var ferr error
	s.Each(func(bins []int, content hist.SparseBin) {
		if ferr != nil {
			return
		}
		_, ferr = stmt.ExecContext(ctx, runID, s.Name(), formatBins(bins), content.Entries, content.SumW, content.SumW2)
	})
	return ferr
}

func formatBins(bins []int) string {
	parts := make([]string, len(bins))
	for i, b := range bins {
		parts[i] = strconv.Itoa(b)
	}
	return strings.Join(parts, ",")
}

func parseBins(s string) ([]int, error) {
	parts := strings.Split(s, ",")
	bins := make([]int, len(parts))
	for i, p := range parts {
		b, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad bin key %q: %w", s, err)
		}
		bins[i] = b
	}
	return bins, nil
}

const runColumns = `run_id, started_unix_nanos, finished_unix_nanos, registry, input, config_json,
	events_seen, events_selected, events_skipped, candidates_evaluated, candidates_accepted`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (Run, error) {
	var (
		r                 Run
		started, finished int64
		config            string
	)
	if err := row.Scan(&r.ID, &started, &finished, &r.Registry, &r.Input, &config,
		&r.Stats.EventsSeen, &r.Stats.EventsSelected, &r.EventsSkipped,
		&r.Stats.CandidatesEvaluated, &r.Stats.CandidatesAccepted); err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started).UTC()
	r.FinishedAt = time.Unix(0, finished).UTC()
	r.Config = json.RawMessage(config)
	return r, nil
}

// ListRuns returns stored runs, most recent first.
func (db *DB) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+runColumns+` FROM analysis_runs ORDER BY started_unix_nanos DESC, run_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns one run or ErrRunNotFound.
func (db *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM analysis_runs WHERE run_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// DeleteRun removes a run and its histograms.
func (db *DB) DeleteRun(ctx context.Context, id string) error {
	res, err := db.ExecContext(ctx, `DELETE FROM analysis_runs WHERE run_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrRunNotFound)
	}
	return nil
}

// RunHistograms lists the histograms stored for a run in registration order.
func (db *DB) RunHistograms(ctx context.Context, id string) ([]HistogramInfo, error) {
	if _, err := db.GetRun(ctx, id); err != nil {
		return nil, err
	}
	return db.runHistograms(ctx, id)
}

func (db *DB) runHistograms(ctx context.Context, id string) ([]HistogramInfo, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, kind, title, axes_json, labels_json
		FROM run_histograms WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	infos := []HistogramInfo{}
	for rows.Next() {
		var (
			info         HistogramInfo
			kind         string
			axes, labels string
		)
		if err := rows.Scan(&info.Name, &kind, &info.Title, &axes, &labels); err != nil {
			return nil, err
		}
		info.Kind = hist.Kind(kind)
		if err := json.Unmarshal([]byte(axes), &info.Axes); err != nil {
			return nil, fmt.Errorf("histogram %s axes: %w", info.Name, err)
		}
		if err := json.Unmarshal([]byte(labels), &info.Labels); err != nil {
			return nil, fmt.Errorf("histogram %s labels: %w", info.Name, err)
		}
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// LoadRunRegistry rebuilds the histogram registry recorded for a run. Bin
// contents come back exactly as stored.
func (db *DB) LoadRunRegistry(ctx context.Context, id string) (*hist.Registry, error) {
	run, err := db.GetRun(ctx, id)
	if err != nil {
		return nil, err
	}
	infos, err := db.runHistograms(ctx, id)
	if err != nil {
		return nil, err
	}

	reg := hist.NewRegistry(run.Registry)
	for _, info := range infos {
		switch info.Kind {
		case hist.KindH1:
			if len(info.Axes) != 1 {
				return nil, fmt.Errorf("histogram %s: want 1 axis, got %d", info.Name, len(info.Axes))
			}
			ax := info.Axes[0]
			h := hbook.NewH1D(ax.NBins, ax.Min, ax.Max)
			h.Ann["name"] = info.Name
			h.Ann["title"] = info.Title
			if err := db.loadH1Bins(ctx, id, info.Name, h); err != nil {
				return nil, err
			}
			reg.Restore1D(info.Name, h, ax, info.Labels)
		case hist.KindSparse:
			s := hist.NewSparse(info.Name, info.Title, info.Axes...)
			if err := db.loadSparseBins(ctx, id, s); err != nil {
				return nil, err
			}
			reg.RestoreSparse(s)
		default:
			return nil, fmt.Errorf("histogram %s: unknown kind %q", info.Name, info.Kind)
		}
	}
	return reg, nil
}

func (db *DB) loadH1Bins(ctx context.Context, id, name string, h *hbook.H1D) error {
	rows, err := db.QueryContext(ctx, `SELECT bin, entries, sumw, sumw2, sumwx, sumwx2
		FROM run_h1_bins WHERE run_id = ? AND name = ? ORDER BY bin`, id, name)
	if err != nil {
		return err
	}
	defer rows.Close()

	nbins := len(h.Binning.Bins)
	var total hbook.Dist1D
	for rows.Next() {
		var (
			bin int
			d   hbook.Dist1D
		)
		if err := rows.Scan(&bin, &d.Dist.N, &d.Dist.SumW, &d.Dist.SumW2, &d.Stats.SumWX, &d.Stats.SumWX2); err != nil {
			return err
		}
		switch {
		case bin == 0:
			*h.Binning.Underflow() = d
		case bin == nbins+1:
			*h.Binning.Overflow() = d
		case bin >= 1 && bin <= nbins:
			h.Binning.Bins[bin-1].Dist = d
		default:
			return fmt.Errorf("histogram %s: bin %d outside 0..%d", name, bin, nbins+1)
		}
		total.Dist.N += d.Dist.N
		total.Dist.SumW += d.Dist.SumW
		total.Dist.SumW2 += d.Dist.SumW2
		total.Stats.SumWX += d.Stats.SumWX
		total.Stats.SumWX2 += d.Stats.SumWX2
	}
	if err := rows.Err(); err != nil {
		return err
	}
	h.Binning.Dist = total
	return nil
}

func (db *DB) loadSparseBins(ctx context.Context, id string, s *hist.Sparse) error {
	rows, err := db.QueryContext(ctx, `SELECT bins, entries, sumw, sumw2
		FROM run_sparse_bins WHERE run_id = ? AND name = ?`, id, s.Name())
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			key     string
			content hist.SparseBin
		)
		if err := rows.Scan(&key, &content.Entries, &content.SumW, &content.SumW2); err != nil {
			return err
		}
		bins, err := parseBins(key)
		if err != nil {
			return err
		}
		if len(bins) != s.Dims() {
			return fmt.Errorf("histogram %s: bin key %q has %d dims, want %d", s.Name(), key, len(bins), s.Dims())
		}
		s.AddBin(bins, content)
	}
	return rows.Err()
}
