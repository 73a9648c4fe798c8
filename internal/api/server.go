// Package api serves stored analysis runs over HTTP: run metadata,
// histogram bins, efficiency curves and chart pages.
package api

import (
	"bytes"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/trackeff.report/internal/config"
	"github.com/banshee-data/trackeff.report/internal/db"
	"github.com/banshee-data/trackeff.report/internal/efficiency"
	"github.com/banshee-data/trackeff.report/internal/httputil"
	"github.com/banshee-data/trackeff.report/internal/report"
	"github.com/banshee-data/trackeff.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

type Server struct {
	db  *db.DB
	cfg *config.AnalysisConfig
}

// NewServer serves the runs stored in database. cfg supplies the default
// efficiency mass window and confidence level; nil uses the built-in defaults.
func NewServer(database *db.DB, cfg *config.AnalysisConfig) *Server {
	if cfg == nil {
		cfg = config.EmptyAnalysisConfig()
	}
	return &Server{db: database, cfg: cfg}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/runs", s.listRuns)
	mux.HandleFunc("/api/runs/{id}", s.handleRun)
	mux.HandleFunc("/api/runs/{id}/histograms/{name...}", s.showHistogram)
	mux.HandleFunc("/api/runs/{id}/efficiency", s.showEfficiency)
	mux.HandleFunc("/runs/{id}/charts", s.showCharts)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/version", s.showVersion)
	return mux
}

// writeStoreError maps storage errors onto responses.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, db.ErrRunNotFound) {
		httputil.NotFound(w, err.Error())
		return
	}
	httputil.InternalServerError(w, err.Error())
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	runs, err := s.db.ListRuns(r.Context())
	if err != nil {
		writeStoreError(w, err)
		return
	}
	httputil.WriteJSONOK(w, runs)
}

// RunDetail is a run with the list of its histograms.
type RunDetail struct {
	Run        db.Run             `json:"run"`
	Histograms []db.HistogramInfo `json:"histograms"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	switch r.Method {
	case http.MethodGet:
		run, err := s.db.GetRun(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		infos, err := s.db.RunHistograms(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		httputil.WriteJSONOK(w, RunDetail{Run: *run, Histograms: infos})
	case http.MethodDelete:
		if err := s.db.DeleteRun(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		httputil.MethodNotAllowed(w, http.MethodGet, http.MethodDelete)
	}
}

func (s *Server) showEfficiency(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	q := r.URL.Query()
	v, err := efficiency.ParseVariable(valueOr(q.Get("axis"), string(efficiency.VsPt)))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	status, err := efficiency.ParseStatus(valueOr(q.Get("status"), string(efficiency.StatusITS)))
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	opts, err := s.efficiencyOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	reg, err := s.db.LoadRunRegistry(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	curve, err := efficiency.FromRegistry(reg, status, v, opts)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, curve)
}

func (s *Server) showCharts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	opts, err := s.efficiencyOptions(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	id := r.PathValue("id")
	reg, err := s.db.LoadRunRegistry(r.Context(), id)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	curves, err := report.Curves(reg, opts)
	if err != nil {
		httputil.InternalServerError(w, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := report.RenderCharts(&buf, reg.Name()+" (run "+id+")", reg, curves); err != nil {
		httputil.InternalServerError(w, "failed to render charts: "+err.Error())
		return
	}
	httputil.WriteHTML(w, buf.Bytes())
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, s.cfg.Resolved())
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w, http.MethodGet)
		return
	}
	httputil.WriteJSONOK(w, version.Current())
}

// efficiencyOptions reads mass_min, mass_max and cl query overrides.
func (s *Server) efficiencyOptions(r *http.Request) (efficiency.Options, error) {
	opts := efficiency.Options{
		MassMin:         s.cfg.GetEfficiencyMassMin(),
		MassMax:         s.cfg.GetEfficiencyMassMax(),
		ConfidenceLevel: s.cfg.GetConfidenceLevel(),
	}
	q := r.URL.Query()
	for _, p := range []struct {
		key string
		dst *float64
	}{
		{"mass_min", &opts.MassMin},
		{"mass_max", &opts.MassMax},
		{"cl", &opts.ConfidenceLevel},
	} {
		raw := q.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return opts, errors.New("invalid '" + p.key + "' parameter")
		}
		*p.dst = v
	}
	if !(opts.MassMin < opts.MassMax) {
		return opts, errors.New("mass_min must be below mass_max")
	}
	if !(opts.ConfidenceLevel > 0 && opts.ConfidenceLevel < 1) {
		return opts, errors.New("cl must be in (0, 1)")
	}
	return opts, nil
}

func valueOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
