package web

import (
	"cmp"
	"context"
	"crypto/subtle"
	"embed"
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strconv"
	"strings"
	"time"

	"freecal/internal/availability"
	"freecal/internal/config"
	"freecal/internal/ics"
	appLog "freecal/internal/log"
	"freecal/internal/model"
	"freecal/internal/report"
	"freecal/internal/source"
)

// Snapshots is the part of the refresher the server reads from.
type Snapshots interface {
	Snapshot() (source.Set, bool)
	Refresh(ctx context.Context) source.Set
}

// Server provides the JSON API and the embedded heatmap page.
type Server struct {
	cfg         *config.Config
	loc         *time.Location
	snaps       Snapshots
	memo        *availability.Memo
	previewPath string
	mux         *http.ServeMux

	now func() time.Time
}

// embeddedStatic contains the heatmap page served at /.
//
//go:embed all:static
var embeddedStatic embed.FS

// NewServer constructs a new Server. previewPath is the PNG written by
// `freecal capture`; it may not exist yet.
func NewServer(cfg *config.Config, loc *time.Location, snaps Snapshots, previewPath string) *Server {
	if loc == nil {
		loc = time.Local
	}
	s := &Server{
		cfg:         cfg,
		loc:         loc,
		snaps:       snaps,
		memo:        availability.NewMemo(0),
		previewPath: previewPath,
		mux:         http.NewServeMux(),
		now:         time.Now,
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// Run serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Half-configured credentials leave auth off.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="freecal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/availability", s.handleAvailability)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)

	// Everything else falls through to the embedded page.
	s.mux.Handle("/", s.staticFileServer())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// sourceDTO is a source plus its default selection state.
type sourceDTO struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Overlay bool   `json:"overlay"`
	Active  bool   `json:"active"`
}

type sourcesResponse struct {
	Sources  []sourceDTO `json:"sources"`
	Warnings []string    `json:"warnings"`
	LoadedAt time.Time   `json:"loaded_at"`
}

func newSourcesResponse(set source.Set) sourcesResponse {
	resp := sourcesResponse{
		Sources:  make([]sourceDTO, 0, len(set.Sources)),
		Warnings: set.Warnings,
		LoadedAt: set.LoadedAt,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	for _, src := range set.Sources {
		resp.Sources = append(resp.Sources, sourceDTO{
			ID:      src.ID,
			Name:    src.Name,
			Overlay: src.Overlay,
			Active:  set.Active == nil || set.Active[src.ID],
		})
	}
	return resp
}

func (s *Server) handleSources(w http.ResponseWriter, _ *http.Request) {
	set, ok := s.snapshot(w)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, newSourcesResponse(set))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Range    availability.Range `json:"range"`
	Timezone string             `json:"timezone"`
	Events   []model.Event      `json:"events"`
	Failed   []string           `json:"failed,omitempty"`
}

// handleEvents returns the concrete events (recurrences expanded) between
// two days.
//
// GET /api/events?from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	set, ok := s.snapshot(w)
	if !ok {
		return
	}
	from, to, err := s.parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rng := availability.DayRange(from, to, s.loc)
	if rng.End.Before(rng.Start) {
		writeError(w, http.StatusBadRequest, "from is after to")
		return
	}

	expanded := ics.ExpandAll(set.Events, ics.ExpandConfig{
		DisplayLocation:        s.loc,
		RangeStart:             rng.Start,
		RangeEnd:               rng.End,
		MaxOccurrencesPerEvent: s.cfg.MaxOccurrences,
	})
	events := expanded.Events
	if events == nil {
		events = []model.Event{}
	}
	appLog.Debug("api events request", "from", rng.Start.Format(time.RFC3339), "to", rng.End.Format(time.RFC3339), "events", len(events))

	writeJSON(w, http.StatusOK, eventsResponse{
		Range:    rng,
		Timezone: s.loc.String(),
		Events:   events,
		Failed:   expanded.Failed,
	})
}

// handleAvailability serves per-day free/busy statistics.
//
// GET /api/availability?from=&to=&start=H&end=H&sources=a,b&scope=group
//   - from/to:   inclusive days, default today .. today+horizon_days
//   - start/end: work window hours, default work_hours
//   - sources:   restricts the selection; default is every active source
//   - scope:     free-override scope, default override_scope
func (s *Server) handleAvailability(w http.ResponseWriter, r *http.Request) {
	set, ok := s.snapshot(w)
	if !ok {
		return
	}
	q := r.URL.Query()

	from, to, err := s.parseDays(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	window := availability.WorkWindow{StartHour: s.cfg.WorkHours.Start, EndHour: s.cfg.WorkHours.End}
	if window.StartHour, err = parseHour(q.Get("start"), window.StartHour); err != nil {
		writeError(w, http.StatusBadRequest, "start: "+err.Error())
		return
	}
	if window.EndHour, err = parseHour(q.Get("end"), window.EndHour); err != nil {
		writeError(w, http.StatusBadRequest, "end: "+err.Error())
		return
	}
	scope, err := availability.ParseOverrideScope(cmp.Or(q.Get("scope"), s.cfg.OverrideScope))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := report.Build(set, report.Request{
		From:           from,
		To:             to,
		Window:         window,
		Sources:        report.SplitList(q.Get("sources")),
		Scope:          scope,
		Location:       s.loc,
		MaxOccurrences: s.cfg.MaxOccurrences,
		MaxDays:        s.cfg.MaxRangeDays,
	}, s.memo)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleRefresh reloads every calendar synchronously and returns the new
// source list.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	set := s.snaps.Refresh(r.Context())
	s.memo.Reset()
	writeJSON(w, http.StatusOK, newSourcesResponse(set))
}

// handlePreview serves the last captured PNG from disk.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if s.previewPath == "" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	http.ServeFile(w, r, s.previewPath)
}

// staticFileServer serves the embedded files under internal/web/static.
func (s *Server) staticFileServer() http.Handler {
	sub, err := fs.Sub(embeddedStatic, "static")
	if err != nil {
		appLog.Error("failed to initialize embedded static filesystem", err)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "static UI not available", http.StatusServiceUnavailable)
		})
	}

	fileServer := http.FileServer(http.FS(sub))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		// Unknown API paths must 404 as JSON callers expect, never HTML.
		if path == "/api" || strings.HasPrefix(path, "/api/") {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		fileServer.ServeHTTP(w, r)
	})
}

// snapshot writes 503 and returns false until the first load completed.
func (s *Server) snapshot(w http.ResponseWriter) (source.Set, bool) {
	set, ok := s.snaps.Snapshot()
	if !ok {
		writeError(w, http.StatusServiceUnavailable, "calendars are still loading")
	}
	return set, ok
}

// parseDays reads from/to, defaulting to today .. today+horizon_days, and
// enforces max_range_days.
func (s *Server) parseDays(r *http.Request) (time.Time, time.Time, error) {
	q := r.URL.Query()
	y, m, d := s.now().In(s.loc).Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, s.loc)

	from, err := report.ParseDay(q.Get("from"), s.loc, today)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := report.ParseDay(q.Get("to"), s.loc, from.AddDate(0, 0, s.cfg.HorizonDays))
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if err := report.CheckRange(availability.DayRange(from, to, s.loc), s.cfg.MaxRangeDays); err != nil {
		return time.Time{}, time.Time{}, err
	}
	return from, to, nil
}

func parseHour(s string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("hour must be an integer")
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
