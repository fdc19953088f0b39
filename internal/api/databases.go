package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/nerrad567/graystore/internal/infrastructure/database"
)

// databaseInfo describes one open database.
type databaseInfo struct {
	Path     string   `json:"path"`
	Readonly bool     `json:"readonly"`
	Configs  []string `json:"configs"`
	WALPages int      `json:"wal_pages"`
	Connects int64    `json:"connects"`
	Error    string   `json:"error,omitempty"`
}

// checkpointRequest is the body of POST /checkpoint. An empty body or an
// empty path list requests every open database.
type checkpointRequest struct {
	Paths []string `json:"paths"`
}

// statsResponse is the body of GET /checkpoint/stats.
type statsResponse struct {
	Observed      int64 `json:"observed"`
	Queued        int64 `json:"queued"`
	Dropped       int64 `json:"dropped"`
	Skipped       int64 `json:"skipped"`
	Completed     int64 `json:"completed"`
	Failed        int64 `json:"failed"`
	Pending       int   `json:"pending"`
	DelayMS       int64 `json:"delay_ms"`
	PageThreshold int   `json:"page_threshold"`
}

func (s *Server) describe(r *http.Request, db *database.DB) databaseInfo {
	info := databaseInfo{
		Path:     db.Path(),
		Readonly: db.IsReadonly(),
		Configs:  db.Chain().Names(),
		Connects: db.Connects(),
	}
	pages, err := db.WALPages(r.Context())
	if err != nil {
		info.Error = err.Error()
	}
	info.WALPages = pages
	return info
}

func (s *Server) handleListDatabases(w http.ResponseWriter, r *http.Request) error {
	paths := s.databases.Paths()
	out := make([]databaseInfo, 0, len(paths))
	for _, path := range paths {
		if db, ok := s.databases.Get(path); ok {
			out = append(out, s.describe(r, db))
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"databases": out,
		"count":     len(out),
	})
	return nil
}

// handleGetDatabase takes the path as a query parameter since database
// paths contain slashes.
func (s *Server) handleGetDatabase(w http.ResponseWriter, r *http.Request) error {
	path := r.URL.Query().Get("path")
	if path == "" {
		return fmt.Errorf("%w: path query parameter is required", errBadRequest)
	}
	db, err := s.lookup(path)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, s.describe(r, db))
	return nil
}

func (s *Server) lookup(path string) (*database.DB, error) {
	db, ok := s.databases.Get(path)
	if !ok {
		return nil, fmt.Errorf("%w: %s", errNotOpen, path)
	}
	return db, nil
}

func (s *Server) handleCheckpoint(w http.ResponseWriter, r *http.Request) error {
	var req checkpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}

	paths := req.Paths
	if len(paths) == 0 {
		paths = s.databases.Paths()
	}
	for _, path := range paths {
		if _, err := s.lookup(path); err != nil {
			return err
		}
	}

	s.scheduler.Sweep(paths...)
	s.logger.Info("checkpoint requested over API",
		"paths", paths,
		"subject", r.Context().Value(ctxKeySubject),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{"queued": paths})
	return nil
}

func (s *Server) handleCheckpointStats(w http.ResponseWriter, _ *http.Request) error {
	st := s.scheduler.Stats()
	opts := s.scheduler.Options()
	writeJSON(w, http.StatusOK, statsResponse{
		Observed:      st.Observed,
		Queued:        st.Queued,
		Dropped:       st.Dropped,
		Skipped:       st.Skipped,
		Completed:     st.Completed,
		Failed:        st.Failed,
		Pending:       st.Pending,
		DelayMS:       opts.Delay.Milliseconds(),
		PageThreshold: opts.PageThreshold,
	})
	return nil
}
