package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/sink/sqlitestore"
	"github.com/gorilla/mux"
)

// RiverList is the response of GET /rivers
type RiverList struct {
	RunID  string              `json:"run_id"`
	Rivers []sqlitestore.River `json:"rivers"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if err := s.reader.Ping(r.Context()); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, err)
		return
	}
	s.write(w, r, map[string]string{"status": "ok"})
}

func (s *Server) listRivers(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	rivers, err := s.reader.Rivers(r.Context(), runID)
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.write(w, r, RiverList{RunID: runID, Rivers: rivers})
}

func (s *Server) getRiver(w http.ResponseWriter, r *http.Request) {
	head, err := strconv.ParseInt(mux.Vars(r)["head"], 10, 64)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, fmt.Errorf("invalid head id: %w", err))
		return
	}
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	p, err := s.reader.Profile(r.Context(), runID, network.SegmentID(head))
	if errors.Is(err, sqlitestore.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, fmt.Errorf("river %d not found in run %s", head, runID))
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.write(w, r, p)
}

func (s *Server) latestDiagnostics(w http.ResponseWriter, r *http.Request) {
	d, err := s.reader.LatestRun(r.Context())
	if errors.Is(err, sqlitestore.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, errors.New("no runs recorded"))
		return
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return
	}
	s.write(w, r, d)
}

// runID returns the run query parameter, defaulting to the latest run
func (s *Server) runID(w http.ResponseWriter, r *http.Request) (string, bool) {
	if id := r.URL.Query().Get("run"); id != "" {
		return id, true
	}
	d, err := s.reader.LatestRun(r.Context())
	if errors.Is(err, sqlitestore.ErrNotFound) {
		s.writeError(w, r, http.StatusNotFound, errors.New("no runs recorded"))
		return "", false
	}
	if err != nil {
		s.writeError(w, r, http.StatusInternalServerError, err)
		return "", false
	}
	return d.RunID, true
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, data any) {
	if err := s.formatter.WriteResponse(w, r, data); err != nil {
		s.logger.Errorf("error writing response to %s: %v", r.URL.Path, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, err error) {
	if status >= http.StatusInternalServerError {
		s.logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	if werr := s.formatter.WriteError(w, r, status, err); werr != nil {
		s.logger.Errorf("error writing response to %s: %v", r.URL.Path, werr)
	}
}
