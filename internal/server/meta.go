package server

import (
	"context"
	"log"
	"net/http"

	"practicelog/internal/db"
)

// listNamed is the shared handler body for the entity name lists.
func (s *Server) listNamed(
	w http.ResponseWriter, r *http.Request,
	fetch func(context.Context) ([]db.NamedRow, error),
) {
	rows, err := fetch(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("list error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	if rows == nil {
		rows = []db.NamedRow{}
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleListInstruments(
	w http.ResponseWriter, r *http.Request,
) {
	s.listNamed(w, r, s.db.ListInstruments)
}

func (s *Server) handleListTopics(
	w http.ResponseWriter, r *http.Request,
) {
	s.listNamed(w, r, s.db.ListTopics)
}

func (s *Server) handleListTags(
	w http.ResponseWriter, r *http.Request,
) {
	s.listNamed(w, r, s.db.ListTags)
}

func (s *Server) handleGetStats(
	w http.ResponseWriter, r *http.Request,
) {
	stats, err := s.db.GetStats(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("stats error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
