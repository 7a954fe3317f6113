package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"practicelog/internal/db"
	"practicelog/internal/timeutil"
)

// isValidDate checks that s is a well-formed YYYY-MM-DD string.
func isValidDate(s string) bool {
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// parseIntParam reads an optional integer query parameter,
// writing a 400 response on malformed input.
func parseIntParam(
	w http.ResponseWriter, r *http.Request, name string,
) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		writeError(w, http.StatusBadRequest,
			name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}

func (s *Server) handleListSessions(
	w http.ResponseWriter, r *http.Request,
) {
	q := r.URL.Query()

	limit, ok := parseIntParam(w, r, "limit")
	if !ok {
		return
	}

	from := q.Get("from")
	to := q.Get("to")
	for _, d := range []string{from, to} {
		if d != "" && !isValidDate(d) {
			writeError(w, http.StatusBadRequest,
				"invalid date format: use YYYY-MM-DD")
			return
		}
	}
	if from != "" && to != "" && from > to {
		writeError(w, http.StatusBadRequest,
			"from must not be after to")
		return
	}
	if to != "" {
		// Make the upper bound inclusive for timestamp rows.
		to += "T23:59:59.999Z"
	}

	filter := db.SessionFilter{
		Query: q.Get("q"),
		Topic: q.Get("topic"),
		Tag:   q.Get("tag"),
		From:  from,
		To:    to,
		Limit: limit,
	}

	sessions, err := s.db.ListSessions(r.Context(), filter)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"total":    len(sessions),
	})
}

// parseSessionID extracts the {id} path value.
func parseSessionID(
	w http.ResponseWriter, r *http.Request,
) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return 0, false
	}
	return id, true
}

func (s *Server) handleGetSession(
	w http.ResponseWriter, r *http.Request,
) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	session, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// topicPayload is a topic submitted with a session.
type topicPayload struct {
	Name string   `json:"name"`
	Note *string  `json:"note"`
	Tags []string `json:"tags"`
}

// sessionPayload is the create-session request body.
type sessionPayload struct {
	StartedAt   string         `json:"started_at"`
	DurationMin int            `json:"duration_min"`
	Instrument  string         `json:"instrument"`
	Description *string        `json:"description"`
	Topics      []topicPayload `json:"topics"`
	Tags        []string       `json:"tags"`
}

// validate converts the payload to a db.NewSession, returning a
// client-facing message when the input is unusable.
func (p sessionPayload) validate() (db.NewSession, string) {
	startedAt := timeutil.Parse(p.StartedAt)
	if startedAt.IsZero() {
		return db.NewSession{}, "started_at must be an RFC3339 timestamp"
	}
	if p.DurationMin <= 0 {
		return db.NewSession{}, "duration_min must be positive"
	}
	if strings.TrimSpace(p.Instrument) == "" {
		return db.NewSession{}, "instrument required"
	}
	if len(p.Topics) == 0 {
		return db.NewSession{}, "at least one topic required"
	}

	seen := make(map[string]bool)
	topics := make([]db.TopicInput, 0, len(p.Topics))
	for _, t := range p.Topics {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			return db.NewSession{}, "topic name must not be empty"
		}
		if seen[name] {
			return db.NewSession{}, "topic '" + name + "' is already included"
		}
		seen[name] = true
		topics = append(topics, db.TopicInput{
			Name: name, Note: t.Note, Tags: cleanNames(t.Tags),
		})
	}

	return db.NewSession{
		StartedAt:   startedAt,
		DurationMin: p.DurationMin,
		Instrument:  strings.TrimSpace(p.Instrument),
		Description: p.Description,
		Topics:      topics,
		Tags:        cleanNames(p.Tags),
	}, ""
}

// cleanNames trims names and drops empty ones.
func cleanNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func (s *Server) handleCreateSession(
	w http.ResponseWriter, r *http.Request,
) {
	var payload sessionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	newSession, msg := payload.validate()
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	id, err := s.db.CreateSession(newSession)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	session, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleAddSessionTopic(
	w http.ResponseWriter, r *http.Request,
) {
	id, ok := parseSessionID(w, r)
	if !ok {
		return
	}

	var payload topicPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	name := strings.TrimSpace(payload.Name)
	if name == "" {
		writeError(w, http.StatusBadRequest, "topic name required")
		return
	}

	err := s.db.AddSessionTopic(id,
		db.TopicInput{Name: name, Note: payload.Note},
		cleanNames(payload.Tags),
	)
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, db.ErrDuplicateTopic):
		writeError(w, http.StatusBadRequest,
			"topic already attached to session")
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	session, err := s.db.GetSession(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, session)
}
