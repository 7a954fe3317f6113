package server

import (
	"log"
	"math"
	"net/http"
	"time"

	"practicelog/internal/analytics"
	"practicelog/internal/db"
	"practicelog/internal/timeutil"
)

// topTopicCount is how many topics the dashboard shows.
const topTopicCount = 5

// toSnapshot converts stored sessions to the value snapshots the
// analytics engine consumes.
func toSnapshot(sessions []db.Session) []analytics.Session {
	out := make([]analytics.Session, 0, len(sessions))
	for _, s := range sessions {
		snap := analytics.Session{
			StartedAt:   timeutil.Parse(s.StartedAt),
			DurationMin: s.DurationMin,
			Topics:      make([]analytics.Topic, 0, len(s.Topics)),
		}
		for _, t := range s.Topics {
			snap.Topics = append(snap.Topics, analytics.Topic{
				Name: t.Name,
				Note: t.Note,
				Tags: t.Tags,
			})
		}
		out = append(out, snap)
	}
	return out
}

// round2 rounds minutes for display.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func roundTotals(totals []analytics.Total) []analytics.Total {
	out := make([]analytics.Total, len(totals))
	for i, t := range totals {
		out[i] = analytics.Total{
			Name:    t.Name,
			Minutes: round2(t.Minutes),
		}
	}
	return out
}

// streakResponse is the JSON shape of a streak.
type streakResponse struct {
	Days  int     `json:"days"`
	Start *string `json:"start"`
	End   *string `json:"end"`
}

func toStreakResponse(info analytics.StreakInfo) streakResponse {
	resp := streakResponse{Days: info.Days}
	if info.Start != nil {
		s := info.Start.Format("2006-01-02")
		resp.Start = &s
	}
	if info.End != nil {
		e := info.End.Format("2006-01-02")
		resp.End = &e
	}
	return resp
}

func (s *Server) handleDashboard(
	w http.ResponseWriter, r *http.Request,
) {
	all, err := s.db.AllSessions(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("dashboard error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	snapshot := toSnapshot(all)
	weekly := analytics.Window(snapshot, time.Now(), 7)

	writeJSON(w, http.StatusOK, map[string]any{
		"streak":         toStreakResponse(analytics.Streak(snapshot)),
		"weekly_total":   analytics.TotalMinutes(weekly),
		"top_topics":     roundTotals(analytics.TopTotals(analytics.ByTopic(weekly), topTopicCount)),
		"total_sessions": len(all),
	})
}

func (s *Server) handleAnalytics(
	w http.ResponseWriter, r *http.Request,
) {
	windowDays := 7
	switch r.URL.Query().Get("range") {
	case "", "7d":
	case "30d":
		windowDays = 30
	default:
		writeError(w, http.StatusBadRequest,
			"invalid range: must be 7d or 30d")
		return
	}

	all, err := s.db.AllSessions(r.Context())
	if err != nil {
		if handleContextError(w, err) {
			return
		}
		log.Printf("analytics error: %v", err)
		writeError(w, http.StatusInternalServerError,
			"internal server error")
		return
	}

	snapshot := toSnapshot(all)
	window := analytics.Window(snapshot, time.Now(), windowDays)

	writeJSON(w, http.StatusOK, map[string]any{
		"range":         fmtRange(windowDays),
		"total_minutes": analytics.TotalMinutes(window),
		"streak":        toStreakResponse(analytics.Streak(snapshot)),
		"topic_totals":  roundTotals(analytics.TopTotals(analytics.ByTopic(window), 0)),
		"tag_totals":    roundTotals(analytics.TopTotals(analytics.ByTag(window), 0)),
	})
}

func fmtRange(days int) string {
	if days == 30 {
		return "30d"
	}
	return "7d"
}
