// Package analytics computes practice statistics from in-memory
// session snapshots: the consecutive-day streak, per-topic and
// per-tag time distributions, and time-window selection. It is a
// pure function of its inputs and performs no I/O.
package analytics

import (
	"sort"
	"time"
)

// Topic is a read-only snapshot of a topic attached to a session.
type Topic struct {
	Name string
	Note *string
	Tags []string
}

// Session is a read-only snapshot of one practice session.
type Session struct {
	StartedAt   time.Time
	DurationMin int
	Topics      []Topic
}

// StreakInfo describes the current run of consecutive practice
// days, anchored at the most recent practiced day. Start and End
// are nil when Days is zero.
type StreakInfo struct {
	Days  int
	Start *time.Time
	End   *time.Time
}

// day truncates t to its calendar day in t's location.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Streak returns the current consecutive-day practice streak.
// Multiple sessions on the same calendar day count once, a gap of
// exactly one day between practiced days continues the streak, and
// any larger gap ends it. The streak is anchored at the most recent
// practiced day even when that day is far in the past.
func Streak(sessions []Session) StreakInfo {
	if len(sessions) == 0 {
		return StreakInfo{}
	}

	days := make([]time.Time, 0, len(sessions))
	for _, s := range sessions {
		days = append(days, day(s.StartedAt))
	}
	sort.Slice(days, func(i, j int) bool {
		return days[i].After(days[j])
	})

	start := days[0]
	end := days[0]
	count := 1
	prev := days[0]

	for _, d := range days[1:] {
		if d.Equal(prev) {
			continue
		}
		// Calendar-day arithmetic, not 24h deltas, so DST
		// transitions do not break a streak.
		if !d.Equal(prev.AddDate(0, 0, -1)) {
			break
		}
		count++
		start = d
		prev = d
	}

	return StreakInfo{Days: count, Start: &start, End: &end}
}

// ByTopic distributes each session's duration evenly across its
// topics and sums the shares per topic name. Sessions without
// topics contribute nothing.
func ByTopic(sessions []Session) map[string]float64 {
	totals := make(map[string]float64)
	for _, s := range sessions {
		n := len(s.Topics)
		if n == 0 {
			continue
		}
		share := float64(s.DurationMin) / float64(n)
		for _, t := range s.Topics {
			totals[t.Name] += share
		}
	}
	return totals
}

// ByTag sums per-topic time shares into tag totals. A topic's
// share is credited in full to every tag attached to that topic,
// so tag totals may exceed the underlying session time. Topics
// without tags contribute nothing.
func ByTag(sessions []Session) map[string]float64 {
	totals := make(map[string]float64)
	for _, s := range sessions {
		n := len(s.Topics)
		if n == 0 {
			continue
		}
		share := float64(s.DurationMin) / float64(n)
		for _, t := range s.Topics {
			for _, tag := range t.Tags {
				totals[tag] += share
			}
		}
	}
	return totals
}

// Window returns the sessions whose start time falls within the
// last windowDays before now, most recent first. The input slice
// is not modified.
func Window(sessions []Session, now time.Time, windowDays int) []Session {
	since := now.AddDate(0, 0, -windowDays)
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if !s.StartedAt.Before(since) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out
}

// Total is a named minute total for presentation.
type Total struct {
	Name    string  `json:"name"`
	Minutes float64 `json:"minutes"`
}

// TopTotals sorts a totals map descending by minutes (name
// ascending on ties) and truncates to n entries. n <= 0 returns
// all entries.
func TopTotals(totals map[string]float64, n int) []Total {
	out := make([]Total, 0, len(totals))
	for name, minutes := range totals {
		out = append(out, Total{Name: name, Minutes: minutes})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Minutes != out[j].Minutes {
			return out[i].Minutes > out[j].Minutes
		}
		return out[i].Name < out[j].Name
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// TotalMinutes sums raw session durations without topic splitting.
func TotalMinutes(sessions []Session) int {
	total := 0
	for _, s := range sessions {
		total += s.DurationMin
	}
	return total
}
