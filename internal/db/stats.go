package db

import (
	"context"
	"fmt"
)

// Stats holds entity counts for the stats endpoint.
type Stats struct {
	SessionCount    int `json:"session_count"`
	TopicCount      int `json:"topic_count"`
	TagCount        int `json:"tag_count"`
	InstrumentCount int `json:"instrument_count"`
	TotalMinutes    int `json:"total_minutes"`
}

// GetStats returns aggregate counts across all tables.
func (db *DB) GetStats(ctx context.Context) (Stats, error) {
	const query = `
		SELECT
			(SELECT COUNT(*) FROM sessions),
			(SELECT COUNT(*) FROM topics),
			(SELECT COUNT(*) FROM tags),
			(SELECT COUNT(*) FROM instruments),
			(SELECT COALESCE(SUM(duration_min), 0) FROM sessions)`

	var s Stats
	err := db.reader.QueryRowContext(ctx, query).Scan(
		&s.SessionCount,
		&s.TopicCount,
		&s.TagCount,
		&s.InstrumentCount,
		&s.TotalMinutes,
	)
	if err != nil {
		return Stats{}, fmt.Errorf("fetching stats: %w", err)
	}
	return s, nil
}
