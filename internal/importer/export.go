package importer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"practicelog/internal/db"
)

// TopicRecord is a topic with its linked tag IDs, as exported.
type TopicRecord struct {
	ID   int64   `json:"id"`
	Name string  `json:"name"`
	Tags []int64 `json:"tags"`
}

// SessionRecord is a session as exported, with topics carrying
// notes and tag names.
type SessionRecord struct {
	ID          int64             `json:"id"`
	StartedAt   string            `json:"started_at"`
	DurationMin int               `json:"duration_min"`
	Instrument  string            `json:"instrument"`
	Description *string           `json:"description"`
	Topics      []db.SessionTopic `json:"topics"`
}

// Dataset is the full exported database. Importing a Dataset into
// an empty database reproduces it up to row IDs.
type Dataset struct {
	Instruments []db.NamedRow   `json:"instruments"`
	Tags        []db.NamedRow   `json:"tags"`
	Topics      []TopicRecord   `json:"topics"`
	Sessions    []SessionRecord `json:"sessions"`
}

// Export reads the complete dataset from the database.
func Export(ctx context.Context, database *db.DB) (Dataset, error) {
	instruments, err := database.ListInstruments(ctx)
	if err != nil {
		return Dataset{}, err
	}
	tags, err := database.ListTags(ctx)
	if err != nil {
		return Dataset{}, err
	}
	topics, err := database.ListTopics(ctx)
	if err != nil {
		return Dataset{}, err
	}
	links, err := database.ListTopicTags(ctx)
	if err != nil {
		return Dataset{}, err
	}
	sessions, err := database.AllSessions(ctx)
	if err != nil {
		return Dataset{}, err
	}

	tagsByTopic := make(map[int64][]int64)
	for _, link := range links {
		tagsByTopic[link.TopicID] = append(
			tagsByTopic[link.TopicID], link.TagID,
		)
	}

	ds := Dataset{
		Instruments: instruments,
		Tags:        tags,
		Topics:      make([]TopicRecord, 0, len(topics)),
		Sessions:    make([]SessionRecord, 0, len(sessions)),
	}
	for _, t := range topics {
		tagIDs := tagsByTopic[t.ID]
		if tagIDs == nil {
			tagIDs = []int64{}
		}
		ds.Topics = append(ds.Topics, TopicRecord{
			ID: t.ID, Name: t.Name, Tags: tagIDs,
		})
	}
	for _, s := range sessions {
		ds.Sessions = append(ds.Sessions, SessionRecord{
			ID:          s.ID,
			StartedAt:   s.StartedAt,
			DurationMin: s.DurationMin,
			Instrument:  s.Instrument,
			Description: s.Description,
			Topics:      s.Topics,
		})
	}
	return ds, nil
}

// flatten replaces newlines so free text stays on one CSV row.
func flatten(s *string) string {
	if s == nil {
		return ""
	}
	return strings.ReplaceAll(*s, "\n", " ")
}

// WriteCSV writes the dataset as a sectioned CSV: each entity
// table is preceded by a `# name` marker row and a header row,
// separated by blank lines.
func WriteCSV(w io.Writer, ds Dataset) error {
	cw := csv.NewWriter(w)

	writeNamed := func(section string, rows []db.NamedRow) {
		_ = cw.Write([]string{"# " + section})
		_ = cw.Write([]string{"id", "name"})
		for _, r := range rows {
			_ = cw.Write([]string{
				strconv.FormatInt(r.ID, 10), r.Name,
			})
		}
	}

	writeNamed("instruments", ds.Instruments)
	_ = cw.Write([]string{})
	writeNamed("tags", ds.Tags)

	_ = cw.Write([]string{})
	_ = cw.Write([]string{"# topics"})
	_ = cw.Write([]string{"id", "name"})
	for _, t := range ds.Topics {
		_ = cw.Write([]string{
			strconv.FormatInt(t.ID, 10), t.Name,
		})
	}

	_ = cw.Write([]string{})
	_ = cw.Write([]string{"# topic_tags"})
	_ = cw.Write([]string{"topic_id", "tag_id"})
	for _, t := range ds.Topics {
		for _, tagID := range t.Tags {
			_ = cw.Write([]string{
				strconv.FormatInt(t.ID, 10),
				strconv.FormatInt(tagID, 10),
			})
		}
	}

	_ = cw.Write([]string{})
	_ = cw.Write([]string{"# sessions"})
	_ = cw.Write([]string{
		"id", "started_at", "duration_min", "instrument", "description",
	})
	// Oldest first, matching the chronological dump order.
	for i := len(ds.Sessions) - 1; i >= 0; i-- {
		s := ds.Sessions[i]
		_ = cw.Write([]string{
			strconv.FormatInt(s.ID, 10),
			s.StartedAt,
			strconv.Itoa(s.DurationMin),
			s.Instrument,
			flatten(s.Description),
		})
	}

	_ = cw.Write([]string{})
	_ = cw.Write([]string{"# session_topics"})
	_ = cw.Write([]string{"session_id", "topic", "note"})
	for i := len(ds.Sessions) - 1; i >= 0; i-- {
		s := ds.Sessions[i]
		for _, st := range s.Topics {
			_ = cw.Write([]string{
				strconv.FormatInt(s.ID, 10),
				st.Name,
				flatten(st.Note),
			})
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}
