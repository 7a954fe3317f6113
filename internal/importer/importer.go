// Package importer reads and writes the practicelog interchange
// formats: the JSON dataset produced by the export endpoint and
// the sectioned CSV dump.
package importer

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"practicelog/internal/db"
	"practicelog/internal/timeutil"
)

// Parse converts an exported JSON dataset into an ImportPlan.
// Unknown fields are ignored; entries without a usable name are
// skipped the way the original data was tolerant of them. Exported
// tag IDs are only used to resolve topic-tag links within the
// file itself.
func Parse(data []byte) (db.ImportPlan, error) {
	if !gjson.ValidBytes(data) {
		return db.ImportPlan{}, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)

	var plan db.ImportPlan

	// Tag IDs in the file map to names for topic links below.
	tagNames := make(map[int64]string)
	root.Get("tags").ForEach(func(_, tag gjson.Result) bool {
		name := strings.TrimSpace(tag.Get("name").Str)
		if name == "" {
			return true
		}
		plan.Tags = append(plan.Tags, name)
		if id := tag.Get("id"); id.Exists() {
			tagNames[id.Int()] = name
		}
		return true
	})

	root.Get("topics").ForEach(func(_, topic gjson.Result) bool {
		name := strings.TrimSpace(topic.Get("name").Str)
		if name == "" {
			return true
		}
		link := db.TopicLink{Name: name}
		topic.Get("tags").ForEach(func(_, tagID gjson.Result) bool {
			if tagName, ok := tagNames[tagID.Int()]; ok {
				link.Tags = append(link.Tags, tagName)
			}
			return true
		})
		plan.Topics = append(plan.Topics, link)
		return true
	})

	root.Get("instruments").ForEach(func(_, inst gjson.Result) bool {
		if name := strings.TrimSpace(inst.Get("name").Str); name != "" {
			plan.Instruments = append(plan.Instruments, name)
		}
		return true
	})

	var err error
	root.Get("sessions").ForEach(func(_, sess gjson.Result) bool {
		s, parseErr := parseSession(sess)
		if parseErr != nil {
			err = parseErr
			return false
		}
		plan.Sessions = append(plan.Sessions, s)
		return true
	})
	if err != nil {
		return db.ImportPlan{}, err
	}
	return plan, nil
}

func parseSession(sess gjson.Result) (db.NewSession, error) {
	startedAt := timeutil.Parse(sess.Get("started_at").Str)
	if startedAt.IsZero() {
		return db.NewSession{}, fmt.Errorf(
			"session %s: invalid started_at %q",
			sess.Get("id").Raw, sess.Get("started_at").Str,
		)
	}

	s := db.NewSession{
		StartedAt:   startedAt,
		DurationMin: int(sess.Get("duration_min").Int()),
		Instrument:  strings.TrimSpace(sess.Get("instrument").Str),
	}
	if s.Instrument == "" {
		return db.NewSession{}, fmt.Errorf(
			"session %s: missing instrument", sess.Get("id").Raw,
		)
	}
	if desc := sess.Get("description"); desc.Type == gjson.String {
		d := desc.Str
		s.Description = &d
	}

	seen := make(map[string]bool)
	sess.Get("topics").ForEach(func(_, topic gjson.Result) bool {
		name := strings.TrimSpace(topic.Get("name").Str)
		if name == "" || seen[name] {
			return true
		}
		seen[name] = true

		ti := db.TopicInput{Name: name}
		if note := topic.Get("note"); note.Type == gjson.String {
			n := note.Str
			ti.Note = &n
		}
		topic.Get("tags").ForEach(func(_, tag gjson.Result) bool {
			if tagName := strings.TrimSpace(tag.Str); tagName != "" {
				ti.Tags = append(ti.Tags, tagName)
			}
			return true
		})
		s.Topics = append(s.Topics, ti)
		return true
	})

	return s, nil
}

// Import parses data and merges it into the database.
func Import(database *db.DB, data []byte) (db.ImportStats, error) {
	plan, err := Parse(data)
	if err != nil {
		return db.ImportStats{}, fmt.Errorf("parsing import: %w", err)
	}
	stats, err := database.ApplyImport(plan)
	if err != nil {
		return db.ImportStats{}, fmt.Errorf("applying import: %w", err)
	}
	return stats, nil
}
