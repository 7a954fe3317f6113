package db

import (
	"database/sql"
	"fmt"
)

// TopicLink names a topic and the tags to attach to it.
type TopicLink struct {
	Name string
	Tags []string
}

// ImportPlan is a parsed import payload ready to merge into the
// database. Entities are created on demand by name; existing rows
// are reused, so re-importing the same file is idempotent for the
// taxonomy (sessions are always appended).
type ImportPlan struct {
	Tags        []string
	Topics      []TopicLink
	Instruments []string
	Sessions    []NewSession
}

// ImportStats counts what an import touched.
type ImportStats struct {
	Sessions    int `json:"sessions"`
	Topics      int `json:"topics"`
	Tags        int `json:"tags"`
	Instruments int `json:"instruments"`
}

// ApplyImport merges an ImportPlan in a single transaction.
func (db *DB) ApplyImport(plan ImportPlan) (ImportStats, error) {
	var stats ImportStats
	err := db.Update(func(tx *sql.Tx) error {
		for _, name := range plan.Tags {
			if _, err := getOrCreateTag(tx, name); err != nil {
				return fmt.Errorf("importing tag: %w", err)
			}
			stats.Tags++
		}

		for _, topic := range plan.Topics {
			topicID, err := getOrCreateTopic(tx, topic.Name)
			if err != nil {
				return fmt.Errorf("importing topic: %w", err)
			}
			if err := tagTopics(tx, []int64{topicID}, topic.Tags); err != nil {
				return err
			}
			stats.Topics++
		}

		for _, name := range plan.Instruments {
			if _, err := getOrCreateInstrument(tx, name); err != nil {
				return fmt.Errorf("importing instrument: %w", err)
			}
			stats.Instruments++
		}

		for _, s := range plan.Sessions {
			if _, err := insertSession(tx, s); err != nil {
				return err
			}
			stats.Sessions++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	return stats, nil
}
