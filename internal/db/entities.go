package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyName is returned when an entity name is empty after
// trimming.
var ErrEmptyName = errors.New("name must not be empty")

// defaultInstruments are seeded on first open so the new-session
// form always has something to offer.
var defaultInstruments = []string{"Guitarra", "Piano", "Violín"}

// SeedInstruments inserts the default instruments if missing.
func (db *DB) SeedInstruments() error {
	return db.Update(func(tx *sql.Tx) error {
		for _, name := range defaultInstruments {
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO instruments (name) VALUES (?)",
				name,
			); err != nil {
				return fmt.Errorf("seeding instrument %s: %w", name, err)
			}
		}
		return nil
	})
}

// getOrCreate resolves a name to a row ID in the given table,
// inserting a new row when absent. Names are trimmed and matched
// case-sensitively.
func getOrCreate(tx *sql.Tx, table, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrEmptyName
	}

	var id int64
	err := tx.QueryRow(
		"SELECT id FROM "+table+" WHERE name = ?", name,
	).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, fmt.Errorf("looking up %s %q: %w", table, name, err)
	}

	res, err := tx.Exec(
		"INSERT INTO "+table+" (name) VALUES (?)", name,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting %s %q: %w", table, name, err)
	}
	return res.LastInsertId()
}

func getOrCreateTopic(tx *sql.Tx, name string) (int64, error) {
	return getOrCreate(tx, "topics", name)
}

func getOrCreateTag(tx *sql.Tx, name string) (int64, error) {
	return getOrCreate(tx, "tags", name)
}

func getOrCreateInstrument(tx *sql.Tx, name string) (int64, error) {
	return getOrCreate(tx, "instruments", name)
}

// linkTopicTag attaches a tag to a topic, ignoring existing links.
func linkTopicTag(tx *sql.Tx, topicID, tagID int64) error {
	_, err := tx.Exec(
		`INSERT OR IGNORE INTO topic_tags (topic_id, tag_id)
		 VALUES (?, ?)`,
		topicID, tagID,
	)
	if err != nil {
		return fmt.Errorf(
			"linking topic %d to tag %d: %w", topicID, tagID, err,
		)
	}
	return nil
}

// NamedRow is an (id, name) pair from one of the entity tables.
type NamedRow struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// listNamed returns all rows of an entity table ordered by name.
func (db *DB) listNamed(
	ctx context.Context, table string,
) ([]NamedRow, error) {
	rows, err := db.reader.QueryContext(
		ctx, "SELECT id, name FROM "+table+" ORDER BY name",
	)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", table, err)
	}
	defer rows.Close()

	var out []NamedRow
	for rows.Next() {
		var r NamedRow
		if err := rows.Scan(&r.ID, &r.Name); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ListInstruments returns all instruments ordered by name.
func (db *DB) ListInstruments(ctx context.Context) ([]NamedRow, error) {
	return db.listNamed(ctx, "instruments")
}

// ListTopics returns all topics ordered by name.
func (db *DB) ListTopics(ctx context.Context) ([]NamedRow, error) {
	return db.listNamed(ctx, "topics")
}

// ListTags returns all tags ordered by name.
func (db *DB) ListTags(ctx context.Context) ([]NamedRow, error) {
	return db.listNamed(ctx, "tags")
}

// TopicTagPair is one row of the topic_tags join table.
type TopicTagPair struct {
	TopicID int64 `json:"topic_id"`
	TagID   int64 `json:"tag_id"`
}

// ListTopicTags returns all topic-tag links ordered by topic.
func (db *DB) ListTopicTags(ctx context.Context) ([]TopicTagPair, error) {
	rows, err := db.reader.QueryContext(ctx,
		`SELECT topic_id, tag_id FROM topic_tags
		 ORDER BY topic_id, tag_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("listing topic tags: %w", err)
	}
	defer rows.Close()

	var out []TopicTagPair
	for rows.Next() {
		var p TopicTagPair
		if err := rows.Scan(&p.TopicID, &p.TagID); err != nil {
			return nil, fmt.Errorf("scanning topic tag: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
