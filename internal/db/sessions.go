package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"practicelog/internal/timeutil"
)

// ErrNotFound is returned when a session does not exist.
var ErrNotFound = errors.New("session not found")

// ErrDuplicateTopic is returned when a session would reference
// the same topic twice.
var ErrDuplicateTopic = errors.New("topic already attached to session")

const (
	// DefaultSessionLimit is the default number of sessions returned.
	DefaultSessionLimit = 200
	// MaxSessionLimit is the maximum number of sessions returned.
	MaxSessionLimit = 500
)

// maxSQLVars is the maximum bind variables per IN clause to stay
// within SQLite's default SQLITE_MAX_VARIABLE_NUMBER (999).
const maxSQLVars = 500

// SessionTopic is one topic attached to a session, with its note
// and the topic's tags.
type SessionTopic struct {
	Name string   `json:"name"`
	Note *string  `json:"note"`
	Tags []string `json:"tags"`
}

// Session is a full session record with its topics loaded.
type Session struct {
	ID          int64          `json:"id"`
	StartedAt   string         `json:"started_at"`
	DurationMin int            `json:"duration_min"`
	Instrument  string         `json:"instrument"`
	Description *string        `json:"description"`
	Topics      []SessionTopic `json:"topics"`
	Tags        []string       `json:"tags"`
	CreatedAt   string         `json:"created_at"`
}

// TopicInput names a topic to attach to a session. Tags listed
// here attach to this topic only; NewSession.Tags attach to every
// topic of the session.
type TopicInput struct {
	Name string
	Note *string
	Tags []string
}

// NewSession is the payload for creating a session. Tags attach
// to every topic of the session.
type NewSession struct {
	StartedAt   time.Time
	DurationMin int
	Instrument  string
	Description *string
	Topics      []TopicInput
	Tags        []string
}

// SessionFilter selects sessions for listing.
type SessionFilter struct {
	Query string // description substring, case-insensitive
	Topic string // exact topic name
	Tag   string // exact tag name
	From  string // RFC3339 or YYYY-MM-DD, inclusive
	To    string // RFC3339 or YYYY-MM-DD, inclusive
	Limit int
}

// CreateSession persists a session with its topics and tags in a
// single transaction. Topics and tags are created on demand by
// name. Returns the new session ID.
func (db *DB) CreateSession(s NewSession) (int64, error) {
	var sessionID int64
	err := db.Update(func(tx *sql.Tx) error {
		id, err := insertSession(tx, s)
		if err != nil {
			return err
		}
		sessionID = id
		return nil
	})
	if err != nil {
		return 0, err
	}
	return sessionID, nil
}

// insertSession writes a session with its topics and tags inside
// an existing transaction.
func insertSession(tx *sql.Tx, s NewSession) (int64, error) {
	instrumentID, err := getOrCreateInstrument(tx, s.Instrument)
	if err != nil {
		return 0, err
	}

	res, err := tx.Exec(
		`INSERT INTO sessions
		 (started_at, duration_min, description, instrument_id)
		 VALUES (?, ?, ?, ?)`,
		timeutil.Format(s.StartedAt), s.DurationMin,
		s.Description, instrumentID,
	)
	if err != nil {
		return 0, fmt.Errorf("inserting session: %w", err)
	}
	sessionID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading session id: %w", err)
	}

	topicIDs, err := attachTopics(tx, sessionID, s.Topics)
	if err != nil {
		return 0, err
	}
	return sessionID, tagTopics(tx, topicIDs, s.Tags)
}

// AddSessionTopic attaches one more topic (with tags) to an
// existing session. A topic may appear at most once per session.
func (db *DB) AddSessionTopic(
	sessionID int64, topic TopicInput, tags []string,
) error {
	return db.Update(func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRow(
			"SELECT count(*) FROM sessions WHERE id = ?", sessionID,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking session %d: %w", sessionID, err)
		}
		if exists == 0 {
			return ErrNotFound
		}

		topicIDs, err := attachTopics(
			tx, sessionID, []TopicInput{topic},
		)
		if err != nil {
			return err
		}
		return tagTopics(tx, topicIDs, tags)
	})
}

// attachTopics resolves topic names and inserts session_topics
// rows, rejecting duplicates within the session.
func attachTopics(
	tx *sql.Tx, sessionID int64, topics []TopicInput,
) ([]int64, error) {
	ids := make([]int64, 0, len(topics))
	for _, t := range topics {
		topicID, err := getOrCreateTopic(tx, t.Name)
		if err != nil {
			return nil, err
		}

		var dup int
		err = tx.QueryRow(
			`SELECT count(*) FROM session_topics
			 WHERE session_id = ? AND topic_id = ?`,
			sessionID, topicID,
		).Scan(&dup)
		if err != nil {
			return nil, fmt.Errorf("checking session topic: %w", err)
		}
		if dup > 0 {
			return nil, fmt.Errorf(
				"%w: %s", ErrDuplicateTopic, strings.TrimSpace(t.Name),
			)
		}

		if _, err := tx.Exec(
			`INSERT INTO session_topics (session_id, topic_id, note)
			 VALUES (?, ?, ?)`,
			sessionID, topicID, t.Note,
		); err != nil {
			return nil, fmt.Errorf("attaching topic: %w", err)
		}
		if err := tagTopics(tx, []int64{topicID}, t.Tags); err != nil {
			return nil, err
		}
		ids = append(ids, topicID)
	}
	return ids, nil
}

// tagTopics links every tag to every topic.
func tagTopics(tx *sql.Tx, topicIDs []int64, tags []string) error {
	for _, tag := range tags {
		tagID, err := getOrCreateTag(tx, tag)
		if err != nil {
			return err
		}
		for _, topicID := range topicIDs {
			if err := linkTopicTag(tx, topicID, tagID); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildSessionFilter returns a WHERE clause and args for the
// predicates in SessionFilter.
func buildSessionFilter(f SessionFilter) (string, []any) {
	preds := []string{"1=1"}
	var args []any

	if f.Query != "" {
		preds = append(preds, "s.description LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(f.Query)+"%")
	}
	if f.Topic != "" {
		preds = append(preds, `s.id IN (
			SELECT st.session_id FROM session_topics st
			JOIN topics t ON t.id = st.topic_id
			WHERE t.name = ?)`)
		args = append(args, f.Topic)
	}
	if f.Tag != "" {
		preds = append(preds, `s.id IN (
			SELECT st.session_id FROM session_topics st
			JOIN topic_tags tt ON tt.topic_id = st.topic_id
			JOIN tags tg ON tg.id = tt.tag_id
			WHERE tg.name = ?)`)
		args = append(args, f.Tag)
	}
	if f.From != "" {
		preds = append(preds, "s.started_at >= ?")
		args = append(args, f.From)
	}
	if f.To != "" {
		preds = append(preds, "s.started_at <= ?")
		args = append(args, f.To)
	}

	return strings.Join(preds, " AND "), args
}

// escapeLike escapes LIKE wildcards in user input.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	return strings.ReplaceAll(s, "_", `\_`)
}

const sessionCols = `s.id, s.started_at, s.duration_min,
	s.description, i.name, s.created_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSessionRow(rs rowScanner) (Session, error) {
	var s Session
	err := rs.Scan(
		&s.ID, &s.StartedAt, &s.DurationMin,
		&s.Description, &s.Instrument, &s.CreatedAt,
	)
	return s, err
}

// ListSessions returns sessions matching the filter, most recent
// first, with topics and tags loaded.
func (db *DB) ListSessions(
	ctx context.Context, f SessionFilter,
) ([]Session, error) {
	if f.Limit <= 0 || f.Limit > MaxSessionLimit {
		f.Limit = DefaultSessionLimit
	}

	where, args := buildSessionFilter(f)
	query := "SELECT " + sessionCols + `
		FROM sessions s
		JOIN instruments i ON i.id = s.instrument_id
		WHERE ` + where + `
		ORDER BY s.started_at DESC, s.id DESC
		LIMIT ?`
	args = append(args, f.Limit)

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if err := db.loadTopics(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

// GetSession returns a single session with topics loaded, or
// ErrNotFound.
func (db *DB) GetSession(
	ctx context.Context, id int64,
) (*Session, error) {
	row := db.reader.QueryRowContext(ctx,
		"SELECT "+sessionCols+`
		FROM sessions s
		JOIN instruments i ON i.id = s.instrument_id
		WHERE s.id = ?`, id,
	)

	s, err := scanSessionRow(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting session %d: %w", id, err)
	}

	sessions := []Session{s}
	if err := db.loadTopics(ctx, sessions); err != nil {
		return nil, err
	}
	return &sessions[0], nil
}

// loadTopics fills Topics and the deduplicated Tags list for each
// session, chunking the IN clause to respect the SQLite bind
// variable limit.
func (db *DB) loadTopics(
	ctx context.Context, sessions []Session,
) error {
	if len(sessions) == 0 {
		return nil
	}

	byID := make(map[int64]*Session, len(sessions))
	ids := make([]int64, 0, len(sessions))
	for i := range sessions {
		sessions[i].Topics = []SessionTopic{}
		sessions[i].Tags = []string{}
		byID[sessions[i].ID] = &sessions[i]
		ids = append(ids, sessions[i].ID)
	}

	for start := 0; start < len(ids); start += maxSQLVars {
		end := min(start+maxSQLVars, len(ids))
		if err := db.loadTopicsChunk(ctx, ids[start:end], byID); err != nil {
			return err
		}
	}

	for i := range sessions {
		s := &sessions[i]
		seen := make(map[string]bool)
		for _, t := range s.Topics {
			for _, tag := range t.Tags {
				if !seen[tag] {
					seen[tag] = true
					s.Tags = append(s.Tags, tag)
				}
			}
		}
		sort.Strings(s.Tags)
	}
	return nil
}

func (db *DB) loadTopicsChunk(
	ctx context.Context, ids []int64, byID map[int64]*Session,
) error {
	ph := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		args[i] = id
	}

	query := `SELECT st.session_id, t.id, t.name, st.note
		FROM session_topics st
		JOIN topics t ON t.id = st.topic_id
		WHERE st.session_id IN (` + strings.Join(ph, ",") + `)
		ORDER BY st.id`

	rows, err := db.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("querying session topics: %w", err)
	}
	defer rows.Close()

	type topicRef struct {
		session *Session
		index   int
	}
	refs := make(map[int64][]topicRef)

	for rows.Next() {
		var sessionID, topicID int64
		var st SessionTopic
		if err := rows.Scan(
			&sessionID, &topicID, &st.Name, &st.Note,
		); err != nil {
			return fmt.Errorf("scanning session topic: %w", err)
		}
		st.Tags = []string{}
		s := byID[sessionID]
		if s == nil {
			continue
		}
		s.Topics = append(s.Topics, st)
		refs[topicID] = append(refs[topicID], topicRef{
			session: s, index: len(s.Topics) - 1,
		})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating session topics: %w", err)
	}

	if len(refs) == 0 {
		return nil
	}

	topicIDs := make([]int64, 0, len(refs))
	for id := range refs {
		topicIDs = append(topicIDs, id)
	}
	tags, err := db.topicTagNames(ctx, topicIDs)
	if err != nil {
		return err
	}
	for topicID, names := range tags {
		for _, ref := range refs[topicID] {
			ref.session.Topics[ref.index].Tags = names
		}
	}
	return nil
}

// topicTagNames returns the sorted tag names per topic ID.
func (db *DB) topicTagNames(
	ctx context.Context, topicIDs []int64,
) (map[int64][]string, error) {
	out := make(map[int64][]string)

	for start := 0; start < len(topicIDs); start += maxSQLVars {
		end := min(start+maxSQLVars, len(topicIDs))
		chunk := topicIDs[start:end]

		ph := make([]string, len(chunk))
		args := make([]any, len(chunk))
		for i, id := range chunk {
			ph[i] = "?"
			args[i] = id
		}

		rows, err := db.reader.QueryContext(ctx,
			`SELECT tt.topic_id, tg.name
			FROM topic_tags tt
			JOIN tags tg ON tg.id = tt.tag_id
			WHERE tt.topic_id IN (`+strings.Join(ph, ",")+`)
			ORDER BY tg.name`, args...,
		)
		if err != nil {
			return nil, fmt.Errorf("querying topic tags: %w", err)
		}
		for rows.Next() {
			var topicID int64
			var name string
			if err := rows.Scan(&topicID, &name); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scanning topic tag: %w", err)
			}
			out[topicID] = append(out[topicID], name)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, fmt.Errorf("iterating topic tags: %w", err)
		}
		rows.Close()
	}
	return out, nil
}

// AllSessions returns every session with topics loaded, most
// recent first. Used by the analytics snapshot and exports.
func (db *DB) AllSessions(ctx context.Context) ([]Session, error) {
	rows, err := db.reader.QueryContext(ctx,
		"SELECT "+sessionCols+`
		FROM sessions s
		JOIN instruments i ON i.id = s.instrument_id
		ORDER BY s.started_at DESC, s.id DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying all sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sessions: %w", err)
	}

	if err := db.loadTopics(ctx, sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}
