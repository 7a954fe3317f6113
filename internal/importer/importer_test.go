package importer

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"practicelog/internal/db"
)

func openTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func strPtr(s string) *string { return &s }

const sampleExport = `{
	"instruments": [{"id": 1, "name": "Guitarra"}],
	"tags": [
		{"id": 10, "name": "técnica"},
		{"id": 11, "name": "jazz"}
	],
	"topics": [
		{"id": 20, "name": "Escalas", "tags": [10]},
		{"id": 21, "name": "Improvisación", "tags": [10, 11]}
	],
	"sessions": [
		{
			"id": 30,
			"started_at": "2024-06-01T18:30:00Z",
			"duration_min": 45,
			"instrument": "Guitarra",
			"description": "evening run",
			"topics": [
				{"name": "Escalas", "note": "slow", "tags": ["técnica"]},
				{"name": "Improvisación", "note": null, "tags": ["jazz"]}
			]
		}
	]
}`

func TestParse(t *testing.T) {
	plan, err := Parse([]byte(sampleExport))
	require.NoError(t, err)

	assert.Equal(t, []string{"técnica", "jazz"}, plan.Tags)
	assert.Equal(t, []string{"Guitarra"}, plan.Instruments)

	wantTopics := []db.TopicLink{
		{Name: "Escalas", Tags: []string{"técnica"}},
		{Name: "Improvisación", Tags: []string{"técnica", "jazz"}},
	}
	assert.Equal(t, wantTopics, plan.Topics)

	require.Len(t, plan.Sessions, 1)
	s := plan.Sessions[0]
	assert.Equal(t,
		time.Date(2024, 6, 1, 18, 30, 0, 0, time.UTC), s.StartedAt)
	assert.Equal(t, 45, s.DurationMin)
	require.NotNil(t, s.Description)
	assert.Equal(t, "evening run", *s.Description)

	wantSessionTopics := []db.TopicInput{
		{Name: "Escalas", Note: strPtr("slow"), Tags: []string{"técnica"}},
		{Name: "Improvisación", Tags: []string{"jazz"}},
	}
	assert.Equal(t, wantSessionTopics, s.Topics)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"invalid json", `{"sessions": [`},
		{"bad started_at", `{"sessions": [{"started_at": "nope", "instrument": "Piano"}]}`},
		{"missing instrument", `{"sessions": [{"started_at": "2024-06-01T10:00:00Z"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseSkipsUnusableEntries(t *testing.T) {
	data := `{
		"tags": [{"id": 1, "name": "  "}],
		"topics": [{"id": 2, "name": ""}],
		"instruments": [{"name": ""}],
		"sessions": [{
			"started_at": "2024-06-01T10:00:00Z",
			"duration_min": 30,
			"instrument": "Piano",
			"topics": [
				{"name": ""},
				{"name": "Escalas"},
				{"name": "Escalas"}
			]
		}]
	}`
	plan, err := Parse([]byte(data))
	require.NoError(t, err)

	assert.Empty(t, plan.Tags)
	assert.Empty(t, plan.Topics)
	assert.Empty(t, plan.Instruments)
	require.Len(t, plan.Sessions, 1)
	// Blank and duplicate topics are dropped.
	require.Len(t, plan.Sessions[0].Topics, 1)
	assert.Equal(t, "Escalas", plan.Sessions[0].Topics[0].Name)
}

func TestImportExportRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := Import(d, []byte(sampleExport))
	require.NoError(t, err)

	ds, err := Export(ctx, d)
	require.NoError(t, err)

	// Re-import into a fresh database and compare datasets:
	// names and relationships must survive, IDs may differ.
	d2 := openTestDB(t)
	_, err = Import(d2, mustJSON(t, ds))
	require.NoError(t, err)

	ds2, err := Export(ctx, d2)
	require.NoError(t, err)

	if diff := cmp.Diff(names(ds), names(ds2)); diff != "" {
		t.Errorf("round trip mismatch (-first +second):\n%s", diff)
	}
	require.Len(t, ds2.Sessions, 1)
	if diff := cmp.Diff(ds.Sessions[0].Topics, ds2.Sessions[0].Topics); diff != "" {
		t.Errorf("session topics mismatch (-first +second):\n%s", diff)
	}
}

func TestImportIsIdempotentForTaxonomy(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := Import(d, []byte(sampleExport))
	require.NoError(t, err)
	stats, err := Import(d, []byte(sampleExport))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sessions)

	topics, err := d.ListTopics(ctx)
	require.NoError(t, err)
	assert.Len(t, topics, 2, "topics are merged, not duplicated")

	tags, err := d.ListTags(ctx)
	require.NoError(t, err)
	assert.Len(t, tags, 2)

	// Sessions are appended on each import.
	sessions, err := d.AllSessions(ctx)
	require.NoError(t, err)
	assert.Len(t, sessions, 2)
}

func TestWriteCSV(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, err := Import(d, []byte(sampleExport))
	require.NoError(t, err)

	ds, err := Export(ctx, d)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ds))
	out := buf.String()

	for _, section := range []string{
		"# instruments", "# tags", "# topics",
		"# topic_tags", "# sessions", "# session_topics",
	} {
		assert.Contains(t, out, section+"\n")
	}
	assert.Contains(t, out, "Guitarra")
	assert.Contains(t, out, "Escalas,slow")
	assert.True(t, strings.HasPrefix(out, "# instruments\n"))
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

// names projects a dataset onto its ID-free shape.
func names(ds Dataset) map[string][]string {
	out := map[string][]string{}
	for _, i := range ds.Instruments {
		out["instruments"] = append(out["instruments"], i.Name)
	}
	for _, tg := range ds.Tags {
		out["tags"] = append(out["tags"], tg.Name)
	}
	for _, tp := range ds.Topics {
		out["topics"] = append(out["topics"], tp.Name)
	}
	for _, s := range ds.Sessions {
		out["sessions"] = append(out["sessions"],
			s.StartedAt+"/"+s.Instrument)
	}
	return out
}
