package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"practicelog/internal/config"
	"practicelog/internal/db"
)

type seedTopic struct {
	name string
	note string
	tags []string
}

// Two topics per session, rotating through the set so every topic
// appears in the sample data.
var seedTopics = []seedTopic{
	{"Escalas mayores", "Repasar digitación en tercera posición", []string{"técnica"}},
	{"Arpegios", "Enfoque en ritmo swing", []string{"ritmo"}},
	{"Lectura a primera vista", "Piezas fáciles nivel 2", []string{"lectura"}},
	{"Improvisación", "Modo dórico sobre II-V-I", []string{"creatividad", "jazz"}},
	{"Repertorio", "Estudio Nº5 - tempo 80", []string{"repertorio"}},
}

func runSeed(args []string) {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	days := fs.Int("days", 5, "Number of consecutive days to seed")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(),
			"Usage: practicelog seed [flags]")
		fmt.Fprintln(fs.Output(), "\nFlags:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.LoadMinimal()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}

	database := mustOpenDB(cfg)
	defer database.Close()

	created, err := seedSessions(database, *days, time.Now())
	if err != nil {
		log.Fatalf("seeding sessions: %v", err)
	}
	fmt.Printf("Seeded %d sample sessions into %s\n", created, cfg.DBPath)
}

// seedSessions writes one session per day going back from now,
// each covering two topics from the rotation.
func seedSessions(database *db.DB, days int, now time.Time) (int, error) {
	created := 0
	for offset := range days {
		startedAt := now.AddDate(0, 0, -offset).Add(
			-time.Duration(offset) * time.Hour,
		)
		description := fmt.Sprintf("Sesión de práctica #%d", offset+1)

		var topics []db.TopicInput
		for i := range 2 {
			st := seedTopics[(offset*2+i)%len(seedTopics)]
			note := st.note
			topics = append(topics, db.TopicInput{
				Name: st.name,
				Note: &note,
				Tags: st.tags,
			})
		}

		_, err := database.CreateSession(db.NewSession{
			StartedAt:   startedAt,
			DurationMin: 45 + offset*5,
			Instrument:  "Guitarra",
			Description: &description,
			Topics:      topics,
		})
		if err != nil {
			return created, fmt.Errorf("session %d: %w", offset+1, err)
		}
		created++
	}
	return created, nil
}
