package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"
	_ "time/tzdata"

	"practicelog/internal/config"
	"practicelog/internal/db"
	"practicelog/internal/importer"
	"practicelog/internal/server"
	"practicelog/internal/update"
	"practicelog/internal/watch"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildDate = ""
)

const (
	watcherDebounce     = 500 * time.Millisecond
	browserPollInterval = 100 * time.Millisecond
	browserPollAttempts = 60
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "seed":
			runSeed(os.Args[2:])
			return
		case "update":
			runUpdate(os.Args[2:])
			return
		case "serve":
			runServe(os.Args[2:])
			return
		case "version", "--version", "-v":
			fmt.Printf("practicelog %s (commit %s, built %s)\n",
				version, commit, buildDate)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		}
	}

	runServe(os.Args[1:])
}

func printUsage() {
	fmt.Printf(`practicelog %s - local practice session tracker

Records practice sessions with topics and tags in SQLite, serves
a dashboard with streaks and time distribution via a local web UI.

Usage:
  practicelog [flags]          Start the server (default command)
  practicelog serve [flags]    Start the server (explicit)
  practicelog seed [flags]     Load sample data into the database
  practicelog update [flags]   Check for a newer release
  practicelog version          Show version information
  practicelog help             Show this help

Server flags:
  -host string        Host to bind to (default "127.0.0.1")
  -port int           Port to listen on (default 8080)
  -data-dir string    Data directory (database, config, imports)
  -no-browser         Don't open browser on startup

Update flags:
  -force              Force check (ignore cache)

Environment variables:
  PRACTICELOG_DATA_DIR   Data directory (database, config)
  PRACTICELOG_HOST       Host to bind to
  PRACTICELOG_PORT       Port to listen on

Data is stored in ~/.practicelog/ by default. JSON exports dropped
into the data directory's imports/ folder are merged automatically.
`, version)
}

func runServe(args []string) {
	cfg := mustLoadConfig(args)
	database := mustOpenDB(cfg)
	defer database.Close()

	stopWatcher := startImportWatcher(cfg, database)
	defer stopWatcher()

	port := server.FindAvailablePort(cfg.Host, cfg.Port)
	if port != cfg.Port {
		fmt.Printf("Port %d in use, using %d\n", cfg.Port, port)
	}
	cfg.Port = port

	srv := server.New(cfg, database,
		server.WithVersion(server.VersionInfo{
			Version:   version,
			Commit:    commit,
			BuildDate: buildDate,
		}),
	)

	url := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	fmt.Printf("practicelog %s listening at %s\n", version, url)

	if !cfg.NoBrowser {
		go openBrowser(url)
	}

	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runUpdate(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	force := fs.Bool("force", false,
		"Force check (ignore cache)")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(),
			"Usage: practicelog update [flags]")
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

	info, err := update.Check(version, cfg.DataDir, *force)
	if err != nil {
		log.Fatalf("checking for updates: %v", err)
	}

	if !info.UpdateAvailable {
		fmt.Printf("practicelog %s is up to date.\n", version)
		return
	}
	fmt.Printf("Update available: %s -> %s\n",
		info.CurrentVersion, info.LatestVersion)
	fmt.Printf("Download: %s\n", info.ReleaseURL)
}

func mustLoadConfig(args []string) config.Config {
	fs := flag.NewFlagSet("practicelog", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(),
			"Usage: practicelog [serve] [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	config.RegisterServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatalf("parsing flags: %v", err)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatalf("creating data dir: %v", err)
	}
	return cfg
}

func mustOpenDB(cfg config.Config) *db.DB {
	database, err := db.Open(cfg.DBPath)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	if err := database.SeedInstruments(); err != nil {
		log.Fatalf("seeding instruments: %v", err)
	}
	return database
}

func startImportWatcher(cfg config.Config, database *db.DB) func() {
	importFn := func(path string) error {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		stats, err := importer.Import(database, data)
		if err != nil {
			return err
		}
		log.Printf("imported %s: %d sessions, %d topics, %d tags",
			path, stats.Sessions, stats.Topics, stats.Tags)
		return nil
	}

	watcher, err := watch.New(cfg.ImportDir, watcherDebounce, importFn)
	if err != nil {
		log.Printf("warning: import watcher unavailable: %v", err)
		return func() {}
	}
	watcher.Scan()
	watcher.Start()
	return watcher.Stop
}

func openBrowser(url string) {
	for range browserPollAttempts {
		time.Sleep(browserPollInterval)
		resp, err := http.Get(url + "/api/v1/stats")
		if err == nil {
			resp.Body.Close()
			break
		}
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("rundll32",
			"url.dll,FileProtocolHandler", url)
	default:
		return
	}
	_ = cmd.Run()
}
