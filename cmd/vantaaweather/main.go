package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/cenkalti/backoff/v4"
	"github.com/joho/godotenv"
	_ "modernc.org/sqlite"

	"github.com/lox/vantaaweather/internal/api"
	"github.com/lox/vantaaweather/internal/fmi"
	"github.com/lox/vantaaweather/internal/store"
	"github.com/lox/vantaaweather/internal/weather"
)

type FeedFlags struct {
	FeedURL      string        `name:"feed-url" env:"FMI_FEED_URL" help:"FMI WFS observation query URL (defaults to Helsinki-Vantaa)."`
	FetchTimeout time.Duration `name:"fetch-timeout" env:"FETCH_TIMEOUT" default:"10s" help:"Upstream request timeout."`
}

type ServeCmd struct {
	FeedFlags `embed:""`

	Port          string        `env:"PORT" default:"8080" help:"HTTP server port."`
	DB            string        `name:"db" env:"DB_PATH" default:"data/vantaaweather.db" help:"SQLite archive path, empty to disable."`
	CacheTTL      time.Duration `name:"cache-ttl" env:"CACHE_TTL" default:"10m" help:"How long a snapshot is served before refetching."`
	RetentionDays int           `name:"retention-days" env:"RETENTION_DAYS" default:"30" help:"Days of raw payloads to keep."`
}

func (c *ServeCmd) Run() error {
	opts := []weather.Option{weather.WithTTL(c.CacheTTL)}

	var st *store.Store
	if c.DB != "" {
		db, err := openDB(c.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		st = store.New(db)
		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		version, err := st.MigrationVersion()
		if err != nil {
			return fmt.Errorf("migration version: %w", err)
		}
		log.Printf("database migrated to version %d", version)

		if latest, err := st.LatestSnapshot(); err != nil {
			log.Printf("latest archived snapshot: %v", err)
		} else if latest != nil {
			log.Printf("latest archived snapshot fetched %s", latest.FetchedAt.Format(time.RFC3339))
		}

		if n, err := st.CleanupOldRawPayloads(c.RetentionDays); err != nil {
			log.Printf("cleanup raw payloads: %v", err)
		} else if n > 0 {
			log.Printf("pruned %d raw payloads older than %d days", n, c.RetentionDays)
		}
		opts = append(opts, weather.WithRecorder(st))
	} else {
		log.Println("archive disabled (no --db)")
	}

	client := fmi.NewClient(c.FeedURL, c.FetchTimeout)
	svc := weather.NewService(client, opts...)
	server := api.NewServer(svc, st, c.Port)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Printf("listening on :%s", c.Port)
	return server.Run(ctx)
}

type FetchCmd struct {
	FeedFlags `embed:""`

	DB string `name:"db" env:"DB_PATH" help:"Also archive the fetch to this SQLite database."`
}

func (c *FetchCmd) Run() error {
	var opts []weather.Option
	if c.DB != "" {
		db, err := openDB(c.DB)
		if err != nil {
			return err
		}
		defer db.Close()

		st := store.New(db)
		if err := st.Migrate(); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		opts = append(opts, weather.WithRecorder(st))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	svc := weather.NewService(fmi.NewClient(c.FeedURL, c.FetchTimeout), opts...)

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 2 * time.Minute
	snap, err := fetchWithRetry(ctx, svc, newFetchBreaker(5, 30*time.Second), bo)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

var cli struct {
	Serve ServeCmd `cmd:"" default:"withargs" help:"Serve the weather API."`
	Fetch FetchCmd `cmd:"" help:"Fetch the current snapshot once and print it."`
}

func openDB(path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	return db, nil
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("load .env: %v", err)
	}

	ctx := kong.Parse(&cli,
		kong.Name("vantaaweather"),
		kong.Description("Current weather at Helsinki-Vantaa from FMI open data."),
		kong.UsageOnError(),
	)
	ctx.FatalIfErrorf(ctx.Run())
}
