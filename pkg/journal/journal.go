// Package journal persists what the aid said and why. Spoken alerts,
// activation triggers, and guidance requests land in a local SQLite
// database so the dashboard's history view and post-run review work
// without any cloud dependency.
package journal

import (
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/teslashibe/go-glide/internal/log"
)

//go:embed schema.sql
var schemaFiles embed.FS

// DefaultPath is used when no database path is configured.
const DefaultPath = "./data/glide.db"

// Config holds journal settings.
type Config struct {
	// Path is the SQLite database file. The parent directory is created
	// if missing.
	Path string
}

// Journal wraps the SQLite connection behind the record operations.
type Journal struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open opens (or creates) the journal database, applies the connection
// pragmas, and runs the schema.
func Open(cfg Config) (*Journal, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}

	if err := ensureDir(filepath.Dir(cfg.Path)); err != nil {
		return nil, fmt.Errorf("journal: create directory: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}

	if err := configure(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: configure database: %w", err)
	}

	j := &Journal{
		db:     db,
		path:   cfg.Path,
		logger: log.With("component", "journal"),
	}

	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}

	j.logger.Info("journal opened", "path", cfg.Path)
	return j, nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o750)
}

// configure applies the SQLite settings for a single-writer process with
// concurrent dashboard reads.
func configure(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = memory",
		"PRAGMA mmap_size = 268435456",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

func (j *Journal) migrate() error {
	schema, err := schemaFiles.ReadFile("schema.sql")
	if err != nil {
		return fmt.Errorf("read schema: %w", err)
	}
	if _, err := j.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// DB exposes the underlying handle for stats and tests.
func (j *Journal) DB() *sql.DB {
	return j.db
}

// Path returns the database file path.
func (j *Journal) Path() string {
	return j.path
}

// Ping verifies the connection.
func (j *Journal) Ping() error {
	return j.db.Ping()
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	j.logger.Info("journal closed", "path", j.path)
	return j.db.Close()
}

// Checkpoint forces a WAL checkpoint, syncing the main database file.
func (j *Journal) Checkpoint() error {
	if _, err := j.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return fmt.Errorf("journal: checkpoint: %w", err)
	}
	return nil
}

// Alert is one spoken message with the detection that backed it.
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Urgency   string    `json:"urgency"`
	Label     string    `json:"label,omitempty"`
	Distance  float64   `json:"distance,omitempty"`
	Position  string    `json:"position,omitempty"`
}

// Trigger is one activation phrase event.
type Trigger struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Type       string    `json:"type"`
	Phrase     string    `json:"phrase"`
	Heard      string    `json:"heard,omitempty"`
	Confidence float64   `json:"confidence,omitempty"`
}

// Guidance is one guidance request and its outcome.
type Guidance struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"timestamp"`
	Text          string    `json:"text"`
	SafeToProceed bool      `json:"safe_to_proceed"`
	Priority      string    `json:"priority"`
	Source        string    `json:"source,omitempty"`
}
