// SQLite-backed student directory and homework desk.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite services configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Opts holds configuration options for SQL-backed services.
type Opts struct {
	DSN string
}

// Option defines a configuration option for SQL-backed services.
type Option func(*Opts)

// WithDSN sets the database DSN.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// SQLiteServices bundles the SQLite-backed directory and desk over one shared
// connection.
type SQLiteServices struct {
	db        *sql.DB
	Directory *SQLiteDirectory
	Desk      *SQLiteDesk
}

// SQLiteDirectory is a StudentDirectory backed by SQLite.
type SQLiteDirectory struct {
	db *sql.DB
}

// SQLiteDesk is a HomeworkDesk backed by SQLite.
type SQLiteDesk struct {
	db *sql.DB
}

// NewSQLiteServices opens the SQLite database at the DSN path, creating the
// directory and running migrations if needed.
func NewSQLiteServices(opts ...Option) (*SQLiteServices, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteServices invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteServices{
		db:        db,
		Directory: &SQLiteDirectory{db: db},
		Desk:      &SQLiteDesk{db: db},
	}, nil
}

// Close closes the SQLite database connection.
func (s *SQLiteServices) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}

// Create stores or replaces the student's registration fields.
func (d *SQLiteDirectory) Create(ctx context.Context, identity string, fields models.RegistrationFields) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	now := time.Now()
	_, err := d.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO students (identity, name, email, class, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		identity, fields.Name, fields.Email, fields.Class, now, now)
	if err != nil {
		slog.Error("SQLiteDirectory Create failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to insert student %s: %w", identity, err)
	}
	slog.Info("SQLiteDirectory created student", "identity", identity, "name", fields.Name)
	return nil
}

// Get returns the student's registration fields, or nil if unknown.
func (d *SQLiteDirectory) Get(ctx context.Context, identity string) (*models.RegistrationFields, error) {
	var fields models.RegistrationFields
	err := d.db.QueryRowContext(ctx,
		`SELECT name, email, class FROM students WHERE identity = ?`, identity).
		Scan(&fields.Name, &fields.Email, &fields.Class)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteDirectory Get failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query student %s: %w", identity, err)
	}
	return &fields, nil
}

// Create records the submission and returns its reference id.
func (d *SQLiteDesk) Create(ctx context.Context, identity, subject, kind, contentOrRef string) (string, error) {
	if identity == "" {
		return "", models.ErrEmptyIdentity
	}
	ref := "hw_" + uuid.NewString()[:8]
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO homework_submissions (ref, identity, subject, kind, content, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ref, identity, subject, kind, contentOrRef, time.Now())
	if err != nil {
		slog.Error("SQLiteDesk Create failed", "error", err, "identity", identity, "subject", subject)
		return "", fmt.Errorf("failed to insert homework submission for %s: %w", identity, err)
	}
	slog.Info("SQLiteDesk recorded submission", "identity", identity, "subject", subject, "kind", kind, "ref", ref)
	return ref, nil
}
