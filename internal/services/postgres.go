// PostgreSQL-backed student directory and homework desk.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/StudyLine/internal/models"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresServices bundles the PostgreSQL-backed directory and desk over one
// shared connection pool.
type PostgresServices struct {
	db        *sql.DB
	Directory *PostgresDirectory
	Desk      *PostgresDesk
}

// PostgresDirectory is a StudentDirectory backed by PostgreSQL.
type PostgresDirectory struct {
	db *sql.DB
}

// PostgresDesk is a HomeworkDesk backed by PostgreSQL.
type PostgresDesk struct {
	db *sql.DB
}

// NewPostgresServices connects to the database and runs migrations.
func NewPostgresServices(opts ...Option) (*PostgresServices, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresServices invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open PostgreSQL connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("PostgreSQL ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("PostgreSQL migrations applied successfully")

	return &PostgresServices{
		db:        db,
		Directory: &PostgresDirectory{db: db},
		Desk:      &PostgresDesk{db: db},
	}, nil
}

// Close closes the PostgreSQL connection pool.
func (s *PostgresServices) Close() error {
	slog.Debug("Closing PostgreSQL connection pool")
	return s.db.Close()
}

// Create stores or replaces the student's registration fields.
func (d *PostgresDirectory) Create(ctx context.Context, identity string, fields models.RegistrationFields) error {
	if identity == "" {
		return models.ErrEmptyIdentity
	}
	now := time.Now()
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO students (identity, name, email, class, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity) DO UPDATE SET name = $2, email = $3, class = $4, updated_at = $6`,
		identity, fields.Name, fields.Email, fields.Class, now, now)
	if err != nil {
		slog.Error("PostgresDirectory Create failed", "error", err, "identity", identity)
		return fmt.Errorf("failed to insert student %s: %w", identity, err)
	}
	slog.Info("PostgresDirectory created student", "identity", identity, "name", fields.Name)
	return nil
}

// Get returns the student's registration fields, or nil if unknown.
func (d *PostgresDirectory) Get(ctx context.Context, identity string) (*models.RegistrationFields, error) {
	var fields models.RegistrationFields
	err := d.db.QueryRowContext(ctx,
		`SELECT name, email, class FROM students WHERE identity = $1`, identity).
		Scan(&fields.Name, &fields.Email, &fields.Class)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresDirectory Get failed", "error", err, "identity", identity)
		return nil, fmt.Errorf("failed to query student %s: %w", identity, err)
	}
	return &fields, nil
}

// Create records the submission and returns its reference id.
func (d *PostgresDesk) Create(ctx context.Context, identity, subject, kind, contentOrRef string) (string, error) {
	if identity == "" {
		return "", models.ErrEmptyIdentity
	}
	ref := "hw_" + uuid.NewString()[:8]
	_, err := d.db.ExecContext(ctx,
		`INSERT INTO homework_submissions (ref, identity, subject, kind, content, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		ref, identity, subject, kind, contentOrRef, time.Now())
	if err != nil {
		slog.Error("PostgresDesk Create failed", "error", err, "identity", identity, "subject", subject)
		return "", fmt.Errorf("failed to insert homework submission for %s: %w", identity, err)
	}
	slog.Info("PostgresDesk recorded submission", "identity", identity, "subject", subject, "kind", kind, "ref", ref)
	return ref, nil
}
