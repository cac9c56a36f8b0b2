package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/lib/pq"
	"github.com/npezzotti/go-workspace-chat/internal/types"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const (
	pqForeignKeyViolation = "23503"
	pqUniqueViolation     = "23505"
)

type PgGoChatRepository struct {
	conn *sql.DB
}

func NewPgGoChatRepository(dsn string) (*PgGoChatRepository, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	return &PgGoChatRepository{conn: db}, nil
}

// RunMigrations applies all pending embedded schema migrations.
func (db *PgGoChatRepository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db.conn, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

func (db *PgGoChatRepository) Ping() error {
	return db.conn.Ping()
}

func (db *PgGoChatRepository) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// wrapErr maps driver errors onto the core error taxonomy.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, types.ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case pqForeignKeyViolation:
			return fmt.Errorf("%s: %w: %s", op, types.ErrNotFound, pqErr.Message)
		case pqUniqueViolation:
			return fmt.Errorf("%s: %w: %s", op, types.ErrBadRequest, pqErr.Message)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, types.ErrStorageFailure, err)
}
