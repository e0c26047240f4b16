// Package postgres implements the store.Store interface backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/groblegark/ksilo/internal/model"
	"github.com/groblegark/ksilo/internal/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresStore implements store.Store backed by a PostgreSQL database.
type PostgresStore struct {
	db *sql.DB
}

// Compile-time check that PostgresStore implements store.Store.
var _ store.Store = (*PostgresStore)(nil)

// New opens a connection to the PostgreSQL database at the given URL,
// configures the connection pool, and runs any pending migrations.
func New(databaseURL string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration db driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}

	return nil
}

// Close closes the underlying database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetObject(ctx context.Context, ref model.ObjectRef) (*model.Object, error) {
	return queryGetObject(ctx, s.db, ref)
}

func (s *PostgresStore) SetObject(ctx context.Context, w model.Write) error {
	return querySetObject(ctx, s.db, w)
}

func (s *PostgresStore) SetDerivedObject(ctx context.Context, w model.DerivedWrite) error {
	return querySetDerivedObject(ctx, s.db, w)
}

func (s *PostgresStore) ListObjects(ctx context.Context, silo, structure, instance, objectType string) ([]*model.Object, error) {
	return queryListObjects(ctx, s.db, silo, structure, instance, objectType)
}

func (s *PostgresStore) AppendEvent(ctx context.Context, event *model.Event) error {
	return queryAppendEvent(ctx, s.db, event)
}

func (s *PostgresStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	return queryListEvents(ctx, s.db, filter)
}

func (s *PostgresStore) GetSession(ctx context.Context, key string) (*model.Session, error) {
	return queryGetSession(ctx, s.db, key)
}

func (s *PostgresStore) UpsertSession(ctx context.Context, session *model.Session) error {
	return queryUpsertSession(ctx, s.db, session)
}

func (s *PostgresStore) ListSessions(ctx context.Context) ([]*model.Session, error) {
	return queryListSessions(ctx, s.db)
}

func (s *PostgresStore) CloseSession(ctx context.Context, key string, end time.Time) error {
	return queryCloseSession(ctx, s.db, key, end)
}

// RunInTransaction begins a database transaction, creates a txStore that
// delegates to it, calls fn, and commits on success or rolls back on error.
func (s *PostgresStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	txS := &txStore{tx: tx}
	if err := fn(txS); err != nil {
		_ = tx.Rollback()
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// txStore implements store.Store using a *sql.Tx.
type txStore struct {
	tx *sql.Tx
}

// Compile-time check that txStore implements store.Store.
var _ store.Store = (*txStore)(nil)

func (s *txStore) GetObject(ctx context.Context, ref model.ObjectRef) (*model.Object, error) {
	return queryGetObject(ctx, s.tx, ref)
}

func (s *txStore) SetObject(ctx context.Context, w model.Write) error {
	return querySetObject(ctx, s.tx, w)
}

func (s *txStore) SetDerivedObject(ctx context.Context, w model.DerivedWrite) error {
	return querySetDerivedObject(ctx, s.tx, w)
}

func (s *txStore) ListObjects(ctx context.Context, silo, structure, instance, objectType string) ([]*model.Object, error) {
	return queryListObjects(ctx, s.tx, silo, structure, instance, objectType)
}

func (s *txStore) AppendEvent(ctx context.Context, event *model.Event) error {
	return queryAppendEvent(ctx, s.tx, event)
}

func (s *txStore) ListEvents(ctx context.Context, filter model.EventFilter) ([]*model.Event, error) {
	return queryListEvents(ctx, s.tx, filter)
}

func (s *txStore) GetSession(ctx context.Context, key string) (*model.Session, error) {
	return queryGetSession(ctx, s.tx, key)
}

func (s *txStore) UpsertSession(ctx context.Context, session *model.Session) error {
	return queryUpsertSession(ctx, s.tx, session)
}

func (s *txStore) ListSessions(ctx context.Context) ([]*model.Session, error) {
	return queryListSessions(ctx, s.tx)
}

func (s *txStore) CloseSession(ctx context.Context, key string, end time.Time) error {
	return queryCloseSession(ctx, s.tx, key, end)
}

// RunInTransaction on a txStore reuses the existing transaction (no nesting).
func (s *txStore) RunInTransaction(ctx context.Context, fn func(tx store.Store) error) error {
	return fn(s)
}

// Close is a no-op for a transaction store; the parent store owns the connection.
func (s *txStore) Close() error {
	return nil
}
