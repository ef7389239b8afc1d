// internal/storage/postgres.go
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"contact-service/internal/model"
)

var postgresDialect = dialect{
	name: "postgres",
	schema: `
		CREATE TABLE IF NOT EXISTS contact_messages (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			email TEXT NOT NULL DEFAULT '',
			message TEXT NOT NULL DEFAULT '',
			submitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	insert: `
		INSERT INTO contact_messages (id, name, email, message, submitted_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
	classify: classifyPostgres,
}

// dialect captures what differs between the SQL backends.
type dialect struct {
	name     string
	schema   string
	insert   string
	classify func(error) error
}

// SQLStorage persists contact messages through database/sql.
type SQLStorage struct {
	DB      *sql.DB
	dialect dialect
	now     func() time.Time
}

func NewPostgresStorage(dsn string) (*SQLStorage, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return newSQLStorage(db, postgresDialect), nil
}

func newSQLStorage(db *sql.DB, d dialect) *SQLStorage {
	return &SQLStorage{DB: db, dialect: d, now: time.Now}
}

// Save inserts one contact_messages row.
func (s *SQLStorage) Save(ctx context.Context, m *model.ContactMessage) error {
	rec := stamp(m, s.now)
	_, err := s.DB.ExecContext(ctx, s.dialect.insert, rec.ID, rec.Name, rec.Email, rec.Message, rec.SubmittedAt)
	if err != nil {
		return fmt.Errorf("%s insert: %w", s.dialect.name, s.dialect.classify(err))
	}
	*m = rec
	return nil
}

// Migrate creates the contact_messages table if it does not exist.
func (s *SQLStorage) Migrate(ctx context.Context) error {
	if _, err := s.DB.ExecContext(ctx, s.dialect.schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", s.dialect.classify(err))
	}
	return nil
}

func (s *SQLStorage) Ping(ctx context.Context) error {
	if err := s.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to connect to db: %w", s.dialect.classify(err))
	}
	return nil
}

func (s *SQLStorage) Close() error {
	return s.DB.Close()
}

// classifyPostgres treats connection exceptions (class 08), insufficient
// resources (53) and operator intervention (57) as the store being
// unavailable. Every other server error is a rejected write.
func classifyPostgres(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "53", "57":
			return fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return fmt.Errorf("%w: %w", ErrWriteRejected, err)
	}
	return classify(err)
}
