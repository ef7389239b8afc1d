// internal/storage/storage.go
package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"

	"contact-service/internal/model"
)

var (
	// ErrUnavailable means the durability layer could not be reached in time.
	ErrUnavailable = errors.New("message store unavailable")
	// ErrWriteRejected means the durability layer was reached but refused the record.
	ErrWriteRejected = errors.New("message store rejected write")
)

// Backend is an append-only contact message store.
type Backend interface {
	// Save assigns the record an ID and, when unset, a submission time,
	// then persists it. m is only updated once the write succeeded.
	Save(ctx context.Context, m *model.ContactMessage) error
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// Open picks a backend from the scheme of dsn. Connections are
// established lazily, so an unreachable server is reported by the first
// Save or Ping rather than here.
func Open(ctx context.Context, dsn string) (Backend, error) {
	scheme, rest, ok := strings.Cut(dsn, "://")
	if dsn == "" {
		return nil, errors.New("no database url configured")
	}
	if !ok {
		return nil, fmt.Errorf("database url has no scheme")
	}

	switch strings.ToLower(scheme) {
	case "postgres", "postgresql":
		return NewPostgresStorage(dsn)
	case "mongodb", "mongodb+srv":
		return NewMongoStorage(ctx, dsn)
	case "sqlite":
		return NewSQLiteStorage(rest)
	default:
		return nil, fmt.Errorf("unsupported database scheme %q", scheme)
	}
}

// stamp returns a copy of m carrying a fresh identity and, if the caller
// left it zero, the current time as SubmittedAt.
func stamp(m *model.ContactMessage, now func() time.Time) model.ContactMessage {
	rec := *m
	rec.ID = uuid.NewString()
	if rec.SubmittedAt.IsZero() {
		rec.SubmittedAt = now().UTC()
	}
	return rec
}

// classify maps transport-level failures to ErrUnavailable and anything
// else to ErrWriteRejected.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isConnectivity(err) {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", ErrWriteRejected, err)
}

func isConnectivity(err error) bool {
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.As(err, &netErr)
}

type unavailable struct {
	cause error
}

// Unavailable returns a Backend that fails every call with ErrUnavailable.
// It stands in for a store whose connection string is missing or invalid
// so that the problem surfaces per request instead of at startup.
func Unavailable(cause error) Backend {
	return &unavailable{cause: cause}
}

func (u *unavailable) Save(context.Context, *model.ContactMessage) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, u.cause)
}

func (u *unavailable) Migrate(context.Context) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, u.cause)
}

func (u *unavailable) Ping(context.Context) error {
	return fmt.Errorf("%w: %w", ErrUnavailable, u.cause)
}

func (u *unavailable) Close() error { return nil }
