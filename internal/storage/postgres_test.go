package storage

import (
	"context"
	"errors"
	"net"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-service/internal/model"
)

var insertQuery = regexp.QuoteMeta("INSERT INTO contact_messages (id, name, email, message, submitted_at)")

func newMockStorage(t *testing.T) (*SQLStorage, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := newSQLStorage(db, postgresDialect)
	return s, mock
}

func TestPostgresStorage_Save(t *testing.T) {
	s, mock := newMockStorage(t)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	mock.ExpectExec(insertQuery).
		WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", "Hello", fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &model.ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "Hello"}
	require.NoError(t, s.Save(context.Background(), m))

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, fixed, m.SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Save_KeepsSuppliedTimestamp(t *testing.T) {
	s, mock := newMockStorage(t)
	supplied := time.Date(2025, 12, 24, 8, 30, 0, 0, time.UTC)

	mock.ExpectExec(insertQuery).
		WithArgs(sqlmock.AnyArg(), "", "", "", supplied).
		WillReturnResult(sqlmock.NewResult(0, 1))

	m := &model.ContactMessage{SubmittedAt: supplied}
	require.NoError(t, s.Save(context.Background(), m))
	assert.Equal(t, supplied, m.SubmittedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Save_DuplicatesGetDistinctIDs(t *testing.T) {
	s, mock := newMockStorage(t)

	var ids []string
	for i := 0; i < 2; i++ {
		mock.ExpectExec(insertQuery).
			WithArgs(sqlmock.AnyArg(), "Ada", "ada@example.com", "Hello", sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		m := &model.ContactMessage{Name: "Ada", Email: "ada@example.com", Message: "Hello"}
		require.NoError(t, s.Save(context.Background(), m))
		ids = append(ids, m.ID)
	}

	assert.NotEqual(t, ids[0], ids[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStorage_Save_Rejected(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(insertQuery).
		WillReturnError(&pq.Error{Code: "23514", Message: "check constraint violated"})

	m := &model.ContactMessage{Name: "Ada"}
	err := s.Save(context.Background(), m)

	assert.ErrorIs(t, err, ErrWriteRejected)
	assert.NotErrorIs(t, err, ErrUnavailable)
	assert.Empty(t, m.ID, "failed save must not hand out an identity")
}

func TestPostgresStorage_Save_Unavailable(t *testing.T) {
	cases := map[string]error{
		"connection refused": &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")},
		"admin shutdown":     &pq.Error{Code: "57P01", Message: "terminating connection due to administrator command"},
		"too many clients":   &pq.Error{Code: "53300", Message: "too many connections"},
		"deadline":           context.DeadlineExceeded,
	}

	for name, cause := range cases {
		t.Run(name, func(t *testing.T) {
			s, mock := newMockStorage(t)
			mock.ExpectExec(insertQuery).WillReturnError(cause)

			err := s.Save(context.Background(), &model.ContactMessage{})
			assert.ErrorIs(t, err, ErrUnavailable)
		})
	}
}

func TestPostgresStorage_Migrate(t *testing.T) {
	s, mock := newMockStorage(t)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS contact_messages")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}
