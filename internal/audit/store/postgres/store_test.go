package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fcp-audit/internal/audit/models"
	"fcp-audit/pkg/platform/sentinel"
)

var received = time.Date(2025, 3, 1, 10, 15, 30, 0, time.UTC)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		_ = db.Close()
	})
	return New(db, 5*time.Second), mock
}

func expectBounded(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("SET LOCAL statement_timeout = 5000")).
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func testRecord() models.AuditRecord {
	return models.AuditRecord{
		ID:          "RkNQMDAx",
		Received:    received,
		SessionID:   "sess-1",
		Application: "FCP001",
		Audit:       models.AuditBlock{Action: models.StringPtr("submitted"), Details: map[string]any{}},
	}
}

func TestInsertIfAbsent(t *testing.T) {
	t.Run("new id inserts", func(t *testing.T) {
		store, mock := newMock(t)
		expectBounded(mock)
		mock.ExpectExec("INSERT INTO audit_events").
			WithArgs("RkNQMDAx", received, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		inserted, err := store.InsertIfAbsent(context.Background(), testRecord())
		require.NoError(t, err)
		assert.True(t, inserted)
	})

	t.Run("existing id is a no-op", func(t *testing.T) {
		store, mock := newMock(t)
		expectBounded(mock)
		mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (id) DO NOTHING")).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectCommit()

		inserted, err := store.InsertIfAbsent(context.Background(), testRecord())
		require.NoError(t, err)
		assert.False(t, inserted)
	})

	t.Run("statement timeout maps to ErrTimeout", func(t *testing.T) {
		store, mock := newMock(t)
		expectBounded(mock)
		mock.ExpectExec("INSERT INTO audit_events").
			WillReturnError(&pq.Error{Code: codeQueryCanceled, Message: "canceling statement due to statement timeout"})
		mock.ExpectRollback()

		_, err := store.InsertIfAbsent(context.Background(), testRecord())
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrTimeout)
	})

	t.Run("other failures map to ErrUnavailable", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

		_, err := store.InsertIfAbsent(context.Background(), testRecord())
		require.Error(t, err)
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
		assert.NotErrorIs(t, err, sentinel.ErrTimeout)
	})
}

func TestList(t *testing.T) {
	t.Run("decodes rows newest first", func(t *testing.T) {
		store, mock := newMock(t)
		expectBounded(mock)
		rows := sqlmock.NewRows([]string{"id", "received", "document"}).
			AddRow("b", received.Add(time.Minute), []byte(`{"sessionId":"sess-2","audit":{"action":"viewed","details":{}}}`)).
			AddRow("a", received, []byte(`{"sessionId":"sess-1","audit":{"action":"submitted","details":{"caseId":"1"}}}`))
		mock.ExpectQuery(regexp.QuoteMeta("ORDER BY received DESC")).
			WithArgs(10, 20).
			WillReturnRows(rows)
		mock.ExpectCommit()

		got, err := store.List(context.Background(), models.Page{Number: 3, Size: 10})
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "b", got[0].ID)
		assert.Equal(t, "sess-2", got[0].SessionID)
		assert.Equal(t, "1", got[1].Audit.Details["caseId"])
		assert.True(t, got[1].Received.Equal(received))
	})

	t.Run("no rows is an empty page", func(t *testing.T) {
		store, mock := newMock(t)
		expectBounded(mock)
		mock.ExpectQuery("SELECT id, received, document").
			WillReturnRows(sqlmock.NewRows([]string{"id", "received", "document"}))
		mock.ExpectCommit()

		got, err := store.List(context.Background(), models.Page{Number: 1, Size: 10})
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	})
}

func TestExpiryIndex(t *testing.T) {
	query := regexp.QuoteMeta("SELECT obj_description")

	t.Run("missing index", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(query).WithArgs("events_ttl").WillReturnError(sql.ErrNoRows)

		idx, err := store.ExpiryIndex(context.Background())
		require.NoError(t, err)
		assert.Nil(t, idx)
	})

	t.Run("reads the window from the comment", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(query).
			WillReturnRows(sqlmock.NewRows([]string{"obj_description"}).AddRow("expireAfterSeconds=2592000"))

		idx, err := store.ExpiryIndex(context.Background())
		require.NoError(t, err)
		require.NotNil(t, idx)
		assert.Equal(t, 2592000*time.Second, idx.ExpireAfter)
	})

	t.Run("index without a comment reads as stale", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(query).
			WillReturnRows(sqlmock.NewRows([]string{"obj_description"}).AddRow(nil))

		idx, err := store.ExpiryIndex(context.Background())
		require.NoError(t, err)
		require.NotNil(t, idx)
		assert.Zero(t, idx.ExpireAfter)
	})
}

func TestCreateExpiryIndex(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS audit_events").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS events_by_received").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS events_ttl").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("COMMENT ON INDEX events_ttl IS 'expireAfterSeconds=3600'")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, store.CreateExpiryIndex(context.Background(), time.Hour))
}

func TestPurgeExpired(t *testing.T) {
	now := received.Add(2 * time.Hour)

	t.Run("deletes rows past the window", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT obj_description")).
			WillReturnRows(sqlmock.NewRows([]string{"obj_description"}).AddRow("expireAfterSeconds=3600"))
		expectBounded(mock)
		mock.ExpectExec(regexp.QuoteMeta("DELETE FROM audit_events WHERE received < $1")).
			WithArgs(now.Add(-time.Hour)).
			WillReturnResult(sqlmock.NewResult(0, 4))
		mock.ExpectCommit()

		n, err := store.PurgeExpired(context.Background(), now)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)
	})

	t.Run("no index purges nothing", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(regexp.QuoteMeta("SELECT obj_description")).WillReturnError(sql.ErrNoRows)

		n, err := store.PurgeExpired(context.Background(), now)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestParseComment(t *testing.T) {
	n, ok := parseComment("expireAfterSeconds=60")
	assert.True(t, ok)
	assert.Equal(t, int64(60), n)

	for _, bad := range []string{"", "ttl=60", "expireAfterSeconds=", "expireAfterSeconds=-1", "expireAfterSeconds=abc"} {
		_, ok := parseComment(bad)
		assert.False(t, ok, bad)
	}
}
