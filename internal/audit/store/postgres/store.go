// Package postgres persists audit records as JSONB rows. Postgres has no
// native document expiry, so the expiry index is an ordinary index on
// received whose comment carries the window, and a purge loop deletes rows
// past it.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"fcp-audit/internal/audit/models"
	"fcp-audit/internal/audit/retention"
	"fcp-audit/pkg/platform/sentinel"
	txcontext "fcp-audit/pkg/platform/tx"
)

const (
	tableName     = "audit_events"
	commentPrefix = "expireAfterSeconds="

	// query_canceled, raised when statement_timeout fires.
	codeQueryCanceled = "57014"
)

// Store is the Postgres audit store.
type Store struct {
	db      *sql.DB
	maxTime time.Duration
}

// New creates a store bounding every statement by maxTime.
func New(db *sql.DB, maxTime time.Duration) *Store {
	if maxTime <= 0 {
		maxTime = 10 * time.Second
	}
	return &Store{db: db, maxTime: maxTime}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// bounded runs fn in a transaction whose statements are cancelled server-side
// after maxTime.
func (s *Store) bounded(ctx context.Context, readOnly bool, fn func(ctx context.Context) error) error {
	return txcontext.RunWithStatementTimeout(ctx, s.db, readOnly, s.maxTime, fn)
}

// Migrate creates the table and the received index.
func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS audit_events (
			id TEXT PRIMARY KEY,
			received TIMESTAMPTZ NOT NULL,
			document JSONB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS events_by_received ON audit_events (received DESC)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("migrate audit store", err)
		}
	}
	return nil
}

// InsertIfAbsent relies on the primary key: ON CONFLICT DO NOTHING makes
// racing inserts of one id converge on the first.
func (s *Store) InsertIfAbsent(ctx context.Context, rec models.AuditRecord) (bool, error) {
	doc, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal audit record: %w", err)
	}

	var inserted bool
	err = s.bounded(ctx, false, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx, `
			INSERT INTO audit_events (id, received, document)
			VALUES ($1, $2, $3)
			ON CONFLICT (id) DO NOTHING
		`, rec.ID, rec.Received, doc)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		inserted = n == 1
		return nil
	})
	if err != nil {
		return false, classify("insert audit record", err)
	}
	return inserted, nil
}

// List reads one page sorted by received, newest first.
func (s *Store) List(ctx context.Context, page models.Page) ([]models.AuditRecord, error) {
	records := []models.AuditRecord{}
	err := s.bounded(ctx, true, func(ctx context.Context) error {
		rows, err := s.execer(ctx).QueryContext(ctx, `
			SELECT id, received, document
			FROM audit_events
			ORDER BY received DESC
			LIMIT $1 OFFSET $2
		`, page.Size, page.Offset())
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var (
				id       string
				received time.Time
				doc      []byte
			)
			if err := rows.Scan(&id, &received, &doc); err != nil {
				return fmt.Errorf("scan audit record: %w", err)
			}
			var rec models.AuditRecord
			if err := json.Unmarshal(doc, &rec); err != nil {
				return fmt.Errorf("decode audit record %s: %w", id, err)
			}
			rec.ID = id
			rec.Received = received.UTC()
			records = append(records, rec)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, classify("list audit records", err)
	}
	return records, nil
}

func (s *Store) CollectionExists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, tableName).Scan(&exists)
	if err != nil {
		return false, classify("check audit table", err)
	}
	return exists, nil
}

func (s *Store) ExpiryIndex(ctx context.Context) (*retention.ExpiryIndex, error) {
	var comment sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT obj_description(c.oid, 'pg_class')
		FROM pg_class c
		WHERE c.relname = $1 AND c.relkind = 'i'
	`, retention.IndexName).Scan(&comment)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("read expiry index", err)
	}

	secs, ok := parseComment(comment.String)
	if !ok {
		// An index with this name but no window is treated as stale.
		return &retention.ExpiryIndex{Name: retention.IndexName, Field: retention.ExpiryField}, nil
	}
	return &retention.ExpiryIndex{
		Name:        retention.IndexName,
		Field:       retention.ExpiryField,
		ExpireAfter: time.Duration(secs) * time.Second,
	}, nil
}

// CreateExpiryIndex creates the table if needed, then the index and its
// window comment.
func (s *Store) CreateExpiryIndex(ctx context.Context, expireAfter time.Duration) error {
	if err := s.Migrate(ctx); err != nil {
		return err
	}
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS events_ttl ON audit_events (received)`,
		// COMMENT takes no bind parameters; the value is a formatted integer.
		fmt.Sprintf(`COMMENT ON INDEX events_ttl IS '%s%d'`, commentPrefix, int64(expireAfter/time.Second)),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return classify("create expiry index", err)
		}
	}
	return nil
}

func (s *Store) DropExpiryIndex(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP INDEX IF EXISTS events_ttl`); err != nil {
		return classify("drop expiry index", err)
	}
	return nil
}

// PurgeExpired deletes rows older than the expiry window at now.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	idx, err := s.ExpiryIndex(ctx)
	if err != nil || idx == nil || idx.ExpireAfter <= 0 {
		return 0, err
	}

	var purged int64
	err = s.bounded(ctx, false, func(ctx context.Context) error {
		res, err := s.execer(ctx).ExecContext(ctx,
			`DELETE FROM audit_events WHERE received < $1`, now.Add(-idx.ExpireAfter))
		if err != nil {
			return err
		}
		purged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, classify("purge expired records", err)
	}
	return purged, nil
}

func parseComment(comment string) (int64, bool) {
	v, ok := strings.CutPrefix(comment, commentPrefix)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(v, 10, 64)
	return n, err == nil && n > 0
}

func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &pqErr) && string(pqErr.Code) == codeQueryCanceled) {
		return fmt.Errorf("%s: %w: %w", op, sentinel.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, sentinel.ErrUnavailable, err)
}
