package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ashgrove-games/talespinner/internal/errors"
	"github.com/ashgrove-games/talespinner/internal/guildsync/storage"
)

const outboxColumns = `
	id,
	target,
	object_type,
	object_id,
	guild_id,
	user_id,
	update_type,
	status,
	attempt_count,
	next_attempt_at,
	last_error,
	created_at,
	processed_at
`

func scanOutboxRecord(scan func(dest ...any) error) (storage.OutboxRecord, error) {
	var record storage.OutboxRecord
	var nextAttemptAt int64
	var createdAt int64
	var processedAt sql.NullInt64
	if err := scan(
		&record.ID,
		&record.Target,
		&record.ObjectType,
		&record.ObjectID,
		&record.GuildID,
		&record.UserID,
		&record.UpdateType,
		&record.Status,
		&record.AttemptCount,
		&nextAttemptAt,
		&record.LastError,
		&createdAt,
		&processedAt,
	); err != nil {
		return storage.OutboxRecord{}, err
	}
	record.NextAttemptAt = fromMillis(nextAttemptAt)
	record.CreatedAt = fromMillis(createdAt)
	if processedAt.Valid {
		value := fromMillis(processedAt.Int64)
		record.ProcessedAt = &value
	}
	return record, nil
}

// Enqueue appends a new pending sync record.
func (s *Store) Enqueue(ctx context.Context, record storage.OutboxRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}

	record.ID = strings.TrimSpace(record.ID)
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.ObjectType == "" || record.ObjectID == "" {
		return fmt.Errorf("record object type and id are required")
	}
	if record.UpdateType == "" {
		return fmt.Errorf("record update type is required")
	}
	if record.Status == "" {
		record.Status = storage.StatusPending
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	if record.NextAttemptAt.IsZero() {
		record.NextAttemptAt = record.CreatedAt
	}

	var processedAt sql.NullInt64
	if record.ProcessedAt != nil {
		processedAt = sql.NullInt64{Int64: toMillis(*record.ProcessedAt), Valid: true}
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO sync_outbox (
	id,
	target,
	object_type,
	object_id,
	guild_id,
	user_id,
	update_type,
	status,
	attempt_count,
	next_attempt_at,
	last_error,
	created_at,
	processed_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`,
		record.ID,
		record.Target,
		record.ObjectType,
		record.ObjectID,
		record.GuildID,
		record.UserID,
		record.UpdateType,
		record.Status,
		record.AttemptCount,
		toMillis(record.NextAttemptAt),
		record.LastError,
		toMillis(record.CreatedAt),
		processedAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue sync record: %w", err)
	}
	return nil
}

// ListDue returns pending records whose next attempt time has passed, oldest
// first.
func (s *Store) ListDue(ctx context.Context, target string, now time.Time, limit int) ([]storage.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, errNotConfigured
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+outboxColumns+`
FROM sync_outbox
WHERE target = ? AND status = ? AND next_attempt_at <= ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`,
		target,
		storage.StatusPending,
		toMillis(now),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list due sync records: %w", err)
	}
	defer rows.Close()

	return collectOutboxRecords(rows)
}

// MarkProcessed finalizes a record after a successful drain.
func (s *Store) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sync_outbox
SET status = ?, last_error = '', processed_at = ?
WHERE id = ?
`,
		storage.StatusProcessed,
		toMillis(at),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark sync record processed: %w", err)
	}
	return requireRowAffected(result, id)
}

// MarkFailed records a failed attempt and schedules the retry.
func (s *Store) MarkFailed(ctx context.Context, id string, attemptCount int, lastError string, nextAttemptAt time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sync_outbox
SET status = ?, attempt_count = ?, last_error = ?, next_attempt_at = ?
WHERE id = ?
`,
		storage.StatusPending,
		attemptCount,
		lastError,
		toMillis(nextAttemptAt),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark sync record failed: %w", err)
	}
	return requireRowAffected(result, id)
}

// MarkDead moves a record to the dead-letter state.
func (s *Store) MarkDead(ctx context.Context, id string, lastError string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sync_outbox
SET status = ?, attempt_count = attempt_count + 1, last_error = ?, processed_at = ?
WHERE id = ?
`,
		storage.StatusDead,
		lastError,
		toMillis(at),
		id,
	)
	if err != nil {
		return fmt.Errorf("mark sync record dead: %w", err)
	}
	return requireRowAffected(result, id)
}

// Requeue returns a dead record to pending with a cleared attempt count.
func (s *Store) Requeue(ctx context.Context, id string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return errNotConfigured
	}

	result, err := s.sqlDB.ExecContext(ctx, `
UPDATE sync_outbox
SET status = ?, attempt_count = 0, last_error = '', next_attempt_at = ?, processed_at = NULL
WHERE id = ? AND status = ?
`,
		storage.StatusPending,
		toMillis(at),
		id,
		storage.StatusDead,
	)
	if err != nil {
		return fmt.Errorf("requeue sync record: %w", err)
	}
	return requireRowAffected(result, id)
}

// ListByStatus returns records in a given status, oldest first.
func (s *Store) ListByStatus(ctx context.Context, status string, limit int) ([]storage.OutboxRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, errNotConfigured
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT `+outboxColumns+`
FROM sync_outbox
WHERE status = ?
ORDER BY created_at ASC, id ASC
LIMIT ?
`, status, limit)
	if err != nil {
		return nil, fmt.Errorf("list sync records: %w", err)
	}
	defer rows.Close()

	return collectOutboxRecords(rows)
}

// Summary reports queue depth by status and the oldest pending record.
func (s *Store) Summary(ctx context.Context) (storage.OutboxSummary, error) {
	if err := ctx.Err(); err != nil {
		return storage.OutboxSummary{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.OutboxSummary{}, errNotConfigured
	}

	var summary storage.OutboxSummary
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT status, COUNT(*) FROM sync_outbox GROUP BY status`)
	if err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("summarize sync outbox: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return storage.OutboxSummary{}, fmt.Errorf("scan sync outbox summary: %w", err)
		}
		switch status {
		case storage.StatusPending:
			summary.PendingCount = count
		case storage.StatusProcessed:
			summary.ProcessedCount = count
		case storage.StatusDead:
			summary.DeadCount = count
		}
	}
	if err := rows.Err(); err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("iterate sync outbox summary: %w", err)
	}

	var oldest sql.NullInt64
	row := s.sqlDB.QueryRowContext(ctx, `SELECT MIN(created_at) FROM sync_outbox WHERE status = ?`, storage.StatusPending)
	if err := row.Scan(&oldest); err != nil {
		return storage.OutboxSummary{}, fmt.Errorf("oldest pending sync record: %w", err)
	}
	if oldest.Valid {
		summary.OldestPendingAt = fromMillis(oldest.Int64)
	}
	return summary, nil
}

func collectOutboxRecords(rows *sql.Rows) ([]storage.OutboxRecord, error) {
	var records []storage.OutboxRecord
	for rows.Next() {
		record, err := scanOutboxRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan sync record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync records: %w", err)
	}
	return records, nil
}

func requireRowAffected(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "sync record %s not found", id)
	}
	return nil
}
