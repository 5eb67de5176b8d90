package checkin

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"

	"otpattend/internal/fault"
	"otpattend/internal/store"
)

// Repository persists check-in attempts and system configuration in the
// local store. Writes go through the store's single writer connection,
// which serializes concurrent inserts.
type Repository struct {
	db *store.DB
}

// NewRepository creates a repo over an opened store.
func NewRepository(db *store.DB) *Repository {
	return &Repository{db: db}
}

// RecordAttempt inserts one immutable attempt row and returns its id.
// Attempts are never dropped silently; any insert failure surfaces.
func (r *Repository) RecordAttempt(ctx context.Context, subjectID, presentedCode string, status Status, attemptedAt time.Time) (string, error) {
	id := uuid.NewString()
	createdAt := time.Now().UTC()
	_, err := r.db.Writer.ExecContext(ctx, `
		INSERT INTO checkin_attempts (id, subject_id, presented_code, status, attempted_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, subjectID, presentedCode, string(status), attemptedAt.UnixMilli(), createdAt.UnixMilli())
	if err != nil {
		return "", wrapStoreErr("insert attempt", err)
	}
	return id, nil
}

const recordColumns = `id, subject_id, presented_code, status, attempted_at, created_at`

// ByDateRange returns attempts with start <= attempted_at < end, newest first.
func (r *Repository) ByDateRange(ctx context.Context, start, end time.Time) ([]Record, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM checkin_attempts
		WHERE attempted_at >= ? AND attempted_at < ?
		ORDER BY attempted_at DESC, created_at DESC
	`, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, wrapStoreErr("query by date range", err)
	}
	return collectRecords(rows)
}

// ByPhone returns the most recent attempts for one subject, newest first.
func (r *Repository) ByPhone(ctx context.Context, subjectID string, limit int) ([]Record, error) {
	rows, err := r.db.Reader.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM checkin_attempts
		WHERE subject_id = ?
		ORDER BY attempted_at DESC, created_at DESC
		LIMIT ?
	`, subjectID, limit)
	if err != nil {
		return nil, wrapStoreErr("query by phone", err)
	}
	return collectRecords(rows)
}

// StatsRange aggregates attempts over [start, end).
func (r *Repository) StatsRange(ctx context.Context, start, end time.Time) (Stats, error) {
	stats := Stats{ByStatus: make(map[Status]int)}

	row := r.db.Reader.QueryRowContext(ctx, `
		SELECT COUNT(*), COUNT(DISTINCT subject_id)
		FROM checkin_attempts
		WHERE attempted_at >= ? AND attempted_at < ?
	`, start.UnixMilli(), end.UnixMilli())
	if err := row.Scan(&stats.Total, &stats.UniqueSubjects); err != nil {
		return Stats{}, wrapStoreErr("aggregate totals", err)
	}

	rows, err := r.db.Reader.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM checkin_attempts
		WHERE attempted_at >= ? AND attempted_at < ?
		GROUP BY status
	`, start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return Stats{}, wrapStoreErr("aggregate by status", err)
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return Stats{}, wrapStoreErr("scan status count", err)
		}
		stats.ByStatus[Status(status)] = count
	}
	if err := rows.Err(); err != nil {
		return Stats{}, wrapStoreErr("iterate status counts", err)
	}
	return stats, nil
}

// PurgeOlderThan deletes attempts older than the given number of days,
// measured against attempted_at, and reports how many rows went away.
func (r *Repository) PurgeOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := r.db.Writer.ExecContext(ctx, `
		DELETE FROM checkin_attempts WHERE attempted_at < ?
	`, cutoff.UnixMilli())
	if err != nil {
		return 0, wrapStoreErr("purge attempts", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStoreErr("purge row count", err)
	}
	return deleted, nil
}

// GetConfig returns the value for key and whether it exists.
func (r *Repository) GetConfig(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := r.db.Reader.QueryRowContext(ctx, `
		SELECT value FROM system_config WHERE key = ?
	`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, wrapStoreErr("get config", err)
	}
	return value, true, nil
}

// SetConfig writes a config entry with upsert semantics.
func (r *Repository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.Writer.ExecContext(ctx, `
		INSERT INTO system_config (key, value)
		VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return wrapStoreErr("set config", err)
	}
	return nil
}

func collectRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		var status string
		var attemptedMs, createdMs int64
		if err := rows.Scan(&rec.ID, &rec.SubjectID, &rec.PresentedCode, &status, &attemptedMs, &createdMs); err != nil {
			return nil, wrapStoreErr("scan attempt", err)
		}
		rec.Status = Status(status)
		rec.AttemptedAt = time.UnixMilli(attemptedMs).UTC()
		rec.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapStoreErr("iterate attempts", err)
	}
	return out, nil
}

// wrapStoreErr sorts store failures into the taxonomy: constraint breaks are
// client-caused, everything else is store-caused.
func wrapStoreErr(op string, err error) error {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "constraint") {
		return fault.Constraint(op, err)
	}
	return fault.StoreQuery(op, err)
}
