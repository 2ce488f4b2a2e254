package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/YusufTuran34/ContentOrganizerEvent/deadletter"
)

// DeadLetterLog implements deadletter.Log on PostgreSQL.
type DeadLetterLog struct {
	db *DB
}

func NewDeadLetterLog(db *DB) *DeadLetterLog {
	return &DeadLetterLog{db: db}
}

// Record inserts one dead-lettered item.
func (l *DeadLetterLog) Record(ctx context.Context, entry deadletter.Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.RecordedAt.IsZero() {
		entry.RecordedAt = time.Now()
	}
	query := `
        INSERT INTO dead_letters (id, recorded_at, kind, channel, project_id, reason, data)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := l.db.Pool.Exec(ctx, query,
		entry.ID, entry.RecordedAt, string(entry.Kind), entry.Channel, entry.ProjectID, entry.Reason, entry.Data,
	)
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

// Entries returns every recorded item, oldest first. Intended for operator
// tooling and tests; the core never reads the log back.
func (l *DeadLetterLog) Entries(ctx context.Context) ([]deadletter.Entry, error) {
	rows, err := l.db.Pool.Query(ctx, `
        SELECT id, recorded_at, kind, channel, project_id, reason, data
        FROM dead_letters ORDER BY recorded_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query dead letters: %w", err)
	}
	defer rows.Close()

	var entries []deadletter.Entry
	for rows.Next() {
		var entry deadletter.Entry
		var kind string
		if err := rows.Scan(
			&entry.ID, &entry.RecordedAt, &kind, &entry.Channel, &entry.ProjectID, &entry.Reason, &entry.Data,
		); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter row: %w", err)
		}
		entry.Kind = deadletter.Kind(kind)
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}
