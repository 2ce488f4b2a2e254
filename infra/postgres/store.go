package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/YusufTuran34/ContentOrganizerEvent/aggregate"
	"github.com/YusufTuran34/ContentOrganizerEvent/event"
)

// Store is the externally backed aggregate.Store. One row holds one project;
// per-key exclusion comes from row-level locking: every mutation runs inside
// a transaction that takes SELECT ... FOR UPDATE on the project's row, so
// merges for one project serialize while other projects proceed in parallel.
type Store struct {
	db          *DB
	now         func() time.Time
	dedupWindow int
}

// NewStore creates a Postgres-backed aggregate store.
func NewStore(db *DB) *Store {
	return &Store{db: db, now: time.Now, dedupWindow: aggregate.DefaultDedupWindow}
}

// WithClock overrides the wall clock, for tests.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

// WithDedupWindow overrides the recently-seen event ID bound applied to
// aggregates this store creates. Existing rows keep the window they were
// created with.
func (s *Store) WithDedupWindow(n int) *Store {
	if n > 0 {
		s.dedupWindow = n
	}
	return s
}

func (s *Store) UpsertAndMerge(
	ctx context.Context,
	projectID string,
	env event.Envelope,
) (aggregate.Snapshot, bool, error) {
	var snap aggregate.Snapshot
	var accepted bool

	err := s.withProject(ctx, projectID, true, func(tx pgx.Tx, agg *aggregate.Aggregate) (bool, error) {
		accepted = agg.Merge(env, s.now())
		snap = agg.Snapshot()
		return accepted, nil
	})
	if err != nil {
		return aggregate.Snapshot{}, false, err
	}
	return snap, accepted, nil
}

func (s *Store) GetStatus(ctx context.Context, projectID string) (aggregate.Snapshot, error) {
	var state []byte
	query := `SELECT state FROM project_aggregates WHERE project_id = $1`
	err := s.db.Pool.QueryRow(ctx, query, projectID).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aggregate.Snapshot{}, aggregate.ErrNotFound
		}
		return aggregate.Snapshot{}, fmt.Errorf("failed to load aggregate %s: %w", projectID, err)
	}

	agg, err := decodeAggregate(state)
	if err != nil {
		return aggregate.Snapshot{}, err
	}
	return agg.Snapshot(), nil
}

func (s *Store) Transition(
	ctx context.Context,
	projectID string,
	from []aggregate.Status,
	to aggregate.Status,
) (aggregate.Snapshot, bool, error) {
	var snap aggregate.Snapshot
	var moved bool

	err := s.withProject(ctx, projectID, false, func(tx pgx.Tx, agg *aggregate.Aggregate) (bool, error) {
		for _, candidate := range from {
			if agg.Status != candidate {
				continue
			}
			if to == aggregate.StatusStalled {
				agg.StalledFrom = agg.Status
				agg.StalledAt = s.now()
			}
			agg.Status = to
			moved = true
			break
		}
		snap = agg.Snapshot()
		return moved, nil
	})
	if err != nil {
		return aggregate.Snapshot{}, false, err
	}
	return snap, moved, nil
}

func (s *Store) MarkTriggerSent(
	ctx context.Context,
	projectID string,
	trigger event.Type,
	at time.Time,
) error {
	return s.withProject(ctx, projectID, false, func(tx pgx.Tx, agg *aggregate.Aggregate) (bool, error) {
		agg.TriggersSent[trigger] = at
		return true, nil
	})
}

func (s *Store) Range(ctx context.Context, fn func(aggregate.Snapshot) bool) error {
	rows, err := s.db.Pool.Query(ctx, `SELECT state FROM project_aggregates`)
	if err != nil {
		return fmt.Errorf("failed to query aggregates: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var state []byte
		if err := rows.Scan(&state); err != nil {
			return fmt.Errorf("failed to scan aggregate row: %w", err)
		}
		agg, err := decodeAggregate(state)
		if err != nil {
			return err
		}
		if !fn(agg.Snapshot()) {
			return nil
		}
	}
	return rows.Err()
}

func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int, error) {
	tag, err := s.db.Pool.Exec(ctx, `
        DELETE FROM project_aggregates
        WHERE status IN ('PUBLISHED', 'FAILED') AND last_updated_at < $1`,
		olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to purge terminal aggregates: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// withProject loads the project row under FOR UPDATE, applies fn, and writes
// the aggregate back when fn reports a change. With create set, a missing row
// is inserted first; otherwise ErrNotFound is returned.
func (s *Store) withProject(
	ctx context.Context,
	projectID string,
	create bool,
	fn func(tx pgx.Tx, agg *aggregate.Aggregate) (bool, error),
) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction for project %s: %w", projectID, err)
	}
	defer tx.Rollback(ctx)

	if create {
		// Reserve the row first so the FOR UPDATE below always has a row
		// to lock, even when two workers race to create the same project.
		fresh := aggregate.New(projectID, s.now())
		fresh.DedupWindow = s.dedupWindow
		state, err := json.Marshal(fresh)
		if err != nil {
			return fmt.Errorf("failed to encode new aggregate %s: %w", projectID, err)
		}
		_, err = tx.Exec(ctx, `
            INSERT INTO project_aggregates (project_id, status, last_updated_at, state)
            VALUES ($1, $2, $3, $4)
            ON CONFLICT (project_id) DO NOTHING`,
			projectID, fresh.Status.String(), fresh.LastUpdatedAt, state,
		)
		if err != nil {
			return fmt.Errorf("failed to insert aggregate %s: %w", projectID, err)
		}
	}

	var state []byte
	err = tx.QueryRow(ctx,
		`SELECT state FROM project_aggregates WHERE project_id = $1 FOR UPDATE`,
		projectID,
	).Scan(&state)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return aggregate.ErrNotFound
		}
		return fmt.Errorf("failed to lock aggregate %s: %w", projectID, err)
	}

	agg, err := decodeAggregate(state)
	if err != nil {
		return err
	}

	changed, err := fn(tx, agg)
	if err != nil {
		return err
	}
	if changed {
		updated, err := json.Marshal(agg)
		if err != nil {
			return fmt.Errorf("failed to encode aggregate %s: %w", projectID, err)
		}
		_, err = tx.Exec(ctx, `
            UPDATE project_aggregates
            SET status = $2, last_updated_at = $3, state = $4
            WHERE project_id = $1`,
			projectID, agg.Status.String(), agg.LastUpdatedAt, updated,
		)
		if err != nil {
			return fmt.Errorf("failed to update aggregate %s: %w", projectID, err)
		}
	}

	return tx.Commit(ctx)
}

func decodeAggregate(state []byte) (*aggregate.Aggregate, error) {
	var agg aggregate.Aggregate
	if err := json.Unmarshal(state, &agg); err != nil {
		return nil, fmt.Errorf("failed to decode stored aggregate: %w", err)
	}
	if agg.Latest == nil {
		agg.Latest = make(map[event.Type]aggregate.StageRecord)
	}
	if agg.TriggersSent == nil {
		agg.TriggersSent = make(map[event.Type]time.Time)
	}
	return &agg, nil
}
