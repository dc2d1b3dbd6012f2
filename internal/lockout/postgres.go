package lockout

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type PostgresStore struct {
	db        *sql.DB
	idleTTL   time.Duration
	batchSize int
}

func NewPostgresStore(db *sql.DB, idleTTL time.Duration, batchSize int) *PostgresStore {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &PostgresStore{db: db, idleTTL: idleTTL, batchSize: batchSize}
}

func (s *PostgresStore) Get(ctx context.Context, identifier string, now time.Time) (State, error) {
	state, err := scanState(s.db.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until, updated_at
		FROM login_lockouts
		WHERE identifier = $1
	`, identifier), identifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return State{Identifier: identifier}, nil
		}
		return State{}, fmt.Errorf("query login lockout: %w", err)
	}

	if expired(state, now, s.idleTTL) {
		return State{Identifier: identifier}, nil
	}
	return state, nil
}

func (s *PostgresStore) Increment(ctx context.Context, identifier string, policy Policy, now time.Time) (State, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return State{}, fmt.Errorf("begin login lockout tx: %w", err)
	}
	defer tx.Rollback()

	// The placeholder row makes FOR UPDATE serialize first failures too.
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO login_lockouts (identifier, failed_attempts, locked_until, updated_at)
		VALUES ($1, 0, NULL, $2)
		ON CONFLICT (identifier) DO NOTHING
	`, identifier, now.UTC()); err != nil {
		return State{}, fmt.Errorf("ensure login lockout row: %w", err)
	}

	current, err := scanState(tx.QueryRowContext(ctx, `
		SELECT failed_attempts, locked_until, updated_at
		FROM login_lockouts
		WHERE identifier = $1
		FOR UPDATE
	`, identifier), identifier)
	if err != nil {
		return State{}, fmt.Errorf("lock login lockout row: %w", err)
	}

	if current.Locked(now) {
		if err := tx.Commit(); err != nil {
			return State{}, fmt.Errorf("commit existing lock tx: %w", err)
		}
		return current, nil
	}
	if expired(current, now, s.idleTTL) {
		current = State{Identifier: identifier}
	}

	next := policy.Apply(current, now)

	var lockedUntil any
	if next.LockedUntil != nil {
		lockedUntil = next.LockedUntil.UTC()
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE login_lockouts
		SET failed_attempts = $2, locked_until = $3, updated_at = $4
		WHERE identifier = $1
	`, identifier, next.AttemptCount, lockedUntil, next.UpdatedAt.UTC()); err != nil {
		return State{}, fmt.Errorf("update login lockout: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return State{}, fmt.Errorf("commit login lockout tx: %w", err)
	}

	return next, nil
}

func (s *PostgresStore) Clear(ctx context.Context, identifier string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM login_lockouts
		WHERE identifier = $1
	`, identifier)
	if err != nil {
		return fmt.Errorf("clear login lockout: %w", err)
	}
	return nil
}

// Sweep deletes up to one batch of rows that are unlocked and idle.
func (s *PostgresStore) Sweep(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		WITH stale AS (
			SELECT identifier
			FROM login_lockouts
			WHERE updated_at < $1
			  AND (locked_until IS NULL OR locked_until <= $2)
			ORDER BY updated_at ASC
			LIMIT $3
		)
		DELETE FROM login_lockouts t
		USING stale
		WHERE t.identifier = stale.identifier
	`, now.UTC().Add(-s.idleTTL), now.UTC(), s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("delete stale login lockouts: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("stale login lockouts rows affected: %w", err)
	}
	return affected, nil
}

func scanState(row *sql.Row, identifier string) (State, error) {
	state := State{Identifier: identifier}
	var lockedUntil sql.NullTime
	if err := row.Scan(&state.AttemptCount, &lockedUntil, &state.UpdatedAt); err != nil {
		return State{}, err
	}
	if lockedUntil.Valid {
		value := lockedUntil.Time.UTC()
		state.LockedUntil = &value
	}
	state.UpdatedAt = state.UpdatedAt.UTC()
	return state, nil
}
