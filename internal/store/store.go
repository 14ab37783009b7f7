package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"payouts.hh/internal/withdrawal"
)

// Store persists withdrawals in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Create inserts a pending withdrawal and returns its id. When the caller's
// idempotency key is already taken, the stored id is returned for the same
// payload and ErrIdempotencyConflict for a different one.
func (s *Store) Create(ctx context.Context, w withdrawal.Withdrawal) (string, error) {
	if w.Status != withdrawal.StatusPending {
		return "", fmt.Errorf("%w: create withdrawal in status %s", withdrawal.ErrPersistence, w.Status)
	}

	var id string
	err := s.pool.QueryRow(ctx, `
        INSERT INTO withdrawals (
            id, user_id, requested_amount, fee_amount, amount, status, is_pix,
            pixkey_id, description, idempotency_key, created_at, updated_at
        )
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id
    `,
		w.ID,
		w.UserID,
		w.RequestedAmount,
		w.FeeAmount,
		w.Amount,
		string(w.Status),
		w.IsPix,
		w.PixKeyID,
		w.Description,
		w.IdempotencyKey,
		w.CreatedAt,
		w.UpdatedAt,
	).Scan(&id)
	if err != nil {
		constraint, ok := uniqueViolation(err)
		switch {
		case ok && constraint == idempotencyIndex && w.IdempotencyKey != nil:
			return s.replay(ctx, w)
		case ok:
			return "", fmt.Errorf("%w: withdrawal %s already exists", withdrawal.ErrPersistence, w.ID)
		}
		return "", fmt.Errorf("%w: create withdrawal: %w", withdrawal.ErrPersistence, err)
	}
	return id, nil
}

func (s *Store) replay(ctx context.Context, w withdrawal.Withdrawal) (string, error) {
	existing, err := scanWithdrawal(s.pool.QueryRow(ctx, `
        SELECT `+withdrawalColumns+`
        FROM withdrawals
        WHERE user_id = $1 AND idempotency_key = $2
    `, w.UserID, *w.IdempotencyKey))
	if err != nil {
		return "", fmt.Errorf("%w: get withdrawal by idempotency key: %w", withdrawal.ErrPersistence, err)
	}
	if !samePayload(existing, w) {
		return "", withdrawal.ErrIdempotencyConflict
	}
	return existing.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	w, err := scanWithdrawal(s.pool.QueryRow(ctx, `
        SELECT `+withdrawalColumns+`
        FROM withdrawals
        WHERE id = $1
    `, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return withdrawal.Withdrawal{}, ErrNotFound
		}
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: get withdrawal: %w", withdrawal.ErrPersistence, err)
	}
	return w, nil
}

func (s *Store) List(ctx context.Context, f withdrawal.ListFilter) ([]withdrawal.Withdrawal, error) {
	f = normalizeFilter(f)

	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		args = append(args, f.Status)
		where = append(where, "status = $"+strconv.Itoa(len(args)))
	}
	if f.UserID != "" {
		args = append(args, f.UserID)
		where = append(where, "user_id = $"+strconv.Itoa(len(args)))
	}

	query := `SELECT ` + withdrawalColumns + ` FROM withdrawals`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: list withdrawals: %w", withdrawal.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]withdrawal.Withdrawal, 0, f.Limit)
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan withdrawal: %w", withdrawal.ErrPersistence, err)
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list withdrawals: %w", withdrawal.ErrPersistence, err)
	}
	return out, nil
}

// UpdateIf writes the result of mutate only while the row still holds the
// expected status. The guard is evaluated by the UPDATE itself, so two
// callers racing from the same status cannot both win.
func (s *Store) UpdateIf(ctx context.Context, id string, expected withdrawal.Status, mutate withdrawal.Mutation) (withdrawal.Withdrawal, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}
	if current.Status != expected {
		return withdrawal.Withdrawal{}, ErrConflict
	}

	next, err := mutate(current)
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}
	next = mutableFields(current, next)

	tag, err := s.pool.Exec(ctx, `
        UPDATE withdrawals
        SET status = $1, reason_for_denial = $2, updated_at = $3
        WHERE id = $4 AND status = $5
    `, string(next.Status), next.ReasonForDenial, next.UpdatedAt, id, string(expected))
	if err != nil {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: update withdrawal: %w", withdrawal.ErrPersistence, err)
	}
	if tag.RowsAffected() != 1 {
		return withdrawal.Withdrawal{}, ErrConflict
	}
	return next, nil
}

// uniqueViolation reports whether err is a unique violation and on which
// constraint or index.
func uniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}
	return pgErr.ConstraintName, true
}
