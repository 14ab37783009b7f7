package store

import (
	"github.com/jackc/pgx/v5"

	"payouts.hh/internal/withdrawal"
)

const withdrawalColumns = `id, user_id, requested_amount, fee_amount, amount, status, is_pix,
        pixkey_id, description, reason_for_denial, idempotency_key, created_at, updated_at`

// idempotencyIndex is the unique index on (user_id, idempotency_key).
const idempotencyIndex = "withdrawals_user_idempotency_idx"

// maxListLimit bounds a single page.
const maxListLimit = 100

func scanWithdrawal(row pgx.Row) (withdrawal.Withdrawal, error) {
	var (
		w      withdrawal.Withdrawal
		status string
	)
	err := row.Scan(
		&w.ID,
		&w.UserID,
		&w.RequestedAmount,
		&w.FeeAmount,
		&w.Amount,
		&status,
		&w.IsPix,
		&w.PixKeyID,
		&w.Description,
		&w.ReasonForDenial,
		&w.IdempotencyKey,
		&w.CreatedAt,
		&w.UpdatedAt,
	)
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}
	w.Status = withdrawal.Status(status)
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}

func normalizeFilter(f withdrawal.ListFilter) withdrawal.ListFilter {
	if f.Limit <= 0 {
		f.Limit = withdrawal.DefaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// mutableFields copies onto current the only fields a transition may change.
func mutableFields(current, next withdrawal.Withdrawal) withdrawal.Withdrawal {
	current.Status = next.Status
	current.ReasonForDenial = next.ReasonForDenial
	current.UpdatedAt = next.UpdatedAt
	return current
}

// samePayload reports whether a repeated create asks for the stored request.
func samePayload(stored, w withdrawal.Withdrawal) bool {
	return stored.UserID == w.UserID &&
		stored.RequestedAmount == w.RequestedAmount &&
		stored.IsPix == w.IsPix &&
		equalString(stored.PixKeyID, w.PixKeyID) &&
		equalString(stored.Description, w.Description)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
