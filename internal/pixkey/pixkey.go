// Package pixkey resolves payout destinations for presentation.
package pixkey

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("pix key not found")

// Summary is the display form of a payout destination.
type Summary struct {
	Key           string `json:"key"`
	KeyType       string `json:"key_type"`
	BankName      string `json:"bank_name"`
	AccountHolder string `json:"account_holder"`
}

type Directory interface {
	Lookup(ctx context.Context, id string) (Summary, error)
}

// Postgres reads pix keys from the pix_keys table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) Lookup(ctx context.Context, id string) (Summary, error) {
	var s Summary
	err := p.pool.QueryRow(ctx, `
        SELECT key_value, key_type, bank_name, account_holder
        FROM pix_keys
        WHERE id = $1
    `, id).Scan(
		&s.Key,
		&s.KeyType,
		&s.BankName,
		&s.AccountHolder,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Summary{}, ErrNotFound
		}
		return Summary{}, fmt.Errorf("lookup pix key %s: %w", id, err)
	}
	return s, nil
}

// Static serves lookups from a fixed map.
type Static map[string]Summary

func (s Static) Lookup(_ context.Context, id string) (Summary, error) {
	summary, ok := s[id]
	if !ok {
		return Summary{}, ErrNotFound
	}
	return summary, nil
}
