package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"payouts.hh/internal/withdrawal"
)

type idempotencyKey struct {
	userID string
	key    string
}

// Memory is an in-process repository with the same contract as Store.
// It backs local runs without DATABASE_URL and the unit tests. Records are
// copied on the way in and out, so callers never share memory with the map.
type Memory struct {
	mu    sync.Mutex
	items map[string]withdrawal.Withdrawal
	keys  map[idempotencyKey]string
}

func NewMemory() *Memory {
	return &Memory{
		items: make(map[string]withdrawal.Withdrawal),
		keys:  make(map[idempotencyKey]string),
	}
}

func (m *Memory) Create(ctx context.Context, w withdrawal.Withdrawal) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: create withdrawal: %w", withdrawal.ErrPersistence, err)
	}
	if w.Status != withdrawal.StatusPending {
		return "", fmt.Errorf("%w: create withdrawal in status %s", withdrawal.ErrPersistence, w.Status)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.items[w.ID]; ok {
		return "", fmt.Errorf("%w: withdrawal %s already exists", withdrawal.ErrPersistence, w.ID)
	}
	if w.IdempotencyKey != nil {
		k := idempotencyKey{userID: w.UserID, key: *w.IdempotencyKey}
		if id, ok := m.keys[k]; ok {
			if !samePayload(m.items[id], w) {
				return "", withdrawal.ErrIdempotencyConflict
			}
			return id, nil
		}
		m.keys[k] = w.ID
	}
	m.items[w.ID] = clone(w)
	return w.ID, nil
}

func (m *Memory) Get(ctx context.Context, id string) (withdrawal.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: get withdrawal: %w", withdrawal.ErrPersistence, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.items[id]
	if !ok {
		return withdrawal.Withdrawal{}, ErrNotFound
	}
	return clone(w), nil
}

func (m *Memory) List(ctx context.Context, f withdrawal.ListFilter) ([]withdrawal.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: list withdrawals: %w", withdrawal.ErrPersistence, err)
	}
	f = normalizeFilter(f)

	m.mu.Lock()
	matched := make([]withdrawal.Withdrawal, 0, len(m.items))
	for _, w := range m.items {
		if f.Status != "" && string(w.Status) != f.Status {
			continue
		}
		if f.UserID != "" && w.UserID != f.UserID {
			continue
		}
		matched = append(matched, clone(w))
	}
	m.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	if f.Offset >= len(matched) {
		return []withdrawal.Withdrawal{}, nil
	}
	end := f.Offset + f.Limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[f.Offset:end], nil
}

func (m *Memory) UpdateIf(ctx context.Context, id string, expected withdrawal.Status, mutate withdrawal.Mutation) (withdrawal.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return withdrawal.Withdrawal{}, fmt.Errorf("%w: update withdrawal: %w", withdrawal.ErrPersistence, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.items[id]
	if !ok {
		return withdrawal.Withdrawal{}, ErrNotFound
	}
	if current.Status != expected {
		return withdrawal.Withdrawal{}, ErrConflict
	}

	next, err := mutate(clone(current))
	if err != nil {
		return withdrawal.Withdrawal{}, err
	}
	next = clone(mutableFields(current, next))
	m.items[id] = next
	return clone(next), nil
}

func clone(w withdrawal.Withdrawal) withdrawal.Withdrawal {
	w.PixKeyID = cloneString(w.PixKeyID)
	w.Description = cloneString(w.Description)
	w.ReasonForDenial = cloneString(w.ReasonForDenial)
	w.IdempotencyKey = cloneString(w.IdempotencyKey)
	return w
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
