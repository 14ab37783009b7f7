package store_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payouts.hh/internal/pgtest"
	"payouts.hh/internal/store"
	"payouts.hh/internal/withdrawal"
)

type repository interface {
	Create(ctx context.Context, w withdrawal.Withdrawal) (string, error)
	Get(ctx context.Context, id string) (withdrawal.Withdrawal, error)
	List(ctx context.Context, f withdrawal.ListFilter) ([]withdrawal.Withdrawal, error)
	UpdateIf(ctx context.Context, id string, expected withdrawal.Status, mutate withdrawal.Mutation) (withdrawal.Withdrawal, error)
}

var base = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestMemory(t *testing.T) {
	runContract(t, func(t *testing.T) repository {
		return store.NewMemory()
	})
}

func TestPostgres(t *testing.T) {
	runContract(t, func(t *testing.T) repository {
		return store.New(pgtest.Pool(t))
	})
}

func TestMemoryCopiesRecords(t *testing.T) {
	repo := store.NewMemory()
	ctx := context.Background()

	key, desc := "k1", "rent"
	w := pending("w-1", "u1", 0)
	w.PixKeyID, w.Description = &key, &desc
	_, err := repo.Create(ctx, w)
	require.NoError(t, err)

	key, desc = "changed", "changed"

	got, err := repo.Get(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", *got.PixKeyID)
	*got.Description = "changed"

	listed, err := repo.List(ctx, withdrawal.ListFilter{})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "rent", *listed[0].Description)
	*listed[0].PixKeyID = "changed"

	updated, err := repo.UpdateIf(ctx, "w-1", withdrawal.StatusPending, withdrawal.Mutate(withdrawal.Cancel("duplicate"), clock(1)))
	require.NoError(t, err)
	*updated.ReasonForDenial = "changed"

	stored, err := repo.Get(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, "k1", *stored.PixKeyID)
	assert.Equal(t, "rent", *stored.Description)
	assert.Equal(t, "duplicate", *stored.ReasonForDenial)
}

func runContract(t *testing.T, newRepo func(t *testing.T) repository) {
	t.Run("create and get", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		w := pending("w-1", "u1", 0)
		key := "k1"
		w.IsPix = true
		w.PixKeyID = &key

		id, err := repo.Create(ctx, w)
		require.NoError(t, err)
		assert.Equal(t, "w-1", id)

		got, err := repo.Get(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, w, got)
		assert.Nil(t, got.ReasonForDenial)
		assert.Nil(t, got.Description)
	})

	t.Run("create rejects duplicate id", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, pending("w-1", "u1", 0))
		require.NoError(t, err)
		_, err = repo.Create(ctx, pending("w-1", "u1", 1))
		assert.ErrorIs(t, err, withdrawal.ErrPersistence)
	})

	t.Run("create rejects non pending", func(t *testing.T) {
		repo := newRepo(t)
		w := pending("w-1", "u1", 0)
		w.Status = withdrawal.StatusApproved
		_, err := repo.Create(context.Background(), w)
		assert.ErrorIs(t, err, withdrawal.ErrPersistence)
	})

	t.Run("create with idempotency key", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		first := withKey(pending("w-1", "u1", 0), "req-1")
		id, err := repo.Create(ctx, first)
		require.NoError(t, err)
		assert.Equal(t, "w-1", id)

		id, err = repo.Create(ctx, withKey(pending("w-2", "u1", 1), "req-1"))
		require.NoError(t, err)
		assert.Equal(t, "w-1", id, "repeat resolves to the stored withdrawal")

		changed := withKey(pending("w-3", "u1", 2), "req-1")
		changed.RequestedAmount, changed.FeeAmount, changed.Amount = 2000, 60, 1940
		_, err = repo.Create(ctx, changed)
		assert.ErrorIs(t, err, withdrawal.ErrIdempotencyConflict)

		id, err = repo.Create(ctx, withKey(pending("w-4", "u2", 3), "req-1"))
		require.NoError(t, err)
		assert.Equal(t, "w-4", id, "keys are scoped per user")

		for _, n := range []string{"w-5", "w-6"} {
			id, err = repo.Create(ctx, pending(n, "u1", 4))
			require.NoError(t, err)
			assert.Equal(t, n, id)
		}

		all, err := repo.List(ctx, withdrawal.ListFilter{})
		require.NoError(t, err)
		assert.Len(t, all, 4)

		got, err := repo.Get(ctx, "w-1")
		require.NoError(t, err)
		require.NotNil(t, got.IdempotencyKey)
		assert.Equal(t, "req-1", *got.IdempotencyKey)
	})

	t.Run("get missing", func(t *testing.T) {
		repo := newRepo(t)
		_, err := repo.Get(context.Background(), "nope")
		assert.ErrorIs(t, err, withdrawal.ErrNotFound)
	})

	t.Run("list order and paging", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i := 0; i < 25; i++ {
			_, err := repo.Create(ctx, pending(fmt.Sprintf("w-%02d", i), "u1", i))
			require.NoError(t, err)
		}

		first, err := repo.List(ctx, withdrawal.ListFilter{})
		require.NoError(t, err)
		require.Len(t, first, withdrawal.DefaultListLimit)
		assert.Equal(t, "w-24", first[0].ID)

		second, err := repo.List(ctx, withdrawal.ListFilter{Limit: 10, Offset: 10})
		require.NoError(t, err)
		require.Len(t, second, 10)
		assert.Equal(t, "w-14", second[0].ID)

		third, err := repo.List(ctx, withdrawal.ListFilter{Limit: 10, Offset: 20})
		require.NoError(t, err)
		require.Len(t, third, 5)

		seen := map[string]bool{}
		for _, page := range [][]withdrawal.Withdrawal{first, second, third} {
			for _, w := range page {
				assert.False(t, seen[w.ID], "duplicate %s", w.ID)
				seen[w.ID] = true
			}
		}
		assert.Len(t, seen, 25)

		past, err := repo.List(ctx, withdrawal.ListFilter{Offset: 100})
		require.NoError(t, err)
		assert.Empty(t, past)
	})

	t.Run("list filters", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		for i, user := range []string{"u1", "u2", "u1"} {
			_, err := repo.Create(ctx, pending(fmt.Sprintf("w-%d", i), user, i))
			require.NoError(t, err)
		}
		_, err := repo.UpdateIf(ctx, "w-2", withdrawal.StatusPending, withdrawal.Mutate(withdrawal.Approve(), clock(10)))
		require.NoError(t, err)

		approved, err := repo.List(ctx, withdrawal.ListFilter{Status: "approved"})
		require.NoError(t, err)
		require.Len(t, approved, 1)
		assert.Equal(t, "w-2", approved[0].ID)

		mine, err := repo.List(ctx, withdrawal.ListFilter{Status: "pending", UserID: "u1"})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, "w-0", mine[0].ID)

		unknown, err := repo.List(ctx, withdrawal.ListFilter{Status: "invalid_status"})
		require.NoError(t, err)
		assert.Empty(t, unknown)
	})

	t.Run("update if", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, pending("w-1", "u1", 0))
		require.NoError(t, err)

		updated, err := repo.UpdateIf(ctx, "w-1", withdrawal.StatusPending, withdrawal.Mutate(withdrawal.Cancel("Not needed"), clock(5)))
		require.NoError(t, err)
		assert.Equal(t, withdrawal.StatusCancel, updated.Status)
		require.NotNil(t, updated.ReasonForDenial)
		assert.Equal(t, "Not needed", *updated.ReasonForDenial)

		stored, err := repo.Get(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, updated, stored)

		_, err = repo.UpdateIf(ctx, "w-1", withdrawal.StatusPending, withdrawal.Mutate(withdrawal.Approve(), clock(6)))
		assert.ErrorIs(t, err, store.ErrConflict)

		_, err = repo.UpdateIf(ctx, "missing", withdrawal.StatusPending, withdrawal.Mutate(withdrawal.Approve(), clock(6)))
		assert.ErrorIs(t, err, withdrawal.ErrNotFound)
	})

	t.Run("update if keeps immutable fields", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		original := pending("w-1", "u1", 0)
		_, err := repo.Create(ctx, original)
		require.NoError(t, err)

		updated, err := repo.UpdateIf(ctx, "w-1", withdrawal.StatusPending, func(w withdrawal.Withdrawal) (withdrawal.Withdrawal, error) {
			w.Amount = 1
			w.UserID = "someone-else"
			return withdrawal.Apply(w, withdrawal.Approve(), base.Add(time.Hour))
		})
		require.NoError(t, err)
		assert.Equal(t, original.Amount, updated.Amount)
		assert.Equal(t, original.UserID, updated.UserID)
		assert.Equal(t, withdrawal.StatusApproved, updated.Status)
	})

	t.Run("update if mutation error applies nothing", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, pending("w-1", "u1", 0))
		require.NoError(t, err)

		_, err = repo.UpdateIf(ctx, "w-1", withdrawal.StatusPending, withdrawal.Mutate(withdrawal.MarkPaidManually(), clock(1)))
		require.ErrorIs(t, err, withdrawal.ErrInvalidTransition)

		stored, err := repo.Get(ctx, "w-1")
		require.NoError(t, err)
		assert.Equal(t, withdrawal.StatusPending, stored.Status)
	})

	t.Run("concurrent update if", func(t *testing.T) {
		repo := newRepo(t)
		ctx := context.Background()

		_, err := repo.Create(ctx, pending("w-1", "u1", 0))
		require.NoError(t, err)

		const callers = 8
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				ev := withdrawal.Approve()
				if i%2 == 1 {
					ev = withdrawal.Cancel("race")
				}
				_, err := repo.UpdateIf(ctx, "w-1", withdrawal.StatusPending, withdrawal.Mutate(ev, clock(i+1)))
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case assert.ErrorIs(t, err, store.ErrConflict):
					conflicts++
				}
			}(i)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, callers-1, conflicts)
	})
}

func pending(id, user string, minute int) withdrawal.Withdrawal {
	at := base.Add(time.Duration(minute) * time.Minute)
	return withdrawal.Withdrawal{
		ID:              id,
		UserID:          user,
		RequestedAmount: 1000,
		FeeAmount:       30,
		Amount:          970,
		Status:          withdrawal.StatusPending,
		CreatedAt:       at,
		UpdatedAt:       at,
	}
}

func withKey(w withdrawal.Withdrawal, key string) withdrawal.Withdrawal {
	w.IdempotencyKey = &key
	return w
}

func clock(hours int) func() time.Time {
	return func() time.Time { return base.Add(time.Duration(hours) * time.Hour) }
}
