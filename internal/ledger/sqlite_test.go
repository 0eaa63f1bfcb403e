package ledger

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/genfoo/backend/internal/config"
	"github.com/genfoo/backend/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	db, err := database.Open(context.Background(), config.DatabaseConfig{
		Driver: config.DriverSQLite,
		Path:   ":memory:",
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db, config.DriverSQLite))
	return NewSQLStore(db, config.DriverSQLite)
}

func TestSQLite_ConcurrentDecrementNeverOverdraws(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	created, err := store.CreateIfAbsent(ctx, "user_1", "", 1)
	require.NoError(t, err)
	require.True(t, created)

	const workers = 16
	var (
		wg           sync.WaitGroup
		successes    atomic.Int32
		insufficient atomic.Int32
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.TryDecrement(ctx, "user_1", 1)
			switch {
			case err == nil:
				successes.Add(1)
			case assert.ErrorIs(t, err, ErrInsufficientFunds):
				insufficient.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successes.Load())
	assert.Equal(t, int32(workers-1), insufficient.Load())

	entry, err := store.Read(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), entry.Balance)
}

func TestSQLite_CreateIfAbsentIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	created, err := store.CreateIfAbsent(ctx, "user_1", "a@example.com", 20)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = store.CreateIfAbsent(ctx, "user_1", "a@example.com", 20)
	require.NoError(t, err)
	assert.False(t, created)

	entry, err := store.Read(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(20), entry.Balance)
	require.NotNil(t, entry.Email)
	assert.Equal(t, "a@example.com", *entry.Email)
	assert.False(t, entry.UpdatedAt.IsZero())
}

func TestSQLite_ApplyPurchase(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	t.Run("missing account leaves no trace", func(t *testing.T) {
		_, err := store.ApplyPurchase(ctx, "evt_1", "user_1", "priceA", 1200)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	_, err := store.CreateIfAbsent(ctx, "user_1", "", 5)
	require.NoError(t, err)

	t.Run("redelivery after provisioning credits once", func(t *testing.T) {
		entry, err := store.ApplyPurchase(ctx, "evt_1", "user_1", "priceA", 1200)
		require.NoError(t, err)
		assert.Equal(t, int64(1205), entry.Balance)

		_, err = store.ApplyPurchase(ctx, "evt_1", "user_1", "priceA", 1200)
		assert.ErrorIs(t, err, ErrDuplicateEvent)

		entry, err = store.Read(ctx, "user_1")
		require.NoError(t, err)
		assert.Equal(t, int64(1205), entry.Balance)
	})
}

func TestSQLite_DecrementUntilEmpty(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)

	_, err := store.CreateIfAbsent(ctx, "user_1", "", 3)
	require.NoError(t, err)

	for want := int64(2); want >= 0; want-- {
		entry, err := store.TryDecrement(ctx, "user_1", 1)
		require.NoError(t, err)
		assert.Equal(t, want, entry.Balance)
	}

	_, err = store.TryDecrement(ctx, "user_1", 1)
	assert.ErrorIs(t, err, ErrInsufficientFunds)

	_, err = store.TryDecrement(ctx, "ghost", 1)
	assert.ErrorIs(t, err, ErrNotFound)

	entry, err := store.Increment(ctx, "user_1", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), entry.Balance)
}
