package credit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetPutInvalidate(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	_, err := store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)

	require.NoError(t, store.Put(ctx, &Record{Address: "0xAAAA000000000000000000000000000000000001", Result: ScoreResult{Score: 700}}))

	rec, err := store.Get(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 700, rec.Result.Score)
	assert.Equal(t, now, rec.ComputedAt)

	rec.Result.Score = 1
	again, err := store.Get(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 700, again.Result.Score, "returned records are copies")

	require.NoError(t, store.Invalidate(ctx, testAddr))
	_, err = store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.Put(ctx, &Record{Address: testAddr}))

	now = now.Add(2 * time.Minute)
	_, err := store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)

	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestMemoryStore_ListRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, &Record{Address: "0x01", ComputedAt: base}))
	require.NoError(t, store.Put(ctx, &Record{Address: "0x02", ComputedAt: base.Add(time.Hour)}))
	require.NoError(t, store.Put(ctx, &Record{Address: "0x03", ComputedAt: base.Add(30 * time.Minute)}))

	recent, err := store.ListRecent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "0x02", recent[0].Address)
	assert.Equal(t, "0x03", recent[1].Address)
}

func TestMemoryStore_PutAfterInvalidationIsSuperseded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	// An evaluation starts, then new history arrives for the wallet.
	epoch, err := store.Epoch(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(ctx, testAddr))

	err = store.Put(ctx, &Record{Address: testAddr, Result: ScoreResult{Score: 640}, Epoch: epoch})
	assert.ErrorIs(t, err, ErrSuperseded)
	_, err = store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)

	// An evaluation that began after the invalidation is cached.
	epoch, err = store.Epoch(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, &Record{Address: testAddr, Result: ScoreResult{Score: 655}, Epoch: epoch}))
	rec, err := store.Get(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 655, rec.Result.Score)

	// Invalidating another wallet does not affect this one.
	epoch, err = store.Epoch(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(ctx, "0x02"))
	assert.NoError(t, store.Put(ctx, &Record{Address: testAddr, Epoch: epoch}))
}

func TestMemoryStore_ForgottenInvalidationsRejectOlderEpochs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)

	epoch, err := store.Epoch(ctx)
	require.NoError(t, err)

	store.mu.Lock()
	for i := 0; i < maxTrackedInvalidations; i++ {
		store.invalidated[fmt.Sprintf("0x%040x", i)] = 0
	}
	store.mu.Unlock()
	require.NoError(t, store.Invalidate(ctx, "0x02"))

	assert.LessOrEqual(t, len(store.invalidated), 1)
	assert.ErrorIs(t, store.Put(ctx, &Record{Address: testAddr, Epoch: epoch}), ErrSuperseded)

	epoch, err = store.Epoch(ctx)
	require.NoError(t, err)
	assert.NoError(t, store.Put(ctx, &Record{Address: testAddr, Epoch: epoch}))
}
