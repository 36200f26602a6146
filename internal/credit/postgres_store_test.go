//go:build integration

package credit

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mbd888/walletrisk/internal/testutil"
)

func TestPostgresStore_RoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db, time.Hour)

	_, err := store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)

	rec := &Record{
		Address: testAddr,
		Result: ScoreResult{
			Score: 650, BaseScore: 600, RiskBand: BandLow,
			Explanation:  "base score 600",
			StakingBoost: 50, StakedAmount: decimal.RequireFromString("12000.5"), StakingTier: 2,
			PolicyVersion: "2024.1",
		},
		ComputedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	require.NoError(t, store.Put(ctx, rec))

	got, err := store.Get(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, 650, got.Result.Score)
	assert.True(t, got.Result.StakedAmount.Equal(rec.Result.StakedAmount))
	assert.Equal(t, "2024.1", got.Result.PolicyVersion)

	rec.Result.Score = 700
	require.NoError(t, store.Put(ctx, rec))
	recent, err := store.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 700, recent[0].Result.Score)

	require.NoError(t, store.Invalidate(ctx, testAddr))
	_, err = store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)
}

func TestPostgresStore_StaleRowsAreMissing(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db, time.Minute)
	require.NoError(t, store.Put(ctx, &Record{
		Address:    testAddr,
		Result:     ScoreResult{Score: 500, BaseScore: 500, RiskBand: BandMedium, StakedAmount: decimal.Zero},
		ComputedAt: time.Now().Add(-time.Hour),
	}))

	_, err := store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)
}

func TestPostgresStore_PutAfterInvalidationIsSuperseded(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	store := NewPostgresStore(db, 0)
	result := ScoreResult{Score: 500, BaseScore: 500, RiskBand: BandMedium, StakedAmount: decimal.Zero}

	epoch, err := store.Epoch(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Invalidate(ctx, testAddr))

	err = store.Put(ctx, &Record{Address: testAddr, Result: result, Epoch: epoch})
	assert.ErrorIs(t, err, ErrSuperseded)
	_, err = store.Get(ctx, testAddr)
	assert.ErrorIs(t, err, ErrScoreNotFound)

	epoch, err = store.Epoch(ctx)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, &Record{Address: testAddr, Result: result, Epoch: epoch}))
	_, err = store.Get(ctx, testAddr)
	assert.NoError(t, err)
}
