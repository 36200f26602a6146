package staking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const addr = "0xaaaa000000000000000000000000000000000001"

func TestTierFor(t *testing.T) {
	tests := []struct {
		amount string
		want   int
	}{
		{"0", 0},
		{"999.99", 0},
		{"1000", 1},
		{"9999", 1},
		{"10000", 2},
		{"99999.5", 2},
		{"100000", 3},
		{"5000000", 3},
	}
	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			assert.Equal(t, tt.want, TierFor(decimal.RequireFromString(tt.amount)))
		})
	}
}

func TestBoostTable(t *testing.T) {
	b := DefaultBoostTable()
	assert.Equal(t, 0, b.Boost(0))
	assert.Equal(t, 25, b.Boost(1))
	assert.Equal(t, 50, b.Boost(2))
	assert.Equal(t, 100, b.Boost(3))
	assert.Equal(t, 100, b.Boost(7), "tier clamps to the top")
	assert.Equal(t, 0, b.Boost(-2), "tier clamps to zero")

	b.Boosts[3] = 400
	b.Cap = 150
	assert.Equal(t, 150, b.Boost(3))
}

func TestNewPositionRejectsNegative(t *testing.T) {
	_, err := NewPosition(addr, decimal.NewFromInt(-1))
	assert.ErrorIs(t, err, ErrInvalidAmount)

	pos, err := NewPosition(addr, decimal.NewFromInt(12_000))
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Tier)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.Position(ctx, addr)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Upsert(ctx, Position{Address: strings.ToUpper(addr[2:]), StakedAmount: decimal.NewFromInt(5)}))
	require.NoError(t, s.Upsert(ctx, Position{Address: addr, StakedAmount: decimal.NewFromInt(150_000), Tier: 0}))

	pos, err := s.Position(ctx, addr)
	require.NoError(t, err)
	assert.Equal(t, 3, pos.Tier, "tier is derived from the amount")
	assert.False(t, pos.UpdatedAt.IsZero())

	top, err := s.ListTopStakers(ctx, 1)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, addr, top[0].Address)

	require.NoError(t, s.Delete(ctx, addr))
	assert.ErrorIs(t, s.Delete(ctx, addr), ErrNotFound)
}

func setupRouter() (*gin.Engine, *MemoryStore) {
	gin.SetMode(gin.TestMode)
	store := NewMemoryStore()
	h := NewHandler(store)
	r := gin.New()
	v1 := r.Group("/v1")
	h.RegisterRoutes(v1)
	h.RegisterAdminRoutes(v1.Group("/admin"))
	return r, store
}

func TestHandler_GetPositionDefaultsToNone(t *testing.T) {
	r, _ := setupRouter()

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/wallets/"+addr+"/staking", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Position Position `json:"position"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 0, resp.Position.Tier)
	assert.True(t, resp.Position.StakedAmount.IsZero())
}

func TestHandler_PutPosition(t *testing.T) {
	r, store := setupRouter()

	w := httptest.NewRecorder()
	body := strings.NewReader(`{"stakedAmount":"25000"}`)
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/v1/admin/wallets/"+addr+"/staking", body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	pos, err := store.Position(context.Background(), addr)
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Tier)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/v1/admin/wallets/"+addr+"/staking", strings.NewReader(`{"stakedAmount":"-4"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPut, "/v1/admin/wallets/"+addr+"/staking", strings.NewReader(`{"stakedAmount":"lots"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_DeleteMissing(t *testing.T) {
	r, _ := setupRouter()
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/v1/admin/wallets/"+addr+"/staking", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
