package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invalidations struct {
	addresses []string
}

func (i *invalidations) invalidate(_ context.Context, addresses ...string) (int, error) {
	i.addresses = append(i.addresses, addresses...)
	return len(addresses), nil
}

func setupIngest() (*gin.Engine, *MemoryFeed, *invalidations) {
	gin.SetMode(gin.TestMode)
	mem := NewMemoryFeed()
	inv := &invalidations{}
	r := gin.New()
	NewHandler(mem, inv.invalidate).RegisterAdminRoutes(r.Group("/v1/admin"))
	return r, mem, inv
}

func TestHandler_Ingest(t *testing.T) {
	r, mem, inv := setupIngest()

	body := `{
		"transactions": [{
			"hash": "0xAA", "from": "` + wallet + `", "to": "` + peer + `",
			"value": "1.5", "gasUsed": 21000, "gasPrice": "20000000000",
			"status": "success", "blockTimestamp": "2024-03-01T12:00:00Z"
		}],
		"transfers": [{
			"tokenAddress": "` + usdc + `", "tokenType": "ERC20",
			"from": "` + other + `", "to": "` + wallet + `",
			"amount": "250", "blockTimestamp": "2024-03-01T13:00:00Z"
		}]
	}`
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/admin/history", strings.NewReader(body)))
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	h, err := mem.History(context.Background(), wallet)
	require.NoError(t, err)
	assert.Len(t, h.Transactions, 1)
	assert.Len(t, h.Transfers, 1)
	assert.Equal(t, "0xaa", h.Transactions[0].Hash)

	sort.Strings(inv.addresses)
	assert.Equal(t, []string{peer, other, strings.ToLower(wallet)}, inv.addresses)
}

func TestHandler_IngestRejectsBadRecords(t *testing.T) {
	r, mem, inv := setupIngest()

	tests := []struct {
		name string
		body string
	}{
		{"empty", `{}`},
		{"bad json", `{"transactions": [`},
		{"bad status", `{"transactions": [{"hash": "0x1", "from": "` + wallet + `", "status": "mined", "blockTimestamp": "2024-03-01T12:00:00Z"}]}`},
		{"bad token", `{"transfers": [{"tokenAddress": "usdc", "tokenType": "ERC20", "from": "` + wallet + `", "to": "` + peer + `", "amount": "1", "blockTimestamp": "2024-03-01T12:00:00Z"}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/v1/admin/history", strings.NewReader(tt.body)))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	h, err := mem.History(context.Background(), wallet)
	require.NoError(t, err)
	assert.True(t, h.Empty())
	assert.Empty(t, inv.addresses)
}
