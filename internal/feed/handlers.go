package feed

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/chain"
)

// Ingester stores history records for later scoring.
type Ingester interface {
	InsertTransactions(ctx context.Context, txs ...chain.Transaction) error
	InsertTransfers(ctx context.Context, transfers ...chain.TokenTransfer) error
}

var (
	_ Ingester = (*MemoryFeed)(nil)
	_ Ingester = (*PostgresFeed)(nil)
)

// MaxIngestRecords caps one ingestion request.
const MaxIngestRecords = 5000

// Handler accepts history records over HTTP.
type Handler struct {
	ingester   Ingester
	invalidate func(ctx context.Context, addresses ...string) (int, error)
}

// NewHandler creates an ingestion handler. invalidate is called with every
// address the new records touch so stale scores are recomputed.
func NewHandler(ingester Ingester, invalidate func(ctx context.Context, addresses ...string) (int, error)) *Handler {
	return &Handler{ingester: ingester, invalidate: invalidate}
}

// RegisterAdminRoutes sets up ingestion routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/history", h.Ingest)
}

// IngestRequest is the body for POST /v1/admin/history.
type IngestRequest struct {
	Transactions []chain.Transaction   `json:"transactions"`
	Transfers    []chain.TokenTransfer `json:"transfers"`
}

// Ingest handles POST /v1/admin/history. Records are validated as a whole;
// one bad record rejects the request.
func (h *Handler) Ingest(c *gin.Context) {
	var req IngestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	total := len(req.Transactions) + len(req.Transfers)
	if total == 0 || total > MaxIngestRecords {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": fmt.Sprintf("request must carry between 1 and %d records", MaxIngestRecords),
		})
		return
	}

	touched := make(map[string]struct{})
	for i := range req.Transactions {
		tx := &req.Transactions[i]
		if err := tx.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_record", "message": fmt.Sprintf("transactions[%d]: %v", i, err)})
			return
		}
		tx.Normalize()
		touched[tx.From] = struct{}{}
		if tx.To != "" {
			touched[tx.To] = struct{}{}
		}
	}
	for i := range req.Transfers {
		tr := &req.Transfers[i]
		if err := tr.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_record", "message": fmt.Sprintf("transfers[%d]: %v", i, err)})
			return
		}
		tr.Normalize()
		touched[tr.From] = struct{}{}
		touched[tr.To] = struct{}{}
	}

	ctx := c.Request.Context()
	if err := h.ingester.InsertTransactions(ctx, req.Transactions...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	if err := h.ingester.InsertTransfers(ctx, req.Transfers...); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	invalidated := 0
	if h.invalidate != nil {
		addrs := make([]string, 0, len(touched))
		for a := range touched {
			addrs = append(addrs, a)
		}
		n, err := h.invalidate(ctx, addrs...)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
			return
		}
		invalidated = n
	}

	c.JSON(http.StatusAccepted, gin.H{
		"transactions": len(req.Transactions),
		"transfers":    len(req.Transfers),
		"invalidated":  invalidated,
	})
}
