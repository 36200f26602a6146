package credit

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/apierror"
)

// Handler provides HTTP endpoints for wallet scores.
type Handler struct {
	source Source
	store  Store
}

// NewHandler creates a new credit handler. source computes scores on a cache
// miss; store backs the listing endpoint.
func NewHandler(source Source, store Store) *Handler {
	return &Handler{source: source, store: store}
}

// RegisterRoutes sets up public score routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/score", h.GetScore)
	r.GET("/scores/recent", h.ListRecent)
}

// GetScore handles GET /v1/wallets/:address/score
func (h *Handler) GetScore(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	rec, err := h.source.Score(c.Request.Context(), address)
	if err != nil {
		apierror.Respond(c, err, ErrScoreNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address":    rec.Address,
		"score":      rec.Result,
		"riskBand":   BandName(rec.Result.RiskBand),
		"computedAt": rec.ComputedAt,
	})
}

// ListRecent handles GET /v1/scores/recent
func (h *Handler) ListRecent(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	records, err := h.store.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": records, "count": len(records)})
}
