package risk

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/apierror"
)

// Handler provides HTTP endpoints for fraud assessments.
type Handler struct {
	source Source
	store  Store
}

// NewHandler creates a new risk handler.
func NewHandler(source Source, store Store) *Handler {
	return &Handler{source: source, store: store}
}

// RegisterRoutes sets up public fraud routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/fraud", h.GetAssessment)
	r.GET("/wallets/:address/fraud/history", h.ListHistory)
	r.GET("/fraud/flagged", h.ListFlagged)
}

// GetAssessment handles GET /v1/wallets/:address/fraud
func (h *Handler) GetAssessment(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	a, err := h.source.Assess(c.Request.Context(), address)
	if err != nil {
		apierror.Respond(c, err, ErrAssessmentNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessment": a})
}

// ListHistory handles GET /v1/wallets/:address/fraud/history
func (h *Handler) ListHistory(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	list, err := h.store.ListByAddress(c.Request.Context(), address, queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list, "count": len(list)})
}

// ListFlagged handles GET /v1/fraud/flagged
func (h *Handler) ListFlagged(c *gin.Context) {
	list, err := h.store.ListFlagged(c.Request.Context(), queryLimit(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list, "count": len(list)})
}

func queryLimit(c *gin.Context) int {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	return limit
}
