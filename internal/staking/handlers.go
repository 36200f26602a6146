package staking

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/validation"
)

// Handler exposes staking positions over HTTP.
type Handler struct {
	store Store
}

// NewHandler creates a new staking handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up public staking routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address/staking", h.GetPosition)
	r.GET("/staking/top", h.ListTopStakers)
}

// RegisterAdminRoutes sets up routes that record positions.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.PUT("/wallets/:address/staking", h.PutPosition)
	r.DELETE("/wallets/:address/staking", h.DeletePosition)
}

// UpdateRequest is the body for PUT /wallets/:address/staking.
type UpdateRequest struct {
	StakedAmount string `json:"stakedAmount" binding:"required"`
}

// GetPosition handles GET /v1/wallets/:address/staking
func (h *Handler) GetPosition(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	pos, err := h.store.Position(c.Request.Context(), address)
	if errors.Is(err, ErrNotFound) {
		pos = None(address)
	} else if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": pos})
}

// PutPosition handles PUT /v1/admin/wallets/:address/staking
func (h *Handler) PutPosition(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	var req UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "stakedAmount is required"})
		return
	}
	amount, fe := validation.ParseAmount("stakedAmount", req.StakedAmount)
	if fe != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": fe.Field + ": " + fe.Message})
		return
	}

	pos, err := NewPosition(address, amount)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := h.store.Upsert(c.Request.Context(), pos); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"position": pos})
}

// DeletePosition handles DELETE /v1/admin/wallets/:address/staking
func (h *Handler) DeletePosition(c *gin.Context) {
	address := strings.ToLower(c.Param("address"))

	if err := h.store.Delete(c.Request.Context(), address); err != nil {
		status, code := http.StatusInternalServerError, "internal_error"
		if errors.Is(err, ErrNotFound) {
			status, code = http.StatusNotFound, "not_found"
		}
		c.JSON(status, gin.H{"error": code, "message": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

// ListTopStakers handles GET /v1/staking/top
func (h *Handler) ListTopStakers(c *gin.Context) {
	limit := 50
	if l := c.Query("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}

	positions, err := h.store.ListTopStakers(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"positions": positions, "count": len(positions)})
}
