package scoring

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/walletrisk/internal/apierror"
	"github.com/mbd888/walletrisk/internal/metrics"
	"github.com/mbd888/walletrisk/internal/ratelimit"
	"github.com/mbd888/walletrisk/internal/validation"
)

// Handler provides HTTP endpoints for wallet evaluation.
type Handler struct {
	service *Service
}

// NewHandler creates a new scoring handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up public evaluation routes.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/wallets/:address", h.Evaluate)
	r.GET("/wallets/:address/features", h.Features)
	r.POST("/wallets/evaluate", h.EvaluateBatch)
	r.POST("/wallets/:address/invalidate", h.Invalidate)
}

// Evaluate handles GET /v1/wallets/:address
func (h *Handler) Evaluate(c *gin.Context) {
	ev, err := h.service.Evaluate(c.Request.Context(), c.Param("address"))
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"evaluation": ev})
}

// Features handles GET /v1/wallets/:address/features
func (h *Handler) Features(c *gin.Context) {
	report, err := h.service.Features(c.Request.Context(), c.Param("address"))
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// BatchRequest is the body of POST /v1/wallets/evaluate.
type BatchRequest struct {
	Addresses []string `json:"addresses" binding:"required"`
}

// EvaluateBatch handles POST /v1/wallets/evaluate
func (h *Handler) EvaluateBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if errs := validation.Validate(validation.Count("addresses", len(req.Addresses), 1, MaxBatchSize)); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": errs.Error()})
		return
	}

	var checks []validation.Check
	for i, addr := range req.Addresses {
		field := fmt.Sprintf("addresses[%d]", i)
		checks = append(checks, validation.Required(field, addr), validation.Address(field, strings.TrimSpace(addr)))
	}
	if errs := validation.Validate(checks...); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_address", "message": errs.Error(), "details": errs})
		return
	}

	// The request already paid for one wallet.
	if !ratelimit.Charge(c, len(req.Addresses)-1) {
		return
	}

	results := h.service.EvaluateBatch(c.Request.Context(), req.Addresses)
	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results), "failed": failed})
}

// Invalidate handles POST /v1/wallets/:address/invalidate
func (h *Handler) Invalidate(c *gin.Context) {
	address := c.Param("address")
	if _, err := Normalize(address); err != nil {
		apierror.Respond(c, err)
		return
	}
	n, err := h.service.Invalidate(c.Request.Context(), address)
	if err != nil {
		apierror.Respond(c, err)
		return
	}
	metrics.InvalidationsTotal.WithLabelValues("api").Add(float64(n))
	c.JSON(http.StatusOK, gin.H{"address": strings.ToLower(address), "invalidated": n > 0})
}
