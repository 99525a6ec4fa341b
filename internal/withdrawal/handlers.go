package withdrawal

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vendora/paycore/internal/logging"
)

// Handler provides HTTP endpoints for withdrawal operations
type Handler struct {
	service *Service
}

// NewHandler creates a new withdrawal handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up seller-facing withdrawal routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/accounts/:id/wallet/payout", h.RequestWithdrawal)
	r.GET("/accounts/:id/withdrawals", h.ListForAccount)
}

// RegisterAdminRoutes sets up the admin review queue routes.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.GET("/withdrawals", h.ListQueue)
	r.POST("/withdrawals/:id/approve", h.Approve)
	r.POST("/withdrawals/:id/reject", h.Reject)
}

// PayoutRequest asks for a withdrawal
type PayoutRequest struct {
	Amount string `json:"amount" binding:"required"`
}

// RequestWithdrawal handles POST /accounts/:id/wallet/payout
func (h *Handler) RequestWithdrawal(c *gin.Context) {
	accountID := c.Param("id")

	var req PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	request, err := h.service.Request(c.Request.Context(), accountID, req.Amount)
	if err != nil {
		status := http.StatusInternalServerError
		errCode := "withdrawal_error"

		switch {
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			errCode = "invalid_amount"
		case errors.Is(err, ErrBelowMinimum):
			status = http.StatusBadRequest
			errCode = "below_minimum"
		case errors.Is(err, ErrExceedsBalance):
			status = http.StatusBadRequest
			errCode = "exceeds_balance"
		case errors.Is(err, ErrPayoutsDisabled):
			status = http.StatusBadRequest
			errCode = "payouts_disabled"
		}

		c.JSON(status, gin.H{
			"error":   errCode,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"withdrawal": request,
	})
}

// ListForAccount handles GET /accounts/:id/withdrawals
func (h *Handler) ListForAccount(c *gin.Context) {
	limit := 50
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	requests, err := h.service.List(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "withdrawal_error",
			"message": "Failed to list withdrawals",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawals": requests,
		"count":       len(requests),
	})
}

// ListQueue handles GET /withdrawals?status= (admin)
func (h *Handler) ListQueue(c *gin.Context) {
	status := Status(c.DefaultQuery("status", string(StatusPending)))

	requests, err := h.service.ListByStatus(c.Request.Context(), status, 100)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "Unknown withdrawal status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawals": requests,
		"count":       len(requests),
	})
}

// Approve handles POST /withdrawals/:id/approve (admin)
func (h *Handler) Approve(c *gin.Context) {
	id := c.Param("id")

	request, err := h.service.Approve(c.Request.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "withdrawal_not_found",
				"message": "No withdrawal request with this ID",
			})
		case errors.Is(err, ErrStateConflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "state_conflict",
				"message": "Request is not pending",
			})
		case errors.Is(err, ErrRailUnavailable):
			// The request may remain in processing; return its current
			// state so the admin sees exactly where it stands.
			current, getErr := h.service.Get(c.Request.Context(), id)
			body := gin.H{
				"error":   "rail_unavailable",
				"message": err.Error(),
			}
			if getErr == nil {
				body["withdrawal"] = current
			}
			c.JSON(http.StatusBadGateway, body)
		default:
			logging.L(c.Request.Context()).Error("approve failed", "withdrawal", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "withdrawal_error",
				"message": "Failed to approve withdrawal",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawal": request,
	})
}

// RejectRequest declines a withdrawal
type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject handles POST /withdrawals/:id/reject (admin)
func (h *Handler) Reject(c *gin.Context) {
	id := c.Param("id")

	var req RejectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "missing_reason",
			"message": "A rejection reason is required",
		})
		return
	}

	request, err := h.service.Reject(c.Request.Context(), id, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "withdrawal_not_found",
				"message": "No withdrawal request with this ID",
			})
		case errors.Is(err, ErrStateConflict):
			c.JSON(http.StatusConflict, gin.H{
				"error":   "state_conflict",
				"message": "Request is not pending",
			})
		case errors.Is(err, ErrEmptyReason):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "missing_reason",
				"message": "A rejection reason is required",
			})
		default:
			logging.L(c.Request.Context()).Error("reject failed", "withdrawal", id, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "withdrawal_error",
				"message": "Failed to reject withdrawal",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"withdrawal": request,
	})
}
