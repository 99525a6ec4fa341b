package payoutrail

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendora/paycore/internal/logging"
)

// Handler provides HTTP endpoints for payout account onboarding
type Handler struct {
	service *Service
}

// NewHandler creates a new payout rail handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up payout rail routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/payout-rail/accounts", h.Onboard)
	r.GET("/payout-rail/accounts/:id", h.GetAccount)
	r.POST("/payout-rail/accounts/:id/refresh", h.RefreshStatus)
}

// OnboardRequest starts seller onboarding
type OnboardRequest struct {
	AccountID string `json:"accountId" binding:"required"`
	Email     string `json:"email" binding:"omitempty,email"`
}

// Onboard handles POST /payout-rail/accounts
func (h *Handler) Onboard(c *gin.Context) {
	var req OnboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	result, err := h.service.Onboard(c.Request.Context(), req.AccountID, req.Email)
	if err != nil {
		logging.L(c.Request.Context()).Error("onboarding failed", "account", req.AccountID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "rail_error",
			"message": "Failed to start payout onboarding",
		})
		return
	}

	c.JSON(http.StatusCreated, result)
}

// GetAccount handles GET /payout-rail/accounts/:id
func (h *Handler) GetAccount(c *gin.Context) {
	acct, err := h.service.Account(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "account_not_found",
				"message": "No payout account for this seller",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "account_error",
			"message": "Failed to retrieve payout account",
		})
		return
	}

	c.JSON(http.StatusOK, acct)
}

// RefreshStatus handles POST /payout-rail/accounts/:id/refresh
func (h *Handler) RefreshStatus(c *gin.Context) {
	acct, err := h.service.RefreshStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "account_not_found",
				"message": "No payout account for this seller",
			})
			return
		}
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "rail_error",
			"message": "Failed to refresh payout account status",
		})
		return
	}

	c.JSON(http.StatusOK, acct)
}
