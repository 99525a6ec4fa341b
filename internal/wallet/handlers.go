package wallet

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vendora/paycore/internal/logging"
	"github.com/vendora/paycore/internal/validation"
)

// Handler provides HTTP endpoints for wallet operations
type Handler struct {
	service     *Service
	recentLimit int
}

// NewHandler creates a new wallet handler
func NewHandler(service *Service, recentLimit int) *Handler {
	return &Handler{service: service, recentLimit: recentLimit}
}

// RegisterRoutes sets up wallet routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/accounts/:id/wallet", h.GetWallet)
	r.GET("/accounts/:id/wallet/transactions", h.ListTransactions)
	r.GET("/accounts/:id/wallet/statistics", h.GetStatistics)
}

// RegisterAdminRoutes sets up routes for internal services and admins.
func (h *Handler) RegisterAdminRoutes(r *gin.RouterGroup) {
	r.POST("/accounts/:id/wallet/transactions", h.AppendTransaction)
}

// GetWallet handles GET /accounts/:id/wallet
func (h *Handler) GetWallet(c *gin.Context) {
	accountID := c.Param("id")

	view, err := h.service.GetWallet(c.Request.Context(), accountID, h.recentLimit)
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "wallet_not_found",
				"message": "No wallet exists for this account",
			})
			return
		}
		logging.L(c.Request.Context()).Error("get wallet failed", "account", accountID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "wallet_error",
			"message": "Failed to retrieve wallet",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"wallet":             view.Wallet,
		"availableBalance":   view.Wallet.AvailableBalance(),
		"recentTransactions": view.RecentTransactions,
		"connectAccount":     view.ConnectAccount,
	})
}

// ListTransactions handles GET /accounts/:id/wallet/transactions?type=&limit=
func (h *Handler) ListTransactions(c *gin.Context) {
	accountID := c.Param("id")

	filter := TransactionFilter{Limit: 50}
	if limitStr := c.Query("limit"); limitStr != "" {
		if n, err := strconv.Atoi(limitStr); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if typ := c.Query("type"); typ != "" {
		filter.Type = TransactionType(typ)
	}

	txns, err := h.service.ListTransactions(c.Request.Context(), accountID, filter)
	if err != nil {
		if errors.Is(err, ErrInvalidType) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_type",
				"message": "Unknown transaction type",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "transactions_error",
			"message": "Failed to retrieve transactions",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"transactions": txns,
		"count":        len(txns),
	})
}

// GetStatistics handles GET /accounts/:id/wallet/statistics?period=
func (h *Handler) GetStatistics(c *gin.Context) {
	accountID := c.Param("id")
	period := c.DefaultQuery("period", "all")

	stats, err := h.service.GetStatistics(c.Request.Context(), accountID, period)
	if err != nil {
		if errors.Is(err, ErrInvalidPeriod) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_period",
				"message": "Period must be one of: day, week, month, year, all",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "statistics_error",
			"message": "Failed to compute statistics",
		})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// TransactionRequest records a ledger transaction (internal services only)
type TransactionRequest struct {
	Type        string `json:"type" binding:"required"`
	Amount      string `json:"amount" binding:"required"`
	OrderID     string `json:"orderId"`
	Description string `json:"description"`
}

// AppendTransaction handles POST /accounts/:id/wallet/transactions
func (h *Handler) AppendTransaction(c *gin.Context) {
	accountID := c.Param("id")

	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	if !validation.IsValidAmount(req.Amount) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_amount",
			"message": "Amount must be a positive decimal number",
		})
		return
	}

	txn, err := h.service.AppendTransaction(c.Request.Context(), accountID,
		TransactionType(req.Type), req.Amount, req.OrderID, req.Description)
	if err != nil {
		status := http.StatusInternalServerError
		errCode := "transaction_error"

		switch {
		case errors.Is(err, ErrWalletNotFound):
			status = http.StatusNotFound
			errCode = "wallet_not_found"
		case errors.Is(err, ErrWalletInactive):
			status = http.StatusConflict
			errCode = "wallet_inactive"
		case errors.Is(err, ErrInvalidType), errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			errCode = "invalid_request"
		case errors.Is(err, ErrInsufficientFunds):
			status = http.StatusBadRequest
			errCode = "insufficient_funds"
		}

		c.JSON(status, gin.H{
			"error":   errCode,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"transaction": txn,
	})
}
