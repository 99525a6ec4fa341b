package creditterm

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vendora/paycore/internal/logging"
)

// Handler provides HTTP endpoints for credit terms and wholesale
// order settlement
type Handler struct {
	service *Service
}

// NewHandler creates a new credit-terms handler
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up credit-terms routes
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/credit-terms", h.Enable)
	r.GET("/credit-terms/:id", h.Get)
	r.POST("/credit-terms/:id/authorize", h.Authorize)
	r.POST("/wholesale-orders/:id/mark-paid", h.MarkPaid)
	r.GET("/wholesale-orders/:id", h.GetOrder)
}

// EnableRequest creates or updates a credit arrangement
type EnableRequest struct {
	GrantorID     string `json:"grantorId" binding:"required"`
	RecipientID   string `json:"recipientId" binding:"required"`
	PaymentMethod string `json:"paymentMethod" binding:"required"`
	CreditDays    int    `json:"creditDays"`
	CreditLimit   string `json:"creditLimit"`
}

// Enable handles POST /credit-terms
func (h *Handler) Enable(c *gin.Context) {
	var req EnableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	term, err := h.service.Enable(c.Request.Context(), req.GrantorID, req.RecipientID,
		PaymentMethod(req.PaymentMethod), req.CreditDays, req.CreditLimit)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidMethod), errors.Is(err, ErrInvalidDays), errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": err.Error(),
			})
		default:
			logging.L(c.Request.Context()).Error("enable credit term failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "credit_term_error",
				"message": "Failed to save credit term",
			})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"creditTerm": term,
	})
}

// Get handles GET /credit-terms/:id
func (h *Handler) Get(c *gin.Context) {
	term, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrTermNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "credit_term_not_found",
				"message": "No credit term with this ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "credit_term_error",
			"message": "Failed to retrieve credit term",
		})
		return
	}

	c.JSON(http.StatusOK, term)
}

// AuthorizeRequest admits a wholesale order under the term
type AuthorizeRequest struct {
	OrderID string `json:"orderId"`
	Total   string `json:"total" binding:"required"`
}

// Authorize handles POST /credit-terms/:id/authorize
func (h *Handler) Authorize(c *gin.Context) {
	termID := c.Param("id")

	var req AuthorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	order, err := h.service.Authorize(c.Request.Context(), termID, req.OrderID, req.Total)
	if err != nil {
		status := http.StatusInternalServerError
		errCode := "authorization_error"

		switch {
		case errors.Is(err, ErrTermNotFound):
			status = http.StatusNotFound
			errCode = "credit_term_not_found"
		case errors.Is(err, ErrTermInactive):
			status = http.StatusBadRequest
			errCode = "credit_term_inactive"
		case errors.Is(err, ErrCreditLimitExceeded):
			status = http.StatusBadRequest
			errCode = "credit_limit_exceeded"
		case errors.Is(err, ErrInvalidAmount):
			status = http.StatusBadRequest
			errCode = "invalid_amount"
		case errors.Is(err, ErrOrderExists):
			status = http.StatusConflict
			errCode = "order_exists"
		}

		c.JSON(status, gin.H{
			"error":   errCode,
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"order": order,
	})
}

// MarkPaidRequest records a payment against an order
type MarkPaidRequest struct {
	PaidAmount string `json:"paidAmount" binding:"required"`
}

// MarkPaid handles POST /wholesale-orders/:id/mark-paid
func (h *Handler) MarkPaid(c *gin.Context) {
	orderID := c.Param("id")

	var req MarkPaidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	order, err := h.service.Settle(c.Request.Context(), orderID, req.PaidAmount)
	if err != nil {
		switch {
		case errors.Is(err, ErrOrderNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "order_not_found",
				"message": "No wholesale order with this ID",
			})
		case errors.Is(err, ErrInvalidAmount):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_amount",
				"message": err.Error(),
			})
		default:
			logging.L(c.Request.Context()).Error("mark-paid failed", "order", orderID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "settlement_error",
				"message": "Failed to record payment",
			})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"order": order,
	})
}

// GetOrder handles GET /wholesale-orders/:id
func (h *Handler) GetOrder(c *gin.Context) {
	order, err := h.service.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error":   "order_not_found",
				"message": "No wholesale order with this ID",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "order_error",
			"message": "Failed to retrieve order",
		})
		return
	}

	c.JSON(http.StatusOK, order)
}
