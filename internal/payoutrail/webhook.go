package payoutrail

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/vendora/paycore/internal/logging"
)

// maxWebhookBody caps the event payload size.
const maxWebhookBody = 1 << 16

// TransferResolver settles a withdrawal once the rail reports its
// transfer outcome. Implementations must be idempotent: the rail
// retries webhook delivery and may send the same event more than once.
type TransferResolver interface {
	ResolveTransfer(ctx context.Context, withdrawalID, transferID string, succeeded bool) error
}

// WebhookHandler receives rail events.
type WebhookHandler struct {
	service       *Service
	resolver      TransferResolver
	signingSecret string
}

// NewWebhookHandler creates a webhook handler. The signing secret must
// match the endpoint's secret in the rail dashboard.
func NewWebhookHandler(service *Service, resolver TransferResolver, signingSecret string) *WebhookHandler {
	return &WebhookHandler{service: service, resolver: resolver, signingSecret: signingSecret}
}

// RegisterRoutes sets up webhook routes
func (h *WebhookHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/webhooks/stripe", h.HandleEvent)
}

// HandleEvent handles POST /webhooks/stripe
func (h *WebhookHandler) HandleEvent(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_payload",
			"message": "Failed to read event payload",
		})
		return
	}

	event, err := webhook.ConstructEvent(payload, c.GetHeader("Stripe-Signature"), h.signingSecret)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_signature",
			"message": "Event signature verification failed",
		})
		return
	}

	ctx := c.Request.Context()
	log := logging.L(ctx)

	switch event.Type {
	case "account.updated":
		var acct stripe.Account
		if err := json.Unmarshal(event.Data.Raw, &acct); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event", "message": "Malformed account payload"})
			return
		}
		state := &AccountState{
			ChargesEnabled:   acct.ChargesEnabled,
			PayoutsEnabled:   acct.PayoutsEnabled,
			DetailsSubmitted: acct.DetailsSubmitted,
		}
		if err := h.service.HandleAccountUpdated(ctx, acct.ID, state); err != nil {
			log.Error("account.updated handling failed", "rail_account", acct.ID, "error", err)
			// 5xx so the rail redelivers.
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event_error", "message": "Failed to apply event"})
			return
		}

	case "transfer.created", "transfer.reversed":
		var tr stripe.Transfer
		if err := json.Unmarshal(event.Data.Raw, &tr); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_event", "message": "Malformed transfer payload"})
			return
		}
		withdrawalID := tr.Metadata["withdrawal_id"]
		if withdrawalID == "" || h.resolver == nil {
			break // not one of ours
		}
		succeeded := event.Type == "transfer.created"
		if err := h.resolver.ResolveTransfer(ctx, withdrawalID, tr.ID, succeeded); err != nil {
			log.Error("transfer event resolution failed",
				"event", event.Type, "withdrawal", withdrawalID, "transfer", tr.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "event_error", "message": "Failed to apply event"})
			return
		}

	default:
		log.Debug("ignoring rail event", "type", event.Type)
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}
