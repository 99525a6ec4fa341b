package payoutrail

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/account"
	"github.com/stripe/stripe-go/v81/accountlink"
	"github.com/stripe/stripe-go/v81/transfer"

	"github.com/vendora/paycore/internal/money"
	"github.com/vendora/paycore/internal/retry"
)

// StripeRail implements Rail against Stripe Connect. Sellers get
// Express accounts; payouts are cross-account transfers from the
// platform balance.
type StripeRail struct{}

// NewStripeRail configures the global Stripe client key and returns
// the rail.
func NewStripeRail(secretKey string) *StripeRail {
	stripe.Key = secretKey
	return &StripeRail{}
}

func (r *StripeRail) CreateAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			Transfers: &stripe.AccountCapabilitiesTransfersParams{
				Requested: stripe.Bool(true),
			},
		},
	}
	if email != "" {
		params.Email = stripe.String(email)
	}
	params.Context = ctx

	acct, err := account.New(params)
	if err != nil {
		return "", classifyStripeErr(err)
	}
	return acct.ID, nil
}

func (r *StripeRail) OnboardingLink(ctx context.Context, railAccountID, returnURL, refreshURL string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(railAccountID),
		ReturnURL:  stripe.String(returnURL),
		RefreshURL: stripe.String(refreshURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx

	link, err := accountlink.New(params)
	if err != nil {
		return "", classifyStripeErr(err)
	}
	return link.URL, nil
}

func (r *StripeRail) AccountState(ctx context.Context, railAccountID string) (*AccountState, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx

	acct, err := account.GetByID(railAccountID, params)
	if err != nil {
		return nil, classifyStripeErr(err)
	}
	return &AccountState{
		ChargesEnabled:   acct.ChargesEnabled,
		PayoutsEnabled:   acct.PayoutsEnabled,
		DetailsSubmitted: acct.DetailsSubmitted,
	}, nil
}

func (r *StripeRail) CreateTransfer(ctx context.Context, railAccountID, amount, currency, idempotencyKey string) (string, error) {
	cents, ok := money.Parse(amount)
	if !ok {
		return "", retry.Permanent(errors.New("invalid transfer amount"))
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(cents.Int64()),
		Currency:    stripe.String(strings.ToLower(currency)),
		Destination: stripe.String(railAccountID),
	}
	params.Context = ctx
	params.SetIdempotencyKey(idempotencyKey)
	params.AddMetadata("withdrawal_id", idempotencyKey)

	tr, err := transfer.New(params)
	if err != nil {
		return "", classifyStripeErr(err)
	}
	return tr.ID, nil
}

// classifyStripeErr sorts rail failures into three buckets: permanent
// (do not retry), ambiguous (outcome unknown), and transient (retry
// with the same idempotency key).
func classifyStripeErr(err error) error {
	// Deadline or cancellation after the request may have been sent.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Join(ErrAmbiguous, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return errors.Join(ErrAmbiguous, err)
	}

	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		switch stripeErr.Type {
		case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard, stripe.ErrorTypeIdempotency:
			return retry.Permanent(err)
		}
		// A bad platform key arrives as a 401, not a distinct error type.
		if stripeErr.HTTPStatusCode == http.StatusUnauthorized {
			return retry.Permanent(err)
		}
		if stripeErr.HTTPStatusCode >= 500 {
			// The request reached Stripe; a 5xx response does not say
			// whether the transfer was recorded.
			return errors.Join(ErrAmbiguous, err)
		}
	}
	return err
}
