package client

import (
	"context"
	"fmt"

	"github.com/stripe/stripe-go/v84"
)

// CheckoutSession is the part of a Stripe Checkout session the service uses.
type CheckoutSession struct {
	ID                string
	URL               string
	ClientReferenceID string
	Paid              bool
}

// StripeClient creates and verifies hosted Checkout sessions.
type StripeClient struct {
	client *stripe.Client
}

// NewStripeClient creates a Stripe client for the given secret key.
func NewStripeClient(secretKey string) *StripeClient {
	return &StripeClient{client: stripe.NewClient(secretKey)}
}

// CreateSubscriptionCheckout starts a subscription checkout for one unit of
// priceID. clientRef is echoed back on the session so the payer can be
// matched to a user on return.
func (c *StripeClient) CreateSubscriptionCheckout(ctx context.Context, priceID, successURL, cancelURL, clientRef string) (*CheckoutSession, error) {
	params := &stripe.CheckoutSessionCreateParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionCreateLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:               stripe.String(successURL),
		CancelURL:                stripe.String(cancelURL),
		ClientReferenceID:        stripe.String(clientRef),
		BillingAddressCollection: stripe.String(string(stripe.CheckoutSessionBillingAddressCollectionAuto)),
	}

	sess, err := c.client.V1CheckoutSessions.Create(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkout session: %w", err)
	}
	return toCheckoutSession(sess), nil
}

// GetCheckout fetches a session by ID.
func (c *StripeClient) GetCheckout(ctx context.Context, id string) (*CheckoutSession, error) {
	sess, err := c.client.V1CheckoutSessions.Retrieve(ctx, id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch checkout session: %w", err)
	}
	return toCheckoutSession(sess), nil
}

func toCheckoutSession(s *stripe.CheckoutSession) *CheckoutSession {
	return &CheckoutSession{
		ID:                s.ID,
		URL:               s.URL,
		ClientReferenceID: s.ClientReferenceID,
		Paid: s.Status == stripe.CheckoutSessionStatusComplete &&
			s.PaymentStatus != stripe.CheckoutSessionPaymentStatusUnpaid,
	}
}
