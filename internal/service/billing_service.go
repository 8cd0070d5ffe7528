package service

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/usage"
)

// CheckoutProvider runs hosted subscription checkouts.
type CheckoutProvider interface {
	CreateSubscriptionCheckout(ctx context.Context, priceID, successURL, cancelURL, clientRef string) (*client.CheckoutSession, error)
	GetCheckout(ctx context.Context, id string) (*client.CheckoutSession, error)
}

// BillingConfig selects prices and return URLs.
type BillingConfig struct {
	BaseURL     string
	PriceID     string
	TestPriceID string
	TestMode    bool
}

// BillingService starts subscription checkouts and records successful ones.
type BillingService struct {
	provider CheckoutProvider
	tracker  *usage.Tracker
	cfg      BillingConfig
	log      zerolog.Logger
}

// NewBillingService creates a new billing service.
func NewBillingService(provider CheckoutProvider, tracker *usage.Tracker, cfg BillingConfig, log zerolog.Logger) *BillingService {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &BillingService{provider: provider, tracker: tracker, cfg: cfg, log: log}
}

// Checkout creates a checkout session for userID and returns where to send
// the browser.
func (s *BillingService) Checkout(ctx context.Context, userID string) (*client.CheckoutSession, error) {
	if s.provider == nil {
		return nil, errors.New(errors.ErrPaymentService, "payments are not configured")
	}

	priceID := s.cfg.PriceID
	if s.cfg.TestMode && s.cfg.TestPriceID != "" {
		priceID = s.cfg.TestPriceID
	}
	if priceID == "" {
		return nil, errors.New(errors.ErrPaymentService, "no price configured")
	}

	sess, err := s.provider.CreateSubscriptionCheckout(ctx,
		priceID,
		s.cfg.BaseURL+"/?success=true&session_id={CHECKOUT_SESSION_ID}",
		s.cfg.BaseURL+"/?canceled=true",
		userID,
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPaymentService, "failed to start checkout", err)
	}

	s.log.Info().
		Str("user_id", userID).
		Str("checkout_id", sess.ID).
		Bool("test_mode", s.cfg.TestMode).
		Msg("Checkout started")
	return sess, nil
}

// Confirm verifies a completed checkout and activates the subscription.
func (s *BillingService) Confirm(ctx context.Context, userID, sessionID string) (usage.Stats, error) {
	if s.provider == nil {
		return usage.Stats{}, errors.New(errors.ErrPaymentService, "payments are not configured")
	}
	if sessionID == "" {
		return usage.Stats{}, errors.Validation("session_id is required")
	}

	sess, err := s.provider.GetCheckout(ctx, sessionID)
	if err != nil {
		return usage.Stats{}, errors.Wrap(errors.ErrPaymentService, "failed to verify checkout", err)
	}
	if sess.ClientReferenceID != userID {
		return usage.Stats{}, errors.Forbidden("checkout belongs to another user")
	}
	if !sess.Paid {
		return usage.Stats{}, errors.PaymentRequired("checkout is not paid").
			WithDetails(map[string]interface{}{"checkout_id": sess.ID})
	}

	meter := s.tracker.For(userID)
	meter.SetSubscription(ctx, true)

	s.log.Info().Str("user_id", userID).Str("checkout_id", sess.ID).Msg("Subscription activated")
	return meter.Stats(ctx), nil
}
