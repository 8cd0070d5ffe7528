package service

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/client"
	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/usage"
)

type fakeCheckout struct {
	created  []string
	success  string
	cancel   string
	sessions map[string]*client.CheckoutSession
}

func (f *fakeCheckout) CreateSubscriptionCheckout(_ context.Context, priceID, successURL, cancelURL, clientRef string) (*client.CheckoutSession, error) {
	f.created = append(f.created, priceID)
	f.success, f.cancel = successURL, cancelURL
	return &client.CheckoutSession{ID: "cs_1", URL: "https://checkout.stripe.com/c/cs_1", ClientReferenceID: clientRef}, nil
}

func (f *fakeCheckout) GetCheckout(_ context.Context, id string) (*client.CheckoutSession, error) {
	s, ok := f.sessions[id]
	if !ok {
		return nil, errors.NotFound("checkout session")
	}
	return s, nil
}

func TestBillingService_CheckoutUsesTestPriceInTestMode(t *testing.T) {
	provider := &fakeCheckout{}
	tracker := usage.NewTracker(usage.NewMemoryStore(), false, zerolog.Nop())
	cfg := BillingConfig{BaseURL: "https://jamtalk.app/", PriceID: "price_live", TestPriceID: "price_test", TestMode: true}

	sess, err := NewBillingService(provider, tracker, cfg, zerolog.Nop()).Checkout(context.Background(), "user_a")
	if err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if sess.URL == "" || provider.created[0] != "price_test" {
		t.Fatalf("session = %+v, prices = %v", sess, provider.created)
	}
	if provider.success != "https://jamtalk.app/?success=true&session_id={CHECKOUT_SESSION_ID}" {
		t.Fatalf("success URL = %q", provider.success)
	}
	if provider.cancel != "https://jamtalk.app/?canceled=true" {
		t.Fatalf("cancel URL = %q", provider.cancel)
	}

	cfg.TestMode = false
	if _, err := NewBillingService(provider, tracker, cfg, zerolog.Nop()).Checkout(context.Background(), "user_a"); err != nil {
		t.Fatalf("Checkout: %v", err)
	}
	if provider.created[1] != "price_live" {
		t.Fatalf("live checkout used %q", provider.created[1])
	}
}

func TestBillingService_Confirm(t *testing.T) {
	provider := &fakeCheckout{sessions: map[string]*client.CheckoutSession{
		"cs_paid":   {ID: "cs_paid", ClientReferenceID: "user_a", Paid: true},
		"cs_unpaid": {ID: "cs_unpaid", ClientReferenceID: "user_a"},
	}}
	tracker := usage.NewTracker(usage.NewMemoryStore(), false, zerolog.Nop())
	svc := NewBillingService(provider, tracker, BillingConfig{PriceID: "price_live"}, zerolog.Nop())
	ctx := context.Background()

	tests := []struct {
		name    string
		user    string
		session string
		code    errors.ErrorCode
	}{
		{"missing id", "user_a", "", errors.ErrValidation},
		{"other user", "user_b", "cs_paid", errors.ErrForbidden},
		{"unpaid", "user_a", "cs_unpaid", errors.ErrPaymentRequired},
		{"unknown", "user_a", "cs_nope", errors.ErrPaymentService},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Confirm(ctx, tt.user, tt.session)
			if appErr, ok := errors.As(err); !ok || appErr.Code != tt.code {
				t.Fatalf("err = %v, want %s", err, tt.code)
			}
		})
	}
	if tracker.For("user_b").IsSubscribed(ctx) || tracker.For("user_a").IsSubscribed(ctx) {
		t.Fatal("failed confirmation activated a subscription")
	}

	stats, err := svc.Confirm(ctx, "user_a", "cs_paid")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if !stats.IsSubscribed || !stats.CanAttempt || stats.RemainingFree != usage.Unlimited {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestBillingService_NotConfigured(t *testing.T) {
	svc := NewBillingService(nil, usage.NewTracker(usage.NewMemoryStore(), false, zerolog.Nop()), BillingConfig{}, zerolog.Nop())
	_, err := svc.Checkout(context.Background(), "user_a")
	if appErr, ok := errors.As(err); !ok || appErr.Code != errors.ErrPaymentService {
		t.Fatalf("err = %v", err)
	}
}
