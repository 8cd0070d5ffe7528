package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/middleware"
	"github.com/windfall/jamtalk_service/internal/service"
	"github.com/windfall/jamtalk_service/pkg/response"
)

// BillingHandler starts and confirms subscription checkouts.
type BillingHandler struct {
	log     zerolog.Logger
	billing *service.BillingService
}

// NewBillingHandler creates a new billing handler.
func NewBillingHandler(log zerolog.Logger, billing *service.BillingService) *BillingHandler {
	return &BillingHandler{
		log:     log,
		billing: billing,
	}
}

// Checkout handles POST /api/v1/billing/checkout
//
// Response: { "session_id": "cs_...", "url": "https://checkout.stripe.com/..." }
func (h *BillingHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	sess, err := h.billing.Checkout(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{
		"session_id": sess.ID,
		"url":        sess.URL,
	})
}

type confirmRequest struct {
	SessionID string `json:"session_id"`
}

// Confirm handles POST /api/v1/billing/confirm after the checkout redirect.
//
// Request: { "session_id": "cs_..." }
// Response: usage stats with the subscription active.
func (h *BillingHandler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, errors.Validation("invalid request body"))
		return
	}

	userID := middleware.GetUserID(r.Context())
	stats, err := h.billing.Confirm(r.Context(), userID, req.SessionID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

func (h *BillingHandler) handleError(w http.ResponseWriter, err error) {
	if appErr, ok := errors.As(err); !ok || appErr.HTTPStatus() >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Billing request failed")
	}
	response.FromError(w, err)
}
