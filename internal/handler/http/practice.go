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

// PracticeHandler serves prompt words, usage and scripts over HTTP.
type PracticeHandler struct {
	log      zerolog.Logger
	practice *service.PracticeService
}

// NewPracticeHandler creates a new practice handler.
func NewPracticeHandler(log zerolog.Logger, practice *service.PracticeService) *PracticeHandler {
	return &PracticeHandler{
		log:      log,
		practice: practice,
	}
}

// Prompt handles GET /api/v1/prompt
func (h *PracticeHandler) Prompt(w http.ResponseWriter, r *http.Request) {
	word, err := h.practice.Prompt()
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"word": word})
}

// Usage handles GET /api/v1/usage
func (h *PracticeHandler) Usage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	response.JSON(w, http.StatusOK, h.practice.Usage(r.Context(), userID))
}

// ResetUsage handles POST /api/v1/usage/reset
func (h *PracticeHandler) ResetUsage(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	stats, err := h.practice.ResetUsage(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, stats)
}

type scriptRequest struct {
	Word string `json:"word"`
}

// Script handles POST /api/v1/script
//
// Request: { "word": "coffee" }
// Response: { "word": "coffee", "script": "..." }
func (h *PracticeHandler) Script(w http.ResponseWriter, r *http.Request) {
	var req scriptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, errors.Validation("invalid request body"))
		return
	}

	userID := middleware.GetUserID(r.Context())
	text, err := h.practice.Script(r.Context(), userID, req.Word)
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"word": req.Word, "script": text})
}

func (h *PracticeHandler) handleError(w http.ResponseWriter, err error) {
	if appErr, ok := errors.As(err); !ok || appErr.HTTPStatus() >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Practice request failed")
	}
	response.FromError(w, err)
}
