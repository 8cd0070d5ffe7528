package http

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/errors"
	"github.com/windfall/jamtalk_service/internal/middleware"
	"github.com/windfall/jamtalk_service/internal/narration"
	"github.com/windfall/jamtalk_service/internal/service"
	"github.com/windfall/jamtalk_service/pkg/response"
)

// NarrationHandler renders scripts to stored audio.
type NarrationHandler struct {
	log        zerolog.Logger
	practice   *service.PracticeService
	narrations *service.NarrationService
}

// NewNarrationHandler creates a new narration handler.
func NewNarrationHandler(log zerolog.Logger, practice *service.PracticeService, narrations *service.NarrationService) *NarrationHandler {
	return &NarrationHandler{
		log:        log,
		practice:   practice,
		narrations: narrations,
	}
}

type renderRequest struct {
	Word  string  `json:"word"`
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

type renderResponse struct {
	Script string `json:"script"`
	*service.Rendering
}

// Render handles POST /api/v1/narration/render
//
// Only generated scripts are rendered: the caller names a prompt word and
// gets back the script for it along with the stored audio.
//
// Request: { "word": "travel", "voice": "nova", "speed": 1.0 }
// Response: { "script": "...", "url": "...", "voice": "nova", "speed": 1, "cached": false }
func (h *NarrationHandler) Render(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req renderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.handleError(w, errors.Validation("invalid request body"))
		return
	}
	voice, err := narration.ParseVoice(req.Voice)
	if err != nil {
		h.handleError(w, errors.Validation(err.Error()))
		return
	}

	script, err := h.practice.Script(ctx, middleware.GetUserID(ctx), req.Word)
	if err != nil {
		h.handleError(w, err)
		return
	}

	out, err := h.narrations.Render(ctx, narration.Request{Text: script, Voice: voice, Speed: req.Speed})
	if err != nil {
		h.handleError(w, err)
		return
	}
	response.JSON(w, http.StatusOK, renderResponse{Script: script, Rendering: out})
}

func (h *NarrationHandler) handleError(w http.ResponseWriter, err error) {
	if appErr, ok := errors.As(err); !ok || appErr.HTTPStatus() >= http.StatusInternalServerError {
		h.log.Error().Err(err).Msg("Narration render failed")
	}
	response.FromError(w, err)
}
