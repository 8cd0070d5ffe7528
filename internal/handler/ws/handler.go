package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"github.com/windfall/jamtalk_service/internal/capture"
	"github.com/windfall/jamtalk_service/internal/coach"
	"github.com/windfall/jamtalk_service/internal/narration"
	"github.com/windfall/jamtalk_service/internal/service"
)

// Client message types.
const (
	TypePing       = "ping"
	TypePrompt     = "prompt"
	TypeStart      = "start"
	TypeResult     = "result"
	TypeError      = "error"
	TypeEnd        = "end"
	TypeAudio      = "audio"
	TypeReset      = "reset"
	TypeScript     = "script"
	TypeListen     = "listen"
	TypeStopListen = "stop_listen"
	TypePause      = "pause"
	TypeResume     = "resume"
	TypeUsage      = "usage"

	// TypeNarrationEnded acknowledges that the client finished playing a
	// narration's audio.
	TypeNarrationEnded = "narration_ended"
)

// Server message types not shared with the client set.
const (
	TypePong            = "pong"
	TypeSession         = "session"
	TypeUpsell          = "upsell"
	TypeNarration       = "narration"
	TypeStopRecognition = "stop_recognition"
)

// Recognizer modes a client can ask for when connecting.
const (
	RecognizerBrowser = "browser"
	RecognizerWhisper = "whisper"
)

const narrationFailedMessage = "Narration failed. Please try again."

// Sender delivers frames to one connected client. Both methods report false
// once the client is gone or falling behind.
type Sender interface {
	SendText(msg []byte) bool
	SendBinary(data []byte) bool
}

// Handler opens practice connections.
type Handler struct {
	log         zerolog.Logger
	practice    *service.PracticeService
	transcriber service.Transcriber
	audioType   string
}

// NewHandler creates a new WebSocket handler. transcriber may be nil, in
// which case only browser recognition is offered. audioType is the content
// type of narration frames.
func NewHandler(log zerolog.Logger, practice *service.PracticeService, transcriber service.Transcriber, audioType string) *Handler {
	return &Handler{
		log:         log,
		practice:    practice,
		transcriber: transcriber,
		audioType:   audioType,
	}
}

// Response represents a WebSocket response.
type Response struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// ErrorPayload is pushed with TypeError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResultPayload carries a browser recognition result.
type ResultPayload struct {
	ResultIndex int      `json:"result_index"`
	Final       []string `json:"final"`
	Interim     string   `json:"interim"`
}

// RecognitionErrorPayload carries a browser recognition error.
type RecognitionErrorPayload struct {
	Kind string `json:"kind"`
}

// AudioPayload carries one base64 encoded audio clip.
type AudioPayload struct {
	Data string `json:"data"`
}

// PlaybackPayload names one narration playback.
type PlaybackPayload struct {
	Playback uint64 `json:"playback"`
}

// ListenPayload selects the narration voice and speed.
type ListenPayload struct {
	Voice string  `json:"voice"`
	Speed float64 `json:"speed"`
}

// Conn is one client's practice connection.
type Conn struct {
	h      *Handler
	id     string
	userID string
	send   Sender
	log    zerolog.Logger

	coach   *coach.Coach
	output  *socketOutput
	relay   *capture.Relay
	whisper *service.WhisperRecognizer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Open starts a practice connection for userID. mode picks the recognizer;
// whisper falls back to browser recognition when no transcriber is
// configured.
func (h *Handler) Open(clientID, userID, mode string, send Sender) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		h:      h,
		id:     clientID,
		userID: userID,
		send:   send,
		log:    h.log.With().Str("client_id", clientID).Str("user_id", userID).Logger(),
		ctx:    ctx,
		cancel: cancel,
	}

	var rec capture.Recognizer
	if mode == RecognizerWhisper && h.transcriber != nil {
		c.whisper = service.NewWhisperRecognizer(h.transcriber, c.log)
		rec = c.whisper
	} else {
		if mode == RecognizerWhisper {
			c.log.Warn().Msg("Server transcription unavailable, using browser recognition")
		}
		c.relay = capture.NewRelay(0)
		c.relay.OnStop = func() { c.push(TypeStopRecognition, nil) }
		rec = c.relay
	}

	c.output = newSocketOutput(send)
	c.coach = h.practice.Open(userID, rec, c.output, service.SessionHooks{
		OnSession:   c.onSession,
		OnNarration: c.onNarration,
	})

	c.handlePrompt()
	c.push(TypeSession, c.coach.Session().Snapshot())
	c.push(TypeUsage, c.coach.Usage(ctx))
	return c
}

// Recognizer reports which recognizer the connection uses.
func (c *Conn) Recognizer() string {
	if c.whisper != nil {
		return RecognizerWhisper
	}
	return RecognizerBrowser
}

// Handle processes one incoming WebSocket message. Replies and later
// updates are pushed through the connection's Sender.
func (c *Conn) Handle(msgType string, payload json.RawMessage) {
	c.log.Debug().Str("type", msgType).Msg("Handling WebSocket message")

	switch msgType {
	case TypePing:
		c.push(TypePong, map[string]string{"message": "pong"})
	case TypePrompt:
		c.handlePrompt()
	case TypeStart:
		c.handleStart()
	case TypeResult:
		c.handleResult(payload)
	case TypeError:
		c.handleRecognitionError(payload)
	case TypeEnd:
		c.handleEnd()
	case TypeAudio:
		c.handleAudio(payload)
	case TypeReset:
		if err := c.coach.Reset(); err != nil {
			c.pushError("INVALID_STATE", "Practice is still running.")
		}
	case TypeScript:
		c.goAsync(c.handleScript)
	case TypeListen:
		c.handleListen(payload)
	case TypeStopListen:
		c.coach.StopListening()
	case TypePause:
		if id := c.coach.Playback(); c.coach.Pause() {
			c.push(TypeNarration, c.narrationPayload(id, "paused"))
		}
	case TypeResume:
		if id := c.coach.Playback(); c.coach.Resume() {
			c.push(TypeNarration, c.narrationPayload(id, narration.Playing.String()))
		}
	case TypeNarrationEnded:
		c.handleNarrationEnded(payload)
	case TypeUsage:
		c.push(TypeUsage, c.coach.Usage(c.ctx))
	default:
		c.pushError("UNKNOWN_TYPE", "unknown message type: "+msgType)
	}
}

// Close stops narration and capture and waits for background work.
func (c *Conn) Close() {
	c.cancel()
	c.coach.Close()
	if c.whisper != nil {
		c.whisper.Stop()
	}
	c.wg.Wait()
	c.log.Debug().Msg("Practice connection closed")
}

func (c *Conn) handlePrompt() {
	word, err := c.coach.NextPrompt()
	if err != nil {
		c.pushError("NO_PROMPT", "No prompt words are configured.")
		return
	}
	c.push(TypePrompt, map[string]string{"word": word})
}

func (c *Conn) handleStart() {
	err := c.coach.StartPractice(c.ctx)
	switch {
	case err == nil:
	case errors.Is(err, capture.ErrLimitReached):
		c.pushUpsell("practice")
	case errors.Is(err, capture.ErrInvalidState):
		c.pushError("INVALID_STATE", "Practice is already running.")
	default:
		c.log.Error().Err(err).Msg("Failed to start practice")
		c.pushError("START_FAILED", "Could not start practice.")
	}
}

func (c *Conn) handleResult(payload json.RawMessage) {
	if c.relay == nil {
		c.pushError("BAD_REQUEST", "results are only accepted with browser recognition")
		return
	}
	var res ResultPayload
	if err := json.Unmarshal(payload, &res); err != nil {
		c.pushError("BAD_REQUEST", "invalid result payload")
		return
	}
	ok := c.relay.Push(capture.Event{
		Kind:        capture.EventResult,
		ResultIndex: res.ResultIndex,
		Final:       res.Final,
		Interim:     res.Interim,
	})
	if ok {
		return
	}
	if !c.relay.Active() {
		c.log.Debug().Int("result_index", res.ResultIndex).Msg("Result arrived with no capture running")
		return
	}
	c.log.Warn().Int("result_index", res.ResultIndex).Int("final", len(res.Final)).Msg("Recognition result dropped")
	c.push(TypeError, map[string]interface{}{
		"code":         "RESULT_DROPPED",
		"message":      "Recognition result was not received, please resend it.",
		"result_index": res.ResultIndex,
	})
}

func (c *Conn) handleNarrationEnded(payload json.RawMessage) {
	var p PlaybackPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.pushError("BAD_REQUEST", "invalid narration_ended payload")
		return
	}
	if !c.output.Ended(p.Playback) {
		c.log.Debug().Uint64("playback", p.Playback).Msg("Stale narration ack")
	}
}

func (c *Conn) handleRecognitionError(payload json.RawMessage) {
	var p RecognitionErrorPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.pushError("BAD_REQUEST", "invalid error payload")
		return
	}
	if c.relay != nil {
		c.relay.Push(capture.Event{Kind: capture.EventError, ErrorKind: p.Kind})
	}
}

func (c *Conn) handleEnd() {
	if c.relay != nil {
		c.relay.Push(capture.Event{Kind: capture.EventEnd})
		return
	}
	c.goAsync(c.whisper.Stop)
}

func (c *Conn) handleAudio(payload json.RawMessage) {
	if c.whisper == nil {
		c.pushError("BAD_REQUEST", "audio is only accepted with server recognition")
		return
	}
	var p AudioPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		c.pushError("BAD_REQUEST", "invalid audio payload")
		return
	}
	clip, err := base64.StdEncoding.DecodeString(p.Data)
	if err != nil || len(clip) == 0 {
		c.pushError("BAD_REQUEST", "audio must be base64 encoded")
		return
	}
	c.whisper.Write(clip)
}

func (c *Conn) handleScript() {
	text, err := c.coach.RequestScript(c.ctx)
	switch {
	case errors.Is(err, coach.ErrUpsell):
		c.pushUpsell("script")
	case errors.Is(err, coach.ErrScriptUnavailable):
		c.push(TypeScript, map[string]interface{}{"word": c.coach.Word(), "text": text, "available": false})
	case err != nil:
		c.pushError("NO_PROMPT", "No prompt words are configured.")
	default:
		c.push(TypeScript, map[string]interface{}{"word": c.coach.Word(), "text": text, "available": true})
	}
}

func (c *Conn) handleListen(payload json.RawMessage) {
	var p ListenPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &p); err != nil {
			c.pushError("BAD_REQUEST", "invalid listen payload")
			return
		}
	}
	voice, err := narration.ParseVoice(p.Voice)
	if err != nil {
		c.pushError("VALIDATION_ERROR", err.Error())
		return
	}

	c.goAsync(func() {
		err := c.coach.Listen(c.ctx, voice, p.Speed, narration.Callbacks{
			OnError: func(error) {
				c.push(TypeNarration, map[string]interface{}{
					"playback": c.coach.Playback(),
					"state":    narration.Errored.String(),
					"message":  narrationFailedMessage,
				})
			},
		})
		switch {
		case err == nil, errors.Is(err, narration.ErrCancelled):
		case errors.Is(err, coach.ErrUpsell):
			c.pushUpsell("narration")
		case errors.Is(err, coach.ErrNarrationDisabled):
			c.pushError("NARRATION_DISABLED", "Generate a script before listening.")
		case errors.Is(err, narration.ErrNotConfigured):
			c.pushError("NARRATION_UNAVAILABLE", "Narration is not available.")
		case errors.Is(err, narration.ErrSpeedRange), errors.Is(err, narration.ErrEmptyText):
			c.pushError("VALIDATION_ERROR", err.Error())
		default:
			c.log.Debug().Err(err).Msg("Narration ended with error")
		}
	})
}

func (c *Conn) onSession(snap capture.Snapshot) {
	c.push(TypeSession, snap)
	if snap.State == capture.Complete {
		c.push(TypeUsage, c.coach.Usage(c.ctx))
	}
}

func (c *Conn) onNarration(id uint64, state narration.State) {
	c.push(TypeNarration, c.narrationPayload(id, state.String()))
}

func (c *Conn) narrationPayload(id uint64, state string) map[string]interface{} {
	return map[string]interface{}{"playback": id, "state": state, "content_type": c.h.audioType}
}

func (c *Conn) pushUpsell(feature string) {
	c.push(TypeUpsell, map[string]interface{}{
		"feature": feature,
		"usage":   c.coach.Usage(c.ctx),
	})
}

func (c *Conn) pushError(code, message string) {
	c.push(TypeError, ErrorPayload{Code: code, Message: message})
}

func (c *Conn) push(msgType string, payload interface{}) {
	msg, err := json.Marshal(Response{Type: msgType, Payload: payload})
	if err != nil {
		c.log.Error().Err(err).Str("type", msgType).Msg("Failed to encode WebSocket message")
		return
	}
	if !c.send.SendText(msg) {
		c.log.Debug().Str("type", msgType).Msg("Dropped WebSocket message")
	}
}

func (c *Conn) goAsync(fn func()) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
}
