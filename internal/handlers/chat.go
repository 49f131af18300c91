package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/minebot-bridge-go/internal/config"
	"github.com/minebot-bridge-go/internal/i18n"
	"github.com/minebot-bridge-go/internal/middleware"
	"github.com/minebot-bridge-go/internal/models"
	"github.com/minebot-bridge-go/internal/services/bridge"
	"github.com/minebot-bridge-go/internal/services/history"
	"github.com/minebot-bridge-go/internal/services/pixelart"
	"github.com/minebot-bridge-go/internal/services/session"
	"github.com/minebot-bridge-go/internal/services/validator"
	"github.com/minebot-bridge-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// Defaults for the placement origin when the request carries no player
// position.
const (
	defaultOriginY = 64
	// Pixel art is placed this many blocks in front of the player on Z.
	pixelArtZOffset = 2
)

// ChatHandler serves the bridge's HTTP surface.
type ChatHandler struct {
	config    *config.Config
	sessions  *session.Store
	bridge    *bridge.Bridge
	cooldown  *middleware.CooldownLimiter
	global    *middleware.GlobalLimiter
	compiler  *pixelart.Compiler
	recorder  history.Recorder
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewChatHandler wires the handler's collaborators.
func NewChatHandler(
	cfg *config.Config,
	sessions *session.Store,
	replyBridge *bridge.Bridge,
	cooldown *middleware.CooldownLimiter,
	global *middleware.GlobalLimiter,
	compiler *pixelart.Compiler,
	recorder history.Recorder,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *ChatHandler {
	return &ChatHandler{
		config:    cfg,
		sessions:  sessions,
		bridge:    replyBridge,
		cooldown:  cooldown,
		global:    global,
		compiler:  compiler,
		recorder:  recorder,
		localizer: localizer,
		metrics:   metrics,
		logger:    logger,
	}
}

// Routes registers the handler on the router.
func (h *ChatHandler) Routes(r *mux.Router) {
	r.HandleFunc("/chat", h.HandleChat).Methods(http.MethodPost)
	r.HandleFunc("/reset/{playerUUID}", h.HandleReset).Methods(http.MethodPost)
	r.HandleFunc("/reset-all", h.HandleResetAll).Methods(http.MethodPost)
	r.HandleFunc("/health", h.HandleHealth).Methods(http.MethodGet)
}

func (h *ChatHandler) localize(messageID string, data map[string]interface{}) string {
	return h.localizer.Get(h.config.I18n.DefaultLanguage, messageID, data)
}

func (h *ChatHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.WithError(err).Error("Failed to encode response")
	}
}

// HandleChat turns one player message into one action.
func (h *ChatHandler) HandleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger.WithField("requestId", uuid.NewString())

	var req models.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordRequest("/chat", "invalid")
		h.writeJSON(w, http.StatusBadRequest, models.ErrorAction{
			Text: h.localize(i18n.MsgInvalidRequest, map[string]interface{}{"Reason": "malformed JSON body"}),
		})
		return
	}
	if err := req.Validate(); err != nil {
		h.metrics.RecordRequest("/chat", "invalid")
		h.writeJSON(w, http.StatusBadRequest, models.ErrorAction{
			Text: h.localize(i18n.MsgInvalidRequest, map[string]interface{}{"Reason": err.Error()}),
		})
		return
	}

	log = log.WithFields(logrus.Fields{
		"playerName": req.PlayerName,
		"playerUUID": req.PlayerUUID,
	})
	log.WithField("message", req.Message).Info("Chat request received")

	if !h.global.Allow() {
		h.metrics.RecordRateLimited("global")
		h.metrics.RecordRequest("/chat", "rate_limited")
		h.writeJSON(w, http.StatusOK, models.ErrorAction{Text: h.localize(i18n.MsgRateLimited, nil)})
		return
	}
	if !h.cooldown.Allow(req.PlayerUUID) {
		h.metrics.RecordRateLimited("player")
		h.metrics.RecordRequest("/chat", "rate_limited")
		h.writeJSON(w, http.StatusOK, models.ErrorAction{Text: h.localize(i18n.MsgRateLimited, nil)})
		return
	}

	action, err := h.resolveAction(r, log, &req)
	if err != nil {
		log.WithError(err).WithField("durationMs", time.Since(start).Milliseconds()).Error("Chat request failed")
		h.metrics.RecordRequest("/chat", "error")
		h.writeJSON(w, http.StatusOK, models.ErrorAction{Text: h.localize(i18n.MsgGenericError, nil)})
		return
	}

	h.recordHistory(r, &req, action)

	h.metrics.RecordAction(action.ActionType())
	h.metrics.RecordRequest("/chat", "success")
	log.WithFields(logrus.Fields{
		"actionType": action.ActionType(),
		"durationMs": time.Since(start).Milliseconds(),
	}).Info("Chat request resolved")
	h.writeJSON(w, http.StatusOK, action)
}

// resolveAction runs the backend round trip and post-processing. Every error
// it returns is an internal failure; whitelist rejections come back as
// ordinary error actions, not errors.
func (h *ChatHandler) resolveAction(r *http.Request, log *logrus.Entry, req *models.ChatRequest) (models.Action, error) {
	ctx := r.Context()

	sess, err := h.sessions.GetOrCreate(ctx, req.PlayerUUID)
	if err != nil {
		return nil, err
	}

	contextMessage := fmt.Sprintf("[Player: %s | UUID: %s] %s", req.PlayerName, req.PlayerUUID, req.Message)

	waitStart := time.Now()
	rawReply, err := h.bridge.AwaitReply(ctx, req.PlayerUUID, sess, contextMessage)
	if err != nil {
		if errors.Is(err, bridge.ErrReplyTimeout) {
			h.metrics.RecordReplyTimeout()
		}
		return nil, err
	}
	h.metrics.RecordReplyWait(time.Since(waitStart))
	log.WithField("rawReply", rawReply).Debug("Raw agent reply")

	action := validator.ParseAndValidate(rawReply)

	switch a := action.(type) {
	case models.ChatAction:
		// Game chat renders no markup.
		return models.ChatAction{Text: markdown.ToPlainText(a.Text)}, nil
	case models.PixelArtAction:
		return h.compilePixelArt(r, log, req, a)
	default:
		return action, nil
	}
}

// compilePixelArt resolves a pixelart action into a worldedit action so the
// mod only ever sees standard placement commands.
func (h *ChatHandler) compilePixelArt(r *http.Request, log *logrus.Entry, req *models.ChatRequest, art models.PixelArtAction) (models.Action, error) {
	originX, originY, originZ := 0, defaultOriginY, 0
	if req.PlayerX != nil {
		originX = *req.PlayerX
	}
	if req.PlayerY != nil {
		originY = *req.PlayerY
	}
	if req.PlayerZ != nil {
		originZ = *req.PlayerZ
	}

	targetSize := 0
	if art.Size != nil {
		targetSize = *art.Size
	}

	log.WithField("url", art.URL).Info("Compiling pixel art")
	start := time.Now()
	result, err := h.compiler.Compile(r.Context(), art.URL, originX, originY, originZ+pixelArtZOffset,
		h.config.PixelArt.MaxCommands, targetSize)
	if err != nil {
		return nil, err
	}
	h.metrics.RecordPixelArt(time.Since(start), len(result.Commands))
	log.WithFields(logrus.Fields{
		"commands":   len(result.Commands),
		"durationMs": time.Since(start).Milliseconds(),
	}).Info("Pixel art compiled")

	return models.WorldEditAction{Description: result.Description, Commands: result.Commands}, nil
}

// recordHistory is best effort; failures are logged and never surface.
func (h *ChatHandler) recordHistory(r *http.Request, req *models.ChatRequest, action models.Action) {
	commandCount := 0
	if we, ok := action.(models.WorldEditAction); ok {
		commandCount = len(we.Commands)
	}
	summary := action.ActionType()
	if we, ok := action.(models.WorldEditAction); ok {
		summary = we.Description
	}

	err := h.recorder.Record(r.Context(), history.Entry{
		PlayerUUID:      req.PlayerUUID,
		PlayerName:      req.PlayerName,
		ActionType:      action.ActionType(),
		Request:         req.Message,
		ResponseSummary: summary,
		CommandCount:    commandCount,
		At:              time.Now(),
	})
	if err != nil {
		h.logger.WithError(err).Warn("Failed to record interaction history")
	}
}

// HandleReset drops one player's session.
func (h *ChatHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	playerUUID := mux.Vars(r)["playerUUID"]
	cleared := h.sessions.Reset(playerUUID)
	h.logger.WithFields(logrus.Fields{
		"playerUUID": playerUUID,
		"cleared":    cleared,
	}).Info("Session reset")
	h.metrics.RecordRequest("/reset", "success")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "cleared": cleared})
}

// HandleResetAll drops every session.
func (h *ChatHandler) HandleResetAll(w http.ResponseWriter, r *http.Request) {
	count := h.sessions.ResetAll()
	h.logger.WithField("cleared", count).Info("All sessions reset")
	h.metrics.RecordRequest("/reset-all", "success")
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "cleared": count})
}

// HandleHealth reports liveness plus both caches' cleanup stats.
func (h *ChatHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	sessionStats := h.sessions.Stats()
	limitStats := h.cooldown.Stats()

	h.metrics.SetActiveSessions(sessionStats.ActiveSessions)
	h.metrics.SetTrackedPlayers(limitStats.TrackedPlayers)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"cleanup": map[string]interface{}{
			"sessions":   sessionStats,
			"rateLimits": limitStats,
		},
	})
}
