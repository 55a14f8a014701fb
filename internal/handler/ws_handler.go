package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/proktora/proktora-backend/internal/config"
	"github.com/proktora/proktora-backend/internal/middleware"
	"github.com/proktora/proktora-backend/internal/model"
	"github.com/proktora/proktora-backend/internal/service"
	ws "github.com/proktora/proktora-backend/internal/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler handles the live attempt stream: autosave, violation reports,
// submission, and deadline-resync heartbeats over one connection.
type WSHandler struct {
	rdb              *redis.Client
	attemptService   *service.AttemptService
	integrityService *service.IntegrityService
	log              zerolog.Logger
	upgrader         websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, attemptService *service.AttemptService, integrityService *service.IntegrityService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:              rdb,
		attemptService:   attemptService,
		integrityService: integrityService,
		log:              log.With().Str("component", "ws_handler").Logger(),
		upgrader:         buildUpgrader(allowedOrigins),
	}
}

// AttemptStream godoc
// WS /ws/v1/exam/attempts/:attempt_id/stream
// Upgrades to WebSocket for real-time autosave and violation reporting.
func (h *WSHandler) AttemptStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	attemptID, err := uuid.Parse(c.Param("attempt_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid attempt ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.UserID

	// SECURITY: Validate ownership and liveness before streaming.
	if err := h.attemptService.VerifyLive(c.Request.Context(), userID, attemptID); err != nil {
		ws.WriteError(conn, "no active attempt for this stream")
		return
	}

	wsLog := h.log.With().
		Int("user_id", userID).
		Str("attempt_id", attemptID.String()).
		Logger()

	wsLog.Info().Msg("Taker connected")

	for {
		var msg ws.RequestPayload
		err := ws.ReadJSON(conn, &msg)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(conn, wsLog, userID, attemptID, &msg)
		case ws.ActionViolation:
			h.handleViolation(conn, wsLog, userID, attemptID, &msg)
		case ws.ActionSubmit:
			h.handleSubmit(conn, wsLog, userID, attemptID)
		case ws.ActionPing:
			h.handlePing(conn, attemptID)
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			ws.WriteError(conn, "unknown action: "+string(msg.Action))
		}
	}
}

// handleAutosave stages a single answer in Redis and queues it for durable
// persistence. Liveness is re-checked per message: a stream opened before
// expiry or termination must stop accepting writes after it, and the store
// itself repels writes against terminal attempts.
func (h *WSHandler) handleAutosave(conn *websocket.Conn, wsLog zerolog.Logger, userID int, attemptID uuid.UUID, msg *ws.RequestPayload) {
	ctx := context.Background()

	if msg.QuestionID == "" {
		ws.WriteError(conn, "question_id is required")
		return
	}
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		ws.WriteError(conn, "invalid question_id format")
		return
	}

	deadline, err := h.attemptService.Deadline(ctx, attemptID)
	if err != nil {
		if errors.Is(err, service.ErrAttemptLocked) {
			ws.WriteError(conn, "attempt is no longer accepting answers")
			return
		}
		wsLog.Error().Err(err).Msg("Deadline lookup failed")
		ws.WriteError(conn, "save failed")
		return
	}
	if time.Now().After(deadline) {
		ws.WriteError(conn, "attempt deadline has passed")
		return
	}

	answeredAt := time.Now()
	if msg.AnsweredAt != nil {
		answeredAt = *msg.AnsweredAt
	}

	staged, _ := json.Marshal(model.SaveAnswerRequest{
		SelectedOption: msg.SelectedOption,
		EssayText:      msg.EssayText,
		Flagged:        msg.Flagged,
		AnsweredAt:     &answeredAt,
	})
	if err := h.rdb.HSet(ctx, config.CacheKey.AttemptAnswersKey(attemptID.String()), questionID.String(), staged).Err(); err != nil {
		wsLog.Error().Err(err).Msg("Autosave Redis error")
		ws.WriteError(conn, "save failed")
		return
	}

	job, _ := json.Marshal(map[string]interface{}{
		"attempt_id":      attemptID.String(),
		"question_id":     questionID.String(),
		"selected_option": msg.SelectedOption,
		"essay_text":      msg.EssayText,
		"flagged":         msg.Flagged,
		"answered_at":     answeredAt,
	})
	h.rdb.RPush(ctx, config.WorkerKey.PersistAnswersQueue, job)

	ws.WriteTyped(conn, ws.SavedResponse{Event: ws.EventSaved, Status: "saved"})
}

// handleViolation records a violation synchronously and echoes the updated
// tally. Termination rides back on the same response.
func (h *WSHandler) handleViolation(conn *websocket.Conn, wsLog zerolog.Logger, userID int, attemptID uuid.UUID, msg *ws.RequestPayload) {
	outcome, err := h.integrityService.ReportViolation(context.Background(), userID, attemptID, model.ReportViolationRequest{
		Kind:       model.ViolationKind(msg.Kind),
		Message:    msg.Message,
		OccurredAt: msg.OccurredAt,
	})
	if err != nil {
		wsLog.Warn().Err(err).Str("kind", msg.Kind).Msg("Violation report rejected")
		ws.WriteError(conn, "violation report rejected")
		return
	}

	ws.WriteTyped(conn, ws.ViolationResponse{
		Event:      ws.EventViolation,
		Count:      outcome.Count,
		Ceiling:    outcome.Ceiling,
		Remaining:  outcome.Remaining,
		Terminated: outcome.Terminated,
	})
}

// handleSubmit finalizes the attempt through the same idempotent path the
// HTTP route uses.
func (h *WSHandler) handleSubmit(conn *websocket.Conn, wsLog zerolog.Logger, userID int, attemptID uuid.UUID) {
	attempt, err := h.attemptService.Submit(context.Background(), userID, attemptID)
	if err != nil {
		wsLog.Error().Err(err).Msg("Submit failed")
		ws.WriteError(conn, "submit failed")
		return
	}

	wsLog.Info().Str("status", string(attempt.Status)).Msg("Attempt submitted over stream")
	ws.WriteTyped(conn, ws.FinalizedResponse{Event: ws.EventFinalized, Status: string(attempt.Status)})
}

// handlePing answers the heartbeat with the authoritative remaining time so
// the client clock resyncs on every beat.
func (h *WSHandler) handlePing(conn *websocket.Conn, attemptID uuid.UUID) {
	deadline, err := h.attemptService.Deadline(context.Background(), attemptID)
	if err != nil {
		ws.WriteError(conn, "deadline unavailable")
		return
	}

	remaining := time.Until(deadline)
	if remaining < 0 {
		remaining = 0
	}
	ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, RemainingSeconds: int64(remaining.Seconds())})
}
