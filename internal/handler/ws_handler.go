package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
	ws "github.com/stemsi/exstem-cbt/internal/websocket"
)

const expireTimeout = 10 * time.Second

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
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

// WSHandler streams one exam attempt to its owner.
type WSHandler struct {
	sessionService    *service.SessionService
	submissionService *service.SubmissionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

func NewWSHandler(sessionService *service.SessionService, submissionService *service.SubmissionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService:    sessionService,
		submissionService: submissionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// attemptStream serializes writes from the read loop and the deadline timer.
type attemptStream struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *attemptStream) send(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

func (s *attemptStream) fail(code response.ErrCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteError(s.conn, string(code), response.GetMessage(code))
}

// SessionStream godoc
// WS /ws/v1/sessions/:session_id/stream
// Accepts answer, complete and ping actions. A timer armed at the session
// deadline force-completes the attempt and pushes an expired event.
func (h *WSHandler) SessionStream(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	detail, err := h.sessionService.Get(c.Request.Context(), caller, sessionID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	session := detail.Session
	if session.OwnerID != caller.UserID {
		response.Fail(c, http.StatusForbidden, response.ErrNotSessionOwner)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	stream := &attemptStream{conn: conn}
	wsLog := h.log.With().
		Int("owner_id", caller.UserID).
		Str("session_id", sessionID.String()).
		Logger()

	if session.Status == model.SessionStatusCompleted {
		stream.send(ws.CompletedResponse{Event: ws.EventCompleted, Status: session.Status, EndedAt: session.EndedAt})
		return
	}

	deadline := h.sessionService.Deadline()
	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	go h.watchDeadline(watchCtx, stream, wsLog, caller, sessionID, deadline.Deadline(session), deadline.Remaining(session))

	wsLog.Info().Msg("Attempt stream connected")

	ctx := c.Request.Context()
	for {
		var raw json.RawMessage
		if err := ws.ReadJSON(conn, &raw); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		var env ws.RequestEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			stream.fail(response.ErrInvalidPayload)
			continue
		}

		switch env.Action {
		case ws.ActionAnswer:
			h.handleAnswer(ctx, stream, caller, sessionID, raw)
		case ws.ActionComplete:
			if h.handleComplete(ctx, stream, caller, sessionID) {
				stopWatch()
			}
		case ws.ActionPing:
			h.handlePing(ctx, stream, caller, sessionID)
		default:
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			stream.fail(response.ErrInvalidPayload)
		}
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, stream *attemptStream, caller service.Identity, sessionID uuid.UUID, raw json.RawMessage) {
	var msg ws.AnswerRequest
	if err := json.Unmarshal(raw, &msg); err != nil {
		stream.fail(response.ErrInvalidPayload)
		return
	}
	req := model.SubmitAnswerRequest{QuestionID: msg.QuestionID, SelectedOption: msg.SelectedOption}
	if fields := validator.Struct(&req); fields != nil {
		stream.fail(response.ErrValidation)
		return
	}

	resp, err := h.submissionService.Submit(ctx, caller, sessionID, req)
	if err != nil {
		h.logUnexpected(err, sessionID)
		stream.fail(errorCode(err))
		return
	}
	stream.send(ws.AnsweredResponse{Event: ws.EventAnswered, QuestionID: resp.QuestionID, IsCorrect: resp.IsCorrect})
}

// handleComplete reports whether the session is now COMPLETED.
func (h *WSHandler) handleComplete(ctx context.Context, stream *attemptStream, caller service.Identity, sessionID uuid.UUID) bool {
	resp, err := h.sessionService.Complete(ctx, caller, sessionID)
	if err != nil {
		h.logUnexpected(err, sessionID)
		stream.fail(errorCode(err))
		return false
	}
	endedAt := resp.EndedAt
	stream.send(ws.CompletedResponse{Event: ws.EventCompleted, Status: resp.Status, EndedAt: &endedAt})
	return true
}

func (h *WSHandler) handlePing(ctx context.Context, stream *attemptStream, caller service.Identity, sessionID uuid.UUID) {
	state, err := h.sessionService.State(ctx, caller, sessionID)
	if err != nil {
		h.logUnexpected(err, sessionID)
		stream.fail(errorCode(err))
		return
	}
	stream.send(ws.PongResponse{Event: ws.EventPong, RemainingSeconds: int(state.RemainingSeconds)})
}

// watchDeadline holds the connection's single deadline timer until ctx is
// cancelled or the expiry has been pushed.
func (h *WSHandler) watchDeadline(ctx context.Context, stream *attemptStream, log zerolog.Logger, caller service.Identity, sessionID uuid.UUID, deadlineAt time.Time, wait time.Duration) {
	timer := time.NewTimer(max(wait, 0))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !h.expire(stream, log, caller, sessionID, deadlineAt) {
				return
			}
			timer.Reset(time.Second)
		}
	}
}

// expire runs when the deadline timer fires. It returns true when the
// session is unexpectedly still open and the timer should fire again.
func (h *WSHandler) expire(stream *attemptStream, log zerolog.Logger, caller service.Identity, sessionID uuid.UUID, deadlineAt time.Time) bool {
	ctx, cancel := context.WithTimeout(context.Background(), expireTimeout)
	defer cancel()

	expired, err := h.sessionService.Expire(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Msg("Deadline timer failed to expire session")
		return false
	}
	if !expired {
		// Closed elsewhere, either at the deadline or earlier by the owner.
		detail, err := h.sessionService.Get(ctx, caller, sessionID)
		if err != nil {
			log.Error().Err(err).Msg("Deadline timer failed to read session")
			return false
		}
		s := detail.Session
		if s.Status != model.SessionStatusCompleted {
			return true
		}
		if s.EndedAt != nil && !s.EndedAt.Equal(deadlineAt) {
			stream.send(ws.CompletedResponse{Event: ws.EventCompleted, Status: s.Status, EndedAt: s.EndedAt})
			return false
		}
	}

	log.Info().Msg("Deadline reached, pushing expiry")
	stream.send(ws.CompletedResponse{Event: ws.EventExpired, Status: model.SessionStatusCompleted, EndedAt: &deadlineAt})
	return false
}

func (h *WSHandler) logUnexpected(err error, sessionID uuid.UUID) {
	if errorCode(err) == response.ErrInternal {
		h.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Attempt stream action failed")
	}
}
