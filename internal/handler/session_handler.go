package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-cbt/internal/middleware"
	"github.com/stemsi/exstem-cbt/internal/model"
	"github.com/stemsi/exstem-cbt/internal/response"
	"github.com/stemsi/exstem-cbt/internal/service"
	"github.com/stemsi/exstem-cbt/internal/validator"
)

// SessionHandler serves the exam attempt lifecycle.
type SessionHandler struct {
	sessionService    *service.SessionService
	submissionService *service.SubmissionService
	log               zerolog.Logger
}

func NewSessionHandler(sessionService *service.SessionService, submissionService *service.SubmissionService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		submissionService: submissionService,
		log:               log.With().Str("component", "session_handler").Logger(),
	}
}

// ListMine godoc
// GET /api/v1/sessions
func (h *SessionHandler) ListMine(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	sessions, err := h.sessionService.ListMine(c.Request.Context(), caller)
	if err != nil {
		failFromService(c, h.log, err, response.ErrForbidden)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": sessions})
}

// Start godoc
// POST /api/v1/sessions
func (h *SessionHandler) Start(c *gin.Context) {
	caller, ok := callerIdentity(c)
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.sessionService.Start(c.Request.Context(), caller, req)
	if err != nil {
		failFromService(c, h.log, err, response.ErrForbidden)
		return
	}

	h.log.Info().
		Int("owner_id", caller.UserID).
		Str("session_id", resp.SessionID.String()).
		Int("questions", len(resp.Questions)).
		Msg("Session started")
	response.Success(c, http.StatusCreated, resp)
}

// Get godoc
// GET /api/v1/sessions/:session_id
func (h *SessionHandler) Get(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	detail, err := h.sessionService.Get(c.Request.Context(), caller, sessionID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	response.Success(c, http.StatusOK, detail)
}

// Questions godoc
// GET /api/v1/sessions/:session_id/questions
func (h *SessionHandler) Questions(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	questions, err := h.sessionService.Questions(c.Request.Context(), caller, sessionID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"session_id": sessionID, "questions": questions})
}

// State godoc
// GET /api/v1/sessions/:session_id/state
// Remaining time is advisory; writes are still checked against the deadline.
func (h *SessionHandler) State(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), caller, sessionID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Submit godoc
// POST /api/v1/sessions/:session_id/answers
func (h *SessionHandler) Submit(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	resp, err := h.submissionService.Submit(c.Request.Context(), caller, sessionID, req)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// Complete godoc
// POST /api/v1/sessions/:session_id/complete
func (h *SessionHandler) Complete(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	resp, err := h.sessionService.Complete(c.Request.Context(), caller, sessionID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	response.Success(c, http.StatusOK, resp)
}

// Results godoc
// GET /api/v1/sessions/:session_id/results
func (h *SessionHandler) Results(c *gin.Context) {
	caller, sessionID, ok := sessionParams(c)
	if !ok {
		return
	}

	view, err := h.submissionService.ListResults(c.Request.Context(), caller, sessionID)
	if err != nil {
		failFromService(c, h.log, err, response.ErrNotSessionOwner)
		return
	}
	response.Success(c, http.StatusOK, view)
}

// callerIdentity writes 401 and returns false when no verified identity is present.
func callerIdentity(c *gin.Context) (service.Identity, bool) {
	caller, ok := middleware.Identity(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return service.Identity{}, false
	}
	return caller, true
}

func sessionParams(c *gin.Context) (service.Identity, uuid.UUID, bool) {
	caller, ok := callerIdentity(c)
	if !ok {
		return service.Identity{}, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return service.Identity{}, uuid.Nil, false
	}
	return caller, sessionID, true
}
