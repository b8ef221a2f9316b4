package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gradia-app/gradia-backend/internal/middleware"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/gradia-app/gradia-backend/internal/response"
	"github.com/gradia-app/gradia-backend/internal/service"
	"github.com/gradia-app/gradia-backend/internal/validator"
)

// SessionHandler handles the learner-facing session lifecycle endpoints.
type SessionHandler struct {
	sessionService    *service.SessionService
	submissionService *service.SubmissionService
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessionService *service.SessionService, submissionService *service.SubmissionService) *SessionHandler {
	return &SessionHandler{
		sessionService:    sessionService,
		submissionService: submissionService,
	}
}

// StartSession godoc
// POST /api/v1/learner/tests/:test_id/session
// Starts a session for the test, or returns the learner's existing
// non-terminal one. Safe to retry after a disconnect.
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	session, err := h.sessionService.Start(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		case errors.Is(err, model.ErrUnauthorized):
			response.Fail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// GetSessionState godoc
// GET /api/v1/learner/tests/:test_id/session
// Returns the learner's session for the test plus the server-derived
// remaining time. Clients resync their countdown from this.
func (h *SessionHandler) GetSessionState(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, err := uuid.Parse(c.Param("test_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessionService.State(c.Request.Context(), claims.UserID, testID)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		} else {
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, state)
}

// MarkStarted godoc
// POST /api/v1/learner/sessions/:session_id/started
// Acknowledges the instructions screen and anchors the deadline.
// Idempotent: the clock starts once and never resets.
func (h *SessionHandler) MarkStarted(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.sessionService.Owned(c.Request.Context(), sessionID, claims.UserID); err != nil {
		failSessionLookup(c, err)
		return
	}

	session, err := h.sessionService.MarkStarted(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrSessionSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
		case errors.Is(err, model.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"session": session})
}

// SaveProgress godoc
// PATCH /api/v1/learner/sessions/:session_id
// Autosaves the full draft answer set and cursor. Last writer wins.
func (h *SessionHandler) SaveProgress(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	var req model.SaveProgressRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if _, err := h.sessionService.Owned(c.Request.Context(), sessionID, claims.UserID); err != nil {
		failSessionLookup(c, err)
		return
	}

	if err := h.sessionService.PatchProgress(c.Request.Context(), sessionID, req.Answers, req.CurrentQuestionIndex); err != nil {
		switch {
		case errors.Is(err, model.ErrSessionSubmitted):
			response.Fail(c, http.StatusConflict, response.ErrSessionSubmitted)
		case errors.Is(err, model.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"status": "saved"})
}

// SubmitSession godoc
// POST /api/v1/learner/sessions/:session_id/submit
// Finalizes the session from its last autosaved answers and queues the
// submission for grading. Responds before grading runs.
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	if _, err := h.sessionService.Owned(c.Request.Context(), sessionID, claims.UserID); err != nil {
		failSessionLookup(c, err)
		return
	}

	submission, err := h.submissionService.Finalize(c.Request.Context(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidSubmission):
			response.Fail(c, http.StatusBadRequest, response.ErrInvalidSubmission)
		case errors.Is(err, model.ErrNotFound):
			response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		default:
			response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		}
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": submission})
}

// failSessionLookup maps ownership-check failures onto the envelope.
func failSessionLookup(c *gin.Context, err error) {
	switch {
	case errors.Is(err, model.ErrUnauthorized):
		response.Fail(c, http.StatusForbidden, response.ErrForbidden)
	case errors.Is(err, model.ErrNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	default:
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}
