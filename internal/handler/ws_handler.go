package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/gradia-app/gradia-backend/internal/middleware"
	"github.com/gradia-app/gradia-backend/internal/model"
	"github.com/gradia-app/gradia-backend/internal/service"
	ws "github.com/gradia-app/gradia-backend/internal/websocket"
	"github.com/rs/zerolog"
)

// timeTickInterval is how often the server pushes the authoritative
// remaining time down the stream.
const timeTickInterval = 15 * time.Second

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

// WSHandler streams a live test session: autosave over the socket and
// periodic remaining-time pushes so clients never drift from the server
// clock.
type WSHandler struct {
	sessionService    *service.SessionService
	submissionService *service.SubmissionService
	log               zerolog.Logger
	upgrader          websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessionService *service.SessionService, submissionService *service.SubmissionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessionService:    sessionService,
		submissionService: submissionService,
		log:               log.With().Str("component", "ws_handler").Logger(),
		upgrader:          buildUpgrader(allowedOrigins),
	}
}

// safeConn serializes writes; the time ticker and the read loop share
// the connection.
type safeConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *safeConn) WriteTyped(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteTyped(s.conn, v)
}

func (s *safeConn) WriteError(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ws.WriteError(s.conn, msg)
}

// SessionStream godoc
// WS /ws/v1/learner/sessions/:session_id/stream
// Upgrades to WebSocket for real-time autosave and remaining-time sync.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	sessionID, err := uuid.Parse(c.Param("session_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	sc := &safeConn{conn: conn}

	session, err := h.sessionService.Owned(c.Request.Context(), sessionID, claims.UserID)
	if err != nil {
		sc.WriteError("no session for this learner")
		return
	}
	if session.Terminal() {
		sc.WriteError("session already submitted")
		return
	}

	wsLog := h.log.With().
		Int("learner_id", claims.UserID).
		Str("session_id", sessionID.String()).
		Logger()
	wsLog.Info().Msg("Learner connected")

	// Push the authoritative clock until the socket closes.
	done := make(chan struct{})
	defer close(done)
	go h.timeLoop(sc, wsLog, sessionID, done)

	for {
		var msg ws.RequestPayload
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}

		switch msg.Action {
		case ws.ActionAutosave:
			h.handleAutosave(sc, wsLog, sessionID, &msg)
		case ws.ActionSubmit:
			if h.handleSubmit(sc, wsLog, sessionID) {
				return
			}
		case ws.ActionPing:
			sc.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		default:
			wsLog.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
			sc.WriteError("unknown action: " + string(msg.Action))
		}
	}
}

// timeLoop pushes the remaining time every tick until done is closed.
func (h *WSHandler) timeLoop(sc *safeConn, wsLog zerolog.Logger, sessionID uuid.UUID, done <-chan struct{}) {
	ticker := time.NewTicker(timeTickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			remaining, err := h.sessionService.Remaining(context.Background(), sessionID)
			if err != nil {
				wsLog.Debug().Err(err).Msg("Remaining time lookup failed")
				continue
			}
			sc.WriteTyped(ws.TimeResponse{
				Event:            ws.EventTime,
				RemainingSeconds: remaining.Seconds(),
			})
		}
	}
}

// handleAutosave overwrites the draft answer set from the socket payload.
func (h *WSHandler) handleAutosave(sc *safeConn, wsLog zerolog.Logger, sessionID uuid.UUID, msg *ws.RequestPayload) {
	ctx := context.Background()

	answers := make([]model.Answer, 0, len(msg.Answers))
	for _, a := range msg.Answers {
		qt := model.QuestionType(a.QuestionType)
		if a.QuestionID == "" || !qt.Valid() {
			sc.WriteError("answers need a question_id and a valid question_type")
			return
		}
		answers = append(answers, model.Answer{
			QuestionID:   a.QuestionID,
			QuestionType: qt,
			AnswerText:   a.AnswerText,
			CodeAnswer:   a.CodeAnswer,
			FileURL:      a.FileURL,
			ImageData:    a.ImageData,
		})
	}

	if err := h.sessionService.PatchProgress(ctx, sessionID, answers, msg.CurrentQuestionIndex); err != nil {
		if errors.Is(err, model.ErrSessionSubmitted) {
			sc.WriteError("session already submitted")
			return
		}
		wsLog.Error().Err(err).Msg("Autosave failed")
		sc.WriteError("save failed")
		return
	}

	sc.WriteTyped(ws.SavedResponse{Event: ws.EventSaved, Status: "saved"})
}

// handleSubmit finalizes the session from its last saved answers.
// Returns true when the stream should close.
func (h *WSHandler) handleSubmit(sc *safeConn, wsLog zerolog.Logger, sessionID uuid.UUID) bool {
	submission, err := h.submissionService.Finalize(context.Background(), sessionID)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidSubmission):
			sc.WriteError("submission references unknown questions")
		case errors.Is(err, model.ErrNotFound):
			sc.WriteError("session not found")
		default:
			wsLog.Error().Err(err).Msg("Submit failed")
			sc.WriteError("submit failed")
		}
		return false
	}

	wsLog.Info().Str("submission_id", submission.ID.String()).Msg("Session submitted over stream")

	sc.WriteTyped(ws.SubmittedResponse{
		Event:        ws.EventSubmitted,
		Status:       "submitted",
		SubmissionID: submission.ID.String(),
	})
	return true
}
