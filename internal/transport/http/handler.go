package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

// hostRefHeader carries the requesting host's reference. Identity issuance
// happens upstream; here it is an opaque string checked against ownership.
const hostRefHeader = "X-Host-Ref"

// Handler exposes the session engine over REST.
type Handler struct {
	sessions     *app.SessionService
	submissions  *app.SubmissionService
	leaderboards *app.LeaderboardService
}

func NewHandler(sessions *app.SessionService, submissions *app.SubmissionService, leaderboards *app.LeaderboardService) *Handler {
	return &Handler{sessions: sessions, submissions: submissions, leaderboards: leaderboards}
}

// NewRouter wires all routes, including the WebSocket subscription endpoint.
func NewRouter(h *Handler, ws *WSHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Post("/sessions", h.createSession)
	r.Get("/sessions/{id}", h.getSession)
	r.Post("/sessions/{id}/start", h.startSession)
	r.Post("/sessions/{id}/stop", h.stopSession)
	r.Post("/sessions/{id}/extend", h.extendDeadline)
	r.Delete("/sessions/{id}", h.deleteSession)
	r.Post("/sessions/{id}/submissions", h.submitAnswers)
	r.Get("/sessions/{id}/leaderboard", h.getLeaderboard)
	r.Get("/sessions/{id}/result", h.getResult)
	r.Get("/join/{code}", h.resolveJoinCode)
	r.Get("/ws", ws.ServeWS)

	return r
}

type createSessionRequest struct {
	Title        string            `json:"title"`
	Mode         string            `json:"mode"`
	Questions    []domain.Question `json:"questions"`
	TimeLimitSec int               `json:"timeLimitSec"`
	HostName     string            `json:"hostName"`
	EndTime      *time.Time        `json:"endTime"`
}

func (h *Handler) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid request body"))
		return
	}
	session, err := h.sessions.Create(r.Context(), app.CreateSessionInput{
		Title:        req.Title,
		Mode:         domain.SessionMode(req.Mode),
		Questions:    req.Questions,
		TimeLimitSec: req.TimeLimitSec,
		HostID:       r.Header.Get(hostRefHeader),
		HostName:     req.HostName,
		EndTime:      req.EndTime,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

// getSession is the pull path reconnecting clients use to re-fetch current
// state; the answer key is stripped from the response.
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantView(session))
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Start(r.Context(), chi.URLParam(r, "id"), r.Header.Get(hostRefHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) stopSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Stop(r.Context(), chi.URLParam(r, "id"), r.Header.Get(hostRefHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

type extendDeadlineRequest struct {
	NewEndTime time.Time `json:"newEndTime"`
}

func (h *Handler) extendDeadline(w http.ResponseWriter, r *http.Request) {
	var req extendDeadlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.NewEndTime.IsZero() {
		writeError(w, domain.Validationf("newEndTime is required"))
		return
	}
	session, err := h.sessions.ExtendDeadline(r.Context(), chi.URLParam(r, "id"), req.NewEndTime, r.Header.Get(hostRefHeader))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Delete(r.Context(), chi.URLParam(r, "id"), r.Header.Get(hostRefHeader)); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type submitAnswersRequest struct {
	ParticipantID   string          `json:"participantId"`
	ParticipantName string          `json:"participantName"`
	Answers         []domain.Answer `json:"answers"`
}

func (h *Handler) submitAnswers(w http.ResponseWriter, r *http.Request) {
	var req submitAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.Validationf("invalid request body"))
		return
	}
	submission, err := h.submissions.Submit(r.Context(), chi.URLParam(r, "id"), app.ParticipantRef{
		ID:   req.ParticipantID,
		Name: req.ParticipantName,
	}, req.Answers)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submission)
}

func (h *Handler) getLeaderboard(w http.ResponseWriter, r *http.Request) {
	board, err := h.leaderboards.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) getResult(w http.ResponseWriter, r *http.Request) {
	participantID := r.URL.Query().Get("participantId")
	if participantID == "" {
		writeError(w, domain.Validationf("participantId query parameter is required"))
		return
	}
	submission, err := h.submissions.Result(r.Context(), chi.URLParam(r, "id"), participantID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, submission)
}

// resolveJoinCode maps a code to its session. A name query parameter marks a
// quick-quiz participant joining, which emits a participant-joined event.
func (h *Handler) resolveJoinCode(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Resolve(r.Context(), chi.URLParam(r, "code"), r.URL.Query().Get("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participantView(session))
}

// questionView is a question without its answer key.
type questionView struct {
	ID      string   `json:"id"`
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
	Points  int      `json:"points"`
}

// sessionView is the participant-facing shape of a session.
type sessionView struct {
	ID           string              `json:"id"`
	Title        string              `json:"title"`
	Mode         domain.SessionMode  `json:"mode"`
	State        domain.SessionState `json:"state"`
	JoinCode     string              `json:"joinCode,omitempty"`
	HostName     string              `json:"hostName,omitempty"`
	Questions    []questionView      `json:"questions"`
	TimeLimitSec int                 `json:"timeLimitSec,omitempty"`
	StartTime    *time.Time          `json:"startTime,omitempty"`
	EndTime      *time.Time          `json:"endTime,omitempty"`
}

func participantView(session *domain.Session) sessionView {
	questions := make([]questionView, len(session.Questions))
	for i, q := range session.Questions {
		questions[i] = questionView{ID: q.ID, Prompt: q.Prompt, Options: q.Options, Points: q.Points}
	}
	return sessionView{
		ID:           session.ID,
		Title:        session.Title,
		Mode:         session.Mode,
		State:        session.State,
		JoinCode:     session.JoinCode,
		HostName:     session.HostName,
		Questions:    questions,
		TimeLimitSec: session.TimeLimitSec,
		StartTime:    session.StartTime,
		EndTime:      session.EndTime,
	}
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, err error) {
	var domErr *domain.Error
	if !errors.As(err, &domErr) {
		log.Printf("[http] internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: errorBody{Kind: "internal", Message: "internal error"}})
		return
	}
	status := http.StatusInternalServerError
	switch domErr.Kind {
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindForbidden:
		status = http.StatusForbidden
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindDuplicateSubmission, domain.KindInvalidTransition:
		status = http.StatusConflict
	}
	writeJSON(w, status, errorResponse{Error: errorBody{Kind: string(domErr.Kind), Message: domErr.Message}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[http] write response: %v", err)
	}
}
