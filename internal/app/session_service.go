package app

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// SessionStore abstracts durable session records (Postgres, in-memory).
type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	// Get returns domain.ErrSessionNotFound for unknown ids.
	Get(ctx context.Context, id string) (*domain.Session, error)
	// GetByJoinCode resolves a normalized code against sessions whose state
	// is not Completed. Unknown and completed codes are indistinguishable:
	// both return domain.ErrSessionNotFound.
	GetByJoinCode(ctx context.Context, code string) (*domain.Session, error)
	Update(ctx context.Context, session *domain.Session) error
	Delete(ctx context.Context, id string) error
}

// joinCodeAttempts bounds collision retries when assigning a code.
const joinCodeAttempts = 8

// SessionService owns session lifecycle: creation, the state machine
// (draft -> active -> completed), join-code resolution and deletion.
type SessionService struct {
	sessions       SessionStore
	submissions    SubmissionStore
	boards         LeaderboardStore
	broadcaster    Broadcaster
	codes          *JoinCodeGenerator
	publishTimeout time.Duration
	now            func() time.Time
}

func NewSessionService(sessions SessionStore, submissions SubmissionStore, boards LeaderboardStore, broadcaster Broadcaster, codes *JoinCodeGenerator) *SessionService {
	return NewSessionServiceWithClock(sessions, submissions, boards, broadcaster, codes, time.Now)
}

// NewSessionServiceWithClock allows deterministic timestamps in tests.
func NewSessionServiceWithClock(sessions SessionStore, submissions SubmissionStore, boards LeaderboardStore, broadcaster Broadcaster, codes *JoinCodeGenerator, now func() time.Time) *SessionService {
	if codes == nil {
		codes = NewJoinCodeGenerator(DefaultJoinCodeLength)
	}
	return &SessionService{
		sessions:       sessions,
		submissions:    submissions,
		boards:         boards,
		broadcaster:    broadcaster,
		codes:          codes,
		publishTimeout: DefaultPublishTimeout,
		now:            now,
	}
}

// SetPublishTimeout overrides the bound on best-effort broadcast publishes.
func (s *SessionService) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}

// CreateSessionInput carries everything a host supplies up front.
// Exactly one of HostID and HostName must be set; HostName marks an
// anonymous quick session.
type CreateSessionInput struct {
	Title        string
	Mode         domain.SessionMode
	Questions    []domain.Question
	TimeLimitSec int
	HostID       string
	HostName     string
	EndTime      *time.Time
}

// Create validates the input and persists a Draft session. Anonymous quick
// sessions get their join code immediately; live sessions with an
// authenticated host receive one on start.
func (s *SessionService) Create(ctx context.Context, in CreateSessionInput) (*domain.Session, error) {
	if in.Title == "" {
		return nil, domain.Validationf("title is required")
	}
	if in.Mode != domain.ModeLive && in.Mode != domain.ModeDeadline {
		return nil, domain.Validationf("mode must be %q or %q", domain.ModeLive, domain.ModeDeadline)
	}
	if (in.HostID == "") == (in.HostName == "") {
		return nil, domain.Validationf("exactly one of host id and host name must be set")
	}
	if in.HostName != "" && in.Mode != domain.ModeLive {
		return nil, domain.Validationf("anonymous quick sessions must use live mode")
	}
	if in.TimeLimitSec < 0 {
		return nil, domain.Validationf("per-question time limit must not be negative")
	}
	if in.TimeLimitSec > 0 && in.Mode != domain.ModeLive {
		return nil, domain.Validationf("per-question time limit applies to live mode only")
	}
	now := s.now()
	if in.Mode == domain.ModeDeadline {
		if in.EndTime == nil {
			return nil, domain.Validationf("deadline mode requires an end time")
		}
		if !in.EndTime.After(now) {
			return nil, domain.Validationf("end time must be in the future")
		}
	}
	questions, err := validateQuestions(in.Questions)
	if err != nil {
		return nil, err
	}

	session := &domain.Session{
		ID:           uuid.NewString(),
		Title:        in.Title,
		Mode:         in.Mode,
		State:        domain.StateDraft,
		HostID:       in.HostID,
		HostName:     in.HostName,
		Questions:    questions,
		TimeLimitSec: in.TimeLimitSec,
		EndTime:      in.EndTime,
		CreatedAt:    now,
	}
	if session.IsAnonymous() {
		code, err := s.nextFreeJoinCode(ctx)
		if err != nil {
			return nil, err
		}
		session.JoinCode = code
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Get returns a session by id.
func (s *SessionService) Get(ctx context.Context, id string) (*domain.Session, error) {
	return s.sessions.Get(ctx, id)
}

// Start moves a Draft session to Active. Live sessions get a join code if
// they lack one, the start time is stamped, and quiz-started is broadcast
// best-effort.
func (s *SessionService) Start(ctx context.Context, id, hostRef string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.OwnedBy(hostRef) {
		return nil, domain.ErrNotSessionHost
	}
	switch session.State {
	case domain.StateDraft:
	case domain.StateActive:
		return nil, domain.Transitionf("session is already active")
	default:
		return nil, domain.Transitionf("completed sessions cannot be restarted")
	}

	now := s.now()
	if session.EndTime != nil && !session.EndTime.After(now) {
		return nil, domain.Validationf("end time must be after the start time")
	}
	if session.Mode == domain.ModeLive && session.JoinCode == "" {
		code, err := s.nextFreeJoinCode(ctx)
		if err != nil {
			return nil, err
		}
		session.JoinCode = code
	}
	session.State = domain.StateActive
	session.StartTime = &now
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	publishEvent(s.broadcaster, s.publishTimeout, domain.EventQuizStarted, session.ID, domain.QuizStartedPayload{StartTime: now})
	return session, nil
}

// Stop moves an Active session to Completed. The terminal state rejects
// further submissions but never invalidates ones already accepted.
func (s *SessionService) Stop(ctx context.Context, id, hostRef string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.OwnedBy(hostRef) {
		return nil, domain.ErrNotSessionHost
	}
	if session.State != domain.StateActive {
		return nil, domain.Transitionf("only active sessions can be completed")
	}
	session.State = domain.StateCompleted
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// ExtendDeadline pushes out the end time of an active deadline-mode session.
func (s *SessionService) ExtendDeadline(ctx context.Context, id string, newEndTime time.Time, hostRef string) (*domain.Session, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.OwnedBy(hostRef) {
		return nil, domain.ErrNotSessionHost
	}
	if session.Mode != domain.ModeDeadline {
		return nil, domain.Validationf("only deadline-mode sessions can be extended")
	}
	if session.State != domain.StateActive {
		return nil, domain.Transitionf("only active sessions can be extended")
	}
	if session.StartTime != nil && !newEndTime.After(*session.StartTime) {
		return nil, domain.Validationf("new end time must be after the start time")
	}
	session.EndTime = &newEndTime
	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Resolve maps a join code to its session. Codes are case-insensitive.
// For quick-quiz participants a non-empty displayName additionally emits a
// participant-joined broadcast, fire-and-forget.
func (s *SessionService) Resolve(ctx context.Context, code, displayName string) (*domain.Session, error) {
	normalized := NormalizeJoinCode(code)
	if normalized == "" {
		return nil, domain.ErrSessionNotFound
	}
	session, err := s.sessions.GetByJoinCode(ctx, normalized)
	if err != nil {
		return nil, err
	}
	s.AnnounceJoin(session.ID, displayName)
	return session, nil
}

// AnnounceJoin broadcasts a participant-joined event, fire-and-forget. Used
// by transports where joining is implied by connecting rather than by
// resolving a code.
func (s *SessionService) AnnounceJoin(sessionID, displayName string) {
	if displayName == "" {
		return
	}
	publishEvent(s.broadcaster, s.publishTimeout, domain.EventParticipantJoined, sessionID, domain.ParticipantJoinedPayload{
		Name:     displayName,
		JoinedAt: s.now(),
	})
}

// Delete removes a session along with its submissions and leaderboard.
func (s *SessionService) Delete(ctx context.Context, id, hostRef string) error {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if !session.OwnedBy(hostRef) {
		return domain.ErrNotSessionHost
	}
	if err := s.submissions.DeleteBySession(ctx, id); err != nil {
		return err
	}
	if err := s.boards.Delete(ctx, id); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, id)
}

// nextFreeJoinCode draws candidates until one resolves to no live session.
// The store's uniqueness constraint remains the final arbiter under races.
func (s *SessionService) nextFreeJoinCode(ctx context.Context) (string, error) {
	for i := 0; i < joinCodeAttempts; i++ {
		code := s.codes.Next()
		_, err := s.sessions.GetByJoinCode(ctx, code)
		if errors.Is(err, domain.ErrSessionNotFound) {
			return code, nil
		}
		if err != nil {
			return "", err
		}
	}
	return "", domain.Validationf("could not allocate a unique join code")
}

func validateQuestions(questions []domain.Question) ([]domain.Question, error) {
	if len(questions) == 0 {
		return nil, domain.Validationf("at least one question is required")
	}
	out := make([]domain.Question, len(questions))
	for i, q := range questions {
		if q.Prompt == "" {
			return nil, domain.Validationf("question %d is missing a prompt", i+1)
		}
		if len(q.Options) != domain.OptionsPerQuestion {
			return nil, domain.Validationf("question %d must have exactly %d options", i+1, domain.OptionsPerQuestion)
		}
		if q.CorrectIndex < 0 || q.CorrectIndex >= domain.OptionsPerQuestion {
			return nil, domain.Validationf("question %d correct option index must be between 0 and %d", i+1, domain.OptionsPerQuestion-1)
		}
		if q.Points < 0 {
			return nil, domain.Validationf("question %d points must not be negative", i+1)
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Points == 0 {
			q.Points = domain.DefaultQuestionPoints
		}
		out[i] = q
	}
	return out, nil
}
