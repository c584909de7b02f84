package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// SessionStore is an in-memory implementation of app.SessionStore. It also
// serves as an app.QuestionSource, reading answer keys straight off the
// stored sessions.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{sessions: make(map[string]*domain.Session)}
}

func (s *SessionStore) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.joinCodeTaken(session) {
		return domain.Validationf("join code is already in use")
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return cloneSession(session), nil
}

// GetByJoinCode ignores completed sessions, so a stale code resolves exactly
// like one that never existed.
func (s *SessionStore) GetByJoinCode(_ context.Context, code string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, session := range s.sessions {
		if session.JoinCode != "" && session.JoinCode == code && session.State != domain.StateCompleted {
			return cloneSession(session), nil
		}
	}
	return nil, domain.ErrSessionNotFound
}

func (s *SessionStore) Update(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[session.ID]; !ok {
		return domain.ErrSessionNotFound
	}
	if s.joinCodeTaken(session) {
		return domain.Validationf("join code is already in use")
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *SessionStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, id)
	return nil
}

// Questions implements app.QuestionSource.
func (s *SessionStore) Questions(_ context.Context, sessionID string) ([]domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	questions := make([]domain.Question, len(session.Questions))
	copy(questions, session.Questions)
	return questions, nil
}

// joinCodeTaken reports whether another non-completed session already holds
// the candidate's join code, mirroring the partial unique index the Postgres
// store relies on. Caller must hold s.mu.
func (s *SessionStore) joinCodeTaken(candidate *domain.Session) bool {
	if candidate.JoinCode == "" || candidate.State == domain.StateCompleted {
		return false
	}
	for id, existing := range s.sessions {
		if id == candidate.ID {
			continue
		}
		if existing.JoinCode == candidate.JoinCode && existing.State != domain.StateCompleted {
			return true
		}
	}
	return false
}

// cloneSession keeps callers from mutating stored state through aliased
// pointers or slices.
func cloneSession(in *domain.Session) *domain.Session {
	out := *in
	out.Questions = make([]domain.Question, len(in.Questions))
	copy(out.Questions, in.Questions)
	if in.StartTime != nil {
		t := *in.StartTime
		out.StartTime = &t
	}
	if in.EndTime != nil {
		t := *in.EndTime
		out.EndTime = &t
	}
	return &out
}
