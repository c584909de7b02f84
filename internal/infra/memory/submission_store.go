package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// SubmissionStore is an in-memory implementation of app.SubmissionStore.
// A single mutex around the keyed map gives the same serialization guarantee
// the Postgres unique index provides: of N concurrent duplicates exactly one
// commits.
type SubmissionStore struct {
	mu          sync.RWMutex
	submissions map[submissionKey]*domain.Submission
}

type submissionKey struct {
	sessionID     string
	participantID string
}

func NewSubmissionStore() *SubmissionStore {
	return &SubmissionStore{submissions: make(map[submissionKey]*domain.Submission)}
}

func (s *SubmissionStore) Insert(_ context.Context, submission *domain.Submission) error {
	key := submissionKey{sessionID: submission.SessionID, participantID: submission.ParticipantID}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.submissions[key]; ok {
		return domain.ErrDuplicateSubmission
	}
	s.submissions[key] = cloneSubmission(submission)
	return nil
}

func (s *SubmissionStore) Get(_ context.Context, sessionID, participantID string) (*domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	submission, ok := s.submissions[submissionKey{sessionID: sessionID, participantID: participantID}]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	return cloneSubmission(submission), nil
}

func (s *SubmissionStore) ListBySession(_ context.Context, sessionID string) ([]domain.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Submission
	for key, submission := range s.submissions {
		if key.sessionID == sessionID {
			out = append(out, *cloneSubmission(submission))
		}
	}
	return out, nil
}

func (s *SubmissionStore) DeleteBySession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.submissions {
		if key.sessionID == sessionID {
			delete(s.submissions, key)
		}
	}
	return nil
}

func cloneSubmission(in *domain.Submission) *domain.Submission {
	out := *in
	out.Answers = make([]domain.AnswerRecord, len(in.Answers))
	copy(out.Answers, in.Answers)
	return &out
}
