package app

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"quiz-session-service/internal/domain"
)

// SubmissionStore persists submissions. Insert must enforce the
// (session, participant) uniqueness invariant itself; an application-level
// check-then-insert would race under concurrent duplicate submissions from
// retried clients.
type SubmissionStore interface {
	// Insert commits a submission atomically, returning
	// domain.ErrDuplicateSubmission when the (session, participant) pair
	// already has one.
	Insert(ctx context.Context, submission *domain.Submission) error
	// Get returns domain.ErrSubmissionNotFound when the participant has not
	// submitted.
	Get(ctx context.Context, sessionID, participantID string) (*domain.Submission, error)
	ListBySession(ctx context.Context, sessionID string) ([]domain.Submission, error)
	DeleteBySession(ctx context.Context, sessionID string) error
}

// QuestionSource yields the authoritative answer key for a session. Cached
// implementations may omit prompts and option texts; scoring only needs ids,
// correct indexes and points.
type QuestionSource interface {
	Questions(ctx context.Context, sessionID string) ([]domain.Question, error)
}

// ParticipantRef identifies a submitter: an authenticated user id, or for
// anonymous flows a transient session-scoped token with a display name.
type ParticipantRef struct {
	ID   string
	Name string
}

// SubmissionService accepts answer sets, scores them against the answer key
// and commits each exactly once per (session, participant).
type SubmissionService struct {
	sessions       SessionStore
	questions      QuestionSource
	submissions    SubmissionStore
	leaderboard    *LeaderboardService
	broadcaster    Broadcaster
	publishTimeout time.Duration
	now            func() time.Time
}

func NewSubmissionService(sessions SessionStore, questions QuestionSource, submissions SubmissionStore, leaderboard *LeaderboardService, broadcaster Broadcaster) *SubmissionService {
	return NewSubmissionServiceWithClock(sessions, questions, submissions, leaderboard, broadcaster, time.Now)
}

// NewSubmissionServiceWithClock allows deterministic timestamps in tests.
func NewSubmissionServiceWithClock(sessions SessionStore, questions QuestionSource, submissions SubmissionStore, leaderboard *LeaderboardService, broadcaster Broadcaster, now func() time.Time) *SubmissionService {
	return &SubmissionService{
		sessions:       sessions,
		questions:      questions,
		submissions:    submissions,
		leaderboard:    leaderboard,
		broadcaster:    broadcaster,
		publishTimeout: DefaultPublishTimeout,
		now:            now,
	}
}

// SetPublishTimeout overrides the bound on best-effort broadcast publishes.
func (s *SubmissionService) SetPublishTimeout(d time.Duration) {
	if d > 0 {
		s.publishTimeout = d
	}
}

// Submit runs the admission checks in order (session exists, session is
// accepting, no prior submission), scores the answers and commits the
// submission. Deadline-mode submissions after the end time are accepted but
// flagged late rather than rejected. A committed submission triggers a
// leaderboard recompute and broadcast; recompute failure leaves the snapshot
// stale until the next trigger and never rolls the submission back.
func (s *SubmissionService) Submit(ctx context.Context, sessionID string, participant ParticipantRef, answers []domain.Answer) (*domain.Submission, error) {
	if participant.ID == "" {
		return nil, domain.Validationf("participant reference is required")
	}
	if err := validateAnswers(answers); err != nil {
		return nil, err
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch session.State {
	case domain.StateActive:
	default:
		return nil, domain.ErrSessionClosed
	}

	now := s.now()
	late := session.Mode == domain.ModeDeadline && session.PastDeadline(now)

	questions, err := s.questions.Questions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	records, score := scoreAnswers(questions, answers)

	submission := &domain.Submission{
		ID:              uuid.NewString(),
		SessionID:       sessionID,
		ParticipantID:   participant.ID,
		ParticipantName: participant.Name,
		Answers:         records,
		Score:           score,
		SubmittedAt:     now,
		Late:            late,
	}
	if err := s.submissions.Insert(ctx, submission); err != nil {
		return nil, err
	}

	board, err := s.leaderboard.Recompute(ctx, sessionID)
	if err != nil {
		log.Printf("[submission] leaderboard recompute for session %s failed, snapshot stays stale: %v", sessionID, err)
		return submission, nil
	}
	publishEvent(s.broadcaster, s.publishTimeout, domain.EventLeaderboardUpdated, sessionID, domain.LeaderboardUpdatedPayload{Rankings: board.Rankings})
	return submission, nil
}

// Result returns a participant's scored answer breakdown.
func (s *SubmissionService) Result(ctx context.Context, sessionID, participantID string) (*domain.Submission, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	return s.submissions.Get(ctx, sessionID, participantID)
}

// validateAnswers rejects malformed answer sets at the boundary. Each
// question may be answered at most once; without this check a repeated
// correct answer would score one point per repetition.
func validateAnswers(answers []domain.Answer) error {
	if len(answers) == 0 {
		return domain.Validationf("at least one answer is required")
	}
	seen := make(map[string]struct{}, len(answers))
	for _, a := range answers {
		if a.QuestionID == "" {
			return domain.Validationf("every answer must reference a question")
		}
		if _, ok := seen[a.QuestionID]; ok {
			return domain.Validationf("question %s is answered more than once", a.QuestionID)
		}
		seen[a.QuestionID] = struct{}{}
	}
	return nil
}

// scoreAnswers compares each selection against the answer key. An unknown
// question reference scores as incorrect instead of failing the submission.
// The aggregate score counts correct answers; point-weighted totals remain a
// documented extension.
func scoreAnswers(questions []domain.Question, answers []domain.Answer) ([]domain.AnswerRecord, int) {
	byID := make(map[string]domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	records := make([]domain.AnswerRecord, len(answers))
	score := 0
	for i, a := range answers {
		q, ok := byID[a.QuestionID]
		correct := ok && a.SelectedOption == q.CorrectIndex
		if correct {
			score++
		}
		records[i] = domain.AnswerRecord{
			QuestionID:     a.QuestionID,
			SelectedOption: a.SelectedOption,
			Correct:        correct,
		}
	}
	return records, score
}
