package app

import (
	"context"
	"errors"
	"sort"
	"time"

	"quiz-session-service/internal/domain"
)

// LeaderboardStore persists the latest ranking snapshot per session.
// Replace supersedes any prior snapshot; last writer wins is safe because
// every snapshot derives deterministically from durable submissions.
type LeaderboardStore interface {
	Replace(ctx context.Context, board *domain.Leaderboard) error
	// Get returns domain.ErrLeaderboardNotFound before the first recompute.
	Get(ctx context.Context, sessionID string) (*domain.Leaderboard, error)
	Delete(ctx context.Context, sessionID string) error
}

// LeaderboardService recomputes rankings from committed submissions. Full
// recompute on every trigger: session sizes are classroom-bounded, so
// O(n log n) per submission beats chasing incremental-merge bugs.
type LeaderboardService struct {
	sessions    SessionStore
	submissions SubmissionStore
	boards      LeaderboardStore
	now         func() time.Time
}

func NewLeaderboardService(sessions SessionStore, submissions SubmissionStore, boards LeaderboardStore) *LeaderboardService {
	return NewLeaderboardServiceWithClock(sessions, submissions, boards, time.Now)
}

// NewLeaderboardServiceWithClock allows deterministic timestamps in tests.
func NewLeaderboardServiceWithClock(sessions SessionStore, submissions SubmissionStore, boards LeaderboardStore, now func() time.Time) *LeaderboardService {
	return &LeaderboardService{
		sessions:    sessions,
		submissions: submissions,
		boards:      boards,
		now:         now,
	}
}

// Recompute reads all committed submissions for the session, derives the
// ranking and replaces the persisted snapshot. Idempotent: running it twice
// with no new submissions yields an identical ranking.
func (s *LeaderboardService) Recompute(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
	submissions, err := s.submissions.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	board := Rank(sessionID, submissions, s.now())
	if err := s.boards.Replace(ctx, board); err != nil {
		return nil, err
	}
	return board, nil
}

// Get returns the latest snapshot, or an empty one for a session that exists
// but has no submissions yet.
func (s *LeaderboardService) Get(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
	if _, err := s.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}
	board, err := s.boards.Get(ctx, sessionID)
	if errors.Is(err, domain.ErrLeaderboardNotFound) {
		return &domain.Leaderboard{
			SessionID: sessionID,
			Rankings:  []domain.Ranking{},
			UpdatedAt: s.now(),
		}, nil
	}
	return board, err
}

// Rank orders submissions by score descending with earlier submission time
// breaking ties (participant id as the final disambiguator keeps the order
// total even for identical timestamps). Ranks are dense, 1-based and never
// shared.
func Rank(sessionID string, submissions []domain.Submission, at time.Time) *domain.Leaderboard {
	sorted := make([]domain.Submission, len(submissions))
	copy(sorted, submissions)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Score != sorted[j].Score {
			return sorted[i].Score > sorted[j].Score
		}
		if !sorted[i].SubmittedAt.Equal(sorted[j].SubmittedAt) {
			return sorted[i].SubmittedAt.Before(sorted[j].SubmittedAt)
		}
		return sorted[i].ParticipantID < sorted[j].ParticipantID
	})

	rankings := make([]domain.Ranking, len(sorted))
	for i, sub := range sorted {
		rankings[i] = domain.Ranking{
			ParticipantID:   sub.ParticipantID,
			ParticipantName: sub.ParticipantName,
			Score:           sub.Score,
			Rank:            i + 1,
		}
	}
	return &domain.Leaderboard{
		SessionID: sessionID,
		Rankings:  rankings,
		UpdatedAt: at,
	}
}
