package memory

import (
	"context"
	"sync"

	"quiz-session-service/internal/domain"
)

// LeaderboardStore is an in-memory implementation of app.LeaderboardStore,
// holding only the latest snapshot per session.
type LeaderboardStore struct {
	mu     sync.RWMutex
	boards map[string]*domain.Leaderboard
}

func NewLeaderboardStore() *LeaderboardStore {
	return &LeaderboardStore{boards: make(map[string]*domain.Leaderboard)}
}

func (s *LeaderboardStore) Replace(_ context.Context, board *domain.Leaderboard) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.boards[board.SessionID] = cloneLeaderboard(board)
	return nil
}

func (s *LeaderboardStore) Get(_ context.Context, sessionID string) (*domain.Leaderboard, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	board, ok := s.boards[sessionID]
	if !ok {
		return nil, domain.ErrLeaderboardNotFound
	}
	return cloneLeaderboard(board), nil
}

func (s *LeaderboardStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.boards, sessionID)
	return nil
}

func cloneLeaderboard(in *domain.Leaderboard) *domain.Leaderboard {
	out := *in
	out.Rankings = make([]domain.Ranking, len(in.Rankings))
	copy(out.Rankings, in.Rankings)
	return &out
}
