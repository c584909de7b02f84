package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"quiz-session-service/internal/domain"
)

// LeaderboardStore keeps one snapshot row per session; Replace upserts it.
type LeaderboardStore struct {
	db *bun.DB
}

func NewLeaderboardStore(db *bun.DB) *LeaderboardStore {
	return &LeaderboardStore{db: db}
}

type leaderboardRow struct {
	bun.BaseModel `bun:"table:leaderboards"`

	SessionID string          `bun:"session_id,pk"`
	Rankings  json.RawMessage `bun:"rankings,type:jsonb,notnull"`
	UpdatedAt time.Time       `bun:"updated_at,notnull"`
}

func (s *LeaderboardStore) Replace(ctx context.Context, board *domain.Leaderboard) error {
	rankings, err := json.Marshal(board.Rankings)
	if err != nil {
		return fmt.Errorf("marshal rankings: %w", err)
	}
	row := &leaderboardRow{
		SessionID: board.SessionID,
		Rankings:  rankings,
		UpdatedAt: board.UpdatedAt,
	}
	_, err = s.db.NewInsert().Model(row).
		On("CONFLICT (session_id) DO UPDATE").
		Set("rankings = EXCLUDED.rankings").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *LeaderboardStore) Get(ctx context.Context, sessionID string) (*domain.Leaderboard, error) {
	row := new(leaderboardRow)
	err := s.db.NewSelect().Model(row).Where("session_id = ?", sessionID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrLeaderboardNotFound
	}
	if err != nil {
		return nil, err
	}
	var rankings []domain.Ranking
	if err := json.Unmarshal(row.Rankings, &rankings); err != nil {
		return nil, fmt.Errorf("unmarshal rankings: %w", err)
	}
	return &domain.Leaderboard{
		SessionID: row.SessionID,
		Rankings:  rankings,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func (s *LeaderboardStore) Delete(ctx context.Context, sessionID string) error {
	_, err := s.db.NewDelete().Model((*leaderboardRow)(nil)).Where("session_id = ?", sessionID).Exec(ctx)
	return err
}
