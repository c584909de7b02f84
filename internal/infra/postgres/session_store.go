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

// SessionStore is the Postgres implementation of app.SessionStore. Questions
// live on the session row as JSONB; submissions and leaderboards reference
// the session by foreign key so they can be written without touching it.
type SessionStore struct {
	db *bun.DB
}

func NewSessionStore(db *bun.DB) *SessionStore {
	return &SessionStore{db: db}
}

type sessionRow struct {
	bun.BaseModel `bun:"table:sessions"`

	ID           string          `bun:"id,pk"`
	Title        string          `bun:"title,notnull"`
	Mode         string          `bun:"mode,notnull"`
	State        string          `bun:"state,notnull"`
	JoinCode     string          `bun:"join_code,nullzero"`
	HostID       string          `bun:"host_id,nullzero"`
	HostName     string          `bun:"host_name,nullzero"`
	Questions    json.RawMessage `bun:"questions,type:jsonb,notnull"`
	TimeLimitSec int             `bun:"time_limit_sec,notnull"`
	StartTime    *time.Time      `bun:"start_time"`
	EndTime      *time.Time      `bun:"end_time"`
	CreatedAt    time.Time       `bun:"created_at,notnull"`
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	row, err := sessionToRow(session)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(row).Exec(ctx)
	if isUniqueViolation(err) {
		// Partial unique index on join_code for non-completed sessions.
		return domain.Validationf("join code is already in use")
	}
	return err
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sessionFromRow(row)
}

// GetByJoinCode excludes completed sessions, so a stale code resolves
// exactly like one that never existed.
func (s *SessionStore) GetByJoinCode(ctx context.Context, code string) (*domain.Session, error) {
	row := new(sessionRow)
	err := s.db.NewSelect().Model(row).
		Where("join_code = ?", code).
		Where("state != ?", string(domain.StateCompleted)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return sessionFromRow(row)
}

func (s *SessionStore) Update(ctx context.Context, session *domain.Session) error {
	row, err := sessionToRow(session)
	if err != nil {
		return err
	}
	res, err := s.db.NewUpdate().Model(row).WherePK().Exec(ctx)
	if isUniqueViolation(err) {
		return domain.Validationf("join code is already in use")
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Delete removes the session row; submissions and leaderboards cascade via
// their foreign keys.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.NewDelete().Model((*sessionRow)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func sessionToRow(session *domain.Session) (*sessionRow, error) {
	questions, err := json.Marshal(session.Questions)
	if err != nil {
		return nil, fmt.Errorf("marshal questions: %w", err)
	}
	return &sessionRow{
		ID:           session.ID,
		Title:        session.Title,
		Mode:         string(session.Mode),
		State:        string(session.State),
		JoinCode:     session.JoinCode,
		HostID:       session.HostID,
		HostName:     session.HostName,
		Questions:    questions,
		TimeLimitSec: session.TimeLimitSec,
		StartTime:    session.StartTime,
		EndTime:      session.EndTime,
		CreatedAt:    session.CreatedAt,
	}, nil
}

func sessionFromRow(row *sessionRow) (*domain.Session, error) {
	var questions []domain.Question
	if err := json.Unmarshal(row.Questions, &questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &domain.Session{
		ID:           row.ID,
		Title:        row.Title,
		Mode:         domain.SessionMode(row.Mode),
		State:        domain.SessionState(row.State),
		JoinCode:     row.JoinCode,
		HostID:       row.HostID,
		HostName:     row.HostName,
		Questions:    questions,
		TimeLimitSec: row.TimeLimitSec,
		StartTime:    row.StartTime,
		EndTime:      row.EndTime,
		CreatedAt:    row.CreatedAt,
	}, nil
}
