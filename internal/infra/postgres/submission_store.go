package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quiz-session-service/internal/domain"
)

// SubmissionStore is the Postgres implementation of app.SubmissionStore.
// The unique constraint on (session_id, participant_id) is what serializes
// concurrent duplicate submissions: of N racing inserts exactly one commits
// and the rest surface domain.ErrDuplicateSubmission.
type SubmissionStore struct {
	db *bun.DB
}

func NewSubmissionStore(db *bun.DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

type submissionRow struct {
	bun.BaseModel `bun:"table:submissions"`

	ID              string          `bun:"id,pk"`
	SessionID       string          `bun:"session_id,notnull"`
	ParticipantID   string          `bun:"participant_id,notnull"`
	ParticipantName string          `bun:"participant_name,nullzero"`
	Answers         json.RawMessage `bun:"answers,type:jsonb,notnull"`
	Score           int             `bun:"score,notnull"`
	SubmittedAt     time.Time       `bun:"submitted_at,notnull"`
	Late            bool            `bun:"late,notnull"`
}

func (s *SubmissionStore) Insert(ctx context.Context, submission *domain.Submission) error {
	row, err := submissionToRow(submission)
	if err != nil {
		return err
	}
	_, err = s.db.NewInsert().Model(row).Exec(ctx)
	if isUniqueViolation(err) {
		return domain.ErrDuplicateSubmission
	}
	return err
}

func (s *SubmissionStore) Get(ctx context.Context, sessionID, participantID string) (*domain.Submission, error) {
	row := new(submissionRow)
	err := s.db.NewSelect().Model(row).
		Where("session_id = ?", sessionID).
		Where("participant_id = ?", participantID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSubmissionNotFound
	}
	if err != nil {
		return nil, err
	}
	return submissionFromRow(row)
}

func (s *SubmissionStore) ListBySession(ctx context.Context, sessionID string) ([]domain.Submission, error) {
	var rows []submissionRow
	err := s.db.NewSelect().Model(&rows).
		Where("session_id = ?", sessionID).
		Order("submitted_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Submission, 0, len(rows))
	for i := range rows {
		submission, err := submissionFromRow(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *submission)
	}
	return out, nil
}

func (s *SubmissionStore) DeleteBySession(ctx context.Context, sessionID string) error {
	_, err := s.db.NewDelete().Model((*submissionRow)(nil)).Where("session_id = ?", sessionID).Exec(ctx)
	return err
}

func submissionToRow(submission *domain.Submission) (*submissionRow, error) {
	answers, err := json.Marshal(submission.Answers)
	if err != nil {
		return nil, fmt.Errorf("marshal answers: %w", err)
	}
	return &submissionRow{
		ID:              submission.ID,
		SessionID:       submission.SessionID,
		ParticipantID:   submission.ParticipantID,
		ParticipantName: submission.ParticipantName,
		Answers:         answers,
		Score:           submission.Score,
		SubmittedAt:     submission.SubmittedAt,
		Late:            submission.Late,
	}, nil
}

func submissionFromRow(row *submissionRow) (*domain.Submission, error) {
	var answers []domain.AnswerRecord
	if err := json.Unmarshal(row.Answers, &answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &domain.Submission{
		ID:              row.ID,
		SessionID:       row.SessionID,
		ParticipantID:   row.ParticipantID,
		ParticipantName: row.ParticipantName,
		Answers:         answers,
		Score:           row.Score,
		SubmittedAt:     row.SubmittedAt,
		Late:            row.Late,
	}, nil
}

// isUniqueViolation reports whether err is a Postgres unique_violation
// (SQLSTATE 23505).
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pgErr pgdriver.Error
	return errors.As(err, &pgErr) && pgErr.Field('C') == "23505"
}
