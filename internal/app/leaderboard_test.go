package app_test

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
)

func TestRankTieBreaksOnEarlierSubmission(t *testing.T) {
	base := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	submissions := []domain.Submission{
		{ParticipantID: "slow", Score: 1, SubmittedAt: base.Add(30 * time.Second)},
		{ParticipantID: "fast", Score: 1, SubmittedAt: base.Add(5 * time.Second)},
	}

	board := app.Rank("s1", submissions, base.Add(time.Minute))
	if board.Rankings[0].ParticipantID != "fast" || board.Rankings[0].Rank != 1 {
		t.Fatalf("earlier submission should rank first, got %+v", board.Rankings)
	}
	if board.Rankings[1].ParticipantID != "slow" || board.Rankings[1].Rank != 2 {
		t.Fatalf("later submission should rank second, got %+v", board.Rankings)
	}
}

func TestRankIsStrictTotalOrder(t *testing.T) {
	base := time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)
	// Identical scores and timestamps still yield unique ranks.
	submissions := []domain.Submission{
		{ParticipantID: "c", Score: 2, SubmittedAt: base},
		{ParticipantID: "a", Score: 2, SubmittedAt: base},
		{ParticipantID: "b", Score: 3, SubmittedAt: base},
		{ParticipantID: "d", Score: 2, SubmittedAt: base},
	}

	board := app.Rank("s1", submissions, base)
	seen := make(map[int]bool)
	for _, r := range board.Rankings {
		if seen[r.Rank] {
			t.Fatalf("rank %d assigned twice: %+v", r.Rank, board.Rankings)
		}
		seen[r.Rank] = true
	}
	for i := 1; i < len(board.Rankings); i++ {
		prev, cur := board.Rankings[i-1], board.Rankings[i]
		if cur.Score > prev.Score {
			t.Fatalf("higher score ranked worse: %+v", board.Rankings)
		}
		if cur.Rank != prev.Rank+1 {
			t.Fatalf("ranks must be dense, got %+v", board.Rankings)
		}
	}
	if board.Rankings[0].ParticipantID != "b" {
		t.Fatalf("top score should rank first, got %+v", board.Rankings[0])
	}
}

func TestRecomputeIsIdempotent(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	session := activeLiveSession(t, e)

	for _, p := range []app.ParticipantRef{{ID: "u1"}, {ID: "u2"}, {ID: "u3"}} {
		if _, err := e.submissions.Submit(ctx, session.ID, p, []domain.Answer{
			{QuestionID: session.Questions[0].ID, SelectedOption: 0},
		}); err != nil {
			t.Fatalf("submit %s: %v", p.ID, err)
		}
	}

	first, err := e.boards.Recompute(ctx, session.ID)
	if err != nil {
		t.Fatalf("first recompute: %v", err)
	}
	second, err := e.boards.Recompute(ctx, session.ID)
	if err != nil {
		t.Fatalf("second recompute: %v", err)
	}
	if !reflect.DeepEqual(first.Rankings, second.Rankings) {
		t.Fatalf("recompute is not idempotent:\n%+v\n%+v", first.Rankings, second.Rankings)
	}
}

func TestGetLeaderboardBeforeAnySubmission(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	session := hostedLiveSession(t, e)

	board, err := e.boards.Get(ctx, session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(board.Rankings) != 0 {
		t.Fatalf("expected empty leaderboard, got %+v", board.Rankings)
	}

	if _, err := e.boards.Get(ctx, "no-such-session"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
}
