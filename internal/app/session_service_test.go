package app_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"quiz-session-service/internal/app"
	"quiz-session-service/internal/domain"
	"quiz-session-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type engine struct {
	sessions    *app.SessionService
	submissions *app.SubmissionService
	boards      *app.LeaderboardService
	broadcaster *memory.Broadcaster
	clock       *fakeClock
}

func newEngine() *engine {
	clock := newFakeClock(time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC))
	sessionStore := memory.NewSessionStore()
	submissionStore := memory.NewSubmissionStore()
	boardStore := memory.NewLeaderboardStore()
	broadcaster := memory.NewBroadcaster()

	boards := app.NewLeaderboardServiceWithClock(sessionStore, submissionStore, boardStore, clock.Now)
	sessions := app.NewSessionServiceWithClock(sessionStore, submissionStore, boardStore, broadcaster, nil, clock.Now)
	submissions := app.NewSubmissionServiceWithClock(sessionStore, sessionStore, submissionStore, boards, broadcaster, clock.Now)

	return &engine{
		sessions:    sessions,
		submissions: submissions,
		boards:      boards,
		broadcaster: broadcaster,
		clock:       clock,
	}
}

func twoQuestions() []domain.Question {
	return []domain.Question{
		{Prompt: "Capital of France?", Options: []string{"Paris", "Lyon", "Nice", "Lille"}, CorrectIndex: 0},
		{Prompt: "2 + 2?", Options: []string{"3", "5", "4", "22"}, CorrectIndex: 2},
	}
}

func hostedLiveSession(t *testing.T, e *engine) *domain.Session {
	t.Helper()
	session, err := e.sessions.Create(context.Background(), app.CreateSessionInput{
		Title:     "Geography check",
		Mode:      domain.ModeLive,
		Questions: twoQuestions(),
		HostID:    "teacher-1",
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return session
}

func TestCreateSessionValidation(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	end := e.clock.Now().Add(time.Hour)

	cases := []struct {
		name string
		in   app.CreateSessionInput
	}{
		{"missing title", app.CreateSessionInput{Mode: domain.ModeLive, Questions: twoQuestions(), HostID: "t1"}},
		{"bad mode", app.CreateSessionInput{Title: "x", Mode: "instant", Questions: twoQuestions(), HostID: "t1"}},
		{"no host ref", app.CreateSessionInput{Title: "x", Mode: domain.ModeLive, Questions: twoQuestions()}},
		{"both host refs", app.CreateSessionInput{Title: "x", Mode: domain.ModeLive, Questions: twoQuestions(), HostID: "t1", HostName: "Ms. Q"}},
		{"no questions", app.CreateSessionInput{Title: "x", Mode: domain.ModeLive, HostID: "t1"}},
		{"three options", app.CreateSessionInput{Title: "x", Mode: domain.ModeLive, HostID: "t1",
			Questions: []domain.Question{{Prompt: "p", Options: []string{"a", "b", "c"}, CorrectIndex: 0}}}},
		{"correct index out of range", app.CreateSessionInput{Title: "x", Mode: domain.ModeLive, HostID: "t1",
			Questions: []domain.Question{{Prompt: "p", Options: []string{"a", "b", "c", "d"}, CorrectIndex: 4}}}},
		{"deadline without end time", app.CreateSessionInput{Title: "x", Mode: domain.ModeDeadline, Questions: twoQuestions(), HostID: "t1"}},
		{"anonymous deadline session", app.CreateSessionInput{Title: "x", Mode: domain.ModeDeadline, Questions: twoQuestions(), HostName: "Ms. Q", EndTime: &end}},
		{"time limit on deadline mode", app.CreateSessionInput{Title: "x", Mode: domain.ModeDeadline, Questions: twoQuestions(), HostID: "t1", EndTime: &end, TimeLimitSec: 30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.sessions.Create(ctx, tc.in); domain.KindOf(err) != domain.KindValidation {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestCreateSessionDefaults(t *testing.T) {
	e := newEngine()
	session := hostedLiveSession(t, e)

	if session.State != domain.StateDraft {
		t.Fatalf("expected draft state, got %s", session.State)
	}
	if session.JoinCode != "" {
		t.Fatalf("hosted live session should not get a code before start, got %q", session.JoinCode)
	}
	for i, q := range session.Questions {
		if q.ID == "" {
			t.Fatalf("question %d has no id", i)
		}
		if q.Points != domain.DefaultQuestionPoints {
			t.Fatalf("question %d points = %d, want %d", i, q.Points, domain.DefaultQuestionPoints)
		}
	}
}

func TestQuickSessionGetsCodeImmediately(t *testing.T) {
	e := newEngine()
	session, err := e.sessions.Create(context.Background(), app.CreateSessionInput{
		Title:     "Pop quiz",
		Mode:      domain.ModeLive,
		Questions: twoQuestions(),
		HostName:  "Ms. Q",
	})
	if err != nil {
		t.Fatalf("create quick session: %v", err)
	}
	if len(session.JoinCode) != app.DefaultJoinCodeLength {
		t.Fatalf("expected %d-char join code, got %q", app.DefaultJoinCodeLength, session.JoinCode)
	}
	if !session.IsAnonymous() {
		t.Fatalf("expected anonymous session")
	}
}

func TestStartAssignsCodeStampsTimeAndBroadcasts(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	session := hostedLiveSession(t, e)

	events, cancel, err := e.broadcaster.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := e.sessions.Start(ctx, session.ID, "intruder"); !errors.Is(err, domain.ErrNotSessionHost) {
		t.Fatalf("expected host check to fail, got %v", err)
	}

	started, err := e.sessions.Start(ctx, session.ID, "teacher-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.State != domain.StateActive {
		t.Fatalf("expected active state, got %s", started.State)
	}
	if started.JoinCode == "" {
		t.Fatalf("live session should receive a join code on start")
	}
	if started.StartTime == nil || !started.StartTime.Equal(e.clock.Now()) {
		t.Fatalf("start time not stamped: %v", started.StartTime)
	}

	select {
	case event := <-events:
		if event.Type != domain.EventQuizStarted {
			t.Fatalf("expected quiz-started, got %s", event.Type)
		}
	default:
		t.Fatalf("expected quiz-started broadcast")
	}

	if _, err := e.sessions.Start(ctx, session.ID, "teacher-1"); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("starting twice should be an invalid transition, got %v", err)
	}
}

func TestLifecycleForwardPathOnly(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	session := hostedLiveSession(t, e)

	if _, err := e.sessions.Stop(ctx, session.ID, "teacher-1"); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("stopping a draft should fail, got %v", err)
	}
	if _, err := e.sessions.Start(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.sessions.Stop(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := e.sessions.Stop(ctx, session.ID, "teacher-1"); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("stopping twice should fail, got %v", err)
	}
	// Completed is terminal: no way back to active.
	if _, err := e.sessions.Start(ctx, session.ID, "teacher-1"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("restarting a completed session should fail, got %v", err)
	}
}

func TestExtendDeadline(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	end := e.clock.Now().Add(time.Hour)

	session, err := e.sessions.Create(ctx, app.CreateSessionInput{
		Title:     "Homework quiz",
		Mode:      domain.ModeDeadline,
		Questions: twoQuestions(),
		HostID:    "teacher-1",
		EndTime:   &end,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := e.sessions.ExtendDeadline(ctx, session.ID, end.Add(time.Hour), "teacher-1"); domain.KindOf(err) != domain.KindInvalidTransition {
		t.Fatalf("extending a draft should fail, got %v", err)
	}
	if _, err := e.sessions.Start(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	extended, err := e.sessions.ExtendDeadline(ctx, session.ID, end.Add(2*time.Hour), "teacher-1")
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !extended.EndTime.Equal(end.Add(2 * time.Hour)) {
		t.Fatalf("end time not updated: %v", extended.EndTime)
	}

	// New end time must stay after the start time.
	before := e.clock.Now().Add(-time.Minute)
	if _, err := e.sessions.ExtendDeadline(ctx, session.ID, before, "teacher-1"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error, got %v", err)
	}

	live := hostedLiveSession(t, e)
	if _, err := e.sessions.Start(ctx, live.ID, "teacher-1"); err != nil {
		t.Fatalf("start live: %v", err)
	}
	if _, err := e.sessions.ExtendDeadline(ctx, live.ID, end, "teacher-1"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("extending a live session should fail, got %v", err)
	}
}

func TestResolveJoinCode(t *testing.T) {
	e := newEngine()
	ctx := context.Background()

	session, err := e.sessions.Create(ctx, app.CreateSessionInput{
		Title:     "Pop quiz",
		Mode:      domain.ModeLive,
		Questions: twoQuestions(),
		HostName:  "Ms. Q",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	events, cancel, err := e.broadcaster.Subscribe(ctx, session.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	// Codes are case-insensitive and whitespace-tolerant.
	resolved, err := e.sessions.Resolve(ctx, "  "+lower(session.JoinCode)+" ", "")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.ID != session.ID {
		t.Fatalf("resolved wrong session: %s", resolved.ID)
	}

	// Resolving with a display name is a quick-quiz join.
	if _, err := e.sessions.Resolve(ctx, session.JoinCode, "Alice"); err != nil {
		t.Fatalf("resolve with name: %v", err)
	}
	select {
	case event := <-events:
		if event.Type != domain.EventParticipantJoined {
			t.Fatalf("expected participant-joined, got %s", event.Type)
		}
	default:
		t.Fatalf("expected participant-joined broadcast")
	}

	// A completed session's code resolves exactly like an unknown one.
	if _, err := e.sessions.Start(ctx, session.ID, "Ms. Q"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.sessions.Stop(ctx, session.ID, "Ms. Q"); err != nil {
		t.Fatalf("stop: %v", err)
	}
	_, errCompleted := e.sessions.Resolve(ctx, session.JoinCode, "")
	_, errUnknown := e.sessions.Resolve(ctx, "ZZ99", "")
	if !errors.Is(errCompleted, domain.ErrSessionNotFound) || !errors.Is(errUnknown, domain.ErrSessionNotFound) {
		t.Fatalf("expected identical not-found outcomes, got %v and %v", errCompleted, errUnknown)
	}
}

func TestDeleteSessionCascades(t *testing.T) {
	e := newEngine()
	ctx := context.Background()
	session := hostedLiveSession(t, e)

	if _, err := e.sessions.Start(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := e.submissions.Submit(ctx, session.ID, app.ParticipantRef{ID: "u1", Name: "Alice"}, []domain.Answer{
		{QuestionID: session.Questions[0].ID, SelectedOption: 0},
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if err := e.sessions.Delete(ctx, session.ID, "someone-else"); !errors.Is(err, domain.ErrNotSessionHost) {
		t.Fatalf("expected forbidden delete, got %v", err)
	}
	if err := e.sessions.Delete(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := e.sessions.Get(ctx, session.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
	if _, err := e.submissions.Result(ctx, session.ID, "u1"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("submissions should cascade, got %v", err)
	}
}

func lower(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
