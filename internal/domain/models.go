package domain

import "time"

// SessionMode selects how a session is administered.
type SessionMode string

const (
	// ModeLive is a code-joined, single-sitting session synchronized in real time.
	ModeLive SessionMode = "live"
	// ModeDeadline keeps the session open across a time window; submissions
	// are scored individually without real-time sync.
	ModeDeadline SessionMode = "deadline"
)

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateDraft     SessionState = "draft"
	StateActive    SessionState = "active"
	StateCompleted SessionState = "completed"
)

// OptionsPerQuestion is fixed; every question carries exactly this many options.
const OptionsPerQuestion = 4

// DefaultQuestionPoints applies when a question is created without a point value.
const DefaultQuestionPoints = 10

// Question models an MCQ question with exactly one correct option.
// Questions are immutable once a session has accepted submissions, so
// stored scores stay reproducible.
type Question struct {
	ID           string   `json:"id"`
	Prompt       string   `json:"prompt"`
	Options      []string `json:"options"` // exactly OptionsPerQuestion entries
	CorrectIndex int      `json:"correctIndex"`
	Points       int      `json:"points"` // defaults to DefaultQuestionPoints if zero
}

// Session is one administration of a quiz (a "Test" to hosts).
// Exactly one of HostID (authenticated host) and HostName (anonymous quick
// session) is set.
type Session struct {
	ID           string       `json:"id"`
	Title        string       `json:"title"`
	Mode         SessionMode  `json:"mode"`
	State        SessionState `json:"state"`
	JoinCode     string       `json:"joinCode,omitempty"`
	HostID       string       `json:"hostId,omitempty"`
	HostName     string       `json:"hostName,omitempty"`
	Questions    []Question   `json:"questions"`
	TimeLimitSec int          `json:"timeLimitSec,omitempty"` // per-question, live mode only
	StartTime    *time.Time   `json:"startTime,omitempty"`
	EndTime      *time.Time   `json:"endTime,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// IsAnonymous reports whether the session was created without an
// authenticated host (quick quiz).
func (s *Session) IsAnonymous() bool {
	return s.HostID == ""
}

// OwnedBy reports whether the given host reference may mutate the session.
// Authenticated sessions match on the host id; anonymous quick sessions
// match on the transient host display name.
func (s *Session) OwnedBy(hostRef string) bool {
	if hostRef == "" {
		return false
	}
	if s.HostID != "" {
		return s.HostID == hostRef
	}
	return s.HostName == hostRef
}

// PastDeadline reports whether now falls after the session's end time.
func (s *Session) PastDeadline(now time.Time) bool {
	return s.EndTime != nil && now.After(*s.EndTime)
}

// Answer is a participant's selection for one question.
type Answer struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
}

// AnswerRecord is a scored answer as stored on a submission.
type AnswerRecord struct {
	QuestionID     string `json:"questionId"`
	SelectedOption int    `json:"selectedOption"`
	Correct        bool   `json:"correct"`
}

// Submission is a participant's one-shot answer set for a session.
// At most one exists per (session, participant); it is never mutated
// after creation.
type Submission struct {
	ID              string         `json:"id"`
	SessionID       string         `json:"sessionId"`
	ParticipantID   string         `json:"participantId"`
	ParticipantName string         `json:"participantName,omitempty"`
	Answers         []AnswerRecord `json:"answers"`
	Score           int            `json:"score"`
	SubmittedAt     time.Time      `json:"submittedAt"`
	Late            bool           `json:"late"`
}

// Ranking is one leaderboard row.
type Ranking struct {
	ParticipantID   string `json:"participantId"`
	ParticipantName string `json:"participantName,omitempty"`
	Score           int    `json:"score"`
	Rank            int    `json:"rank"`
}

// Leaderboard is the latest ranking snapshot for a session. Ranks form a
// strict total order: score descending, earlier submission wins ties.
type Leaderboard struct {
	SessionID string    `json:"sessionId"`
	Rankings  []Ranking `json:"rankings"`
	UpdatedAt time.Time `json:"updatedAt"`
}
