package domain

import (
	"encoding/json"
	"time"
)

// EventType names a message on a session's event channel.
type EventType string

const (
	EventQuizStarted        EventType = "quiz-started"
	EventParticipantJoined  EventType = "participant-joined"
	EventLeaderboardUpdated EventType = "leaderboard-updated"
	// EventMaterialDeleted belongs to adjacent classroom content; it is
	// carried here only because it shares the broadcast transport.
	EventMaterialDeleted EventType = "material-deleted"
)

// Event is one message published on a per-session channel. Delivery is
// at-least-once, best-effort; there is no replay for late subscribers.
type Event struct {
	Type      EventType       `json:"type"`
	SessionID string          `json:"sessionId"`
	Payload   json.RawMessage `json:"payload"`
}

// QuizStartedPayload announces the Draft -> Active transition.
type QuizStartedPayload struct {
	StartTime time.Time `json:"startTime"`
}

// ParticipantJoinedPayload announces a quick-quiz participant's arrival.
type ParticipantJoinedPayload struct {
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"joinedAt"`
}

// LeaderboardUpdatedPayload carries the freshly recomputed snapshot.
type LeaderboardUpdatedPayload struct {
	Rankings []Ranking `json:"rankings"`
}

// MaterialDeletedPayload announces removal of adjacent classroom content.
type MaterialDeletedPayload struct {
	MaterialID string `json:"materialId"`
}

// NewEvent marshals payload into an Event for the given session channel.
func NewEvent(t EventType, sessionID string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{Type: t, SessionID: sessionID, Payload: raw}, nil
}
