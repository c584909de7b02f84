package domain

import (
	"errors"
	"fmt"
)

// ErrorKind is a stable, caller-safe classification for rejections.
type ErrorKind string

const (
	KindNotFound            ErrorKind = "not_found"
	KindForbidden           ErrorKind = "forbidden"
	KindValidation          ErrorKind = "validation"
	KindDuplicateSubmission ErrorKind = "duplicate_submission"
	KindInvalidTransition   ErrorKind = "invalid_transition"
)

// Error carries a stable kind plus a human-readable message. Wrapped causes
// and internal identifiers never leak to callers.
type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string { return e.Message }

// Is matches any *Error of the same kind, so sentinel comparisons like
// errors.Is(err, ErrDuplicateSubmission) hold for store-level rejections too.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	// ErrSessionNotFound covers unknown session ids and join codes of
	// completed sessions alike; callers cannot distinguish the two.
	ErrSessionNotFound = &Error{Kind: KindNotFound, Message: "session not found"}
	// ErrSubmissionNotFound is returned when a participant has no submission yet.
	ErrSubmissionNotFound = &Error{Kind: KindNotFound, Message: "submission not found"}
	// ErrLeaderboardNotFound is returned before a session's first recompute.
	ErrLeaderboardNotFound = &Error{Kind: KindNotFound, Message: "leaderboard not found"}
	// ErrNotSessionHost rejects a mutating call from a non-owning host ref.
	ErrNotSessionHost = &Error{Kind: KindForbidden, Message: "requesting host does not own this session"}
	// ErrDuplicateSubmission rejects a second submission for the same
	// (session, participant) pair.
	ErrDuplicateSubmission = &Error{Kind: KindDuplicateSubmission, Message: "participant has already submitted for this session"}
	// ErrInvalidTransition rejects an illegal lifecycle transition.
	ErrInvalidTransition = &Error{Kind: KindInvalidTransition, Message: "invalid session state transition"}
	// ErrSessionClosed rejects submissions to a session that is not accepting them.
	ErrSessionClosed = &Error{Kind: KindValidation, Message: "session is not accepting submissions"}
)

// Validationf builds a validation rejection with a formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

// Transitionf builds an invalid-transition rejection with a formatted message.
func Transitionf(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidTransition, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, or "" for non-domain errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
