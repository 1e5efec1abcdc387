package lifecycle

import "errors"

type SessionStatus string

const (
	SessionDraft   SessionStatus = "draft"
	SessionWaiting SessionStatus = "waiting"
	SessionActive  SessionStatus = "active"
	SessionPaused  SessionStatus = "paused"
	SessionEnded   SessionStatus = "ended"
)

type SessionAction string

const (
	SessionStart    SessionAction = "start"
	SessionPause    SessionAction = "pause"
	SessionResume   SessionAction = "resume"
	SessionEnd      SessionAction = "end"
	SessionGoActive SessionAction = "go_active"
)

var (
	ErrSessionClosed   = errors.New("session has ended")
	ErrSessionNotLive  = errors.New("session is not accepting block changes")
	ErrNoPendingBlocks = errors.New("session needs at least one pending block to start")
	ErrSessionNotDraft = errors.New("session can only be edited while in draft")
)

var sessionRules = map[SessionAction]struct {
	to   SessionStatus
	from []SessionStatus
}{
	SessionStart:    {to: SessionWaiting, from: []SessionStatus{SessionDraft}},
	SessionGoActive: {to: SessionActive, from: []SessionStatus{SessionWaiting}},
	SessionPause:    {to: SessionPaused, from: []SessionStatus{SessionActive}},
	SessionResume:   {to: SessionActive, from: []SessionStatus{SessionPaused}},
	SessionEnd:      {to: SessionEnded, from: []SessionStatus{SessionWaiting, SessionActive, SessionPaused}},
}

// ApplySession evaluates a session-level action. Like Apply, an action whose
// target is the current status is a no-op, except that nothing leaves ended.
func ApplySession(from SessionStatus, action SessionAction) (SessionStatus, bool, error) {
	rule, ok := sessionRules[action]
	if !ok {
		return from, false, &TransitionError{From: string(from), Action: string(action)}
	}
	if from == rule.to {
		return from, false, nil
	}
	if from == SessionEnded {
		return from, false, ErrSessionClosed
	}
	for _, allowed := range rule.from {
		if allowed == from {
			return rule.to, true, nil
		}
	}
	return from, false, &TransitionError{From: string(from), Action: string(action)}
}

// CanMutateBlocks reports whether presenter block actions are accepted.
func CanMutateBlocks(s SessionStatus) error {
	switch s {
	case SessionWaiting, SessionActive:
		return nil
	case SessionEnded:
		return ErrSessionClosed
	default:
		return ErrSessionNotLive
	}
}

// CanAuthor reports whether blocks may be added, edited, reordered or deleted.
func CanAuthor(s SessionStatus) error {
	if s != SessionDraft {
		return ErrSessionNotDraft
	}
	return nil
}

// Start checks the precondition for leaving draft.
func Start(from SessionStatus, blocks []BlockStatus) (SessionStatus, bool, error) {
	if from == SessionDraft {
		hasPending := false
		for _, b := range blocks {
			if b == BlockPending {
				hasPending = true
				break
			}
		}
		if !hasPending {
			return from, false, ErrNoPendingBlocks
		}
	}
	return ApplySession(from, SessionStart)
}
