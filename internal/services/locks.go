package services

import "sync"

// SessionLocks serializes writers of one session's live state: presenter
// control, settings edits, joins and responses. The mutex is not reentrant.
type SessionLocks struct {
	m sync.Map
}

func NewSessionLocks() *SessionLocks {
	return &SessionLocks{}
}

// Lock blocks until sessionID is free and returns the unlock func.
func (l *SessionLocks) Lock(sessionID uint) func() {
	m, _ := l.m.LoadOrStore(sessionID, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}
