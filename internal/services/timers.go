package services

import (
	"sync"
	"time"
)

// BlockTimers holds one expiry timer per active timed block.
type BlockTimers struct {
	mu       sync.Mutex
	timers   map[uint]*time.Timer
	onExpire func(sessionID, blockID uint)
}

func NewBlockTimers() *BlockTimers {
	return &BlockTimers{timers: make(map[uint]*time.Timer)}
}

// OnExpire sets the callback run when a timer fires.
func (t *BlockTimers) OnExpire(fn func(sessionID, blockID uint)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onExpire = fn
}

// Arm replaces any timer for blockID with one firing after d.
func (t *BlockTimers) Arm(sessionID, blockID uint, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[blockID]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.timers[blockID] != timer {
			t.mu.Unlock()
			return
		}
		delete(t.timers, blockID)
		fn := t.onExpire
		t.mu.Unlock()
		if fn != nil {
			fn(sessionID, blockID)
		}
	})
	t.timers[blockID] = timer
}

func (t *BlockTimers) Disarm(blockID uint) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if old, ok := t.timers[blockID]; ok {
		old.Stop()
		delete(t.timers, blockID)
	}
}

func (t *BlockTimers) Armed(blockID uint) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.timers[blockID]
	return ok
}

func (t *BlockTimers) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, timer := range t.timers {
		timer.Stop()
		delete(t.timers, id)
	}
}
