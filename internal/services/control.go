package services

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
)

// systemActor marks mutations made by the server itself, such as timer
// expiry; they skip the permission check.
const systemActor uint = 0

// ControlService applies presenter actions to live sessions. Each session is
// mutated by one goroutine at a time, and every change bumps the session
// version so stale writers are rejected.
type ControlService struct {
	db       *gorm.DB
	sessions *SessionService
	scoring  *ScoringService
	bus      Broadcaster
	timers   *BlockTimers
	now      func() time.Time
}

func NewControlService(db *gorm.DB, sessions *SessionService, scoring *ScoringService, bus Broadcaster, timers *BlockTimers) *ControlService {
	s := &ControlService{
		db:       db,
		sessions: sessions,
		scoring:  scoring,
		bus:      bus,
		timers:   timers,
		now:      time.Now,
	}
	timers.OnExpire(s.expireBlock)
	return s
}

type ControlState struct {
	Session          models.Session `json:"session"`
	Blocks           []models.Block `json:"blocks"`
	CurrentBlock     *models.Block  `json:"current_block,omitempty"`
	ParticipantCount int            `json:"participant_count"`
	ResponseCount    int            `json:"response_count"`
}

type timerOp struct {
	blockID uint
	arm     time.Duration
}

// run is the in-memory working copy of a session during one mutation.
type run struct {
	session      models.Session
	blocks       []models.Block
	dirtyBlocks  map[int]bool
	sessionDirty bool
	events       []event
	timerOps     []timerOp
	closeTopic   bool
}

func (r *run) blockIndex(blockID uint) int {
	for i, b := range r.blocks {
		if b.ID == blockID {
			return i
		}
	}
	return -1
}

func (r *run) statuses() []lifecycle.BlockStatus {
	out := make([]lifecycle.BlockStatus, len(r.blocks))
	for i, b := range r.blocks {
		out[i] = b.Status
	}
	return out
}

func (r *run) changed() bool {
	return r.sessionDirty || len(r.dirtyBlocks) > 0
}

// mutate loads the session and its blocks inside a transaction, lets fn edit
// them, then persists the result with an optimistic version check. A call
// that changes nothing succeeds without touching the version, so repeated
// requests are harmless.
func (s *ControlService) mutate(sessionID, actorID uint, expectedVersion *int, fn func(tx *gorm.DB, r *run) error) (*ControlState, error) {
	if actorID != systemActor {
		if _, err := s.sessions.LoadControllable(sessionID, actorID); err != nil {
			return nil, err
		}
	}

	unlock := s.sessions.locks.Lock(sessionID)
	defer unlock()

	var r *run
	err := s.db.Transaction(func(tx *gorm.DB) error {
		r = &run{dirtyBlocks: make(map[int]bool)}
		if err := tx.First(&r.session, sessionID).Error; err != nil {
			return notFound(err, "session")
		}
		if err := tx.Where("session_id = ?", sessionID).Order("position ASC").Find(&r.blocks).Error; err != nil {
			return err
		}
		oldVersion := r.session.Version

		if err := fn(tx, r); err != nil {
			return err
		}
		if !r.changed() {
			return nil
		}
		if expectedVersion != nil && *expectedVersion != oldVersion {
			return newError(ErrConflict, fmt.Sprintf("session changed since version %d (now %d)", *expectedVersion, oldVersion))
		}

		r.session.Version = oldVersion + 1
		for i := range r.events {
			stampVersion(&r.events[i], r.session.Version)
		}
		res := tx.Model(&models.Session{}).
			Where("id = ? AND version = ?", sessionID, oldVersion).
			Select("status", "current_block_index", "version", "started_at", "paused_at", "ended_at", "updated_at").
			Updates(&models.Session{
				Status:            r.session.Status,
				CurrentBlockIndex: r.session.CurrentBlockIndex,
				Version:           r.session.Version,
				StartedAt:         r.session.StartedAt,
				PausedAt:          r.session.PausedAt,
				EndedAt:           r.session.EndedAt,
				UpdatedAt:         s.now(),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return newError(ErrConflict, "session was modified concurrently")
		}

		for i := range r.dirtyBlocks {
			b := r.blocks[i]
			if err := tx.Model(&models.Block{}).Where("id = ?", b.ID).
				Select("status", "activated_at", "deadline_at", "remaining_ms", "updated_at").
				Updates(&models.Block{
					Status:      b.Status,
					ActivatedAt: b.ActivatedAt,
					DeadlineAt:  b.DeadlineAt,
					RemainingMs: b.RemainingMs,
					UpdatedAt:   s.now(),
				}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapLifecycleErr(err)
	}

	if r.changed() {
		for _, op := range r.timerOps {
			if op.arm > 0 {
				s.timers.Arm(sessionID, op.blockID, op.arm)
			} else {
				s.timers.Disarm(op.blockID)
			}
		}
		for _, ev := range r.events {
			s.bus.Publish(sessionID, ev.Type, ev.Data)
		}
		if r.closeTopic {
			s.bus.Drop(sessionID)
		}
		slog.Info("session mutated", "session_id", sessionID, "version", r.session.Version, "events", len(r.events))
	}

	return s.ControlState(sessionID)
}

func stampVersion(ev *event, version int) {
	switch d := ev.Data.(type) {
	case SessionStatusEvent:
		d.Version = version
		ev.Data = d
	case BlockStatusEvent:
		d.Version = version
		ev.Data = d
	case CursorEvent:
		d.Version = version
		ev.Data = d
	}
}

// mapLifecycleErr turns state machine refusals into conflicts.
func mapLifecycleErr(err error) error {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return err
	}
	switch {
	case errors.Is(err, lifecycle.ErrIllegalTransition),
		errors.Is(err, lifecycle.ErrSessionClosed),
		errors.Is(err, lifecycle.ErrSessionNotLive),
		errors.Is(err, lifecycle.ErrNoPendingBlocks),
		errors.Is(err, lifecycle.ErrSessionNotDraft):
		return newError(ErrConflict, err.Error())
	}
	return err
}

func (s *ControlService) setSessionStatus(r *run, to lifecycle.SessionStatus) {
	from := r.session.Status
	r.session.Status = to
	r.sessionDirty = true
	r.events = append(r.events, event{Type: EventSessionStatusChanged, Data: SessionStatusEvent{From: from, To: to}})
}

func (s *ControlService) setBlockStatus(r *run, idx int, to lifecycle.BlockStatus) {
	b := &r.blocks[idx]
	from := b.Status
	b.Status = to
	r.dirtyBlocks[idx] = true
	r.events = append(r.events, event{Type: EventBlockStatusChanged, Data: BlockStatusEvent{Block: publicBlock(*b), From: from, To: to}})
}

func (s *ControlService) moveCursor(r *run, idx int) {
	if r.session.CurrentBlockIndex == idx {
		return
	}
	r.session.CurrentBlockIndex = idx
	r.sessionDirty = true
	var blockID uint
	if idx < len(r.blocks) {
		blockID = r.blocks[idx].ID
	}
	r.events = append(r.events, event{Type: EventCursorMoved, Data: CursorEvent{Index: idx, BlockID: blockID}})
}

// timeLimit is the block's own limit, else the session default.
func timeLimit(session models.Session, b models.Block) time.Duration {
	if b.TimeLimit > 0 {
		return time.Duration(b.TimeLimit) * time.Second
	}
	if session.TimeLimitPerQuestion != nil && *session.TimeLimitPerQuestion > 0 {
		return time.Duration(*session.TimeLimitPerQuestion) * time.Second
	}
	return 0
}

// leaveActive stops the clock on an active block and scores its responses
// when it is being closed or completed.
func (s *ControlService) leaveActive(tx *gorm.DB, r *run, idx int, score bool) error {
	b := &r.blocks[idx]
	b.DeadlineAt = nil
	b.RemainingMs = 0
	r.timerOps = append(r.timerOps, timerOp{blockID: b.ID})
	if !score {
		return nil
	}
	return s.scoreBlock(tx, r.session.ID, *b)
}

func (s *ControlService) scoreBlock(tx *gorm.DB, sessionID uint, block models.Block) error {
	var responses []models.Response
	if err := tx.Where("block_id = ?", block.ID).Find(&responses).Error; err != nil {
		return err
	}
	var participants int64
	if err := tx.Model(&models.Participant{}).Where("session_id = ?", sessionID).Count(&participants).Error; err != nil {
		return err
	}

	responses = s.scoring.CalculateScores(block, responses, int(participants))
	for _, resp := range responses {
		if err := tx.Model(&models.Response{}).Where("id = ?", resp.ID).
			Updates(map[string]interface{}{"score": resp.Score, "is_correct": resp.IsCorrect}).Error; err != nil {
			return err
		}
		if resp.Score == 0 {
			continue
		}
		if err := tx.Model(&models.Participant{}).Where("id = ?", resp.ParticipantID).
			Update("total_score", gorm.Expr("total_score + ?", resp.Score)).Error; err != nil {
			return err
		}
	}
	return nil
}

// unscoreBlock removes a block's responses and takes back any points they
// earned.
func (s *ControlService) unscoreBlock(tx *gorm.DB, blockID uint) error {
	var responses []models.Response
	if err := tx.Where("block_id = ?", blockID).Find(&responses).Error; err != nil {
		return err
	}
	for _, resp := range responses {
		if resp.Score == 0 {
			continue
		}
		if err := tx.Model(&models.Participant{}).Where("id = ?", resp.ParticipantID).
			Update("total_score", gorm.Expr("total_score - ?", resp.Score)).Error; err != nil {
			return err
		}
	}
	return tx.Where("block_id = ?", blockID).Delete(&models.Response{}).Error
}

// ApplyBlockAction runs one presenter action against a block.
func (s *ControlService) ApplyBlockAction(sessionID, blockID, userID uint, action lifecycle.BlockAction, expectedVersion *int) (*ControlState, error) {
	return s.mutate(sessionID, userID, expectedVersion, func(tx *gorm.DB, r *run) error {
		return s.applyBlockAction(tx, r, blockID, action)
	})
}

func (s *ControlService) applyBlockAction(tx *gorm.DB, r *run, blockID uint, action lifecycle.BlockAction) error {
	idx := r.blockIndex(blockID)
	if idx < 0 {
		return newError(ErrNotFound, "block not found")
	}
	if err := lifecycle.CanMutateBlocks(r.session.Status); err != nil {
		return err
	}

	from := r.blocks[idx].Status
	res, err := lifecycle.Apply(from, action)
	if err != nil {
		return err
	}
	if !res.Changed {
		return nil
	}

	now := s.now()
	switch action {
	case lifecycle.ActionActivate:
		for i := range r.blocks {
			if i != idx && r.blocks[i].Status == lifecycle.BlockActive {
				if err := s.leaveActive(tx, r, i, true); err != nil {
					return err
				}
				s.setBlockStatus(r, i, lifecycle.BlockClosed)
			}
		}
		if r.session.Status == lifecycle.SessionWaiting {
			to, _, err := lifecycle.ApplySession(r.session.Status, lifecycle.SessionGoActive)
			if err != nil {
				return err
			}
			s.setSessionStatus(r, to)
		}
		b := &r.blocks[idx]
		b.ActivatedAt = &now
		if d := timeLimit(r.session, *b); d > 0 {
			deadline := now.Add(d)
			b.DeadlineAt = &deadline
			r.timerOps = append(r.timerOps, timerOp{blockID: b.ID, arm: d})
		}
		s.setBlockStatus(r, idx, res.To)
		s.moveCursor(r, idx)

	case lifecycle.ActionClose:
		if err := s.leaveActive(tx, r, idx, true); err != nil {
			return err
		}
		s.setBlockStatus(r, idx, res.To)

	case lifecycle.ActionComplete:
		if from == lifecycle.BlockActive {
			if err := s.leaveActive(tx, r, idx, true); err != nil {
				return err
			}
		}
		s.setBlockStatus(r, idx, res.To)

	case lifecycle.ActionSkip:
		if from == lifecycle.BlockActive {
			if err := s.leaveActive(tx, r, idx, false); err != nil {
				return err
			}
		}
		s.setBlockStatus(r, idx, res.To)
		if idx == r.session.CurrentBlockIndex {
			next, _ := lifecycle.NewCursor(idx, len(r.blocks)).Next()
			s.moveCursor(r, next.Index)
		}

	case lifecycle.ActionReset:
		if from == lifecycle.BlockActive {
			if err := s.leaveActive(tx, r, idx, false); err != nil {
				return err
			}
		}
		if err := s.unscoreBlock(tx, r.blocks[idx].ID); err != nil {
			return err
		}
		b := &r.blocks[idx]
		b.ActivatedAt = nil
		b.DeadlineAt = nil
		b.RemainingMs = 0
		s.setBlockStatus(r, idx, res.To)
	}
	return nil
}

// Navigate moves the presenter cursor one block forward or back.
func (s *ControlService) Navigate(sessionID, userID uint, forward bool, expectedVersion *int) (*ControlState, error) {
	return s.steer(sessionID, userID, expectedVersion, func(cur lifecycle.Cursor) (lifecycle.Cursor, bool, error) {
		if forward {
			next, moved := cur.Next()
			return next, moved, nil
		}
		prev, moved := cur.Previous()
		return prev, moved, nil
	})
}

// JumpTo moves the presenter cursor straight to the block at index.
func (s *ControlService) JumpTo(sessionID, userID uint, index int, expectedVersion *int) (*ControlState, error) {
	return s.steer(sessionID, userID, expectedVersion, func(cur lifecycle.Cursor) (lifecycle.Cursor, bool, error) {
		if index < 0 || index >= cur.Len {
			return cur, false, newError(ErrInvalidInput, fmt.Sprintf("no block at position %d", index))
		}
		next, moved := cur.MoveTo(index)
		return next, moved, nil
	})
}

func (s *ControlService) steer(sessionID, userID uint, expectedVersion *int, step func(lifecycle.Cursor) (lifecycle.Cursor, bool, error)) (*ControlState, error) {
	return s.mutate(sessionID, userID, expectedVersion, func(_ *gorm.DB, r *run) error {
		switch r.session.Status {
		case lifecycle.SessionEnded:
			return lifecycle.ErrSessionClosed
		case lifecycle.SessionDraft:
			return lifecycle.ErrSessionNotLive
		}
		cur, moved, err := step(lifecycle.NewCursor(r.session.CurrentBlockIndex, len(r.blocks)))
		if err != nil {
			return err
		}
		if moved {
			s.moveCursor(r, cur.Index)
		}
		return nil
	})
}

func (s *ControlService) StartSession(sessionID, userID uint, expectedVersion *int) (*ControlState, error) {
	return s.mutate(sessionID, userID, expectedVersion, func(_ *gorm.DB, r *run) error {
		to, changed, err := lifecycle.Start(r.session.Status, r.statuses())
		if err != nil || !changed {
			return err
		}
		now := s.now()
		r.session.StartedAt = &now
		s.setSessionStatus(r, to)
		for i, b := range r.blocks {
			if b.Status == lifecycle.BlockPending {
				s.moveCursor(r, i)
				break
			}
		}
		return nil
	})
}

// PauseSession freezes block timers, keeping the time each had left.
func (s *ControlService) PauseSession(sessionID, userID uint, expectedVersion *int) (*ControlState, error) {
	return s.mutate(sessionID, userID, expectedVersion, func(_ *gorm.DB, r *run) error {
		to, changed, err := lifecycle.ApplySession(r.session.Status, lifecycle.SessionPause)
		if err != nil || !changed {
			return err
		}
		now := s.now()
		r.session.PausedAt = &now
		for i := range r.blocks {
			b := &r.blocks[i]
			if b.Status != lifecycle.BlockActive || b.DeadlineAt == nil {
				continue
			}
			remaining := b.DeadlineAt.Sub(now)
			if remaining < time.Second {
				remaining = time.Second
			}
			b.RemainingMs = remaining.Milliseconds()
			b.DeadlineAt = nil
			r.dirtyBlocks[i] = true
			r.timerOps = append(r.timerOps, timerOp{blockID: b.ID})
		}
		s.setSessionStatus(r, to)
		return nil
	})
}

func (s *ControlService) ResumeSession(sessionID, userID uint, expectedVersion *int) (*ControlState, error) {
	return s.mutate(sessionID, userID, expectedVersion, func(_ *gorm.DB, r *run) error {
		to, changed, err := lifecycle.ApplySession(r.session.Status, lifecycle.SessionResume)
		if err != nil || !changed {
			return err
		}
		now := s.now()
		r.session.PausedAt = nil
		for i := range r.blocks {
			b := &r.blocks[i]
			if b.Status != lifecycle.BlockActive || b.RemainingMs <= 0 {
				continue
			}
			d := time.Duration(b.RemainingMs) * time.Millisecond
			deadline := now.Add(d)
			b.DeadlineAt = &deadline
			b.RemainingMs = 0
			r.dirtyBlocks[i] = true
			r.timerOps = append(r.timerOps, timerOp{blockID: b.ID, arm: d})
		}
		s.setSessionStatus(r, to)
		return nil
	})
}

// EndSession closes any active block and ends the session for good.
func (s *ControlService) EndSession(sessionID, userID uint, expectedVersion *int) (*ControlState, error) {
	return s.mutate(sessionID, userID, expectedVersion, func(tx *gorm.DB, r *run) error {
		to, changed, err := lifecycle.ApplySession(r.session.Status, lifecycle.SessionEnd)
		if err != nil || !changed {
			return err
		}
		for i := range r.blocks {
			if r.blocks[i].Status == lifecycle.BlockActive {
				if err := s.leaveActive(tx, r, i, true); err != nil {
					return err
				}
				s.setBlockStatus(r, i, lifecycle.BlockClosed)
			}
		}
		now := s.now()
		r.session.EndedAt = &now
		r.session.PausedAt = nil
		s.setSessionStatus(r, to)
		r.closeTopic = true
		return nil
	})
}

// expireBlock closes a block whose time limit ran out. Timers that outlived
// their activation (reset, re-activated, paused) find no matching deadline
// and do nothing.
func (s *ControlService) expireBlock(sessionID, blockID uint) {
	_, err := s.mutate(sessionID, systemActor, nil, func(tx *gorm.DB, r *run) error {
		idx := r.blockIndex(blockID)
		if idx < 0 {
			return nil
		}
		b := r.blocks[idx]
		if b.Status != lifecycle.BlockActive || b.DeadlineAt == nil || r.session.Status != lifecycle.SessionActive {
			return nil
		}
		if s.now().Add(500 * time.Millisecond).Before(*b.DeadlineAt) {
			return nil
		}
		slog.Info("block time limit reached", "session_id", sessionID, "block_id", blockID)
		return s.applyBlockAction(tx, r, blockID, lifecycle.ActionClose)
	})
	if err != nil {
		slog.Error("auto-close failed", "session_id", sessionID, "block_id", blockID, "error", err)
	}
}

// RestoreTimers re-arms timers for blocks that were running when the process
// stopped. Blocks already past their deadline close immediately.
func (s *ControlService) RestoreTimers() error {
	var blocks []models.Block
	err := s.db.Joins("JOIN sessions ON sessions.id = blocks.session_id").
		Where("blocks.status = ? AND blocks.deadline_at IS NOT NULL AND sessions.status = ?",
			lifecycle.BlockActive, lifecycle.SessionActive).
		Find(&blocks).Error
	if err != nil {
		return err
	}
	now := s.now()
	for _, b := range blocks {
		d := b.DeadlineAt.Sub(now)
		if d < 0 {
			d = 0
		}
		s.timers.Arm(b.SessionID, b.ID, d)
	}
	if len(blocks) > 0 {
		slog.Info("restored block timers", "count", len(blocks))
	}
	return nil
}

// ControlState is the presenter's view of a session.
func (s *ControlService) ControlState(sessionID uint) (*ControlState, error) {
	var session models.Session
	if err := s.db.First(&session, sessionID).Error; err != nil {
		return nil, notFound(err, "session")
	}
	var blocks []models.Block
	if err := s.db.Where("session_id = ?", sessionID).Order("position ASC").Find(&blocks).Error; err != nil {
		return nil, err
	}

	state := &ControlState{Session: session, Blocks: blocks}

	var participants int64
	if err := s.db.Model(&models.Participant{}).Where("session_id = ? AND left_at IS NULL", sessionID).Count(&participants).Error; err != nil {
		return nil, err
	}
	state.ParticipantCount = int(participants)

	if idx := session.CurrentBlockIndex; idx >= 0 && idx < len(blocks) {
		state.CurrentBlock = &blocks[idx]
		var responses int64
		if err := s.db.Model(&models.Response{}).Where("block_id = ?", blocks[idx].ID).Count(&responses).Error; err != nil {
			return nil, err
		}
		state.ResponseCount = int(responses)
	}
	return state, nil
}

// PresenterState checks access and returns the control snapshot.
func (s *ControlService) PresenterState(sessionID, userID uint) (*ControlState, error) {
	if _, err := s.sessions.LoadControllable(sessionID, userID); err != nil {
		return nil, err
	}
	return s.ControlState(sessionID)
}
