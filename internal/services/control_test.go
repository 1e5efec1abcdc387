package services

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
)

func TestStartSessionRequiresPendingBlock(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s := f.draftSession(t, owner, SessionInput{})

	_, err := f.control.StartSession(s.ID, owner.ID, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestStartSessionMovesToWaiting(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s := f.draftSession(t, owner, SessionInput{}, choice(0), poll())

	state, err := f.control.StartSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.SessionWaiting, state.Session.Status)
	assert.Equal(t, 1, state.Session.Version)
	assert.NotNil(t, state.Session.StartedAt)
	assert.Equal(t, 0, state.Session.CurrentBlockIndex)
	assert.Equal(t, []string{EventSessionStatusChanged}, f.bus.types())

	f.bus.reset()
	again, err := f.control.StartSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, again.Session.Version, "repeating start is a no-op")
	assert.Empty(t, f.bus.types())
}

func TestActivateFirstBlockMakesSessionActive(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), poll())
	f.bus.reset()

	state, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.SessionActive, state.Session.Status)
	assert.Equal(t, lifecycle.BlockActive, state.Blocks[0].Status)
	assert.NotNil(t, state.Blocks[0].ActivatedAt)
	assert.Equal(t, []string{EventSessionStatusChanged, EventBlockStatusChanged}, f.bus.types())

	ev := f.bus.events[1].Data.(BlockStatusEvent)
	assert.Equal(t, state.Session.Version, ev.Version)
	assert.Empty(t, ev.Block.Correct, "answers stay hidden while active")
}

func TestBlockActionsFollowTransitionTable(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1), poll())
	id := blocks[0].ID

	_, err := f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionComplete, nil)
	assert.True(t, errors.Is(err, ErrConflict), "pending cannot be completed")

	_, err = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionClose, nil)
	assert.True(t, errors.Is(err, ErrConflict), "pending cannot be closed")

	_, err = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	_, err = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionClose, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BlockClosed, f.status(t, id))

	_, err = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionActivate, nil)
	assert.True(t, errors.Is(err, ErrConflict), "closed blocks must be reset first")

	_, err = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionComplete, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BlockCompleted, f.status(t, id))

	_, err = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionReset, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BlockPending, f.status(t, id))

	_, err = f.control.ApplyBlockAction(s.ID, blocks[1].ID, owner.ID, lifecycle.ActionSkip, nil)
	require.NoError(t, err)
	_, err = f.control.ApplyBlockAction(s.ID, blocks[1].ID, owner.ID, lifecycle.ActionComplete, nil)
	assert.True(t, errors.Is(err, ErrConflict), "skipped cannot be completed")
}

func TestRepeatedActionIsNoOp(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0))

	first, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	f.bus.reset()

	stale := first.Session.Version - 1
	second, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, &stale)
	require.NoError(t, err, "no-ops ignore the expected version")
	assert.Equal(t, first.Session.Version, second.Session.Version)
	assert.Empty(t, f.bus.types())
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1))

	state, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, intPtr(1))
	require.NoError(t, err)
	assert.Equal(t, 2, state.Session.Version)

	_, err = f.control.ApplyBlockAction(s.ID, blocks[1].ID, owner.ID, lifecycle.ActionActivate, intPtr(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, lifecycle.BlockPending, f.status(t, blocks[1].ID))
}

func TestActivatingClosesPreviouslyActiveBlock(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1))

	_, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	state, err := f.control.ApplyBlockAction(s.ID, blocks[1].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)

	active := 0
	for _, b := range state.Blocks {
		if b.Status == lifecycle.BlockActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
	assert.Equal(t, lifecycle.BlockClosed, state.Blocks[0].Status)
	assert.Equal(t, 1, state.Session.CurrentBlockIndex)
}

func TestBlockActionsRejectedOutsideLiveStates(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")

	draft := f.draftSession(t, owner, SessionInput{}, choice(0))
	draftBlocks := f.blocks(t, draft.ID)
	_, err := f.control.ApplyBlockAction(draft.ID, draftBlocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	assert.True(t, errors.Is(err, ErrConflict))

	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1))
	_, err = f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	_, err = f.control.PauseSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	_, err = f.control.ApplyBlockAction(s.ID, blocks[1].ID, owner.ID, lifecycle.ActionActivate, nil)
	assert.True(t, errors.Is(err, ErrConflict), "paused sessions refuse block actions")

	_, err = f.control.EndSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	_, err = f.control.ApplyBlockAction(s.ID, blocks[1].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ended")
}

func TestSkipCurrentBlockAdvancesCursor(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1), poll())

	state, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionSkip, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.BlockSkipped, state.Blocks[0].Status)
	assert.Equal(t, 1, state.Session.CurrentBlockIndex)

	state, err = f.control.ApplyBlockAction(s.ID, blocks[2].ID, owner.ID, lifecycle.ActionSkip, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Session.CurrentBlockIndex, "skipping another block leaves the cursor")
}

func TestNavigateStaysInBounds(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, _ := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1))

	state, err := f.control.Navigate(s.ID, owner.ID, false, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, state.Session.CurrentBlockIndex)

	state, err = f.control.Navigate(s.ID, owner.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Session.CurrentBlockIndex)

	version := state.Session.Version
	state, err = f.control.Navigate(s.ID, owner.ID, true, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, state.Session.CurrentBlockIndex)
	assert.Equal(t, version, state.Session.Version)
}

func TestJumpToBlock(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1), poll())

	state, err := f.control.JumpTo(s.ID, owner.ID, 2, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, state.Session.CurrentBlockIndex)
	assert.Equal(t, lifecycle.BlockPending, f.status(t, blocks[2].ID), "moving the cursor leaves statuses alone")

	version := state.Session.Version
	state, err = f.control.JumpTo(s.ID, owner.ID, 2, intPtr(version-1))
	require.NoError(t, err, "jumping to the current block is a no-op")
	assert.Equal(t, version, state.Session.Version)

	_, err = f.control.JumpTo(s.ID, owner.ID, 3, nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	draft := f.draftSession(t, owner, SessionInput{}, choice(0), choice(1))
	_, err = f.control.JumpTo(draft.ID, owner.ID, 1, nil)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestCloseScoresResponses(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(1))
	fast := f.join(t, s.SessionCode, "Fast")
	slow := f.join(t, s.SessionCode, "Slow")
	wrong := f.join(t, s.SessionCode, "Wrong")

	_, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)

	submit := func(p *models.Participant, selected int) {
		f.clock.Advance(time.Second)
		_, err := f.participants.SubmitResponse(p, blocks[0].ID, json.RawMessage(`{"selected":[`+joinInts([]int{selected})+`]}`))
		require.NoError(t, err)
	}
	submit(fast, 1)
	submit(wrong, 0)
	submit(slow, 1)

	_, err = f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionClose, nil)
	require.NoError(t, err)

	board, err := f.participants.Leaderboard(s.ID, true)
	require.NoError(t, err)
	require.Len(t, board, 3)
	assert.Equal(t, "Fast", board[0].DisplayName)
	assert.Equal(t, 130, board[0].TotalScore)
	assert.Equal(t, "Slow", board[1].DisplayName)
	assert.Equal(t, 120, board[1].TotalScore)
	assert.Equal(t, 0, board[2].TotalScore)
}

func TestResetTakesBackPoints(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0))
	p := f.join(t, s.SessionCode, "Ada")

	_, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	_, err = f.participants.SubmitResponse(p, blocks[0].ID, json.RawMessage(`{"selected":[0]}`))
	require.NoError(t, err)
	_, err = f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionClose, nil)
	require.NoError(t, err)

	var scored models.Participant
	require.NoError(t, f.db.First(&scored, p.ID).Error)
	assert.Positive(t, scored.TotalScore)

	_, err = f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionReset, nil)
	require.NoError(t, err)

	var after models.Participant
	require.NoError(t, f.db.First(&after, p.ID).Error)
	assert.Equal(t, 0, after.TotalScore)
	var responses int64
	f.db.Model(&models.Response{}).Where("block_id = ?", blocks[0].ID).Count(&responses)
	assert.Zero(t, responses)
}

func TestTimedBlockExpires(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	timed := choice(0)
	timed.TimeLimit = 30
	s, blocks := f.liveSession(t, owner, SessionInput{}, timed)

	state, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	require.NotNil(t, state.Blocks[0].DeadlineAt)
	assert.True(t, f.timers.Armed(blocks[0].ID))

	f.control.expireBlock(s.ID, blocks[0].ID)
	assert.Equal(t, lifecycle.BlockActive, f.status(t, blocks[0].ID), "early timers are ignored")

	f.clock.Advance(30 * time.Second)
	f.control.expireBlock(s.ID, blocks[0].ID)
	assert.Equal(t, lifecycle.BlockClosed, f.status(t, blocks[0].ID))
	assert.False(t, f.timers.Armed(blocks[0].ID))
}

func TestSessionDefaultTimeLimitApplies(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{TimeLimitPerQuestion: intPtr(20)}, choice(0))

	state, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	require.NotNil(t, state.Blocks[0].DeadlineAt)
	assert.WithinDuration(t, f.clock.Now().Add(20*time.Second), *state.Blocks[0].DeadlineAt, time.Millisecond)
}

func TestPauseAndResumeKeepRemainingTime(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	timed := choice(0)
	timed.TimeLimit = 60
	s, blocks := f.liveSession(t, owner, SessionInput{}, timed)

	_, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)

	f.clock.Advance(20 * time.Second)
	state, err := f.control.PauseSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.SessionPaused, state.Session.Status)
	assert.Nil(t, state.Blocks[0].DeadlineAt)
	assert.False(t, f.timers.Armed(blocks[0].ID))

	f.clock.Advance(10 * time.Minute)
	state, err = f.control.ResumeSession(s.ID, owner.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, lifecycle.SessionActive, state.Session.Status)
	require.NotNil(t, state.Blocks[0].DeadlineAt)
	assert.WithinDuration(t, f.clock.Now().Add(40*time.Second), *state.Blocks[0].DeadlineAt, time.Millisecond)
	assert.True(t, f.timers.Armed(blocks[0].ID))
}

func TestEndSessionClosesActiveBlockAndDropsTopic(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0))

	_, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, owner.ID, lifecycle.ActionActivate, nil)
	require.NoError(t, err)
	state, err := f.control.EndSession(s.ID, owner.ID, nil)
	require.NoError(t, err)

	assert.Equal(t, lifecycle.SessionEnded, state.Session.Status)
	assert.Equal(t, lifecycle.BlockClosed, state.Blocks[0].Status)
	assert.NotNil(t, state.Session.EndedAt)
	assert.Equal(t, []uint{s.ID}, f.bus.dropped)

	_, err = f.control.ResumeSession(s.ID, owner.ID, nil)
	assert.True(t, errors.Is(err, ErrConflict))
	_, err = f.control.Navigate(s.ID, owner.ID, true, nil)
	assert.True(t, errors.Is(err, ErrConflict))
}

func TestControlRequiresPermission(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	stranger := f.user(t, "stranger@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0))

	_, err := f.control.ApplyBlockAction(s.ID, blocks[0].ID, stranger.ID, lifecycle.ActionActivate, nil)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestConcurrentActivationsKeepOneActiveBlock(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	s, blocks := f.liveSession(t, owner, SessionInput{}, choice(0), choice(1), choice(2))

	var wg sync.WaitGroup
	for _, b := range blocks {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, _ = f.control.ApplyBlockAction(s.ID, id, owner.ID, lifecycle.ActionActivate, nil)
		}(b.ID)
	}
	wg.Wait()

	active := 0
	for _, b := range f.blocks(t, s.ID) {
		if b.Status == lifecycle.BlockActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}
