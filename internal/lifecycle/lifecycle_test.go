package lifecycle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApply(t *testing.T) {
	tests := []struct {
		name    string
		from    BlockStatus
		action  BlockAction
		want    BlockStatus
		changed bool
		wantErr bool
	}{
		{name: "activate pending", from: BlockPending, action: ActionActivate, want: BlockActive, changed: true},
		{name: "activate active is no-op", from: BlockActive, action: ActionActivate, want: BlockActive},
		{name: "activate closed", from: BlockClosed, action: ActionActivate, wantErr: true},
		{name: "close active", from: BlockActive, action: ActionClose, want: BlockClosed, changed: true},
		{name: "close closed is no-op", from: BlockClosed, action: ActionClose, want: BlockClosed},
		{name: "close pending", from: BlockPending, action: ActionClose, wantErr: true},
		{name: "skip pending", from: BlockPending, action: ActionSkip, want: BlockSkipped, changed: true},
		{name: "skip active", from: BlockActive, action: ActionSkip, want: BlockSkipped, changed: true},
		{name: "skip completed", from: BlockCompleted, action: ActionSkip, wantErr: true},
		{name: "complete active", from: BlockActive, action: ActionComplete, want: BlockCompleted, changed: true},
		{name: "complete closed", from: BlockClosed, action: ActionComplete, want: BlockCompleted, changed: true},
		{name: "complete never activated", from: BlockPending, action: ActionComplete, wantErr: true},
		{name: "complete skipped", from: BlockSkipped, action: ActionComplete, wantErr: true},
		{name: "reset completed", from: BlockCompleted, action: ActionReset, want: BlockPending, changed: true},
		{name: "reset skipped", from: BlockSkipped, action: ActionReset, want: BlockPending, changed: true},
		{name: "reset pending is no-op", from: BlockPending, action: ActionReset, want: BlockPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Apply(tt.from, tt.action)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrIllegalTransition))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.To)
			assert.Equal(t, tt.changed, res.Changed)
		})
	}
}

func TestApplyUnknownAction(t *testing.T) {
	_, err := Apply(BlockPending, BlockAction("explode"))
	assert.Error(t, err)
}

func TestTransitionErrorMessage(t *testing.T) {
	_, err := Apply(BlockPending, ActionComplete)
	assert.EqualError(t, err, "cannot complete from pending")
}

func TestApplySession(t *testing.T) {
	tests := []struct {
		name    string
		from    SessionStatus
		action  SessionAction
		want    SessionStatus
		changed bool
		wantErr error
	}{
		{name: "start draft", from: SessionDraft, action: SessionStart, want: SessionWaiting, changed: true},
		{name: "go active from waiting", from: SessionWaiting, action: SessionGoActive, want: SessionActive, changed: true},
		{name: "pause active", from: SessionActive, action: SessionPause, want: SessionPaused, changed: true},
		{name: "pause paused is no-op", from: SessionPaused, action: SessionPause, want: SessionPaused},
		{name: "pause waiting", from: SessionWaiting, action: SessionPause, wantErr: ErrIllegalTransition},
		{name: "resume paused", from: SessionPaused, action: SessionResume, want: SessionActive, changed: true},
		{name: "resume waiting", from: SessionWaiting, action: SessionResume, wantErr: ErrIllegalTransition},
		{name: "end active", from: SessionActive, action: SessionEnd, want: SessionEnded, changed: true},
		{name: "end paused", from: SessionPaused, action: SessionEnd, want: SessionEnded, changed: true},
		{name: "end draft", from: SessionDraft, action: SessionEnd, wantErr: ErrIllegalTransition},
		{name: "end ended is no-op", from: SessionEnded, action: SessionEnd, want: SessionEnded},
		{name: "resume ended", from: SessionEnded, action: SessionResume, wantErr: ErrSessionClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := ApplySession(tt.from, tt.action)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.changed, changed)
		})
	}
}

func TestStartRequiresPendingBlock(t *testing.T) {
	_, _, err := Start(SessionDraft, nil)
	assert.ErrorIs(t, err, ErrNoPendingBlocks)

	_, _, err = Start(SessionDraft, []BlockStatus{BlockSkipped})
	assert.ErrorIs(t, err, ErrNoPendingBlocks)

	got, changed, err := Start(SessionDraft, []BlockStatus{BlockSkipped, BlockPending})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, SessionWaiting, got)
}

func TestCanMutateBlocks(t *testing.T) {
	assert.NoError(t, CanMutateBlocks(SessionWaiting))
	assert.NoError(t, CanMutateBlocks(SessionActive))
	assert.ErrorIs(t, CanMutateBlocks(SessionPaused), ErrSessionNotLive)
	assert.ErrorIs(t, CanMutateBlocks(SessionDraft), ErrSessionNotLive)
	assert.ErrorIs(t, CanMutateBlocks(SessionEnded), ErrSessionClosed)
}

func TestCursorBounds(t *testing.T) {
	for n := 1; n <= 5; n++ {
		for c := 0; c < n; c++ {
			cur := NewCursor(c, n)

			prev, moved := cur.Previous()
			if c == 0 {
				assert.False(t, moved)
				assert.Equal(t, 0, prev.Index)
			} else {
				assert.True(t, moved)
				assert.Equal(t, c-1, prev.Index)
			}

			next, moved := cur.Next()
			if c == n-1 {
				assert.False(t, moved)
				assert.Equal(t, c, next.Index)
			} else {
				assert.True(t, moved)
				assert.Equal(t, c+1, next.Index)
			}
		}
	}
}

func TestCursorEmpty(t *testing.T) {
	cur := NewCursor(3, 0)
	assert.Equal(t, 0, cur.Index)
	_, moved := cur.Next()
	assert.False(t, moved)
	_, moved = cur.Previous()
	assert.False(t, moved)
}

func TestCursorSkip(t *testing.T) {
	statuses := []BlockStatus{BlockPending, BlockActive, BlockPending}

	cur, out, err := NewCursor(1, 3).Skip(statuses)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Index)
	assert.Equal(t, BlockSkipped, out[1])
	assert.Equal(t, BlockActive, statuses[1], "input is not mutated")

	cur, out, err = NewCursor(2, 3).Skip(statuses)
	require.NoError(t, err)
	assert.Equal(t, 2, cur.Index, "last block does not advance")
	assert.Equal(t, BlockSkipped, out[2])

	_, _, err = NewCursor(0, 1).Skip([]BlockStatus{BlockCompleted})
	assert.ErrorIs(t, err, ErrIllegalTransition)
}

func TestCursorMoveTo(t *testing.T) {
	cur := NewCursor(0, 3)
	next, moved := cur.MoveTo(2)
	assert.True(t, moved)
	assert.Equal(t, 2, next.Index)

	_, moved = cur.MoveTo(3)
	assert.False(t, moved)
	_, moved = cur.MoveTo(-1)
	assert.False(t, moved)
}
