// Package lifecycle holds the status machines for live sessions and their
// blocks. It has no storage dependencies; services apply its results.
package lifecycle

import (
	"errors"
	"fmt"
)

type BlockStatus string

const (
	BlockPending   BlockStatus = "pending"
	BlockActive    BlockStatus = "active"
	BlockCompleted BlockStatus = "completed"
	BlockSkipped   BlockStatus = "skipped"
	BlockClosed    BlockStatus = "closed"
)

func (s BlockStatus) Valid() bool {
	switch s {
	case BlockPending, BlockActive, BlockCompleted, BlockSkipped, BlockClosed:
		return true
	}
	return false
}

type BlockAction string

const (
	ActionActivate BlockAction = "activate"
	ActionClose    BlockAction = "close"
	ActionSkip     BlockAction = "skip"
	ActionComplete BlockAction = "complete"
	ActionReset    BlockAction = "reset"
)

var ErrIllegalTransition = errors.New("illegal status transition")

// TransitionError reports which action was refused from which status.
type TransitionError struct {
	From   string
	Action string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error { return ErrIllegalTransition }

type blockRule struct {
	to   BlockStatus
	from []BlockStatus
}

var blockRules = map[BlockAction]blockRule{
	ActionActivate: {to: BlockActive, from: []BlockStatus{BlockPending}},
	ActionClose:    {to: BlockClosed, from: []BlockStatus{BlockActive}},
	ActionSkip:     {to: BlockSkipped, from: []BlockStatus{BlockPending, BlockActive}},
	ActionComplete: {to: BlockCompleted, from: []BlockStatus{BlockActive, BlockClosed}},
	ActionReset:    {to: BlockPending, from: []BlockStatus{BlockActive, BlockClosed, BlockSkipped, BlockCompleted}},
}

// Result is the outcome of a legal transition. Changed is false when the
// block was already in the target status.
type Result struct {
	From    BlockStatus
	To      BlockStatus
	Changed bool
}

// Apply evaluates action against the current status. Re-applying an action
// whose target is the current status succeeds without a change.
func Apply(from BlockStatus, action BlockAction) (Result, error) {
	rule, ok := blockRules[action]
	if !ok {
		return Result{}, fmt.Errorf("unknown block action %q", action)
	}
	if from == rule.to {
		return Result{From: from, To: from}, nil
	}
	for _, allowed := range rule.from {
		if allowed == from {
			return Result{From: from, To: rule.to, Changed: true}, nil
		}
	}
	return Result{}, &TransitionError{From: string(from), Action: string(action)}
}

// ParseAction maps a control-surface verb to an action.
func ParseAction(s string) (BlockAction, bool) {
	a := BlockAction(s)
	_, ok := blockRules[a]
	return a, ok
}
