package services

import (
	"encoding/json"
	"time"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"github.com/gonasi/gonasi-sub007/internal/models"
)

const (
	EventSessionStatusChanged = "session_status_changed"
	EventBlockStatusChanged   = "block_status_changed"
	EventCursorMoved          = "cursor_moved"
	EventParticipantJoined    = "participant_joined"
	EventParticipantLeft      = "participant_left"
	EventResponseSubmitted    = "response_submitted"
	EventChatMessage          = "chat_message"
	EventReaction             = "reaction"
)

// Broadcaster delivers session events to connected participants and
// presenters.
type Broadcaster interface {
	Publish(sessionID uint, eventType string, data interface{})
	Drop(sessionID uint)
}

type event struct {
	Type string
	Data interface{}
}

type SessionStatusEvent struct {
	From    lifecycle.SessionStatus `json:"from"`
	To      lifecycle.SessionStatus `json:"to"`
	Version int                     `json:"version"`
}

type BlockStatusEvent struct {
	Block   PublicBlock           `json:"block"`
	From    lifecycle.BlockStatus `json:"from"`
	To      lifecycle.BlockStatus `json:"to"`
	Version int                   `json:"version"`
}

type CursorEvent struct {
	Index   int  `json:"index"`
	BlockID uint `json:"block_id"`
	Version int  `json:"version"`
}

type ResponseEvent struct {
	BlockID       uint `json:"block_id"`
	ParticipantID uint `json:"participant_id"`
	ResponseCount int  `json:"response_count"`
}

type ParticipantLeftEvent struct {
	ParticipantID uint   `json:"participant_id"`
	DisplayName   string `json:"display_name"`
}

type ChatEvent struct {
	ParticipantID uint      `json:"participant_id"`
	DisplayName   string    `json:"display_name"`
	Text          string    `json:"text"`
	SentAt        time.Time `json:"sent_at"`
}

type ReactionEvent struct {
	ParticipantID uint   `json:"participant_id"`
	Emoji         string `json:"emoji"`
}

// PublicBlock is a block as participants may see it: correct answers stay
// hidden until the block is closed or completed.
type PublicBlock struct {
	ID         uint                  `json:"id"`
	Position   int                   `json:"position"`
	PluginType string                `json:"plugin_type"`
	Title      string                `json:"title"`
	Options    []string              `json:"options,omitempty"`
	Correct    []int                 `json:"correct,omitempty"`
	Content    json.RawMessage       `json:"content,omitempty" swaggertype:"object"`
	TimeLimit  int                   `json:"time_limit"`
	Difficulty string                `json:"difficulty"`
	Status     lifecycle.BlockStatus `json:"status"`
	DeadlineAt *time.Time            `json:"deadline_at,omitempty"`
}

func publicBlock(b models.Block) PublicBlock {
	pb := PublicBlock{
		ID:         b.ID,
		Position:   b.Position,
		PluginType: b.PluginType,
		Title:      b.Title,
		TimeLimit:  b.TimeLimit,
		Difficulty: b.Difficulty,
		Status:     b.Status,
		DeadlineAt: b.DeadlineAt,
	}
	if !b.Scored() {
		pb.Content = json.RawMessage(b.Content)
		return pb
	}
	if c, err := parseChoice(b.Content); err == nil {
		pb.Options = c.Options
		if b.Status == lifecycle.BlockClosed || b.Status == lifecycle.BlockCompleted {
			pb.Correct = c.Correct
		}
	}
	return pb
}
