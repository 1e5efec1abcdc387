package models

import (
	"time"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
	"gorm.io/datatypes"
)

type Block struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	SessionID   uint                  `gorm:"not null;uniqueIndex:idx_block_position" json:"session_id"`
	Position    int                   `gorm:"not null;uniqueIndex:idx_block_position" json:"position"`
	PluginType  string                `gorm:"size:50;not null" json:"plugin_type"`
	Title       string                `gorm:"size:255" json:"title"`
	Content     datatypes.JSON        `json:"content,omitempty"`
	TimeLimit   int                   `gorm:"not null;default:0" json:"time_limit"`
	Difficulty  string                `gorm:"size:20;not null;default:'medium'" json:"difficulty"`
	Status      lifecycle.BlockStatus `gorm:"size:20;not null;default:'pending'" json:"status"`
	ActivatedAt *time.Time            `json:"activated_at,omitempty"`
	DeadlineAt  *time.Time            `json:"deadline_at,omitempty"`
	RemainingMs int64                 `gorm:"not null;default:0" json:"-"`
	CreatedAt   time.Time             `json:"created_at"`
	UpdatedAt   time.Time             `json:"updated_at"`
}

const (
	PluginMultipleChoice = "multiple_choice"
	PluginTrueFalse      = "true_false"
	PluginPoll           = "poll"
	PluginOpenEnded      = "open_ended"
)

const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// Scored reports whether responses to this plugin have a right answer.
func (b Block) Scored() bool {
	return b.PluginType == PluginMultipleChoice || b.PluginType == PluginTrueFalse
}
