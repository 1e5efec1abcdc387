package models

import (
	"time"

	"github.com/gonasi/gonasi-sub007/internal/lifecycle"
)

type Session struct {
	ID                   uint                    `gorm:"primaryKey" json:"id"`
	OrganizationID       uint                    `gorm:"not null;index" json:"organization_id"`
	CreatedBy            uint                    `gorm:"not null;index" json:"created_by"`
	Name                 string                  `gorm:"size:255;not null" json:"name"`
	SessionCode          string                  `gorm:"size:6;index" json:"session_code"`
	Status               lifecycle.SessionStatus `gorm:"size:20;not null;default:'draft'" json:"status"`
	Visibility           string                  `gorm:"size:20;not null;default:'public'" json:"visibility"`
	SessionKey           string                  `gorm:"size:64" json:"-"`
	MaxParticipants      *int                    `json:"max_participants"`
	AllowLateJoin        bool                    `gorm:"not null" json:"allow_late_join"`
	ShowLeaderboard      bool                    `gorm:"not null" json:"show_leaderboard"`
	EnableChat           bool                    `gorm:"not null;default:false" json:"enable_chat"`
	EnableReactions      bool                    `gorm:"not null;default:false" json:"enable_reactions"`
	TimeLimitPerQuestion *int                    `json:"time_limit_per_question"`
	CurrentBlockIndex    int                     `gorm:"not null;default:0" json:"current_block_index"`
	Version              int                     `gorm:"not null;default:0" json:"version"`
	Blocks               []Block                 `gorm:"foreignKey:SessionID" json:"blocks,omitempty"`
	Editors              []SessionEditor         `gorm:"foreignKey:SessionID" json:"editors,omitempty"`
	StartedAt            *time.Time              `json:"started_at,omitempty"`
	PausedAt             *time.Time              `json:"paused_at,omitempty"`
	EndedAt              *time.Time              `json:"ended_at,omitempty"`
	CreatedAt            time.Time               `json:"created_at"`
	UpdatedAt            time.Time               `json:"updated_at"`
}

const (
	VisibilityPublic   = "public"
	VisibilityUnlisted = "unlisted"
	VisibilityPrivate  = "private"
)

type SessionEditor struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SessionID uint      `gorm:"not null;uniqueIndex:idx_session_editor" json:"session_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_session_editor" json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}
