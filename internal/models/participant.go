package models

import (
	"time"

	"gorm.io/datatypes"
)

type Participant struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	SessionID   uint       `gorm:"not null;index" json:"session_id"`
	DisplayName string     `gorm:"size:100;not null" json:"display_name"`
	Token       string     `gorm:"size:64;uniqueIndex;not null" json:"-"`
	TotalScore  int        `gorm:"not null;default:0" json:"total_score"`
	JoinedAt    time.Time  `json:"joined_at"`
	LeftAt      *time.Time `json:"left_at,omitempty"`
}

type Response struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	SessionID     uint           `gorm:"not null;index" json:"session_id"`
	BlockID       uint           `gorm:"not null;uniqueIndex:idx_response_unique" json:"block_id"`
	ParticipantID uint           `gorm:"not null;uniqueIndex:idx_response_unique" json:"participant_id"`
	Payload       datatypes.JSON `json:"payload"`
	IsCorrect     bool           `gorm:"not null;default:false" json:"is_correct"`
	Score         int            `gorm:"not null;default:0" json:"score"`
	SubmittedAt   time.Time      `gorm:"index" json:"submitted_at"`
}
