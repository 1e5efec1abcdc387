package models

import "time"

type FileObject struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	OrganizationID uint       `gorm:"not null;index" json:"organization_id"`
	UploadedBy     uint       `gorm:"not null" json:"uploaded_by"`
	StorageKey     string     `gorm:"size:255;uniqueIndex;not null" json:"storage_key"`
	Name           string     `gorm:"size:255;not null" json:"name"`
	MimeType       string     `gorm:"size:100" json:"mime_type"`
	SizeBytes      int64      `gorm:"not null" json:"size_bytes"`
	Status         string     `gorm:"size:20;not null;default:'pending'" json:"status"`
	ConfirmedAt    *time.Time `json:"confirmed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

const (
	FileStatusPending   = "pending"
	FileStatusConfirmed = "confirmed"
)
