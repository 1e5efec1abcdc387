package models

import "time"

type Organization struct {
	ID                uint                 `gorm:"primaryKey" json:"id"`
	Name              string               `gorm:"size:255;not null" json:"name"`
	Slug              string               `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	StorageQuotaBytes int64                `gorm:"not null;default:0" json:"storage_quota_bytes"`
	Members           []OrganizationMember `gorm:"foreignKey:OrganizationID" json:"members,omitempty"`
	CreatedAt         time.Time            `json:"created_at"`
}

type OrganizationMember struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	OrganizationID uint      `gorm:"not null;uniqueIndex:idx_org_member" json:"organization_id"`
	UserID         uint      `gorm:"not null;uniqueIndex:idx_org_member" json:"user_id"`
	User           User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role           string    `gorm:"size:20;not null" json:"role"`
	CreatedAt      time.Time `json:"created_at"`
}

const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleMember = "member"
)

func ValidRole(r string) bool {
	switch r {
	case RoleOwner, RoleAdmin, RoleEditor, RoleMember:
		return true
	}
	return false
}
