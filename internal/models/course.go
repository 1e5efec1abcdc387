package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Course struct {
	ID             uint          `gorm:"primaryKey" json:"id"`
	OrganizationID uint          `gorm:"not null;index" json:"organization_id"`
	Title          string        `gorm:"size:255;not null" json:"title"`
	PricingTiers   []PricingTier `gorm:"foreignKey:CourseID" json:"pricing_tiers,omitempty"`
	CreatedAt      time.Time     `json:"created_at"`
}

type PricingTier struct {
	ID                 uint             `gorm:"primaryKey" json:"id"`
	CourseID           uint             `gorm:"not null;index" json:"course_id"`
	TierName           string           `gorm:"size:100" json:"tier_name"`
	IsFree             bool             `gorm:"not null;default:false" json:"is_free"`
	Price              decimal.Decimal  `gorm:"type:numeric(12,2);not null;default:0" json:"price"`
	CurrencyCode       string           `gorm:"size:3" json:"currency_code"`
	PromotionalPrice   *decimal.Decimal `gorm:"type:numeric(12,2)" json:"promotional_price"`
	PromotionStartDate *time.Time       `json:"promotion_start_date"`
	PromotionEndDate   *time.Time       `json:"promotion_end_date"`
	PaymentFrequency   string           `gorm:"size:20;not null" json:"payment_frequency"`
	IsActive           bool             `gorm:"not null" json:"is_active"`
	IsPopular          bool             `gorm:"not null;default:false" json:"is_popular"`
	IsRecommended      bool             `gorm:"not null;default:false" json:"is_recommended"`
	CreatedAt          time.Time        `json:"created_at"`
}
