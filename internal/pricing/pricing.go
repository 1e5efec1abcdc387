// Package pricing validates course pricing tiers and picks the tier shown as
// a course's headline price.
package pricing

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/gonasi/gonasi-sub007/internal/validation"
)

const (
	CurrencyUSD = "USD"
	CurrencyKES = "KES"
)

const (
	Monthly    = "monthly"
	BiMonthly  = "bi_monthly"
	Quarterly  = "quarterly"
	SemiAnnual = "semi_annual"
	Annual     = "annual"
)

var frequencyRank = map[string]int{
	Monthly:    0,
	BiMonthly:  1,
	Quarterly:  2,
	SemiAnnual: 3,
	Annual:     4,
}

var frequencyPeriod = map[string]string{
	Monthly:    "month",
	BiMonthly:  "2 months",
	Quarterly:  "3 months",
	SemiAnnual: "6 months",
	Annual:     "year",
}

// Tier is the input shape of a pricing tier.
type Tier struct {
	TierName           string           `json:"tier_name"`
	IsFree             bool             `json:"is_free"`
	Price              decimal.Decimal  `json:"price"`
	CurrencyCode       string           `json:"currency_code" validate:"omitempty,oneof=USD KES"`
	PromotionalPrice   *decimal.Decimal `json:"promotional_price"`
	PromotionStartDate *time.Time       `json:"promotion_start_date"`
	PromotionEndDate   *time.Time       `json:"promotion_end_date"`
	PaymentFrequency   string           `json:"payment_frequency" validate:"required,oneof=monthly bi_monthly quarterly semi_annual annual"`
	IsActive           bool             `json:"is_active"`
	IsPopular          bool             `json:"is_popular"`
	IsRecommended      bool             `json:"is_recommended"`
}

func (t Tier) hasPromotion() bool {
	return t.PromotionalPrice != nil || t.PromotionStartDate != nil || t.PromotionEndDate != nil
}

const (
	tagFreePrice      = "free_price"
	tagFreePromotion  = "free_promotion"
	tagPaidPrice      = "paid_price"
	tagPaidCurrency   = "paid_currency"
	tagPromoBelow     = "promo_below_price"
	tagPromoNegative  = "promo_negative"
	tagPromotionRange = "promotion_range"
)

var tierMessages = map[string]string{
	tagFreePrice:      "{0} must be 0 for a free tier",
	tagFreePromotion:  "{0} cannot be set on a free tier",
	tagPaidPrice:      "{0} must be greater than 0 for a paid tier",
	tagPaidCurrency:   "{0} is required for a paid tier",
	tagPromoBelow:     "{0} must be lower than the regular price",
	tagPromoNegative:  "{0} cannot be negative",
	tagPromotionRange: "{0} must be after the promotion start date",
}

func tierRules(sl validator.StructLevel) {
	t := sl.Current().Interface().(Tier)

	if t.IsFree {
		if !t.Price.IsZero() {
			sl.ReportError(t.Price, "price", "Price", tagFreePrice, "")
		}
		if t.PromotionalPrice != nil {
			sl.ReportError(t.PromotionalPrice, "promotional_price", "PromotionalPrice", tagFreePromotion, "")
		}
		if t.PromotionStartDate != nil {
			sl.ReportError(t.PromotionStartDate, "promotion_start_date", "PromotionStartDate", tagFreePromotion, "")
		}
		if t.PromotionEndDate != nil {
			sl.ReportError(t.PromotionEndDate, "promotion_end_date", "PromotionEndDate", tagFreePromotion, "")
		}
		return
	}

	if !t.Price.IsPositive() {
		sl.ReportError(t.Price, "price", "Price", tagPaidPrice, "")
	}
	if t.CurrencyCode == "" {
		sl.ReportError(t.CurrencyCode, "currency_code", "CurrencyCode", tagPaidCurrency, "")
	}
	if p := t.PromotionalPrice; p != nil {
		switch {
		case p.IsNegative():
			sl.ReportError(p, "promotional_price", "PromotionalPrice", tagPromoNegative, "")
		case p.GreaterThanOrEqual(t.Price):
			sl.ReportError(p, "promotional_price", "PromotionalPrice", tagPromoBelow, "")
		}
	}
	if t.PromotionStartDate != nil && t.PromotionEndDate != nil &&
		!t.PromotionStartDate.Before(*t.PromotionEndDate) {
		sl.ReportError(t.PromotionEndDate, "promotion_end_date", "PromotionEndDate", tagPromotionRange, "")
	}
}

// Validator checks tiers at the input boundary.
type Validator struct {
	v *validation.Validator
}

func NewValidator(v *validation.Validator) *Validator {
	v.RegisterStructRule(tierRules, tierMessages, Tier{})
	return &Validator{v: v}
}

// Validate returns a *validation.Error listing every broken invariant.
func (pv *Validator) Validate(t Tier) error {
	return pv.v.Struct(t)
}
