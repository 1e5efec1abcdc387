package services

import (
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/pricing"
)

type CourseService struct {
	db        *gorm.DB
	orgs      *OrganizationService
	validator *pricing.Validator
	rates     pricing.Rates
	now       func() time.Time
}

func NewCourseService(db *gorm.DB, orgs *OrganizationService, v *pricing.Validator, rates pricing.Rates) *CourseService {
	return &CourseService{db: db, orgs: orgs, validator: v, rates: rates, now: time.Now}
}

type PricingSummary struct {
	CourseID uint           `json:"course_id"`
	Summary  string         `json:"summary"`
	Tiers    []pricing.Tier `json:"tiers"`
}

func (s *CourseService) CreateCourse(orgID, userID uint, title string) (*models.Course, error) {
	if _, err := s.orgs.requireRole(orgID, userID, models.RoleOwner, models.RoleAdmin, models.RoleEditor); err != nil {
		return nil, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, newError(ErrInvalidInput, "title is required")
	}
	course := models.Course{OrganizationID: orgID, Title: title}
	if err := s.db.Create(&course).Error; err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *CourseService) ListCourses(orgID, userID uint) ([]models.Course, error) {
	if _, err := s.orgs.requireRole(orgID, userID); err != nil {
		return nil, err
	}
	var courses []models.Course
	err := s.db.Preload("PricingTiers").Where("organization_id = ?", orgID).
		Order("created_at DESC").Find(&courses).Error
	return courses, err
}

func (s *CourseService) loadCourse(courseID, userID uint, roles ...string) (*models.Course, error) {
	var course models.Course
	if err := s.db.First(&course, courseID).Error; err != nil {
		return nil, notFound(err, "course")
	}
	if _, err := s.orgs.requireRole(course.OrganizationID, userID, roles...); err != nil {
		return nil, err
	}
	return &course, nil
}

func (s *CourseService) AddTier(courseID, userID uint, t pricing.Tier) (*models.PricingTier, error) {
	if _, err := s.loadCourse(courseID, userID, models.RoleOwner, models.RoleAdmin, models.RoleEditor); err != nil {
		return nil, err
	}
	if err := s.validator.Validate(t); err != nil {
		return nil, err
	}

	row := tierRow(t)
	row.CourseID = courseID
	if err := s.db.Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *CourseService) ListTiers(courseID, userID uint) ([]models.PricingTier, error) {
	if _, err := s.loadCourse(courseID, userID); err != nil {
		return nil, err
	}
	var tiers []models.PricingTier
	err := s.db.Where("course_id = ?", courseID).Order("id ASC").Find(&tiers).Error
	return tiers, err
}

// Summary returns the course's active tiers cheapest first and the headline
// price line.
func (s *CourseService) Summary(courseID, userID uint) (*PricingSummary, error) {
	rows, err := s.ListTiers(courseID, userID)
	if err != nil {
		return nil, err
	}
	tiers := make([]pricing.Tier, len(rows))
	for i, r := range rows {
		tiers[i] = tierFromRow(r)
	}
	now := s.now()
	return &PricingSummary{
		CourseID: courseID,
		Summary:  pricing.LowestSummary(tiers, s.rates, now),
		Tiers:    pricing.Sort(tiers, s.rates, now),
	}, nil
}

func tierRow(t pricing.Tier) models.PricingTier {
	return models.PricingTier{
		TierName:           t.TierName,
		IsFree:             t.IsFree,
		Price:              t.Price,
		CurrencyCode:       t.CurrencyCode,
		PromotionalPrice:   t.PromotionalPrice,
		PromotionStartDate: t.PromotionStartDate,
		PromotionEndDate:   t.PromotionEndDate,
		PaymentFrequency:   t.PaymentFrequency,
		IsActive:           t.IsActive,
		IsPopular:          t.IsPopular,
		IsRecommended:      t.IsRecommended,
	}
}

func tierFromRow(r models.PricingTier) pricing.Tier {
	return pricing.Tier{
		TierName:           r.TierName,
		IsFree:             r.IsFree,
		Price:              r.Price,
		CurrencyCode:       r.CurrencyCode,
		PromotionalPrice:   r.PromotionalPrice,
		PromotionStartDate: r.PromotionStartDate,
		PromotionEndDate:   r.PromotionEndDate,
		PaymentFrequency:   r.PaymentFrequency,
		IsActive:           r.IsActive,
		IsPopular:          r.IsPopular,
		IsRecommended:      r.IsRecommended,
	}
}
