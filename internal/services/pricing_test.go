package services

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonasi/gonasi-sub007/internal/models"
	"github.com/gonasi/gonasi-sub007/internal/pricing"
	"github.com/gonasi/gonasi-sub007/internal/validation"
)

func newCourses(f *fixture) *CourseService {
	c := NewCourseService(f.db, f.orgs, pricing.NewValidator(validation.New()), pricing.DefaultRates(decimal.NewFromInt(130)))
	c.now = f.clock.Now
	return c
}

func TestCourseTiersAndSummary(t *testing.T) {
	f := newFixture(t)
	courses := newCourses(f)
	owner := f.user(t, "owner@example.com")
	org := f.org(t, owner)

	course, err := courses.CreateCourse(org.ID, owner.ID, "  Intro to Go ")
	require.NoError(t, err)
	assert.Equal(t, "Intro to Go", course.Title)

	_, err = courses.AddTier(course.ID, owner.ID, pricing.Tier{
		TierName: "Pro", Price: decimal.NewFromInt(12), CurrencyCode: pricing.CurrencyUSD,
		PaymentFrequency: pricing.Monthly, IsActive: true,
	})
	require.NoError(t, err)
	_, err = courses.AddTier(course.ID, owner.ID, pricing.Tier{
		TierName: "Local", Price: decimal.NewFromInt(1300), CurrencyCode: pricing.CurrencyKES,
		PaymentFrequency: pricing.Monthly, IsActive: true,
	})
	require.NoError(t, err)
	_, err = courses.AddTier(course.ID, owner.ID, pricing.Tier{
		TierName: "Retired", Price: decimal.NewFromInt(1), CurrencyCode: pricing.CurrencyUSD,
		PaymentFrequency: pricing.Monthly,
	})
	require.NoError(t, err)

	summary, err := courses.Summary(course.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "KES 1,300.00 per month", summary.Summary)
	require.Len(t, summary.Tiers, 2, "inactive tiers are left out")
	assert.Equal(t, "Local", summary.Tiers[0].TierName)

	listed, err := courses.ListCourses(org.ID, owner.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Len(t, listed[0].PricingTiers, 3)
}

func TestAddTierRejectsBrokenTier(t *testing.T) {
	f := newFixture(t)
	courses := newCourses(f)
	owner := f.user(t, "owner@example.com")
	member := f.user(t, "member@example.com")
	org := f.org(t, owner)
	_, err := f.orgs.AddMember(org.ID, owner.ID, member.Email, models.RoleMember)
	require.NoError(t, err)
	course, err := courses.CreateCourse(org.ID, owner.ID, "Course")
	require.NoError(t, err)

	promo := decimal.NewFromInt(20)
	_, err = courses.AddTier(course.ID, owner.ID, pricing.Tier{
		Price: decimal.NewFromInt(10), PromotionalPrice: &promo, PaymentFrequency: pricing.Monthly,
	})
	var verr *validation.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "currency_code")
	assert.Contains(t, verr.Fields, "promotional_price")

	_, err = courses.AddTier(course.ID, member.ID, pricing.Tier{IsFree: true, PaymentFrequency: pricing.Monthly})
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = courses.ListTiers(course.ID+100, owner.ID)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = courses.CreateCourse(org.ID, owner.ID, " ")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
