package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/pricing"
	"github.com/gonasi/gonasi-sub007/internal/services"
)

type CourseHandler struct {
	courses *services.CourseService
}

func NewCourseHandler(courses *services.CourseService) *CourseHandler {
	return &CourseHandler{courses: courses}
}

type CreateCourseRequest struct {
	Title string `json:"title" binding:"required,max=255" example:"Intro to Go"`
}

// CreateCourse godoc
// @Summary      Create a course
// @Tags         pricing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Param        request body CreateCourseRequest true "Course data"
// @Success      201 {object} models.Course
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/organizations/{id}/courses [post]
func (h *CourseHandler) CreateCourse(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req CreateCourseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	course, err := h.courses.CreateCourse(orgID, currentUser(c), req.Title)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, course)
}

// ListCourses godoc
// @Summary      List courses with their tiers
// @Tags         pricing
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Success      200 {array} models.Course
// @Router       /api/v1/organizations/{id}/courses [get]
func (h *CourseHandler) ListCourses(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	courses, err := h.courses.ListCourses(orgID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, courses)
}

// AddTier godoc
// @Summary      Add a pricing tier
// @Tags         pricing
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Course ID"
// @Param        request body pricing.Tier true "Tier"
// @Success      201 {object} models.PricingTier
// @Failure      400 {object} ErrorResponse
// @Router       /api/v1/courses/{id}/tiers [post]
func (h *CourseHandler) AddTier(c *gin.Context) {
	courseID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req pricing.Tier
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}
	tier, err := h.courses.AddTier(courseID, currentUser(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tier)
}

// ListTiers godoc
// @Summary      List pricing tiers
// @Tags         pricing
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Course ID"
// @Success      200 {array} models.PricingTier
// @Router       /api/v1/courses/{id}/tiers [get]
func (h *CourseHandler) ListTiers(c *gin.Context) {
	courseID, ok := paramID(c, "id")
	if !ok {
		return
	}
	tiers, err := h.courses.ListTiers(courseID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tiers)
}

// GetPricingSummary godoc
// @Summary      Headline price for a course
// @Description  e.g. "Free per month", "USD 10.00 per year"
// @Tags         pricing
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Course ID"
// @Success      200 {object} services.PricingSummary
// @Router       /api/v1/courses/{id}/pricing/summary [get]
func (h *CourseHandler) GetPricingSummary(c *gin.Context) {
	courseID, ok := paramID(c, "id")
	if !ok {
		return
	}
	summary, err := h.courses.Summary(courseID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}
