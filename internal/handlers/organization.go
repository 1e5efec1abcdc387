package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/gonasi/gonasi-sub007/internal/services"
)

type OrganizationHandler struct {
	orgService *services.OrganizationService
}

func NewOrganizationHandler(orgService *services.OrganizationService) *OrganizationHandler {
	return &OrganizationHandler{orgService: orgService}
}

type CreateOrganizationRequest struct {
	Name string `json:"name" binding:"required,max=255" example:"Nairobi Coding School"`
	Slug string `json:"slug" binding:"max=100" example:"nairobi-coding"`
}

type AddMemberRequest struct {
	Email string `json:"email" binding:"required,email" example:"editor@example.com"`
	Role  string `json:"role" binding:"required" example:"editor"`
}

// CreateOrganization godoc
// @Summary      Create an organization
// @Description  The caller becomes its owner
// @Tags         organizations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        request body CreateOrganizationRequest true "Organization data"
// @Success      201 {object} Organization
// @Failure      400 {object} ErrorResponse
// @Failure      409 {object} ErrorResponse
// @Router       /api/v1/organizations [post]
func (h *OrganizationHandler) CreateOrganization(c *gin.Context) {
	var req CreateOrganizationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	org, err := h.orgService.CreateOrganization(currentUser(c), req.Name, req.Slug)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, org)
}

// ListOrganizations godoc
// @Summary      List my organizations
// @Tags         organizations
// @Produce      json
// @Security     BearerAuth
// @Success      200 {array} Organization
// @Router       /api/v1/organizations [get]
func (h *OrganizationHandler) ListOrganizations(c *gin.Context) {
	orgs, err := h.orgService.ListForUser(currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orgs)
}

// GetOrganization godoc
// @Summary      Get an organization
// @Tags         organizations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Success      200 {object} Organization
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/organizations/{id} [get]
func (h *OrganizationHandler) GetOrganization(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	org, err := h.orgService.GetOrganization(orgID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, org)
}

// ListMembers godoc
// @Summary      List organization members
// @Tags         organizations
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Success      200 {array} models.OrganizationMember
// @Failure      403 {object} ErrorResponse
// @Router       /api/v1/organizations/{id}/members [get]
func (h *OrganizationHandler) ListMembers(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	members, err := h.orgService.ListMembers(orgID, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, members)
}

// AddMember godoc
// @Summary      Add or re-role a member
// @Description  Owners and admins only; only owners may grant ownership
// @Tags         organizations
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id path int true "Organization ID"
// @Param        request body AddMemberRequest true "Member data"
// @Success      200 {object} models.OrganizationMember
// @Failure      400 {object} ErrorResponse
// @Failure      403 {object} ErrorResponse
// @Failure      404 {object} ErrorResponse
// @Router       /api/v1/organizations/{id}/members [post]
func (h *OrganizationHandler) AddMember(c *gin.Context) {
	orgID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	member, err := h.orgService.AddMember(orgID, currentUser(c), req.Email, req.Role)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, member)
}
