package services

import (
	"errors"
	"regexp"
	"strings"

	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/models"
)

const DefaultStorageQuotaBytes int64 = 1 << 30

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

type OrganizationService struct {
	db *gorm.DB
}

func NewOrganizationService(db *gorm.DB) *OrganizationService {
	return &OrganizationService{db: db}
}

// CreateOrganization creates an organization owned by userID.
func (s *OrganizationService) CreateOrganization(userID uint, name, slug string) (*models.Organization, error) {
	if strings.TrimSpace(name) == "" {
		return nil, newError(ErrInvalidInput, "organization name is required")
	}
	if slug == "" {
		slug = name
	}
	slug = strings.Trim(slugRe.ReplaceAllString(strings.ToLower(slug), "-"), "-")
	if slug == "" {
		return nil, newError(ErrInvalidInput, "organization slug is invalid")
	}

	var count int64
	if err := s.db.Model(&models.Organization{}).Where("slug = ?", slug).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, newError(ErrConflict, "organization slug already taken")
	}

	org := models.Organization{Name: name, Slug: slug, StorageQuotaBytes: DefaultStorageQuotaBytes}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&org).Error; err != nil {
			return err
		}
		return tx.Create(&models.OrganizationMember{
			OrganizationID: org.ID,
			UserID:         userID,
			Role:           models.RoleOwner,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &org, nil
}

func (s *OrganizationService) GetOrganization(orgID, userID uint) (*models.Organization, error) {
	if _, err := s.requireRole(orgID, userID); err != nil {
		return nil, err
	}
	var org models.Organization
	if err := s.db.Preload("Members.User").First(&org, orgID).Error; err != nil {
		return nil, notFound(err, "organization")
	}
	return &org, nil
}

func (s *OrganizationService) ListForUser(userID uint) ([]models.Organization, error) {
	var orgs []models.Organization
	err := s.db.Joins("JOIN organization_members om ON om.organization_id = organizations.id").
		Where("om.user_id = ?", userID).
		Order("organizations.created_at DESC").
		Find(&orgs).Error
	return orgs, err
}

// AddMember adds or re-roles a user by email. Only owners and admins may do
// this, and only owners may grant ownership.
func (s *OrganizationService) AddMember(orgID, actorID uint, email, role string) (*models.OrganizationMember, error) {
	if !models.ValidRole(role) {
		return nil, newError(ErrInvalidInput, "unknown role")
	}
	actorRole, err := s.requireRole(orgID, actorID, models.RoleOwner, models.RoleAdmin)
	if err != nil {
		return nil, err
	}
	if role == models.RoleOwner && actorRole != models.RoleOwner {
		return nil, newError(ErrForbidden, "only owners can add owners")
	}

	var user models.User
	if err := s.db.Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		return nil, notFound(err, "user")
	}

	var member models.OrganizationMember
	err = s.db.Where("organization_id = ? AND user_id = ?", orgID, user.ID).First(&member).Error
	switch {
	case err == nil:
		member.Role = role
		if err := s.db.Save(&member).Error; err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		member = models.OrganizationMember{OrganizationID: orgID, UserID: user.ID, Role: role}
		if err := s.db.Create(&member).Error; err != nil {
			return nil, err
		}
	default:
		return nil, err
	}
	member.User = user
	return &member, nil
}

func (s *OrganizationService) ListMembers(orgID, userID uint) ([]models.OrganizationMember, error) {
	if _, err := s.requireRole(orgID, userID); err != nil {
		return nil, err
	}
	var members []models.OrganizationMember
	err := s.db.Preload("User").Where("organization_id = ?", orgID).
		Order("created_at ASC").Find(&members).Error
	return members, err
}

func (s *OrganizationService) MemberRole(orgID, userID uint) (string, error) {
	var member models.OrganizationMember
	if err := s.db.Where("organization_id = ? AND user_id = ?", orgID, userID).First(&member).Error; err != nil {
		return "", err
	}
	return member.Role, nil
}

// requireRole returns the caller's role, failing when they are not a member
// or, when roles are given, hold none of them.
func (s *OrganizationService) requireRole(orgID, userID uint, roles ...string) (string, error) {
	role, err := s.MemberRole(orgID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", newError(ErrForbidden, "not a member of this organization")
		}
		return "", err
	}
	if len(roles) == 0 {
		return role, nil
	}
	for _, r := range roles {
		if r == role {
			return role, nil
		}
	}
	return "", newError(ErrForbidden, "insufficient organization role")
}

// CanControlSession reports whether userID may author or present session:
// its creator, one of its editors, or an owner/admin of its organization.
func (s *OrganizationService) CanControlSession(userID uint, session *models.Session) (bool, error) {
	if session.CreatedBy == userID {
		return true, nil
	}
	var editors int64
	if err := s.db.Model(&models.SessionEditor{}).
		Where("session_id = ? AND user_id = ?", session.ID, userID).
		Count(&editors).Error; err != nil {
		return false, err
	}
	if editors > 0 {
		return true, nil
	}
	role, err := s.MemberRole(session.OrganizationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return role == models.RoleOwner || role == models.RoleAdmin, nil
}
