package services

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/gonasi/gonasi-sub007/internal/models"
)

// uploadBufferPercent is the headroom required on top of the file size.
const uploadBufferPercent = 10

const maxUploadNameLength = 255

// MaxUploadBytes caps a single file so size arithmetic stays in range.
const MaxUploadBytes int64 = 1 << 40

type UploadService struct {
	db      *gorm.DB
	orgs    *OrganizationService
	secret  []byte
	ttl     time.Duration
	baseURL string
	now     func() time.Time
}

func NewUploadService(db *gorm.DB, orgs *OrganizationService, secret string, ttl time.Duration, baseURL string) *UploadService {
	return &UploadService{
		db:      db,
		orgs:    orgs,
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}
}

type StorageUsage struct {
	OrganizationID uint  `json:"organization_id"`
	QuotaBytes     int64 `json:"quota_bytes"`
	ConfirmedBytes int64 `json:"confirmed_bytes"`
	PendingBytes   int64 `json:"pending_bytes"`
	RemainingBytes int64 `json:"remaining_bytes"`
}

// PrepareResult is returned for every prepare request. When OK is false no
// file row is created and no token is issued.
type PrepareResult struct {
	OK             bool               `json:"ok"`
	Message        string             `json:"message,omitempty"`
	ShortfallBytes int64              `json:"shortfall_bytes,omitempty"`
	File           *models.FileObject `json:"file,omitempty"`
	UploadToken    string             `json:"upload_token,omitempty"`
	UploadURL      string             `json:"upload_url,omitempty"`
	ExpiresAt      *time.Time         `json:"expires_at,omitempty"`
}

type uploadClaims struct {
	FileID         uint  `json:"file_id"`
	OrganizationID uint  `json:"organization_id"`
	SizeBytes      int64 `json:"size_bytes"`
	jwt.RegisteredClaims
}

func (s *UploadService) StorageUsage(orgID, userID uint) (*StorageUsage, error) {
	if _, err := s.orgs.requireRole(orgID, userID); err != nil {
		return nil, err
	}
	return s.usage(s.db, orgID)
}

func (s *UploadService) usage(tx *gorm.DB, orgID uint) (*StorageUsage, error) {
	var org models.Organization
	if err := tx.First(&org, orgID).Error; err != nil {
		return nil, notFound(err, "organization")
	}

	type row struct {
		Status string
		Total  int64
	}
	var rows []row
	if err := tx.Model(&models.FileObject{}).
		Select("status, COALESCE(SUM(size_bytes), 0) AS total").
		Where("organization_id = ?", orgID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	u := &StorageUsage{OrganizationID: orgID, QuotaBytes: org.StorageQuotaBytes}
	for _, r := range rows {
		switch r.Status {
		case models.FileStatusConfirmed:
			u.ConfirmedBytes = r.Total
		case models.FileStatusPending:
			u.PendingBytes = r.Total
		}
	}
	u.RemainingBytes = u.QuotaBytes - u.ConfirmedBytes - u.PendingBytes
	return u, nil
}

// requiredBytes is size plus the upload buffer, rounded up. It saturates at
// math.MaxInt64 instead of wrapping.
func requiredBytes(size int64) int64 {
	buffer := size/100*uploadBufferPercent + (size%100*uploadBufferPercent+99)/100
	if size > math.MaxInt64-buffer {
		return math.MaxInt64
	}
	return size + buffer
}

// PrepareFileUpload reserves room for a file in the organization's library
// and issues a signed upload token.
func (s *UploadService) PrepareFileUpload(orgID, userID uint, name string, size int64, mimeType string) (*PrepareResult, error) {
	if _, err := s.orgs.requireRole(orgID, userID, models.RoleOwner, models.RoleAdmin, models.RoleEditor); err != nil {
		return nil, err
	}
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxUploadNameLength {
		return nil, newError(ErrInvalidInput, "file name must be 1-255 characters")
	}
	if size <= 0 || size > MaxUploadBytes {
		return nil, newError(ErrInvalidInput, "file size must be between 1 byte and 1 TiB")
	}

	var result *PrepareResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		u, err := s.usage(tx, orgID)
		if err != nil {
			return err
		}
		need := requiredBytes(size)
		if u.RemainingBytes < need {
			result = &PrepareResult{
				Message:        fmt.Sprintf("not enough storage: %d more bytes needed", need-u.RemainingBytes),
				ShortfallBytes: need - u.RemainingBytes,
			}
			return nil
		}

		file := models.FileObject{
			OrganizationID: orgID,
			UploadedBy:     userID,
			StorageKey:     path.Join("orgs", fmt.Sprint(orgID), uuid.NewString(), path.Base(name)),
			Name:           name,
			MimeType:       mimeType,
			SizeBytes:      size,
			Status:         models.FileStatusPending,
		}
		if err := tx.Create(&file).Error; err != nil {
			return err
		}
		result = &PrepareResult{OK: true, File: &file}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !result.OK {
		return result, nil
	}

	expires := s.now().Add(s.ttl)
	token, err := s.signUpload(result.File, expires)
	if err != nil {
		return nil, err
	}
	result.UploadToken = token
	result.UploadURL = s.baseURL + "/" + result.File.StorageKey + "?token=" + url.QueryEscape(token)
	result.ExpiresAt = &expires
	return result, nil
}

func (s *UploadService) signUpload(file *models.FileObject, expires time.Time) (string, error) {
	claims := uploadClaims{
		FileID:         file.ID,
		OrganizationID: file.OrganizationID,
		SizeBytes:      file.SizeBytes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   file.StorageKey,
			IssuedAt:  jwt.NewNumericDate(s.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// ConfirmFileUpload marks the file named by a valid upload token as stored.
// Confirming twice returns the same file.
func (s *UploadService) ConfirmFileUpload(token string) (*models.FileObject, error) {
	var claims uploadClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, newError(ErrForbidden, "upload token expired")
		}
		return nil, newError(ErrForbidden, "invalid upload token")
	}

	var file models.FileObject
	if err := s.db.Where("id = ? AND organization_id = ?", claims.FileID, claims.OrganizationID).
		First(&file).Error; err != nil {
		return nil, notFound(err, "file")
	}
	if file.StorageKey != claims.Subject || file.SizeBytes != claims.SizeBytes {
		return nil, newError(ErrForbidden, "upload token does not match file")
	}
	if file.Status == models.FileStatusConfirmed {
		return &file, nil
	}

	now := s.now()
	if err := s.db.Model(&file).Updates(map[string]interface{}{
		"status":       models.FileStatusConfirmed,
		"confirmed_at": now,
	}).Error; err != nil {
		return nil, err
	}
	file.Status = models.FileStatusConfirmed
	file.ConfirmedAt = &now
	return &file, nil
}

func (s *UploadService) ListFiles(orgID, userID uint) ([]models.FileObject, error) {
	if _, err := s.orgs.requireRole(orgID, userID); err != nil {
		return nil, err
	}
	var files []models.FileObject
	err := s.db.Where("organization_id = ?", orgID).Order("created_at DESC").Find(&files).Error
	return files, err
}
