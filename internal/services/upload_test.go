package services

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonasi/gonasi-sub007/internal/models"
)

func newUploads(f *fixture) *UploadService {
	u := NewUploadService(f.db, f.orgs, "upload-secret", 15*time.Minute, "https://files.example.com/")
	u.now = f.clock.Now
	return u
}

func setQuota(t *testing.T, f *fixture, orgID uint, quota int64) {
	t.Helper()
	require.NoError(t, f.db.Model(&models.Organization{}).Where("id = ?", orgID).
		Update("storage_quota_bytes", quota).Error)
}

func TestRequiredBytesRoundsUp(t *testing.T) {
	assert.Equal(t, int64(110), requiredBytes(100))
	assert.Equal(t, int64(2), requiredBytes(1))
	assert.Equal(t, int64(1100), requiredBytes(1000))
	assert.Equal(t, int64(1102), requiredBytes(1001))

	huge := int64(math.MaxInt64/10 + 1)
	assert.Equal(t, huge+huge/10+1, requiredBytes(huge), "no overflow past MaxInt64/10")
	assert.Equal(t, int64(math.MaxInt64), requiredBytes(math.MaxInt64))
}

func TestPrepareUploadReservesSpace(t *testing.T) {
	f := newFixture(t)
	uploads := newUploads(f)
	owner := f.user(t, "owner@example.com")
	org := f.org(t, owner)
	setQuota(t, f, org.ID, 1000)

	res, err := uploads.PrepareFileUpload(org.ID, owner.ID, "slides/deck.pdf", 500, "application/pdf")
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.True(t, strings.HasPrefix(res.File.StorageKey, "orgs/"))
	assert.True(t, strings.HasSuffix(res.File.StorageKey, "/deck.pdf"))
	assert.Equal(t, models.FileStatusPending, res.File.Status)
	assert.True(t, strings.HasPrefix(res.UploadURL, "https://files.example.com/orgs/"))
	assert.Contains(t, res.UploadURL, "?token=")
	require.NotNil(t, res.ExpiresAt)
	assert.Equal(t, f.clock.Now().Add(15*time.Minute), *res.ExpiresAt)

	usage, err := uploads.StorageUsage(org.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(500), usage.PendingBytes)
	assert.Equal(t, int64(500), usage.RemainingBytes)

	short, err := uploads.PrepareFileUpload(org.ID, owner.ID, "video.mp4", 500, "video/mp4")
	require.NoError(t, err)
	assert.False(t, short.OK)
	assert.Equal(t, int64(50), short.ShortfallBytes)
	assert.Nil(t, short.File)
	assert.Empty(t, short.UploadToken)

	files, err := uploads.ListFiles(org.ID, owner.ID)
	require.NoError(t, err)
	assert.Len(t, files, 1, "a refused prepare creates no file")
}

func TestPrepareUploadRules(t *testing.T) {
	f := newFixture(t)
	uploads := newUploads(f)
	owner := f.user(t, "owner@example.com")
	member := f.user(t, "member@example.com")
	org := f.org(t, owner)
	_, err := f.orgs.AddMember(org.ID, owner.ID, member.Email, models.RoleMember)
	require.NoError(t, err)

	_, err = uploads.PrepareFileUpload(org.ID, member.ID, "a.png", 10, "image/png")
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = uploads.PrepareFileUpload(org.ID, owner.ID, "", 10, "image/png")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = uploads.PrepareFileUpload(org.ID, owner.ID, "a.png", 0, "image/png")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	_, err = uploads.PrepareFileUpload(org.ID, owner.ID, "a.iso", MaxUploadBytes+1, "application/octet-stream")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	setQuota(t, f, org.ID, 1000)
	res, err := uploads.PrepareFileUpload(org.ID, owner.ID, "a.iso", MaxUploadBytes, "application/octet-stream")
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Equal(t, requiredBytes(MaxUploadBytes)-1000, res.ShortfallBytes)

	_, err = uploads.ListFiles(org.ID, member.ID)
	assert.NoError(t, err, "members can browse the library")
}

func TestConfirmUpload(t *testing.T) {
	f := newFixture(t)
	uploads := newUploads(f)
	owner := f.user(t, "owner@example.com")
	org := f.org(t, owner)

	res, err := uploads.PrepareFileUpload(org.ID, owner.ID, "logo.png", 2048, "image/png")
	require.NoError(t, err)
	require.True(t, res.OK)

	file, err := uploads.ConfirmFileUpload(res.UploadToken)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusConfirmed, file.Status)
	require.NotNil(t, file.ConfirmedAt)

	again, err := uploads.ConfirmFileUpload(res.UploadToken)
	require.NoError(t, err)
	assert.Equal(t, file.ID, again.ID)

	usage, err := uploads.StorageUsage(org.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2048), usage.ConfirmedBytes)
	assert.Zero(t, usage.PendingBytes)

	_, err = uploads.ConfirmFileUpload("not-a-token")
	assert.True(t, errors.Is(err, ErrForbidden))

	forged := NewUploadService(f.db, f.orgs, "another-secret", time.Minute, "")
	forged.now = f.clock.Now
	_, err = forged.ConfirmFileUpload(res.UploadToken)
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestConfirmUploadExpires(t *testing.T) {
	f := newFixture(t)
	uploads := newUploads(f)
	owner := f.user(t, "owner@example.com")
	org := f.org(t, owner)

	res, err := uploads.PrepareFileUpload(org.ID, owner.ID, "notes.txt", 10, "text/plain")
	require.NoError(t, err)

	f.clock.Advance(16 * time.Minute)
	_, err = uploads.ConfirmFileUpload(res.UploadToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Contains(t, err.Error(), "expired")
}
