package services

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonasi/gonasi-sub007/internal/models"
)

func TestCreateOrganizationSlug(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")

	org, err := f.orgs.CreateOrganization(owner.ID, "Acme Learning!", "")
	require.NoError(t, err)
	assert.Equal(t, "acme-learning", org.Slug)
	assert.Equal(t, DefaultStorageQuotaBytes, org.StorageQuotaBytes)

	role, err := f.orgs.MemberRole(org.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, role)

	_, err = f.orgs.CreateOrganization(owner.ID, "Acme learning", "")
	assert.True(t, errors.Is(err, ErrConflict))
	_, err = f.orgs.CreateOrganization(owner.ID, "  ", "")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestMemberRoles(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	admin := f.user(t, "admin@example.com")
	member := f.user(t, "member@example.com")
	stranger := f.user(t, "stranger@example.com")
	org := f.org(t, owner)

	_, err := f.orgs.AddMember(org.ID, owner.ID, admin.Email, "wizard")
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.orgs.AddMember(org.ID, owner.ID, " ADMIN@example.com ", models.RoleAdmin)
	require.NoError(t, err)
	_, err = f.orgs.AddMember(org.ID, admin.ID, member.Email, models.RoleOwner)
	assert.True(t, errors.Is(err, ErrForbidden), "admins cannot grant ownership")
	_, err = f.orgs.AddMember(org.ID, admin.ID, member.Email, models.RoleMember)
	require.NoError(t, err)
	_, err = f.orgs.AddMember(org.ID, member.ID, stranger.Email, models.RoleMember)
	assert.True(t, errors.Is(err, ErrForbidden))

	members, err := f.orgs.ListMembers(org.ID, member.ID)
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.Equal(t, owner.Email, members[0].User.Email)

	_, err = f.orgs.ListMembers(org.ID, stranger.ID)
	assert.True(t, errors.Is(err, ErrForbidden))
	_, err = f.orgs.GetOrganization(org.ID, stranger.ID)
	assert.True(t, errors.Is(err, ErrForbidden))

	mine, err := f.orgs.ListForUser(member.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, org.ID, mine[0].ID)
}

func TestCanControlSession(t *testing.T) {
	f := newFixture(t)
	owner := f.user(t, "owner@example.com")
	admin := f.user(t, "admin@example.com")
	member := f.user(t, "member@example.com")
	org := f.org(t, owner)
	_, err := f.orgs.AddMember(org.ID, owner.ID, admin.Email, models.RoleAdmin)
	require.NoError(t, err)
	_, err = f.orgs.AddMember(org.ID, owner.ID, member.Email, models.RoleEditor)
	require.NoError(t, err)

	s, err := f.sessions.CreateSession(org.ID, member.ID, SessionInput{Name: "Mine"})
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		user models.User
		want bool
	}{
		{"creator", member, true},
		{"org admin", admin, true},
		{"org owner", owner, true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := f.orgs.CanControlSession(tc.user.ID, &s.Session)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
		})
	}

	other, err := f.sessions.CreateSession(org.ID, owner.ID, SessionInput{Name: "Theirs"})
	require.NoError(t, err)
	ok, err := f.orgs.CanControlSession(member.ID, &other.Session)
	require.NoError(t, err)
	assert.False(t, ok, "editors need to be added to sessions they did not create")
}

func TestAuthRegisterAndLogin(t *testing.T) {
	f := newFixture(t)
	auth := NewAuthService(f.db, "test-secret", time.Hour)

	user, token, err := auth.Register("Ada@Example.com", "Ada", "password123")
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", user.Email)

	id, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	_, _, err = auth.Register("ada@example.com", "Ada", "password123")
	assert.True(t, errors.Is(err, ErrConflict))

	_, err = auth.Login("ada@example.com", "wrong")
	assert.True(t, errors.Is(err, ErrUnauthorized))
	_, err = auth.Login("nobody@example.com", "password123")
	assert.True(t, errors.Is(err, ErrUnauthorized))

	token, err = auth.Login(" ADA@example.com", "password123")
	require.NoError(t, err)
	_, err = auth.ValidateToken(token)
	assert.NoError(t, err)

	other := NewAuthService(f.db, "other-secret", time.Hour)
	_, err = other.ValidateToken(token)
	assert.Error(t, err)
}
