package auth

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

type fakeUsers map[string]domain.User

func (f fakeUsers) FindUserByEmail(_ context.Context, email string) (domain.User, error) {
	u, ok := f[email]
	if !ok {
		return domain.User{}, repo.ErrNotFound
	}
	return u, nil
}

func TestResolveUnknownSubject(t *testing.T) {
	r := Resolver{Users: fakeUsers{}}
	_, err := r.Resolve(context.Background(), "ghost@example.com", nil)
	require.ErrorIs(t, err, ErrPrincipalNotFound)
}

func TestResolveUsesStoredRolesWhenClaimAbsent(t *testing.T) {
	r := Resolver{Users: fakeUsers{
		"admin@example.com": {ID: 1, Email: "admin@example.com", Roles: []string{domain.RoleAdmin}},
	}}
	p, err := r.Resolve(context.Background(), "admin@example.com", nil)
	require.NoError(t, err)
	require.Equal(t, int64(1), p.UserID)
	require.Equal(t, "admin@example.com", p.Subject)
	require.True(t, p.IsAdmin())
}

func TestResolveClaimAuthoritiesWin(t *testing.T) {
	r := Resolver{Users: fakeUsers{
		"user@example.com": {ID: 2, Roles: []string{domain.RoleAdmin}},
	}}
	p, err := r.Resolve(context.Background(), "user@example.com", []string{domain.RoleUser})
	require.NoError(t, err)
	require.False(t, p.IsAdmin())
	require.Equal(t, []string{domain.RoleUser}, p.Authorities)
}

func TestCanManageUser(t *testing.T) {
	admin := Principal{UserID: 1, Authorities: []string{domain.RoleAdmin}}
	self := Principal{UserID: 7, Authorities: []string{domain.RoleUser}}

	require.True(t, CanManageUser(admin, 99).Allowed)
	require.True(t, CanManageUser(self, 7).Allowed)

	d := CanManageUser(self, 8)
	require.False(t, d.Allowed)
	var fe ForbiddenError
	require.True(t, errors.As(d.Err(), &fe))
	require.NotEmpty(t, fe.Reason)
}

func TestCanListUsers(t *testing.T) {
	require.True(t, CanListUsers(Principal{Authorities: []string{domain.RoleAdmin}}).Allowed)
	d := CanListUsers(Principal{Authorities: []string{domain.RoleUser}})
	require.False(t, d.Allowed)
	require.Error(t, d.Err())
	require.NoError(t, CanListUsers(Principal{Authorities: []string{domain.RoleAdmin}}).Err())
}
