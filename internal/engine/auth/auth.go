// Package auth resolves token claims into a Principal and holds the
// per-resource access policy.
package auth

import (
	"context"
	"errors"
	"fmt"

	"taskboard/internal/domain"
	"taskboard/internal/repo"
)

// ErrPrincipalNotFound means the token subject resolves to no user.
// It surfaces as an authentication failure, not a 404.
var ErrPrincipalNotFound = errors.New("principal not found")

// ForbiddenError indicates a policy denial for an authenticated caller.
type ForbiddenError struct {
	Reason string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s", e.Reason)
}

// Principal is the authenticated caller for one request. Immutable
// after construction.
type Principal struct {
	UserID      int64
	Subject     string
	Authorities []string
}

func (p Principal) HasAuthority(a string) bool {
	for _, v := range p.Authorities {
		if v == a {
			return true
		}
	}
	return false
}

func (p Principal) IsAdmin() bool {
	return p.HasAuthority(domain.RoleAdmin)
}

// UserFinder is the store lookup the resolver needs.
type UserFinder interface {
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// Resolver turns a verified token's claims into a Principal.
type Resolver struct {
	Users UserFinder
}

// Resolve looks the subject up by email and combines it with the
// token's authorities. A non-empty "authorities" claim takes precedence
// over the stored roles; both /login and the CLI token command copy the
// stored roles into the claim, so the two only diverge for tokens
// minted outside this system.
func (r Resolver) Resolve(ctx context.Context, subject string, claimAuthorities []string) (Principal, error) {
	user, err := r.Users.FindUserByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return Principal{}, ErrPrincipalNotFound
		}
		return Principal{}, err
	}
	authorities := claimAuthorities
	if len(authorities) == 0 {
		authorities = user.Roles
	}
	return Principal{
		UserID:      user.ID,
		Subject:     subject,
		Authorities: authorities,
	}, nil
}

// Decision is the outcome of a policy check.
type Decision struct {
	Allowed bool
	Reason  string
}

func allow() Decision { return Decision{Allowed: true} }

func deny(reason string) Decision { return Decision{Allowed: false, Reason: reason} }

// Err converts a denial into a ForbiddenError, nil when allowed.
func (d Decision) Err() error {
	if d.Allowed {
		return nil
	}
	return ForbiddenError{Reason: d.Reason}
}

// CanListUsers permits only administrators to enumerate users.
func CanListUsers(p Principal) Decision {
	if p.IsAdmin() {
		return allow()
	}
	return deny("listing users requires admin authority")
}

// CanManageUser permits reading, updating or deleting a user record to
// administrators and to the user themselves. The target's existence is
// never consulted, so a denial cannot leak it.
func CanManageUser(p Principal, targetID int64) Decision {
	if p.IsAdmin() {
		return allow()
	}
	if p.UserID == targetID {
		return allow()
	}
	return deny("only admins or the user themselves may access this user")
}
