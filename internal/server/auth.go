package server

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/golang-jwt/jwt/v5"

	"taskboard/internal/domain"
	"taskboard/internal/engine/auth"
)

type AuthConfig struct {
	JWTSecret string
	Issuer    string
	TokenTTL  time.Duration
	Logger    *log.Logger
}

func (c AuthConfig) logger() *log.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return log.Default()
}

func (c AuthConfig) tokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return time.Hour
}

type principalKey struct{}

func withPrincipal(ctx context.Context, p auth.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

func principalFromContext(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(auth.Principal)
	return p, ok
}

// requirePrincipal returns the authenticated caller or an Unauthorized
// error when no credential was presented.
func requirePrincipal(ctx context.Context) (auth.Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok {
		return p, nil
	}
	return auth.Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

type jwtClaims struct {
	jwt.RegisteredClaims
	Authorities []string `json:"authorities,omitempty"`
}

// parseToken verifies an HS256 bearer token and returns its subject and
// authorities claim.
func parseToken(token, secret string) (string, []string, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	claims := &jwtClaims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return "", nil, err
	}
	if !parsed.Valid {
		return "", nil, jwt.ErrTokenUnverifiable
	}
	if claims.Subject == "" {
		return "", nil, jwt.ErrTokenRequiredClaimMissing
	}
	return claims.Subject, claims.Authorities, nil
}

// SignToken mints a bearer token for the user. The authorities claim
// carries the user's stored roles, mirroring what the resolver expects.
func SignToken(cfg AuthConfig, user domain.User) (string, error) {
	now := time.Now()
	claims := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.tokenTTL())),
		},
		Authorities: user.Roles,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(cfg.JWTSecret))
}

func bearerToken(authz string) (string, bool) {
	parts := strings.Fields(authz)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}

// newAuthMiddleware authenticates requests that carry a bearer token.
// Requests without one pass through unauthenticated; route handlers
// decide whether a principal is required. An invalid token or a subject
// with no backing user is rejected outright.
func newAuthMiddleware(cfg AuthConfig, resolver auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			authz := strings.TrimSpace(req.Header.Get("Authorization"))
			if authz == "" {
				next.ServeHTTP(w, req)
				return
			}
			token, ok := bearerToken(authz)
			if !ok {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			if strings.TrimSpace(cfg.JWTSecret) == "" {
				cfg.logger().Printf("WARNING: rejecting bearer token; jwt secret not configured")
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			subject, authorities, err := parseToken(token, cfg.JWTSecret)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			principal, err := resolver.Resolve(req.Context(), subject, authorities)
			if err != nil {
				respondStatusError(w, newAPIError(http.StatusUnauthorized, "invalid_credentials", "invalid credentials", nil))
				return
			}
			next.ServeHTTP(w, req.WithContext(withPrincipal(req.Context(), principal)))
		})
	}
}
