package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Claims is the token payload: the subject plus the tenant set and
// permission set the caller was issued.
type Claims struct {
	jwt.RegisteredClaims
	Tenants     []string `json:"tenants"`
	Permissions []string `json:"permissions"`
}

// Principal is the validated caller identity handed to downstream code.
type Principal struct {
	Subject     string
	Tenants     []string
	Permissions []string
}

// Scope is the target of one operation.
type Scope struct {
	TenantID string
	// UserID is set for personal-data operations; the token subject must
	// match it.
	UserID   string
	Personal bool
}

// Guard authorizes every operation before it reaches storage or search.
// It holds no mutable state beyond the permission table loaded at
// startup: Authorize is a pure function of (token, operation, scope).
//
// Checks run in order and each fails closed:
//  1. token signature and expiry
//  2. operation permission (unmapped operations are denied and logged)
//  3. tenant access
//  4. user scope, for personal-data operations only
//
// Externally every denial reads "denied"; the failing check is only
// logged so callers cannot enumerate tenants or permissions.
type Guard struct {
	log    *logger.Logger
	secret []byte
	table  map[string]string
}

func NewGuard(log *logger.Logger, secret string, table map[string]string) (*Guard, error) {
	if log == nil {
		return nil, fmt.Errorf("auth: logger required")
	}
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("auth: signing secret required")
	}
	if table == nil {
		table = DefaultPermissionTable()
	}
	return &Guard{
		log:    log.With("service", "TenantPermissionGuard"),
		secret: []byte(secret),
		table:  table,
	}, nil
}

func (g *Guard) Authorize(tokenString, operation string, scope Scope) (*Principal, error) {
	claims, err := g.parseToken(tokenString)
	if err != nil {
		g.log.Warn("token rejected", "operation", operation, "error", err)
		return nil, &apierr.AccessDeniedError{Operation: operation}
	}

	required, ok := g.table[operation]
	if !ok {
		g.log.Warn("operation has no permission mapping; denying by default", "operation", operation)
		return nil, &apierr.AccessDeniedError{Operation: operation}
	}
	if !contains(claims.Permissions, required) {
		g.log.Warn("missing permission", "operation", operation, "required", required)
		return nil, &apierr.AccessDeniedError{Operation: operation}
	}

	if scope.TenantID == "" || !contains(claims.Tenants, scope.TenantID) {
		g.log.Warn("tenant access rejected", "operation", operation, "tenant_id", scope.TenantID)
		return nil, &apierr.AccessDeniedError{Operation: operation}
	}

	if scope.Personal {
		if scope.UserID == "" || claims.Subject != scope.UserID {
			g.log.Warn("user scope rejected", "operation", operation, "user_id", scope.UserID)
			return nil, &apierr.AccessDeniedError{Operation: operation}
		}
	}

	return &Principal{
		Subject:     claims.Subject,
		Tenants:     claims.Tenants,
		Permissions: claims.Permissions,
	}, nil
}

func (g *Guard) parseToken(tokenString string) (*Claims, error) {
	tokenString = strings.TrimSpace(tokenString)
	if tokenString == "" {
		return nil, fmt.Errorf("missing token")
	}
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return g.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

// SignToken issues a token for the given principal. Services use it for
// machine tokens; tests use it to build fixtures.
func (g *Guard) SignToken(subject string, tenants, permissions []string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Tenants:     tenants,
		Permissions: permissions,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(g.secret)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
