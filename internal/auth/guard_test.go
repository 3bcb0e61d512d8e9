package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

func newTestGuard(t *testing.T) *Guard {
	t.Helper()
	g, err := NewGuard(logger.NewNop(), "test-secret", nil)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	return g
}

func mustSign(t *testing.T, g *Guard, subject string, tenants, permissions []string, ttl time.Duration) string {
	t.Helper()
	token, err := g.SignToken(subject, tenants, permissions, ttl)
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	return token
}

func assertDenied(t *testing.T, err error) {
	t.Helper()
	var denied *apierr.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected AccessDeniedError, got %v", err)
	}
	if err.Error() != "denied" {
		t.Fatalf("denial leaks which check failed: %q", err.Error())
	}
}

func TestAuthorizeHappyPath(t *testing.T) {
	g := newTestGuard(t)
	token := mustSign(t, g, "user-1", []string{"tenant-a", "tenant-b"}, []string{PermBrainRead}, time.Hour)

	p, err := g.Authorize(token, "Search", Scope{TenantID: "tenant-a"})
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if p.Subject != "user-1" {
		t.Fatalf("principal subject %q", p.Subject)
	}
}

func TestAuthorizeRejectsMalformedToken(t *testing.T) {
	g := newTestGuard(t)
	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := g.Authorize(token, "Search", Scope{TenantID: "tenant-a"})
		assertDenied(t, err)
	}
}

func TestAuthorizeRejectsExpiredToken(t *testing.T) {
	g := newTestGuard(t)
	token := mustSign(t, g, "user-1", []string{"tenant-a"}, []string{PermBrainRead}, -time.Minute)
	_, err := g.Authorize(token, "Search", Scope{TenantID: "tenant-a"})
	assertDenied(t, err)
}

func TestAuthorizeRejectsWrongSecret(t *testing.T) {
	g := newTestGuard(t)
	other, err := NewGuard(logger.NewNop(), "other-secret", nil)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}
	token := mustSign(t, other, "user-1", []string{"tenant-a"}, []string{PermBrainRead}, time.Hour)
	_, authErr := g.Authorize(token, "Search", Scope{TenantID: "tenant-a"})
	assertDenied(t, authErr)
}

func TestAuthorizeDeniesUnmappedOperation(t *testing.T) {
	g := newTestGuard(t)
	token := mustSign(t, g, "user-1", []string{"tenant-a"}, []string{PermBrainRead, PermBrainWrite}, time.Hour)
	_, err := g.Authorize(token, "DropAllTables", Scope{TenantID: "tenant-a"})
	assertDenied(t, err)
}

func TestAuthorizeDeniesMissingPermission(t *testing.T) {
	g := newTestGuard(t)
	token := mustSign(t, g, "user-1", []string{"tenant-a"}, []string{PermMemoryRead}, time.Hour)
	_, err := g.Authorize(token, "IngestDocument", Scope{TenantID: "tenant-a"})
	assertDenied(t, err)
}

func TestAuthorizeDeniesForeignTenant(t *testing.T) {
	g := newTestGuard(t)
	token := mustSign(t, g, "user-1", []string{"tenant-a"}, []string{PermBrainRead}, time.Hour)
	_, err := g.Authorize(token, "Search", Scope{TenantID: "tenant-b"})
	assertDenied(t, err)
	_, err = g.Authorize(token, "Search", Scope{TenantID: ""})
	assertDenied(t, err)
}

func TestAuthorizeUserScope(t *testing.T) {
	g := newTestGuard(t)
	token := mustSign(t, g, "user-1", []string{"tenant-a"}, []string{PermMemoryRead}, time.Hour)

	if _, err := g.Authorize(token, "GetUserFacts", Scope{TenantID: "tenant-a", UserID: "user-1", Personal: true}); err != nil {
		t.Fatalf("owner should pass the user-scope check: %v", err)
	}
	_, err := g.Authorize(token, "GetUserFacts", Scope{TenantID: "tenant-a", UserID: "user-2", Personal: true})
	assertDenied(t, err)
	_, err = g.Authorize(token, "GetUserFacts", Scope{TenantID: "tenant-a", Personal: true})
	assertDenied(t, err)
}

func TestLoadPermissionTableDefault(t *testing.T) {
	table, err := LoadPermissionTable("")
	if err != nil {
		t.Fatalf("LoadPermissionTable: %v", err)
	}
	if table["Search"] != PermBrainRead {
		t.Fatalf("default table missing Search mapping: %v", table)
	}
	if table["IngestDocument"] != PermBrainWrite {
		t.Fatalf("default table missing IngestDocument mapping: %v", table)
	}
}
