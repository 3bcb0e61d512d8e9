package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/data/repos"
	"github.com/yungbote/contextbrain/internal/db"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/pipeline"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

func testGuard(t *testing.T) *auth.Guard {
	t.Helper()
	guard, err := auth.NewGuard(logger.NewNop(), "test-secret", auth.DefaultPermissionTable())
	if err != nil {
		t.Fatalf("new guard: %v", err)
	}
	return guard
}

func signToken(t *testing.T, guard *auth.Guard, subject string, tenants, permissions []string) string {
	t.Helper()
	token, err := guard.SignToken(subject, tenants, permissions, time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestBrain(t *testing.T) (BrainService, *pipeline.ArtifactStore) {
	t.Helper()
	gdb := db.OpenTest(t)
	log := logger.NewNop()
	store, err := pipeline.NewArtifactStore(log, t.TempDir())
	if err != nil {
		t.Fatalf("artifact store: %v", err)
	}
	svc, err := NewBrainService(log,
		repos.NewKnowledgeNodeRepo(gdb, log),
		repos.NewKnowledgeAliasRepo(gdb, log),
		repos.NewTaxonomyRepo(gdb, log),
		repos.NewKnowledgeEdgeRepo(gdb, log),
		testGuard(t), nil, store, nil)
	if err != nil {
		t.Fatalf("new brain service: %v", err)
	}
	return svc, store
}

func TestSyncTaxonomyResolvesParents(t *testing.T) {
	svc, store := newTestBrain(t)
	guard := testGuard(t)
	token := signToken(t, guard, "svc", []string{"tenant-a"}, []string{auth.PermBrainRead, auth.PermBrainWrite})
	ctx := context.Background()

	// Child listed before parent on purpose; sync must still link them.
	artifact := &domain.TaxonomyArtifact{
		Concepts: []domain.TaxonomyConcept{
			{Key: "embeddings", Text: "Embeddings", Domain: "category", Path: "category/ml/embeddings"},
			{Key: "ml", Text: "Machine Learning", Domain: "category", Path: "category/ml"},
		},
		Aliases: []domain.AliasRecord{
			{Alias: "Embedding Vectors", CanonicalKey: "embeddings", Language: "en", Confidence: 0.7},
		},
		BuiltAt: time.Now().UTC(),
	}
	if err := store.WriteTaxonomy(artifact); err != nil {
		t.Fatalf("write taxonomy: %v", err)
	}

	var streamed []string
	synced, err := svc.SyncTaxonomy(ctx, token, "tenant-a", func(n *domain.TaxonomyNode) error {
		streamed = append(streamed, n.Code)
		return nil
	})
	if err != nil {
		t.Fatalf("sync taxonomy: %v", err)
	}
	if synced != 2 || len(streamed) != 2 {
		t.Fatalf("expected 2 synced nodes, got synced=%d streamed=%d", synced, len(streamed))
	}
	if streamed[0] != "ml" {
		t.Fatalf("expected parent synced first, got order %v", streamed)
	}

	nodes, err := svc.GetTaxonomy(ctx, token, "tenant-a", "category")
	if err != nil {
		t.Fatalf("get taxonomy: %v", err)
	}
	byCode := map[string]*domain.TaxonomyNode{}
	for _, n := range nodes {
		byCode[n.Code] = n
	}
	child, parent := byCode["embeddings"], byCode["ml"]
	if child == nil || parent == nil {
		t.Fatalf("expected both nodes persisted, got %v", byCode)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Fatalf("expected child linked to parent %s, got %v", parent.ID, child.ParentID)
	}

	resolved, err := svc.ResolveEntity(ctx, token, "tenant-a", "embedding vectors")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.CanonicalID != child.ID {
		t.Fatalf("expected alias to resolve to %s, got %s", child.ID, resolved.CanonicalID)
	}
}

func TestSyncTaxonomyWithoutArtifactFailsPrecondition(t *testing.T) {
	svc, _ := newTestBrain(t)
	guard := testGuard(t)
	token := signToken(t, guard, "svc", []string{"tenant-a"}, []string{auth.PermBrainWrite})

	_, err := svc.SyncTaxonomy(context.Background(), token, "tenant-a", nil)
	var pre *apierr.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected precondition error, got %v", err)
	}
}

func TestIngestDocumentRejectsEmptyContent(t *testing.T) {
	svc, _ := newTestBrain(t)
	guard := testGuard(t)
	token := signToken(t, guard, "svc", []string{"tenant-a"}, []string{auth.PermBrainWrite})

	_, err := svc.IngestDocument(context.Background(), token, IngestRequest{
		TenantID:   "tenant-a",
		SourceType: "docs",
		SourceURI:  "docs/empty",
		Content:    "   ",
	})
	var v *apierr.ValidationError
	if !errors.As(err, &v) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestIngestDocumentDeniedForForeignTenant(t *testing.T) {
	svc, _ := newTestBrain(t)
	guard := testGuard(t)
	token := signToken(t, guard, "svc", []string{"tenant-b"}, []string{auth.PermBrainWrite})

	_, err := svc.IngestDocument(context.Background(), token, IngestRequest{
		TenantID: "tenant-a",
		Content:  "hello",
	})
	var denied *apierr.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected access denied, got %v", err)
	}
	if denied.Error() != "denied" {
		t.Fatalf("denial must stay opaque, got %q", denied.Error())
	}
}

func newTestMemory(t *testing.T) (MemoryService, *auth.Guard) {
	t.Helper()
	gdb := db.OpenTest(t)
	log := logger.NewNop()
	guard := testGuard(t)
	svc, err := NewMemoryService(log, repos.NewEpisodeRepo(gdb, log), repos.NewUserFactRepo(gdb, log), guard)
	if err != nil {
		t.Fatalf("new memory service: %v", err)
	}
	return svc, guard
}

func TestMemoryOpsAreUserScoped(t *testing.T) {
	svc, guard := newTestMemory(t)
	ctx := context.Background()
	owner := uuid.New().String()
	token := signToken(t, guard, owner, []string{"tenant-a"}, []string{auth.PermMemoryRead, auth.PermMemoryWrite})

	if _, err := svc.AddEpisode(ctx, token, "tenant-a", owner, "s1", "user", "hello"); err != nil {
		t.Fatalf("add own episode: %v", err)
	}

	stranger := uuid.New().String()
	_, err := svc.AddEpisode(ctx, token, "tenant-a", stranger, "s1", "user", "hijack")
	var denied *apierr.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial writing another user's memory, got %v", err)
	}

	episodes, err := svc.GetRecentEpisodes(ctx, token, "tenant-a", owner, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(episodes) != 1 || episodes[0].Content != "hello" {
		t.Fatalf("expected the one owned episode, got %+v", episodes)
	}
}

func TestRetentionCleanupTenantScoped(t *testing.T) {
	svc, guard := newTestMemory(t)
	ctx := context.Background()
	owner := uuid.New().String()
	token := signToken(t, guard, owner, []string{"tenant-a"}, []string{auth.PermMemoryRead, auth.PermMemoryWrite})

	if _, err := svc.AddEpisode(ctx, token, "tenant-a", owner, "s1", "user", "fresh"); err != nil {
		t.Fatalf("add: %v", err)
	}
	deleted, err := svc.RetentionCleanup(ctx, token, "tenant-a", 30*24*time.Hour)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 0 {
		t.Fatalf("fresh episode must survive cleanup, deleted=%d", deleted)
	}

	foreign := signToken(t, guard, owner, []string{"tenant-b"}, []string{auth.PermMemoryWrite})
	_, err = svc.RetentionCleanup(ctx, foreign, "tenant-a", 0)
	var denied *apierr.AccessDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("expected denial for foreign tenant, got %v", err)
	}
}
