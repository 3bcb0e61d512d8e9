package repos

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/contextbrain/internal/db"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

func TestEpisodeRecentOrderAndLimit(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewEpisodeRepo(gdb, logger.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		err := repo.Add(ctx, nil, &domain.ConversationEpisode{
			TenantID:  "tenant-a",
			UserID:    userID,
			SessionID: "s1",
			Role:      "user",
			Content:   string(rune('a' + i)),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("add episode %d: %v", i, err)
		}
	}

	recent, err := repo.Recent(ctx, nil, "tenant-a", userID, 3)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 episodes, got %d", len(recent))
	}
	if recent[0].Content != "e" || recent[2].Content != "c" {
		t.Fatalf("expected newest-first order, got %q..%q", recent[0].Content, recent[2].Content)
	}
}

func TestEpisodeCleanupDeletesOnlyOldRows(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewEpisodeRepo(gdb, logger.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	now := time.Now().UTC()
	for _, age := range []time.Duration{400 * 24 * time.Hour, 100 * 24 * time.Hour, time.Hour} {
		err := repo.Add(ctx, nil, &domain.ConversationEpisode{
			TenantID:  "tenant-a",
			UserID:    userID,
			Content:   "x",
			CreatedAt: now.Add(-age),
		})
		if err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	// A second tenant's old row must survive the cleanup.
	if err := repo.Add(ctx, nil, &domain.ConversationEpisode{
		TenantID:  "tenant-b",
		UserID:    uuid.New(),
		Content:   "y",
		CreatedAt: now.Add(-400 * 24 * time.Hour),
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	deleted, err := repo.Cleanup(ctx, nil, "tenant-a", now.Add(-365*24*time.Hour))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted row, got %d", deleted)
	}
	all, err := repo.ListSince(ctx, now.Add(-500*24*time.Hour))
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 surviving episodes, got %d", len(all))
	}
}

func TestUserFactUpsertOverwrites(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewUserFactRepo(gdb, logger.NewNop())
	ctx := context.Background()
	userID := uuid.New()

	first := &domain.UserFact{TenantID: "tenant-a", UserID: userID, FactKey: "favorite_topic", Value: "graphs", Confidence: 0.5}
	if err := repo.Upsert(ctx, nil, first); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	second := &domain.UserFact{TenantID: "tenant-a", UserID: userID, FactKey: "favorite_topic", Value: "embeddings", Confidence: 0.9}
	if err := repo.Upsert(ctx, nil, second); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	facts, err := repo.ListByUser(ctx, nil, "tenant-a", userID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(facts) != 1 {
		t.Fatalf("expected 1 fact after upsert, got %d", len(facts))
	}
	if facts[0].Value != "embeddings" || facts[0].Confidence != 0.9 {
		t.Fatalf("expected updated value, got %+v", facts[0])
	}
}

func TestTaxonomyUpsertIsIdempotent(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewTaxonomyRepo(gdb, logger.NewNop())
	ctx := context.Background()

	node := &domain.TaxonomyNode{TenantID: "tenant-a", Domain: "category", Code: "vector-search", Name: "Vector Search", Path: "category/vector-search"}
	if err := repo.Upsert(ctx, nil, []*domain.TaxonomyNode{node}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	renamed := &domain.TaxonomyNode{TenantID: "tenant-a", Domain: "category", Code: "vector-search", Name: "Vector Retrieval", Path: "category/vector-search"}
	if err := repo.Upsert(ctx, nil, []*domain.TaxonomyNode{renamed}); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	all, err := repo.GetAll(ctx, nil, "tenant-a", "category")
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected 1 node, got %d", len(all))
	}
	if all[0].Name != "Vector Retrieval" {
		t.Fatalf("expected updated name, got %q", all[0].Name)
	}
	got, err := repo.GetByCode(ctx, nil, "tenant-a", "category", "vector-search")
	if err != nil {
		t.Fatalf("get by code: %v", err)
	}
	if got.ID != all[0].ID {
		t.Fatalf("expected stable id across upserts")
	}
}

func TestAliasResolveIsCaseInsensitive(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewKnowledgeAliasRepo(gdb, logger.NewNop())
	ctx := context.Background()
	canonical := uuid.New()

	err := repo.Upsert(ctx, nil, []*domain.KnowledgeAlias{
		{TenantID: "tenant-a", CanonicalID: canonical, Alias: "ANN Search", Language: "en", Confidence: 0.8},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	got, err := repo.Resolve(ctx, nil, "tenant-a", "ann search")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got.CanonicalID != canonical {
		t.Fatalf("expected canonical %s, got %s", canonical, got.CanonicalID)
	}
	if _, err := repo.Resolve(ctx, nil, "tenant-b", "ann search"); err == nil {
		t.Fatalf("expected miss for foreign tenant")
	}
}

func TestEdgeOutgoingFiltersRelations(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewKnowledgeEdgeRepo(gdb, logger.NewNop())
	ctx := context.Background()

	src := uuid.New()
	a, b := uuid.New(), uuid.New()
	err := repo.Upsert(ctx, nil, []*domain.KnowledgeEdge{
		{TenantID: "tenant-a", SourceID: src, TargetID: a, RelationType: "mentions", Weight: 1},
		{TenantID: "tenant-a", SourceID: src, TargetID: b, RelationType: "cooccurs", Weight: 1},
		{TenantID: "tenant-b", SourceID: src, TargetID: a, RelationType: "mentions", Weight: 1},
	})
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}

	out, err := repo.Outgoing(ctx, nil, "tenant-a", []uuid.UUID{src}, []string{"mentions"})
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if len(out) != 1 || out[0].TargetID != a {
		t.Fatalf("expected single mentions edge to %s, got %+v", a, out)
	}

	count, err := repo.CountByTenant(ctx, nil, "tenant-a")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 tenant-a edges, got %d", count)
	}
}

func TestEdgeUpsertDeduplicates(t *testing.T) {
	gdb := db.OpenTest(t)
	repo := NewKnowledgeEdgeRepo(gdb, logger.NewNop())
	ctx := context.Background()

	src, dst := uuid.New(), uuid.New()
	edge := func(w float64) []*domain.KnowledgeEdge {
		return []*domain.KnowledgeEdge{{TenantID: "tenant-a", SourceID: src, TargetID: dst, RelationType: "related_to", Weight: w}}
	}
	if err := repo.Upsert(ctx, nil, edge(1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := repo.Upsert(ctx, nil, edge(3)); err != nil {
		t.Fatalf("upsert again: %v", err)
	}

	out, err := repo.Outgoing(ctx, nil, "tenant-a", []uuid.UUID{src}, nil)
	if err != nil {
		t.Fatalf("outgoing: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 edge after duplicate upsert, got %d", len(out))
	}
	if out[0].Weight != 3 {
		t.Fatalf("expected weight updated to 3, got %v", out[0].Weight)
	}
}
