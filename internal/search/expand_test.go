package search

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextbrain/internal/domain"
)

type fakeEdgeRepo struct {
	edges []*domain.KnowledgeEdge
	calls int
}

func (f *fakeEdgeRepo) Upsert(context.Context, *gorm.DB, []*domain.KnowledgeEdge) error { return nil }

func (f *fakeEdgeRepo) Outgoing(_ context.Context, _ *gorm.DB, tenantID string, sourceIDs []uuid.UUID, relations []string) ([]*domain.KnowledgeEdge, error) {
	f.calls++
	sources := map[uuid.UUID]struct{}{}
	for _, id := range sourceIDs {
		sources[id] = struct{}{}
	}
	var out []*domain.KnowledgeEdge
	for _, e := range f.edges {
		if e.TenantID != tenantID {
			continue
		}
		if _, ok := sources[e.SourceID]; !ok {
			continue
		}
		if len(relations) > 0 {
			match := false
			for _, r := range relations {
				if e.RelationType == r {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEdgeRepo) CountByTenant(context.Context, *gorm.DB, string) (int64, error) {
	return int64(len(f.edges)), nil
}

func edge(tenant string, src, dst uuid.UUID, relation string) *domain.KnowledgeEdge {
	return &domain.KnowledgeEdge{TenantID: tenant, SourceID: src, TargetID: dst, RelationType: relation}
}

func TestExpandDepthStampsAndDedupes(t *testing.T) {
	a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New()
	repo := &fakeEdgeRepo{edges: []*domain.KnowledgeEdge{
		edge("tenant-a", a, b, "related_to"),
		edge("tenant-a", b, c, "related_to"),
		edge("tenant-a", c, d, "related_to"),
		// Back edge to an already-visited node must not resurface it.
		edge("tenant-a", c, a, "related_to"),
	}}
	x := NewEdgeExpander(repo)

	frontier, err := x.Expand(context.Background(), "tenant-a", []uuid.UUID{a}, nil, 2)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(frontier) != 2 {
		t.Fatalf("expected 2 frontier entries at depth bound 2, got %d", len(frontier))
	}
	depths := map[uuid.UUID]int{}
	for _, f := range frontier {
		depths[f.NodeID] = f.Depth
	}
	if depths[b] != 1 || depths[c] != 2 {
		t.Fatalf("wrong depth stamps: %v", depths)
	}
	if _, reached := depths[d]; reached {
		t.Fatal("traversal exceeded the depth bound")
	}
	if _, revisited := depths[a]; revisited {
		t.Fatal("entrypoint resurfaced in the frontier")
	}
}

func TestExpandRequiresDepthBound(t *testing.T) {
	x := NewEdgeExpander(&fakeEdgeRepo{})
	if _, err := x.Expand(context.Background(), "tenant-a", []uuid.UUID{uuid.New()}, nil, 0); err == nil {
		t.Fatal("expected error for missing depth bound")
	}
}

func TestExpandFiltersRelations(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeEdgeRepo{edges: []*domain.KnowledgeEdge{
		edge("tenant-a", a, b, "mentions"),
		edge("tenant-a", a, c, "related_to"),
	}}
	x := NewEdgeExpander(repo)

	frontier, err := x.Expand(context.Background(), "tenant-a", []uuid.UUID{a}, []string{"mentions"}, 1)
	if err != nil {
		t.Fatalf("Expand: %v", err)
	}
	if len(frontier) != 1 || frontier[0].NodeID != b {
		t.Fatalf("relation filter ignored: %+v", frontier)
	}
}

func TestExpandOneFetchPerDepthLevel(t *testing.T) {
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	repo := &fakeEdgeRepo{edges: []*domain.KnowledgeEdge{
		edge("tenant-a", a, b, "related_to"),
		edge("tenant-a", a, c, "related_to"),
	}}
	x := NewEdgeExpander(repo)

	if _, err := x.Expand(context.Background(), "tenant-a", []uuid.UUID{a}, nil, 3); err != nil {
		t.Fatalf("Expand: %v", err)
	}
	// Depth 1 fetches from a; depth 2 from {b, c}; the empty result ends
	// the walk before depth 3.
	if repo.calls != 2 {
		t.Fatalf("expected 2 frontier fetches, got %d", repo.calls)
	}
}
