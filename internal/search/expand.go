package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/contextbrain/internal/data/repos"
	"github.com/yungbote/contextbrain/internal/domain"
)

// Frontier is one depth-stamped node reached during expansion.
type Frontier struct {
	NodeID   uuid.UUID `json:"node_id"`
	Via      uuid.UUID `json:"via"`
	Relation string    `json:"relation"`
	Depth    int       `json:"depth"`
}

// Expander walks typed edges outward from entrypoint nodes. The depth
// bound is mandatory; dense graphs make unbounded traversal explosive.
type Expander interface {
	Expand(ctx context.Context, tenantID string, entrypoints []uuid.UUID, relations []string, maxDepth int) ([]Frontier, error)
}

// edgeExpander runs breadth-first over the edges table, one frontier
// fetch per depth level, deduplicating visited nodes.
type edgeExpander struct {
	edges repos.KnowledgeEdgeRepo
}

func NewEdgeExpander(edges repos.KnowledgeEdgeRepo) Expander {
	return &edgeExpander{edges: edges}
}

func (x *edgeExpander) Expand(ctx context.Context, tenantID string, entrypoints []uuid.UUID, relations []string, maxDepth int) ([]Frontier, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("search: expansion depth bound required")
	}
	visited := make(map[uuid.UUID]struct{}, len(entrypoints))
	frontier := make([]uuid.UUID, 0, len(entrypoints))
	for _, id := range entrypoints {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		frontier = append(frontier, id)
	}

	var out []Frontier
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		edges, err := x.edges.Outgoing(ctx, nil, tenantID, frontier, relations)
		if err != nil {
			return nil, err
		}
		frontier = collectFrontier(edges, visited, depth, &out)
	}
	return out, nil
}

func collectFrontier(edges []*domain.KnowledgeEdge, visited map[uuid.UUID]struct{}, depth int, out *[]Frontier) []uuid.UUID {
	var frontier []uuid.UUID
	for _, e := range edges {
		if _, ok := visited[e.TargetID]; ok {
			continue
		}
		visited[e.TargetID] = struct{}{}
		*out = append(*out, Frontier{
			NodeID:   e.TargetID,
			Via:      e.SourceID,
			Relation: e.RelationType,
			Depth:    depth,
		})
		frontier = append(frontier, e.TargetID)
	}
	return frontier
}
