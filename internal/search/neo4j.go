package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yungbote/contextbrain/internal/platform/neo4jdb"
)

// neo4jExpander runs the same bounded breadth-first walk against the
// graph mirror instead of the SQL edges table. Selected at wiring time
// when the mirror is configured.
type neo4jExpander struct {
	client *neo4jdb.Client
}

func NewNeo4jExpander(client *neo4jdb.Client) Expander {
	return &neo4jExpander{client: client}
}

func (x *neo4jExpander) Expand(ctx context.Context, tenantID string, entrypoints []uuid.UUID, relations []string, maxDepth int) ([]Frontier, error) {
	if maxDepth <= 0 {
		return nil, fmt.Errorf("search: expansion depth bound required")
	}
	visited := make(map[string]struct{}, len(entrypoints))
	frontier := make([]string, 0, len(entrypoints))
	for _, id := range entrypoints {
		s := id.String()
		if _, ok := visited[s]; ok {
			continue
		}
		visited[s] = struct{}{}
		frontier = append(frontier, s)
	}

	var out []Frontier
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		edges, err := x.client.Neighbors(ctx, tenantID, frontier, relations)
		if err != nil {
			return nil, err
		}
		var next []string
		for _, e := range edges {
			if _, ok := visited[e.TargetID]; ok {
				continue
			}
			visited[e.TargetID] = struct{}{}
			target, err := uuid.Parse(e.TargetID)
			if err != nil {
				continue
			}
			via, _ := uuid.Parse(e.SourceID)
			out = append(out, Frontier{
				NodeID:   target,
				Via:      via,
				Relation: e.Relation,
				Depth:    depth,
			})
			next = append(next, e.TargetID)
		}
		frontier = next
	}
	return out, nil
}
