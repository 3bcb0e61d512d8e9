package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/contextbrain/internal/domain"
)

// Shadow joins each clean-text record with its resolved canonical
// labels, a bounded k-hop graph neighborhood and enrichment metadata.
// Partitions by source type run concurrently up to the worker count.
func (o *Orchestrator) Shadow(ctx context.Context, opts Options) error {
	tax, err := o.store.ReadTaxonomy()
	if err != nil {
		return err
	}
	graph, err := o.store.ReadGraph()
	if err != nil {
		return err
	}
	if tax == nil || graph == nil {
		return fmt.Errorf("shadow: taxonomy or graph artifact unreadable")
	}

	labelByKey := map[string]string{}
	for _, c := range tax.Concepts {
		labelByKey[c.Key] = c.Text
	}
	adjacency, labels := buildAdjacency(graph)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, sourceType := range o.store.SourceTypes(ArtifactCleanText) {
		g.Go(func() error {
			docs, err := o.store.ReadCleanText(sourceType)
			if err != nil {
				return err
			}
			records := make([]domain.ShadowRecord, 0, len(docs))
			for _, d := range docs {
				if err := gctx.Err(); err != nil {
					return err
				}
				rec := domain.ShadowRecord{
					DocID:      d.DocID,
					SourceType: d.SourceType,
					Title:      d.Title,
					Text:       d.Text,
					BuiltAt:    time.Now().UTC(),
				}
				for _, key := range conceptsInDoc(d, tax) {
					rec.Labels = append(rec.Labels, labelByKey[key])
				}
				sort.Strings(rec.Labels)
				rec.Neighborhood = neighborhood(adjacency, labels, documentNodeID(d.DocID), o.shadowDepth)
				if len(d.Entities)+len(d.Keywords)+len(d.Keyphrases) > 0 {
					rec.Enrichment = map[string][]string{}
					if len(d.Entities) > 0 {
						rec.Enrichment["entities"] = d.Entities
					}
					if len(d.Keywords) > 0 {
						rec.Enrichment["keywords"] = d.Keywords
					}
					if len(d.Keyphrases) > 0 {
						rec.Enrichment["keyphrases"] = d.Keyphrases
					}
				}
				records = append(records, rec)
			}
			if !opts.Overwrite {
				existing, err := o.store.ReadShadow(sourceType)
				if err != nil {
					return err
				}
				records = mergeShadowByDocID(existing, records)
			}
			return o.store.WriteShadow(sourceType, records)
		})
	}
	return g.Wait()
}

type adjEdge struct {
	target   string
	relation string
}

func buildAdjacency(g *domain.GraphArtifact) (map[string][]adjEdge, map[string]string) {
	adjacency := map[string][]adjEdge{}
	labels := map[string]string{}
	for _, n := range g.Nodes {
		labels[n.ID] = n.Label
	}
	for _, e := range g.Edges {
		adjacency[e.SourceID] = append(adjacency[e.SourceID], adjEdge{target: e.TargetID, relation: e.Relation})
		adjacency[e.TargetID] = append(adjacency[e.TargetID], adjEdge{target: e.SourceID, relation: e.Relation})
	}
	return adjacency, labels
}

// neighborhood is a bounded breadth-first walk from one start node,
// returning depth-stamped, deduplicated neighbors. The depth bound is
// mandatory.
func neighborhood(adjacency map[string][]adjEdge, labels map[string]string, start string, maxDepth int) []domain.NeighborSummary {
	if maxDepth <= 0 {
		maxDepth = 1
	}
	visited := map[string]struct{}{start: {}}
	frontier := []string{start}
	var out []domain.NeighborSummary
	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		var next []string
		for _, id := range frontier {
			for _, e := range adjacency[id] {
				if _, ok := visited[e.target]; ok {
					continue
				}
				visited[e.target] = struct{}{}
				out = append(out, domain.NeighborSummary{
					NodeID:   e.target,
					Label:    labels[e.target],
					Relation: e.relation,
					Depth:    depth,
				})
				next = append(next, e.target)
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Depth != out[j].Depth {
			return out[i].Depth < out[j].Depth
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out
}

func mergeShadowByDocID(existing, incoming []domain.ShadowRecord) []domain.ShadowRecord {
	seen := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		seen[r.DocID] = struct{}{}
	}
	out := make([]domain.ShadowRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if _, replaced := seen[r.DocID]; !replaced {
			out = append(out, r)
		}
	}
	out = append(out, incoming...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}
