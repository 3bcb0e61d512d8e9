package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
)

func documentNodeID(docID string) string { return "doc:" + docID }
func conceptNodeID(key string) string    { return "concept:" + key }

// Graph builds the typed relation graph from clean text, taxonomy and
// ontology. Edges outside the ontology's constraint set are dropped and
// logged as violations; that is non-fatal unless the violation rate
// crosses the configured threshold.
func (o *Orchestrator) Graph(ctx context.Context) error {
	docs, err := o.store.ReadAllCleanText()
	if err != nil {
		return err
	}
	tax, err := o.store.ReadTaxonomy()
	if err != nil {
		return err
	}
	ont, err := o.store.ReadOntology()
	if err != nil {
		return err
	}
	if tax == nil || ont == nil {
		return fmt.Errorf("graph: taxonomy or ontology artifact unreadable")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	nodes := make(map[string]domain.GraphNodeRecord)
	kinds := make(map[string]string)
	addNode := func(n domain.GraphNodeRecord) {
		if _, ok := nodes[n.ID]; !ok {
			nodes[n.ID] = n
			kinds[n.ID] = n.Kind
		}
	}

	for _, c := range tax.Concepts {
		addNode(domain.GraphNodeRecord{
			ID:      conceptNodeID(c.Key),
			Kind:    KindConcept,
			Label:   c.Text,
			TaxPath: c.Path,
		})
	}
	for _, d := range docs {
		addNode(domain.GraphNodeRecord{
			ID:    documentNodeID(d.DocID),
			Kind:  KindDocument,
			Label: d.Title,
			DocID: d.DocID,
		})
	}

	var candidates []domain.GraphEdgeRecord
	addEdge := func(source, target, relation string, weight float64) {
		candidates = append(candidates, domain.GraphEdgeRecord{SourceID: source, TargetID: target, Relation: relation, Weight: weight})
	}

	// Document → concept mentions, plus concept co-occurrence per doc.
	for _, d := range docs {
		mentioned := conceptsInDoc(d, tax)
		for _, key := range mentioned {
			addEdge(documentNodeID(d.DocID), conceptNodeID(key), RelMentions, 1.0)
		}
		for i := 0; i < len(mentioned); i++ {
			for j := i + 1; j < len(mentioned); j++ {
				addEdge(conceptNodeID(mentioned[i]), conceptNodeID(mentioned[j]), RelCooccurs, 1.0)
			}
		}
	}

	// Concept hierarchy from taxonomy paths.
	byPath := map[string]string{}
	for _, c := range tax.Concepts {
		byPath[c.Path] = c.Key
	}
	for _, c := range tax.Concepts {
		cut := strings.LastIndex(c.Path, "/")
		if cut <= 0 {
			continue
		}
		if parentKey, ok := byPath[c.Path[:cut]]; ok {
			addEdge(conceptNodeID(parentKey), conceptNodeID(c.Key), RelParentOf, 1.0)
		}
	}

	var edges []domain.GraphEdgeRecord
	var violations []string
	seen := map[string]struct{}{}
	for _, e := range candidates {
		dedupeKey := e.SourceID + "|" + e.Relation + "|" + e.TargetID
		if _, dup := seen[dedupeKey]; dup {
			continue
		}
		seen[dedupeKey] = struct{}{}

		srcKind, srcOK := kinds[e.SourceID]
		tgtKind, tgtOK := kinds[e.TargetID]
		if !srcOK || !tgtOK {
			violations = append(violations, fmt.Sprintf("%s -[%s]-> %s: dangling endpoint", e.SourceID, e.Relation, e.TargetID))
			continue
		}
		if !ont.Allows(srcKind, e.Relation, tgtKind) {
			violations = append(violations, fmt.Sprintf("%s -[%s]-> %s: triple (%s, %s, %s) not in ontology", e.SourceID, e.Relation, e.TargetID, srcKind, e.Relation, tgtKind))
			continue
		}
		edges = append(edges, e)
	}

	total := len(edges) + len(violations)
	if total > 0 {
		rate := float64(len(violations)) / float64(total)
		if rate > o.violationMax {
			return &apierr.ValidationError{
				Record: ArtifactGraph,
				Reason: fmt.Sprintf("ontology violation rate %.2f exceeds threshold %.2f (%d of %d edges)", rate, o.violationMax, len(violations), total),
			}
		}
	}
	for _, v := range violations {
		o.log.Warn("graph: edge dropped", "violation", v)
	}

	nodeList := make([]domain.GraphNodeRecord, 0, len(nodes))
	for _, n := range nodes {
		nodeList = append(nodeList, n)
	}
	sort.Slice(nodeList, func(i, j int) bool { return nodeList[i].ID < nodeList[j].ID })
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceID != edges[j].SourceID {
			return edges[i].SourceID < edges[j].SourceID
		}
		if edges[i].Relation != edges[j].Relation {
			return edges[i].Relation < edges[j].Relation
		}
		return edges[i].TargetID < edges[j].TargetID
	})

	artifact := &domain.GraphArtifact{
		SchemaVersion: domain.GraphArtifactSchemaVersion,
		Nodes:         nodeList,
		Edges:         edges,
		Violations:    violations,
		BuiltAt:       time.Now().UTC(),
	}
	if err := o.store.WriteGraph(artifact); err != nil {
		return err
	}
	o.log.Info("graph built", "nodes", len(nodeList), "edges", len(edges), "violations", len(violations))
	return nil
}

// conceptsInDoc resolves which canonical concepts a document mentions,
// via the canonical map over its enrichment fields and via substring
// match on concept text. Sorted for deterministic edge order.
func conceptsInDoc(d domain.CleanTextRecord, tax *domain.TaxonomyArtifact) []string {
	found := map[string]struct{}{}
	lower := strings.ToLower(d.Text)
	check := func(surface string) {
		if key, ok := tax.CanonicalMap[strings.ToLower(surface)]; ok {
			found[key] = struct{}{}
		}
	}
	for _, k := range d.Keywords {
		check(k)
	}
	for _, e := range d.Entities {
		check(e)
	}
	for _, p := range d.Keyphrases {
		check(p)
	}
	for _, c := range tax.Concepts {
		if strings.Contains(lower, c.Text) {
			found[c.Key] = struct{}{}
		}
	}
	keys := make([]string, 0, len(found))
	for k := range found {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GraphSummary is the cheap inspection report.
type GraphSummary struct {
	SchemaVersion  int                      `json:"schema_version"`
	NodeCount      int                      `json:"node_count"`
	EdgeCount      int                      `json:"edge_count"`
	ViolationCount int                      `json:"violation_count"`
	LabelHistogram map[string]int           `json:"label_histogram"`
	SampleEdges    []domain.GraphEdgeRecord `json:"sample_edges"`
	BuiltAt        time.Time                `json:"built_at"`
}

// Summary reads the graph artifact and reports counts, a relation-label
// histogram and a handful of sample edges. Non-mutating.
func (o *Orchestrator) Summary() (*GraphSummary, error) {
	g, err := o.store.ReadGraph()
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &apierr.PreconditionError{Stage: "summary", Artifact: ArtifactGraph, Producer: StageGraph}
	}
	hist := map[string]int{}
	for _, e := range g.Edges {
		hist[e.Relation]++
	}
	sample := g.Edges
	if len(sample) > 5 {
		sample = sample[:5]
	}
	return &GraphSummary{
		SchemaVersion:  g.SchemaVersion,
		NodeCount:      len(g.Nodes),
		EdgeCount:      len(g.Edges),
		ViolationCount: len(g.Violations),
		LabelHistogram: hist,
		SampleEdges:    sample,
		BuiltAt:        g.BuiltAt,
	}, nil
}

// GraphStats is the full statistics report.
type GraphStats struct {
	DegreeHistogram     map[int]int        `json:"degree_histogram"`
	ConnectedComponents int                `json:"connected_components"`
	LabelAsymmetry      map[string]float64 `json:"label_asymmetry"`
}

// Stats computes degree distribution, weakly connected components and
// per-label directional asymmetry. Non-mutating.
func (o *Orchestrator) Stats() (*GraphStats, error) {
	g, err := o.store.ReadGraph()
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &apierr.PreconditionError{Stage: "stats", Artifact: ArtifactGraph, Producer: StageGraph}
	}

	degree := map[string]int{}
	outByLabel := map[string]map[string]int{}
	parent := map[string]string{}
	var find func(string) string
	find = func(x string) string {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}
	union := func(a, b string) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}
	for _, n := range g.Nodes {
		parent[n.ID] = n.ID
	}
	for _, e := range g.Edges {
		degree[e.SourceID]++
		degree[e.TargetID]++
		if _, ok := parent[e.SourceID]; ok {
			if _, ok := parent[e.TargetID]; ok {
				union(e.SourceID, e.TargetID)
			}
		}
		if outByLabel[e.Relation] == nil {
			outByLabel[e.Relation] = map[string]int{}
		}
		outByLabel[e.Relation][e.SourceID]++
	}

	degHist := map[int]int{}
	for _, n := range g.Nodes {
		degHist[degree[n.ID]]++
	}
	roots := map[string]struct{}{}
	for _, n := range g.Nodes {
		roots[find(n.ID)] = struct{}{}
	}

	// Asymmetry: share of a label's edges issued by its single busiest
	// source node. 1.0 means one node emits every edge of that label.
	asym := map[string]float64{}
	for label, sources := range outByLabel {
		total, max := 0, 0
		for _, n := range sources {
			total += n
			if n > max {
				max = n
			}
		}
		if total > 0 {
			asym[label] = float64(max) / float64(total)
		}
	}
	return &GraphStats{
		DegreeHistogram:     degHist,
		ConnectedComponents: len(roots),
		LabelAsymmetry:      asym,
	}, nil
}

// GraphAudit flags structural problems without mutating anything.
type GraphAudit struct {
	OrphanNodes        []string `json:"orphan_nodes"`
	OntologyViolations []string `json:"ontology_violations"`
	ImbalancedLabels   []string `json:"imbalanced_labels"`
}

// Audit re-validates the built graph: orphan nodes, edges the current
// ontology no longer allows (post-hoc violations from a since-changed
// ontology), and labels whose distribution is imbalanced past the
// threshold.
func (o *Orchestrator) Audit(imbalanceMax float64) (*GraphAudit, error) {
	g, err := o.store.ReadGraph()
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, &apierr.PreconditionError{Stage: "audit", Artifact: ArtifactGraph, Producer: StageGraph}
	}
	ont, err := o.store.ReadOntology()
	if err != nil {
		return nil, err
	}

	connected := map[string]struct{}{}
	kinds := map[string]string{}
	for _, n := range g.Nodes {
		kinds[n.ID] = n.Kind
	}
	audit := &GraphAudit{}
	for _, e := range g.Edges {
		connected[e.SourceID] = struct{}{}
		connected[e.TargetID] = struct{}{}
		if ont != nil && !ont.Allows(kinds[e.SourceID], e.Relation, kinds[e.TargetID]) {
			audit.OntologyViolations = append(audit.OntologyViolations,
				fmt.Sprintf("%s -[%s]-> %s", e.SourceID, e.Relation, e.TargetID))
		}
	}
	for _, n := range g.Nodes {
		if _, ok := connected[n.ID]; !ok {
			audit.OrphanNodes = append(audit.OrphanNodes, n.ID)
		}
	}

	stats, err := o.Stats()
	if err != nil {
		return nil, err
	}
	if imbalanceMax <= 0 {
		imbalanceMax = 0.9
	}
	for label, a := range stats.LabelAsymmetry {
		if a > imbalanceMax {
			audit.ImbalancedLabels = append(audit.ImbalancedLabels, label)
		}
	}
	sort.Strings(audit.OrphanNodes)
	sort.Strings(audit.ImbalancedLabels)
	return audit, nil
}
