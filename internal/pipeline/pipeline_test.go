package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/enrich"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		ArtifactRoot:         filepath.Join(t.TempDir(), "artifacts"),
		RawRoot:              filepath.Join(t.TempDir(), "raw"),
		ChunkMaxChars:        400,
		SimilarityThreshold:  0.6,
		OntologyViolationMax: 0.2,
		ShadowNeighborDepth:  2,
	}
}

func newTestOrchestrator(t *testing.T, cfg config.Config) *Orchestrator {
	t.Helper()
	log := logger.NewNop()
	store, err := NewArtifactStore(log, cfg.ArtifactRoot)
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	o, err := NewOrchestrator(log, cfg, store, enrich.Probe(log, cfg), nil, nil, nil)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	return o
}

func writeRawDoc(t *testing.T, rawRoot, sourceType, name, text string) {
	t.Helper()
	dir := filepath.Join(rawRoot, sourceType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(text), 0o644); err != nil {
		t.Fatalf("write raw doc: %v", err)
	}
}

func seedKnowledgeDocs(t *testing.T, rawRoot string) {
	t.Helper()
	writeRawDoc(t, rawRoot, "knowledge", "doc-a.txt",
		"Vector Search Basics\n\nVector search ranks documents by embedding distance. Vector search pairs well with lexical retrieval for hybrid ranking.")
	writeRawDoc(t, rawRoot, "knowledge", "doc-b.txt",
		"Lexical Retrieval\n\nLexical retrieval matches query terms against indexed text. Combined with vector search it forms hybrid retrieval.")
	writeRawDoc(t, rawRoot, "knowledge", "doc-c.txt",
		"Hybrid Ranking\n\nHybrid ranking fuses vector search scores and lexical retrieval scores into one ordering.")
}

func TestRunEndToEnd(t *testing.T) {
	cfg := testConfig(t)
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)

	if err := o.Run(context.Background(), Options{Overwrite: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	clean, err := o.store.ReadCleanText("knowledge")
	if err != nil {
		t.Fatalf("ReadCleanText: %v", err)
	}
	if len(clean) != 3 {
		t.Fatalf("expected 3 clean-text records, got %d", len(clean))
	}
	for _, rec := range clean {
		if len(rec.Chunks) == 0 {
			t.Fatalf("record %q has no chunks", rec.DocID)
		}
		if len(rec.Keywords) == 0 {
			t.Fatalf("record %q missing enrichment keywords", rec.DocID)
		}
	}

	tax, err := o.store.ReadTaxonomy()
	if err != nil {
		t.Fatalf("ReadTaxonomy: %v", err)
	}
	if tax == nil || len(tax.Concepts) == 0 {
		t.Fatal("taxonomy has no concepts")
	}

	graph, err := o.store.ReadGraph()
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}
	if graph == nil || len(graph.Edges) == 0 {
		t.Fatal("graph has no edges")
	}
	nodeIDs := map[string]struct{}{}
	for _, n := range graph.Nodes {
		nodeIDs[n.ID] = struct{}{}
	}
	for _, e := range graph.Edges {
		if _, ok := nodeIDs[e.SourceID]; !ok {
			t.Fatalf("edge source %q not in node list", e.SourceID)
		}
		if _, ok := nodeIDs[e.TargetID]; !ok {
			t.Fatalf("edge target %q not in node list", e.TargetID)
		}
	}

	shadows, err := o.store.ReadShadow("knowledge")
	if err != nil {
		t.Fatalf("ReadShadow: %v", err)
	}
	if len(shadows) != 3 {
		t.Fatalf("expected 3 shadow records, got %d", len(shadows))
	}
	for _, sh := range shadows {
		if len(sh.Labels) == 0 {
			t.Fatalf("shadow %q carries no resolved labels", sh.DocID)
		}
	}

	exports, err := o.store.ReadExport("knowledge")
	if err != nil {
		t.Fatalf("ReadExport: %v", err)
	}
	if len(exports) != 3 {
		t.Fatalf("expected exactly 3 export records, got %d", len(exports))
	}
	seen := map[string]struct{}{}
	for _, rec := range exports {
		seen[rec.ID] = struct{}{}
	}
	if len(seen) != 3 {
		t.Fatalf("export records not unique per source document: %v", seen)
	}
}

func TestGraphBeforeTaxonomyFailsPreflight(t *testing.T) {
	cfg := testConfig(t)
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)

	if err := o.RunStage(context.Background(), StagePreprocess, Options{Overwrite: true}); err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	err := o.RunStage(context.Background(), StageGraph, Options{Overwrite: true})
	var pre *apierr.PreconditionError
	if !errors.As(err, &pre) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}
	if pre.Artifact != ArtifactTaxonomy {
		t.Fatalf("error names artifact %q, want %q", pre.Artifact, ArtifactTaxonomy)
	}
	if pre.Producer != StageTaxonomy {
		t.Fatalf("error names producer %q, want %q", pre.Producer, StageTaxonomy)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.ArtifactRoot, "graph.json")); !os.IsNotExist(statErr) {
		t.Fatal("failed preflight left a partial graph artifact on disk")
	}
}

func TestTaxonomyDeterminism(t *testing.T) {
	cfg := testConfig(t)
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)

	for _, stage := range []string{StagePreprocess, StageEnrich} {
		if err := o.RunStage(context.Background(), stage, Options{Overwrite: true}); err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
	}
	if err := o.RunStage(context.Background(), StageTaxonomy, Options{Overwrite: true}); err != nil {
		t.Fatalf("taxonomy: %v", err)
	}
	first, err := o.store.ReadTaxonomy()
	if err != nil {
		t.Fatalf("ReadTaxonomy: %v", err)
	}
	if err := o.RunStage(context.Background(), StageTaxonomy, Options{Overwrite: true}); err != nil {
		t.Fatalf("taxonomy rerun: %v", err)
	}
	second, err := o.store.ReadTaxonomy()
	if err != nil {
		t.Fatalf("ReadTaxonomy rerun: %v", err)
	}

	if len(first.Concepts) != len(second.Concepts) {
		t.Fatalf("concept count changed across runs: %d vs %d", len(first.Concepts), len(second.Concepts))
	}
	for i := range first.Concepts {
		if first.Concepts[i].Key != second.Concepts[i].Key {
			t.Fatalf("canonical key %d changed: %q vs %q", i, first.Concepts[i].Key, second.Concepts[i].Key)
		}
		if first.Concepts[i].Path != second.Concepts[i].Path {
			t.Fatalf("parent assignment %d changed: %q vs %q", i, first.Concepts[i].Path, second.Concepts[i].Path)
		}
	}
	if !reflect.DeepEqual(first.CanonicalMap, second.CanonicalMap) {
		t.Fatal("canonical map changed across runs")
	}
}

func TestPreprocessAppendMode(t *testing.T) {
	cfg := testConfig(t)
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)

	if err := o.RunStage(context.Background(), StagePreprocess, Options{Overwrite: true}); err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	before, err := o.store.ReadCleanText("knowledge")
	if err != nil {
		t.Fatalf("ReadCleanText: %v", err)
	}

	writeRawDoc(t, cfg.RawRoot, "knowledge", "doc-d.txt",
		"Graph Expansion\n\nGraph expansion walks typed edges outward from entrypoint nodes.")
	if err := o.RunStage(context.Background(), StagePreprocess, Options{Overwrite: false}); err != nil {
		t.Fatalf("preprocess append: %v", err)
	}
	after, err := o.store.ReadCleanText("knowledge")
	if err != nil {
		t.Fatalf("ReadCleanText: %v", err)
	}
	if len(after) != len(before)+1 {
		t.Fatalf("append mode: got %d records, want %d", len(after), len(before)+1)
	}
	found := false
	for _, rec := range after {
		if rec.DocID == "doc-d" {
			found = true
		}
	}
	if !found {
		t.Fatal("append mode lost the new document")
	}
}

func TestGraphOntologyEnforcement(t *testing.T) {
	cfg := testConfig(t)
	cfg.OntologyViolationMax = 1.0
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)

	for _, stage := range []string{StagePreprocess, StageTaxonomy, StageOntology} {
		if err := o.RunStage(context.Background(), stage, Options{Overwrite: true}); err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
	}
	// Replace the ontology with one that forbids every triple; with a
	// tolerant threshold the stage must drop all edges and record each
	// drop as a violation.
	if err := o.store.WriteOntology(&domain.OntologyArtifact{
		EntityTypes: []string{KindConcept, KindDocument},
		BuiltAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("WriteOntology: %v", err)
	}
	if err := o.RunStage(context.Background(), StageGraph, Options{Overwrite: true}); err != nil {
		t.Fatalf("graph: %v", err)
	}
	g, err := o.store.ReadGraph()
	if err != nil {
		t.Fatalf("ReadGraph: %v", err)
	}
	if len(g.Edges) != 0 {
		t.Fatalf("forbidden edges were kept: %d", len(g.Edges))
	}
	if len(g.Violations) == 0 {
		t.Fatal("dropped edges missing from the violation log")
	}
}

func TestGraphViolationRateEscalates(t *testing.T) {
	cfg := testConfig(t)
	cfg.OntologyViolationMax = 0.0
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)

	for _, stage := range []string{StagePreprocess, StageTaxonomy, StageOntology} {
		if err := o.RunStage(context.Background(), stage, Options{Overwrite: true}); err != nil {
			t.Fatalf("%s: %v", stage, err)
		}
	}
	if err := o.store.WriteOntology(&domain.OntologyArtifact{
		EntityTypes: []string{KindConcept, KindDocument},
		BuiltAt:     time.Now().UTC(),
	}); err != nil {
		t.Fatalf("WriteOntology: %v", err)
	}
	err := o.RunStage(context.Background(), StageGraph, Options{Overwrite: true})
	var val *apierr.ValidationError
	if !errors.As(err, &val) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, statErr := os.Stat(filepath.Join(cfg.ArtifactRoot, "graph.json")); !os.IsNotExist(statErr) {
		t.Fatal("escalated failure left a partial graph artifact on disk")
	}
}

func TestRunNeverDeploys(t *testing.T) {
	cfg := testConfig(t)
	seedKnowledgeDocs(t, cfg.RawRoot)

	log := logger.NewNop()
	store, err := NewArtifactStore(log, cfg.ArtifactRoot)
	if err != nil {
		t.Fatalf("NewArtifactStore: %v", err)
	}
	dep := &recordingDeployer{}
	o, err := NewOrchestrator(log, cfg, store, enrich.Probe(log, cfg), nil, nil, dep)
	if err != nil {
		t.Fatalf("NewOrchestrator: %v", err)
	}
	if err := o.Run(context.Background(), Options{Overwrite: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if dep.calls != 0 {
		t.Fatalf("run invoked deploy %d times; deploy is explicit-only", dep.calls)
	}
	if err := o.RunStage(context.Background(), StageDeploy, Options{}); err != nil {
		t.Fatalf("deploy: %v", err)
	}
	if dep.calls != 1 {
		t.Fatalf("explicit deploy ran %d times, want 1", dep.calls)
	}
}

type recordingDeployer struct {
	calls int
	types []string
}

func (d *recordingDeployer) Deploy(_ context.Context, exportTypes []string) error {
	d.calls++
	d.types = exportTypes
	return nil
}

func TestGraphInspectionOps(t *testing.T) {
	cfg := testConfig(t)
	seedKnowledgeDocs(t, cfg.RawRoot)
	o := newTestOrchestrator(t, cfg)
	if err := o.Run(context.Background(), Options{Overwrite: true}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	sum, err := o.Summary()
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.NodeCount == 0 || sum.EdgeCount == 0 {
		t.Fatalf("summary empty: %+v", sum)
	}
	if len(sum.LabelHistogram) == 0 {
		t.Fatal("summary missing label histogram")
	}

	stats, err := o.Stats()
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.ConnectedComponents == 0 {
		t.Fatal("stats reported zero components on a non-empty graph")
	}

	if _, err := o.Audit(0.9); err != nil {
		t.Fatalf("Audit: %v", err)
	}
}
