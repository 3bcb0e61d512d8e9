package pipeline

import (
	"context"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/enrich"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Stage names, also the CLI subcommands that produce each artifact.
const (
	StagePreprocess = "preprocess"
	StageTaxonomy   = "taxonomy"
	StagePersona    = "persona"
	StageOntology   = "ontology"
	StageEnrich     = "enrich"
	StageGraph      = "graph"
	StageShadow     = "shadow"
	StageExport     = "export"
	StageDeploy     = "deploy"
)

// Options control one invocation. Overwrite discards and rebuilds a
// stage's artifact; append mode merges by the stable per-document key.
type Options struct {
	Overwrite bool
	Workers   int
}

func (o Options) workers() int {
	if o.Workers <= 0 {
		return 1
	}
	return o.Workers
}

// Embedder is the slice of the embedding cache the pipeline needs.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EpisodeSource feeds the optional persona stage.
type EpisodeSource interface {
	ListSince(ctx context.Context, since time.Time) ([]*domain.ConversationEpisode, error)
}

// Deployer uploads an export snapshot and triggers remote reindexing.
// The remote side effect is outside the pipeline; deploy never runs as
// part of Run and must be invoked explicitly.
type Deployer interface {
	Deploy(ctx context.Context, exportTypes []string) error
}

// Orchestrator sequences the fixed stage DAG
//
//	preprocess → {taxonomy, persona} → ontology → enrich → graph → shadow → export → deploy
//
// with dependency preflight, overwrite/append policy and per-source-type
// parallelism. Workers share nothing; partitions merge only through the
// artifact store.
type Orchestrator struct {
	log   *logger.Logger
	store *ArtifactStore

	rawRoot             string
	chunkMaxChars       int
	similarityThreshold float64
	violationMax        float64
	shadowDepth         int
	personaEnabled      bool

	enricher enrich.Enricher
	embedder Embedder
	episodes EpisodeSource
	deployer Deployer
}

func NewOrchestrator(log *logger.Logger, cfg config.Config, store *ArtifactStore, enricher enrich.Enricher, embedder Embedder, episodes EpisodeSource, deployer Deployer) (*Orchestrator, error) {
	if log == nil {
		return nil, fmt.Errorf("pipeline: logger required")
	}
	if store == nil {
		return nil, fmt.Errorf("pipeline: artifact store required")
	}
	return &Orchestrator{
		log:                 log.With("service", "PipelineOrchestrator"),
		store:               store,
		rawRoot:             cfg.RawRoot,
		chunkMaxChars:       cfg.ChunkMaxChars,
		similarityThreshold: cfg.SimilarityThreshold,
		violationMax:        cfg.OntologyViolationMax,
		shadowDepth:         cfg.ShadowNeighborDepth,
		personaEnabled:      cfg.PersonaEnabled,
		enricher:            enricher,
		embedder:            embedder,
		episodes:            episodes,
		deployer:            deployer,
	}, nil
}

// requirement is one upstream artifact a stage needs before running.
type requirement struct {
	artifact string
	producer string
	// prereqs are the artifacts this requirement itself derives from;
	// being older than any of them makes it stale.
	prereqs []string
}

var stageRequirements = map[string][]requirement{
	StagePreprocess: nil,
	StageTaxonomy: {
		{artifact: ArtifactCleanText, producer: StagePreprocess},
	},
	StagePersona: nil,
	StageOntology: {
		{artifact: ArtifactTaxonomy, producer: StageTaxonomy},
	},
	StageEnrich: {
		{artifact: ArtifactCleanText, producer: StagePreprocess},
	},
	StageGraph: {
		{artifact: ArtifactCleanText, producer: StagePreprocess},
		{artifact: ArtifactTaxonomy, producer: StageTaxonomy, prereqs: []string{ArtifactCleanText}},
		{artifact: ArtifactOntology, producer: StageOntology, prereqs: []string{ArtifactTaxonomy}},
	},
	StageShadow: {
		{artifact: ArtifactCleanText, producer: StagePreprocess},
		{artifact: ArtifactTaxonomy, producer: StageTaxonomy, prereqs: []string{ArtifactCleanText}},
		{artifact: ArtifactGraph, producer: StageGraph, prereqs: []string{ArtifactTaxonomy, ArtifactOntology}},
	},
	StageExport: {
		{artifact: ArtifactShadow, producer: StageShadow, prereqs: []string{ArtifactGraph}},
	},
	StageDeploy: {
		{artifact: ArtifactExport, producer: StageExport, prereqs: []string{ArtifactShadow}},
	},
}

// preflight verifies a stage's upstream artifacts exist and are fresh.
// It runs before the stage writes anything, so a failed preflight never
// leaves a partial artifact behind.
func (o *Orchestrator) preflight(stage string) error {
	for _, req := range stageRequirements[stage] {
		built := o.builtAt(req.artifact)
		if built.IsZero() {
			return &apierr.PreconditionError{Stage: stage, Artifact: req.artifact, Producer: req.producer}
		}
		for _, prereq := range req.prereqs {
			prereqBuilt := o.stageTime(producerOf(prereq))
			if prereqBuilt.IsZero() {
				continue
			}
			if built.Before(prereqBuilt) {
				return &apierr.PreconditionError{Stage: stage, Artifact: req.artifact, Producer: req.producer, Stale: true}
			}
		}
	}
	return nil
}

func producerOf(artifact string) string {
	switch artifact {
	case ArtifactCleanText:
		return StagePreprocess
	case ArtifactTaxonomy:
		return StageTaxonomy
	case ArtifactOntology:
		return StageOntology
	case ArtifactGraph:
		return StageGraph
	case ArtifactShadow:
		return StageShadow
	case ArtifactExport:
		return StageExport
	default:
		return artifact
	}
}

// builtAt reports when an artifact was produced. The manifest records
// stage completion times; when it has no entry (artifacts copied in by
// hand) the file mtime stands in. The enrich stage legitimately rewrites
// clean text, so freshness for staleness checks uses the producing
// stage's time, not the file's.
func (o *Orchestrator) builtAt(artifact string) time.Time {
	if t := o.stageTime(producerOf(artifact)); !t.IsZero() {
		return t
	}
	switch artifact {
	case ArtifactCleanText, ArtifactShadow, ArtifactExport:
		return o.store.RecordModTime(artifact)
	default:
		return o.store.ObjectModTime(artifact)
	}
}

// RunStage executes one named stage.
func (o *Orchestrator) RunStage(ctx context.Context, stage string, opts Options) error {
	if err := o.preflight(stage); err != nil {
		return err
	}
	start := time.Now()
	var err error
	switch stage {
	case StagePreprocess:
		err = o.Preprocess(ctx, opts)
	case StageTaxonomy:
		err = o.Taxonomy(ctx)
	case StagePersona:
		err = o.Persona(ctx)
	case StageOntology:
		err = o.Ontology(ctx)
	case StageEnrich:
		err = o.EnrichStage(ctx, opts)
	case StageGraph:
		err = o.Graph(ctx)
	case StageShadow:
		err = o.Shadow(ctx, opts)
	case StageExport:
		err = o.Export(ctx, opts)
	case StageDeploy:
		err = o.Deploy(ctx)
	default:
		return fmt.Errorf("pipeline: unknown stage %q", stage)
	}
	if err != nil {
		return err
	}
	o.log.Info("stage complete", "stage", stage, "elapsed", time.Since(start).String())
	return o.markStage(stage)
}

// Run executes preprocess through export inclusive. Deploy is the one
// stage with a non-idempotent remote side effect, so it never runs here.
func (o *Orchestrator) Run(ctx context.Context, opts Options) error {
	stages := []string{StagePreprocess, StageTaxonomy}
	if o.personaEnabled {
		stages = append(stages, StagePersona)
	}
	stages = append(stages, StageOntology)
	if o.enricher != nil {
		stages = append(stages, StageEnrich)
	}
	stages = append(stages, StageGraph, StageShadow, StageExport)

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := o.RunStage(ctx, stage, opts); err != nil {
			return fmt.Errorf("stage %s: %w", stage, err)
		}
	}
	return nil
}

// Preprocess partitions raw sources by type and runs partitions
// concurrently up to the worker count. In append mode existing records
// for unseen documents survive; new and re-read documents win by DocID.
func (o *Orchestrator) Preprocess(ctx context.Context, opts Options) error {
	types, err := o.rawSourceTypes()
	if err != nil {
		return err
	}
	if len(types) == 0 {
		return fmt.Errorf("preprocess: no source-type directories under %q", o.rawRoot)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, sourceType := range types {
		g.Go(func() error {
			records, err := o.preprocessSourceType(gctx, sourceType)
			if err != nil {
				return err
			}
			if !opts.Overwrite {
				existing, err := o.store.ReadCleanText(sourceType)
				if err != nil {
					return err
				}
				records = mergeByDocID(existing, records)
			}
			if err := o.store.WriteCleanText(sourceType, records); err != nil {
				return err
			}
			o.log.Info("preprocess partition complete", "source_type", sourceType, "records", len(records))
			return nil
		})
	}
	return g.Wait()
}

// EnrichStage merges NER/keyword/keyphrase output additively into the
// clean-text records. This is the single sanctioned in-place artifact
// update; it never removes or rewrites prior content.
func (o *Orchestrator) EnrichStage(ctx context.Context, opts Options) error {
	if o.enricher == nil {
		return fmt.Errorf("enrich: no enricher configured")
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, sourceType := range o.store.SourceTypes(ArtifactCleanText) {
		g.Go(func() error {
			records, err := o.store.ReadCleanText(sourceType)
			if err != nil {
				return err
			}
			for i := range records {
				if err := gctx.Err(); err != nil {
					return err
				}
				if err := o.enricher.Enrich(gctx, &records[i]); err != nil {
					o.log.Warn("enrich: record skipped", "doc_id", records[i].DocID, "error", err)
				}
			}
			return o.store.WriteCleanText(sourceType, records)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	o.log.Info("enrich complete", "enricher", o.enricher.Name())
	return nil
}

// Export serializes shadow records into the target index's bulk format,
// one record per source document, partitioned by source type.
func (o *Orchestrator) Export(ctx context.Context, opts Options) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.workers())
	for _, sourceType := range o.store.SourceTypes(ArtifactShadow) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			shadows, err := o.store.ReadShadow(sourceType)
			if err != nil {
				return err
			}
			records := make([]domain.ExportRecord, 0, len(shadows))
			for _, sh := range shadows {
				rec := domain.ExportRecord{
					ID:         sh.DocID,
					SourceType: sh.SourceType,
					Title:      sh.Title,
					Content:    sh.Text,
					Labels:     sh.Labels,
				}
				if len(sh.Neighborhood) > 0 || len(sh.Enrichment) > 0 {
					rec.Metadata = map[string]any{}
					if len(sh.Neighborhood) > 0 {
						rec.Metadata["neighbor_count"] = len(sh.Neighborhood)
					}
					for k, v := range sh.Enrichment {
						rec.Metadata[k] = v
					}
				}
				records = append(records, rec)
			}
			if !opts.Overwrite {
				existing, err := o.store.ReadExport(sourceType)
				if err != nil {
					return err
				}
				records = mergeExportByID(existing, records)
			}
			return o.store.WriteExport(sourceType, records)
		})
	}
	return g.Wait()
}

// Deploy hands the export snapshot to the configured deployer.
func (o *Orchestrator) Deploy(ctx context.Context) error {
	if o.deployer == nil {
		return fmt.Errorf("deploy: no deployer configured")
	}
	types := o.store.SourceTypes(ArtifactExport)
	if len(types) == 0 {
		return &apierr.PreconditionError{Stage: StageDeploy, Artifact: ArtifactExport, Producer: StageExport}
	}
	return o.deployer.Deploy(ctx, types)
}

// mergeByDocID keeps existing records whose DocID was not re-read,
// appends the incoming set and sorts by DocID so merged output is
// stable regardless of read order.
func mergeByDocID(existing, incoming []domain.CleanTextRecord) []domain.CleanTextRecord {
	seen := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		seen[r.DocID] = struct{}{}
	}
	out := make([]domain.CleanTextRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if _, replaced := seen[r.DocID]; !replaced {
			out = append(out, r)
		}
	}
	out = append(out, incoming...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].DocID < out[j].DocID })
	return out
}

func mergeExportByID(existing, incoming []domain.ExportRecord) []domain.ExportRecord {
	seen := make(map[string]struct{}, len(incoming))
	for _, r := range incoming {
		seen[r.ID] = struct{}{}
	}
	out := make([]domain.ExportRecord, 0, len(existing)+len(incoming))
	for _, r := range existing {
		if _, replaced := seen[r.ID]; !replaced {
			out = append(out, r)
		}
	}
	out = append(out, incoming...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
