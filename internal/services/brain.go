package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/data/repos"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/pipeline"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
	"github.com/yungbote/contextbrain/internal/platform/neo4jdb"
)

// IngestRequest is one document pushed through the guarded write path.
type IngestRequest struct {
	TenantID   string         `json:"tenant_id"`
	UserID     string         `json:"user_id,omitempty"`
	Domain     string         `json:"domain"`
	SourceType string         `json:"source_type"`
	SourceURI  string         `json:"source_uri"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// DocEmbedder is the slice of the embedding cache ingestion needs.
type DocEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dim() int
}

type BrainService interface {
	// IngestDocument embeds and persists one document as a knowledge
	// node. The embedding is written once, whole.
	IngestDocument(ctx context.Context, token string, req IngestRequest) (*domain.KnowledgeNode, error)
	GetTaxonomy(ctx context.Context, token, tenantID, taxDomain string) ([]*domain.TaxonomyNode, error)
	// SyncTaxonomy upserts the built taxonomy artifact into the tenant's
	// taxonomy tables, invoking onNode after each upserted node so the
	// handler can stream progress.
	SyncTaxonomy(ctx context.Context, token, tenantID string, onNode func(*domain.TaxonomyNode) error) (int, error)
	ResolveEntity(ctx context.Context, token, tenantID, alias string) (*domain.KnowledgeAlias, error)
	// SyncGraph upserts the built graph artifact's edges into the edges
	// table and, when configured, the neo4j mirror.
	SyncGraph(ctx context.Context, token, tenantID string) (int, error)
}

type brainService struct {
	log      *logger.Logger
	nodes    repos.KnowledgeNodeRepo
	aliases  repos.KnowledgeAliasRepo
	taxonomy repos.TaxonomyRepo
	edges    repos.KnowledgeEdgeRepo
	guard    *auth.Guard
	embedder DocEmbedder
	store    *pipeline.ArtifactStore
	mirror   *neo4jdb.Client
}

func NewBrainService(
	log *logger.Logger,
	nodes repos.KnowledgeNodeRepo,
	aliases repos.KnowledgeAliasRepo,
	taxonomy repos.TaxonomyRepo,
	edges repos.KnowledgeEdgeRepo,
	guard *auth.Guard,
	embedder DocEmbedder,
	store *pipeline.ArtifactStore,
	mirror *neo4jdb.Client,
) (BrainService, error) {
	if log == nil {
		return nil, fmt.Errorf("services: logger required")
	}
	if guard == nil {
		return nil, fmt.Errorf("services: guard required")
	}
	return &brainService{
		log:      log.With("service", "BrainService"),
		nodes:    nodes,
		aliases:  aliases,
		taxonomy: taxonomy,
		edges:    edges,
		guard:    guard,
		embedder: embedder,
		store:    store,
		mirror:   mirror,
	}, nil
}

func (s *brainService) IngestDocument(ctx context.Context, token string, req IngestRequest) (*domain.KnowledgeNode, error) {
	if _, err := s.guard.Authorize(token, "IngestDocument", auth.Scope{TenantID: req.TenantID}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, &apierr.ValidationError{Record: req.SourceURI, Reason: "empty content"}
	}

	node := &domain.KnowledgeNode{
		ID:         uuid.New(),
		TenantID:   req.TenantID,
		NodeKind:   "chunk",
		Domain:     req.Domain,
		SourceType: req.SourceType,
		SourceURI:  req.SourceURI,
		Title:      req.Title,
		Content:    req.Content,
	}
	if req.UserID != "" {
		uid, err := uuid.Parse(req.UserID)
		if err != nil {
			return nil, &apierr.ValidationError{Record: req.SourceURI, Reason: "malformed user id"}
		}
		node.UserID = &uid
	}
	if req.Metadata != nil {
		raw, err := json.Marshal(req.Metadata)
		if err != nil {
			return nil, &apierr.ValidationError{Record: req.SourceURI, Reason: "unserializable metadata"}
		}
		node.Metadata = datatypes.JSON(raw)
	}

	if s.embedder != nil {
		vector, err := s.embedder.Embed(ctx, req.Title+"\n"+req.Content)
		if err != nil {
			return nil, err
		}
		v := pgvector.NewVector(vector)
		node.Embedding = &v
	}

	if err := s.nodes.Upsert(ctx, nil, []*domain.KnowledgeNode{node}); err != nil {
		return nil, fmt.Errorf("ingest: persist node: %w", err)
	}
	s.log.Info("document ingested",
		"tenant_id", req.TenantID,
		"source_type", req.SourceType,
		"node_id", node.ID.String(),
	)
	return node, nil
}

func (s *brainService) GetTaxonomy(ctx context.Context, token, tenantID, taxDomain string) ([]*domain.TaxonomyNode, error) {
	if _, err := s.guard.Authorize(token, "GetTaxonomy", auth.Scope{TenantID: tenantID}); err != nil {
		return nil, err
	}
	return s.taxonomy.GetAll(ctx, nil, tenantID, taxDomain)
}

func (s *brainService) SyncTaxonomy(ctx context.Context, token, tenantID string, onNode func(*domain.TaxonomyNode) error) (int, error) {
	if _, err := s.guard.Authorize(token, "SyncTaxonomy", auth.Scope{TenantID: tenantID}); err != nil {
		return 0, err
	}
	artifact, err := s.store.ReadTaxonomy()
	if err != nil {
		return 0, err
	}
	if artifact == nil {
		return 0, &apierr.PreconditionError{Stage: "sync", Artifact: pipeline.ArtifactTaxonomy, Producer: pipeline.StageTaxonomy}
	}

	// Parents must exist before children so ParentID can be resolved;
	// concepts sorted by path guarantee that order.
	concepts := make([]domain.TaxonomyConcept, len(artifact.Concepts))
	copy(concepts, artifact.Concepts)
	sortConceptsByPath(concepts)

	idByKey := map[string]uuid.UUID{}
	synced := 0
	for _, c := range concepts {
		if err := ctx.Err(); err != nil {
			return synced, err
		}
		node := &domain.TaxonomyNode{
			ID:       uuid.New(),
			TenantID: tenantID,
			Domain:   c.Domain,
			Code:     c.Key,
			Name:     c.Text,
			Path:     c.Path,
		}
		if parentKey := parentKeyFromPath(c.Path); parentKey != "" {
			if pid, ok := idByKey[parentKey]; ok {
				node.ParentID = &pid
			}
		}
		if err := s.taxonomy.Upsert(ctx, nil, []*domain.TaxonomyNode{node}); err != nil {
			return synced, fmt.Errorf("sync taxonomy: upsert %q: %w", c.Key, err)
		}
		// Re-read to get the persisted id when the row already existed.
		persisted, err := s.taxonomy.GetByCode(ctx, nil, tenantID, c.Domain, c.Key)
		if err != nil {
			return synced, err
		}
		idByKey[c.Key] = persisted.ID
		synced++
		if onNode != nil {
			if err := onNode(persisted); err != nil {
				return synced, err
			}
		}
	}

	aliasRows := make([]*domain.KnowledgeAlias, 0, len(artifact.Aliases))
	for _, a := range artifact.Aliases {
		canonicalID, ok := idByKey[a.CanonicalKey]
		if !ok {
			continue
		}
		aliasRows = append(aliasRows, &domain.KnowledgeAlias{
			TenantID:    tenantID,
			CanonicalID: canonicalID,
			Alias:       a.Alias,
			Language:    a.Language,
			Confidence:  a.Confidence,
		})
	}
	if err := s.aliases.Upsert(ctx, nil, aliasRows); err != nil {
		return synced, fmt.Errorf("sync taxonomy: upsert aliases: %w", err)
	}
	s.log.Info("taxonomy synced", "tenant_id", tenantID, "nodes", synced, "aliases", len(aliasRows))
	return synced, nil
}

func (s *brainService) ResolveEntity(ctx context.Context, token, tenantID, alias string) (*domain.KnowledgeAlias, error) {
	if _, err := s.guard.Authorize(token, "ResolveEntity", auth.Scope{TenantID: tenantID}); err != nil {
		return nil, err
	}
	resolved, err := s.aliases.Resolve(ctx, nil, tenantID, alias)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.New(http.StatusNotFound, apierr.CodeNotFound, fmt.Errorf("alias %q not found", alias))
		}
		return nil, err
	}
	return resolved, nil
}

func sortConceptsByPath(concepts []domain.TaxonomyConcept) {
	sort.SliceStable(concepts, func(i, j int) bool { return concepts[i].Path < concepts[j].Path })
}

// parentKeyFromPath extracts the next-to-last path segment, which is the
// parent concept's key, or empty for concepts sitting under the domain
// root.
func parentKeyFromPath(path string) string {
	segments := strings.Split(path, "/")
	if len(segments) < 3 {
		return ""
	}
	return segments[len(segments)-2]
}

// graphNodeUUID maps an artifact node id onto a stable per-tenant UUID
// so repeated syncs upsert the same rows.
func graphNodeUUID(tenantID, nodeID string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(tenantID+":"+nodeID))
}

func (s *brainService) SyncGraph(ctx context.Context, token, tenantID string) (int, error) {
	if _, err := s.guard.Authorize(token, "SyncGraph", auth.Scope{TenantID: tenantID}); err != nil {
		return 0, err
	}
	artifact, err := s.store.ReadGraph()
	if err != nil {
		return 0, err
	}
	if artifact == nil {
		return 0, &apierr.PreconditionError{Stage: "sync", Artifact: pipeline.ArtifactGraph, Producer: pipeline.StageGraph}
	}

	nodes := make([]*domain.KnowledgeNode, 0, len(artifact.Nodes))
	for _, n := range artifact.Nodes {
		nodes = append(nodes, &domain.KnowledgeNode{
			ID:           graphNodeUUID(tenantID, n.ID),
			TenantID:     tenantID,
			NodeKind:     n.Kind,
			Title:        n.Label,
			SourceURI:    n.DocID,
			TaxonomyPath: n.TaxPath,
		})
	}
	if err := s.nodes.Upsert(ctx, nil, nodes); err != nil {
		return 0, fmt.Errorf("sync graph: upsert nodes: %w", err)
	}

	edges := make([]*domain.KnowledgeEdge, 0, len(artifact.Edges))
	for _, e := range artifact.Edges {
		edges = append(edges, &domain.KnowledgeEdge{
			TenantID:     tenantID,
			SourceID:     graphNodeUUID(tenantID, e.SourceID),
			TargetID:     graphNodeUUID(tenantID, e.TargetID),
			RelationType: e.Relation,
			Weight:       e.Weight,
		})
	}
	if err := s.edges.Upsert(ctx, nil, edges); err != nil {
		return 0, fmt.Errorf("sync graph: upsert edges: %w", err)
	}

	if s.mirror != nil {
		mirrored := make([]neo4jdb.EdgeMirror, 0, len(edges))
		for _, e := range edges {
			mirrored = append(mirrored, neo4jdb.EdgeMirror{
				SourceID: e.SourceID.String(),
				TargetID: e.TargetID.String(),
				Relation: e.RelationType,
				Weight:   e.Weight,
			})
		}
		if err := s.mirror.MirrorEdges(ctx, tenantID, mirrored); err != nil {
			// The SQL tables are the source of truth; a mirror outage is
			// logged, not fatal.
			s.log.Warn("sync graph: mirror unavailable", "error", err)
		}
	}
	s.log.Info("graph synced", "tenant_id", tenantID, "nodes", len(nodes), "edges", len(edges))
	return len(edges), nil
}
