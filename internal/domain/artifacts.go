package domain

import "time"

// Stage artifacts are the pipeline's on-disk interchange records. Every
// artifact is immutable once its stage completes, with one exception:
// the enrich stage merges fields into CleanTextRecord additively (it
// never removes or rewrites prior content).

// CleanTextRecord is one normalized source document. DocID is the stable
// per-document merge key for no-overwrite runs.
type CleanTextRecord struct {
	DocID      string   `json:"doc_id"`
	SourceType string   `json:"source_type"`
	SourceURI  string   `json:"source_uri"`
	Title      string   `json:"title"`
	Text       string   `json:"text"`
	Chunks     []string `json:"chunks"`

	// Enrichment fields, additively merged; absent when enrich was
	// skipped. Consumers treat missing as empty.
	Entities   []string `json:"entities,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	Keyphrases []string `json:"keyphrases,omitempty"`

	IngestedAt time.Time `json:"ingested_at"`
}

// TaxonomyConcept is one canonical concept produced by canonicalization.
type TaxonomyConcept struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Domain   string `json:"domain"`
	Path     string `json:"path"`
	Count    int    `json:"count"`
	DocIndex int    `json:"doc_index"`
}

// AliasRecord maps a non-canonical surface form to a canonical key.
type AliasRecord struct {
	Alias        string  `json:"alias"`
	CanonicalKey string  `json:"canonical_key"`
	Language     string  `json:"language"`
	Confidence   float64 `json:"confidence"`
}

type TaxonomyArtifact struct {
	Concepts     []TaxonomyConcept `json:"concepts"`
	Categories   []string          `json:"categories"`
	CanonicalMap map[string]string `json:"canonical_map"`
	Aliases      []AliasRecord     `json:"aliases"`
	BuiltAt      time.Time         `json:"built_at"`
}

// RelationConstraint is one allowed (source kind, relation, target kind)
// triple.
type RelationConstraint struct {
	SourceKind string `json:"source_kind"`
	Relation   string `json:"relation"`
	TargetKind string `json:"target_kind"`
}

type OntologyArtifact struct {
	EntityTypes []string             `json:"entity_types"`
	Constraints []RelationConstraint `json:"constraints"`
	FactLabels  []string             `json:"fact_labels"`
	BuiltAt     time.Time            `json:"built_at"`
}

// Allows reports whether the triple is inside the constraint set.
func (o *OntologyArtifact) Allows(sourceKind, relation, targetKind string) bool {
	for _, c := range o.Constraints {
		if c.SourceKind == sourceKind && c.Relation == relation && c.TargetKind == targetKind {
			return true
		}
	}
	return false
}

// GraphArtifactSchemaVersion versions the explicit node/edge layout so
// the artifact stays inspectable across implementations.
const GraphArtifactSchemaVersion = 1

type GraphNodeRecord struct {
	ID       string `json:"id"`
	Kind     string `json:"kind"`
	Label    string `json:"label"`
	DocID    string `json:"doc_id,omitempty"`
	TaxPath  string `json:"taxonomy_path,omitempty"`
}

type GraphEdgeRecord struct {
	SourceID string  `json:"source_id"`
	TargetID string  `json:"target_id"`
	Relation string  `json:"relation"`
	Weight   float64 `json:"weight"`
}

type GraphArtifact struct {
	SchemaVersion int               `json:"schema_version"`
	Nodes         []GraphNodeRecord `json:"nodes"`
	Edges         []GraphEdgeRecord `json:"edges"`
	Violations    []string          `json:"violations"`
	BuiltAt       time.Time         `json:"built_at"`
}

// NeighborSummary is one depth-stamped entry of a bounded graph
// neighborhood.
type NeighborSummary struct {
	NodeID   string `json:"node_id"`
	Label    string `json:"label"`
	Relation string `json:"relation"`
	Depth    int    `json:"depth"`
}

// ShadowRecord joins one clean-text record with its resolved canonical
// labels, graph neighborhood and enrichment, ready for export.
type ShadowRecord struct {
	DocID        string              `json:"doc_id"`
	SourceType   string              `json:"source_type"`
	Title        string              `json:"title"`
	Text         string              `json:"text"`
	Labels       []string            `json:"labels"`
	Neighborhood []NeighborSummary   `json:"neighborhood"`
	Enrichment   map[string][]string `json:"enrichment,omitempty"`
	BuiltAt      time.Time           `json:"built_at"`
}

// ExportRecord is the target index's bulk wire format, one per source
// document.
type ExportRecord struct {
	ID         string         `json:"id"`
	SourceType string         `json:"source_type"`
	Title      string         `json:"title"`
	Content    string         `json:"content"`
	Labels     []string       `json:"labels"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// PersonaRecord summarizes a user's episodic history; produced by the
// optional persona stage.
type PersonaRecord struct {
	TenantID string    `json:"tenant_id"`
	UserID   string    `json:"user_id"`
	Summary  string    `json:"summary"`
	TopTerms []string  `json:"top_terms"`
	BuiltAt  time.Time `json:"built_at"`
}
