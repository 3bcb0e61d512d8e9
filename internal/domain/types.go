package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
)

// KnowledgeNode is a persisted knowledge-base row: a text chunk or a
// canonical concept. The embedding is immutable once written; a
// re-embed replaces the whole row, never a slice of the vector.
type KnowledgeNode struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID string    `gorm:"type:text;not null;index:idx_knowledge_node_tenant" json:"tenant_id"`
	// UserID restricts visibility to one user when set (personal data).
	UserID *uuid.UUID `gorm:"type:uuid;index" json:"user_id,omitempty"`

	NodeKind   string `gorm:"type:text;not null;default:'chunk'" json:"node_kind"`
	Domain     string `gorm:"type:text;not null;default:''" json:"domain"`
	SourceType string `gorm:"type:text;not null;default:'';index" json:"source_type"`
	SourceURI  string `gorm:"type:text;not null;default:''" json:"source_uri"`
	Title      string `gorm:"type:text;not null;default:''" json:"title"`
	Content    string `gorm:"type:text;not null;default:''" json:"content"`

	// Vector dimension follows the deployment config; 1536 is the default
	// DDL, see db.Service.
	Embedding *pgvector.Vector `gorm:"type:vector(1536)" json:"-"`

	TaxonomyPath string         `gorm:"type:text;not null;default:''" json:"taxonomy_path"`
	Metadata     datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (KnowledgeNode) TableName() string { return "knowledge_nodes" }

// KnowledgeEdge is a typed relation between two existing nodes. The
// (source kind, relation, target kind) triple must satisfy the active
// ontology or the edge is rejected during graph build.
type KnowledgeEdge struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID     string    `gorm:"type:text;not null;index:idx_knowledge_edge_tenant;index:idx_knowledge_edge_unique,unique,priority:1" json:"tenant_id"`
	SourceID     uuid.UUID `gorm:"type:uuid;not null;index;index:idx_knowledge_edge_unique,unique,priority:2" json:"source_id"`
	TargetID     uuid.UUID `gorm:"type:uuid;not null;index;index:idx_knowledge_edge_unique,unique,priority:3" json:"target_id"`
	RelationType string    `gorm:"type:text;not null;index:idx_knowledge_edge_unique,unique,priority:4" json:"relation_type"`
	Weight       float64   `gorm:"not null;default:1.0" json:"weight"`

	Metadata  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (KnowledgeEdge) TableName() string { return "knowledge_edges" }

// KnowledgeAlias maps a surface form onto its canonical node.
type KnowledgeAlias struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID    string    `gorm:"type:text;not null;index:idx_knowledge_alias_unique,unique,priority:1" json:"tenant_id"`
	CanonicalID uuid.UUID `gorm:"type:uuid;not null;index" json:"canonical_id"`
	Alias       string    `gorm:"type:text;not null;index:idx_knowledge_alias_unique,unique,priority:2" json:"alias"`
	Language    string    `gorm:"type:text;not null;default:'en'" json:"language"`
	Confidence  float64   `gorm:"not null;default:1.0" json:"confidence"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (KnowledgeAlias) TableName() string { return "knowledge_aliases" }

// TaxonomyNode is one node of a per-domain hierarchy. Invariant: Path is
// exactly the parent's Path extended by one segment; roots have no parent.
type TaxonomyNode struct {
	ID       uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID string     `gorm:"type:text;not null;index:idx_taxonomy_unique,unique,priority:1" json:"tenant_id"`
	Domain   string     `gorm:"type:text;not null;index:idx_taxonomy_unique,unique,priority:2" json:"domain"`
	Code     string     `gorm:"type:text;not null;index:idx_taxonomy_unique,unique,priority:3" json:"code"`
	Name     string     `gorm:"type:text;not null;default:''" json:"name"`
	Path     string     `gorm:"type:text;not null;index" json:"path"`
	ParentID *uuid.UUID `gorm:"type:uuid;index" json:"parent_id,omitempty"`

	Metadata  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxonomyNode) TableName() string { return "taxonomy_nodes" }

// ConversationEpisode is tenant- and user-scoped conversational memory.
type ConversationEpisode struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID  string    `gorm:"type:text;not null;index" json:"tenant_id"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	SessionID string    `gorm:"type:text;not null;default:'';index" json:"session_id"`
	Role      string    `gorm:"type:text;not null;default:'user'" json:"role"`
	Content   string    `gorm:"type:text;not null;default:''" json:"content"`

	Metadata  datatypes.JSON `gorm:"type:jsonb;not null;default:'{}'" json:"metadata"`
	CreatedAt time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (ConversationEpisode) TableName() string { return "conversation_episodes" }

// UserFact is a durable per-user fact keyed by (tenant, user, fact key).
type UserFact struct {
	ID       uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	TenantID string    `gorm:"type:text;not null;index:idx_user_fact_unique,unique,priority:1" json:"tenant_id"`
	UserID   uuid.UUID `gorm:"type:uuid;not null;index:idx_user_fact_unique,unique,priority:2" json:"user_id"`
	FactKey  string    `gorm:"type:text;not null;index:idx_user_fact_unique,unique,priority:3" json:"fact_key"`
	Value    string    `gorm:"type:text;not null;default:''" json:"value"`

	Confidence float64   `gorm:"not null;default:1.0" json:"confidence"`
	UpdatedAt  time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (UserFact) TableName() string { return "user_facts" }
