package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/contextbrain/internal/domain"
)

// Entity kinds the graph stage produces. The ontology's constraint set
// is expressed over these.
const (
	KindDocument = "document"
	KindConcept  = "concept"
	KindEntity   = "entity"
)

// Relation labels the graph stage may emit.
const (
	RelMentions  = "mentions"
	RelRelatedTo = "related_to"
	RelParentOf  = "parent_of"
	RelCooccurs  = "cooccurs_with"
)

// Ontology consumes the finalized taxonomy and emits the entity-type
// schema, the allowed (source kind, relation, target kind) triples, and
// the fact-label vocabulary used to validate graph edges.
func (o *Orchestrator) Ontology(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tax, err := o.store.ReadTaxonomy()
	if err != nil {
		return err
	}
	if tax == nil {
		return fmt.Errorf("ontology: taxonomy artifact unreadable")
	}

	artifact := &domain.OntologyArtifact{
		EntityTypes: []string{KindConcept, KindDocument, KindEntity},
		Constraints: []domain.RelationConstraint{
			{SourceKind: KindDocument, Relation: RelMentions, TargetKind: KindConcept},
			{SourceKind: KindDocument, Relation: RelMentions, TargetKind: KindEntity},
			{SourceKind: KindConcept, Relation: RelParentOf, TargetKind: KindConcept},
			{SourceKind: KindConcept, Relation: RelRelatedTo, TargetKind: KindConcept},
			{SourceKind: KindConcept, Relation: RelCooccurs, TargetKind: KindConcept},
			{SourceKind: KindEntity, Relation: RelRelatedTo, TargetKind: KindConcept},
		},
		FactLabels: []string{RelMentions, RelRelatedTo, RelParentOf, RelCooccurs},
		BuiltAt:    time.Now().UTC(),
	}
	if err := o.store.WriteOntology(artifact); err != nil {
		return err
	}
	o.log.Info("ontology built",
		"entity_types", len(artifact.EntityTypes),
		"constraints", len(artifact.Constraints),
		"taxonomy_concepts", len(tax.Concepts),
	)
	return nil
}
