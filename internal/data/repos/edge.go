package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

type KnowledgeEdgeRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, edges []*domain.KnowledgeEdge) error
	// Outgoing returns edges leaving any of sourceIDs, optionally limited
	// to the given relation types. One BFS frontier fetch per call.
	Outgoing(ctx context.Context, tx *gorm.DB, tenantID string, sourceIDs []uuid.UUID, relations []string) ([]*domain.KnowledgeEdge, error)
	CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)
}

type knowledgeEdgeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeEdgeRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeEdgeRepo {
	return &knowledgeEdgeRepo{db: db, log: baseLog.With("repo", "KnowledgeEdgeRepo")}
}

func (r *knowledgeEdgeRepo) Upsert(ctx context.Context, tx *gorm.DB, edges []*domain.KnowledgeEdge) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(edges) == 0 {
		return nil
	}
	for _, e := range edges {
		if e.ID == uuid.Nil {
			e.ID = uuid.New()
		}
	}
	const batchSize = 500
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "source_id"}, {Name: "target_id"}, {Name: "relation_type"}},
			DoUpdates: clause.AssignmentColumns([]string{"weight", "metadata"}),
		}).
		CreateInBatches(edges, batchSize).Error
}

func (r *knowledgeEdgeRepo) Outgoing(ctx context.Context, tx *gorm.DB, tenantID string, sourceIDs []uuid.UUID, relations []string) ([]*domain.KnowledgeEdge, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.KnowledgeEdge
	if tenantID == "" || len(sourceIDs) == 0 {
		return results, nil
	}
	q := transaction.WithContext(ctx).
		Where("tenant_id = ? AND source_id IN ?", tenantID, sourceIDs)
	if len(relations) > 0 {
		q = q.Where("relation_type IN ?", relations)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *knowledgeEdgeRepo) CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.KnowledgeEdge{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
