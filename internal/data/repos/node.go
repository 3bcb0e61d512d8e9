package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

type KnowledgeNodeRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, nodes []*domain.KnowledgeNode) error
	GetByIDs(ctx context.Context, tx *gorm.DB, tenantID string, ids []uuid.UUID) ([]*domain.KnowledgeNode, error)
	CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error)
}

type knowledgeNodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeNodeRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeNodeRepo {
	return &knowledgeNodeRepo{db: db, log: baseLog.With("repo", "KnowledgeNodeRepo")}
}

func (r *knowledgeNodeRepo) Upsert(ctx context.Context, tx *gorm.DB, nodes []*domain.KnowledgeNode) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(nodes) == 0 {
		return nil
	}
	now := time.Now().UTC()
	for _, n := range nodes {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = now
		}
		n.UpdatedAt = now
	}
	// Content batches stay small because Content is large.
	const batchSize = 100
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"title", "content", "embedding", "taxonomy_path", "metadata", "updated_at"}),
		}).
		CreateInBatches(nodes, batchSize).Error
}

func (r *knowledgeNodeRepo) GetByIDs(ctx context.Context, tx *gorm.DB, tenantID string, ids []uuid.UUID) ([]*domain.KnowledgeNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.KnowledgeNode
	if len(ids) == 0 || tenantID == "" {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND id IN ?", tenantID, ids).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *knowledgeNodeRepo) CountByTenant(ctx context.Context, tx *gorm.DB, tenantID string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&domain.KnowledgeNode{}).
		Where("tenant_id = ?", tenantID).
		Count(&count).Error
	return count, err
}
