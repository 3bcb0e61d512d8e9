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

type TaxonomyRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, nodes []*domain.TaxonomyNode) error
	GetAll(ctx context.Context, tx *gorm.DB, tenantID, taxDomain string) ([]*domain.TaxonomyNode, error)
	GetByCode(ctx context.Context, tx *gorm.DB, tenantID, taxDomain, code string) (*domain.TaxonomyNode, error)
}

type taxonomyRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTaxonomyRepo(db *gorm.DB, baseLog *logger.Logger) TaxonomyRepo {
	return &taxonomyRepo{db: db, log: baseLog.With("repo", "TaxonomyRepo")}
}

func (r *taxonomyRepo) Upsert(ctx context.Context, tx *gorm.DB, nodes []*domain.TaxonomyNode) error {
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
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "domain"}, {Name: "code"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "path", "parent_id", "metadata", "updated_at"}),
		}).
		Create(nodes).Error
}

func (r *taxonomyRepo) GetAll(ctx context.Context, tx *gorm.DB, tenantID, taxDomain string) ([]*domain.TaxonomyNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.TaxonomyNode
	if tenantID == "" {
		return results, nil
	}
	q := transaction.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if taxDomain != "" {
		q = q.Where("domain = ?", taxDomain)
	}
	if err := q.Order("path ASC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *taxonomyRepo) GetByCode(ctx context.Context, tx *gorm.DB, tenantID, taxDomain, code string) (*domain.TaxonomyNode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result domain.TaxonomyNode
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND domain = ? AND code = ?", tenantID, taxDomain, code).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}
