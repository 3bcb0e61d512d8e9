package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

type KnowledgeAliasRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, aliases []*domain.KnowledgeAlias) error
	// Resolve maps a surface form to its canonical node, matching the
	// stored alias case-insensitively.
	Resolve(ctx context.Context, tx *gorm.DB, tenantID, alias string) (*domain.KnowledgeAlias, error)
	ListByCanonical(ctx context.Context, tx *gorm.DB, tenantID string, canonicalID uuid.UUID) ([]*domain.KnowledgeAlias, error)
}

type knowledgeAliasRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewKnowledgeAliasRepo(db *gorm.DB, baseLog *logger.Logger) KnowledgeAliasRepo {
	return &knowledgeAliasRepo{db: db, log: baseLog.With("repo", "KnowledgeAliasRepo")}
}

func (r *knowledgeAliasRepo) Upsert(ctx context.Context, tx *gorm.DB, aliases []*domain.KnowledgeAlias) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(aliases) == 0 {
		return nil
	}
	for _, a := range aliases {
		if a.ID == uuid.Nil {
			a.ID = uuid.New()
		}
		a.Alias = strings.ToLower(strings.TrimSpace(a.Alias))
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "alias"}},
			DoUpdates: clause.AssignmentColumns([]string{"canonical_id", "confidence", "language"}),
		}).
		Create(aliases).Error
}

func (r *knowledgeAliasRepo) Resolve(ctx context.Context, tx *gorm.DB, tenantID, alias string) (*domain.KnowledgeAlias, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	alias = strings.ToLower(strings.TrimSpace(alias))
	if tenantID == "" || alias == "" {
		return nil, gorm.ErrRecordNotFound
	}
	var result domain.KnowledgeAlias
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND alias = ?", tenantID, alias).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *knowledgeAliasRepo) ListByCanonical(ctx context.Context, tx *gorm.DB, tenantID string, canonicalID uuid.UUID) ([]*domain.KnowledgeAlias, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.KnowledgeAlias
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND canonical_id = ?", tenantID, canonicalID).
		Order("alias ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
