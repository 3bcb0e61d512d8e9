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

type UserFactRepo interface {
	Upsert(ctx context.Context, tx *gorm.DB, fact *domain.UserFact) error
	ListByUser(ctx context.Context, tx *gorm.DB, tenantID string, userID uuid.UUID) ([]*domain.UserFact, error)
}

type userFactRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUserFactRepo(db *gorm.DB, baseLog *logger.Logger) UserFactRepo {
	return &userFactRepo{db: db, log: baseLog.With("repo", "UserFactRepo")}
}

func (r *userFactRepo) Upsert(ctx context.Context, tx *gorm.DB, fact *domain.UserFact) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if fact.ID == uuid.Nil {
		fact.ID = uuid.New()
	}
	fact.UpdatedAt = time.Now().UTC()
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "user_id"}, {Name: "fact_key"}},
			DoUpdates: clause.AssignmentColumns([]string{"value", "confidence", "updated_at"}),
		}).
		Create(fact).Error
}

func (r *userFactRepo) ListByUser(ctx context.Context, tx *gorm.DB, tenantID string, userID uuid.UUID) ([]*domain.UserFact, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*domain.UserFact
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("fact_key ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
