package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

type EpisodeRepo interface {
	Add(ctx context.Context, tx *gorm.DB, episode *domain.ConversationEpisode) error
	Recent(ctx context.Context, tx *gorm.DB, tenantID string, userID uuid.UUID, limit int) ([]*domain.ConversationEpisode, error)
	// ListSince returns every episode newer than the cutoff across
	// tenants and users; feeds the persona stage.
	ListSince(ctx context.Context, since time.Time) ([]*domain.ConversationEpisode, error)
	// Cleanup deletes episodes older than the cutoff and reports how many
	// rows went away.
	Cleanup(ctx context.Context, tx *gorm.DB, tenantID string, olderThan time.Time) (int64, error)
}

type episodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEpisodeRepo(db *gorm.DB, baseLog *logger.Logger) EpisodeRepo {
	return &episodeRepo{db: db, log: baseLog.With("repo", "EpisodeRepo")}
}

func (r *episodeRepo) Add(ctx context.Context, tx *gorm.DB, episode *domain.ConversationEpisode) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if episode.ID == uuid.Nil {
		episode.ID = uuid.New()
	}
	if episode.CreatedAt.IsZero() {
		episode.CreatedAt = time.Now().UTC()
	}
	return transaction.WithContext(ctx).Create(episode).Error
}

func (r *episodeRepo) Recent(ctx context.Context, tx *gorm.DB, tenantID string, userID uuid.UUID, limit int) ([]*domain.ConversationEpisode, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if limit <= 0 {
		limit = 20
	}
	var results []*domain.ConversationEpisode
	if err := transaction.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *episodeRepo) ListSince(ctx context.Context, since time.Time) ([]*domain.ConversationEpisode, error) {
	var results []*domain.ConversationEpisode
	if err := r.db.WithContext(ctx).
		Where("created_at >= ?", since).
		Order("tenant_id ASC, user_id ASC, created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *episodeRepo) Cleanup(ctx context.Context, tx *gorm.DB, tenantID string, olderThan time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(ctx).
		Where("tenant_id = ? AND created_at < ?", tenantID, olderThan).
		Delete(&domain.ConversationEpisode{})
	return res.RowsAffected, res.Error
}
