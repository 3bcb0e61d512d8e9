package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/data/repos"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// MemoryService is the guarded path for tenant- and user-scoped memory
// rows. Every operation targets personal data, so the guard's user-scope
// check applies throughout.
type MemoryService interface {
	AddEpisode(ctx context.Context, token, tenantID, userID, sessionID, role, content string) (*domain.ConversationEpisode, error)
	GetRecentEpisodes(ctx context.Context, token, tenantID, userID string, limit int) ([]*domain.ConversationEpisode, error)
	UpsertFact(ctx context.Context, token, tenantID, userID, factKey, value string, confidence float64) (*domain.UserFact, error)
	GetUserFacts(ctx context.Context, token, tenantID, userID string) ([]*domain.UserFact, error)
	// RetentionCleanup deletes a tenant's episodes older than the
	// retention window and reports the count.
	RetentionCleanup(ctx context.Context, token, tenantID string, retention time.Duration) (int64, error)
}

type memoryService struct {
	log      *logger.Logger
	episodes repos.EpisodeRepo
	facts    repos.UserFactRepo
	guard    *auth.Guard
}

func NewMemoryService(log *logger.Logger, episodes repos.EpisodeRepo, facts repos.UserFactRepo, guard *auth.Guard) (MemoryService, error) {
	if log == nil {
		return nil, fmt.Errorf("services: logger required")
	}
	if guard == nil {
		return nil, fmt.Errorf("services: guard required")
	}
	return &memoryService{
		log:      log.With("service", "MemoryService"),
		episodes: episodes,
		facts:    facts,
		guard:    guard,
	}, nil
}

func (s *memoryService) AddEpisode(ctx context.Context, token, tenantID, userID, sessionID, role, content string) (*domain.ConversationEpisode, error) {
	if _, err := s.guard.Authorize(token, "AddEpisode", auth.Scope{TenantID: tenantID, UserID: userID, Personal: true}); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, &apierr.ValidationError{Record: userID, Reason: "malformed user id"}
	}
	if strings.TrimSpace(content) == "" {
		return nil, &apierr.ValidationError{Record: sessionID, Reason: "empty episode content"}
	}
	episode := &domain.ConversationEpisode{
		TenantID:  tenantID,
		UserID:    uid,
		SessionID: sessionID,
		Role:      role,
		Content:   content,
	}
	if err := s.episodes.Add(ctx, nil, episode); err != nil {
		return nil, fmt.Errorf("add episode: %w", err)
	}
	return episode, nil
}

func (s *memoryService) GetRecentEpisodes(ctx context.Context, token, tenantID, userID string, limit int) ([]*domain.ConversationEpisode, error) {
	if _, err := s.guard.Authorize(token, "GetRecentEpisodes", auth.Scope{TenantID: tenantID, UserID: userID, Personal: true}); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, &apierr.ValidationError{Record: userID, Reason: "malformed user id"}
	}
	return s.episodes.Recent(ctx, nil, tenantID, uid, limit)
}

func (s *memoryService) UpsertFact(ctx context.Context, token, tenantID, userID, factKey, value string, confidence float64) (*domain.UserFact, error) {
	if _, err := s.guard.Authorize(token, "UpsertFact", auth.Scope{TenantID: tenantID, UserID: userID, Personal: true}); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, &apierr.ValidationError{Record: userID, Reason: "malformed user id"}
	}
	if strings.TrimSpace(factKey) == "" {
		return nil, &apierr.ValidationError{Record: userID, Reason: "empty fact key"}
	}
	if confidence <= 0 || confidence > 1 {
		confidence = 1.0
	}
	fact := &domain.UserFact{
		TenantID:   tenantID,
		UserID:     uid,
		FactKey:    factKey,
		Value:      value,
		Confidence: confidence,
	}
	if err := s.facts.Upsert(ctx, nil, fact); err != nil {
		return nil, fmt.Errorf("upsert fact: %w", err)
	}
	return fact, nil
}

func (s *memoryService) GetUserFacts(ctx context.Context, token, tenantID, userID string) ([]*domain.UserFact, error) {
	if _, err := s.guard.Authorize(token, "GetUserFacts", auth.Scope{TenantID: tenantID, UserID: userID, Personal: true}); err != nil {
		return nil, err
	}
	uid, err := uuid.Parse(userID)
	if err != nil {
		return nil, &apierr.ValidationError{Record: userID, Reason: "malformed user id"}
	}
	return s.facts.ListByUser(ctx, nil, tenantID, uid)
}

func (s *memoryService) RetentionCleanup(ctx context.Context, token, tenantID string, retention time.Duration) (int64, error) {
	if _, err := s.guard.Authorize(token, "RetentionCleanup", auth.Scope{TenantID: tenantID}); err != nil {
		return 0, err
	}
	if retention <= 0 {
		retention = 365 * 24 * time.Hour
	}
	deleted, err := s.episodes.Cleanup(ctx, nil, tenantID, time.Now().UTC().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("retention cleanup: %w", err)
	}
	s.log.Info("retention cleanup complete", "tenant_id", tenantID, "deleted", deleted)
	return deleted, nil
}
