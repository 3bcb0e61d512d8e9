package search

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/yungbote/contextbrain/internal/db"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// sqlCandidateStore runs the candidate queries on raw pooled
// connections. Tenant and user predicates sit inside the WHERE clause,
// ahead of ordering and limiting, so invisible rows never reach the
// scorer and cannot leak ranking signal.
type sqlCandidateStore struct {
	log *logger.Logger
	svc *db.Service
}

func NewSQLCandidateStore(log *logger.Logger, svc *db.Service) (CandidateStore, error) {
	if log == nil {
		return nil, fmt.Errorf("search: logger required")
	}
	if svc == nil {
		return nil, fmt.Errorf("search: db service required")
	}
	return &sqlCandidateStore{log: log.With("service", "SQLCandidateStore"), svc: svc}, nil
}

const vectorCandidateSQL = `
SELECT id, title, content, source_type, taxonomy_path,
       1 - (embedding <=> $1) AS score
FROM knowledge_nodes
WHERE tenant_id = $2
  AND (user_id IS NULL OR user_id = $3)
  AND embedding IS NOT NULL
ORDER BY embedding <=> $1
LIMIT $4`

func (s *sqlCandidateStore) VectorCandidates(ctx context.Context, tenantID, userID string, vector []float32, k int) ([]Candidate, error) {
	conn, err := s.svc.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, vectorCandidateSQL, pgvector.NewVector(vector), tenantID, nullableUUID(userID), k)
	if err != nil {
		return nil, fmt.Errorf("search: vector candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &c.SourceType, &c.TaxonomyPath, &c.VectorScore); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const lexicalCandidateSQL = `
SELECT id, title, content, source_type, taxonomy_path,
       ts_rank_cd(search_vector, websearch_to_tsquery('simple', $1)) AS score
FROM knowledge_nodes
WHERE tenant_id = $2
  AND (user_id IS NULL OR user_id = $3)
  AND search_vector @@ websearch_to_tsquery('simple', $1)
ORDER BY score DESC
LIMIT $4`

func (s *sqlCandidateStore) LexicalCandidates(ctx context.Context, tenantID, userID, query string, k int) ([]Candidate, error) {
	conn, err := s.svc.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, lexicalCandidateSQL, query, tenantID, nullableUUID(userID), k)
	if err != nil {
		return nil, fmt.Errorf("search: lexical candidates: %w", err)
	}
	defer rows.Close()

	var out []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.ID, &c.Title, &c.Content, &c.SourceType, &c.TaxonomyPath, &c.TextScore); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// nullableUUID maps an absent user scope to SQL NULL so the visibility
// predicate reduces to shared rows only.
func nullableUUID(id string) any {
	if id == "" {
		return nil
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed
	}
	return nil
}
