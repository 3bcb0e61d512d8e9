package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Candidate is one tenant-visible row carrying both score dimensions; a
// candidate found by only one retrieval path holds zero on the other.
type Candidate struct {
	ID           uuid.UUID `json:"id"`
	Title        string    `json:"title"`
	Content      string    `json:"content"`
	SourceType   string    `json:"source_type"`
	TaxonomyPath string    `json:"taxonomy_path"`
	VectorScore  float64   `json:"vector_score"`
	TextScore    float64   `json:"text_score"`
}

// Result is a fused, ranked candidate.
type Result struct {
	Candidate
	Score float64 `json:"score"`
}

// Request is one search invocation's target scope and query.
type Request struct {
	TenantID string
	// UserID widens visibility to the caller's personal rows; empty means
	// shared rows only.
	UserID string
	Query  string
	Limit  int
}

// CandidateStore retrieves tenant-visible candidates. Visibility
// filtering happens inside the store's queries, before any scoring, so
// out-of-scope rows never enter the ranking step.
type CandidateStore interface {
	VectorCandidates(ctx context.Context, tenantID, userID string, vector []float32, k int) ([]Candidate, error)
	LexicalCandidates(ctx context.Context, tenantID, userID, query string, k int) ([]Candidate, error)
}

// QueryEmbedder is the slice of the embedding cache the engine needs.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Engine is the hybrid retrieval core: vector and lexical candidates,
// union merge, pluggable score fusion and bounded graph expansion, all
// behind the guard.
type Engine struct {
	log        *logger.Logger
	guard      *auth.Guard
	embedder   QueryEmbedder
	store      CandidateStore
	scorer     Scorer
	expander   Expander
	candidateK int
}

func NewEngine(log *logger.Logger, cfg config.Config, guard *auth.Guard, embedder QueryEmbedder, store CandidateStore, expander Expander) (*Engine, error) {
	if log == nil {
		return nil, fmt.Errorf("search: logger required")
	}
	if guard == nil {
		return nil, fmt.Errorf("search: guard required")
	}
	if store == nil {
		return nil, fmt.Errorf("search: candidate store required")
	}
	candidateK := cfg.CandidateK
	if candidateK <= 0 {
		candidateK = 50
	}
	return &Engine{
		log:        log.With("service", "HybridSearchEngine"),
		guard:      guard,
		embedder:   embedder,
		store:      store,
		scorer:     NewScorer(cfg.FusionMode, cfg.VectorWeight, cfg.TextWeight, cfg.RRFK),
		expander:   expander,
		candidateK: candidateK,
	}, nil
}

// Scorer exposes the active fusion function, mostly for logging and
// handler responses.
func (e *Engine) Scorer() Scorer { return e.scorer }

// Search runs the full hybrid retrieval for one request.
func (e *Engine) Search(ctx context.Context, token string, req Request) ([]Result, error) {
	if _, err := e.guard.Authorize(token, "Search", auth.Scope{TenantID: req.TenantID}); err != nil {
		return nil, err
	}
	return e.retrieve(ctx, req)
}

// SearchStream runs hybrid retrieval and emits results one at a time.
// A cancelled context stops both candidate fetching and emission
// promptly; no downstream work happens past cancellation.
func (e *Engine) SearchStream(ctx context.Context, token string, req Request, emit func(Result) error) error {
	if _, err := e.guard.Authorize(token, "Search", auth.Scope{TenantID: req.TenantID}); err != nil {
		return err
	}
	results, err := e.retrieve(ctx, req)
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(r); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) retrieve(ctx context.Context, req Request) ([]Result, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("search: empty query")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	var vecCandidates []Candidate
	if e.embedder != nil {
		vector, err := e.embedder.Embed(ctx, query)
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vecCandidates, err = e.store.VectorCandidates(ctx, req.TenantID, req.UserID, vector, e.candidateK)
		if err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	textCandidates, err := e.store.LexicalCandidates(ctx, req.TenantID, req.UserID, query, e.candidateK)
	if err != nil {
		return nil, err
	}

	merged := unionCandidates(vecCandidates, textCandidates)
	results := e.scorer.Fuse(merged)
	if len(results) > limit {
		results = results[:limit]
	}
	e.log.Debug("search complete",
		"tenant_id", req.TenantID,
		"vector_candidates", len(vecCandidates),
		"lexical_candidates", len(textCandidates),
		"results", len(results),
		"scorer", e.scorer.Name(),
	)
	return results, nil
}

// GraphSearch retrieves hybrid results and expands their node ids over
// typed edges up to depth hops.
func (e *Engine) GraphSearch(ctx context.Context, token string, req Request, relations []string, depth int) ([]Result, []Frontier, error) {
	if _, err := e.guard.Authorize(token, "GraphSearch", auth.Scope{TenantID: req.TenantID}); err != nil {
		return nil, nil, err
	}
	results, err := e.retrieve(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	if e.expander == nil || len(results) == 0 {
		return results, nil, nil
	}
	entrypoints := make([]uuid.UUID, 0, len(results))
	for _, r := range results {
		entrypoints = append(entrypoints, r.ID)
	}
	frontier, err := e.expander.Expand(ctx, req.TenantID, entrypoints, relations, depth)
	if err != nil {
		return nil, nil, err
	}
	return results, frontier, nil
}

// unionCandidates merges the two candidate sets by node id, carrying
// both scores. The dimension a candidate lacks stays zero.
func unionCandidates(vector, lexical []Candidate) []Candidate {
	byID := make(map[uuid.UUID]int, len(vector)+len(lexical))
	out := make([]Candidate, 0, len(vector)+len(lexical))
	for _, c := range vector {
		byID[c.ID] = len(out)
		out = append(out, c)
	}
	for _, c := range lexical {
		if idx, ok := byID[c.ID]; ok {
			out[idx].TextScore = c.TextScore
			continue
		}
		byID[c.ID] = len(out)
		out = append(out, c)
	}
	return out
}
