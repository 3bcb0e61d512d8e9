package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Embedder turns text into vectors. Implementations are network clients
// with latency and failure; everything above them goes through the
// cache.
type Embedder interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Model() string
	Dim() int
}

type openaiEmbedder struct {
	log        *logger.Logger
	http       *http.Client
	baseURL    string
	apiKey     string
	model      string
	dim        int
	maxRetries int
	retryDelay time.Duration
}

func NewOpenAIEmbedder(log *logger.Logger, cfg config.Config) (Embedder, error) {
	if log == nil {
		return nil, fmt.Errorf("embedding: logger required")
	}
	if strings.TrimSpace(cfg.EmbedAPIKey) == "" {
		return nil, fmt.Errorf("embedding: api key required")
	}
	return &openaiEmbedder{
		log:        log.With("service", "OpenAIEmbedder"),
		http:       &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(cfg.EmbedBaseURL, "/"),
		apiKey:     cfg.EmbedAPIKey,
		model:      cfg.EmbeddingModel,
		dim:        cfg.VectorDim,
		maxRetries: cfg.EmbedMaxRetries,
		retryDelay: cfg.EmbedRetryDelay,
	}, nil
}

func (e *openaiEmbedder) Model() string { return e.model }
func (e *openaiEmbedder) Dim() int      { return e.dim }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *openaiEmbedder) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i := range inputs {
		s := strings.TrimSpace(inputs[i])
		if s == "" {
			s = " "
		}
		clean[i] = s
	}

	var lastErr error
	delay := e.retryDelay
	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
		out, err := e.call(ctx, clean)
		if err == nil {
			return out, nil
		}
		lastErr = err
		e.log.Warn("embedding call failed", "attempt", attempt+1, "error", err)
	}
	return nil, &apierr.ProviderError{Provider: "embeddings", Err: lastErr}
}

func (e *openaiEmbedder) call(ctx context.Context, inputs []string) ([][]float32, error) {
	body, err := json.Marshal(embeddingsRequest{Model: e.model, Input: inputs})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("embeddings status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("embeddings returned %d vectors for %d inputs", len(parsed.Data), len(inputs))
	}

	out := make([][]float32, len(inputs))
	for _, d := range parsed.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		if d.Index >= 0 && d.Index < len(out) {
			out[d.Index] = vec
		}
	}
	for i, vec := range out {
		if vec == nil {
			return nil, fmt.Errorf("embeddings response missing index %d", i)
		}
		if e.dim > 0 && len(vec) != e.dim {
			return nil, fmt.Errorf("embedding dimension mismatch: expected=%d got=%d", e.dim, len(vec))
		}
	}
	return out, nil
}
