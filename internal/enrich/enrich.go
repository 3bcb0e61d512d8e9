package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Enricher adds entities, keywords and keyphrases to a clean-text
// record. Implementations never remove or rewrite existing fields.
type Enricher interface {
	Enrich(ctx context.Context, rec *domain.CleanTextRecord) error
	Name() string
}

// Probe selects the enricher once at startup: the model-backed variant
// when the NLP service answers its health check, otherwise the regex
// fallback. Call sites only ever see the interface.
func Probe(log *logger.Logger, cfg config.Config) Enricher {
	url := strings.TrimSpace(cfg.EnrichURL)
	if url != "" {
		client := &http.Client{Timeout: 10 * time.Second}
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, strings.TrimRight(url, "/")+"/health", nil)
		if err == nil {
			if resp, err := client.Do(req); err == nil {
				resp.Body.Close()
				if resp.StatusCode == http.StatusOK {
					log.Info("enrichment: model service available", "url", url)
					return &modelEnricher{log: log.With("service", "ModelEnricher"), http: client, baseURL: strings.TrimRight(url, "/")}
				}
			}
		}
		log.Warn("enrichment: model service unreachable, falling back to regex", "url", url)
	}
	return &regexEnricher{log: log.With("service", "RegexEnricher")}
}

type modelEnricher struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
}

func (m *modelEnricher) Name() string { return "model" }

type enrichRequest struct {
	Text string `json:"text"`
}

type enrichResponse struct {
	Entities   []string `json:"entities"`
	Keywords   []string `json:"keywords"`
	Keyphrases []string `json:"keyphrases"`
}

func (m *modelEnricher) Enrich(ctx context.Context, rec *domain.CleanTextRecord) error {
	body, err := json.Marshal(enrichRequest{Text: rec.Text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/enrich", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("enrich call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("enrich status %d", resp.StatusCode)
	}
	var parsed enrichResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return err
	}
	rec.Entities = mergeUnique(rec.Entities, parsed.Entities)
	rec.Keywords = mergeUnique(rec.Keywords, parsed.Keywords)
	rec.Keyphrases = mergeUnique(rec.Keyphrases, parsed.Keyphrases)
	return nil
}

// regexEnricher is the zero-dependency fallback: capitalized sequences
// become entities, frequent non-stopword terms become keywords, and
// adjacent keyword pairs become keyphrases.
type regexEnricher struct {
	log *logger.Logger
}

func (r *regexEnricher) Name() string { return "regex" }

var (
	entityPattern = regexp.MustCompile(`\b[A-Z][a-z]+(?:\s+[A-Z][a-z]+)*\b`)
	wordPattern   = regexp.MustCompile(`[a-zA-Z][a-zA-Z\-]{2,}`)
)

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "that": {}, "with": {}, "this": {},
	"from": {}, "are": {}, "was": {}, "were": {}, "has": {}, "have": {},
	"had": {}, "not": {}, "but": {}, "its": {}, "his": {}, "her": {},
	"they": {}, "them": {}, "their": {}, "which": {}, "what": {},
	"when": {}, "where": {}, "will": {}, "would": {}, "can": {},
	"could": {}, "should": {}, "into": {}, "than": {}, "then": {},
	"also": {}, "been": {}, "being": {}, "more": {}, "most": {},
	"some": {}, "such": {}, "only": {}, "other": {}, "about": {},
}

const maxKeywords = 10

func (r *regexEnricher) Enrich(_ context.Context, rec *domain.CleanTextRecord) error {
	rec.Entities = mergeUnique(rec.Entities, r.entities(rec.Text))
	keywords := r.keywords(rec.Text)
	rec.Keywords = mergeUnique(rec.Keywords, keywords)
	rec.Keyphrases = mergeUnique(rec.Keyphrases, r.keyphrases(rec.Text, keywords))
	return nil
}

func (r *regexEnricher) entities(text string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, m := range entityPattern.FindAllString(text, -1) {
		// Single capitalized words at sentence starts are too noisy.
		if !strings.Contains(m, " ") {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func (r *regexEnricher) keywords(text string) []string {
	freq := map[string]int{}
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if _, stop := stopwords[w]; stop {
			continue
		}
		freq[w]++
	}
	terms := make([]string, 0, len(freq))
	for w := range freq {
		terms = append(terms, w)
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > maxKeywords {
		terms = terms[:maxKeywords]
	}
	return terms
}

func (r *regexEnricher) keyphrases(text string, keywords []string) []string {
	kw := map[string]struct{}{}
	for _, k := range keywords {
		kw[k] = struct{}{}
	}
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	seen := map[string]struct{}{}
	var out []string
	for i := 0; i+1 < len(words); i++ {
		_, a := kw[words[i]]
		_, b := kw[words[i+1]]
		if !a || !b {
			continue
		}
		phrase := words[i] + " " + words[i+1]
		if _, ok := seen[phrase]; ok {
			continue
		}
		seen[phrase] = struct{}{}
		out = append(out, phrase)
	}
	return out
}

func mergeUnique(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	out := existing
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range incoming {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
