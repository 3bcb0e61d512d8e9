package pipeline

import (
	"context"
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/domain"
)

const conceptDomain = "category"

// mention is one candidate concept occurrence before canonicalization.
type mention struct {
	text     string
	docIndex int
}

// Taxonomy runs the three-pass construction: candidate extraction,
// canonicalization by similarity clustering, and hierarchy assignment.
// Determinism contract: identical inputs and config yield identical
// canonical keys and parent assignments. Ties break on concept text
// ascending, then earliest source document index.
func (o *Orchestrator) Taxonomy(ctx context.Context) error {
	docs, err := o.store.ReadAllCleanText()
	if err != nil {
		return err
	}

	mentions := extractCandidates(docs)
	concepts, canonicalMap, aliases := o.canonicalize(mentions)
	if err := o.assignHierarchy(ctx, concepts); err != nil {
		return err
	}

	categories := map[string]struct{}{}
	for _, d := range docs {
		categories[d.SourceType] = struct{}{}
	}
	catList := make([]string, 0, len(categories))
	for c := range categories {
		catList = append(catList, c)
	}
	sort.Strings(catList)

	artifact := &domain.TaxonomyArtifact{
		Concepts:     concepts,
		Categories:   catList,
		CanonicalMap: canonicalMap,
		Aliases:      aliases,
		BuiltAt:      time.Now().UTC(),
	}
	if err := o.store.WriteTaxonomy(artifact); err != nil {
		return err
	}
	o.log.Info("taxonomy built",
		"concepts", len(concepts),
		"aliases", len(aliases),
		"categories", len(catList),
	)
	return nil
}

var candidatePattern = regexp.MustCompile(`[a-zA-Z][a-zA-Z\- ]{2,40}[a-zA-Z]`)

// extractCandidates (pass A) derives concept mentions from each clean
// document: enrichment keywords and entities when present, frequent
// capitalized or repeated terms otherwise.
func extractCandidates(docs []domain.CleanTextRecord) []mention {
	var out []mention
	for i, doc := range docs {
		seen := map[string]struct{}{}
		add := func(text string) {
			text = strings.TrimSpace(text)
			if len(text) < 3 {
				return
			}
			key := strings.ToLower(text)
			if _, ok := seen[key]; ok {
				return
			}
			seen[key] = struct{}{}
			out = append(out, mention{text: key, docIndex: i})
		}
		for _, k := range doc.Keywords {
			add(k)
		}
		for _, e := range doc.Entities {
			add(e)
		}
		for _, p := range doc.Keyphrases {
			add(p)
		}
		if len(doc.Keywords) == 0 && len(doc.Entities) == 0 {
			for _, t := range frequentTerms(doc.Text, 8) {
				add(t)
			}
		}
	}
	return out
}

// frequentTerms is the fallback extractor for unenriched documents:
// repeated multi-character terms ranked by frequency then text.
func frequentTerms(text string, limit int) []string {
	freq := map[string]int{}
	for _, m := range candidatePattern.FindAllString(strings.ToLower(text), -1) {
		for _, w := range strings.Fields(m) {
			if len(w) < 4 {
				continue
			}
			freq[w]++
		}
	}
	terms := make([]string, 0, len(freq))
	for t, n := range freq {
		if n >= 2 {
			terms = append(terms, t)
		}
	}
	sort.Slice(terms, func(i, j int) bool {
		if freq[terms[i]] != freq[terms[j]] {
			return freq[terms[i]] > freq[terms[j]]
		}
		return terms[i] < terms[j]
	})
	if len(terms) > limit {
		terms = terms[:limit]
	}
	return terms
}

// canonicalize (pass B) clusters mentions into canonical concepts by
// token overlap. Mentions are processed in fixed order so cluster seeds,
// and therefore canonical keys, are stable across runs.
func (o *Orchestrator) canonicalize(mentions []mention) ([]domain.TaxonomyConcept, map[string]string, []domain.AliasRecord) {
	sort.Slice(mentions, func(i, j int) bool {
		if mentions[i].text != mentions[j].text {
			return mentions[i].text < mentions[j].text
		}
		return mentions[i].docIndex < mentions[j].docIndex
	})

	type cluster struct {
		canonical string
		docIndex  int
		count     int
		members   map[string]float64
	}
	var clusters []*cluster
	for _, m := range mentions {
		var best *cluster
		bestSim := 0.0
		for _, c := range clusters {
			sim := tokenJaccard(m.text, c.canonical)
			if sim >= o.similarityThreshold && sim > bestSim {
				best, bestSim = c, sim
			}
		}
		if best == nil {
			clusters = append(clusters, &cluster{
				canonical: m.text,
				docIndex:  m.docIndex,
				count:     1,
				members:   map[string]float64{},
			})
			continue
		}
		best.count++
		if m.docIndex < best.docIndex {
			best.docIndex = m.docIndex
		}
		if m.text != best.canonical {
			if prev, ok := best.members[m.text]; !ok || bestSim > prev {
				best.members[m.text] = bestSim
			}
		}
	}

	concepts := make([]domain.TaxonomyConcept, 0, len(clusters))
	canonicalMap := map[string]string{}
	var aliases []domain.AliasRecord
	for _, c := range clusters {
		key := slug(c.canonical)
		concepts = append(concepts, domain.TaxonomyConcept{
			Key:      key,
			Text:     c.canonical,
			Domain:   conceptDomain,
			Count:    c.count,
			DocIndex: c.docIndex,
		})
		canonicalMap[c.canonical] = key
		memberTexts := make([]string, 0, len(c.members))
		for t := range c.members {
			memberTexts = append(memberTexts, t)
		}
		sort.Strings(memberTexts)
		for _, t := range memberTexts {
			canonicalMap[t] = key
			aliases = append(aliases, domain.AliasRecord{
				Alias:        t,
				CanonicalKey: key,
				Language:     "en",
				Confidence:   c.members[t],
			})
		}
	}
	sort.Slice(concepts, func(i, j int) bool {
		if concepts[i].Text != concepts[j].Text {
			return concepts[i].Text < concepts[j].Text
		}
		return concepts[i].DocIndex < concepts[j].DocIndex
	})
	return concepts, canonicalMap, aliases
}

// assignHierarchy (pass C) places each concept under a parent. With an
// embedder available the parent is the nearest already-placed concept
// above the similarity threshold; otherwise every concept sits under the
// domain root. Concepts are visited in canonical order so assignments
// are reproducible.
func (o *Orchestrator) assignHierarchy(ctx context.Context, concepts []domain.TaxonomyConcept) error {
	for i := range concepts {
		concepts[i].Path = conceptDomain + "/" + concepts[i].Key
	}
	if o.embedder == nil || len(concepts) < 2 {
		return nil
	}

	texts := make([]string, len(concepts))
	for i, c := range concepts {
		texts[i] = c.Text
	}
	vectors, err := o.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		// Hierarchy refinement is best effort; the flat layout above is
		// already valid.
		o.log.Warn("taxonomy: embedding unavailable, keeping flat hierarchy", "error", err)
		return nil
	}

	for i := 1; i < len(concepts); i++ {
		bestIdx := -1
		bestSim := o.similarityThreshold
		for j := 0; j < i; j++ {
			sim := cosine(vectors[i], vectors[j])
			if sim > bestSim || (sim == bestSim && bestIdx >= 0 && concepts[j].Text < concepts[bestIdx].Text) {
				bestIdx, bestSim = j, sim
			}
		}
		if bestIdx >= 0 {
			concepts[i].Path = concepts[bestIdx].Path + "/" + concepts[i].Key
		}
	}
	return nil
}

func tokenJaccard(a, b string) float64 {
	ta := strings.Fields(a)
	tb := strings.Fields(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(ta))
	for _, t := range ta {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(tb))
	for _, t := range tb {
		setB[t] = struct{}{}
	}
	inter := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			inter++
		}
	}
	union := len(setA) + len(setB) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

func slug(text string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(text), "-")
	return strings.Trim(s, "-")
}
