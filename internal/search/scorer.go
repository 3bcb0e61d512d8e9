package search

import (
	"sort"
	"strings"
)

// Scorer fuses a candidate union's vector and lexical scores into one
// ranking. Pluggable; the weighted sum is the documented default and
// reciprocal-rank fusion the alternative.
type Scorer interface {
	Name() string
	Fuse(candidates []Candidate) []Result
}

// NewScorer selects the fusion function by config name. Unknown names
// fall back to the weighted default.
func NewScorer(mode string, vectorWeight, textWeight float64, rrfK int) Scorer {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "rrf":
		if rrfK <= 0 {
			rrfK = 60
		}
		return &rrfScorer{k: rrfK}
	default:
		if vectorWeight <= 0 && textWeight <= 0 {
			vectorWeight, textWeight = 0.8, 0.2
		}
		return &weightedScorer{vectorWeight: vectorWeight, textWeight: textWeight}
	}
}

// weightedScorer normalizes each score dimension to [0,1] by its
// maximum over the candidate set, then takes the weighted sum. A
// candidate missing one dimension contributes zero on it.
type weightedScorer struct {
	vectorWeight float64
	textWeight   float64
}

func (s *weightedScorer) Name() string { return "weighted" }

func (s *weightedScorer) Fuse(candidates []Candidate) []Result {
	var maxVec, maxText float64
	for _, c := range candidates {
		if c.VectorScore > maxVec {
			maxVec = c.VectorScore
		}
		if c.TextScore > maxText {
			maxText = c.TextScore
		}
	}
	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		var score float64
		if maxVec > 0 {
			score += s.vectorWeight * (c.VectorScore / maxVec)
		}
		if maxText > 0 {
			score += s.textWeight * (c.TextScore / maxText)
		}
		results = append(results, Result{Candidate: c, Score: score})
	}
	sortResults(results)
	return results
}

// rrfScorer ranks each dimension independently and scores a candidate
// by the sum of reciprocal ranks, 1/(k+rank).
type rrfScorer struct {
	k int
}

func (s *rrfScorer) Name() string { return "rrf" }

func (s *rrfScorer) Fuse(candidates []Candidate) []Result {
	byVec := make([]int, len(candidates))
	byText := make([]int, len(candidates))
	for i := range candidates {
		byVec[i], byText[i] = i, i
	}
	sort.SliceStable(byVec, func(a, b int) bool {
		return candidates[byVec[a]].VectorScore > candidates[byVec[b]].VectorScore
	})
	sort.SliceStable(byText, func(a, b int) bool {
		return candidates[byText[a]].TextScore > candidates[byText[b]].TextScore
	})

	scores := make([]float64, len(candidates))
	for rank, idx := range byVec {
		if candidates[idx].VectorScore > 0 {
			scores[idx] += 1.0 / float64(s.k+rank+1)
		}
	}
	for rank, idx := range byText {
		if candidates[idx].TextScore > 0 {
			scores[idx] += 1.0 / float64(s.k+rank+1)
		}
	}
	results := make([]Result, 0, len(candidates))
	for i, c := range candidates {
		results = append(results, Result{Candidate: c, Score: scores[i]})
	}
	sortResults(results)
	return results
}

func sortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID.String() < results[j].ID.String()
	})
}
