package pipeline

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/domain"
)

// personaWindow bounds how far back the persona stage reads episodes.
const personaWindow = 90 * 24 * time.Hour

// Persona summarizes each user's recent episodic history into a persona
// record. Optional stage; it only participates in Run when enabled.
func (o *Orchestrator) Persona(ctx context.Context) error {
	if o.episodes == nil {
		return fmt.Errorf("persona: no episode source configured")
	}
	episodes, err := o.episodes.ListSince(ctx, time.Now().UTC().Add(-personaWindow))
	if err != nil {
		return err
	}

	type userKey struct {
		tenant string
		user   string
	}
	grouped := map[userKey][]*domain.ConversationEpisode{}
	for _, ep := range episodes {
		k := userKey{tenant: ep.TenantID, user: ep.UserID.String()}
		grouped[k] = append(grouped[k], ep)
	}

	keys := make([]userKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].tenant != keys[j].tenant {
			return keys[i].tenant < keys[j].tenant
		}
		return keys[i].user < keys[j].user
	})

	records := make([]domain.PersonaRecord, 0, len(keys))
	for _, k := range keys {
		eps := grouped[k]
		terms := topTerms(eps, 8)
		records = append(records, domain.PersonaRecord{
			TenantID: k.tenant,
			UserID:   k.user,
			Summary:  fmt.Sprintf("%d episodes over the last %d days; recurring topics: %s", len(eps), int(personaWindow.Hours()/24), strings.Join(terms, ", ")),
			TopTerms: terms,
			BuiltAt:  time.Now().UTC(),
		})
	}
	if err := o.store.WritePersona(records); err != nil {
		return err
	}
	o.log.Info("personas built", "users", len(records), "episodes", len(episodes))
	return nil
}

func topTerms(eps []*domain.ConversationEpisode, limit int) []string {
	freq := map[string]int{}
	for _, ep := range eps {
		for _, w := range strings.Fields(strings.ToLower(ep.Content)) {
			w = strings.Trim(w, ".,!?;:\"'()")
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
