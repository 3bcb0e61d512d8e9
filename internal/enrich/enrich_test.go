package enrich

import (
	"context"
	"testing"

	"github.com/yungbote/contextbrain/internal/domain"
)

func TestRegexEnricherAdditiveMerge(t *testing.T) {
	e := &regexEnricher{}
	rec := &domain.CleanTextRecord{
		DocID: "doc-1",
		Text:  "Acme Corp builds database systems. The database engine ships with replication. Acme Corp maintains the replication protocol.",
		// Pre-existing enrichment must survive untouched.
		Keywords: []string{"preexisting"},
	}
	if err := e.Enrich(context.Background(), rec); err != nil {
		t.Fatalf("Enrich: %v", err)
	}

	foundEntity := false
	for _, ent := range rec.Entities {
		if ent == "Acme Corp" {
			foundEntity = true
		}
	}
	if !foundEntity {
		t.Fatalf("expected entity %q, got %v", "Acme Corp", rec.Entities)
	}

	if rec.Keywords[0] != "preexisting" {
		t.Fatalf("existing keyword was displaced: %v", rec.Keywords)
	}
	foundKeyword := false
	for _, kw := range rec.Keywords {
		if kw == "database" || kw == "replication" {
			foundKeyword = true
		}
	}
	if !foundKeyword {
		t.Fatalf("expected frequency keywords, got %v", rec.Keywords)
	}
}

func TestRegexEnricherIdempotent(t *testing.T) {
	e := &regexEnricher{}
	rec := &domain.CleanTextRecord{
		DocID: "doc-1",
		Text:  "Graph storage relies on graph storage semantics.",
	}
	if err := e.Enrich(context.Background(), rec); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	first := len(rec.Keywords)
	if err := e.Enrich(context.Background(), rec); err != nil {
		t.Fatalf("Enrich (second): %v", err)
	}
	if len(rec.Keywords) != first {
		t.Fatalf("second pass grew keywords from %d to %d", first, len(rec.Keywords))
	}
}

func TestRegexEnricherSkipsSingleWordEntities(t *testing.T) {
	e := &regexEnricher{}
	rec := &domain.CleanTextRecord{Text: "Yesterday the team shipped. John Smith reviewed it."}
	if err := e.Enrich(context.Background(), rec); err != nil {
		t.Fatalf("Enrich: %v", err)
	}
	for _, ent := range rec.Entities {
		if ent == "Yesterday" {
			t.Fatalf("sentence-initial word leaked as entity: %v", rec.Entities)
		}
	}
}
