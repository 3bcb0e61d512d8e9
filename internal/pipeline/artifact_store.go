package pipeline

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Artifact names as they appear on disk and in precondition messages.
const (
	ArtifactCleanText = "clean_text"
	ArtifactTaxonomy  = "taxonomy"
	ArtifactOntology  = "ontology"
	ArtifactGraph     = "graph"
	ArtifactShadow    = "shadow"
	ArtifactExport    = "export"
	ArtifactPersona   = "persona"
)

// ArtifactStore owns the pipeline's on-disk interchange layout. Record
// artifacts (clean text, shadow, export) are line-delimited JSON per
// source type; structural artifacts (taxonomy, ontology, graph) are one
// JSON document each. Writes go through a temp file and a rename so a
// failed stage never leaves a partial artifact behind.
type ArtifactStore struct {
	log  *logger.Logger
	root string
}

func NewArtifactStore(log *logger.Logger, root string) (*ArtifactStore, error) {
	if log == nil {
		return nil, fmt.Errorf("pipeline: logger required")
	}
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("pipeline: artifact root required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("pipeline: create artifact root: %w", err)
	}
	return &ArtifactStore{log: log.With("service", "ArtifactStore"), root: root}, nil
}

func (s *ArtifactStore) recordPath(artifact, sourceType string) string {
	return filepath.Join(s.root, artifact, sourceType+".jsonl")
}

func (s *ArtifactStore) objectPath(artifact string) string {
	return filepath.Join(s.root, artifact+".json")
}

// RecordModTime returns the newest mtime across a record artifact's
// per-type files, or zero when none exist.
func (s *ArtifactStore) RecordModTime(artifact string) time.Time {
	dir := filepath.Join(s.root, artifact)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Time{}
	}
	var newest time.Time
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}
	}
	return newest
}

// ObjectModTime returns a structural artifact's mtime, or zero when it
// does not exist.
func (s *ArtifactStore) ObjectModTime(artifact string) time.Time {
	info, err := os.Stat(s.objectPath(artifact))
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}

// SourceTypes lists the per-type partitions present for a record
// artifact, sorted for determinism.
func (s *ArtifactStore) SourceTypes(artifact string) []string {
	dir := filepath.Join(s.root, artifact)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var types []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".jsonl") {
			continue
		}
		types = append(types, strings.TrimSuffix(e.Name(), ".jsonl"))
	}
	sort.Strings(types)
	return types
}

func writeLines[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	enc := json.NewEncoder(w)
	for i := range records {
		if err := enc.Encode(records[i]); err != nil {
			tmp.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readLines[T any](path string) ([]T, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var out []T
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var rec T
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func writeObject[T any](path string, obj T) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(obj); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func readObject[T any](path string) (*T, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var obj T
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &obj, nil
}

func (s *ArtifactStore) WriteCleanText(sourceType string, records []domain.CleanTextRecord) error {
	return writeLines(s.recordPath(ArtifactCleanText, sourceType), records)
}

func (s *ArtifactStore) ReadCleanText(sourceType string) ([]domain.CleanTextRecord, error) {
	return readLines[domain.CleanTextRecord](s.recordPath(ArtifactCleanText, sourceType))
}

// ReadAllCleanText returns every clean-text record across source types,
// in source-type order then file order.
func (s *ArtifactStore) ReadAllCleanText() ([]domain.CleanTextRecord, error) {
	var out []domain.CleanTextRecord
	for _, st := range s.SourceTypes(ArtifactCleanText) {
		recs, err := s.ReadCleanText(st)
		if err != nil {
			return nil, err
		}
		out = append(out, recs...)
	}
	return out, nil
}

func (s *ArtifactStore) WriteTaxonomy(a *domain.TaxonomyArtifact) error {
	return writeObject(s.objectPath(ArtifactTaxonomy), a)
}

func (s *ArtifactStore) ReadTaxonomy() (*domain.TaxonomyArtifact, error) {
	return readObject[domain.TaxonomyArtifact](s.objectPath(ArtifactTaxonomy))
}

func (s *ArtifactStore) WriteOntology(a *domain.OntologyArtifact) error {
	return writeObject(s.objectPath(ArtifactOntology), a)
}

func (s *ArtifactStore) ReadOntology() (*domain.OntologyArtifact, error) {
	return readObject[domain.OntologyArtifact](s.objectPath(ArtifactOntology))
}

func (s *ArtifactStore) WriteGraph(a *domain.GraphArtifact) error {
	return writeObject(s.objectPath(ArtifactGraph), a)
}

func (s *ArtifactStore) ReadGraph() (*domain.GraphArtifact, error) {
	return readObject[domain.GraphArtifact](s.objectPath(ArtifactGraph))
}

func (s *ArtifactStore) WriteShadow(sourceType string, records []domain.ShadowRecord) error {
	return writeLines(s.recordPath(ArtifactShadow, sourceType), records)
}

func (s *ArtifactStore) ReadShadow(sourceType string) ([]domain.ShadowRecord, error) {
	return readLines[domain.ShadowRecord](s.recordPath(ArtifactShadow, sourceType))
}

func (s *ArtifactStore) WriteExport(sourceType string, records []domain.ExportRecord) error {
	return writeLines(s.recordPath(ArtifactExport, sourceType), records)
}

func (s *ArtifactStore) ReadExport(sourceType string) ([]domain.ExportRecord, error) {
	return readLines[domain.ExportRecord](s.recordPath(ArtifactExport, sourceType))
}

func (s *ArtifactStore) WritePersona(records []domain.PersonaRecord) error {
	return writeLines(s.recordPath(ArtifactPersona, "personas"), records)
}

func (s *ArtifactStore) ReadPersona() ([]domain.PersonaRecord, error) {
	return readLines[domain.PersonaRecord](s.recordPath(ArtifactPersona, "personas"))
}
