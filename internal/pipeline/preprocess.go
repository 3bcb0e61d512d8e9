package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/domain"
)

// rawDocument is the loosest input shape we accept from .json sources;
// .txt and .md sources become Text directly.
type rawDocument struct {
	Title string `json:"title"`
	Text  string `json:"text"`
	URI   string `json:"uri"`
}

// preprocessSourceType normalizes every raw document of one source type
// into clean-text records. DocID is the raw filename without extension,
// which keeps reruns and no-overwrite merges stable.
func (o *Orchestrator) preprocessSourceType(ctx context.Context, sourceType string) ([]domain.CleanTextRecord, error) {
	dir := filepath.Join(o.rawRoot, sourceType)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read raw dir %q: %w", dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".md", ".json":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	records := make([]domain.CleanTextRecord, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(dir, name)
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", path, err)
		}

		rec := domain.CleanTextRecord{
			DocID:      strings.TrimSuffix(name, filepath.Ext(name)),
			SourceType: sourceType,
			SourceURI:  path,
			IngestedAt: time.Now().UTC(),
		}
		if strings.EqualFold(filepath.Ext(name), ".json") {
			var doc rawDocument
			if err := json.Unmarshal(raw, &doc); err != nil {
				o.log.Warn("preprocess: malformed json source skipped", "path", path, "error", err)
				continue
			}
			rec.Title = doc.Title
			rec.Text = normalizeText(doc.Text)
			if doc.URI != "" {
				rec.SourceURI = doc.URI
			}
		} else {
			rec.Title = titleFromText(string(raw), rec.DocID)
			rec.Text = normalizeText(string(raw))
		}
		if rec.Text == "" {
			o.log.Warn("preprocess: empty source skipped", "path", path)
			continue
		}
		rec.Chunks = chunkText(rec.Text, o.chunkMaxChars)
		records = append(records, rec)
	}
	return records, nil
}

// rawSourceTypes lists the source-type partitions under the raw root.
func (o *Orchestrator) rawSourceTypes() ([]string, error) {
	entries, err := os.ReadDir(o.rawRoot)
	if err != nil {
		return nil, fmt.Errorf("read raw root %q: %w", o.rawRoot, err)
	}
	var types []string
	for _, e := range entries {
		if e.IsDir() {
			types = append(types, e.Name())
		}
	}
	sort.Strings(types)
	return types, nil
}

// normalizeText collapses runs of whitespace but keeps paragraph breaks
// so chunking can split on them.
func normalizeText(text string) string {
	paragraphs := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n")
	var kept []string
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n\n")
}

func titleFromText(text, fallback string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(line, "# "))
		if line != "" {
			if len(line) > 120 {
				line = line[:120]
			}
			return line
		}
	}
	return fallback
}

// chunkText splits on paragraph boundaries first and only cuts inside a
// paragraph when it alone exceeds the limit.
func chunkText(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = 1200
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	for _, p := range strings.Split(text, "\n\n") {
		if len(p) > maxChars {
			flush()
			for len(p) > maxChars {
				cut := strings.LastIndex(p[:maxChars], " ")
				if cut <= 0 {
					cut = maxChars
				}
				chunks = append(chunks, strings.TrimSpace(p[:cut]))
				p = strings.TrimSpace(p[cut:])
			}
			if p != "" {
				chunks = append(chunks, p)
			}
			continue
		}
		if cur.Len() > 0 && cur.Len()+len(p)+2 > maxChars {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(p)
	}
	flush()
	return chunks
}
