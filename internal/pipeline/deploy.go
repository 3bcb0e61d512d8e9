package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// httpDeployer uploads export partitions to the remote index's bulk
// endpoint and triggers reindexing. Each upload carries a snapshot
// digest so the remote side can treat re-deploys of an unchanged export
// as no-ops; that is what makes deploy safely re-runnable only while
// the export artifacts are stable.
type httpDeployer struct {
	log     *logger.Logger
	http    *http.Client
	baseURL string
	store   *ArtifactStore
}

func NewHTTPDeployer(log *logger.Logger, baseURL string, store *ArtifactStore) (Deployer, error) {
	if log == nil {
		return nil, fmt.Errorf("pipeline: logger required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("pipeline: deploy url required")
	}
	return &httpDeployer{
		log:     log.With("service", "IndexDeployer"),
		http:    &http.Client{Timeout: 5 * time.Minute},
		baseURL: baseURL,
		store:   store,
	}, nil
}

func (d *httpDeployer) Deploy(ctx context.Context, exportTypes []string) error {
	for _, sourceType := range exportTypes {
		path := d.store.recordPath(ArtifactExport, sourceType)
		raw, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("deploy: read export %q: %w", sourceType, err)
		}
		digest := sha256.Sum256(raw)
		snapshot := hex.EncodeToString(digest[:8])

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/bulk/"+sourceType, strings.NewReader(string(raw)))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/x-ndjson")
		req.Header.Set("X-Snapshot", snapshot)

		resp, err := d.http.Do(req)
		if err != nil {
			return fmt.Errorf("deploy: upload %q: %w", sourceType, err)
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			return fmt.Errorf("deploy: upload %q: status %d", sourceType, resp.StatusCode)
		}
		d.log.Info("export partition deployed", "source_type", sourceType, "snapshot", snapshot)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/reindex", nil)
	if err != nil {
		return err
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return fmt.Errorf("deploy: trigger reindex: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("deploy: trigger reindex: status %d", resp.StatusCode)
	}
	d.log.Info("remote reindex triggered", "partitions", len(exportTypes))
	return nil
}
