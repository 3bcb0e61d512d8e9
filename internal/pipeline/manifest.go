package pipeline

import (
	"path/filepath"
	"time"
)

// manifest records stage completion times. Freshness comparisons use
// these instead of raw file mtimes because the enrich stage rewrites the
// clean-text files without invalidating downstream artifacts.
type manifest struct {
	Stages map[string]time.Time `json:"stages"`
}

func (o *Orchestrator) manifestPath() string {
	return filepath.Join(o.store.root, "manifest.json")
}

func (o *Orchestrator) stageTime(stage string) time.Time {
	m, err := readObject[manifest](o.manifestPath())
	if err != nil || m == nil {
		return time.Time{}
	}
	return m.Stages[stage]
}

func (o *Orchestrator) markStage(stage string) error {
	m, err := readObject[manifest](o.manifestPath())
	if err != nil {
		return err
	}
	if m == nil {
		m = &manifest{}
	}
	if m.Stages == nil {
		m.Stages = map[string]time.Time{}
	}
	m.Stages[stage] = time.Now().UTC()
	return writeObject(o.manifestPath(), m)
}
