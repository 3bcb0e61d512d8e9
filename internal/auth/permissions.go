package auth

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	PermBrainRead   = "brain:read"
	PermBrainWrite  = "brain:write"
	PermMemoryRead  = "memory:read"
	PermMemoryWrite = "memory:write"
)

// DefaultPermissionTable maps every operation the service exposes to the
// permission it requires. Operations absent from the table are denied.
func DefaultPermissionTable() map[string]string {
	return map[string]string{
		"Search":            PermBrainRead,
		"GraphSearch":       PermBrainRead,
		"GetTaxonomy":       PermBrainRead,
		"SyncTaxonomy":      PermBrainWrite,
		"SyncGraph":         PermBrainWrite,
		"ResolveEntity":     PermBrainRead,
		"IngestDocument":    PermBrainWrite,
		"AddEpisode":        PermMemoryWrite,
		"GetRecentEpisodes": PermMemoryRead,
		"UpsertFact":        PermMemoryWrite,
		"GetUserFacts":      PermMemoryRead,
		"RetentionCleanup":  PermMemoryWrite,
	}
}

// LoadPermissionTable reads an operation→permission map from a YAML
// file. An empty path returns the compiled-in default.
func LoadPermissionTable(path string) (map[string]string, error) {
	if path == "" {
		return DefaultPermissionTable(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("auth: read permission table: %w", err)
	}
	var table map[string]string
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return nil, fmt.Errorf("auth: parse permission table: %w", err)
	}
	if len(table) == 0 {
		return nil, fmt.Errorf("auth: permission table %q is empty", path)
	}
	return table, nil
}
