package neo4jdb

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Client wraps the neo4j driver for the optional graph mirror. An unset
// NEO4J_URI disables the mirror entirely; NewFromEnv then returns
// (nil, nil) and callers fall back to the SQL edges table.
type Client struct {
	Driver   neo4j.DriverWithContext
	Database string
	log      *logger.Logger
}

func NewFromEnv(log *logger.Logger) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}

	uri := strings.TrimSpace(os.Getenv("NEO4J_URI"))
	if uri == "" {
		return nil, nil
	}

	user := strings.TrimSpace(os.Getenv("NEO4J_USER"))
	if user == "" {
		user = "neo4j"
	}
	password := strings.TrimSpace(os.Getenv("NEO4J_PASSWORD"))
	database := strings.TrimSpace(os.Getenv("NEO4J_DATABASE"))

	timeoutSec := 10
	if v := strings.TrimSpace(os.Getenv("NEO4J_TIMEOUT_SECONDS")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			timeoutSec = parsed
		}
	}

	maxPool := 50
	if v := strings.TrimSpace(os.Getenv("NEO4J_MAX_POOL_SIZE")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			maxPool = parsed
		}
	}

	auth := neo4j.BasicAuth(user, password, "")
	driver, err := neo4j.NewDriverWithContext(uri, auth, func(cfg *neo4j.Config) {
		cfg.MaxConnectionPoolSize = maxPool
		cfg.SocketConnectTimeout = time.Duration(timeoutSec) * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutSec)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity: %w", err)
	}

	log.Info("neo4j graph mirror connected", "database", database)
	return &Client{
		Driver:   driver,
		Database: database,
		log:      log.With("client", "Neo4jDB"),
	}, nil
}

// Session opens a session against the configured database.
func (c *Client) Session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return c.Driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: c.Database,
		AccessMode:   mode,
	})
}

// MirrorEdges upserts tenant-scoped nodes and relations. Relation type
// travels as a property so one statement covers every label.
func (c *Client) MirrorEdges(ctx context.Context, tenantID string, edges []EdgeMirror) error {
	if c == nil || len(edges) == 0 {
		return nil
	}
	session := c.Session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{
			"source":   e.SourceID,
			"target":   e.TargetID,
			"relation": e.Relation,
			"weight":   e.Weight,
		})
	}
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const stmt = `
UNWIND $rows AS row
MERGE (a:KnowledgeNode {id: row.source, tenant_id: $tenant})
MERGE (b:KnowledgeNode {id: row.target, tenant_id: $tenant})
MERGE (a)-[r:RELATES {relation: row.relation}]->(b)
SET r.weight = row.weight`
		_, err := tx.Run(ctx, stmt, map[string]any{"rows": rows, "tenant": tenantID})
		return nil, err
	})
	if err != nil {
		return fmt.Errorf("neo4jdb: mirror edges: %w", err)
	}
	c.log.Debug("edges mirrored", "tenant_id", tenantID, "count", len(edges))
	return nil
}

// EdgeMirror is one edge bound for the graph mirror.
type EdgeMirror struct {
	SourceID string
	TargetID string
	Relation string
	Weight   float64
}

// Neighbors fetches one BFS frontier from the mirror: edges leaving any
// of the given node ids, optionally restricted by relation.
func (c *Client) Neighbors(ctx context.Context, tenantID string, sourceIDs []string, relations []string) ([]EdgeMirror, error) {
	session := c.Session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		const stmt = `
MATCH (a:KnowledgeNode {tenant_id: $tenant})-[r:RELATES]->(b:KnowledgeNode {tenant_id: $tenant})
WHERE a.id IN $sources AND (size($relations) = 0 OR r.relation IN $relations)
RETURN a.id AS source, b.id AS target, r.relation AS relation, r.weight AS weight`
		res, err := tx.Run(ctx, stmt, map[string]any{
			"tenant":    tenantID,
			"sources":   sourceIDs,
			"relations": relations,
		})
		if err != nil {
			return nil, err
		}
		var edges []EdgeMirror
		for res.Next(ctx) {
			rec := res.Record()
			edge := EdgeMirror{}
			if v, ok := rec.Get("source"); ok {
				edge.SourceID, _ = v.(string)
			}
			if v, ok := rec.Get("target"); ok {
				edge.TargetID, _ = v.(string)
			}
			if v, ok := rec.Get("relation"); ok {
				edge.Relation, _ = v.(string)
			}
			if v, ok := rec.Get("weight"); ok {
				edge.Weight, _ = v.(float64)
			}
			edges = append(edges, edge)
		}
		return edges, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: neighbors: %w", err)
	}
	edges, _ := result.([]EdgeMirror)
	return edges, nil
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.Driver == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	err := c.Driver.Close(ctx)
	c.Driver = nil
	return err
}
