package app

import (
	"fmt"

	"github.com/yungbote/contextbrain/internal/auth"
	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/db"
	"github.com/yungbote/contextbrain/internal/embedding"
	"github.com/yungbote/contextbrain/internal/enrich"
	"github.com/yungbote/contextbrain/internal/pipeline"
	"github.com/yungbote/contextbrain/internal/platform/logger"
	"github.com/yungbote/contextbrain/internal/platform/neo4jdb"
	"github.com/yungbote/contextbrain/internal/search"
	"github.com/yungbote/contextbrain/internal/services"
)

type Services struct {
	Guard        *auth.Guard
	EmbedCache   *embedding.Cache
	Store        *pipeline.ArtifactStore
	Orchestrator *pipeline.Orchestrator
	Engine       *search.Engine
	Brain        services.BrainService
	Memory       services.MemoryService
	Neo4j        *neo4jdb.Client
}

func wireServices(log *logger.Logger, cfg config.Config, pg *db.Service, reposet Repos) (Services, error) {
	log.Info("Wiring services...")

	table, err := auth.LoadPermissionTable(cfg.PermissionTablePath)
	if err != nil {
		return Services{}, fmt.Errorf("load permission table: %w", err)
	}
	guard, err := auth.NewGuard(log, cfg.JWTSecret, table)
	if err != nil {
		return Services{}, fmt.Errorf("init guard: %w", err)
	}

	// Embedding stack: provider behind the two-tier cache. No API key
	// means no vector path; lexical search still works.
	var embedCache *embedding.Cache
	if cfg.EmbedAPIKey != "" {
		provider, err := embedding.NewOpenAIEmbedder(log, cfg)
		if err != nil {
			return Services{}, fmt.Errorf("init embedder: %w", err)
		}
		remote, err := embedding.NewRedisCache(log, cfg.RedisAddr)
		if err != nil {
			return Services{}, fmt.Errorf("init redis cache: %w", err)
		}
		embedCache, err = embedding.NewCache(log, provider, remote, cfg.CacheLocalSize, cfg.CacheTTL)
		if err != nil {
			return Services{}, fmt.Errorf("init embedding cache: %w", err)
		}
	} else {
		log.Warn("no embedding api key configured, vector retrieval disabled")
	}

	store, err := pipeline.NewArtifactStore(log, cfg.ArtifactRoot)
	if err != nil {
		return Services{}, fmt.Errorf("init artifact store: %w", err)
	}

	var deployer pipeline.Deployer
	if cfg.DeployURL != "" {
		deployer, err = pipeline.NewHTTPDeployer(log, cfg.DeployURL, store)
		if err != nil {
			return Services{}, fmt.Errorf("init deployer: %w", err)
		}
	}

	var pipelineEmbedder pipeline.Embedder
	if embedCache != nil {
		pipelineEmbedder = embedCache
	}
	orchestrator, err := pipeline.NewOrchestrator(log, cfg, store, enrich.Probe(log, cfg), pipelineEmbedder, reposet.Episodes, deployer)
	if err != nil {
		return Services{}, fmt.Errorf("init orchestrator: %w", err)
	}

	neo4j, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		log.Warn("neo4j mirror unavailable, continuing without it", "error", err)
		neo4j = nil
	}

	candidates, err := search.NewSQLCandidateStore(log, pg)
	if err != nil {
		return Services{}, fmt.Errorf("init candidate store: %w", err)
	}
	var expander search.Expander
	if neo4j != nil {
		expander = search.NewNeo4jExpander(neo4j)
	} else {
		expander = search.NewEdgeExpander(reposet.Edges)
	}
	var queryEmbedder search.QueryEmbedder
	if embedCache != nil {
		queryEmbedder = embedCache
	}
	engine, err := search.NewEngine(log, cfg, guard, queryEmbedder, candidates, expander)
	if err != nil {
		return Services{}, fmt.Errorf("init search engine: %w", err)
	}

	var docEmbedder services.DocEmbedder
	if embedCache != nil {
		docEmbedder = embedCache
	}
	brain, err := services.NewBrainService(log, reposet.Nodes, reposet.Aliases, reposet.Taxonomy, reposet.Edges, guard, docEmbedder, store, neo4j)
	if err != nil {
		return Services{}, fmt.Errorf("init brain service: %w", err)
	}
	memory, err := services.NewMemoryService(log, reposet.Episodes, reposet.Facts, guard)
	if err != nil {
		return Services{}, fmt.Errorf("init memory service: %w", err)
	}

	return Services{
		Guard:        guard,
		EmbedCache:   embedCache,
		Store:        store,
		Orchestrator: orchestrator,
		Engine:       engine,
		Brain:        brain,
		Memory:       memory,
		Neo4j:        neo4j,
	}, nil
}
