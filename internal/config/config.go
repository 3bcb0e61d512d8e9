package config

import (
	"time"

	"github.com/yungbote/contextbrain/internal/platform/envutil"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Config is the fully resolved runtime configuration. Resolution order
// and file precedence live outside the core; everything here arrives as
// plain environment values.
type Config struct {
	Env  string
	Port string

	// Embedding provider + cache.
	EmbeddingModel   string
	VectorDim        int
	EmbedBaseURL     string
	EmbedAPIKey      string
	RedisAddr        string
	CacheTTL         time.Duration
	CacheLocalSize   int
	EmbedMaxRetries  int
	EmbedRetryDelay  time.Duration

	// Pipeline.
	ArtifactRoot          string
	RawRoot               string
	DefaultWorkers        int
	OntologyViolationMax  float64
	SimilarityThreshold   float64
	ChunkMaxChars         int
	EnrichURL             string
	DeployURL             string
	PersonaEnabled        bool
	ShadowNeighborDepth   int

	// Search.
	FusionMode   string
	VectorWeight float64
	TextWeight   float64
	RRFK         int
	CandidateK   int

	// Guard.
	JWTSecret           string
	PermissionTablePath string

	// Connection pool.
	PoolMinConns       int
	PoolMaxConns       int
	PoolAcquireTimeout time.Duration
}

func Load(log *logger.Logger) Config {
	cfg := Config{
		Env:  envutil.Str("APP_ENV", "development"),
		Port: envutil.Str("PORT", "8080"),

		EmbeddingModel:  envutil.Str("EMBEDDING_MODEL", "text-embedding-3-small"),
		VectorDim:       envutil.Int("VECTOR_DIM", 1536),
		EmbedBaseURL:    envutil.Str("EMBED_BASE_URL", "https://api.openai.com"),
		EmbedAPIKey:     envutil.Str("OPENAI_API_KEY", ""),
		RedisAddr:       envutil.Str("REDIS_ADDR", ""),
		CacheTTL:        envutil.Seconds("EMBED_CACHE_TTL_SECONDS", 7*24*time.Hour),
		CacheLocalSize:  envutil.Int("EMBED_CACHE_LOCAL_SIZE", 2048),
		EmbedMaxRetries: envutil.Int("EMBED_MAX_RETRIES", 3),
		EmbedRetryDelay: envutil.Seconds("EMBED_RETRY_DELAY_SECONDS", 1*time.Second),

		ArtifactRoot:         envutil.Str("ARTIFACT_ROOT", "./artifacts"),
		RawRoot:              envutil.Str("RAW_ROOT", "./raw"),
		DefaultWorkers:       envutil.Int("PIPELINE_WORKERS", 1),
		OntologyViolationMax: envutil.Float("ONTOLOGY_VIOLATION_MAX_RATE", 0.2),
		SimilarityThreshold:  envutil.Float("TAXONOMY_SIMILARITY_THRESHOLD", 0.6),
		ChunkMaxChars:        envutil.Int("CHUNK_MAX_CHARS", 1200),
		EnrichURL:            envutil.Str("ENRICH_URL", ""),
		DeployURL:            envutil.Str("DEPLOY_URL", ""),
		PersonaEnabled:       envutil.Bool("PERSONA_STAGE_ENABLED", false),
		ShadowNeighborDepth:  envutil.Int("SHADOW_NEIGHBOR_DEPTH", 2),

		FusionMode:   envutil.Str("SEARCH_FUSION", "weighted"),
		VectorWeight: envutil.Float("SEARCH_VECTOR_WEIGHT", 0.8),
		TextWeight:   envutil.Float("SEARCH_TEXT_WEIGHT", 0.2),
		RRFK:         envutil.Int("SEARCH_RRF_K", 60),
		CandidateK:   envutil.Int("SEARCH_CANDIDATE_K", 50),

		JWTSecret:           envutil.Str("JWT_SECRET_KEY", ""),
		PermissionTablePath: envutil.Str("PERMISSION_TABLE_PATH", ""),

		PoolMinConns:       envutil.Int("DB_POOL_MIN_CONNS", 2),
		PoolMaxConns:       envutil.Int("DB_POOL_MAX_CONNS", 10),
		PoolAcquireTimeout: envutil.Seconds("DB_POOL_ACQUIRE_TIMEOUT_SECONDS", 60*time.Second),
	}
	if log != nil {
		log.Info("configuration resolved",
			"env", cfg.Env,
			"embedding_model", cfg.EmbeddingModel,
			"vector_dim", cfg.VectorDim,
			"pipeline_workers", cfg.DefaultWorkers,
			"pool_max_conns", cfg.PoolMaxConns,
		)
	}
	return cfg
}
