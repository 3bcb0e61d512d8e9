package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/domain"
	"github.com/yungbote/contextbrain/internal/platform/apierr"
	"github.com/yungbote/contextbrain/internal/platform/envutil"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

// Service owns the bounded connection pool. Callers that need a raw
// connection (the candidate queries in search) go through Acquire, which
// blocks up to the configured acquisition timeout and then fails with a
// pool-exhaustion error instead of queuing unboundedly.
type Service struct {
	db    *gorm.DB
	sqlDB *sql.DB
	log   *logger.Logger
	cfg   config.Config
}

func NewService(log *logger.Logger, cfg config.Config) (*Service, error) {
	if log == nil {
		return nil, fmt.Errorf("db: logger required")
	}
	serviceLog := log.With("service", "PostgresService")

	host := envutil.Str("POSTGRES_HOST", "localhost")
	port := envutil.Str("POSTGRES_PORT", "5432")
	user := envutil.Str("POSTGRES_USER", "postgres")
	password := envutil.Str("POSTGRES_PASSWORD", "")
	name := envutil.Str("POSTGRES_NAME", "contextbrain")
	sslmode := envutil.Str("POSTGRES_SSLMODE", "disable")

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", user, password, host, port, name, sslmode)

	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	sqlDB.SetMaxOpenConns(cfg.PoolMaxConns)
	sqlDB.SetMaxIdleConns(cfg.PoolMinConns)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("db: ping: %w", err)
	}

	serviceLog.Info("postgres connected",
		"host", host,
		"database", name,
		"pool_min", cfg.PoolMinConns,
		"pool_max", cfg.PoolMaxConns,
	)
	return &Service{db: gdb, sqlDB: sqlDB, log: serviceLog, cfg: cfg}, nil
}

// Migrate creates extensions, tables and the search indexes. Dev/test
// bootstrap only; production schema changes ship as migrations.
func (s *Service) Migrate(vectorDim int) error {
	s.log.Info("running automigration", "vector_dim", vectorDim)
	if err := s.db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`).Error; err != nil {
		return fmt.Errorf("db: enable pgvector: %w", err)
	}
	if err := s.db.AutoMigrate(
		&domain.KnowledgeNode{},
		&domain.KnowledgeEdge{},
		&domain.KnowledgeAlias{},
		&domain.TaxonomyNode{},
		&domain.ConversationEpisode{},
		&domain.UserFact{},
	); err != nil {
		return fmt.Errorf("db: automigrate: %w", err)
	}
	if vectorDim > 0 && vectorDim != 1536 {
		stmt := fmt.Sprintf(`ALTER TABLE knowledge_nodes ALTER COLUMN embedding TYPE vector(%d)`, vectorDim)
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("db: set vector dimension: %w", err)
		}
	}
	ddl := []string{
		`ALTER TABLE knowledge_nodes ADD COLUMN IF NOT EXISTS search_vector tsvector
			GENERATED ALWAYS AS (to_tsvector('simple', coalesce(title,'') || ' ' || coalesce(content,''))) STORED`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_nodes_search ON knowledge_nodes USING gin (search_vector)`,
		`CREATE INDEX IF NOT EXISTS idx_knowledge_nodes_embedding ON knowledge_nodes
			USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`,
	}
	for _, stmt := range ddl {
		if err := s.db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("db: search ddl: %w", err)
		}
	}
	return nil
}

func (s *Service) DB() *gorm.DB { return s.db }

// Acquire checks a connection out of the pool, waiting at most the
// configured acquisition timeout. Exhaustion surfaces as a retryable
// PoolExhaustedError; it never grows the pool past its bound.
func (s *Service) Acquire(ctx context.Context) (*sql.Conn, error) {
	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.PoolAcquireTimeout)
	defer cancel()
	conn, err := s.sqlDB.Conn(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			s.log.Warn("connection pool exhausted", "waited", s.cfg.PoolAcquireTimeout.String())
			return nil, &apierr.PoolExhaustedError{Waited: s.cfg.PoolAcquireTimeout.String()}
		}
		return nil, fmt.Errorf("db: acquire: %w", err)
	}
	return conn, nil
}

func (s *Service) Close() error {
	return s.sqlDB.Close()
}
