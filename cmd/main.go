package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/contextbrain/internal/app"
	"github.com/yungbote/contextbrain/internal/config"
	"github.com/yungbote/contextbrain/internal/data/repos"
	"github.com/yungbote/contextbrain/internal/db"
	"github.com/yungbote/contextbrain/internal/embedding"
	"github.com/yungbote/contextbrain/internal/enrich"
	"github.com/yungbote/contextbrain/internal/observability"
	"github.com/yungbote/contextbrain/internal/pipeline"
	"github.com/yungbote/contextbrain/internal/platform/logger"
)

const usage = `usage: contextbrain <command> [flags]

commands:
  serve       start the HTTP server
  run         execute the full pipeline (preprocess through export)
  preprocess  taxonomy  persona  ontology  enrich  graph  shadow  export
              execute a single pipeline stage
  deploy      upload the export snapshot to the configured target
  summary     print the graph summary
  stats       print graph statistics
  audit       print the graph audit report
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	command := os.Args[1]

	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if command == "serve" {
		serve(log)
		return
	}

	flags := flag.NewFlagSet(command, flag.ExitOnError)
	overwrite := flags.Bool("overwrite", true, "rebuild artifacts from scratch instead of appending")
	workers := flags.Int("workers", 0, "parallel workers for per-source-type stages (default from PIPELINE_WORKERS)")
	_ = flags.Parse(os.Args[2:])

	cfg := config.Load(log)
	orchestrator := buildOrchestrator(log, cfg)

	opts := pipeline.Options{Overwrite: *overwrite, Workers: *workers}
	if opts.Workers <= 0 {
		opts.Workers = cfg.DefaultWorkers
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "run":
		err = orchestrator.Run(ctx, opts)
	case pipeline.StagePreprocess, pipeline.StageTaxonomy, pipeline.StagePersona,
		pipeline.StageOntology, pipeline.StageEnrich, pipeline.StageGraph,
		pipeline.StageShadow, pipeline.StageExport, pipeline.StageDeploy:
		err = orchestrator.RunStage(ctx, command, opts)
	case "summary":
		summary, serr := orchestrator.Summary()
		err = printJSON(summary, serr)
	case "stats":
		stats, serr := orchestrator.Stats()
		err = printJSON(stats, serr)
	case "audit":
		audit, serr := orchestrator.Audit(0)
		err = printJSON(audit, serr)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Error("command failed", "command", command, "error", err)
		log.Sync()
		os.Exit(1)
	}
	log.Info("command complete", "command", command)
}

func serve(log *logger.Logger) {
	ctx := context.Background()
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "contextbrain",
		Environment: os.Getenv("APP_ENV"),
		Version:     os.Getenv("APP_VERSION"),
	})

	a, err := app.New()
	if err != nil {
		log.Error("app init failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
	defer a.Close()
	if shutdownOTel != nil {
		defer shutdownOTel(ctx)
	}

	addr := ":" + a.Cfg.Port
	log.Info("starting server", "addr", addr)
	if err := a.Run(addr); err != nil {
		log.Error("server stopped", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

// buildOrchestrator assembles the pipeline without the HTTP stack.
// Postgres is only dialed when the persona stage needs episode rows.
func buildOrchestrator(log *logger.Logger, cfg config.Config) *pipeline.Orchestrator {
	store, err := pipeline.NewArtifactStore(log, cfg.ArtifactRoot)
	if err != nil {
		log.Fatal("init artifact store", "error", err)
	}

	var embedder pipeline.Embedder
	if cfg.EmbedAPIKey != "" {
		provider, perr := embedding.NewOpenAIEmbedder(log, cfg)
		if perr != nil {
			log.Fatal("init embedder", "error", perr)
		}
		remote, rerr := embedding.NewRedisCache(log, cfg.RedisAddr)
		if rerr != nil {
			log.Fatal("init redis cache", "error", rerr)
		}
		cache, cerr := embedding.NewCache(log, provider, remote, cfg.CacheLocalSize, cfg.CacheTTL)
		if cerr != nil {
			log.Fatal("init embedding cache", "error", cerr)
		}
		embedder = cache
	}

	var episodes pipeline.EpisodeSource
	if cfg.PersonaEnabled {
		pg, derr := db.NewService(log, cfg)
		if derr != nil {
			log.Warn("postgres unavailable, persona stage will have no episodes", "error", derr)
		} else {
			episodes = repos.NewEpisodeRepo(pg.DB(), log)
		}
	}

	var deployer pipeline.Deployer
	if cfg.DeployURL != "" {
		deployer, err = pipeline.NewHTTPDeployer(log, cfg.DeployURL, store)
		if err != nil {
			log.Fatal("init deployer", "error", err)
		}
	}

	orchestrator, err := pipeline.NewOrchestrator(log, cfg, store, enrich.Probe(log, cfg), embedder, episodes, deployer)
	if err != nil {
		log.Fatal("init orchestrator", "error", err)
	}
	return orchestrator
}

func printJSON(v any, err error) error {
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
