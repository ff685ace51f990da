package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"NewsRadar/internal/classify"
	"NewsRadar/internal/config"
	"NewsRadar/internal/connector"
	"NewsRadar/internal/coordination"
	"NewsRadar/internal/infrastructure/llm"
	"NewsRadar/internal/infrastructure/ml"
	"NewsRadar/internal/infrastructure/parser"
	"NewsRadar/internal/infrastructure/proxy"
	"NewsRadar/internal/infrastructure/scheduler"
	"NewsRadar/internal/infrastructure/storage"
	"NewsRadar/internal/infrastructure/telegram"
	"NewsRadar/internal/ingest"
	"NewsRadar/internal/logging"
	"NewsRadar/internal/metrics"
	"NewsRadar/internal/ports"
	"NewsRadar/internal/rules"
	"NewsRadar/internal/server"
	"NewsRadar/internal/usecase"
)

const shutdownTimeout = 15 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg    config.Config
	logger *slog.Logger

	scheduler *usecase.Scheduler
	worker    *usecase.Worker
	server    *server.Server
	pool      *proxy.Pool

	closers []func() error
}

// New connects every configured backend and builds the application graph.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	a := &Application{cfg: cfg, logger: baseLogger.With("component", "app")}
	checks := map[string]server.HealthCheck{}
	m := metrics.New()

	repos, err := a.openStorage(ctx, baseLogger, checks)
	if err != nil {
		a.close()
		return nil, err
	}
	if err := storage.Seed(ctx, repos.sources, repos.rules, cfg); err != nil {
		a.close()
		return nil, fmt.Errorf("seed configuration: %w", err)
	}

	events, err := a.openEvents(ctx, baseLogger, repos)
	if err != nil {
		a.close()
		return nil, err
	}

	workerStore, err := a.openCoordination(ctx, repos, checks)
	if err != nil {
		a.close()
		return nil, err
	}

	var classifier ports.Classifier
	if cfg.Classifier.URL != "" {
		client := ml.NewClient(cfg.Classifier.URL, cfg.Classifier.APIKey, cfg.Classifier.Timeout, baseLogger.With("component", "classifier"))
		classifier = client
		checks["classifier"] = client.Health
	}

	var llmProvider ports.LLMProvider
	if chain := llm.NewChainFromConfig(ctx, cfg.LLM, m, baseLogger.With("component", "llm")); chain != nil {
		llmProvider = chain
	}

	orchestrator := classify.NewOrchestrator(classify.Config{
		Thresholds: classify.Thresholds{
			High: cfg.Classifier.HighThreshold,
			Edge: cfg.Classifier.EdgeThreshold,
		},
		SystemPrompt: cfg.LLM.SystemPrompt,
		Temperature:  cfg.LLM.Temperature,
		MaxTokens:    cfg.LLM.MaxTokens,
	}, classify.Deps{
		Classifier: classifier,
		LLM:        llmProvider,
		Events:     events,
		Taxonomy: classify.Taxonomy{
			Categories: cfg.Taxonomy.Categories,
			Tags:       cfg.Taxonomy.Tags,
			CatchAll:   cfg.Taxonomy.CatchAll,
		},
		Metrics: m,
		Logger:  baseLogger.With("component", "classify"),
	})

	var notifier ports.Notifier
	tg, err := telegram.NewNotifier(cfg.Notifications.Telegram, baseLogger.With("component", "telegram"))
	if err != nil {
		a.close()
		return nil, fmt.Errorf("telegram notifier: %w", err)
	}
	if tg != nil {
		notifier = tg
	}

	a.pool = proxy.NewPool(cfg.Proxy.ListURL, nil, baseLogger.With("component", "proxy"))
	httpClient := parser.NewHTTPClient(cfg.Connectors, a.pool.ProxyFunc)
	registry := connector.NewRegistry(
		parser.NewArxivConnector(httpClient, cfg.Connectors.UserAgent),
		parser.NewHTMLConnector(httpClient, cfg.Connectors.UserAgent),
	)

	writeLock := &sync.Mutex{}
	classification := usecase.NewClassification(usecase.ClassificationDeps{
		Orchestrator: orchestrator,
		Items:        repos.items,
		Notifier:     notifier,
		WriteLock:    writeLock,
		Logger:       baseLogger.With("component", "classification"),
	})

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:        repos.sources,
		Items:          repos.items,
		Connectors:     registry,
		Deduplicator:   ingest.NewDeduplicator(repos.items, baseLogger.With("component", "dedup")),
		Rules:          rules.NewEngine(repos.rules, baseLogger.With("component", "rules")),
		Classification: classification,
		Metrics:        m,
		WriteLock:      writeLock,
		Logger:         baseLogger.With("component", "pipeline"),
	}, usecase.PipelineOptions{
		InlineClassification: cfg.Pipeline.InlineClassification,
		TrainingMode:         cfg.Pipeline.TrainingMode,
	})

	var pool ports.PoolRefresher
	if cfg.Proxy.ListURL != "" {
		pool = a.pool
	}
	a.scheduler = usecase.NewScheduler(usecase.SchedulerConfig{
		DueScanCron:      cfg.Scheduler.DueScanCron,
		CleanupCron:      cfg.Scheduler.CleanupCron,
		ProxyRefreshCron: cfg.Scheduler.ProxyRefreshCron,
		Parallelism:      cfg.Scheduler.Parallelism,
		Retention:        cfg.Retention.Horizon,
	}, usecase.SchedulerDeps{
		Driver:   scheduler.NewCronScheduler(cfg.Scheduler.Location(), baseLogger.With("component", "cron")),
		Pipeline: pipeline,
		Sources:  repos.sources,
		Items:    repos.items,
		Pool:     pool,
		Metrics:  m,
		Logger:   baseLogger.With("component", "scheduler"),
	})

	a.worker = usecase.NewWorker(usecase.WorkerConfig{
		Name:              cfg.Worker.Name,
		BatchSize:         cfg.Worker.BatchSize,
		IdleInterval:      cfg.Worker.IdleInterval,
		MaxAttempts:       cfg.Worker.MaxAttempts,
		StatsSyncInterval: cfg.Worker.StatsSyncInterval,
		PollInterval:      cfg.Coordination.PollInterval,
		CommandTimeout:    cfg.Coordination.CommandTimeout,
	}, usecase.WorkerDeps{
		Sources:        repos.sources,
		Classification: classification,
		Store:          workerStore,
		Metrics:        m,
		Logger:         baseLogger.With("component", "worker"),
	})

	a.server = server.New(cfg.Server, server.Deps{
		Control:    coordination.NewControl(workerStore),
		Fetcher:    a.scheduler,
		Checks:     checks,
		Metrics:    m.Handler(),
		Middleware: []gin.HandlerFunc{m.Middleware()},
		Logger:     baseLogger.With("component", "http"),
	})

	a.logger.Info("application wired",
		"database", cfg.Database.Driver,
		"events", cfg.Events.Sink,
		"coordination", cfg.Coordination.Backend,
		"classifier", classifier != nil,
		"llm", llmProvider != nil,
		"telegram", notifier != nil,
		"connectors", registry.Types(),
	)
	return a, nil
}

type repositories struct {
	db      *sql.DB
	sources ports.SourceRepository
	items   ports.ItemRepository
	rules   ports.RuleRepository
	memory  *storage.MemoryStore
}

func (a *Application) openStorage(ctx context.Context, logger *slog.Logger, checks map[string]server.HealthCheck) (repositories, error) {
	if a.cfg.Database.Driver == "memory" {
		mem := storage.NewMemoryStore()
		a.logger.Warn("using in-memory storage, data is lost on exit")
		return repositories{sources: mem.Sources, items: mem.Items, rules: mem.Rules, memory: mem}, nil
	}

	db, err := storage.ConnectPostgres(ctx, a.cfg.Database, logger.With("component", "postgres"))
	if err != nil {
		return repositories{}, err
	}
	a.closers = append(a.closers, db.Close)
	checks["database"] = db.PingContext

	if a.cfg.Database.Migrate {
		if err := storage.Migrate(ctx, db); err != nil {
			return repositories{}, err
		}
	}
	return repositories{
		db:      db,
		sources: storage.NewPostgresSources(db),
		items:   storage.NewPostgresItems(db),
		rules:   storage.NewPostgresRules(db),
	}, nil
}

func (a *Application) openEvents(ctx context.Context, logger *slog.Logger, repos repositories) (ports.EventLog, error) {
	switch a.cfg.Events.Sink {
	case "none":
		return nil, nil
	case "clickhouse":
		ch := a.cfg.Events.ClickHouse
		db, err := storage.ConnectClickHouse(ctx, ch, logger.With("component", "clickhouse"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		if err := storage.MigrateClickHouse(ctx, db, ch.Table); err != nil {
			return nil, err
		}
		return storage.NewClickHouseEventLog(db, ch.Table), nil
	default:
		if repos.memory != nil {
			return repos.memory.Events, nil
		}
		return storage.NewPostgresEventLog(repos.db), nil
	}
}

func (a *Application) openCoordination(ctx context.Context, repos repositories, checks map[string]server.HealthCheck) (ports.WorkerStore, error) {
	switch a.cfg.Coordination.Backend {
	case "redis":
		rc := a.cfg.Coordination.Redis
		client := redis.NewClient(&redis.Options{Addr: rc.Addr, Password: rc.Password, DB: rc.DB})
		a.closers = append(a.closers, client.Close)
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis %s: %w", rc.Addr, err)
		}
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
		return coordination.NewRedisStore(client, rc.KeyPrefix), nil
	case "database":
		if repos.db == nil {
			return nil, errors.New("database coordination requires the postgres driver")
		}
		return storage.NewPostgresWorkerStore(repos.db), nil
	default:
		return coordination.NewMemoryStore(), nil
	}
}

// Run starts every loop and blocks until ctx is cancelled or the HTTP
// listener fails, then shuts down in reverse order.
func (a *Application) Run(ctx context.Context) error {
	defer a.close()

	if err := a.scheduler.RefreshPool(ctx); err != nil {
		a.logger.Warn("initial proxy refresh failed", "error", err)
	}
	if err := a.scheduler.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.worker.Run(gctx, a.cfg.Worker.AutoStart)
		return nil
	})
	g.Go(func() error {
		return a.server.ListenAndServe()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()

		var errs []error
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown http: %w", err))
		}
		if err := a.scheduler.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("stop scheduler: %w", err))
		}
		return errors.Join(errs...)
	})

	err := g.Wait()
	a.logger.Info("application stopped")
	return err
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", "error", err)
		}
	}
	a.closers = nil
}
