// Package server builds the leadscout dependency graph and runs the service.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadscout/internal/analysis"
	"github.com/JakeFAU/leadscout/internal/api"
	"github.com/JakeFAU/leadscout/internal/clock/system"
	"github.com/JakeFAU/leadscout/internal/config"
	"github.com/JakeFAU/leadscout/internal/dedup"
	"github.com/JakeFAU/leadscout/internal/discovery"
	"github.com/JakeFAU/leadscout/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/leadscout/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/leadscout/internal/fetcher/headless"
	"github.com/JakeFAU/leadscout/internal/hash/sha256"
	"github.com/JakeFAU/leadscout/internal/headless/detector"
	"github.com/JakeFAU/leadscout/internal/id/uuid"
	"github.com/JakeFAU/leadscout/internal/lead"
	"github.com/JakeFAU/leadscout/internal/logging"
	"github.com/JakeFAU/leadscout/internal/policy/ratelimit"
	"github.com/JakeFAU/leadscout/internal/policy/simple"
	"github.com/JakeFAU/leadscout/internal/progress"
	progresssinks "github.com/JakeFAU/leadscout/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/leadscout/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/leadscout/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/leadscout/internal/queue/memory"
	"github.com/JakeFAU/leadscout/internal/search"
	"github.com/JakeFAU/leadscout/internal/search/bing"
	"github.com/JakeFAU/leadscout/internal/search/duckduckgo"
	gcsstorage "github.com/JakeFAU/leadscout/internal/storage/gcs"
	localstorage "github.com/JakeFAU/leadscout/internal/storage/local"
	memoryStorage "github.com/JakeFAU/leadscout/internal/storage/memory"
	pgstore "github.com/JakeFAU/leadscout/internal/storage/postgres"
	"github.com/JakeFAU/leadscout/internal/storage/sqlite"
	"github.com/JakeFAU/leadscout/internal/store"
	"github.com/JakeFAU/leadscout/internal/telemetry"
	"github.com/JakeFAU/leadscout/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	apiServer   *api.Server
	dispatch    *dispatcher.Dispatcher
	progressHub *progress.Hub
	queue       *queueMemory.Queue

	leads        lead.LeadStore
	jobs         lead.JobStore
	progressRepo store.ProgressRepository
	analyzer     *analysis.Analyzer
	pipeline     *discovery.Pipeline
	searcher     *search.Multi

	pgPool         *pgxpool.Pool
	sqliteRepo     *sqlite.Repository
	pubsubClient   *pubsub.Client
	pubsubPub      *gcppublisher.Publisher
	storage        *storage.Client
	headless       *headlessfetcher.Fetcher
	telemetry      *telemetry.Providers
	ready          func(ctx context.Context) error
	restoreGlobals func()
}

// Logger returns the application logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Analyzer returns the website analyzer.
func (a *App) Analyzer() lead.Analyzer {
	return a.analyzer
}

// Pipeline returns the discovery pipeline.
func (a *App) Pipeline() *discovery.Pipeline {
	return a.pipeline
}

// Leads returns the configured lead store.
func (a *App) Leads() lead.LeadStore {
	return a.leads
}

// Jobs returns the configured job store.
func (a *App) Jobs() lead.JobStore {
	return a.jobs
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the dispatcher and HTTP server and blocks until the context is
// canceled or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.dispatch.Size()))
		a.dispatch.Run(ctx)
	}()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	timeout := time.Duration(a.cfg.Server.ShutdownTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	a.queue.Close()
	select {
	case <-dispatchDone:
		ids, err := a.dispatch.Abandon(shutdownCtx, a.jobs)
		if len(ids) > 0 {
			a.logger.Warn("canceled jobs still queued at shutdown", zap.Strings("job_ids", ids))
		}
		if err != nil {
			a.logger.Error("cancel queued jobs", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		a.logger.Warn("workers did not finish before shutdown deadline")
	}

	return a.Close(shutdownCtx)
}

// Close releases every resource Build acquired.
func (a *App) Close(ctx context.Context) error {
	if a.queue != nil {
		a.queue.Close()
	}
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
	a.logger.Info("shutdown complete")
	return nil
}

//nolint:gocognit // Shutdown logic is linear but extensive, ignoring complexity check
func (a *App) closeInfrastructure(ctx context.Context) {
	if a.progressHub != nil {
		if err := a.progressHub.Close(ctx); err != nil {
			a.logger.Warn("progress hub close failed", zap.Error(err))
		}
	}
	if a.headless != nil {
		a.headless.Close()
	}
	if a.pubsubPub != nil {
		a.pubsubPub.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.sqliteRepo != nil {
		if err := a.sqliteRepo.Close(); err != nil {
			a.logger.Warn("sqlite close failed", zap.Error(err))
		}
	}
	if a.pgPool != nil {
		a.pgPool.Close()
	}
}

// abort undoes a partial Build.
func (a *App) abort(ctx context.Context) {
	a.closeInfrastructure(ctx)
	a.closeObservability(ctx)
}

func (a *App) closeObservability(ctx context.Context) {
	if err := a.telemetry.Shutdown(ctx); err != nil {
		a.logger.Warn("telemetry shutdown failed", zap.Error(err))
	}
	if err := a.logger.Sync(); err != nil && !isStdSyncError(err) {
		a.logger.Warn("logger sync failed", zap.Error(err))
	}
	if a.restoreGlobals != nil {
		a.restoreGlobals()
	}
}

// isStdSyncError filters the EINVAL zap reports when syncing a terminal.
func isStdSyncError(err error) bool {
	return strings.Contains(err.Error(), "invalid argument") || strings.Contains(err.Error(), "inappropriate ioctl")
}

// BuildOptions tune Build for callers other than the long-running service.
type BuildOptions struct {
	// Logger replaces the logger built from cfg.Logging.
	Logger *zap.Logger
	// Registerer receives the progress and OTel collectors; nil uses the
	// Prometheus default registry.
	Registerer prometheus.Registerer
	// SkipTelemetry leaves the global OTel providers untouched.
	SkipTelemetry bool
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config, opts BuildOptions) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return nil, fmt.Errorf("logger init failed: %w", err)
		}
	}
	app := &App{cfg: cfg, logger: logger}
	app.restoreGlobals = zap.ReplaceGlobals(logger)
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("database_backend", cfg.Database.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Strings("providers", cfg.Search.Providers),
	)

	registerer := opts.Registerer
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	if !opts.SkipTelemetry {
		providers, err := telemetry.Init(ctx, cfg.Application, telemetry.Options{Registerer: registerer})
		if err != nil {
			app.abort(ctx)
			return nil, fmt.Errorf("telemetry init failed: %w", err)
		}
		app.telemetry = providers
	}

	if err := setupDatabase(ctx, app); err != nil {
		app.abort(ctx)
		return nil, err
	}
	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}
	emitter, err := setupProgress(ctx, app, registerer)
	if err != nil {
		app.abort(ctx)
		return nil, err
	}

	clock := system.New()
	idGen := uuid.New()
	app.analyzer = setupAnalyzer(app, clock)
	if app.searcher, err = setupSearch(app); err != nil {
		app.abort(ctx)
		return nil, err
	}

	app.pipeline = discovery.New(discovery.Deps{
		Searcher:  app.searcher,
		Analyzer:  app.analyzer,
		Leads:     app.leads,
		Jobs:      app.jobs,
		Blobs:     blobStore,
		Publisher: publisher,
		Hasher:    sha256.New(),
		IDs:       idGen,
		Clock:     clock,
		Matcher:   dedup.NewMatcher(cfg.Dedup.NameThreshold),
		Limiter:   setupLimiter(app),
		Policy:    setupPolicy(app),
		Progress:  emitter,
	}, discovery.Config{
		BatchSize:      cfg.Discovery.BatchSize,
		SnapshotPrefix: cfg.Storage.Prefix,
		ContentType:    cfg.Storage.ContentType,
		Topic:          cfg.PubSub.TopicName,
	}, logger)

	app.queue = queueMemory.NewQueue(cfg.Discovery.QueueDepth)
	app.dispatch = setupDispatcher(app, clock, emitter)

	app.apiServer = api.NewServer(api.Deps{
		Jobs:     app.jobs,
		Leads:    app.leads,
		Queue:    app.dispatch,
		Analyzer: app.analyzer,
		IDs:      idGen,
		Clock:    clock,
		Progress: app.progressRepo,
		Sources:  app.searcher.Sources(),
		Ready:    app.ready,
	}, *cfg, logger.Named("api"))

	return app, nil
}

func setupDatabase(ctx context.Context, app *App) error {
	dbCfg := app.cfg.Database
	switch dbCfg.Backend {
	case "postgres":
		p, err := pgstore.Connect(ctx, pgstore.Config{
			DSN:             dbCfg.DSN,
			MaxConns:        dbCfg.MaxConns,
			MinConns:        dbCfg.MinConns,
			MaxConnLifetime: dbCfg.MaxConnLifetime,
		})
		if err != nil {
			return fmt.Errorf("postgres init failed: %w", err)
		}
		app.pgPool = p
		if dbCfg.AutoMigrate {
			applied, err := pgstore.Migrate(ctx, p)
			if err != nil {
				return fmt.Errorf("postgres migrate failed: %w", err)
			}
			app.logger.Info("postgres migrations applied", zap.Strings("versions", applied))
		}
		if app.leads, err = pgstore.NewLeadStore(p); err != nil {
			return fmt.Errorf("lead store init failed: %w", err)
		}
		if app.jobs, err = pgstore.NewJobStore(p); err != nil {
			return fmt.Errorf("job store init failed: %w", err)
		}
		if app.progressRepo, err = pgstore.NewProgressStore(p); err != nil {
			return fmt.Errorf("progress store init failed: %w", err)
		}
		app.ready = func(ctx context.Context) error { return p.Ping(ctx) }
		app.logger.Info("using postgres database backend")
	case "sqlite":
		repo, err := sqlite.Open(ctx, dbCfg.SQLitePath)
		if err != nil {
			return fmt.Errorf("sqlite init failed: %w", err)
		}
		app.sqliteRepo = repo
		app.leads = repo
		app.jobs = repo
		app.progressRepo = memoryStorage.NewProgressStore()
		app.logger.Info("using sqlite database backend", zap.String("path", dbCfg.SQLitePath))
	default:
		app.leads = memoryStorage.NewLeadStore()
		app.jobs = memoryStorage.NewJobStore()
		app.progressRepo = memoryStorage.NewProgressStore()
		app.logger.Warn("using in-memory database backend; leads are lost on restart")
	}
	return nil
}

func setupStorage(ctx context.Context, app *App) (lead.BlobStore, error) {
	switch app.cfg.Storage.Backend {
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		app.storage = client
		blobStore, err := gcsstorage.New(client, gcsstorage.Config{Bucket: app.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		app.logger.Info("using GCS snapshot storage", zap.String("bucket", app.cfg.Storage.Bucket))
		return blobStore, nil
	case "local":
		blobStore, err := localstorage.New(localstorage.Config{BaseDir: app.cfg.Storage.Local.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		app.logger.Info("using local snapshot storage", zap.String("path", app.cfg.Storage.Local.BaseDir))
		return blobStore, nil
	case "none":
		app.logger.Info("snapshot storage disabled")
		return nil, nil
	default:
		app.logger.Info("using in-memory snapshot storage")
		return memoryStorage.NewBlobStore(), nil
	}
}

func setupPublisher(ctx context.Context, app *App) (lead.Publisher, error) {
	if app.cfg.PubSub.TopicName == "" || app.cfg.PubSub.ProjectID == "" {
		app.logger.Info("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	client, err := pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubClient = client
	app.pubsubPub = gcppublisher.New(client)
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPub, nil
}

func setupProgress(ctx context.Context, app *App, reg prometheus.Registerer) (progress.Emitter, error) {
	pc := app.cfg.Progress
	if !pc.Enabled {
		app.logger.Info("progress tracking disabled")
		return progress.Nop, nil
	}
	sinkList := []progress.Sink{
		progresssinks.NewStoreSink(app.progressRepo, app.logger.Named("progress_store")),
	}
	promSink, err := progresssinks.NewPrometheusSink(reg)
	if err != nil {
		return nil, fmt.Errorf("progress prometheus sink: %w", err)
	}
	sinkList = append(sinkList, promSink)
	if pc.LogEnabled {
		sinkList = append(sinkList, progresssinks.NewLogSink(app.logger.Named("progress_log")))
	}
	hubCfg := progress.Config{
		BufferSize:     pc.BufferSize,
		MaxBatchEvents: pc.Batch.MaxEvents,
		MaxBatchWait:   time.Duration(pc.Batch.MaxWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(pc.SinkTimeoutMs) * time.Millisecond,
		BaseContext:    context.WithoutCancel(ctx),
		Logger:         app.logger.Named("progress_hub"),
	}
	app.progressHub = progress.NewHub(hubCfg, sinkList...)
	app.logger.Info("progress hub initialized",
		zap.Int("sinks", len(sinkList)),
		zap.Int("buffer_size", hubCfg.BufferSize),
		zap.Duration("max_batch_wait", hubCfg.MaxBatchWait),
	)
	return app.progressHub, nil
}

func setupAnalyzer(app *App, clock lead.Clock) *analysis.Analyzer {
	cfg := app.cfg
	probe := collyfetcher.New(collyfetcher.Config{
		UserAgent:     cfg.HTTP.UserAgent,
		RespectRobots: cfg.Analysis.RespectRobots,
		Timeout:       cfg.HTTPTimeout(),
		MaxBodyBytes:  cfg.Analysis.MaxPageBytes,
	})
	var headless lead.Fetcher
	var detect lead.HeadlessDetector
	if cfg.Headless.Enabled {
		viewport := headlessfetcher.PhoneViewport
		if cfg.Headless.DesktopViewport {
			viewport = headlessfetcher.DesktopViewport
		}
		hf, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			Viewport:          viewport,
		})
		if err != nil {
			app.logger.Warn("headless fetcher init failed; continuing without promotion", zap.Error(err))
		} else {
			app.headless = hf
			headless = hf
			detect = detector.NewHeuristic(cfg.Headless.PromotionThresh)
			app.logger.Info("headless promotion enabled", zap.Int("max_parallel", cfg.Headless.MaxParallel))
		}
	}
	return analysis.New(probe, headless, detect, clock, analysis.Config{
		RespectRobots:    cfg.Analysis.RespectRobots,
		MaxRetries:       cfg.Analysis.MaxRetries,
		RetryBackoffBase: time.Duration(cfg.Analysis.BackoffInitialMs) * time.Millisecond,
	}, app.logger)
}

func setupSearch(app *App) (*search.Multi, error) {
	cfg := app.cfg
	collector := search.CollectorConfig{UserAgent: cfg.HTTP.UserAgent, Timeout: cfg.HTTPTimeout()}
	providers := make([]search.Provider, 0, len(cfg.Search.Providers))
	for _, name := range cfg.Search.Providers {
		switch strings.ToLower(name) {
		case duckduckgo.Name:
			providers = append(providers, duckduckgo.New(duckduckgo.Config{
				BaseURL:   cfg.Search.DuckDuckGoURL,
				Collector: collector,
			}))
		case bing.Name:
			providers = append(providers, bing.New(bing.Config{
				BaseURL:   cfg.Search.BingURL,
				Collector: collector,
			}))
		default:
			return nil, fmt.Errorf("%w: %s", search.ErrUnknownSource, name)
		}
	}
	return search.NewMulti(providers,
		search.WithBlocklist(cfg.Blocklist(search.DefaultBlocklist)),
		search.WithLogger(app.logger.Named("search")),
	), nil
}

func setupLimiter(app *App) discovery.Limiter {
	if !app.cfg.RateLimit.Enabled {
		return nil
	}
	app.logger.Info("rate limiter enabled",
		zap.Float64("default_rps", app.cfg.RateLimit.DefaultRPS),
		zap.Int("default_burst", app.cfg.RateLimit.DefaultBurst),
	)
	return ratelimit.New(ratelimit.Config{
		DefaultRPS:   app.cfg.RateLimit.DefaultRPS,
		DefaultBurst: app.cfg.RateLimit.DefaultBurst,
	})
}

func setupPolicy(app *App) lead.Policy {
	return simple.New(app.cfg.Headless.Enabled)
}

func setupDispatcher(app *App, clock lead.Clock, emitter progress.Emitter) *dispatcher.Dispatcher {
	workerCfg := worker.Config{JobTimeout: app.cfg.JobTimeout()}
	workers := make([]*worker.Worker, 0, app.cfg.Discovery.Concurrency)
	for i := 0; i < app.cfg.Discovery.Concurrency; i++ {
		workers = append(workers, worker.New(
			app.queue,
			app.jobs,
			app.pipeline,
			clock,
			emitter,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	app.logger.Info("worker pool configured",
		zap.Int("workers", len(workers)),
		zap.Int("queue_depth", app.cfg.Discovery.QueueDepth),
		zap.Duration("job_timeout", workerCfg.JobTimeout),
	)
	return dispatcher.New(app.queue, workers)
}
