// Package server provides the core application server and dependency injection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/toolshelf/internal/accelerator"
	"github.com/JakeFAU/toolshelf/internal/api"
	"github.com/JakeFAU/toolshelf/internal/catalog"
	"github.com/JakeFAU/toolshelf/internal/clock/system"
	"github.com/JakeFAU/toolshelf/internal/config"
	"github.com/JakeFAU/toolshelf/internal/crawl"
	"github.com/JakeFAU/toolshelf/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/toolshelf/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/toolshelf/internal/fetcher/headless"
	"github.com/JakeFAU/toolshelf/internal/hash/sha256"
	"github.com/JakeFAU/toolshelf/internal/icon"
	"github.com/JakeFAU/toolshelf/internal/id/uuid"
	"github.com/JakeFAU/toolshelf/internal/logging"
	"github.com/JakeFAU/toolshelf/internal/metrics"
	"github.com/JakeFAU/toolshelf/internal/news"
	"github.com/JakeFAU/toolshelf/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/toolshelf/internal/publisher/pubsub"
	queuememory "github.com/JakeFAU/toolshelf/internal/queue/memory"
	"github.com/JakeFAU/toolshelf/internal/sources"
	"github.com/JakeFAU/toolshelf/internal/staticlist"
	boltstore "github.com/JakeFAU/toolshelf/internal/storage/bolt"
	gcsstorage "github.com/JakeFAU/toolshelf/internal/storage/gcs"
	localstorage "github.com/JakeFAU/toolshelf/internal/storage/local"
	memorystorage "github.com/JakeFAU/toolshelf/internal/storage/memory"
	pgstore "github.com/JakeFAU/toolshelf/internal/storage/postgres"
	"github.com/JakeFAU/toolshelf/internal/worker"
)

// App contains the application's dependencies.
type App struct {
	cfg          *config.Config
	logger       *zap.Logger
	apiServer    *api.Server
	dispatch     *dispatcher.Dispatcher
	queue        *queuememory.Queue
	list         *staticlist.Loader
	store        catalog.ToolStore
	orchestrator *crawl.Orchestrator
	icons        *icon.Resolver
	closers      []namedCloser
	closeOnce    sync.Once
	closeErr     error
}

type namedCloser struct {
	name  string
	close func() error
}

// NewApp creates a new App with the given configuration.
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("creating application",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("store_backend", cfg.Store.Backend),
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.Bool("headless", cfg.Headless.Enabled),
	)
	return &App{cfg: cfg, logger: logger}, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Crawl runs one crawl over the current static list in the caller's
// goroutine, bypassing the job queue.
func (a *App) Crawl(ctx context.Context) (catalog.CrawlReport, error) {
	report, err := a.orchestrator.RunCrawl(ctx, a.list)
	if err != nil {
		return report, fmt.Errorf("crawl: %w", err)
	}
	return report, nil
}

// Icon resolves a site icon through the configured tiers.
func (a *App) Icon(ctx context.Context, rawURL string) (catalog.Icon, bool) {
	return a.icons.Resolve(ctx, rawURL)
}

// Run starts the application and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("application started")
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Crawler.Workers))
		a.dispatch.Run(ctx)
	}()

	if a.cfg.Catalog.Watch {
		go func() {
			if err := a.list.Watch(ctx); err != nil {
				a.logger.Warn("static list watcher stopped", zap.Error(err))
			}
		}()
	}

	if a.cfg.Crawler.OnStart || a.cfg.Crawler.Interval > 0 {
		go a.dispatch.Schedule(ctx, a.cfg.Crawler.Interval, a.cfg.Crawler.OnStart)
	}

	srv := &http.Server{
		Addr:              a.cfg.Addr(),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       a.cfg.Server.ReadTimeout,
		WriteTimeout:      a.cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- fmt.Errorf("http server: %w", err)
			stop()
			return
		}
		serveErr <- nil
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout())
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still running at shutdown deadline")
	}

	var runErr error
	select {
	case runErr = <-serveErr:
	case <-shutdownCtx.Done():
	}
	return errors.Join(runErr, a.Close(shutdownCtx))
}

func (a *App) shutdownTimeout() time.Duration {
	if a.cfg.Server.ShutdownTimeout <= 0 {
		return 10 * time.Second
	}
	return a.cfg.Server.ShutdownTimeout
}

// Close gracefully shuts down the application. Later calls return the
// first call's result.
func (a *App) Close(_ context.Context) error {
	a.closeOnce.Do(func() {
		if a.queue != nil {
			a.queue.Close()
		}
		var errs []error
		for i := len(a.closers) - 1; i >= 0; i-- {
			c := a.closers[i]
			if err := c.close(); err != nil {
				a.logger.Warn("close failed", zap.String("component", c.name), zap.Error(err))
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}
		// Sync errors on stdout/stderr are expected and ignored.
		_ = a.logger.Sync()
		a.logger.Info("shutdown complete")
		a.closeErr = errors.Join(errs...)
	})
	return a.closeErr
}

func (a *App) onClose(name string, fn func() error) {
	a.closers = append(a.closers, namedCloser{name: name, close: fn})
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	metrics.Init()

	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("app init failed: %w", err)
	}
	if err := app.build(ctx); err != nil {
		_ = app.Close(ctx)
		return nil, err
	}
	return app, nil
}

func (a *App) build(ctx context.Context) error {
	a.logger.Info("building application dependencies")
	clock := system.New()

	getter := collyfetcher.New(a.cfg.HTTP, collyfetcher.WithLimiter(ratelimit.New(a.cfg.RateLimit)))
	a.logger.Info("using colly getter",
		zap.String("user_agent", a.cfg.HTTP.UserAgent),
		zap.Duration("timeout", a.cfg.HTTP.Timeout),
	)

	var err error
	a.list, err = staticlist.New(a.cfg.Catalog.StaticListPath, a.logger)
	if err != nil {
		return fmt.Errorf("static list init failed: %w", err)
	}

	registry := sources.DefaultRegistry(getter, a.cfg.SourcesConfig())
	if unknown := registry.Unknown(a.list.Entries()); len(unknown) > 0 {
		a.logger.Warn("static list names unknown fetchers", zap.Strings("fetchers", unknown))
	}

	if a.store, err = a.setupStore(ctx); err != nil {
		return err
	}

	accel := accelerator.New(a.cfg.Accelerator)
	a.orchestrator = crawl.New(registry, a.store, accel,
		crawl.WithClock(clock),
		crawl.WithLogger(a.logger),
	)

	if a.icons, err = a.setupIcons(getter); err != nil {
		return err
	}

	blobs, err := a.setupStorage(ctx)
	if err != nil {
		return err
	}
	publisher, topic, err := a.setupPublisher(ctx)
	if err != nil {
		return err
	}

	jobs := memorystorage.NewJobStore()
	a.queue = queuememory.NewQueue(a.cfg.Crawler.QueueDepth)
	workers := make([]*worker.Worker, 0, a.cfg.Crawler.Workers)
	for range a.cfg.Crawler.Workers {
		workers = append(workers, worker.New(worker.Deps{
			Queue:     a.queue,
			Jobs:      jobs,
			Crawler:   a.orchestrator,
			List:      a.list,
			Store:     a.store,
			Blobs:     blobs,
			Publisher: publisher,
			Hasher:    sha256.New(),
			Clock:     clock,
		}, worker.Config{SnapshotPrefix: a.cfg.Storage.Prefix, Topic: topic}, a.logger))
	}
	a.dispatch = dispatcher.New(a.queue, jobs, uuid.New(), clock, workers, dispatcher.WithLogger(a.logger))

	trending := news.NewTrending(getter, a.cfg.News, a.logger)

	store := a.store
	a.apiServer = api.NewServer(api.Deps{
		List:        a.list,
		Store:       store,
		Crawls:      a.dispatch,
		Icons:       a.icons,
		News:        trending,
		Accelerator: accel,
		Clock:       clock,
		Ready: func(ctx context.Context) error {
			_, err := store.ListAll(ctx)
			return err
		},
	}, *a.cfg, a.logger)

	return nil
}

func (a *App) setupStore(ctx context.Context) (catalog.ToolStore, error) {
	switch a.cfg.Store.Backend {
	case config.StoreBolt:
		store, err := boltstore.Open(a.cfg.Store.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("bolt store init failed: %w", err)
		}
		a.onClose("bolt store", store.Close)
		a.logger.Info("using bolt tool store", zap.String("path", a.cfg.Store.BoltPath))
		return store, nil
	case config.StorePostgres:
		store, err := pgstore.NewToolStore(ctx, pgstore.Config{
			DSN:             a.cfg.Store.DSN,
			Table:           a.cfg.Store.Table,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
		})
		if err != nil {
			return nil, fmt.Errorf("postgres store init failed: %w", err)
		}
		a.onClose("postgres store", func() error {
			store.Close()
			return nil
		})
		a.logger.Info("using postgres tool store", zap.String("table", a.cfg.Store.Table))
		return store, nil
	default:
		a.logger.Warn("using in-memory tool store; crawled versions are lost on restart")
		return memorystorage.NewToolStore(), nil
	}
}

func (a *App) setupIcons(getter catalog.Getter) (*icon.Resolver, error) {
	var renderer icon.Renderer
	if a.cfg.Headless.Enabled {
		browser, err := headlessfetcher.NewChromedp(a.cfg.Headless.Config)
		if err != nil {
			return nil, fmt.Errorf("headless browser init failed: %w", err)
		}
		renderer = browser
		a.logger.Info("headless icon tier enabled", zap.Int("max_parallel", a.cfg.Headless.MaxParallel))
	}
	return icon.New(getter, renderer, a.cfg.Icon, a.logger), nil
}

func (a *App) setupStorage(ctx context.Context) (catalog.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.StorageGCS:
		store, err := gcsstorage.Dial(ctx, a.cfg.Storage.GCS)
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		a.onClose("gcs blob store", store.Close)
		a.logger.Info("using GCS snapshot storage", zap.String("bucket", a.cfg.Storage.GCS.Bucket))
		return store, nil
	case config.StorageLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Storage.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		a.logger.Info("using local snapshot storage", zap.String("path", a.cfg.Storage.LocalDir))
		return store, nil
	case config.StorageMemory:
		a.logger.Info("using in-memory snapshot storage")
		return memorystorage.NewBlobStore(), nil
	default:
		a.logger.Info("snapshot export disabled")
		return nil, nil
	}
}

func (a *App) setupPublisher(ctx context.Context) (catalog.Publisher, string, error) {
	if !a.cfg.PubSub.Enabled {
		a.logger.Info("crawl notifications disabled")
		return nil, "", nil
	}
	publisher, err := gcppublisher.Dial(ctx, gcppublisher.Config{
		ProjectID: a.cfg.PubSub.ProjectID,
		Endpoint:  a.cfg.PubSub.Endpoint,
	})
	if err != nil {
		return nil, "", fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.onClose("pubsub publisher", publisher.Close)
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.Topic),
	)
	return publisher, a.cfg.PubSub.Topic, nil
}
