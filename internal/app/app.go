package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/nsqio/go-nsq"

	"selflearning/apps/worker/features/job"
	"selflearning/apps/worker/features/lesson"
	"selflearning/apps/worker/features/stats"
	"selflearning/apps/worker/internal/adapter/gemini"
	"selflearning/apps/worker/internal/config"
	"selflearning/apps/worker/internal/events"
	"selflearning/apps/worker/internal/middleware"
	"selflearning/apps/worker/internal/observability"
	"selflearning/apps/worker/internal/orchestrator"
	"selflearning/apps/worker/internal/pool"
	"selflearning/apps/worker/internal/retrieval"
	"selflearning/apps/worker/internal/settings"
	"selflearning/apps/worker/internal/tasks"
	"selflearning/apps/worker/internal/text"
	"selflearning/apps/worker/internal/worker"
)

type VectorStore interface {
	StoreChunk(ctx context.Context, chunk worker.Chunk) error
	DeleteLessonChunks(ctx context.Context, lessonID string) error
	CountChunks(ctx context.Context, lessonID string) (int, error)
	Search(ctx context.Context, lessonID string, vector []float32, limit int) ([]retrieval.Result, error)
}

// Producer publishes to NSQ. A nil Producer runs the process standalone:
// no wake-ups or events cross process boundaries.
type Producer interface {
	Publish(topic string, body []byte) error
}

type Option func(*options)

type options struct {
	embedder worker.Embedder
}

// WithEmbedder replaces the settings-driven Gemini embedder.
func WithEmbedder(e worker.Embedder) Option {
	return func(o *options) { o.embedder = e }
}

type subscription struct {
	topic   string
	channel string
	handler nsq.Handler
}

type App struct {
	Handler    http.Handler
	Hub        *events.Hub
	JobService *job.Service
	Registry   *tasks.Registry
	Metrics    *observability.Metrics

	// Manager and Orchestrator are nil when ENABLE_WORKER is off.
	Manager      *pool.Manager
	Orchestrator *orchestrator.Orchestrator

	cfg       *config.Config
	logger    *slog.Logger
	subs      []subscription
	consumers []*nsq.Consumer
	gemini    *gemini.DynamicEmbedder
	queryLog  io.Closer
}

func New(
	cfg *config.Config,
	db *sql.DB,
	vecStore VectorStore,
	producer Producer,
	logger *slog.Logger,
	opts ...Option,
) (*App, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = slog.Default()
	}

	metrics, metricsHandler, err := observability.NewMetrics()
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}

	a := &App{
		Hub:      events.NewHub(events.WithRetention(cfg.EventRetention)),
		Registry: tasks.NewRegistry(),
		Metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
	}

	// Feature: Settings
	settingsService := settings.NewService(settings.NewPostgresRepo(db), cfg.GeminiAPIKey)
	settingsHandler := settings.NewHandler(settingsService)

	// Job types
	embedder := o.embedder
	if embedder == nil {
		a.gemini = gemini.NewDynamicEmbedder(settingsService)
		embedder = a.gemini
	}
	chunking := text.Options{MaxTokens: cfg.EmbedChunkSize, OverlapTokens: cfg.EmbedChunkOverlap}
	lessonEmbedder := worker.NewLessonEmbedder(lesson.NewPostgresSource(db), embedder, vecStore, chunking)
	if err := worker.Register(a.Registry, lessonEmbedder, worker.NewLessonRemover(vecStore)); err != nil {
		return nil, fmt.Errorf("register job types: %w", err)
	}

	// Feature: Job
	jobRepo := job.NewPostgresRepo(db, cfg.JobMaxAttempts)

	var triggers []job.Trigger
	var poolStats stats.PoolStats
	if cfg.EnableWorker {
		var sink events.Sink = a.Hub
		if !cfg.EnableAPI && producer != nil {
			sink = events.NewRelay(a.Hub, producer, config.TopicJobEvents)
		}

		a.Manager = pool.NewManager(a.Registry, poolConfigs(cfg), a.Registry.CategoryFor,
			pool.WithObserver(metrics), pool.WithLogger(logger))
		if err := metrics.ObservePools(a.Manager); err != nil {
			return nil, fmt.Errorf("pool metrics: %w", err)
		}

		a.Orchestrator = orchestrator.New(jobRepo, a.Manager, sink,
			orchestrator.Config{BatchSize: cfg.JobBatchSize, PollInterval: cfg.JobPollInterval},
			orchestrator.WithRecorder(metrics), orchestrator.WithLogger(logger))
		triggers = append(triggers, a.Orchestrator)
		poolStats = a.Manager

		if producer != nil {
			a.subs = append(a.subs, subscription{config.TopicJobsTrigger, config.ChannelWorkers, worker.NewTriggerConsumer(a.Orchestrator)})
		}
	} else if producer != nil {
		triggers = append(triggers, worker.NewTriggerPublisher(producer, config.TopicJobsTrigger))
	}

	if cfg.EnableAPI && !cfg.EnableWorker && producer != nil {
		// Each API process needs every event, so each gets its own channel.
		channel := "api-" + uuid.NewString() + "#ephemeral"
		a.subs = append(a.subs, subscription{config.TopicJobEvents, channel, events.NewForwarder(a.Hub)})
	}

	a.JobService = job.NewService(jobRepo, a.Hub, a.Registry, logger, triggers...)

	// Routes
	mux := http.NewServeMux()
	if cfg.EnableAPI {
		jobHandler := job.NewHandler(a.JobService, a.Hub, job.DefaultKeepAlive)
		statsHandler := stats.NewHandler(a.JobService, poolStats, vecStore)

		var queryLogger *retrieval.QueryLogger
		if cfg.QueryLogPath != "" {
			ql, closer, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
			if err != nil {
				logger.Warn("query log unavailable, logging queries to stdout", "path", cfg.QueryLogPath, "error", err)
				ql = retrieval.NewQueryLogger(os.Stdout)
			} else {
				a.queryLog = closer
			}
			queryLogger = ql
		}
		lessonHandler := lesson.NewHandler(retrieval.NewService(embedder, vecStore, queryLogger, cfg.RetrievalMinScore))

		mux.HandleFunc("POST /jobs", jobHandler.Enqueue)
		mux.HandleFunc("GET /jobs/failed", jobHandler.List)
		mux.HandleFunc("GET /jobs/{id}/events", jobHandler.Events)
		mux.HandleFunc("POST /jobs/{id}/retry", jobHandler.Retry)
		mux.HandleFunc("DELETE /jobs/{id}", jobHandler.Delete)
		mux.HandleFunc("POST /jobs/purge", jobHandler.Purge)

		mux.HandleFunc("GET /lessons/{id}/context", lessonHandler.Context)

		mux.HandleFunc("GET /stats", statsHandler.GetStats)

		mux.HandleFunc("GET /settings", settingsHandler.GetSettings)
		mux.HandleFunc("PUT /settings", settingsHandler.UpdateSettings)
	}
	mux.Handle("GET /metrics", metricsHandler)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = middleware.CorrelationID(metrics.Middleware(middleware.Recover(enableCORS(mux))))
	return a, nil
}

func poolConfigs(cfg *config.Config) map[pool.Category]pool.Config {
	return map[pool.Category]pool.Config{
		pool.CategoryEmbedding: {
			MinWorkers:      cfg.EmbeddingMinWorkers,
			MaxWorkers:      cfg.EmbeddingMaxWorkers,
			MaxIdleTime:     cfg.WorkerMaxIdleTime,
			CleanupInterval: cfg.WorkerSweepInterval,
			TaskTimeout:     cfg.TaskTimeout,
		},
		pool.CategoryGeneral: {
			MinWorkers:      cfg.GeneralMinWorkers,
			MaxWorkers:      cfg.GeneralMaxWorkers,
			MaxIdleTime:     cfg.WorkerMaxIdleTime,
			CleanupInterval: cfg.WorkerSweepInterval,
			TaskTimeout:     cfg.TaskTimeout,
		},
	}
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+middleware.HeaderCorrelationID)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves HTTP, consumes NSQ and polls the queue until ctx is done, then
// shuts everything down within the configured grace period.
func (a *App) Run(ctx context.Context) error {
	if err := a.startConsumers(); err != nil {
		_ = a.Close(context.Background())
		return err
	}

	// Cancelled on shutdown so open event streams end instead of holding it up.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return baseCtx },
	}
	srv.RegisterOnShutdown(cancelBase)

	if a.Orchestrator != nil {
		go func() {
			if err := a.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				a.logger.Error("orchestrator stopped", "error", err)
			}
		}()
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("server starting", "port", a.cfg.ServerPort, "api", a.cfg.EnableAPI, "worker", a.cfg.EnableWorker)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serveErr:
	}

	a.logger.Info("shutting down", "grace_period", a.cfg.ShutdownGracePeriod)
	graceCtx, cancel := context.WithTimeout(context.Background(), a.gracePeriod())
	defer cancel()

	var errs []error
	errs = append(errs, runErr)
	if err := srv.Shutdown(graceCtx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	errs = append(errs, a.Close(graceCtx))
	return errors.Join(errs...)
}

// Close stops consumers, drains and pools. Pools get until ctx is done to
// finish in-flight tasks.
func (a *App) Close(ctx context.Context) error {
	var errs []error

	for _, c := range a.consumers {
		c.Stop()
		select {
		case <-c.StopChan:
		case <-ctx.Done():
		}
	}
	a.consumers = nil

	if a.Orchestrator != nil {
		if err := a.Orchestrator.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop orchestrator: %w", err))
		}
	}
	if a.Manager != nil {
		if err := a.Manager.Terminate(ctx); err != nil {
			errs = append(errs, fmt.Errorf("terminate pools: %w", err))
		}
	}
	if a.gemini != nil {
		if err := a.gemini.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close embedder: %w", err))
		}
	}
	if a.queryLog != nil {
		if err := a.queryLog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close query log: %w", err))
		}
		a.queryLog = nil
	}
	if err := a.Metrics.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown metrics: %w", err))
	}
	return errors.Join(errs...)
}

func (a *App) gracePeriod() time.Duration {
	if a.cfg.ShutdownGracePeriod > 0 {
		return a.cfg.ShutdownGracePeriod
	}
	return 20 * time.Second
}

func (a *App) startConsumers() error {
	for _, s := range a.subs {
		nsqCfg := nsq.NewConfig()
		nsqCfg.MaxInFlight = max(a.cfg.NSQMaxInFlight, 1)

		c, err := nsq.NewConsumer(s.topic, s.channel, nsqCfg)
		if err != nil {
			return fmt.Errorf("nsq consumer %s/%s: %w", s.topic, s.channel, err)
		}
		c.AddHandler(s.handler)

		if a.cfg.NSQLookupd != "" {
			err = c.ConnectToNSQLookupd(a.cfg.NSQLookupd)
		} else {
			err = c.ConnectToNSQD(a.cfg.NSQDHost)
		}
		if err != nil {
			c.Stop()
			return fmt.Errorf("connect nsq consumer %s/%s: %w", s.topic, s.channel, err)
		}

		a.logger.Info("nsq consumer connected", "topic", s.topic, "channel", s.channel)
		a.consumers = append(a.consumers, c)
	}
	return nil
}
