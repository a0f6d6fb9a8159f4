// Package app wires configuration into a ready-to-run harvester.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/archive"
	"github.com/JakeFAU/archive-harvester/internal/clock/system"
	"github.com/JakeFAU/archive-harvester/internal/config"
	"github.com/JakeFAU/archive-harvester/internal/crawler"
	"github.com/JakeFAU/archive-harvester/internal/encoding/jsonl"
	"github.com/JakeFAU/archive-harvester/internal/encoding/spreadsheet"
	collyfetcher "github.com/JakeFAU/archive-harvester/internal/fetcher/colly"
	"github.com/JakeFAU/archive-harvester/internal/hash/sha256"
	"github.com/JakeFAU/archive-harvester/internal/id/uuid"
	"github.com/JakeFAU/archive-harvester/internal/logging"
	"github.com/JakeFAU/archive-harvester/internal/metrics"
	memorypublisher "github.com/JakeFAU/archive-harvester/internal/publisher/memory"
	"github.com/JakeFAU/archive-harvester/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/archive-harvester/internal/publisher/pubsub"
	"github.com/JakeFAU/archive-harvester/internal/server"
	gcsstorage "github.com/JakeFAU/archive-harvester/internal/storage/gcs"
	localstorage "github.com/JakeFAU/archive-harvester/internal/storage/local"
	memorystorage "github.com/JakeFAU/archive-harvester/internal/storage/memory"
	pgstore "github.com/JakeFAU/archive-harvester/internal/storage/postgres"
)

// App holds one harvesting mode wired to its collaborators.
type App struct {
	cfg    config.Config
	mode   string
	runID  string
	logger *zap.Logger
	clock  *system.Clock

	orchestrator *crawler.Orchestrator
	blobStore    crawler.BlobStore
	notifier     crawler.Publisher

	storageClient *storage.Client
	pubsub        *gcppublisher.Publisher
	manifest      *pgstore.ManifestStore
}

// Option overrides a collaborator, mainly for tests.
type Option func(*options)

type options struct {
	transport crawler.Transport
	blobStore crawler.BlobStore
	pauser    crawler.Pauser
	clock     crawler.Clock
	runID     string
}

// WithTransport replaces the colly transport.
func WithTransport(t crawler.Transport) Option {
	return func(o *options) { o.transport = t }
}

// WithBlobStore replaces the configured storage backend.
func WithBlobStore(s crawler.BlobStore) Option {
	return func(o *options) { o.blobStore = s }
}

// WithPauser replaces the timer-based pauser.
func WithPauser(p crawler.Pauser) Option {
	return func(o *options) { o.pauser = p }
}

// WithClock replaces the wall clock used for budgets and timestamps.
func WithClock(c crawler.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithRunID pins the run ID instead of generating one.
func WithRunID(id string) Option {
	return func(o *options) { o.runID = id }
}

// Build validates cfg and constructs every dependency for mode. Storage
// connectivity is checked here so misconfiguration fails before any date is
// processed.
func Build(ctx context.Context, cfg config.Config, mode string, logger *zap.Logger, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Run(mode); err != nil {
		return nil, &config.ValidationError{Problems: []string{err.Error()}}
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()

	clk, err := system.NewInZone(cfg.Site.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("clock init failed: %w", err)
	}
	runID := o.runID
	if runID == "" {
		if runID, err = uuid.New().NewRunID(); err != nil {
			return nil, err
		}
	}

	a := &App{
		cfg:    cfg,
		mode:   mode,
		runID:  runID,
		logger: logging.ForRun(logger, runID, mode, cfg.Site.Collection),
		clock:  clk,
	}
	var runClock crawler.Clock = clk
	if o.clock != nil {
		runClock = o.clock
	}

	ok := false
	defer func() {
		if !ok {
			_ = a.Close(context.Background())
		}
	}()

	if a.blobStore = o.blobStore; a.blobStore == nil {
		if a.blobStore, err = a.setupStorage(ctx); err != nil {
			return nil, err
		}
	}
	var manifest crawler.ManifestStore
	if manifest, err = a.setupManifest(ctx); err != nil {
		return nil, err
	}
	if a.notifier, err = a.setupPublisher(ctx); err != nil {
		return nil, err
	}

	site, err := archive.NewSite(cfg.Site.BaseURL)
	if err != nil {
		return nil, &config.ValidationError{Problems: []string{err.Error()}}
	}
	transport := o.transport
	if transport == nil {
		transport = collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Site.UserAgent,
			Timeout:   cfg.PageTimeout(),
		})
	}
	transport = ratelimit.Wrap(transport, ratelimit.New(ratelimit.Config{
		RPS:   cfg.Politeness.RequestsPerSecond,
		Burst: 1,
	}))
	pauser := o.pauser
	if pauser == nil {
		pauser = crawler.TimerPauser{}
	}
	pageFetcher := crawler.NewRetryingFetcher(transport, cfg.RetryPolicy(cfg.PageTimeout()), pauser, a.logger.Named("fetch"))

	var (
		source    crawler.IndexSource
		extractor crawler.Extractor
		encoder   crawler.Encoder
	)
	switch mode {
	case config.ModeArticles:
		encoder = articlesEncoder(cfg.Output.ArticlesFormat)
		pipeline := crawler.NewPipeline(pageFetcher, pauser, cfg.PipelineDelays(), a.logger.Named("pipeline"))
		source = archive.NewArticleIndexSource(site)
		extractor = archive.NewArticleExtractor(site, pipeline, "data."+encoder.Extension(), a.logger.Named("articles"))
	case config.ModeEditions:
		docFetcher := crawler.NewRetryingFetcher(transport, cfg.RetryPolicy(cfg.DocumentTimeout()), pauser, a.logger.Named("download"))
		source = archive.NewEditionIndexSource(site, pageFetcher, a.logger.Named("editions"))
		extractor = archive.NewEditionExtractor(cfg.Site.Collection, docFetcher)
	}

	sink := crawler.NewDocumentSink(
		a.blobStore,
		encoder,
		sha256.New(),
		manifest,
		a.notifier,
		runClock,
		crawler.SinkConfig{
			Collection: cfg.Site.Collection,
			RunID:      runID,
			Topic:      a.topic(),
		},
		a.logger.Named("sink"),
	)
	checkpoint := crawler.NewCheckpointStore(a.blobStore, cfg.CheckpointKey(mode), a.logger.Named("checkpoint"))

	a.orchestrator = crawler.NewOrchestrator(
		crawler.OrchestratorConfig{Mode: mode, RunID: runID},
		crawler.NewPeriodIndexCache(source, a.logger.Named("period_cache")),
		extractor,
		sink,
		checkpoint,
		runClock,
		pauser,
		a.logger.Named("orchestrator"),
	)

	a.logger.Info("harvester built",
		zap.String("storage_backend", cfg.Storage.Backend),
		zap.String("checkpoint_key", checkpoint.Key()),
		zap.Bool("manifest", manifest != nil),
		zap.Bool("pubsub", a.pubsub != nil),
	)
	ok = true
	return a, nil
}

func articlesEncoder(format string) crawler.Encoder {
	if format == config.FormatJSONL {
		return jsonl.New()
	}
	return spreadsheet.New()
}

func (a *App) topic() string {
	if a.cfg.PubSub.TopicName != "" {
		return a.cfg.PubSub.TopicName
	}
	return "documents-stored"
}

func (a *App) setupStorage(ctx context.Context) (crawler.BlobStore, error) {
	switch a.cfg.Storage.Backend {
	case config.BackendGCS:
		a.logger.Info("using GCS storage backend", zap.String("bucket", a.cfg.Storage.Bucket))
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storageClient = client
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Storage.Bucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		if err := store.CheckBucket(ctx); err != nil {
			return nil, &config.ValidationError{Problems: []string{err.Error()}}
		}
		return store, nil
	case config.BackendLocal:
		a.logger.Info("using local storage backend", zap.String("path", a.cfg.Storage.Local.BaseDir))
		store, err := localstorage.New(a.cfg.Storage.Local)
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return store, nil
	default:
		a.logger.Warn("using in-memory storage backend, nothing will persist past this run")
		return memorystorage.NewBlobStore(), nil
	}
}

// setupManifest returns a nil interface when no DSN is configured.
func (a *App) setupManifest(ctx context.Context) (crawler.ManifestStore, error) {
	if a.cfg.Database.DSN == "" {
		a.logger.Debug("no database DSN configured, manifest disabled")
		return nil, nil
	}
	store, err := pgstore.NewManifestStore(ctx, pgstore.ManifestStoreConfig{
		DSN:             a.cfg.Database.DSN,
		Table:           a.cfg.Database.Table,
		MaxConns:        a.cfg.Database.MaxConns,
		MinConns:        a.cfg.Database.MinConns,
		MaxConnLifetime: a.cfg.Database.MaxConnLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("manifest store init failed: %w", err)
	}
	a.manifest = store
	a.logger.Info("manifest store initialized", zap.String("table", a.cfg.Database.Table))
	return store, nil
}

func (a *App) setupPublisher(ctx context.Context) (crawler.Publisher, error) {
	if a.cfg.PubSub.ProjectID == "" {
		a.logger.Debug("no Pub/Sub project configured, using in-memory publisher")
		return memorypublisher.New(), nil
	}
	pub, err := gcppublisher.Open(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub publisher init failed: %w", err)
	}
	a.pubsub = pub
	a.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", a.cfg.PubSub.ProjectID),
		zap.String("topic", a.cfg.PubSub.TopicName),
	)
	return pub, nil
}

// RunID returns the identifier stamped on logs, manifest rows and messages.
func (a *App) RunID() string {
	return a.runID
}

// BlobStore exposes the store in use.
func (a *App) BlobStore() crawler.BlobStore {
	return a.blobStore
}

// Notifier exposes the publisher in use.
func (a *App) Notifier() crawler.Publisher {
	return a.notifier
}

// Snapshot returns the live run report.
func (a *App) Snapshot() crawler.RunReport {
	return a.orchestrator.Snapshot()
}

// Params resolves the mode's run section against today's date.
func (a *App) Params() (crawler.RunParams, error) {
	run, err := a.cfg.Run(a.mode)
	if err != nil {
		return crawler.RunParams{}, err
	}
	params, err := run.Params(a.clock.Today())
	if err != nil {
		return crawler.RunParams{}, &config.ValidationError{Problems: []string{err.Error()}}
	}
	return params, nil
}

// Run executes one harvest. When server.port is set the status server runs
// alongside and stops with the run.
func (a *App) Run(ctx context.Context, params crawler.RunParams) (crawler.RunReport, error) {
	if a.cfg.Server.Port > 0 {
		srvCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		go func() {
			defer close(done)
			addr := net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port))
			if err := server.New(a, a.logger.Named("status")).Serve(srvCtx, addr); err != nil {
				a.logger.Warn("status server failed", zap.Error(err))
			}
		}()
		defer func() {
			stop()
			<-done
		}()
	}

	report, err := a.orchestrator.Run(ctx, params)
	if err != nil {
		return report, &config.ValidationError{Problems: []string{err.Error()}}
	}
	a.logger.Info("run summary",
		zap.Int("uploaded", report.Counters.Stored),
		zap.Int("already_existed", report.Counters.AlreadyExisted),
		zap.Int("skipped", report.Counters.Skipped),
		zap.Int("failed", report.Counters.Failed),
		zap.Float64("runtime_minutes", time.Duration(report.Elapsed).Minutes()),
		zap.String("halt_reason", string(report.Halt)),
	)
	return report, nil
}

// Close releases clients. It is safe to call on a partially built App.
func (a *App) Close(_ context.Context) error {
	var errs []error
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if a.manifest != nil {
		a.manifest.Close()
	}
	if a.storageClient != nil {
		if err := a.storageClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close gcs client: %w", err))
		}
	}
	return errors.Join(errs...)
}
