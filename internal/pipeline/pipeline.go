// Package pipeline assembles the extraction components into a runnable
// whole: partitioner, credential pool, throttled workers, scheduler,
// aggregator, progress hub, and the optional ops server, ledger, and
// publisher around them.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pagelift/pagelift/internal/aggregate"
	"github.com/pagelift/pagelift/internal/api"
	"github.com/pagelift/pagelift/internal/clock/system"
	"github.com/pagelift/pagelift/internal/config"
	"github.com/pagelift/pagelift/internal/credential"
	"github.com/pagelift/pagelift/internal/export"
	"github.com/pagelift/pagelift/internal/extract"
	hashSHA "github.com/pagelift/pagelift/internal/hash/sha256"
	idUUID "github.com/pagelift/pagelift/internal/id/uuid"
	ledgerPostgres "github.com/pagelift/pagelift/internal/ledger/postgres"
	"github.com/pagelift/pagelift/internal/metrics"
	"github.com/pagelift/pagelift/internal/partition"
	"github.com/pagelift/pagelift/internal/progress"
	progressSinks "github.com/pagelift/pagelift/internal/progress/sinks"
	publisherMemory "github.com/pagelift/pagelift/internal/publisher/memory"
	publisherPubsub "github.com/pagelift/pagelift/internal/publisher/pubsub"
	"github.com/pagelift/pagelift/internal/recognize/gemini"
	"github.com/pagelift/pagelift/internal/schedule"
	scratchFS "github.com/pagelift/pagelift/internal/scratch/fs"
	scratchGCS "github.com/pagelift/pagelift/internal/scratch/gcs"
	scratchMemory "github.com/pagelift/pagelift/internal/scratch/memory"
	"github.com/pagelift/pagelift/internal/throttle"
	"github.com/pagelift/pagelift/internal/worker"
)

// Options overrides external collaborators during Build. Nil fields fall
// back to the production implementations the config selects; tests inject
// fakes here and cmd/pagelift passes the zero value.
type Options struct {
	Recognizer extract.Recognizer
	Scratch    extract.ScratchStore
	Publisher  extract.Publisher
	Ledger     extract.Ledger
	Clock      extract.Clock
	IDs        extract.IDGenerator
	Registry   prometheus.Registerer
}

// Pipeline owns the components of an extraction run and their lifecycles.
// Build it once, Run it for a document, and Close it when the process is
// done with it.
type Pipeline struct {
	cfg         config.Config
	logger      *zap.Logger
	pool        *credential.Pool
	partitioner *partition.Partitioner
	scheduler   *schedule.Scheduler
	builder     *aggregate.Builder
	exporter    *export.Exporter
	scratch     extract.ScratchStore
	publisher   extract.Publisher
	hub         *progress.Hub
	tracker     *statusTracker
	ids         extract.IDGenerator
	clock       extract.Clock
	ops         *http.Server
	opsOnce     sync.Once
	closers     []func() error
}

// Build assembles a Pipeline from configuration. Configuration problems
// surface as *extract.ConfigurationError before any chunk work starts.
func Build(ctx context.Context, cfg config.Config, opts Options, logger *zap.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	metrics.Init()

	pool, err := credential.NewPool(cfg.Credentials.Keys)
	if err != nil {
		return nil, err
	}

	partitioner, err := partition.New(partition.Config{
		MaxPagesPerChunk: cfg.Partition.MaxPagesPerChunk,
		ChunkDir:         filepath.Join(cfg.Workdir, "chunks"),
	}, logger.Named("partition"))
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		cfg:         cfg,
		logger:      logger,
		pool:        pool,
		partitioner: partitioner,
		tracker:     &statusTracker{},
	}

	p.clock = opts.Clock
	if p.clock == nil {
		p.clock = system.New()
	}
	p.ids = opts.IDs
	if p.ids == nil {
		p.ids = idUUID.NewUUIDGenerator()
	}

	if err := p.buildScratch(ctx, opts); err != nil {
		p.runClosers()
		return nil, err
	}
	ledger, err := p.buildLedger(ctx, opts)
	if err != nil {
		p.runClosers()
		return nil, err
	}
	if err := p.buildPublisher(ctx, opts); err != nil {
		p.runClosers()
		return nil, err
	}
	p.buildHub(opts, ledger)

	recognizer := opts.Recognizer
	if recognizer == nil {
		recognizer = gemini.New(gemini.Config{
			BaseURL: cfg.Recognizer.BaseURL,
			Model:   cfg.Recognizer.Model,
			Timeout: cfg.RecognizerTimeout(),
		}, logger.Named("recognize"))
	}

	governor := throttle.New(throttle.Config{
		RequestsBeforePause: cfg.Throttle.RequestsBeforePause,
		PauseDuration:       cfg.Pause(),
		Cooldown:            cfg.Cooldown(),
		RPS:                 cfg.Throttle.RPS,
		Burst:               cfg.Throttle.Burst,
	}, logger.Named("throttle"))

	w := worker.New(
		pool,
		governor,
		recognizer,
		p.scratch,
		p.publisher,
		hashSHA.New(),
		p.clock,
		p.hub,
		worker.Config{
			Instruction: cfg.Recognizer.Instruction,
			MIMEType:    cfg.Recognizer.MIMEType,
			Topic:       cfg.PubSub.Topic,
		},
		logger.Named("worker"),
	)

	p.scheduler = schedule.New(w, pool.Size(), logger.Named("scheduler"))
	p.builder = aggregate.New(p.scratch, p.clock, logger.Named("aggregate"))
	p.exporter = export.New(logger.Named("export"))

	if cfg.Ops.Enabled {
		opsAPI := api.NewServer(p.tracker, logger.Named("api"))
		p.ops = &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Ops.Port),
			Handler:           opsAPI.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return p, nil
}

// Run executes one extraction run end to end and returns the consolidated
// result. Only partition and configuration errors abort the run; per-chunk
// failures surface in the aggregate's summary instead.
func (p *Pipeline) Run(ctx context.Context, documentPath string) (extract.AggregateResult, error) {
	runID, err := p.ids.NewID()
	if err != nil {
		return extract.AggregateResult{}, fmt.Errorf("generate run id: %w", err)
	}
	log := p.logger.With(zap.String("run_id", runID), zap.String("document", documentPath))
	start := p.clock.Now()

	p.startOps(log)
	p.emit(progress.Event{
		RunID:    runID,
		TS:       start,
		Stage:    progress.StageRunStart,
		Document: documentPath,
	})

	doc, err := p.partitioner.Inspect(documentPath)
	if err != nil {
		return extract.AggregateResult{}, p.abort(ctx, runID, documentPath, err, log)
	}

	chunks, err := p.partitioner.Split(ctx, doc)
	if err != nil {
		return extract.AggregateResult{}, p.abort(ctx, runID, documentPath, err, log)
	}
	p.emit(progress.Event{
		RunID:    runID,
		TS:       p.clock.Now(),
		Stage:    progress.StagePartitioned,
		Document: doc.Path,
		Chunks:   len(chunks),
	})
	log.Info("document partitioned",
		zap.Int("total_pages", doc.TotalPages),
		zap.Int("chunks", len(chunks)),
		zap.Int("workers", p.scheduler.Workers()),
	)

	startIndex := p.pool.ResolveStartIndex(p.cfg.Credentials.Preferred)
	results := p.scheduler.Run(ctx, runID, chunks, startIndex)

	succeeded := 0
	for _, res := range results {
		if res.Status == extract.ChunkStatusSuccess {
			succeeded++
		}
	}
	log.Info("extraction finished",
		zap.Int("chunks", len(chunks)),
		zap.Int("processed", len(results)),
		zap.Int("succeeded", succeeded),
	)

	result := p.builder.Build(ctx, doc, runID, chunks)

	outPath := filepath.Join(p.cfg.Output.Dir, runID+"-records.json")
	if err := p.builder.WriteJSON(result, outPath); err != nil {
		p.emit(progress.Event{
			RunID:    runID,
			TS:       p.clock.Now(),
			Stage:    progress.StageRunError,
			Document: doc.Path,
			Note:     err.Error(),
		})
		metrics.ObserveRun("error")
		return result, fmt.Errorf("write aggregate: %w", err)
	}

	if p.cfg.Export.Enabled {
		xlsxPath := filepath.Join(p.cfg.Output.Dir, runID+"-records.xlsx")
		if err := p.exporter.WriteFile(result, xlsxPath); err != nil {
			log.Warn("xlsx export failed", zap.Error(err))
		}
	}

	p.emit(progress.Event{
		RunID:    runID,
		TS:       p.clock.Now(),
		Stage:    progress.StageAggregated,
		Document: doc.Path,
		Chunks:   len(result.PerChunkSummary),
		Records:  int64(result.TotalRecords),
	})
	p.publishRunOutcome(ctx, result)
	p.emit(progress.Event{
		RunID:    runID,
		TS:       p.clock.Now(),
		Stage:    progress.StageRunDone,
		Document: doc.Path,
		Records:  int64(result.TotalRecords),
	})
	metrics.ObserveRun("success")

	if err := p.partitioner.Cleanup(); err != nil {
		log.Warn("chunk cleanup failed", zap.Error(err))
	}

	log.Info("run complete",
		zap.Int("total_records", result.TotalRecords),
		zap.Int("chunks", len(result.PerChunkSummary)),
		zap.String("output", outPath),
		zap.Duration("elapsed", p.clock.Now().Sub(start)),
	)
	return result, nil
}

// Close flushes progress sinks, stops the ops server, and releases every
// external client the pipeline opened.
func (p *Pipeline) Close() error {
	var errs []error
	if p.hub != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.hub.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close progress hub: %w", err))
		}
		cancel()
	}
	if p.ops != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := p.ops.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown ops server: %w", err))
		}
		cancel()
	}
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	p.closers = nil
	return errors.Join(errs...)
}

// abort handles the two fatal error classes: log, best-effort scratch and
// chunk cleanup, then hand the cause back to the caller.
func (p *Pipeline) abort(ctx context.Context, runID, document string, cause error, log *zap.Logger) error {
	log.Error("run aborted", zap.Error(cause))
	if err := p.scratch.DeleteAll(ctx); err != nil {
		log.Warn("scratch cleanup failed", zap.Error(err))
	}
	if err := p.partitioner.Cleanup(); err != nil {
		log.Warn("chunk cleanup failed", zap.Error(err))
	}
	p.emit(progress.Event{
		RunID:    runID,
		TS:       p.clock.Now(),
		Stage:    progress.StageRunError,
		Document: document,
		Note:     cause.Error(),
	})
	metrics.ObserveRun("error")
	return cause
}

func (p *Pipeline) buildScratch(ctx context.Context, opts Options) error {
	if opts.Scratch != nil {
		p.scratch = opts.Scratch
		return nil
	}
	switch p.cfg.Scratch.Backend {
	case "memory":
		p.scratch = scratchMemory.New()
	case "gcs":
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("storage client: %w", err)
		}
		p.closers = append(p.closers, client.Close)
		store, err := scratchGCS.New(ctx, client, scratchGCS.Config{
			Bucket: p.cfg.Scratch.GCSBucket,
			Prefix: p.cfg.Scratch.GCSPrefix,
		})
		if err != nil {
			return fmt.Errorf("gcs scratch store: %w", err)
		}
		p.scratch = store
	default:
		store, err := scratchFS.New(scratchFS.Config{
			BaseDir: filepath.Join(p.cfg.Workdir, "records"),
		})
		if err != nil {
			return fmt.Errorf("fs scratch store: %w", err)
		}
		p.scratch = store
	}
	return nil
}

func (p *Pipeline) buildLedger(ctx context.Context, opts Options) (extract.Ledger, error) {
	if opts.Ledger != nil {
		return opts.Ledger, nil
	}
	if p.cfg.Database.DSN == "" {
		return nil, nil
	}
	ledger, err := ledgerPostgres.New(ctx, ledgerPostgres.Config{
		DSN:             p.cfg.Database.DSN,
		Table:           p.cfg.Database.Table,
		MaxConns:        int32(p.cfg.Database.MaxConns),
		MinConns:        int32(p.cfg.Database.MinConns),
		MaxConnLifetime: time.Duration(p.cfg.Database.ConnLifetimeMin) * time.Minute,
	})
	if err != nil {
		return nil, fmt.Errorf("attempt ledger: %w", err)
	}
	return ledger, nil
}

func (p *Pipeline) buildPublisher(ctx context.Context, opts Options) error {
	if opts.Publisher != nil {
		p.publisher = opts.Publisher
		return nil
	}
	if p.cfg.PubSub.Topic == "" {
		p.publisher = publisherMemory.New()
		return nil
	}
	client, err := gcppubsub.NewClient(ctx, p.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("pubsub client: %w", err)
	}
	pub := client.Publisher(p.cfg.PubSub.Topic)
	p.closers = append(p.closers, func() error {
		pub.Stop()
		return client.Close()
	})
	p.publisher = publisherPubsub.New(pub)
	return nil
}

// buildHub wires the progress sinks. The status tracker always listens; the
// prometheus sink drops out with a warning if its collectors are already
// registered, and the ledger sink only exists when a ledger does.
func (p *Pipeline) buildHub(opts Options, ledger extract.Ledger) {
	sinks := []progress.Sink{
		progressSinks.NewLogSink(p.logger.Named("progress")),
		p.tracker,
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	promSink, err := progressSinks.NewPrometheusSink(reg)
	if err != nil {
		p.logger.Warn("prometheus progress sink disabled", zap.Error(err))
	} else {
		sinks = append(sinks, promSink)
	}
	if ledger != nil {
		sinks = append(sinks, progressSinks.NewLedgerSink(ledger, p.logger.Named("ledger")))
	}
	p.hub = progress.NewHub(progress.Config{
		BufferSize:     p.cfg.Progress.BufferSize,
		MaxBatchEvents: p.cfg.Progress.BatchEvents,
		MaxBatchWait:   time.Duration(p.cfg.Progress.BatchWaitMs) * time.Millisecond,
		SinkTimeout:    time.Duration(p.cfg.Progress.SinkTimeoutSeconds) * time.Second,
		Logger:         p.logger.Named("progress"),
	}, sinks...)
}

func (p *Pipeline) publishRunOutcome(ctx context.Context, result extract.AggregateResult) {
	if p.cfg.PubSub.Topic == "" || p.publisher == nil {
		return
	}
	payload := map[string]any{
		"run_id":        result.RunID,
		"document":      result.SourceDocument,
		"total_records": result.TotalRecords,
		"chunks":        len(result.PerChunkSummary),
		"timestamp":     p.clock.Now().Format(time.RFC3339),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.PubSub.Topic, payload); err != nil {
		p.logger.Warn("run completion publish failed",
			zap.String("run_id", result.RunID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) startOps(log *zap.Logger) {
	if p.ops == nil {
		return
	}
	p.opsOnce.Do(func() {
		log.Info("ops server listening", zap.String("addr", p.ops.Addr))
		go func() {
			if err := p.ops.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				p.logger.Error("ops server failed", zap.Error(err))
			}
		}()
	})
}

func (p *Pipeline) emit(evt progress.Event) {
	p.hub.Emit(evt)
}

func (p *Pipeline) runClosers() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.logger.Warn("close failed", zap.Error(err))
		}
	}
	p.closers = nil
}
