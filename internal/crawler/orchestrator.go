package crawler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-harvester/internal/metrics"
)

// OrchestratorConfig identifies a run.
type OrchestratorConfig struct {
	Mode  string
	RunID string
}

// Orchestrator walks a date range one date at a time: resolve the period
// index, check for an existing artifact, extract, store, checkpoint.
type Orchestrator struct {
	cfg        OrchestratorConfig
	cache      *PeriodIndexCache
	extractor  Extractor
	sink       *DocumentSink
	checkpoint *CheckpointStore
	clock      Clock
	pauser     Pauser
	logger     *zap.Logger

	mu     sync.RWMutex
	report RunReport
}

// NewOrchestrator wires the engine together. checkpoint may be nil, in which
// case resumption and checkpoint writes are disabled.
func NewOrchestrator(
	cfg OrchestratorConfig,
	cache *PeriodIndexCache,
	extractor Extractor,
	sink *DocumentSink,
	checkpoint *CheckpointStore,
	clock Clock,
	pauser Pauser,
	logger *zap.Logger,
) *Orchestrator {
	if pauser == nil {
		pauser = TimerPauser{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:        cfg,
		cache:      cache,
		extractor:  extractor,
		sink:       sink,
		checkpoint: checkpoint,
		clock:      clock,
		pauser:     pauser,
		logger:     logger.With(zap.String("run_id", cfg.RunID), zap.String("mode", cfg.Mode)),
		report:     RunReport{RunID: cfg.RunID, Mode: cfg.Mode},
	}
}

// Snapshot returns a copy of the live run report. It is safe to call from
// another goroutine while Run is in progress.
func (o *Orchestrator) Snapshot() RunReport {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.report
}

// Run processes dates from the start (or the resumed checkpoint) towards the
// end until the range is exhausted or the budget is spent. Per-date failures
// are counted, never returned; the error is reserved for invalid parameters.
func (o *Orchestrator) Run(ctx context.Context, params RunParams) (RunReport, error) {
	if err := validateParams(params); err != nil {
		return RunReport{}, err
	}
	started := o.clock.Now()
	cursor, resumed := o.initialCursor(ctx, params)

	o.update(func(r *RunReport) {
		r.Direction = params.Direction
		r.StartedAt = started
		r.Start = params.Start.String()
		r.End = params.End.String()
		r.Cursor = cursor.String()
		r.Resumed = resumed
	})
	o.logger.Info("run started",
		zap.String("start", params.Start.String()),
		zap.String("end", params.End.String()),
		zap.String("cursor", cursor.String()),
		zap.String("direction", string(params.Direction)),
		zap.Bool("resumed", resumed),
		zap.Int("max_items", params.Budget.MaxItems),
		zap.Duration("max_duration", params.Budget.MaxDuration),
	)

	var (
		counters    RunCounters
		lastSuccess DateKey
		halt        HaltReason
	)
	for {
		if params.Direction.passed(cursor, params.End) {
			halt = HaltRangeExhausted
			break
		}
		if halt = o.budgetSpent(ctx, params.Budget, counters, started); halt != HaltRunning {
			break
		}

		outcome := o.processDate(ctx, cursor)
		counters.observe(outcome)
		metrics.ObserveDate(string(outcome))
		if outcome == DateStored || outcome == DateAlreadyExists {
			lastSuccess = cursor
			if o.checkpoint != nil {
				if err := o.checkpoint.Write(ctx, cursor); err != nil {
					counters.CheckpointErrors++
					o.logger.Warn("checkpoint write failed", zap.String("date", cursor.String()), zap.Error(err))
				}
			}
		}

		cursor = cursor.Step(params.Direction)
		o.update(func(r *RunReport) {
			r.Cursor = cursor.String()
			r.Counters = counters
			r.Elapsed = Duration(o.clock.Now().Sub(started))
			if !lastSuccess.IsZero() {
				r.LastSuccess = lastSuccess.String()
			}
		})

		if params.Direction.passed(cursor, params.End) {
			halt = HaltRangeExhausted
			break
		}
		if err := o.pauser.Pause(ctx, params.DateDelay); err != nil {
			halt = HaltCanceled
			break
		}
	}

	elapsed := o.clock.Now().Sub(started)
	metrics.ObserveRunDuration(o.cfg.Mode, elapsed)
	o.update(func(r *RunReport) {
		r.Cursor = cursor.String()
		r.Counters = counters
		r.Elapsed = Duration(elapsed)
		r.Halt = halt
		if !lastSuccess.IsZero() {
			r.LastSuccess = lastSuccess.String()
		}
	})
	final := o.Snapshot()
	o.logger.Info("run halted",
		zap.String("halt_reason", string(halt)),
		zap.String("cursor", final.Cursor),
		zap.String("last_success", final.LastSuccess),
		zap.Duration("elapsed", elapsed),
		zap.Int("succeeded", counters.Succeeded),
		zap.Int("stored", counters.Stored),
		zap.Int("already_existed", counters.AlreadyExisted),
		zap.Int("skipped", counters.Skipped),
		zap.Int("failed", counters.Failed),
	)
	return final, nil
}

func validateParams(params RunParams) error {
	if params.Start.IsZero() || params.End.IsZero() {
		return errors.New("start and end dates are required")
	}
	if params.Direction != Forward && params.Direction != Backward {
		return fmt.Errorf("unknown direction %q", params.Direction)
	}
	return nil
}

// initialCursor resumes one step past the checkpoint when enabled. A resumed
// cursor never lies before the start in the walking direction.
func (o *Orchestrator) initialCursor(ctx context.Context, params RunParams) (DateKey, bool) {
	if !params.UseCheckpoint || o.checkpoint == nil {
		return params.Start, false
	}
	last, ok := o.checkpoint.Read(ctx)
	if !ok {
		return params.Start, false
	}
	next := last.Step(params.Direction)
	if params.Direction.passed(params.Start, next) {
		o.logger.Info("checkpoint precedes start date, ignoring",
			zap.String("checkpoint", last.String()),
			zap.String("start", params.Start.String()),
		)
		return params.Start, false
	}
	o.logger.Info("resuming from checkpoint",
		zap.String("checkpoint", last.String()),
		zap.String("cursor", next.String()),
	)
	return next, true
}

func (o *Orchestrator) budgetSpent(ctx context.Context, budget RunBudget, counters RunCounters, started time.Time) HaltReason {
	if ctx.Err() != nil {
		return HaltCanceled
	}
	if budget.MaxItems > 0 && counters.Settled() >= budget.MaxItems {
		return HaltMaxItems
	}
	if budget.MaxDuration > 0 && o.clock.Now().Sub(started) >= budget.MaxDuration {
		return HaltMaxDuration
	}
	return HaltRunning
}

func (o *Orchestrator) processDate(ctx context.Context, date DateKey) DateOutcome {
	log := o.logger.With(zap.String("date", date.String()))

	idx, err := o.cache.Resolve(ctx, date.Period())
	if err != nil {
		log.Warn("period index lookup interrupted", zap.Error(err))
		return DateFailed
	}
	locator, ok := idx.Lookup(date)
	if !ok {
		log.Info("no document for date")
		return DateSkipped
	}
	artifact := o.extractor.Artifact(date, locator)

	exists, err := o.sink.Exists(ctx, date, artifact)
	if err != nil {
		log.Warn("existence check failed", zap.Error(err))
		return DateFailed
	}
	if exists {
		log.Info("document already stored", zap.String("artifact", artifact))
		return DateAlreadyExists
	}

	rec, err := o.extractor.Extract(ctx, date, locator)
	if err != nil {
		log.Warn("extraction failed", zap.String("locator", locator), zap.Error(err))
		return DateFailed
	}
	if rec.Empty() {
		log.Info("extraction yielded nothing", zap.String("locator", locator))
		return DateSkipped
	}
	if missing := rec.MissingBodies(); missing > 0 {
		log.Warn("record has missing bodies",
			zap.Int("missing", missing),
			zap.Int("articles", len(rec.Articles)),
		)
	}

	outcome, err := o.sink.Store(ctx, artifact, rec)
	switch {
	case err != nil:
		log.Warn("store failed", zap.Error(err))
		return DateFailed
	case outcome == OutcomeAlreadyExists:
		return DateAlreadyExists
	default:
		log.Info("date stored", zap.String("artifact", artifact))
		return DateStored
	}
}

func (o *Orchestrator) update(fn func(r *RunReport)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	fn(&o.report)
}
