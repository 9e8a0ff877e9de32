package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/internal/repositories/cache"
	"github.com/Ramsey-B/clover/internal/repositories/product"
	"github.com/Ramsey-B/clover/internal/repositories/runhistory"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/erp"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/merge"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RunLockKey names the distributed lock that keeps reconciliation runs
// single-flight across replicas. Both the API trigger and the scheduler
// contend on it.
const RunLockKey = "run:catalog-sync"

// Run phases in execution order. Timings per phase land in the run ledger's
// details blob.
const (
	PhaseAuthenticating = "authenticating"
	PhaseFetching       = "fetching"
	PhaseMerging        = "merging"
	PhaseReconciling    = "reconciling"
	PhaseInvalidating   = "invalidating"
)

// RunnerConfig holds the per-deployment knobs of the orchestrator.
type RunnerConfig struct {
	PageSize   int
	ItemsFeed  erp.Feed
	PricesFeed erp.Feed
}

// Runner sequences one reconciliation pass: authenticate, fetch both feeds
// concurrently, merge, stream the catalog in cursor pages diffing and
// applying as it goes, then invalidate the store cache. Outcomes are
// reported to the run ledger; a run is atomic at the phase level and has no
// mid-run cancellation beyond context expiry.
type Runner struct {
	cfg       RunnerConfig
	db        database.DB
	tokens    *erp.TokenManager
	fetcher   *erp.Fetcher
	products  product.ProductRepository
	applier   *Applier
	cacheRepo cache.CacheRepository
	runs      runhistory.RunRepository
	events    *kafka.Producer
	logger    ectologger.Logger
}

func NewRunner(
	cfg RunnerConfig,
	db database.DB,
	tokens *erp.TokenManager,
	fetcher *erp.Fetcher,
	products product.ProductRepository,
	applier *Applier,
	cacheRepo cache.CacheRepository,
	runs runhistory.RunRepository,
	events *kafka.Producer,
	logger ectologger.Logger,
) *Runner {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 500
	}
	return &Runner{
		cfg:       cfg,
		db:        db,
		tokens:    tokens,
		fetcher:   fetcher,
		products:  products,
		applier:   applier,
		cacheRepo: cacheRepo,
		runs:      runs,
		events:    events,
		logger:    logger,
	}
}

// Run executes one reconciliation pass and returns the terminal ledger
// record. Fatal errors (auth, fetch, unreachable store) are recorded as a
// failed run and returned; directive failures are absorbed into the summary
// and still complete the run.
func (r *Runner) Run(ctx context.Context, trigger models.RunTrigger) (*models.SyncRun, error) {
	run, err := r.runs.Create(ctx, trigger)
	if err != nil {
		return nil, err
	}
	return r.Resume(ctx, run)
}

// Resume executes a run whose ledger record already exists. The API trigger
// creates the record up front so it can hand the run id back before the work
// finishes, then resumes in the background.
func (r *Runner) Resume(ctx context.Context, run *models.SyncRun) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "Runner.Run")
	defer span.End()

	ctx = appcontext.SetRunID(ctx, run.ID.String())
	trigger := run.Trigger

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  run.ID,
		"trigger": trigger,
	}).Info("Starting reconciliation run")

	started := time.Now()
	timings := make(map[string]int64)

	summary, runErr := r.execute(ctx, timings)
	duration := time.Since(started)

	if runErr != nil {
		r.logger.WithContext(ctx).WithError(runErr).WithFields(map[string]any{
			"run_id": run.ID,
		}).Error("Reconciliation run failed")

		if err := r.runs.Fail(ctx, run.ID, runErr.Error(), duration.Milliseconds()); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("Failed to record run failure")
		}
		metrics.RecordRun(string(models.RunStatusFailed), string(trigger), duration.Seconds())
		r.publishEvent(ctx, run, models.RunStatusFailed, models.RunSummary{}, runErr)
		return r.finalRecord(ctx, run), runErr
	}

	summary.PhaseTimings = timings
	if err := r.runs.Complete(ctx, run.ID, *summary, duration.Milliseconds()); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to record run completion")
	}
	metrics.RecordRun(string(models.RunStatusCompleted), string(trigger), duration.Seconds())
	r.publishEvent(ctx, run, models.RunStatusCompleted, *summary, nil)

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":    run.ID,
		"total":     summary.Total,
		"updated":   summary.Updated,
		"failed":    summary.Failed,
		"published": summary.Published,
		"drafted":   summary.Drafted,
		"duration":  duration,
	}).Info("Reconciliation run completed")

	return r.finalRecord(ctx, run), nil
}

func (r *Runner) execute(ctx context.Context, timings map[string]int64) (*models.RunSummary, error) {
	// Fail fast when the catalog store is down, before touching the ERP.
	if err := r.db.PingContext(ctx); err != nil {
		return nil, errors.Wrap(err, "catalog store unreachable")
	}

	err := r.timePhase(timings, PhaseAuthenticating, func() error {
		_, err := r.tokens.GetToken(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	var itemRecords, priceRecords []map[string]any
	err = r.timePhase(timings, PhaseFetching, func() error {
		var itemsErr, pricesErr error
		var wg sync.WaitGroup

		wg.Add(2)
		go func() {
			defer wg.Done()
			itemRecords, itemsErr = r.fetcher.FetchAll(ctx, r.cfg.ItemsFeed)
		}()
		go func() {
			defer wg.Done()
			priceRecords, pricesErr = r.fetcher.FetchAll(ctx, r.cfg.PricesFeed)
		}()
		wg.Wait()

		if itemsErr != nil {
			return itemsErr
		}
		return pricesErr
	})
	if err != nil {
		return nil, err
	}

	var records map[string]merge.Record
	_ = r.timePhase(timings, PhaseMerging, func() error {
		records = merge.Merge(erp.DecodeItems(itemRecords), erp.DecodePrices(priceRecords))
		return nil
	})

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"items":     len(itemRecords),
		"prices":    len(priceRecords),
		"canonical": len(records),
	}).Info("Merged ERP feeds")

	summary := &models.RunSummary{}
	err = r.timePhase(timings, PhaseReconciling, func() error {
		return r.reconcile(ctx, records, summary)
	})
	if err != nil {
		return nil, err
	}

	// Best-effort: a failed invalidation never fails the run.
	_ = r.timePhase(timings, PhaseInvalidating, func() error {
		if _, err := r.cacheRepo.Invalidate(ctx); err != nil {
			r.logger.WithContext(ctx).WithError(err).Warn("Cache invalidation failed")
			metrics.CacheInvalidations.WithLabelValues("failed").Inc()
			return nil
		}
		metrics.CacheInvalidations.WithLabelValues("ok").Inc()
		return nil
	})

	return summary, nil
}

// reconcile streams the catalog cursor, diffing each page and draining the
// accumulated directives whenever they can fill the applier's concurrency
// window.
func (r *Runner) reconcile(ctx context.Context, records map[string]merge.Record, summary *models.RunSummary) error {
	var result Result
	var pending []models.UpdateDirective
	window := r.applier.ChunkWindow()

	afterID := int64(0)
	for {
		page, err := r.products.NextPage(ctx, afterID, r.cfg.PageSize)
		if err != nil {
			return err
		}
		if page.Fetched == 0 {
			break
		}
		afterID = page.LastID
		metrics.ProductsScanned.Add(float64(len(page.Rows)))

		for _, row := range page.Rows {
			summary.Total++
			if directive, ok := Diff(row, records); ok {
				pending = append(pending, directive)
			}
		}

		if len(pending) >= window {
			result.add(r.applier.Apply(ctx, pending))
			pending = nil
		}
	}

	if len(pending) > 0 {
		result.add(r.applier.Apply(ctx, pending))
	}

	summary.Updated = result.Updated
	summary.Failed = result.Failed
	summary.Published = result.Published
	summary.Drafted = result.Drafted
	summary.Unchanged = summary.Total - result.Updated - result.Failed
	metrics.RecordDirectives(result.Updated, result.Failed)

	return nil
}

func (r *Runner) timePhase(timings map[string]int64, phase string, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)
	timings[phase] = elapsed.Milliseconds()
	metrics.PhaseDuration.WithLabelValues(phase).Observe(elapsed.Seconds())
	return err
}

func (r *Runner) publishEvent(ctx context.Context, run *models.SyncRun, status models.RunStatus, summary models.RunSummary, runErr error) {
	if r.events == nil {
		return
	}

	event := kafka.RunEvent{
		RunID:     run.ID.String(),
		Status:    status,
		Trigger:   run.Trigger,
		Total:     summary.Total,
		Updated:   summary.Updated,
		Failed:    summary.Failed,
		Published: summary.Published,
		Drafted:   summary.Drafted,
	}
	if runErr != nil {
		event.Error = runErr.Error()
	}

	if err := r.events.PublishRunEvent(ctx, event); err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Failed to publish run event")
	}
}

func (r *Runner) finalRecord(ctx context.Context, run *models.SyncRun) *models.SyncRun {
	final, err := r.runs.GetByID(ctx, run.ID)
	if err != nil {
		return run
	}
	return final
}
