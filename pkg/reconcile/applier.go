package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/lookup"
	"github.com/Ramsey-B/clover/internal/repositories/product"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	DefaultChunkSize   = 250
	DefaultConcurrency = 4
)

// Result accumulates apply outcomes across chunks.
type Result struct {
	Updated   int
	Failed    int
	Published int
	Drafted   int
}

func (r *Result) add(other Result) {
	r.Updated += other.Updated
	r.Failed += other.Failed
	r.Published += other.Published
	r.Drafted += other.Drafted
}

// Applier writes directives to the catalog store in bounded transaction
// chunks. It never returns an error: chunk failures are counted in the
// result so the run continues with the remaining work.
type Applier struct {
	db          database.DB
	products    product.ProductRepository
	lookups     lookup.LookupRepository
	logger      ectologger.Logger
	chunkSize   int
	concurrency int
	retry       RetryPolicy
}

func NewApplier(
	db database.DB,
	products product.ProductRepository,
	lookups lookup.LookupRepository,
	logger ectologger.Logger,
	chunkSize int,
	concurrency int,
) *Applier {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Applier{
		db:          db,
		products:    products,
		lookups:     lookups,
		logger:      logger,
		chunkSize:   chunkSize,
		concurrency: concurrency,
		retry:       DefaultRetryPolicy(),
	}
}

// WithRetryPolicy overrides the default contention retry policy.
func (a *Applier) WithRetryPolicy(policy RetryPolicy) *Applier {
	a.retry = policy
	return a
}

// ChunkWindow is the number of directives worth accumulating before a drain
// fills the concurrency window.
func (a *Applier) ChunkWindow() int {
	return a.chunkSize * a.concurrency
}

// Apply splits the directives into chunks and dispatches them with bounded
// concurrency. Chunks hold disjoint product id sets, so their transactions
// never contend with each other.
func (a *Applier) Apply(ctx context.Context, directives []models.UpdateDirective) Result {
	ctx, span := tracing.StartSpan(ctx, "Applier.Apply")
	defer span.End()

	if len(directives) == 0 {
		return Result{}
	}

	chunks := a.split(directives)
	results := make(chan Result, len(chunks))
	sem := make(chan struct{}, a.concurrency)

	var wg sync.WaitGroup
	for _, chunk := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(chunk []models.UpdateDirective) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- a.applyChunk(ctx, chunk)
		}(chunk)
	}
	wg.Wait()
	close(results)

	var total Result
	for result := range results {
		total.add(result)
	}
	return total
}

func (a *Applier) split(directives []models.UpdateDirective) [][]models.UpdateDirective {
	var chunks [][]models.UpdateDirective
	for start := 0; start < len(directives); start += a.chunkSize {
		end := start + a.chunkSize
		if end > len(directives) {
			end = len(directives)
		}
		chunks = append(chunks, directives[start:end])
	}
	return chunks
}

// applyChunk runs one chunk transaction, retrying the whole chunk on
// contention errors. Atomicity is per chunk: either every directive commits
// or every directive counts as failed.
func (a *Applier) applyChunk(ctx context.Context, chunk []models.UpdateDirective) Result {
	var lastErr error

	for attempt := 1; attempt <= a.retry.MaxAttempts; attempt++ {
		err := a.applyChunkOnce(ctx, chunk)
		if err == nil {
			return chunkResult(chunk)
		}
		lastErr = err

		if !a.retry.IsRetriable(err) {
			break
		}
		if attempt < a.retry.MaxAttempts {
			a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"attempt": attempt,
				"size":    len(chunk),
			}).Warn("Chunk hit contention, retrying")

			select {
			case <-ctx.Done():
				return Result{Failed: len(chunk)}
			case <-time.After(a.retry.Backoff(attempt)):
			}
		}
	}

	a.logger.WithContext(ctx).WithError(lastErr).WithFields(map[string]any{
		"size": len(chunk),
	}).Error("Chunk failed, counting directives as failed")
	return Result{Failed: len(chunk)}
}

func (a *Applier) applyChunkOnce(ctx context.Context, chunk []models.UpdateDirective) error {
	txCtx, tx, err := a.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}

	lookupRows := make([]models.LookupRow, 0, len(chunk))
	for _, directive := range chunk {
		if err := a.products.ApplyDirective(txCtx, directive); err != nil {
			// rollback with the pre-transaction context so it is not a no-op
			_ = tx.Rollback(ctx)
			return err
		}
		lookupRows = append(lookupRows, lookupRowFor(directive))
	}

	if err := a.lookups.UpsertBatch(txCtx, lookupRows); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	return nil
}

func lookupRowFor(directive models.UpdateDirective) models.LookupRow {
	return models.LookupRow{
		ProductID:     directive.ProductID,
		StockQuantity: directive.Stock,
		StockStatus:   directive.StockStatus,
		MinPrice:      directive.Price,
		MaxPrice:      directive.Price,
		OnSale:        directive.OnSale,
	}
}

func chunkResult(chunk []models.UpdateDirective) Result {
	result := Result{Updated: len(chunk)}
	for _, directive := range chunk {
		switch directive.Status {
		case models.PostStatusPublish:
			result.Published++
		case models.PostStatusDraft:
			result.Drafted++
		}
	}
	return result
}
