package reconcile

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/internal/repositories/product"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

// fakeTx records commit and rollback calls.
type fakeTx struct {
	db *fakeDB
}

func (t *fakeTx) IsOpen() bool { return true }
func (t *fakeTx) Commit(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.commits++
	return nil
}
func (t *fakeTx) Rollback(ctx context.Context) error {
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	t.db.rollbacks++
	return nil
}
func (t *fakeTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (t *fakeTx) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (t *fakeTx) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (t *fakeTx) Rebind(query string) string { return query }
func (t *fakeTx) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}

// fakeDB satisfies database.DB for components that only need transactions and
// pings.
type fakeDB struct {
	mu        sync.Mutex
	commits   int
	rollbacks int
	pingErr   error
}

func (db *fakeDB) GetTx(ctx context.Context, opts *sql.TxOptions) (context.Context, database.Tx, error) {
	return ctx, &fakeTx{db: db}, nil
}
func (db *fakeDB) PingContext(ctx context.Context) error { return db.pingErr }
func (db *fakeDB) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return nil, errors.New("not implemented")
}
func (db *fakeDB) Close() error { return nil }
func (db *fakeDB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return nil, nil
}
func (db *fakeDB) GetContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (db *fakeDB) NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error) {
	return nil, nil
}
func (db *fakeDB) QueryxContext(ctx context.Context, query string, args ...any) (*sqlx.Rows, error) {
	return nil, nil
}
func (db *fakeDB) QueryRowxContext(ctx context.Context, query string, args ...any) *sqlx.Row {
	return nil
}
func (db *fakeDB) Rebind(query string) string { return query }
func (db *fakeDB) SelectContext(ctx context.Context, dest any, query string, args ...any) error {
	return nil
}
func (db *fakeDB) SetConnMaxLifetime(d time.Duration) {}
func (db *fakeDB) SetMaxIdleConns(n int)              {}
func (db *fakeDB) SetMaxOpenConns(n int)              {}
func (db *fakeDB) Stats() sql.DBStats                 { return sql.DBStats{} }

func (db *fakeDB) counts() (commits, rollbacks int) {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.commits, db.rollbacks
}

// fakeProducts serves scripted pages and records applied directives. failures
// maps a product id to the errors its next applies should return, consumed in
// order.
type fakeProducts struct {
	mu       sync.Mutex
	pages    []*product.Page
	applied  []models.UpdateDirective
	failures map[int64][]error
}

func (f *fakeProducts) NextPage(ctx context.Context, afterID int64, pageSize int) (*product.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pages) == 0 {
		return &product.Page{LastID: afterID}, nil
	}
	page := f.pages[0]
	f.pages = f.pages[1:]
	return page, nil
}

func (f *fakeProducts) ApplyDirective(ctx context.Context, directive models.UpdateDirective) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if queue := f.failures[directive.ProductID]; len(queue) > 0 {
		err := queue[0]
		f.failures[directive.ProductID] = queue[1:]
		return err
	}
	f.applied = append(f.applied, directive)
	return nil
}

func (f *fakeProducts) appliedIDs() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]int64, 0, len(f.applied))
	for _, d := range f.applied {
		ids = append(ids, d.ProductID)
	}
	return ids
}

// fakeLookups records upserted projection rows.
type fakeLookups struct {
	mu   sync.Mutex
	rows []models.LookupRow
}

func (f *fakeLookups) UpsertBatch(ctx context.Context, rows []models.LookupRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, rows...)
	return nil
}

func (f *fakeLookups) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

// fakeCache counts invalidations.
type fakeCache struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeCache) Invalidate(ctx context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 3, f.err
}

// fakeRuns is an in-memory run ledger.
type fakeRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]*models.SyncRun
}

func newFakeRuns() *fakeRuns {
	return &fakeRuns{runs: make(map[uuid.UUID]*models.SyncRun)}
}

func (f *fakeRuns) Create(ctx context.Context, trigger models.RunTrigger) (*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	run := &models.SyncRun{
		ID:        uuid.New(),
		Status:    models.RunStatusRunning,
		Trigger:   trigger,
		StartedAt: now,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.runs[run.ID] = run
	return run, nil
}

func (f *fakeRuns) Complete(ctx context.Context, id uuid.UUID, summary models.RunSummary, durationMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return errors.New("run not found")
	}
	now := time.Now()
	run.Status = models.RunStatusCompleted
	run.CompletedAt = &now
	run.Total = summary.Total
	run.Updated = summary.Updated
	run.Failed = summary.Failed
	run.Unchanged = summary.Unchanged
	run.Published = summary.Published
	run.Drafted = summary.Drafted
	run.DurationMS = durationMS
	return nil
}

func (f *fakeRuns) Fail(ctx context.Context, id uuid.UUID, errorMessage string, durationMS int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return errors.New("run not found")
	}
	now := time.Now()
	run.Status = models.RunStatusFailed
	run.CompletedAt = &now
	run.ErrorMessage = &errorMessage
	run.DurationMS = durationMS
	return nil
}

func (f *fakeRuns) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[id]
	if !ok {
		return nil, errors.New("run not found")
	}
	copied := *run
	return &copied, nil
}

func (f *fakeRuns) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.SyncRun, 0, len(f.runs))
	for _, run := range f.runs {
		out = append(out, *run)
	}
	return out, nil
}
