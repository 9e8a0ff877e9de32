package runhistory

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const syncRunsTable = "sync_runs"

var syncRunStruct = database.NewStruct(new(models.SyncRun))

type RunRepository interface {
	Create(ctx context.Context, trigger models.RunTrigger) (*models.SyncRun, error)
	Complete(ctx context.Context, id uuid.UUID, summary models.RunSummary, durationMS int64) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string, durationMS int64) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error)
	List(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// Repository is the append-style run ledger: a record is created as running
// and moved to a terminal status exactly once.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a running record and returns it.
func (r *Repository) Create(ctx context.Context, trigger models.RunTrigger) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.Create")
	defer span.End()

	run := &models.SyncRun{
		ID:      uuid.New(),
		Status:  models.RunStatusRunning,
		Trigger: trigger,
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncRunsTable).
		Cols("id", "status", "trigger", "started_at", "created_at", "updated_at").
		Values(run.ID, run.Status, run.Trigger, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("started_at", "created_at", "updated_at")

	query, args := ib.Build()
	err := r.db.QueryRowxContext(ctx, query, args...).Scan(&run.StartedAt, &run.CreatedAt, &run.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": run.ID,
		}).Error("failed to create run record")
		return nil, errors.Wrap(err, "failed to create run record")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  run.ID,
		"trigger": run.Trigger,
	}).Info("Created run record")
	return run, nil
}

// Complete moves a run to completed with its final counts and phase timings.
func (r *Repository) Complete(ctx context.Context, id uuid.UUID, summary models.RunSummary, durationMS int64) error {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.Complete")
	defer span.End()

	details, err := json.Marshal(summary)
	if err != nil {
		return errors.Wrap(err, "failed to encode run summary")
	}

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", models.RunStatusCompleted),
			ub.Assign("completed_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("total", summary.Total),
			ub.Assign("updated", summary.Updated),
			ub.Assign("failed", summary.Failed),
			ub.Assign("unchanged", summary.Unchanged),
			ub.Assign("published", summary.Published),
			ub.Assign("drafted", summary.Drafted),
			ub.Assign("duration_ms", durationMS),
			ub.Assign("details", details),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id), ub.Equal("status", models.RunStatusRunning))

	return r.finish(ctx, id, ub)
}

// Fail moves a run to failed with the fatal error message.
func (r *Repository) Fail(ctx context.Context, id uuid.UUID, errorMessage string, durationMS int64) error {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.Fail")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(syncRunsTable).
		Set(
			ub.Assign("status", models.RunStatusFailed),
			ub.Assign("completed_at", sqlbuilder.Raw("NOW()")),
			ub.Assign("error_message", errorMessage),
			ub.Assign("duration_ms", durationMS),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id), ub.Equal("status", models.RunStatusRunning))

	return r.finish(ctx, id, ub)
}

func (r *Repository) finish(ctx context.Context, id uuid.UUID, ub *database.UpdateBuilder) error {
	query, args := ub.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": id,
		}).Error("failed to finish run record")
		return errors.Wrap(err, "failed to finish run record")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to finish run record")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "running record %s does not exist", id)
	}

	return nil
}

// GetByID retrieves one run record.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.GetByID")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var run models.SyncRun
	err := r.db.GetContext(ctx, &run, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "run %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id": id,
		}).Error("failed to get run")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get run")
	}

	return &run, nil
}

// List retrieves the most recent runs, newest first.
func (r *Repository) List(ctx context.Context, limit int) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "RunRepository.List")
	defer span.End()

	sb := syncRunStruct.SelectFrom(syncRunsTable)
	sb.OrderBy("started_at").Desc()
	sb.Limit(limit)

	query, args := sb.Build()
	var runs []models.SyncRun
	err := r.db.SelectContext(ctx, &runs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list runs")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list runs")
	}

	return runs, nil
}
