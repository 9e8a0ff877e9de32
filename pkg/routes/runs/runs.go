// Package runs exposes the reconciliation run API: trigger a run, list run
// history, and inspect a single run.
package runs

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/runhistory"
	"github.com/Ramsey-B/clover/pkg/appcontext"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reconcile"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	defaultListLimit = 50
	maxListLimit     = 200
)

// TriggerResponse is returned when a run is accepted.
type TriggerResponse struct {
	RunID   string `json:"run_id"`
	Status  string `json:"status"`
	Trigger string `json:"trigger"`
}

type Handler struct {
	runner  *reconcile.Runner
	runs    runhistory.RunRepository
	locker  *redis.Locker
	lockTTL time.Duration
	logger  ectologger.Logger
}

func NewHandler(runner *reconcile.Runner, runs runhistory.RunRepository, locker *redis.Locker, lockTTL time.Duration, logger ectologger.Logger) *Handler {
	return &Handler{
		runner:  runner,
		runs:    runs,
		locker:  locker,
		lockTTL: lockTTL,
		logger:  logger,
	}
}

// Register registers run routes on the given group
func (h *Handler) Register(g *echo.Group) {
	g.POST("", h.TriggerRun)
	g.GET("", h.ListRuns)
	g.GET("/:id", h.GetRun)
}

// TriggerRun starts a reconciliation run in the background. Runs are
// single-flight: a second trigger while one is in progress gets a 409.
func (h *Handler) TriggerRun(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "runs.TriggerRun")
	defer span.End()

	lock, err := h.locker.Acquire(ctx, reconcile.RunLockKey, h.lockTTL)
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return httperror.NewHTTPError(http.StatusConflict, "a reconciliation run is already in progress")
	}
	if err != nil {
		return err
	}

	// The run outlives the request. Carry only the request id into the
	// background context so the run's logs remain correlatable.
	bg := appcontext.SetRequestID(context.Background(), appcontext.GetRequestID(ctx))

	run, err := h.runs.Create(bg, models.RunTriggerAPI)
	if err != nil {
		if relErr := lock.Release(bg); relErr != nil {
			h.logger.WithContext(ctx).WithError(relErr).Warn("Failed to release run lock")
		}
		return err
	}

	go func() {
		defer func() {
			if err := lock.Release(bg); err != nil {
				h.logger.WithContext(bg).WithError(err).Warn("Failed to release run lock")
			}
		}()

		if _, err := h.runner.Resume(bg, run); err != nil {
			h.logger.WithContext(bg).WithError(err).WithField("run_id", run.ID).Error("Triggered run failed")
		}
	}()

	return c.JSON(http.StatusAccepted, TriggerResponse{
		RunID:   run.ID.String(),
		Status:  string(run.Status),
		Trigger: string(run.Trigger),
	})
}

// ListRuns returns recent runs, newest first.
func (h *Handler) ListRuns(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "runs.ListRuns")
	defer span.End()

	limit := defaultListLimit
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return httperror.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = parsed
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	result, err := h.runs.List(ctx, limit)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// GetRun returns a single run by id.
func (h *Handler) GetRun(c echo.Context) error {
	ctx, span := tracing.StartSpan(c.Request().Context(), "runs.GetRun")
	defer span.End()

	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid run id")
	}

	run, err := h.runs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, run)
}
