package cache

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type CacheRepository interface {
	Invalidate(ctx context.Context) (int64, error)
}

// Repository clears the store's transient cache rows after a reconciliation
// pass so the storefront re-reads the updated catalog.
type Repository struct {
	db          database.DB
	logger      ectologger.Logger
	table       string
	cachePrefix string
}

func NewRepository(db database.DB, logger ectologger.Logger, tablePrefix, cachePrefix string) *Repository {
	return &Repository{
		db:          db,
		logger:      logger,
		table:       tablePrefix + "options",
		cachePrefix: cachePrefix,
	}
}

// Invalidate deletes the cache value rows and their timeout companions in one
// transaction and returns the number of rows removed.
func (r *Repository) Invalidate(ctx context.Context) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "CacheRepository.Invalidate")
	defer span.End()

	txCtx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	db := database.NewDeleteBuilder()
	db.DeleteFrom(r.table)
	db.Where(db.Or(
		db.Like("option_name", "_transient_"+r.cachePrefix+"_%"),
		db.Like("option_name", "_transient_timeout_"+r.cachePrefix+"_%"),
	))

	query, args := db.Build()
	result, err := tx.ExecContext(txCtx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete cache rows")
		return 0, errors.Wrap(err, "failed to delete cache rows")
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete cache rows")
	}

	if err := tx.Commit(txCtx); err != nil {
		return 0, err
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"deleted": deleted,
	}).Info("Invalidated catalog cache rows")
	return deleted, nil
}
