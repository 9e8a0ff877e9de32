package lookup

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

type LookupRepository interface {
	UpsertBatch(ctx context.Context, rows []models.LookupRow) error
}

// Repository maintains the denormalized product lookup projection the
// storefront filters on.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
	table  string
}

func NewRepository(db database.DB, logger ectologger.Logger, tablePrefix string) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
		table:  tablePrefix + "wc_product_meta_lookup",
	}
}

// UpsertBatch writes the projection rows in one statement, updating on
// product_id conflict. It joins the transaction embedded in ctx; the caller
// owns commit and rollback.
func (r *Repository) UpsertBatch(ctx context.Context, rows []models.LookupRow) error {
	ctx, span := tracing.StartSpan(ctx, "LookupRepository.UpsertBatch")
	defer span.End()

	if len(rows) == 0 {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	ib := database.NewInsertBuilder()
	ib.InsertInto(r.table).Cols("product_id", "stock_quantity", "stock_status", "min_price", "max_price", "onsale")
	for _, row := range rows {
		ib.Values(row.ProductID, row.StockQuantity, row.StockStatus, row.MinPrice, row.MaxPrice, row.OnSale)
	}

	ub := ib.OnConflict("product_id")
	ub.Set(
		ub.Assign("stock_quantity", database.Excluded("stock_quantity")),
		ub.Assign("stock_status", database.Excluded("stock_status")),
		ub.Assign("min_price", database.Excluded("min_price")),
		ub.Assign("max_price", database.Excluded("max_price")),
		ub.Assign("onsale", database.Excluded("onsale")),
	)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"rows": len(rows),
		}).Error("failed to upsert lookup rows")
		return errors.Wrap(err, "failed to upsert lookup rows")
	}

	return nil
}
