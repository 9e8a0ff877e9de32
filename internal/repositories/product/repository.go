package product

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Metadata keys owned by the engine. Nothing outside this set is ever
// deleted or written.
const (
	metaKeySKU          = "_sku"
	metaKeyThumbnail    = "_thumbnail_id"
	metaKeyManageStock  = "_manage_stock"
	metaKeyStock        = "_stock"
	metaKeyStockStatus  = "_stock_status"
	metaKeyPrice        = "_price"
	metaKeyRegularPrice = "_regular_price"
	metaKeySalePrice    = "_sale_price"
)

// Page is one cursor step over the catalog. Fetched is the raw row count
// before SKU filtering; the cursor is exhausted when Fetched is zero, not
// when Rows is empty.
type Page struct {
	Rows    []models.ProductRow
	LastID  int64
	Fetched int
}

type ProductRepository interface {
	NextPage(ctx context.Context, afterID int64, pageSize int) (*Page, error)
	ApplyDirective(ctx context.Context, directive models.UpdateDirective) error
}

type Repository struct {
	db         database.DB
	logger     ectologger.Logger
	postsTable string
	metaTable  string
}

// NewRepository creates a catalog product repository over the prefixed store
// tables.
func NewRepository(db database.DB, logger ectologger.Logger, tablePrefix string) *Repository {
	return &Repository{
		db:         db,
		logger:     logger,
		postsTable: tablePrefix + "posts",
		metaTable:  tablePrefix + "postmeta",
	}
}

// NextPage reads the next pageSize product rows with id > afterID in
// ascending id order, joining the metadata fields the diff engine compares
// against. Rows without a SKU are filtered out after the fetch so they do not
// stall the cursor.
func (r *Repository) NextPage(ctx context.Context, afterID int64, pageSize int) (*Page, error) {
	ctx, span := tracing.StartSpan(ctx, "ProductRepository.NextPage")
	defer span.End()

	// Joining per-key is cheaper than aggregating the whole meta table; each
	// join hits the (post_id, meta_key) index once.
	query := fmt.Sprintf(`
		SELECT p.id, p.post_status,
			sku.meta_value AS sku,
			thumb.meta_value AS thumbnail_id,
			stock.meta_value AS stock,
			reg.meta_value AS regular_price,
			sale.meta_value AS sale_price
		FROM %[1]s p
		LEFT JOIN %[2]s sku ON sku.post_id = p.id AND sku.meta_key = '%[3]s'
		LEFT JOIN %[2]s thumb ON thumb.post_id = p.id AND thumb.meta_key = '%[4]s'
		LEFT JOIN %[2]s stock ON stock.post_id = p.id AND stock.meta_key = '%[5]s'
		LEFT JOIN %[2]s reg ON reg.post_id = p.id AND reg.meta_key = '%[6]s'
		LEFT JOIN %[2]s sale ON sale.post_id = p.id AND sale.meta_key = '%[7]s'
		WHERE p.post_type = 'product' AND p.id > $1
		ORDER BY p.id ASC
		LIMIT $2`,
		r.postsTable, r.metaTable,
		metaKeySKU, metaKeyThumbnail, metaKeyStock, metaKeyRegularPrice, metaKeySalePrice)

	var rows []models.ProductRow
	err := r.db.SelectContext(ctx, &rows, query, afterID, pageSize)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"after_id":  afterID,
			"page_size": pageSize,
		}).Error("failed to read catalog page")
		return nil, errors.Wrap(err, "failed to read catalog page")
	}

	page := &Page{
		Fetched: len(rows),
		LastID:  afterID,
	}
	if len(rows) > 0 {
		page.LastID = rows[len(rows)-1].ID
	}
	for _, row := range rows {
		if row.TrimmedSKU() == "" {
			continue
		}
		page.Rows = append(page.Rows, row)
	}

	return page, nil
}

// ApplyDirective writes one directive inside the transaction embedded in ctx.
// The caller owns commit and rollback; errors are returned with the driver
// message intact so the applier can classify them for retry.
func (r *Repository) ApplyDirective(ctx context.Context, directive models.UpdateDirective) error {
	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := r.touchRow(ctx, tx, directive); err != nil {
		return err
	}

	return r.replaceMeta(ctx, tx, directive)
}

// touchRow updates the post status when the directive carries one and always
// bumps the modified timestamps so downstream caches observe the row as
// changed even for pure stock/price updates.
func (r *Repository) touchRow(ctx context.Context, tx database.Tx, directive models.UpdateDirective) error {
	now := time.Now()

	ub := database.NewUpdateBuilder()
	ub.Update(r.postsTable)
	assignments := []string{
		ub.Assign("post_modified", now),
		ub.Assign("post_modified_gmt", now.UTC()),
	}
	if directive.Status != "" {
		assignments = append(assignments, ub.Assign("post_status", directive.Status))
	}
	ub.Set(assignments...)
	ub.Where(ub.Equal("id", directive.ProductID))

	query, args := ub.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": directive.ProductID,
		}).Error("failed to update product row")
		return errors.Wrap(err, "failed to update product row")
	}

	return nil
}

// replaceMeta deletes then reinserts the fixed metadata key set for the
// directive. Unrelated metadata is never touched.
func (r *Repository) replaceMeta(ctx context.Context, tx database.Tx, directive models.UpdateDirective) error {
	keys := []any{metaKeyManageStock, metaKeyStock, metaKeyStockStatus, metaKeyPrice}
	if directive.SetPrices {
		keys = append(keys, metaKeyRegularPrice, metaKeySalePrice)
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom(r.metaTable)
	db.Where(db.Equal("post_id", directive.ProductID), db.In("meta_key", keys...))

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": directive.ProductID,
		}).Error("failed to delete product metadata")
		return errors.Wrap(err, "failed to delete product metadata")
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(r.metaTable).Cols("post_id", "meta_key", "meta_value")
	ib.Values(directive.ProductID, metaKeyManageStock, "yes")
	ib.Values(directive.ProductID, metaKeyStock, strconv.FormatInt(directive.Stock, 10))
	ib.Values(directive.ProductID, metaKeyStockStatus, directive.StockStatus)
	ib.Values(directive.ProductID, metaKeyPrice, directive.Price)
	if directive.SetPrices {
		ib.Values(directive.ProductID, metaKeyRegularPrice, directive.RegularPrice.String())
		if directive.SalePrice.IsPositive() {
			ib.Values(directive.ProductID, metaKeySalePrice, directive.SalePrice.String())
		}
	}

	query, args = ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": directive.ProductID,
		}).Error("failed to insert product metadata")
		return errors.Wrap(err, "failed to insert product metadata")
	}

	return nil
}
