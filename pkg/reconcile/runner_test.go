package reconcile

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/internal/repositories/product"
	"github.com/Ramsey-B/clover/pkg/erp"
	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/models"
)

func erpServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "run-token"}`))
	})
	mux.HandleFunc("/items", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"codigo": "A1", "descripcion": "Widget", "existencia": 10}]`))
	})
	mux.HandleFunc("/prices", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data": [
			{"codigo": "A1", "cod_lis": "22", "precioiva": 100},
			{"codigo": "A1", "cod_lis": "05", "precioiva": 80}
		]}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestRunner(server *httptest.Server, db *fakeDB, products *fakeProducts, cacheRepo *fakeCache, runs *fakeRuns) *Runner {
	logger := testLogger()
	httpClient := httpclient.NewClient(httpclient.DefaultConfig(), logger)
	tokens := erp.NewTokenManager(httpClient, server.URL+"/auth", "user", "pass", logger)
	fetcher := erp.NewFetcher(erp.NewClient(httpClient, tokens, logger), logger)
	applier := NewApplier(db, products, &fakeLookups{}, logger, 10, 2)

	return NewRunner(
		RunnerConfig{
			PageSize:   100,
			ItemsFeed:  erp.Feed{URL: server.URL + "/items", RecordsKey: "items", Branch: "01", Warehouse: "BOD1"},
			PricesFeed: erp.Feed{URL: server.URL + "/prices", RecordsKey: "precios", Branch: "01", Warehouse: "BOD1"},
		},
		db, tokens, fetcher, products, applier, cacheRepo, runs, nil, logger,
	)
}

func TestRunnerFullPass(t *testing.T) {
	server := erpServer(t)

	// Two catalog rows: A1 matches the feed, Z9 has vanished upstream.
	a1 := models.ProductRow{
		ID:          1,
		Status:      models.PostStatusDraft,
		SKU:         sql.NullString{String: "A1", Valid: true},
		ThumbnailID: sql.NullString{String: "55", Valid: true},
	}
	z9 := models.ProductRow{
		ID:     2,
		Status: models.PostStatusPublish,
		SKU:    sql.NullString{String: "Z9", Valid: true},
		Stock:  sql.NullString{String: "4", Valid: true},
	}

	db := &fakeDB{}
	products := &fakeProducts{
		pages: []*product.Page{
			{Rows: []models.ProductRow{a1, z9}, LastID: 2, Fetched: 2},
		},
	}
	cacheRepo := &fakeCache{}
	runs := newFakeRuns()

	runner := newTestRunner(server, db, products, cacheRepo, runs)

	run, err := runner.Run(context.Background(), models.RunTriggerAPI)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, models.RunTriggerAPI, run.Trigger)
	assert.Equal(t, 2, run.Total)
	assert.Equal(t, 2, run.Updated)
	assert.Equal(t, 0, run.Failed)
	assert.Equal(t, 0, run.Unchanged)
	assert.Equal(t, 1, run.Published)
	assert.Equal(t, 1, run.Drafted)

	applied := products.applied
	require.Len(t, applied, 2)

	byID := map[int64]models.UpdateDirective{}
	for _, d := range applied {
		byID[d.ProductID] = d
	}

	// A1: published with a sale price from the two tiers
	require.Contains(t, byID, int64(1))
	assert.Equal(t, int64(10), byID[1].Stock)
	assert.Equal(t, models.PostStatusPublish, byID[1].Status)
	require.True(t, byID[1].SetPrices)
	assert.Equal(t, "100", byID[1].RegularPrice.String())
	assert.Equal(t, "80", byID[1].SalePrice.String())

	// Z9: suppressed, never deleted
	require.Contains(t, byID, int64(2))
	assert.Equal(t, int64(0), byID[2].Stock)
	assert.Equal(t, models.PostStatusDraft, byID[2].Status)
	assert.Equal(t, models.StockStatusOutOfStock, byID[2].StockStatus)

	assert.Equal(t, 1, cacheRepo.calls)
}

func TestRunnerSecondPassIsNoOp(t *testing.T) {
	server := erpServer(t)

	// The same row after a first pass has applied the feed state.
	a1 := models.ProductRow{
		ID:           1,
		Status:       models.PostStatusPublish,
		SKU:          sql.NullString{String: "A1", Valid: true},
		ThumbnailID:  sql.NullString{String: "55", Valid: true},
		Stock:        sql.NullString{String: "10", Valid: true},
		RegularPrice: sql.NullString{String: "100", Valid: true},
		SalePrice:    sql.NullString{String: "80", Valid: true},
	}

	db := &fakeDB{}
	products := &fakeProducts{
		pages: []*product.Page{
			{Rows: []models.ProductRow{a1}, LastID: 1, Fetched: 1},
		},
	}
	runs := newFakeRuns()

	runner := newTestRunner(server, db, products, &fakeCache{}, runs)

	run, err := runner.Run(context.Background(), models.RunTriggerScheduler)
	require.NoError(t, err)

	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Total)
	assert.Equal(t, 0, run.Updated)
	assert.Equal(t, 1, run.Unchanged)
	assert.Empty(t, products.applied)

	commits, _ := db.counts()
	assert.Equal(t, 0, commits)
}

func TestRunnerUnreachableStoreFailsBeforeFetch(t *testing.T) {
	server := erpServer(t)

	db := &fakeDB{pingErr: errors.New("connection refused")}
	runs := newFakeRuns()

	runner := newTestRunner(server, db, &fakeProducts{}, &fakeCache{}, runs)

	run, err := runner.Run(context.Background(), models.RunTriggerAPI)
	require.Error(t, err)
	require.NotNil(t, run)
	assert.Equal(t, models.RunStatusFailed, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "catalog store unreachable")
}

func TestRunnerAuthFailureFailsRun(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no", http.StatusForbidden)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	db := &fakeDB{}
	runs := newFakeRuns()

	runner := newTestRunner(server, db, &fakeProducts{}, &fakeCache{}, runs)

	run, err := runner.Run(context.Background(), models.RunTriggerAPI)
	require.Error(t, err)
	assert.True(t, erp.IsAuthError(err))
	assert.Equal(t, models.RunStatusFailed, run.Status)
}

func TestRunnerCacheFailureDoesNotFailRun(t *testing.T) {
	server := erpServer(t)

	db := &fakeDB{}
	products := &fakeProducts{}
	cacheRepo := &fakeCache{err: errors.New("table is locked")}
	runs := newFakeRuns()

	runner := newTestRunner(server, db, products, cacheRepo, runs)

	run, err := runner.Run(context.Background(), models.RunTriggerAPI)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, cacheRepo.calls)
}
