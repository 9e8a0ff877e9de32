package erp

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedStub serves a login endpoint and a paginated feed endpoint.
func feedStub(t *testing.T, pages map[string]any) (*httptest.Server, *[]string) {
	t.Helper()
	var queries []string

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "stub-token"}`))
	})
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		queries = append(queries, r.URL.RawQuery)
		page := r.URL.Query().Get("page")
		body, ok := pages[page]
		require.True(t, ok, "unexpected page %q", page)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(body)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &queries
}

func newTestFetcher(server *httptest.Server) *Fetcher {
	return NewFetcher(newTestClient(server), testLogger())
}

func TestFetchAllPaginates(t *testing.T) {
	server, queries := feedStub(t, map[string]any{
		"1": map[string]any{
			"total_pages": 3,
			"data":        []map[string]any{{"codigo": "A1"}, {"codigo": "A2"}},
		},
		"2": map[string]any{
			"total_pages": 3,
			"data":        []map[string]any{{"codigo": "A3"}},
		},
		"3": map[string]any{
			"total_pages": 3,
			"data":        []map[string]any{{"codigo": "A4"}},
		},
	})

	fetcher := newTestFetcher(server)
	records, err := fetcher.FetchAll(context.Background(), Feed{
		URL:       server.URL + "/feed",
		Branch:    "01",
		Warehouse: "BOD1",
	})
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "A4", records[3]["codigo"])

	require.Len(t, *queries, 3)
	first := (*queries)[0]
	assert.Contains(t, first, "sucursal=01")
	assert.Contains(t, first, "bodega=BOD1")
	assert.NotContains(t, first, "empresa")
}

func TestFetchAllSendsCompanyWhenConfigured(t *testing.T) {
	server, queries := feedStub(t, map[string]any{
		"1": []map[string]any{{"codigo": "A1"}},
	})

	fetcher := newTestFetcher(server)
	_, err := fetcher.FetchAll(context.Background(), Feed{
		URL:     server.URL + "/feed",
		Company: "EMP1",
	})
	require.NoError(t, err)
	require.Len(t, *queries, 1)
	assert.Contains(t, (*queries)[0], "empresa=EMP1")
}

func TestFetchAllBareArrayIsSinglePage(t *testing.T) {
	server, queries := feedStub(t, map[string]any{
		"1": []map[string]any{{"codigo": "A1"}, {"codigo": "A2"}},
	})

	fetcher := newTestFetcher(server)
	records, err := fetcher.FetchAll(context.Background(), Feed{URL: server.URL + "/feed"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, *queries, 1)
}

func TestFetchAllFeedSpecificKey(t *testing.T) {
	server, _ := feedStub(t, map[string]any{
		"1": map[string]any{
			"precios": []map[string]any{{"codigo": "A1", "cod_lis": "05"}},
		},
	})

	fetcher := newTestFetcher(server)
	records, err := fetcher.FetchAll(context.Background(), Feed{
		URL:        server.URL + "/feed",
		RecordsKey: "precios",
	})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "05", records[0]["cod_lis"])
}

func TestFetchAllStringTotalPages(t *testing.T) {
	server, queries := feedStub(t, map[string]any{
		"1": map[string]any{"total_pages": "2", "data": []map[string]any{{"codigo": "A1"}}},
		"2": map[string]any{"total_pages": "2", "data": []map[string]any{{"codigo": "A2"}}},
	})

	fetcher := newTestFetcher(server)
	records, err := fetcher.FetchAll(context.Background(), Feed{URL: server.URL + "/feed"})
	require.NoError(t, err)
	assert.Len(t, records, 2)
	assert.Len(t, *queries, 2)
}

func TestFetchAllNoRecordArray(t *testing.T) {
	server, _ := feedStub(t, map[string]any{
		"1": map[string]any{"message": "nothing here"},
	})

	fetcher := newTestFetcher(server)
	_, err := fetcher.FetchAll(context.Background(), Feed{URL: server.URL + "/feed"})
	require.Error(t, err)
	assert.True(t, IsFetchError(err))
}

func TestFetchAllServerErrorAborts(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token": "stub-token"}`))
	})
	calls := 0
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	fetcher := newTestFetcher(server)
	_, err := fetcher.FetchAll(context.Background(), Feed{URL: server.URL + "/feed"})
	require.Error(t, err)
	require.True(t, IsFetchError(err))

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusInternalServerError, fetchErr.StatusCode)
	assert.Equal(t, 1, calls)
	assert.Equal(t, fmt.Sprintf("%s/feed", server.URL), fetchErr.Endpoint)
}
