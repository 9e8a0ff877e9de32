package erp

import (
	"context"
	"net/url"
	"strconv"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Feed describes one paginated ERP endpoint.
type Feed struct {
	// URL is the endpoint to page through
	URL string

	// RecordsKey is the feed-specific array name tried after the generic
	// shapes (e.g. "items" or "precios")
	RecordsKey string

	// Fixed selectors sent with every page request
	Branch    string
	Warehouse string
	Company   string
}

// Fetcher retrieves every page of a feed into one in-memory slice. Feeds are
// small enough (tens of thousands of records) that accumulation is cheaper
// than streaming.
type Fetcher struct {
	client *Client
	logger ectologger.Logger
}

func NewFetcher(client *Client, logger ectologger.Logger) *Fetcher {
	return &Fetcher{
		client: client,
		logger: logger,
	}
}

// FetchAll pages through the feed until the page count reported by the first
// response is reached. A missing total_pages means a single page. Any non-2xx
// page aborts the whole fetch.
func (f *Fetcher) FetchAll(ctx context.Context, feed Feed) ([]map[string]any, error) {
	ctx, span := tracing.StartSpan(ctx, "erp.Fetcher.FetchAll")
	defer span.End()

	var records []map[string]any
	totalPages := 1

	for page := 1; page <= totalPages; page++ {
		resp, err := f.client.Get(ctx, feed.URL, f.pageParams(feed, page))
		if err != nil {
			return nil, err
		}

		if !httpclient.IsSuccessStatus(resp.StatusCode) {
			return nil, NewFetchError(feed.URL, resp.StatusCode, string(resp.Body), "page request failed")
		}

		if err := httpclient.ParseResponse(resp); err != nil {
			return nil, NewFetchError(feed.URL, resp.StatusCode, string(resp.Body), err.Error())
		}

		pageRecords, ok := extractRecords(resp.BodyJSON, feed.RecordsKey)
		if !ok {
			return nil, NewFetchError(feed.URL, resp.StatusCode, string(resp.Body), "no record array found in response")
		}

		records = append(records, pageRecords...)

		if page == 1 {
			totalPages = extractTotalPages(resp.BodyJSON)
		}

		f.logger.WithContext(ctx).WithFields(map[string]any{
			"endpoint": feed.URL,
			"page":     page,
			"pages":    totalPages,
			"records":  len(pageRecords),
		}).Debug("Fetched feed page")
	}

	return records, nil
}

func (f *Fetcher) pageParams(feed Feed, page int) url.Values {
	params := url.Values{}
	params.Set("page", strconv.Itoa(page))
	params.Set("sucursal", feed.Branch)
	params.Set("bodega", feed.Warehouse)
	if feed.Company != "" {
		params.Set("empresa", feed.Company)
	}
	return params
}

// extractRecords resolves the record array from a tolerant set of response
// shapes, first match wins: a bare array, a "data" wrapper, or the
// feed-specific array name.
func extractRecords(body any, recordsKey string) ([]map[string]any, bool) {
	if list, ok := body.([]any); ok {
		return toRecordMaps(list), true
	}

	for _, path := range []string{"data", recordsKey} {
		if path == "" {
			continue
		}
		result, err := jmespath.Search(path, body)
		if err != nil {
			continue
		}
		if list, ok := result.([]any); ok {
			return toRecordMaps(list), true
		}
	}

	return nil, false
}

func extractTotalPages(body any) int {
	result, err := jmespath.Search("total_pages", body)
	if err != nil || result == nil {
		return 1
	}
	switch v := result.(type) {
	case float64:
		if v >= 1 {
			return int(v)
		}
	case string:
		if parsed, err := strconv.Atoi(v); err == nil && parsed >= 1 {
			return parsed
		}
	}
	return 1
}

func toRecordMaps(list []any) []map[string]any {
	records := make([]map[string]any, 0, len(list))
	for _, entry := range list {
		if record, ok := entry.(map[string]any); ok {
			records = append(records, record)
		}
	}
	return records
}
