package erp

import (
	"context"
	"net/http"
	"net/url"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Client performs bearer-authenticated requests against the ERP. A 401 forces
// a re-login and exactly one retry; a second 401 is treated as an auth failure
// rather than a transient error.
type Client struct {
	http   *httpclient.Client
	tokens *TokenManager
	logger ectologger.Logger
}

func NewClient(http *httpclient.Client, tokens *TokenManager, logger ectologger.Logger) *Client {
	return &Client{
		http:   http,
		tokens: tokens,
		logger: logger,
	}
}

// Get issues an authenticated GET with the given query parameters.
func (c *Client) Get(ctx context.Context, endpoint string, params url.Values) (*httpclient.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "erp.Client.Get")
	defer span.End()

	resp, err := c.do(ctx, endpoint, params)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.WithContext(ctx).Warn("ERP rejected token, re-authenticating")
		c.tokens.Invalidate()

		resp, err = c.do(ctx, endpoint, params)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			return nil, NewAuthErrorf("request to %s unauthorized after re-login", endpoint)
		}
	}

	return resp, nil
}

func (c *Client) do(ctx context.Context, endpoint string, params url.Values) (*httpclient.Response, error) {
	token, err := c.tokens.GetToken(ctx)
	if err != nil {
		return nil, err
	}

	requestURL := endpoint
	if len(params) > 0 {
		requestURL = endpoint + "?" + params.Encode()
	}

	return c.http.Get(ctx, requestURL, map[string]string{
		"Authorization": "Bearer " + token,
	})
}
