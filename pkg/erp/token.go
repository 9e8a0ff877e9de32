package erp

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/jmespath/go-jmespath"

	"github.com/Ramsey-B/clover/pkg/httpclient"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const (
	// TokenSkew refreshes the token this long before its reported expiry
	TokenSkew = 5 * time.Minute

	// DefaultTokenTTL is assumed when the login response carries no expiry
	DefaultTokenTTL = time.Hour
)

// tokenPaths are tried in order against the login response body. The ERP has
// shipped all three shapes across versions.
var tokenPaths = []string{"token", "accessToken", "access_token"}

// TokenManager authenticates against the ERP and caches the bearer token
// until shortly before expiry. The clock is injected so expiry behavior is
// deterministic under test.
type TokenManager struct {
	http     *httpclient.Client
	authURL  string
	username string
	password string
	logger   ectologger.Logger
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

func NewTokenManager(http *httpclient.Client, authURL, username, password string, logger ectologger.Logger) *TokenManager {
	return &TokenManager{
		http:     http,
		authURL:  authURL,
		username: username,
		password: password,
		logger:   logger,
		now:      time.Now,
	}
}

// WithClock overrides the manager's time source.
func (m *TokenManager) WithClock(now func() time.Time) *TokenManager {
	m.now = now
	return m
}

// GetToken returns the cached token when it is still comfortably valid,
// otherwise logs in again. Refreshes are serialized under the manager's lock
// so concurrent callers at most wait, never double-login.
func (m *TokenManager) GetToken(ctx context.Context) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "TokenManager.GetToken")
	defer span.End()

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiresAt.Add(-TokenSkew)) {
		return m.token, nil
	}

	return m.login(ctx)
}

// Invalidate drops the cached token so the next GetToken logs in again.
// Callers use it when the ERP rejects a token the manager still considered
// valid.
func (m *TokenManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.token = ""
	m.expiresAt = time.Time{}
}

func (m *TokenManager) login(ctx context.Context) (string, error) {
	loginURL := strings.TrimSuffix(m.authURL, "/") + "/login"

	resp, err := m.http.PostJSON(ctx, loginURL, map[string]string{
		"username": m.username,
		"password": m.password,
	}, nil)
	if err != nil {
		return "", NewAuthErrorf("login request failed: %v", err)
	}

	if !httpclient.IsSuccessStatus(resp.StatusCode) {
		return "", NewAuthErrorf("login returned status %d: %s", resp.StatusCode, string(resp.Body))
	}

	if err := httpclient.ParseResponse(resp); err != nil {
		return "", NewAuthErrorf("login response is not valid JSON: %v", err)
	}

	token, ok := extractToken(resp.BodyJSON)
	if !ok {
		return "", NewAuthErrorf("login response contains no recognizable token field")
	}

	m.token = token
	m.expiresAt = m.extractExpiry(resp.BodyJSON)

	m.logger.WithContext(ctx).WithField("expires_at", m.expiresAt).Info("Obtained new ERP token")
	return m.token, nil
}

// extractToken tries each known token field in order, falling back to a bare
// string body.
func extractToken(body any) (string, bool) {
	if token, ok := body.(string); ok && strings.TrimSpace(token) != "" {
		return strings.TrimSpace(token), true
	}

	for _, path := range tokenPaths {
		result, err := jmespath.Search(path, body)
		if err != nil {
			continue
		}
		if token, ok := result.(string); ok && strings.TrimSpace(token) != "" {
			return strings.TrimSpace(token), true
		}
	}

	return "", false
}

// extractExpiry reads either an absolute expires_at timestamp or a relative
// expiresIn seconds count, defaulting to one hour of validity.
func (m *TokenManager) extractExpiry(body any) time.Time {
	if result, err := jmespath.Search("expires_at", body); err == nil && result != nil {
		switch v := result.(type) {
		case float64:
			return time.Unix(int64(v), 0)
		case string:
			if parsed, err := time.Parse(time.RFC3339, v); err == nil {
				return parsed
			}
		}
	}

	if result, err := jmespath.Search("expiresIn", body); err == nil && result != nil {
		if seconds, ok := result.(float64); ok && seconds > 0 {
			return m.now().Add(time.Duration(seconds) * time.Second)
		}
	}

	return m.now().Add(DefaultTokenTTL)
}
