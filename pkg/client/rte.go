package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/bobby-s-dev/wsenergy/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	rteTokenPath       = "/token/oauth/"
	rteConsumptionPath = "/open_api/consumption/v1/short_term?type=REALISED,ID"
	rteProductionPath  = "/open_api/actual_generation/v1/generation_mix_15min_time_scale"

	// Tokens are renewed this long before the expiry announced by the OAuth endpoint.
	tokenExpirySkew = 60 * time.Second
	defaultTokenTTL = time.Hour
)

// ErrTokenUnavailable wraps every failure to obtain an RTE bearer token.
var ErrTokenUnavailable = errors.New("rte access token unavailable")

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// RTEClient talks to the RTE open data platform. It owns the bearer token
// and renews it when it is about to expire or is rejected.
type RTEClient struct {
	*BaseClient
	baseURL     string
	credentials string
	now         func() time.Time

	tokenGroup singleflight.Group

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewRTEClient creates a client. credentials is the base64 "id:secret" pair
// sent as HTTP basic auth to the OAuth endpoint.
func NewRTEClient(baseURL, credentials string, config ClientConfig, logger *zap.Logger) *RTEClient {
	baseClient := NewBaseClient("rte", config, logger)
	return &RTEClient{
		BaseClient:  baseClient,
		baseURL:     strings.TrimRight(baseURL, "/"),
		credentials: credentials,
		now:         time.Now,
	}
}

// Token returns a valid bearer token, fetching a new one when none is cached
// or the cached one is about to expire. Concurrent callers share one fetch,
// and each caller stops waiting when its own ctx is done.
func (c *RTEClient) Token(ctx context.Context) (string, error) {
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}

	// The shared fetch is bounded by the first caller's deadline but not by
	// its cancellation.
	ch := c.tokenGroup.DoChan("token", func() (interface{}, error) {
		fetchCtx := context.WithoutCancel(ctx)
		if deadline, ok := ctx.Deadline(); ok {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithDeadline(fetchCtx, deadline)
			defer cancel()
		}
		return c.fetchToken(fetchCtx)
	})

	select {
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *RTEClient) cachedToken() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token != "" && c.now().Before(c.expiresAt) {
		return c.token, true
	}
	return "", false
}

func (c *RTEClient) fetchToken(ctx context.Context) (string, error) {
	// A fetch that finished since the caller looked may have filled the cache.
	if token, ok := c.cachedToken(); ok {
		return token, nil
	}

	header := http.Header{}
	header.Set("Authorization", "Basic "+c.credentials)
	header.Set("Content-Type", "application/x-www-form-urlencoded")

	data, err := c.GetWithRetry(ctx, c.baseURL+rteTokenPath, header)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrTokenUnavailable, err)
	}

	var response tokenResponse
	if err := json.Unmarshal(data, &response); err != nil {
		return "", fmt.Errorf("%w: failed to parse token response: %w", ErrTokenUnavailable, err)
	}
	if response.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access_token in response", ErrTokenUnavailable)
	}

	ttl := defaultTokenTTL
	if response.ExpiresIn > 0 {
		ttl = time.Duration(response.ExpiresIn) * time.Second
	}
	if ttl > tokenExpirySkew {
		ttl -= tokenExpirySkew
	}

	c.mu.Lock()
	c.token = response.AccessToken
	c.expiresAt = c.now().Add(ttl)
	expiresAt := c.expiresAt
	c.mu.Unlock()

	c.logger.Info("RTE access token acquired",
		zap.Time("expires_at", expiresAt))

	return response.AccessToken, nil
}

// InvalidateToken forgets the cached token so the next call re-authenticates.
func (c *RTEClient) InvalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

func (c *RTEClient) GetShortTermConsumption(ctx context.Context) (*models.ConsumptionPayload, error) {
	data, err := c.getAuthorized(ctx, rteConsumptionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch short-term consumption: %w", err)
	}

	var response models.ConsumptionPayload
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%w: short-term consumption: %w", ErrMalformedResponse, err)
	}

	return &response, nil
}

func (c *RTEClient) GetGenerationMix(ctx context.Context) (*models.ProductionPayload, error) {
	data, err := c.getAuthorized(ctx, rteProductionPath)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch generation mix: %w", err)
	}

	var response models.ProductionPayload
	if err := json.Unmarshal(data, &response); err != nil {
		return nil, fmt.Errorf("%w: generation mix: %w", ErrMalformedResponse, err)
	}

	return &response, nil
}

// getAuthorized performs a bearer-authenticated GET. A 401 means the token
// was revoked or expired early; it is renewed and the call retried once.
func (c *RTEClient) getAuthorized(ctx context.Context, path string) ([]byte, error) {
	data, err := c.getWithToken(ctx, path)

	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized {
		c.logger.Info("RTE rejected access token, re-authenticating",
			zap.String("path", path))
		c.InvalidateToken()
		return c.getWithToken(ctx, path)
	}

	return data, err
}

func (c *RTEClient) getWithToken(ctx context.Context, path string) ([]byte, error) {
	token, err := c.Token(ctx)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	return c.GetWithRetry(ctx, c.baseURL+path, header)
}
