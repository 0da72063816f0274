package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/manifeed/manifeed/internal/common"
	"github.com/manifeed/manifeed/internal/models"
)

const (
	tokenRequestTimeout = 10 * time.Second

	// tokenRefreshBuffer renews the token this long before it expires so
	// in-flight work never runs on a token about to lapse
	tokenRefreshBuffer = 60 * time.Second
)

// TokenClient obtains and caches the worker access token from the
// orchestrator API
type TokenClient struct {
	endpoint string
	workerID string
	secret   string
	client   *http.Client
	logger   arbor.ILogger

	mu        sync.Mutex
	token     string
	expiresAt time.Time

	now func() time.Time
}

// NewTokenClient creates a token client against the configured API URL
func NewTokenClient(config *common.Config, logger arbor.ILogger) *TokenClient {
	return &TokenClient{
		endpoint: strings.TrimRight(config.Worker.APIURL, "/") + "/internal/workers/token",
		workerID: config.Worker.ID,
		secret:   config.Worker.Secret,
		client:   &http.Client{Timeout: tokenRequestTimeout},
		logger:   logger,
		now:      time.Now,
	}
}

// Ensure returns a token that stays valid beyond the refresh buffer,
// requesting a fresh one when the cached token is missing or about to
// expire
func (t *TokenClient) Ensure(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now().UTC()
	if t.token != "" && now.Add(tokenRefreshBuffer).Before(t.expiresAt) {
		return t.token, nil
	}

	if strings.TrimSpace(t.workerID) == "" || strings.TrimSpace(t.secret) == "" {
		return "", errors.New("worker credentials are not configured")
	}

	token, expiresAt, err := t.request(ctx)
	if err != nil {
		return "", err
	}

	t.token = token
	t.expiresAt = expiresAt.UTC()
	t.logger.Debug().Str("worker_id", t.workerID).Str("expires_at", t.expiresAt.Format(time.RFC3339)).Msg("Worker token refreshed")
	return token, nil
}

func (t *TokenClient) request(ctx context.Context) (string, time.Time, error) {
	body, err := json.Marshal(models.WorkerTokenRequest{
		WorkerID:     t.workerID,
		WorkerSecret: t.secret,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("marshal token request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")

	response, err := t.client.Do(request)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return "", time.Time{}, fmt.Errorf("token request failed: HTTP %d", response.StatusCode)
	}

	var read models.WorkerTokenRead
	if err := json.NewDecoder(response.Body).Decode(&read); err != nil {
		return "", time.Time{}, fmt.Errorf("decode token response: %w", err)
	}
	if read.AccessToken == "" {
		return "", time.Time{}, errors.New("token response does not contain a valid access_token")
	}
	if read.ExpiresAt.IsZero() {
		return "", time.Time{}, errors.New("token response does not contain a valid expires_at")
	}
	return read.AccessToken, read.ExpiresAt, nil
}
