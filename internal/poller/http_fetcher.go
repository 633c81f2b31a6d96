package poller

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPFetcher reads records from the public API.
type HTTPFetcher struct {
	BaseURL    string
	Token      string
	HTTPClient *http.Client
}

// NewHTTPFetcher builds a fetcher for baseURL, e.g. http://localhost:8080.
// token is an optional bearer token.
func NewHTTPFetcher(baseURL, token string) *HTTPFetcher {
	return &HTTPFetcher{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Token:      token,
		HTTPClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context, recordID string) (Snapshot, error) {
	endpoint := f.BaseURL + "/api/v1/analyses/" + url.PathEscape(recordID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Snapshot{}, err
	}
	req.Header.Set("Accept", "application/json")
	if f.Token != "" {
		req.Header.Set("Authorization", "Bearer "+f.Token)
	}

	resp, err := f.HTTPClient.Do(req)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch analysis: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Snapshot{}, ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return Snapshot{}, &RetryAfterError{
			Wait: retryAfter(resp.Header.Get("Retry-After")),
			Err:  fmt.Errorf("fetch analysis: http status %d", resp.StatusCode),
		}
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Snapshot{}, fmt.Errorf("fetch analysis: http status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var snap Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return Snapshot{}, fmt.Errorf("decode analysis: %w", err)
	}
	return snap, nil
}

func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
