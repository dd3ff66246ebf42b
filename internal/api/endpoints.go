package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

// Server paths.
const (
	pathSyncReadStatus = "/api/articles/sync-read-status"
	pathSyncRatings    = "/api/articles/sync-ratings"
	pathSettings       = "/api/settings"
	pathRefresh        = "/api/settings/refresh"
	pathDashboard      = "/api/dashboard"
	pathHealth         = "/api/health"
)

type syncReadStatusRequest struct {
	ArticleURLs []string `json:"article_urls"`
	DeviceID    string   `json:"device_id"`
}

type syncRatingsRequest struct {
	Ratings  []Rating `json:"ratings"`
	DeviceID string   `json:"device_id"`
}

// SyncReadStatus marks the articles with the given URLs read on the server
// in one batch. The server treats each URL as an idempotent upsert.
func (c *Client) SyncReadStatus(ctx context.Context, urls []string, deviceID string) (*ReadSyncResult, error) {
	var result ReadSyncResult

	err := c.doJSON(ctx, http.MethodPost, pathSyncReadStatus,
		syncReadStatusRequest{ArticleURLs: urls, DeviceID: deviceID}, &result)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

// SyncRatings sends a batch of ratings in enqueue order, duplicates included.
func (c *Client) SyncRatings(ctx context.Context, ratings []Rating, deviceID string) error {
	return c.doJSON(ctx, http.MethodPost, pathSyncRatings,
		syncRatingsRequest{Ratings: ratings, DeviceID: deviceID}, nil)
}

// ReplaceSettings sends a full settings document verbatim.
func (c *Client) ReplaceSettings(ctx context.Context, doc json.RawMessage) error {
	if !json.Valid(doc) {
		return fmt.Errorf("api: settings document is not valid JSON")
	}

	resp, err := c.Do(ctx, http.MethodPut, pathSettings, doc)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// GetSettings returns the server's current settings.
func (c *Client) GetSettings(ctx context.Context) (*ServerSettings, error) {
	var s ServerSettings
	if err := c.doJSON(ctx, http.MethodGet, pathSettings, nil, &s); err != nil {
		return nil, err
	}

	return &s, nil
}

// TriggerRefresh asks the server to recompute weather and sports data for
// the current settings.
func (c *Client) TriggerRefresh(ctx context.Context) (*RefreshResult, error) {
	var result RefreshResult
	if err := c.doJSON(ctx, http.MethodPost, pathRefresh, nil, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// FetchDashboard returns the raw dashboard payload. includeRead asks the
// server to keep already-read articles in the sections.
func (c *Client) FetchDashboard(ctx context.Context, includeRead bool) (json.RawMessage, error) {
	path := pathDashboard
	if includeRead {
		path += "?" + url.Values{"include_read": {"true"}}.Encode()
	}

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading dashboard: %w", ErrNetwork, err)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("api: dashboard response is not valid JSON")
	}

	return json.RawMessage(data), nil
}

// Health probes the server once, without retries. It returns nil when the
// server answers 2xx.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, pathHealth, nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var h Health
	if decodeErr := json.NewDecoder(resp.Body).Decode(&h); decodeErr == nil && h.Status != "" && h.Status != "ok" {
		return fmt.Errorf("api: server reports status %q", h.Status)
	}

	return nil
}
