package syncclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/nantokaworks/gacha-vault/internal/types"
)

// Remote is the client side of the sync wire protocol. The orchestrator
// only depends on this interface so cycles are testable without a
// network.
type Remote interface {
	Upload(ctx context.Context, req types.UploadRequest) (*types.UploadResponse, error)
	Download(ctx context.Context, accountKey string, since *time.Time) (*types.DownloadResponse, error)
	Status(ctx context.Context) (*types.StatusResponse, error)
}

// Client talks to the remote sync service with a bearer credential.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) Upload(ctx context.Context, req types.UploadRequest) (*types.UploadResponse, error) {
	var resp types.UploadResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/records/upload", nil, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Download(ctx context.Context, accountKey string, since *time.Time) (*types.DownloadResponse, error) {
	query := url.Values{"account_key": {accountKey}}
	if since != nil {
		query.Set("since", since.Format(time.RFC3339Nano))
	}

	var resp types.DownloadResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/records/download", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) Status(ctx context.Context) (*types.StatusResponse, error) {
	var resp types.StatusResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Leaderboard fetches a published ranked view (used by the agent's
// proxy endpoint so the UI never holds the bearer token).
func (c *Client) Leaderboard(ctx context.Context, viewType string, limit int) (*types.RankedViewResponse, error) {
	query := url.Values{"type": {viewType}}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var resp types.RankedViewResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/leaderboard", query, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) GetLeaderboardSettings(ctx context.Context) (*types.LeaderboardSettings, error) {
	var resp types.LeaderboardSettings
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/leaderboard/settings", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) SetLeaderboardSettings(ctx context.Context, settings types.LeaderboardSettings) error {
	return c.doJSON(ctx, http.MethodPut, "/api/v1/leaderboard/settings", nil, settings, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// ネットワーク断は一時障害として次のサイクルに任せる
		return fmt.Errorf("%w: %v", types.ErrTransient, err)
	}
	defer resp.Body.Close()

	if err := classifyStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: malformed response: %v", types.ErrTransient, err)
	}
	return nil
}

func classifyStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: server returned %d", types.ErrAuth, resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w (%d): %s", types.ErrRejected, resp.StatusCode, strings.TrimSpace(string(msg)))
	default:
		return fmt.Errorf("%w: server returned %d", types.ErrTransient, resp.StatusCode)
	}
}
