package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// Client is the HTTP implementation of DataSource for the tagmark cloud
// store.
type Client struct {
	BaseURL  string
	APIKey   string
	DeviceID string
	HTTP     *http.Client
}

// NewClient creates a remote store client.
func NewClient(baseURL, apiKey, deviceID string) *Client {
	return &Client{
		BaseURL:  baseURL,
		APIKey:   apiKey,
		DeviceID: deviceID,
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Fetch returns the rows of a table changed at or after since. since=0
// returns all rows, including soft-deleted ones so tombstones propagate.
func (c *Client) Fetch(ctx context.Context, table, userID string, since int64) ([]Row, error) {
	params := url.Values{}
	params.Set("user", userID)
	params.Set("since", strconv.FormatInt(since, 10))

	var rows []Row
	if err := c.do(ctx, "GET", fmt.Sprintf("/v1/%s?%s", table, params.Encode()), nil, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// Upsert creates or replaces a row.
func (c *Client) Upsert(ctx context.Context, table, userID string, row Row) error {
	path := fmt.Sprintf("/v1/%s/%s?user=%s", table, row.ID, url.QueryEscape(userID))
	return c.do(ctx, "PUT", path, row, nil)
}

// SoftDelete marks a row deleted. The row stays on the server as a
// tombstone; a missing row is not an error.
func (c *Client) SoftDelete(ctx context.Context, table, id, userID string) error {
	path := fmt.Sprintf("/v1/%s/%s?user=%s", table, id, url.QueryEscape(userID))
	err := c.do(ctx, "DELETE", path, nil, nil)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

// timeResponse is the body of GET /v1/time.
type timeResponse struct {
	NowMs int64 `json:"now_ms"`
}

// ServerTime returns the server's clock in unix milliseconds. Used by the
// clock service for calibration; no auth required.
func (c *Client) ServerTime(ctx context.Context) (int64, error) {
	var resp timeResponse
	if err := c.do(ctx, "GET", "/v1/time", nil, &resp); err != nil {
		return 0, err
	}
	return resp.NowMs, nil
}

// apiError is the standard error body from the server.
type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *apiError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Code
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.APIKey)
	}
	if c.DeviceID != "" {
		req.Header.Set("X-Device-ID", c.DeviceID)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Code != "" {
			switch resp.StatusCode {
			case http.StatusUnauthorized:
				return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Message)
			case http.StatusForbidden:
				return fmt.Errorf("%w: %s", ErrForbidden, apiErr.Message)
			case http.StatusNotFound:
				return fmt.Errorf("%w: %s", ErrNotFound, apiErr.Message)
			default:
				return &apiErr
			}
		}
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return ErrUnauthorized
		case http.StatusForbidden:
			return ErrForbidden
		case http.StatusNotFound:
			return ErrNotFound
		}
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
