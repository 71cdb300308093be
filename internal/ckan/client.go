// Package ckan は CKAN の action API（package_show / datastore_search）から
// 観測データを取り込みます。
package ckan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	userAgent         = "eco-portal-importer/1.0"
	defaultMaxRetries = 5
	defaultBackoff    = 500 * time.Millisecond
	maxResponseBytes  = 64 << 20
)

// 一時的な障害として再試行するステータス
var retryStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	520:                            true,
	521:                            true,
	522:                            true,
	524:                            true,
}

// StatusError は CKAN が 200 以外を返したときのエラーです。
type StatusError struct {
	Action string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d", e.Action, e.Status)
}

// Client は CKAN action API のクライアントです。
type Client struct {
	baseURL    string
	http       *http.Client
	maxRetries int
	backoff    time.Duration
	logger     *slog.Logger
}

// NewClient は Client を作成します。hc が nil なら http.DefaultClient を使います。
func NewClient(baseURL string, hc *http.Client, logger *slog.Logger) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       hc,
		maxRetries: defaultMaxRetries,
		backoff:    defaultBackoff,
		logger:     logger.With("component", "ckan"),
	}
}

// Resource は CKAN パッケージに含まれるリソースです。
type Resource struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Format          string `json:"format"`
	DatastoreActive bool   `json:"datastore_active"`
}

// PackageResources は package_show でパッケージのリソース一覧を取得します。
// formats が空でなければ形式（大文字小文字を区別しない）で絞り込み、
// includeNonDatastore が false なら datastore 未登録のリソースを除きます。
func (c *Client) PackageResources(ctx context.Context, packageID string, formats []string, includeNonDatastore bool) ([]Resource, error) {
	var result struct {
		Resources []Resource `json:"resources"`
	}
	if err := c.action(ctx, "package_show", url.Values{"id": {packageID}}, &result); err != nil {
		return nil, err
	}

	allowed := make(map[string]bool, len(formats))
	for _, f := range formats {
		allowed[strings.ToUpper(strings.TrimSpace(f))] = true
	}

	var out []Resource
	for _, r := range result.Resources {
		r.Format = strings.ToUpper(r.Format)
		if r.Name == "" {
			r.Name = r.ID
		}
		if !includeNonDatastore && !r.DatastoreActive {
			continue
		}
		if len(allowed) > 0 && !allowed[r.Format] {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Record は datastore_search の1レコードです。数値は json.Number で保持します。
type Record map[string]any

// SearchBatches は datastore_search を offset を進めながら呼び、バッチごとに fn を呼びます。
// 空のバッチが返るか、maxRecords（0 なら無制限）以上を取得した時点で終了します。
func (c *Client) SearchBatches(ctx context.Context, resourceID string, limit, maxRecords int, fn func([]Record) error) error {
	if limit <= 0 {
		return errors.New("limit must be positive")
	}
	offset, pulled := 0, 0
	for {
		var result struct {
			Records []Record `json:"records"`
		}
		params := url.Values{
			"resource_id": {resourceID},
			"limit":       {strconv.Itoa(limit)},
			"offset":      {strconv.Itoa(offset)},
		}
		if err := c.action(ctx, "datastore_search", params, &result); err != nil {
			return fmt.Errorf("%w (offset=%d)", err, offset)
		}
		if len(result.Records) == 0 {
			return nil
		}
		if err := fn(result.Records); err != nil {
			return err
		}

		pulled += len(result.Records)
		if maxRecords > 0 && pulled >= maxRecords {
			return nil
		}
		offset += len(result.Records)
	}
}

// action は GET で action を呼び、result を out にデコードします。
// 接続エラーと retryStatus は指数バックオフで再試行します。
func (c *Client) action(ctx context.Context, name string, params url.Values, out any) error {
	endpoint := c.baseURL + "/" + name + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.backoff * time.Duration(1<<(attempt-1))
			c.logger.Warn("CKAN request failed, retrying",
				"action", name,
				"attempt", attempt,
				"max_retries", c.maxRetries,
				"delay_ms", delay.Milliseconds(),
				"error", lastErr)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		body, retry, err := c.get(ctx, name, endpoint)
		if err == nil {
			return decodeResult(name, body, out)
		}
		if !retry || ctx.Err() != nil {
			return err
		}
		lastErr = err
	}
	return lastErr
}

func (c *Client) get(ctx context.Context, name, endpoint string) ([]byte, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to build %s request: %w", name, err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%s request failed: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, retryStatus[resp.StatusCode], &StatusError{Action: name, Status: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, true, fmt.Errorf("failed to read %s response: %w", name, err)
	}
	return body, false, nil
}

func decodeResult(name string, body []byte, out any) error {
	var envelope struct {
		Success bool            `json:"success"`
		Result  json.RawMessage `json:"result"`
		Error   *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	if !envelope.Success {
		msg := "unknown error"
		if envelope.Error != nil && envelope.Error.Message != "" {
			msg = envelope.Error.Message
		}
		return fmt.Errorf("%s returned an error: %s", name, msg)
	}

	dec := json.NewDecoder(bytes.NewReader(envelope.Result))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", name, err)
	}
	return nil
}
