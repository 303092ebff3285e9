// Package api provides a source reader for JSON HTTP APIs.
//
// Two response shapes are understood: the Census Data API "table" shape
// (header row followed by value rows) and plain arrays of records.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/leapstack-labs/phonograph/pkg/core"
	"github.com/leapstack-labs/phonograph/pkg/source"
)

// Reader fetches the API response once per connection and yields its rows.
type Reader struct {
	params Params
	logger *slog.Logger

	mu      sync.Mutex
	client  *retryablehttp.Client
	apiKey  string
	fetched bool
	header  []string
	rows    []core.Row
}

// New creates an API reader. If logger is nil, a discard logger is used.
func New(params Params, logger *slog.Logger) (*Reader, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if err := params.applyDefaults(); err != nil {
		return nil, err
	}
	return &Reader{params: params, logger: logger}, nil
}

// Connect builds the retrying client and resolves the API key.
func (r *Reader) Connect(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.params.APIKeyEnv != "" {
		key := os.Getenv(r.params.APIKeyEnv)
		if key == "" {
			return fmt.Errorf("environment variable %s is not set", r.params.APIKeyEnv)
		}
		r.apiKey = key
	}

	client := retryablehttp.NewClient()
	client.RetryMax = r.params.RetryMax
	client.HTTPClient.Timeout = r.params.Timeout
	client.Logger = r.logger
	r.client = client
	return nil
}

// Disconnect drops the client and any cached response.
func (r *Reader) Disconnect() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client != nil {
		r.client.HTTPClient.CloseIdleConnections()
	}
	r.client = nil
	r.fetched = false
	r.header = nil
	r.rows = nil
	return nil
}

// ReadRows yields the rows of the response.
func (r *Reader) ReadRows(ctx context.Context, limit int) iter.Seq2[core.Row, error] {
	return func(yield func(core.Row, error) bool) {
		rows, _, err := r.load(ctx)
		if err != nil {
			yield(nil, err)
			return
		}
		for i, row := range rows {
			if limit > 0 && i >= limit {
				return
			}
			if !yield(row, nil) {
				return
			}
		}
	}
}

// Schema returns the header columns typed "string" for table responses, and
// the union of record keys typed by their first non-null JSON value otherwise.
func (r *Reader) Schema(ctx context.Context) (core.Schema, error) {
	rows, header, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	schema := make(core.Schema)
	if header != nil {
		for _, col := range header {
			schema[col] = "string"
		}
		return schema, nil
	}
	for _, row := range rows {
		for k, v := range row {
			if cur, ok := schema[k]; ok && cur != "null" {
				continue
			}
			schema[k] = jsonType(v)
		}
	}
	return schema, nil
}

func (r *Reader) load(ctx context.Context) ([]core.Row, []string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil, nil, core.ErrNotConnected
	}
	if r.fetched {
		return r.rows, r.header, nil
	}

	body, err := r.fetch(ctx)
	if err != nil {
		return nil, nil, err
	}

	switch r.params.Format {
	case FormatRecords:
		r.rows, err = parseRecords(body, r.params.RecordsPath)
	default:
		r.rows, r.header, err = parseTable(body)
	}
	if err != nil {
		return nil, nil, err
	}
	r.fetched = true
	r.logger.Debug("fetched api source", slog.String("url", r.params.URL), slog.Int("rows", len(r.rows)))
	return r.rows, r.header, nil
}

func (r *Reader) requestURL() (string, error) {
	u, err := url.Parse(r.params.URL)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	q := u.Query()
	for k, v := range r.params.Params {
		q.Set(k, source.ExpandEnv(v))
	}
	if r.apiKey != "" {
		q.Set(r.params.APIKeyParam, r.apiKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (r *Reader) fetch(ctx context.Context) (any, error) {
	target, err := r.requestURL()
	if err != nil {
		return nil, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.params.Headers {
		req.Header.Set(k, source.ExpandEnv(v))
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", r.params.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("request to %s returned %s: %s", r.params.URL, resp.Status, strings.TrimSpace(string(snippet)))
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	var body any
	if err := dec.Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return core.NormalizeJSON(body), nil
}

// parseTable reads [[header...], [values...], ...].
func parseTable(body any) ([]core.Row, []string, error) {
	table, ok := body.([]any)
	if !ok {
		return nil, nil, fmt.Errorf("table response must be a JSON array, got %T", body)
	}
	if len(table) == 0 {
		return nil, []string{}, nil
	}

	first, ok := table[0].([]any)
	if !ok {
		return nil, nil, fmt.Errorf("table response header must be an array, got %T", table[0])
	}
	header := make([]string, len(first))
	for i, h := range first {
		header[i] = fmt.Sprint(h)
	}

	rows := make([]core.Row, 0, len(table)-1)
	for i, raw := range table[1:] {
		values, ok := raw.([]any)
		if !ok {
			return nil, nil, fmt.Errorf("table row %d must be an array, got %T", i+1, raw)
		}
		row := make(core.Row, len(header))
		for j, v := range values {
			if j >= len(header) {
				break
			}
			row[header[j]] = v
		}
		rows = append(rows, row)
	}
	return rows, header, nil
}

// parseRecords reads an array of objects, found at the dotted path when set.
func parseRecords(body any, path string) ([]core.Row, error) {
	if path != "" {
		for _, key := range strings.Split(path, ".") {
			obj, ok := body.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("records_path %q: %q is not inside an object", path, key)
			}
			body, ok = obj[key]
			if !ok {
				return nil, fmt.Errorf("records_path %q: key %q not found", path, key)
			}
		}
	}

	list, ok := body.([]any)
	if !ok {
		return nil, fmt.Errorf("records response must be a JSON array, got %T", body)
	}
	rows := make([]core.Row, 0, len(list))
	for i, item := range list {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("record %d is not an object", i)
		}
		rows = append(rows, core.Row(obj))
	}
	return rows, nil
}

func jsonType(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case int64:
		return "integer"
	case float64:
		return "number"
	case bool:
		return "boolean"
	case []any:
		return "array"
	default:
		return "object"
	}
}

var _ core.SourceReader = (*Reader)(nil)

// Factory builds a Reader from a mapping's source_config.
func Factory(cfg core.SourceConfig, logger *slog.Logger) (core.SourceReader, error) {
	var params Params
	if err := source.DecodeParams(cfg, &params); err != nil {
		return nil, err
	}
	return New(params, logger)
}
