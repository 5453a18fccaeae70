package searchapi

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
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/visualmatch/console/internal/domain"
)

// maxErrorBodySize bounds how much of a failed response is read when looking for a message
const maxErrorBodySize = 64 * 1024

// Client handles communication with the visual search API.
// Every method issues exactly one attempt; retry policy belongs to callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *zap.Logger
	debug      bool
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-request timeout of the default http.Client
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithLogger sets the logger used for request diagnostics
func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables verbose request logging
func WithDebug(debug bool) Option {
	return func(c *Client) {
		c.debug = debug
	}
}

// NewClient creates a new search API client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to
func (c *Client) BaseURL() string {
	return c.baseURL
}

// SetDebug toggles verbose request logging
func (c *Client) SetDebug(debug bool) {
	c.debug = debug
}

func (c *Client) debugLog(msg string, fields ...zap.Field) {
	if c.debug {
		c.logger.Debug(msg, fields...)
	}
}

// Health checks whether the search API is reachable.
// Every failure wraps domain.ErrAPIUnavailable.
func (c *Client) Health(ctx context.Context) (*domain.HealthStatus, error) {
	var status domain.HealthStatus
	if err := c.getJSON(ctx, "/health", &status); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrAPIUnavailable, err)
	}
	return &status, nil
}

// ListCategories returns the catalog categories in API order
func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	return c.listStrings(ctx, "/categories")
}

// ListTags returns the detectable tags in API order
func (c *Client) ListTags(ctx context.Context) ([]string, error) {
	return c.listStrings(ctx, "/tags")
}

func (c *Client) listStrings(ctx context.Context, path string) ([]string, error) {
	var values []string
	if err := c.getJSON(ctx, path, &values); err != nil {
		return nil, err
	}
	if values == nil {
		values = []string{}
	}
	return values, nil
}

// Search uploads the images and returns visually similar products.
// A done context never reaches the network; cancellation errors wrap domain.ErrSearchCanceled.
func (c *Client) Search(ctx context.Context, files []domain.ImageFile, filters *domain.Filters) (*domain.SearchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSearchCanceled, err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", domain.ErrInvalidRequest)
	}

	body, contentType, err := buildSearchBody(files, filters)
	if err != nil {
		return nil, err
	}

	c.logger.Info("search request",
		zap.Int("files", len(files)),
		zap.Bool("filters", filters != nil),
	)

	resp, err := c.do(ctx, http.MethodPost, "/search", body, contentType)
	if err != nil {
		return nil, canceledOr(ctx, err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var result domain.SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, canceledOr(ctx, fmt.Errorf("failed to decode response: %w", err))
	}
	if result.Items == nil {
		result.Items = []domain.Product{}
	}

	c.logger.Info("search completed", zap.Int("items", len(result.Items)), zap.Int("total", result.Total))
	return &result, nil
}

// Precompute asks the API to rebuild its catalog embeddings. It does not wait for completion.
func (c *Client) Precompute(ctx context.Context) (*domain.PrecomputeAck, error) {
	resp, err := c.do(ctx, http.MethodPost, "/precompute", nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var ack domain.PrecomputeAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &ack, nil
}

// GetProduct retrieves a single product. Any non-2xx response is reported as not found.
func (c *Client) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	if strings.TrimSpace(id) == "" {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrInvalidRequest)
	}

	resp, err := c.do(ctx, http.MethodGet, "/products/"+url.PathEscape(id), nil, "")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrProductNotFound, err)
	}

	var product domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &product, nil
}

// ListItems pages through the indexed catalog images
func (c *Client) ListItems(ctx context.Context, offset, limit int) ([]domain.CatalogItem, error) {
	if offset < 0 || limit < 1 || limit > MaxItemsPageSize {
		return nil, fmt.Errorf("%w: offset must be >= 0 and limit within 1..%d", domain.ErrInvalidRequest, MaxItemsPageSize)
	}

	params := url.Values{}
	params.Add("offset", strconv.Itoa(offset))
	params.Add("limit", strconv.Itoa(limit))

	var items []domain.CatalogItem
	if err := c.getJSON(ctx, "/items?"+params.Encode(), &items); err != nil {
		return nil, err
	}
	return c.resolveItems(items), nil
}

// SearchText runs a text-to-image query against the catalog
func (c *Client) SearchText(ctx context.Context, query string, topK int) (*domain.MatchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", domain.ErrInvalidRequest)
	}

	payload := map[string]interface{}{"query": query}
	if topK > 0 {
		payload["top_k"] = topK
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/search-text", bytes.NewReader(data), "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.decodeMatch(resp)
}

// SearchImage runs a single-image query against the catalog
func (c *Client) SearchImage(ctx context.Context, file domain.ImageFile, topK int) (*domain.MatchResponse, error) {
	if len(file.Data) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInvalidRequest)
	}

	body, contentType, err := buildSingleFileBody("file", file)
	if err != nil {
		return nil, err
	}

	path := "/search-image"
	if topK > 0 {
		path += "?top_k=" + strconv.Itoa(topK)
	}

	resp, err := c.do(ctx, http.MethodPost, path, body, contentType)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	return c.decodeMatch(resp)
}

func (c *Client) decodeMatch(resp *http.Response) (*domain.MatchResponse, error) {
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	var match domain.MatchResponse
	if err := json.NewDecoder(resp.Body).Decode(&match); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	match.Results = c.resolveItems(match.Results)
	return &match, nil
}

// getJSON issues a GET and decodes a 2xx JSON body into out
func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// do executes an HTTP request with proper headers
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "VisualMatchConsole/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.debugLog("search API request", zap.String("method", method), zap.String("path", path))

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("search API request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, fmt.Errorf("request %s %s: %w", method, path, err)
	}

	c.debugLog("search API response",
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)),
	)
	return resp, nil
}

// checkStatus converts a non-2xx response into *domain.APIError
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := readLimitedBody(resp.Body, maxErrorBodySize)
	return &domain.APIError{
		StatusCode: resp.StatusCode,
		Status:     statusLine(resp),
		Message:    extractMessage(body),
	}
}

func statusLine(resp *http.Response) string {
	if resp.Status != "" {
		return resp.Status
	}
	return fmt.Sprintf("%d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
}

// extractMessage pulls a human-readable message out of a JSON error body.
// FastAPI style {"detail": ...} bodies are accepted alongside {"message"} and {"error"}.
func extractMessage(body []byte) string {
	if len(bytes.TrimSpace(body)) == 0 {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	for _, key := range []string{"message", "detail", "error"} {
		switch v := payload[key].(type) {
		case string:
			if v != "" {
				return v
			}
		case nil:
		default:
			if encoded, err := json.Marshal(v); err == nil {
				return string(encoded)
			}
		}
	}
	return ""
}

// readLimitedBody reads at most limit bytes from r
func readLimitedBody(r io.Reader, limit int64) ([]byte, error) {
	return io.ReadAll(io.LimitReader(r, limit))
}

// canceledOr maps errors caused by a done context to domain.ErrSearchCanceled
func canceledOr(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", domain.ErrSearchCanceled, ctxErr)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", domain.ErrSearchCanceled, err)
	}
	return err
}
