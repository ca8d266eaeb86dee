package erp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// HTTPClient implements Client over the external system's JSON API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	http    *http.Client

	mu      sync.Mutex
	session string // session token issued by Connect, empty when disconnected
}

// NewHTTPClient builds a client for the external inventory API.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// CheckConnection probes the external source. A transport error is reported
// as a disconnected status, not an error: connectivity is a question, and
// "no" is a valid answer.
func (c *HTTPClient) CheckConnection(ctx context.Context) (ConnectionStatus, error) {
	var status ConnectionStatus
	if err := c.get(ctx, "/api/health", &status); err != nil {
		return ConnectionStatus{Connected: false, Message: err.Error()}, nil
	}
	return status, nil
}

// Connect opens an explicit session and stores the issued token.
func (c *HTTPClient) Connect(ctx context.Context) error {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.post(ctx, "/api/session", nil, &out); err != nil {
		return fmt.Errorf("erp: connect: %w", err)
	}

	c.mu.Lock()
	c.session = out.Token
	c.mu.Unlock()
	return nil
}

// Disconnect closes the session. Safe to call when not connected.
func (c *HTTPClient) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	token := c.session
	c.session = ""
	c.mu.Unlock()

	if token == "" {
		return nil
	}
	return c.do(ctx, http.MethodDelete, "/api/session", nil, nil)
}

func (c *HTTPClient) GetWarehouseByID(ctx context.Context, id string) (*WarehouseInfo, error) {
	var info WarehouseInfo
	err := c.get(ctx, "/api/warehouses/"+id, &info)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("erp: get warehouse %s: %w", id, err)
	}
	return &info, nil
}

func (c *HTTPClient) GetProductsByWarehouse(ctx context.Context, id string) ([]Product, error) {
	var out struct {
		Products []Product `json:"products"`
	}
	if err := c.get(ctx, "/api/warehouses/"+id+"/products", &out); err != nil {
		return nil, fmt.Errorf("erp: list products for warehouse %s: %w", id, err)
	}
	return out.Products, nil
}

func (c *HTTPClient) BulkUpdateStock(ctx context.Context, updates []StockUpdate, actorID string) ([]UpdateResult, error) {
	body := struct {
		Updates []StockUpdate `json:"updates"`
		ActorID string        `json:"actor_id"`
	}{Updates: updates, ActorID: actorID}

	var out struct {
		Results []UpdateResult `json:"results"`
	}
	if err := c.post(ctx, "/api/stock/bulk", body, &out); err != nil {
		return nil, fmt.Errorf("erp: bulk update stock: %w", err)
	}
	return out.Results, nil
}

// ─── Transport plumbing ───────────────────────────────────────────────────────

type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.code, e.body)
}

func isNotFound(err error) bool {
	var se *statusError
	return asStatusError(err, &se) && se.code == http.StatusNotFound
}

func asStatusError(err error, target **statusError) bool {
	for err != nil {
		if se, ok := err.(*statusError); ok {
			*target = se
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (c *HTTPClient) get(ctx context.Context, path string, dest interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, dest)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, dest interface{}) error {
	return c.do(ctx, http.MethodPost, path, body, dest)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, dest interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	c.mu.Lock()
	if c.session != "" {
		req.Header.Set("Authorization", "Bearer "+c.session)
	}
	c.mu.Unlock()

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &statusError{code: resp.StatusCode, body: string(raw)}
	}

	if dest == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
