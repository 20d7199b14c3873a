package syncx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ariefcatur/go-menu-orders.git/internal/orders"
)

// APIClient talks to the Order Lifecycle API. Stateless request/response;
// the sync engine owns all state.
type APIClient struct {
	baseURL string
	httpc   *http.Client
}

func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *APIClient) Create(ctx context.Context, in orders.CreateInput) (*orders.Order, error) {
	return c.do(ctx, http.MethodPost, "/orders", in)
}

func (c *APIClient) Update(ctx context.Context, orderID string, in orders.UpdateInput) (*orders.Order, error) {
	return c.do(ctx, http.MethodPut, "/orders/"+url.PathEscape(orderID), in)
}

// Get returns orders.ErrNotFound for a 404 so callers can treat a vanished
// order as "gone" instead of a failure.
func (c *APIClient) Get(ctx context.Context, orderID string) (*orders.Order, error) {
	return c.do(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil)
}

func (c *APIClient) do(ctx context.Context, method, path string, body any) (*orders.Order, error) {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, orders.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		if apiErr.Error != "" {
			return nil, fmt.Errorf("%s %s: %s", method, path, apiErr.Error)
		}
		return nil, fmt.Errorf("%s %s: %s", method, path, resp.Status)
	}

	var out struct {
		Order *orders.Order `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if out.Order == nil {
		return nil, errors.New("response missing order")
	}
	return out.Order, nil
}

// isNetworkErr separates transport failures (sticky network-error flag, the
// user is prompted to reload) from application-level errors.
func isNetworkErr(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}
