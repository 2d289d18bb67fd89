package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	defaultHTTPTimeout = 5 * time.Second

	// maxResponseBytes caps how much of an item service response is read.
	maxResponseBytes = 1 << 20
)

// HTTPResolver resolves codes through a remote item service.
//
// It issues GET {baseURL}/items/upc/{code}?mode=…&location_id=… and
// expects a JSON Resolution. 404 means the code is unknown.
type HTTPResolver struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPResolver creates a resolver for baseURL. A non-positive timeout
// uses the default of five seconds.
func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPResolver{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Resolve asks the item service about q.Code.
func (r *HTTPResolver) Resolve(ctx context.Context, q Query) (Resolution, error) {
	q.Code = strings.TrimSpace(q.Code)
	if q.Code == "" {
		return Resolution{}, ErrEmptyCode
	}

	params := url.Values{}
	params.Set("mode", string(q.Mode))
	if q.LocationID != "" {
		params.Set("location_id", q.LocationID)
	}
	endpoint := fmt.Sprintf("%s/items/upc/%s?%s", r.baseURL, url.PathEscape(q.Code), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Resolution{}, fmt.Errorf("creating item request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	otel.GetTextMapPropagator().Inject(ctx, propagation.HeaderCarrier(req.Header))

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return Resolution{}, fmt.Errorf("%w: reading body: %w", ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return notFound(q), nil
	case resp.StatusCode >= http.StatusInternalServerError:
		return Resolution{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return Resolution{}, fmt.Errorf("%w: status %d: %s", ErrBadResponse, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res Resolution
	if err := json.Unmarshal(body, &res); err != nil {
		return Resolution{}, fmt.Errorf("%w: %w", ErrBadResponse, err)
	}
	if !res.Found {
		return notFound(q), nil
	}
	if res.Item == nil {
		return Resolution{}, fmt.Errorf("%w: found without item", ErrBadResponse)
	}
	if len(res.SuggestedActions) == 0 {
		return found(q, *res.Item, res.SKUs), nil
	}
	if res.SKUs == nil {
		res.SKUs = []SKU{}
	}
	return res, nil
}

// HealthCheck verifies the item service answers on {baseURL}/health.
func (r *HTTPResolver) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("creating health request: %w", err)
	}
	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck // drain for keep-alive

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", ErrUnavailable, resp.StatusCode)
	}
	return nil
}
