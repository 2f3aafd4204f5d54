package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/escape23/crypto-dashboard/internal/models"
)

const DefaultBaseURL = "https://api.coingecko.com/api/v3"

const marketPageSize = 10

// FetchError wraps a failed remote call: either a transport error (Status 0)
// or a non-success HTTP status.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("market fetch: status %d: %v", e.Status, e.Err)
	}
	return fmt.Sprintf("market fetch: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Client talks to the remote market data API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Markets returns the top assets by market capitalization priced in currency,
// in the order the remote source ranks them.
func (c *Client) Markets(ctx context.Context, currency models.Currency) ([]models.Asset, error) {
	if !currency.Valid() {
		return nil, &FetchError{Err: fmt.Errorf("unsupported currency %q", currency)}
	}

	values := url.Values{}
	values.Set("vs_currency", string(currency))
	values.Set("order", "market_cap_desc")
	values.Set("per_page", fmt.Sprint(marketPageSize))
	endpoint := c.baseURL + "/coins/markets?" + values.Encode()

	var assets []models.Asset
	if err := c.getJSON(ctx, endpoint, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

// History returns the price series for assetID over the lookback window.
// The window token is opaque to us beyond being non-empty; the remote source
// interprets it.
func (c *Client) History(ctx context.Context, assetID string, currency models.Currency, window string) ([]models.PricePoint, error) {
	if assetID == "" {
		return nil, &FetchError{Err: errors.New("empty asset id")}
	}
	if window == "" {
		return nil, &FetchError{Err: errors.New("empty lookback window")}
	}
	if !currency.Valid() {
		return nil, &FetchError{Err: fmt.Errorf("unsupported currency %q", currency)}
	}

	values := url.Values{}
	values.Set("vs_currency", string(currency))
	values.Set("days", window)
	endpoint := c.baseURL + "/coins/" + url.PathEscape(assetID) + "/market_chart?" + values.Encode()

	var payload struct {
		Prices [][2]float64 `json:"prices"`
	}
	if err := c.getJSON(ctx, endpoint, &payload); err != nil {
		return nil, err
	}

	points := make([]models.PricePoint, 0, len(payload.Prices))
	for _, pair := range payload.Prices {
		points = append(points, models.PricePoint{
			Timestamp: int64(pair[0]),
			Price:     pair[1],
		})
	}
	return points, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &FetchError{Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &FetchError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &FetchError{
			Status: resp.StatusCode,
			Err:    errors.New(strings.TrimSpace(string(body))),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &FetchError{Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
