package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/sawpanic/equityrun/internal/domain"
)

const (
	// DefaultTimeout is the hard cap for one vendor call.
	DefaultTimeout = 30 * time.Second

	// DefaultRateLimit is requests per second against the vendor.
	DefaultRateLimit = 5
)

// Client is an HTTP bar/quote source. Calls pass through a token bucket and
// a circuit breaker; repeated vendor failures open the breaker and fail fast
// with NETWORK until the vendor recovers.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimit sets the vendor request rate.
func WithRateLimit(rps int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(rate.Limit(rps), rps) }
}

// NewClient creates a vendor client for the given base URL and API key.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "prices",
		Timeout: 60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("Price source breaker state change")
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wireBar is the vendor's bar payload shape.
type wireBar struct {
	TS     int64   `json:"ts"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// FetchDaily returns daily bars for the range, sorted ascending.
func (c *Client) FetchDaily(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error) {
	return c.fetchBars(ctx, symbol, from, to, IntervalDaily)
}

// FetchIntraday returns one-minute bars for the range, sorted ascending.
func (c *Client) FetchIntraday(ctx context.Context, symbol domain.Symbol, from, to time.Time) ([]domain.Bar, error) {
	return c.fetchBars(ctx, symbol, from, to, IntervalMinute)
}

func (c *Client) fetchBars(ctx context.Context, symbol domain.Symbol, from, to time.Time, interval Interval) ([]domain.Bar, error) {
	params := url.Values{}
	params.Set("symbol", string(symbol))
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))
	params.Set("interval", string(interval))

	var wire []wireBar
	if err := c.get(ctx, "/v1/bars", params, &wire); err != nil {
		return nil, fmt.Errorf("fetch %s bars %s: %w", interval, symbol, err)
	}
	if len(wire) == 0 {
		return nil, fmt.Errorf("%s %s bars: %w", symbol, interval, domain.ErrEmpty)
	}

	bars := make([]domain.Bar, 0, len(wire))
	for _, w := range wire {
		bars = append(bars, domain.Bar{
			Symbol: symbol,
			TS:     time.Unix(w.TS, 0).UTC(),
			Open:   w.Open, High: w.High, Low: w.Low, Close: w.Close,
			Volume: w.Volume,
		})
	}
	sort.Slice(bars, func(i, j int) bool { return bars[i].TS.Before(bars[j].TS) })
	bars = dedupBars(bars)
	if err := domain.ValidateSeries(bars); err != nil {
		return nil, err
	}
	return bars, nil
}

// FetchQuote returns the latest (possibly extended-hours) quote.
func (c *Client) FetchQuote(ctx context.Context, symbol domain.Symbol) (Quote, error) {
	params := url.Values{}
	params.Set("symbol", string(symbol))

	var wire struct {
		Price  float64 `json:"price"`
		Volume float64 `json:"volume"`
		TS     int64   `json:"ts"`
	}
	if err := c.get(ctx, "/v1/quote", params, &wire); err != nil {
		return Quote{}, fmt.Errorf("fetch quote %s: %w", symbol, err)
	}
	if wire.Price == 0 {
		return Quote{}, fmt.Errorf("quote %s: %w", symbol, domain.ErrEmpty)
	}
	return Quote{Symbol: symbol, Price: wire.Price, Volume: wire.Volume, TS: time.Unix(wire.TS, 0).UTC()}, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrRateLimited, err)
	}
	if params == nil {
		params = url.Values{}
	}
	if c.apiKey != "" {
		params.Set("api_token", c.apiKey)
	}
	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())

	body, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: build request: %v", domain.ErrInternal, err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, domain.ErrSymbolUnknown
		case resp.StatusCode == http.StatusTooManyRequests:
			return nil, domain.ErrRateLimited
		case resp.StatusCode >= 400:
			return nil, fmt.Errorf("%w: status %d", domain.ErrNetwork, resp.StatusCode)
		}

		var decoded json.RawMessage
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, fmt.Errorf("%w: decode: %v", domain.ErrNetwork, err)
		}
		return decoded, nil
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return fmt.Errorf("%w: breaker open", domain.ErrNetwork)
		}
		return err
	}
	return json.Unmarshal(body.(json.RawMessage), result)
}

func dedupBars(bars []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(bars))
	for _, b := range bars {
		if n := len(out); n > 0 && b.TS.Equal(out[n-1].TS) {
			out[n-1] = b // latest wins
			continue
		}
		out = append(out, b)
	}
	return out
}
