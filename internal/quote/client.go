package quote

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/kmercer/crypto-gatherer/internal/model"
)

// Client fetches quotes from a crypto market-data REST API
// (best_bid_ask-shaped endpoint).
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new market-data client.
func NewClient(baseURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// bidAskWire is the wire format of the best_bid_ask endpoint.
type bidAskWire struct {
	Results []struct {
		Symbol                   string `json:"symbol"`
		Price                    string `json:"price"`
		BidInclusiveOfSellSpread string `json:"bid_inclusive_of_sell_spread"`
		AskInclusiveOfBuySpread  string `json:"ask_inclusive_of_buy_spread"`
		Timestamp                string `json:"timestamp"`
	} `json:"results"`
}

// Fetch performs one best_bid_ask request for ticker. It never retries;
// the sampler decides whether a failed tick is skipped or fatal.
func (c *Client) Fetch(ctx context.Context, ticker string) (model.Quote, error) {
	q := url.Values{}
	q.Set("symbol", ticker)
	fullURL := c.baseURL + "/api/v1/crypto/marketdata/best_bid_ask/?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return model.Quote{}, &Error{Kind: KindNetwork, Ticker: ticker, Message: err.Error()}
	}

	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return model.Quote{}, &Error{Kind: KindNetwork, Ticker: ticker, Message: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Quote{}, &Error{Kind: KindNetwork, Ticker: ticker, Message: err.Error()}
	}

	if resp.StatusCode >= 400 {
		return model.Quote{}, &Error{
			Kind:       classifyStatus(resp.StatusCode),
			Ticker:     ticker,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
		}
	}

	var wire bidAskWire
	if err := json.Unmarshal(body, &wire); err != nil {
		return model.Quote{}, &Error{
			Kind:       KindServer,
			Ticker:     ticker,
			StatusCode: resp.StatusCode,
			Message:    "malformed response: " + err.Error(),
		}
	}

	if len(wire.Results) == 0 {
		return model.Quote{}, &Error{
			Kind:       KindInvalidTicker,
			Ticker:     ticker,
			StatusCode: resp.StatusCode,
			Message:    "no results for symbol",
		}
	}

	return c.toQuote(ticker, wire)
}

// toQuote converts the wire payload to a model.Quote.
func (c *Client) toQuote(ticker string, wire bidAskWire) (model.Quote, error) {
	r := wire.Results[0]

	bid, err := decimal.NewFromString(r.BidInclusiveOfSellSpread)
	if err != nil {
		return model.Quote{}, &Error{Kind: KindServer, Ticker: ticker, Message: "bad bid: " + err.Error()}
	}
	ask, err := decimal.NewFromString(r.AskInclusiveOfBuySpread)
	if err != nil {
		return model.Quote{}, &Error{Kind: KindServer, Ticker: ticker, Message: "bad ask: " + err.Error()}
	}
	price, err := decimal.NewFromString(r.Price)
	if err != nil {
		return model.Quote{}, &Error{Kind: KindServer, Ticker: ticker, Message: "bad price: " + err.Error()}
	}

	ts, err := time.Parse(time.RFC3339Nano, r.Timestamp)
	if err != nil {
		// Some deployments omit server timestamps; receive time is close enough.
		ts = time.Now()
	}

	return model.Quote{
		Ticker:    ticker,
		Timestamp: ts.UTC(),
		Bid:       bid,
		Ask:       ask,
		Price:     price,
	}, nil
}

// classifyStatus maps HTTP status codes to failure kinds.
func classifyStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindAuth
	case code == http.StatusBadRequest || code == http.StatusNotFound:
		return KindInvalidTicker
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code >= 500:
		return KindServer
	default:
		return KindServer
	}
}
