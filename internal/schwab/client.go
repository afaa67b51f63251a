package schwab

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"

	"schwabgw/internal/errors"
	"schwabgw/internal/logger"
)

// Upstream operations, used as metric labels.
const (
	OpAccountBalances = "account_balances"
	OpPlaceOrder      = "place_order"
	OpPriceHistory    = "price_history"
)

// Upstream call outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeUpstreamError   = "upstream_error"
	OutcomeTransportError  = "transport_error"
	OutcomeTokenError      = "token_error"
	OutcomeInvalidResponse = "invalid_response"
)

// RequestObserver receives one report per upstream call.
type RequestObserver func(operation, outcome string, duration time.Duration)

// Client executes authenticated calls against the Schwab API.
// One Client, and so one TokenManager, is meant to live for the whole process.
type Client struct {
	creds   Credentials
	tokens  *TokenManager
	http    *resty.Client
	observe RequestObserver
	log     logger.Logger
}

type clientOptions struct {
	timeout   time.Duration
	http      *resty.Client
	observer  RequestObserver
	log       logger.Logger
	tokenOpts []TokenOption
}

// ClientOption configures a Client.
type ClientOption func(*clientOptions)

// WithTimeout bounds every upstream call, token endpoint included.
func WithTimeout(d time.Duration) ClientOption {
	return func(o *clientOptions) { o.timeout = d }
}

// WithRestyClient shares an existing resty client.
func WithRestyClient(c *resty.Client) ClientOption {
	return func(o *clientOptions) { o.http = c }
}

// WithRequestObserver reports every upstream call.
func WithRequestObserver(fn RequestObserver) ClientOption {
	return func(o *clientOptions) { o.observer = fn }
}

// WithClientLogger sets the logger for the client and its TokenManager.
func WithClientLogger(l logger.Logger) ClientOption {
	return func(o *clientOptions) { o.log = l }
}

// WithTokenOptions passes options through to the TokenManager.
func WithTokenOptions(opts ...TokenOption) ClientOption {
	return func(o *clientOptions) { o.tokenOpts = append(o.tokenOpts, opts...) }
}

// NewClient builds a Client and its TokenManager from creds.
func NewClient(creds Credentials, opts ...ClientOption) *Client {
	o := clientOptions{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.http == nil {
		o.http = newRestyClient(o.timeout)
	}
	if o.log == nil {
		o.log = logger.GetGlobalLogger()
	}

	tokenOpts := append([]TokenOption{WithHTTPClient(o.http), WithLogger(o.log)}, o.tokenOpts...)
	creds = creds.normalized()

	return &Client{
		creds:   creds,
		tokens:  NewTokenManager(creds, tokenOpts...),
		http:    o.http,
		observe: o.observer,
		log:     o.log,
	}
}

// Tokens exposes the client's TokenManager.
func (c *Client) Tokens() *TokenManager {
	return c.tokens
}

// GetAccountBalances returns the account's balances body as decoded.
func (c *Client) GetAccountBalances(ctx context.Context, accountID string) (any, error) {
	endpoint := c.creds.BaseURL + "/accounts/" + url.PathEscape(accountID) + "/balances"
	out, _, err := c.do(ctx, OpAccountBalances, http.MethodGet, endpoint, nil, nil, false)
	return out, err
}

// PlaceOrder validates and submits an order. Schwab acknowledges with an
// empty body, in which case the Location header is returned under "location".
func (c *Client) PlaceOrder(ctx context.Context, accountID string, order *OrderRequest) (any, error) {
	if order == nil {
		return nil, errors.NewValidationError("Invalid order request", "body is required")
	}
	if err := order.Validate(); err != nil {
		return nil, err
	}

	endpoint := c.creds.BaseURL + "/accounts/" + url.PathEscape(accountID) + "/orders"
	out, resp, err := c.do(ctx, OpPlaceOrder, http.MethodPost, endpoint, nil, order.upstreamBody(), true)
	if err != nil {
		return nil, err
	}
	if obj, ok := out.(map[string]any); ok {
		if loc := resp.Header().Get("Location"); loc != "" {
			if _, exists := obj["location"]; !exists {
				obj["location"] = loc
			}
		}
	}
	return out, nil
}

// GetPriceHistory fetches candles for symbol and annotates each with datetime_iso.
// A body that is not an object is returned without annotation.
func (c *Client) GetPriceHistory(ctx context.Context, symbol string, query PriceHistoryQuery) (any, error) {
	params := query.Params()
	params.Set("symbol", symbol)

	endpoint := c.creds.apiRoot() + "/marketdata/v1/pricehistory"
	out, _, err := c.do(ctx, OpPriceHistory, http.MethodGet, endpoint, params, nil, false)
	if err != nil {
		return nil, err
	}
	if obj, ok := out.(map[string]any); ok {
		annotateCandles(obj)
	}
	return out, nil
}

// do returns the decoded 2xx body as it came: object, array or scalar.
func (c *Client) do(ctx context.Context, op, method, endpoint string, query url.Values, body interface{}, allowEmpty bool) (any, *resty.Response, error) {
	started := time.Now()

	token, err := c.tokens.EnsureToken(ctx)
	if err != nil {
		c.record(op, OutcomeTokenError, started)
		return nil, nil, err
	}

	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(token).
		SetHeader("Accept", "application/json")
	if query != nil {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetHeader("Content-Type", "application/json").SetBody(body)
	}

	resp, err := req.Execute(method, endpoint)
	if err != nil {
		c.record(op, OutcomeTransportError, started)
		c.log.Warn("Upstream call failed", "operation", op, "error", err.Error())
		return nil, nil, errors.NewUpstreamRequestError(http.StatusBadGateway, err.Error()).
			WithContext("operation", op)
	}

	raw := resp.Body()
	if !resp.IsSuccess() {
		c.record(op, OutcomeUpstreamError, started)
		c.log.Warn("Upstream rejected request", "operation", op, "status", resp.StatusCode())
		return nil, resp, errors.NewUpstreamRequestError(resp.StatusCode(), string(raw)).
			WithContext("operation", op)
	}

	if allowEmpty && len(bytes.TrimSpace(raw)) == 0 {
		c.record(op, OutcomeSuccess, started)
		return map[string]any{}, resp, nil
	}

	var decoded any
	if err := decodeJSON(raw, &decoded); err != nil {
		c.record(op, OutcomeInvalidResponse, started)
		return nil, resp, errors.NewUpstreamRequestError(http.StatusBadGateway, string(raw)).
			WithContext("operation", op)
	}

	c.record(op, OutcomeSuccess, started)
	return decoded, resp, nil
}

func (c *Client) record(op, outcome string, started time.Time) {
	if c.observe != nil {
		c.observe(op, outcome, time.Since(started))
	}
}
