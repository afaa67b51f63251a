package schwab

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schwabgw/internal/errors"
	"schwabgw/internal/testutils"
)

type observed struct {
	mu    sync.Mutex
	calls []string
}

func (o *observed) record(op, outcome string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls = append(o.calls, op+":"+outcome)
}

func newTestClient(t *testing.T, f *testutils.FakeUpstream, base string, obs *observed) *Client {
	t.Helper()
	f.HandleJSON(http.MethodPost, "/oauth/token", http.StatusOK, `{"access_token":"access-1","expires_in":1800}`)
	opts := []ClientOption{
		WithTimeout(5 * time.Second),
		WithClientLogger(quietLogger()),
	}
	if obs != nil {
		opts = append(opts, WithRequestObserver(obs.record))
	}
	return NewClient(testCreds(base), opts...)
}

func validOrder() *OrderRequest {
	return &OrderRequest{
		OrderLegCollection: []OrderLeg{{
			Instruction: InstructionBuy,
			Quantity:    decimal.NewFromInt(10),
			Symbol:      "AAPL",
			AssetType:   AssetEquity,
		}},
	}
}

func TestGetAccountBalances(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	obs := &observed{}
	c := newTestClient(t, f, f.URL, obs)
	f.HandleJSON(http.MethodGet, "/accounts/ABC123/balances", http.StatusOK,
		`{"securitiesAccount":{"accountNumber":"ABC123","currentBalances":{"cashBalance":1234.56}}}`)

	out, err := c.GetAccountBalances(context.Background(), "ABC123")
	require.NoError(t, err)

	require.IsType(t, map[string]any{}, out)
	acct := out.(map[string]any)["securitiesAccount"].(map[string]any)
	assert.Equal(t, "ABC123", acct["accountNumber"])
	balances := acct["currentBalances"].(map[string]any)
	assert.Equal(t, json.Number("1234.56"), balances["cashBalance"])

	reqs := f.Requests(http.MethodGet, "/accounts/ABC123/balances")
	require.Len(t, reqs, 1)
	assert.Equal(t, "Bearer access-1", reqs[0].Header.Get("Authorization"))
	assert.Equal(t, []string{OpAccountBalances + ":" + OutcomeSuccess}, obs.calls)
}

func TestUpstreamErrorKeepsStatusAndBody(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	obs := &observed{}
	c := newTestClient(t, f, f.URL, obs)
	f.HandleJSON(http.MethodGet, "/accounts/ABC123/balances", http.StatusForbidden, `{"message":"not your account"}`)

	_, err := c.GetAccountBalances(context.Background(), "ABC123")
	require.Error(t, err)

	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeUpstreamRequest, appErr.Code)
	assert.Equal(t, http.StatusForbidden, appErr.HTTPStatus())
	assert.Equal(t, `{"message":"not your account"}`, appErr.UpstreamBody)
	assert.Equal(t, []string{OpAccountBalances + ":" + OutcomeUpstreamError}, obs.calls)
}

func TestNonJSONSuccessIsBadGateway(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.Handle(http.MethodGet, "/accounts/ABC123/balances", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>maintenance</html>"))
	})

	_, err := c.GetAccountBalances(context.Background(), "ABC123")
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
	assert.Equal(t, "<html>maintenance</html>", appErr.UpstreamBody)
}

func TestBalancesArrayBodyPassesThrough(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	obs := &observed{}
	c := newTestClient(t, f, f.URL, obs)
	f.HandleJSON(http.MethodGet, "/accounts/ABC123/balances", http.StatusOK, `[{"cash":1}]`)

	out, err := c.GetAccountBalances(context.Background(), "ABC123")
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"cash": json.Number("1")}}, out)
	assert.Equal(t, []string{OpAccountBalances + ":" + OutcomeSuccess}, obs.calls)
}

func TestPriceHistoryArrayBodyIsNotAnnotated(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	f.HandleJSON(http.MethodPost, "/v1/oauth/token", http.StatusOK, `{"access_token":"access-1","expires_in":1800}`)
	f.HandleJSON(http.MethodGet, "/marketdata/v1/pricehistory", http.StatusOK, `[{"datetime":1704067200000}]`)
	c := NewClient(testCreds(f.URL+"/v1/"), WithClientLogger(quietLogger()))

	out, err := c.GetPriceHistory(context.Background(), "AAPL", PriceHistoryQuery{})
	require.NoError(t, err)
	list, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.NotContains(t, list[0].(map[string]any), "datetime_iso")
}

func TestTokenFailureStopsResourceCall(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	f.HandleJSON(http.MethodPost, "/oauth/token", http.StatusUnauthorized, `{"error":"invalid_client"}`)
	c := NewClient(testCreds(f.URL), WithClientLogger(quietLogger()))

	_, err := c.GetAccountBalances(context.Background(), "ABC123")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeUpstreamAuth))
	assert.Equal(t, 0, f.Count(http.MethodGet, "/accounts/ABC123/balances"))
}

func TestAccountIDIsPathEscaped(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.HandleJSON(http.MethodGet, "/accounts/a b/balances", http.StatusOK, `{}`)

	_, err := c.GetAccountBalances(context.Background(), "a b")
	require.NoError(t, err)
	assert.Equal(t, 1, f.Count(http.MethodGet, "/accounts/a b/balances"))
}

func TestPlaceOrderRejectsZeroQuantityBeforeNetwork(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)

	order := validOrder()
	order.OrderLegCollection[0].Quantity = decimal.Zero

	_, err := c.PlaceOrder(context.Background(), "ABC123", order)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
	assert.Equal(t, 0, f.Count(http.MethodPost, "/oauth/token"))
	assert.Equal(t, 0, f.Count(http.MethodPost, "/accounts/ABC123/orders"))
}

func TestPlaceOrderEmptyCreatedBody(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.Handle(http.MethodPost, "/accounts/ABC123/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://api.schwabapi.com/accounts/ABC123/orders/42")
		w.WriteHeader(http.StatusCreated)
	})

	out, err := c.PlaceOrder(context.Background(), "ABC123", validOrder())
	require.NoError(t, err)
	require.IsType(t, map[string]any{}, out)
	assert.Equal(t, "https://api.schwabapi.com/accounts/ABC123/orders/42", out.(map[string]any)["location"])

	reqs := f.Requests(http.MethodPost, "/accounts/ABC123/orders")
	require.Len(t, reqs, 1)
	assert.Contains(t, reqs[0].Header.Get("Content-Type"), "application/json")

	var sent map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	assert.Equal(t, "MARKET", sent["orderType"])
	assert.Equal(t, "NORMAL", sent["session"])
	assert.Equal(t, "DAY", sent["duration"])
	assert.Equal(t, "SINGLE", sent["orderStrategyType"])
	assert.NotContains(t, sent, "price")

	legs := sent["orderLegCollection"].([]any)
	require.Len(t, legs, 1)
	leg := legs[0].(map[string]any)
	assert.Equal(t, float64(10), leg["quantity"])
	assert.Equal(t, "AAPL", leg["symbol"])
}

func TestPlaceOrderReturnsUpstreamJSON(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.HandleJSON(http.MethodPost, "/accounts/ABC123/orders", http.StatusOK, `{"orderId":42}`)

	out, err := c.PlaceOrder(context.Background(), "ABC123", validOrder())
	require.NoError(t, err)
	require.IsType(t, map[string]any{}, out)
	assert.Equal(t, json.Number("42"), out.(map[string]any)["orderId"])
}

func TestPlaceOrderUnlistedOrderTypeReachesUpstream(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.HandleJSON(http.MethodPost, "/accounts/ABC123/orders", http.StatusOK, `{"orderId":7}`)

	order := validOrder()
	order.OrderType = "NET_DEBIT"
	order.Duration = "GOOD_TILL_CANCEL"

	_, err := c.PlaceOrder(context.Background(), "ABC123", order)
	require.NoError(t, err)

	reqs := f.Requests(http.MethodPost, "/accounts/ABC123/orders")
	require.Len(t, reqs, 1)
	var sent map[string]any
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	assert.Equal(t, "NET_DEBIT", sent["orderType"])
	assert.Equal(t, "GOOD_TILL_CANCEL", sent["duration"])
}

func TestPlaceOrderArrayBodyKeepsShape(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.Handle(http.MethodPost, "/accounts/ABC123/orders", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "https://api.schwabapi.com/accounts/ABC123/orders/42")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"orderId":42}]`))
	})

	out, err := c.PlaceOrder(context.Background(), "ABC123", validOrder())
	require.NoError(t, err)
	list, ok := out.([]any)
	require.True(t, ok)
	require.Len(t, list, 1)
	assert.Equal(t, json.Number("42"), list[0].(map[string]any)["orderId"])
}

func TestPlaceOrderUpstreamRejection(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.HandleJSON(http.MethodPost, "/accounts/ABC123/orders", http.StatusBadRequest, `{"message":"Order rejected"}`)

	_, err := c.PlaceOrder(context.Background(), "ABC123", validOrder())
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusBadRequest, appErr.HTTPStatus())
	assert.Equal(t, `{"message":"Order rejected"}`, appErr.UpstreamBody)
}

func TestGetPriceHistory(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	obs := &observed{}
	// token endpoint lives under the configured base, marketdata under its root
	f.HandleJSON(http.MethodPost, "/v1/oauth/token", http.StatusOK, `{"access_token":"access-1","expires_in":1800}`)
	f.HandleJSON(http.MethodGet, "/marketdata/v1/pricehistory", http.StatusOK,
		`{"symbol":"AAPL","empty":false,"candles":[{"open":1,"datetime":1704067200000},{"open":2},"odd"]}`)
	c := NewClient(testCreds(f.URL+"/v1/"), WithClientLogger(quietLogger()), WithRequestObserver(obs.record))

	q, err := ParsePriceHistoryQuery(url.Values{
		"startDate":  {"2024-01-01T00:00:00Z"},
		"periodType": {"day"},
	})
	require.NoError(t, err)

	out, err := c.GetPriceHistory(context.Background(), "AAPL", q)
	require.NoError(t, err)

	reqs := f.Requests(http.MethodGet, "/marketdata/v1/pricehistory")
	require.Len(t, reqs, 1)
	query := url.Values(reqs[0].Query)
	assert.Equal(t, "AAPL", query.Get("symbol"))
	assert.Equal(t, "1704067200000", query.Get("startDate"))
	assert.Equal(t, "day", query.Get("periodType"))
	assert.NotContains(t, query, "endDate")
	assert.NotContains(t, query, "period")

	require.IsType(t, map[string]any{}, out)
	candles := out.(map[string]any)["candles"].([]any)
	require.Len(t, candles, 3)
	first := candles[0].(map[string]any)
	assert.Equal(t, "2024-01-01T00:00:00Z", first["datetime_iso"])
	assert.Equal(t, json.Number("1704067200000"), first["datetime"])
	assert.NotContains(t, candles[1].(map[string]any), "datetime_iso")
	assert.Equal(t, "odd", candles[2])
	assert.Equal(t, []string{OpPriceHistory + ":" + OutcomeSuccess}, obs.calls)
}

func TestTransportFailureIsBadGateway(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	obs := &observed{}
	c := newTestClient(t, f, f.URL, obs)
	_, err := c.Tokens().EnsureToken(context.Background())
	require.NoError(t, err)

	f.Close()
	_, err = c.GetAccountBalances(context.Background(), "ABC123")
	appErr := errors.GetAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, errors.ErrCodeUpstreamRequest, appErr.Code)
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
	assert.Equal(t, []string{OpAccountBalances + ":" + OutcomeTransportError}, obs.calls)
}

func TestClientReusesTokenAcrossCalls(t *testing.T) {
	f := testutils.NewFakeUpstream(t)
	c := newTestClient(t, f, f.URL, nil)
	f.HandleJSON(http.MethodGet, "/accounts/ABC123/balances", http.StatusOK, `{}`)

	for i := 0; i < 3; i++ {
		_, err := c.GetAccountBalances(context.Background(), "ABC123")
		require.NoError(t, err)
	}
	assert.Equal(t, 1, f.Count(http.MethodPost, "/oauth/token"))
	assert.Equal(t, 3, f.Count(http.MethodGet, "/accounts/ABC123/balances"))
}
