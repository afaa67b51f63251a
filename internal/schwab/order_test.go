package schwab

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schwabgw/internal/errors"
)

func TestOrderDefaults(t *testing.T) {
	order := validOrder()
	require.NoError(t, order.Validate())

	assert.Equal(t, DefaultOrderType, order.OrderType)
	assert.Equal(t, DefaultSession, order.Session)
	assert.Equal(t, DefaultDuration, order.Duration)
	assert.Equal(t, DefaultOrderStrategyType, order.OrderStrategyType)
}

func TestOrderDecodesQuantityForms(t *testing.T) {
	var order OrderRequest
	body := `{"orderType":"LIMIT","price":"187.25","orderLegCollection":[
		{"instruction":"SELL","quantity":"2.5","symbol":"MSFT","assetType":"EQUITY"},
		{"instruction":"BUY","quantity":3,"symbol":"AAPL","assetType":"EQUITY"}]}`
	require.NoError(t, json.Unmarshal([]byte(body), &order))
	require.NoError(t, order.Validate())

	assert.True(t, order.OrderLegCollection[0].Quantity.Equal(decimal.RequireFromString("2.5")))
	assert.True(t, order.OrderLegCollection[1].Quantity.Equal(decimal.NewFromInt(3)))
	require.NotNil(t, order.Price)
	assert.Equal(t, "187.25", order.Price.String())
}

func TestOrderValidationViolations(t *testing.T) {
	negative := decimal.NewFromInt(-1)
	tests := []struct {
		name   string
		mutate func(*OrderRequest)
	}{
		{"zero quantity", func(o *OrderRequest) { o.OrderLegCollection[0].Quantity = decimal.Zero }},
		{"negative quantity", func(o *OrderRequest) { o.OrderLegCollection[0].Quantity = negative }},
		{"instruction", func(o *OrderRequest) { o.OrderLegCollection[0].Instruction = "HOLD" }},
		{"asset type", func(o *OrderRequest) { o.OrderLegCollection[0].AssetType = "CRYPTO" }},
		{"missing symbol", func(o *OrderRequest) { o.OrderLegCollection[0].Symbol = " " }},
		{"no legs", func(o *OrderRequest) { o.OrderLegCollection = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(order)
			err := order.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsCode(err, errors.ErrCodeValidation))
		})
	}
}

func TestOrderValidationReportsAll(t *testing.T) {
	order := validOrder()
	order.OrderLegCollection[0].AssetType = "CRYPTO"
	order.OrderLegCollection[0].Quantity = decimal.Zero
	order.OrderLegCollection[0].Instruction = "HOLD"

	appErr := errors.GetAppError(order.Validate())
	require.NotNil(t, appErr)
	assert.Len(t, appErr.Violations, 3)
}

func TestOrderLevelFieldsPassThrough(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*OrderRequest)
	}{
		{"net debit", func(o *OrderRequest) { o.OrderType = "NET_DEBIT" }},
		{"trailing stop limit", func(o *OrderRequest) { o.OrderType = "TRAILING_STOP_LIMIT" }},
		{"end of week", func(o *OrderRequest) { o.Duration = "END_OF_WEEK" }},
		{"extended session", func(o *OrderRequest) { o.Session = "EXTENDED" }},
		{"custom strategy", func(o *OrderRequest) { o.OrderStrategyType = "FLATTEN" }},
		{"zero price", func(o *OrderRequest) { zero := decimal.Zero; o.Price = &zero }},
		{"negative price", func(o *OrderRequest) { neg := decimal.NewFromFloat(-0.35); o.Price = &neg }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order := validOrder()
			tt.mutate(order)
			assert.NoError(t, order.Validate())
		})
	}
}

func TestOrderUpstreamBodyUsesNumbers(t *testing.T) {
	price := decimal.RequireFromString("187.25")
	order := validOrder()
	order.OrderType = "LIMIT"
	order.Price = &price
	require.NoError(t, order.Validate())

	data, err := json.Marshal(order.upstreamBody())
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"orderType":"LIMIT","session":"NORMAL","duration":"DAY","orderStrategyType":"SINGLE",
		"price":187.25,
		"orderLegCollection":[{"instruction":"BUY","quantity":10,"symbol":"AAPL","assetType":"EQUITY"}]
	}`, string(data))
}
