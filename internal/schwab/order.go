package schwab

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"schwabgw/internal/errors"
)

// Order leg instructions.
const (
	InstructionBuy        = "BUY"
	InstructionSell       = "SELL"
	InstructionBuyToCover = "BUY_TO_COVER"
	InstructionSellShort  = "SELL_SHORT"
)

// Asset types accepted on an order leg.
const (
	AssetEquity         = "EQUITY"
	AssetOption         = "OPTION"
	AssetMutualFund     = "MUTUAL_FUND"
	AssetCashEquivalent = "CASH_EQUIVALENT"
)

// Order defaults applied when a field is left empty.
const (
	DefaultOrderType         = "MARKET"
	DefaultSession           = "NORMAL"
	DefaultDuration          = "DAY"
	DefaultOrderStrategyType = "SINGLE"
)

var (
	instructions = set(InstructionBuy, InstructionSell, InstructionBuyToCover, InstructionSellShort)
	assetTypes   = set(AssetEquity, AssetOption, AssetMutualFund, AssetCashEquivalent)
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// OrderLeg is one instrument line of an order.
type OrderLeg struct {
	Instruction string          `json:"instruction"`
	Quantity    decimal.Decimal `json:"quantity"`
	Symbol      string          `json:"symbol"`
	AssetType   string          `json:"assetType"`
}

// OrderRequest is the client-facing order body.
type OrderRequest struct {
	OrderType          string           `json:"orderType,omitempty"`
	Session            string           `json:"session,omitempty"`
	Duration           string           `json:"duration,omitempty"`
	OrderStrategyType  string           `json:"orderStrategyType,omitempty"`
	Price              *decimal.Decimal `json:"price,omitempty"`
	OrderLegCollection []OrderLeg       `json:"orderLegCollection"`
}

// ApplyDefaults fills empty order-level fields.
func (o *OrderRequest) ApplyDefaults() {
	if o.OrderType == "" {
		o.OrderType = DefaultOrderType
	}
	if o.Session == "" {
		o.Session = DefaultSession
	}
	if o.Duration == "" {
		o.Duration = DefaultDuration
	}
	if o.OrderStrategyType == "" {
		o.OrderStrategyType = DefaultOrderStrategyType
	}
}

// Validate applies defaults and reports every violation at once. Order-level
// fields (type, session, duration, strategy) are passed through unchecked so
// the upstream decides which combinations it accepts.
func (o *OrderRequest) Validate() error {
	o.ApplyDefaults()

	var violations []string
	check := func(field, value string, allowed map[string]struct{}) {
		if _, ok := allowed[value]; !ok {
			violations = append(violations, fmt.Sprintf("%s: unsupported value %q", field, value))
		}
	}

	if len(o.OrderLegCollection) == 0 {
		violations = append(violations, "orderLegCollection: at least one leg is required")
	}
	for i, leg := range o.OrderLegCollection {
		prefix := fmt.Sprintf("orderLegCollection[%d].", i)
		check(prefix+"instruction", leg.Instruction, instructions)
		check(prefix+"assetType", leg.AssetType, assetTypes)
		if !leg.Quantity.IsPositive() {
			violations = append(violations, prefix+"quantity: must be greater than 0")
		}
		if strings.TrimSpace(leg.Symbol) == "" {
			violations = append(violations, prefix+"symbol: is required")
		}
	}

	if len(violations) > 0 {
		return errors.NewValidationError("Invalid order request", violations...)
	}
	return nil
}

// upstreamLeg and upstreamOrder render decimals as JSON numbers.
type upstreamLeg struct {
	Instruction string      `json:"instruction"`
	Quantity    json.Number `json:"quantity"`
	Symbol      string      `json:"symbol"`
	AssetType   string      `json:"assetType"`
}

type upstreamOrder struct {
	OrderType          string        `json:"orderType"`
	Session            string        `json:"session"`
	Duration           string        `json:"duration"`
	OrderStrategyType  string        `json:"orderStrategyType"`
	Price              json.Number   `json:"price,omitempty"`
	OrderLegCollection []upstreamLeg `json:"orderLegCollection"`
}

// upstreamBody is the exact payload sent to the order endpoint.
func (o *OrderRequest) upstreamBody() upstreamOrder {
	body := upstreamOrder{
		OrderType:          o.OrderType,
		Session:            o.Session,
		Duration:           o.Duration,
		OrderStrategyType:  o.OrderStrategyType,
		OrderLegCollection: make([]upstreamLeg, 0, len(o.OrderLegCollection)),
	}
	if o.Price != nil {
		body.Price = json.Number(o.Price.String())
	}
	for _, leg := range o.OrderLegCollection {
		body.OrderLegCollection = append(body.OrderLegCollection, upstreamLeg{
			Instruction: leg.Instruction,
			Quantity:    json.Number(leg.Quantity.String()),
			Symbol:      leg.Symbol,
			AssetType:   leg.AssetType,
		})
	}
	return body
}
