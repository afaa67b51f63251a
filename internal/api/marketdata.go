package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schwabgw/internal/schwab"
)

// MarketDataHandler handles market data reads
type MarketDataHandler struct {
	brokerage Brokerage
}

// NewMarketDataHandler creates a new market data handler
func NewMarketDataHandler(brokerage Brokerage) *MarketDataHandler {
	return &MarketDataHandler{brokerage: brokerage}
}

// PriceHistory returns candles for a symbol, each annotated with datetime_iso.
// @Summary Price history
// @Tags MarketData
// @Produce json
// @Param symbol path string true "Ticker"
// @Param periodType query string false "day, month, year or ytd"
// @Param period query int false "Number of periods"
// @Param frequencyType query string false "minute, daily, weekly or monthly"
// @Param frequency query int false "Frequency"
// @Param startDate query string false "Epoch ms or ISO-8601"
// @Param endDate query string false "Epoch ms or ISO-8601"
// @Param needExtendedHoursData query bool false "Include extended hours"
// @Param needPreviousClose query bool false "Include previous close"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Router /marketdata/{symbol}/history [get]
func (h *MarketDataHandler) PriceHistory(c *gin.Context) {
	query, err := schwab.ParsePriceHistoryQuery(c.Request.URL.Query())
	if err != nil {
		fail(c, err)
		return
	}

	result, err := h.brokerage.GetPriceHistory(c.Request.Context(), c.Param("symbol"), query)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
