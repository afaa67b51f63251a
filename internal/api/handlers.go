package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"schwabgw/internal/schwab"
)

// Brokerage is the part of schwab.Client the handlers call.
type Brokerage interface {
	GetAccountBalances(ctx context.Context, accountID string) (any, error)
	PlaceOrder(ctx context.Context, accountID string, order *schwab.OrderRequest) (any, error)
	GetPriceHistory(ctx context.Context, symbol string, query schwab.PriceHistoryQuery) (any, error)
}

// CodeExchanger trades an authorization code for tokens.
type CodeExchanger interface {
	ExchangeAuthorizationCode(ctx context.Context, code, state string) (schwab.TokenPayload, error)
}

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status  string `json:"status"`
	Account string `json:"account"`
}

// HealthHandler answers liveness checks
type HealthHandler struct {
	account string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(account string) *HealthHandler {
	return &HealthHandler{account: account}
}

// Health reports the process is up. It never calls the brokerage.
// @Summary Liveness check
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse
// @Router /health [get]
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "ok", Account: h.account})
}

// fail hands err to middleware.HandleError for rendering.
func fail(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Abort()
}
