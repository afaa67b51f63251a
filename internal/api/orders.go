package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"schwabgw/internal/errors"
	"schwabgw/internal/schwab"
)

// maxOrderBody bounds the request body read for an order.
const maxOrderBody = 1 << 20

// OrdersHandler handles order placement
type OrdersHandler struct {
	brokerage      Brokerage
	defaultAccount string
}

// NewOrdersHandler creates a new orders handler
func NewOrdersHandler(brokerage Brokerage, defaultAccount string) *OrdersHandler {
	return &OrdersHandler{brokerage: brokerage, defaultAccount: defaultAccount}
}

// PlaceDefault places an order on the configured account.
// @Summary Place an order on the configured account
// @Tags Orders
// @Accept json
// @Produce json
// @Param order body schwab.OrderRequest true "Order"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Router /orders/default [post]
func (h *OrdersHandler) PlaceDefault(c *gin.Context) {
	h.place(c, h.defaultAccount)
}

// Place places an order on the account in the path.
// @Summary Place an order
// @Tags Orders
// @Accept json
// @Produce json
// @Param account_id path string true "Account hash"
// @Param order body schwab.OrderRequest true "Order"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} errors.ErrorResponse
// @Router /orders/{account_id} [post]
func (h *OrdersHandler) Place(c *gin.Context) {
	h.place(c, c.Param("account_id"))
}

func (h *OrdersHandler) place(c *gin.Context, accountID string) {
	order, err := decodeOrder(c.Request.Body)
	if err != nil {
		fail(c, err)
		return
	}

	result, err := h.brokerage.PlaceOrder(c.Request.Context(), accountID, order)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// decodeOrder reads one JSON object and rejects unknown fields.
func decodeOrder(body io.Reader) (*schwab.OrderRequest, error) {
	if body == nil {
		return nil, errors.NewValidationError("Invalid order request", "body is required")
	}

	dec := json.NewDecoder(io.LimitReader(body, maxOrderBody))
	dec.DisallowUnknownFields()

	var order schwab.OrderRequest
	if err := dec.Decode(&order); err != nil {
		if err == io.EOF {
			return nil, errors.NewValidationError("Invalid order request", "body is required")
		}
		return nil, errors.NewValidationError("Invalid order request", err.Error())
	}
	if dec.More() {
		return nil, errors.NewValidationError("Invalid order request", "body must hold a single JSON object")
	}
	return &order, nil
}
