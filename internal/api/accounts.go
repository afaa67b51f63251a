package api

import (
	"fmt"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"schwabgw/internal/credstore"
	"schwabgw/internal/errors"
	"schwabgw/internal/logger"
	"schwabgw/internal/schwab"
)

// LoginResponse carries the URL the user opens to grant access.
type LoginResponse struct {
	AuthorizeURL string `json:"authorize_url"`
}

// CallbackResponse reports the exchange result and what was persisted.
type CallbackResponse struct {
	State      *string             `json:"state"`
	Tokens     schwab.TokenPayload `json:"tokens"`
	Saved      bool                `json:"saved"`
	SaveError  *string             `json:"save_error"`
	EnvUpdated bool                `json:"env_updated"`
	EnvError   *string             `json:"env_error"`
}

// AccountsHandler handles the OAuth flow and account reads
type AccountsHandler struct {
	creds     schwab.Credentials
	brokerage Brokerage
	exchanger CodeExchanger
	sink      credstore.Sink
	rotator   credstore.Rotator
	log       logger.Logger
	now       func() time.Time
}

// NewAccountsHandler creates a new accounts handler
func NewAccountsHandler(creds schwab.Credentials, brokerage Brokerage, exchanger CodeExchanger,
	sink credstore.Sink, rotator credstore.Rotator, log logger.Logger) *AccountsHandler {
	return &AccountsHandler{
		creds:     creds,
		brokerage: brokerage,
		exchanger: exchanger,
		sink:      sink,
		rotator:   rotator,
		log:       log,
		now:       time.Now,
	}
}

const loginPage = `<!DOCTYPE html>
<html>
<head><title>Schwab login</title></head>
<body>
<p><a href="%s">Authorize with Schwab</a></p>
</body>
</html>
`

// Login returns the authorization URL.
// @Summary Authorization URL
// @Description Returns the Schwab authorize URL as an HTML link or JSON.
// @Tags Accounts
// @Produce json,html
// @Param format query string false "html (default) or json"
// @Success 200 {object} LoginResponse
// @Router /accounts/login [get]
func (h *AccountsHandler) Login(c *gin.Context) {
	authorizeURL := schwab.AuthorizeURL(h.creds)

	if strings.EqualFold(c.DefaultQuery("format", "html"), "json") {
		c.JSON(http.StatusOK, LoginResponse{AuthorizeURL: authorizeURL})
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8",
		[]byte(fmt.Sprintf(loginPage, html.EscapeString(authorizeURL))))
}

// Callback exchanges the authorization code and persists the result.
// Persistence is best-effort: failures are reported, never fatal.
// @Summary OAuth callback
// @Tags Accounts
// @Produce json
// @Param code query string true "Authorization code"
// @Param state query string false "Opaque state"
// @Success 200 {object} CallbackResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /accounts/callback [get]
func (h *AccountsHandler) Callback(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		fail(c, errors.NewValidationError("Missing authorization code", "code is required"))
		return
	}

	var state *string
	if s, ok := c.GetQuery("state"); ok {
		state = &s
	}

	ctx := c.Request.Context()
	tokens, err := h.exchanger.ExchangeAuthorizationCode(ctx, code, deref(state))
	if err != nil {
		fail(c, err)
		return
	}

	resp := CallbackResponse{State: state, Tokens: tokens}
	log := h.log.WithContext(ctx)

	rec := credstore.TokenRecord{Code: code, State: state, Tokens: tokens, SavedAt: h.now().UTC()}
	if err := h.sink.Save(ctx, rec); err != nil {
		warn := errors.NewPersistenceWarning("save token record", err)
		log.Warn(warn.Message, "error_code", warn.Code, "details", warn.Details)
		resp.SaveError = &warn.Details
	} else {
		resp.Saved = true
	}

	updated, err := h.rotator.RotateRefreshToken(ctx, tokens.RefreshToken())
	if err != nil {
		warn := errors.NewPersistenceWarning("rotate refresh token", err)
		log.Warn(warn.Message, "error_code", warn.Code, "details", warn.Details)
		resp.EnvError = &warn.Details
	}
	resp.EnvUpdated = updated

	c.JSON(http.StatusOK, resp)
}

// Balances returns the upstream balances document as-is.
// @Summary Account balances
// @Tags Accounts
// @Produce json
// @Param account_id path string true "Account hash"
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} errors.ErrorResponse
// @Failure 502 {object} errors.ErrorResponse
// @Router /accounts/{account_id}/balances [get]
func (h *AccountsHandler) Balances(c *gin.Context) {
	result, err := h.brokerage.GetAccountBalances(c.Request.Context(), c.Param("account_id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
