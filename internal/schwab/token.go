package schwab

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/singleflight"

	"schwabgw/internal/errors"
	"schwabgw/internal/logger"
)

// ExpiryBuffer is subtracted from the advertised token lifetime so a token
// is treated as stale before the upstream actually expires it.
const ExpiryBuffer = 60 * time.Second

// DefaultTimeout applies to every upstream call unless overridden.
const DefaultTimeout = 30 * time.Second

// Token refresh outcomes reported to the observer.
const (
	RefreshSuccess  = "success"
	RefreshRejected = "rejected"
	RefreshError    = "error"
)

// TokenPayload is the token endpoint's JSON object, kept verbatim.
type TokenPayload map[string]any

// RefreshToken returns the refresh_token field, or "" when absent.
func (p TokenPayload) RefreshToken() string {
	s, _ := p["refresh_token"].(string)
	return s
}

// AccessToken returns the access_token field, or "" when absent.
func (p TokenPayload) AccessToken() string {
	s, _ := p["access_token"].(string)
	return s
}

// ExpiresIn returns expires_in as a duration. Missing or malformed values give 0.
func (p TokenPayload) ExpiresIn() time.Duration {
	var secs float64
	switch v := p["expires_in"].(type) {
	case json.Number:
		secs, _ = v.Float64()
	case float64:
		secs = v
	case int:
		secs = float64(v)
	case string:
		secs, _ = strconv.ParseFloat(v, 64)
	}
	return time.Duration(secs * float64(time.Second))
}

// tokenState is replaced wholesale; either both fields change or neither does.
type tokenState struct {
	accessToken string
	expiresAt   time.Time
}

// TokenManager owns the access token for one credential set and
// refreshes it on demand. Safe for concurrent use.
type TokenManager struct {
	creds   Credentials
	http    *resty.Client
	now     func() time.Time
	observe func(outcome string)
	log     logger.Logger

	mu    sync.RWMutex
	state tokenState

	group singleflight.Group
}

// TokenOption configures a TokenManager.
type TokenOption func(*TokenManager)

// WithHTTPClient sets the resty client used for the token endpoint.
func WithHTTPClient(c *resty.Client) TokenOption {
	return func(m *TokenManager) { m.http = c }
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) TokenOption {
	return func(m *TokenManager) { m.now = now }
}

// WithTokenObserver receives the outcome of every refresh attempt.
func WithTokenObserver(fn func(outcome string)) TokenOption {
	return func(m *TokenManager) { m.observe = fn }
}

// WithLogger sets the logger. Defaults to the global logger.
func WithLogger(l logger.Logger) TokenOption {
	return func(m *TokenManager) { m.log = l }
}

// NewTokenManager creates a manager holding no token yet.
func NewTokenManager(creds Credentials, opts ...TokenOption) *TokenManager {
	m := &TokenManager{
		creds: creds.normalized(),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.http == nil {
		m.http = newRestyClient(DefaultTimeout)
	}
	if m.log == nil {
		m.log = logger.GetGlobalLogger()
	}
	return m
}

func newRestyClient(timeout time.Duration) *resty.Client {
	return resty.New().
		SetTimeout(timeout).
		SetRetryCount(0)
}

// Snapshot returns the held token and its computed expiry.
func (m *TokenManager) Snapshot() (string, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.accessToken, m.state.expiresAt
}

func (m *TokenManager) current() (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state.accessToken == "" || !m.now().Before(m.state.expiresAt) {
		return "", false
	}
	return m.state.accessToken, true
}

// EnsureToken returns a usable access token, refreshing first when none is
// held or the held one is past its buffered expiry. Callers arriving while a
// refresh is in flight wait for that refresh instead of starting another.
func (m *TokenManager) EnsureToken(ctx context.Context) (string, error) {
	if tok, ok := m.current(); ok {
		return tok, nil
	}

	// The shared refresh must not die with the first caller's context.
	refreshCtx := context.WithoutCancel(ctx)
	ch := m.group.DoChan("refresh", func() (interface{}, error) {
		if tok, ok := m.current(); ok {
			return tok, nil
		}
		st, err := m.refresh(refreshCtx)
		if err != nil {
			return "", err
		}
		return st.accessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Refresh unconditionally performs the refresh_token grant.
func (m *TokenManager) Refresh(ctx context.Context) error {
	_, err := m.refresh(ctx)
	return err
}

func (m *TokenManager) refresh(ctx context.Context) (tokenState, error) {
	issuedAt := m.now()

	payload, err := m.postToken(ctx, map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": m.creds.RefreshToken,
	})
	if err != nil {
		m.report(err)
		m.log.Warn("Token refresh failed", "error", err.Error())
		return tokenState{}, err
	}

	st := tokenState{
		accessToken: payload.AccessToken(),
		expiresAt:   issuedAt.Add(payload.ExpiresIn() - ExpiryBuffer),
	}

	m.mu.Lock()
	m.state = st
	m.mu.Unlock()

	m.report(nil)
	m.log.Info("Access token refreshed", "expires_at", st.expiresAt.UTC().Format(time.RFC3339))
	return st, nil
}

// ExchangeAuthorizationCode trades an authorization code for a token payload.
// The payload is returned as received and the held token is left untouched.
func (m *TokenManager) ExchangeAuthorizationCode(ctx context.Context, code, state string) (TokenPayload, error) {
	if code == "" {
		return nil, errors.NewValidationError("Missing authorization code", "code is required")
	}

	form := map[string]string{
		"grant_type":   "authorization_code",
		"code":         code,
		"redirect_uri": m.creds.RedirectURI,
	}
	if m.creds.CodeVerifier != "" {
		form["code_verifier"] = m.creds.CodeVerifier
	}

	payload, err := m.postToken(ctx, form)
	if err != nil {
		m.log.Warn("Authorization code exchange failed", "state", state, "error", err.Error())
		return nil, err
	}
	m.log.Info("Authorization code exchanged", "state", state)
	return payload, nil
}

func (m *TokenManager) postToken(ctx context.Context, form map[string]string) (TokenPayload, error) {
	resp, err := m.http.R().
		SetContext(ctx).
		SetBasicAuth(m.creds.ClientID, m.creds.ClientSecret).
		SetHeader("Accept", "application/json").
		SetFormData(form).
		Post(m.creds.BaseURL + "/oauth/token")
	if err != nil {
		return nil, errors.NewUpstreamAuthError(http.StatusBadGateway, err.Error()).
			WithContext("transport", true)
	}

	body := resp.Body()
	if !resp.IsSuccess() {
		return nil, errors.NewUpstreamAuthError(resp.StatusCode(), string(body))
	}

	var payload TokenPayload
	if err := decodeJSON(body, &payload); err != nil || payload == nil {
		return nil, errors.NewUpstreamAuthError(resp.StatusCode(), string(body))
	}
	if grant := form["grant_type"]; grant == "refresh_token" && payload.AccessToken() == "" {
		return nil, errors.NewUpstreamAuthError(resp.StatusCode(), string(body))
	}
	return payload, nil
}

func (m *TokenManager) report(err error) {
	if m.observe == nil {
		return
	}
	switch {
	case err == nil:
		m.observe(RefreshSuccess)
	case isTransport(err):
		m.observe(RefreshError)
	default:
		m.observe(RefreshRejected)
	}
}

func isTransport(err error) bool {
	appErr := errors.GetAppError(err)
	if appErr == nil {
		return true
	}
	transport, _ := appErr.Context["transport"].(bool)
	return transport
}

// decodeJSON keeps numbers as json.Number so passthrough bodies are not rounded.
func decodeJSON(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(v)
}
