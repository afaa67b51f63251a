package schwab

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is the production Schwab API root.
const DefaultBaseURL = "https://api.schwabapi.com"

// Credentials identify the OAuth2 client and the long-lived refresh token.
// A Credentials value is never modified once handed to a TokenManager.
type Credentials struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	RefreshToken string
	// CodeVerifier is the PKCE verifier sent on code exchange. Optional.
	CodeVerifier string
	BaseURL      string
}

func (c Credentials) normalized() Credentials {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	return c
}

// apiRoot strips a trailing /v1 so versioned sub-APIs such as marketdata
// can be addressed from a trader base URL.
func (c Credentials) apiRoot() string {
	return strings.TrimSuffix(c.BaseURL, "/v1")
}

// AuthorizeURL builds the browser login link for the authorization code flow.
func AuthorizeURL(creds Credentials) string {
	creds = creds.normalized()
	q := "response_type=code" +
		"&client_id=" + url.QueryEscape(creds.ClientID) +
		"&redirect_uri=" + url.QueryEscape(creds.RedirectURI)
	return creds.BaseURL + "/oauth/authorize?" + q
}
