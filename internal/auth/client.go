package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/VectorInstitute/aieng-auth/internal/config"
	"github.com/VectorInstitute/aieng-auth/internal/metrics"
	"github.com/VectorInstitute/aieng-auth/internal/pkce"
	"github.com/VectorInstitute/aieng-auth/internal/store"
	"github.com/VectorInstitute/aieng-auth/internal/token"
)

// Endpoints are the provider URLs the client talks to. The provider is
// fixed; overriding these exists for tests.
type Endpoints struct {
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	RevokeURL   string
}

// GoogleEndpoints returns the production endpoint set.
func GoogleEndpoints() Endpoints {
	return Endpoints{
		AuthURL:     google.Endpoint.AuthURL,
		TokenURL:    google.Endpoint.TokenURL,
		UserInfoURL: "https://www.googleapis.com/oauth2/v2/userinfo",
		RevokeURL:   "https://oauth2.googleapis.com/revoke",
	}
}

// UserInfo is the normalized profile shape.
type UserInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"emailVerified"`
	Name          string `json:"name"`
	GivenName     string `json:"givenName"`
	FamilyName    string `json:"familyName"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
	HostedDomain  string `json:"hostedDomain,omitempty"`
}

// Client drives the three-legged authorization-code + PKCE flow: build the
// authorization redirect, validate the callback, exchange the code, refresh
// and revoke tokens, and fetch the user profile.
type Client struct {
	cfg        config.AuthConfig
	endpoints  Endpoints
	httpClient *http.Client
	pkce       *pkce.Generator
	transient  TransientStore
	logger     *log.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithEndpoints overrides the provider endpoints.
func WithEndpoints(e Endpoints) ClientOption {
	return func(c *Client) { c.endpoints = e }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = h }
}

// WithPKCEGenerator overrides the PKCE generator.
func WithPKCEGenerator(g *pkce.Generator) ClientOption {
	return func(c *Client) { c.pkce = g }
}

// WithLogger sets the client logger.
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a Client for cfg, keeping transient login state in
// transient.
func NewClient(cfg config.AuthConfig, transient TransientStore, opts ...ClientOption) (*Client, error) {
	if cfg.ClientID == "" {
		return nil, E(KindInvalidConfig, "client ID is required", nil)
	}
	if cfg.RedirectURL == "" {
		return nil, E(KindInvalidConfig, "redirect URL is required", nil)
	}
	if transient == nil {
		return nil, E(KindInvalidConfig, "transient state store is required", nil)
	}

	c := &Client{
		cfg:        cfg,
		endpoints:  GoogleEndpoints(),
		httpClient: http.DefaultClient,
		pkce:       pkce.New(),
		transient:  transient,
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Login starts a fresh authorization attempt: it generates a PKCE pair and
// a state nonce, persists both into transient storage (overwriting any
// in-flight attempt) and returns the authorization URL the caller must
// navigate to.
func (c *Client) Login(ctx context.Context) (string, error) {
	challenge, err := c.pkce.Generate()
	if err != nil {
		return "", E(KindPKCEError, "generating PKCE challenge", err)
	}

	state, err := c.pkce.RandomString(32)
	if err != nil {
		return "", E(KindPKCEError, "generating state nonce", err)
	}

	if err := c.transient.Set(verifierKey, challenge.Verifier); err != nil {
		return "", E(KindStorageError, "persisting PKCE verifier", err)
	}
	if err := c.transient.Set(stateKey, state); err != nil {
		return "", E(KindStorageError, "persisting state nonce", err)
	}

	q := url.Values{}
	q.Set("client_id", c.cfg.ClientID)
	q.Set("redirect_uri", c.cfg.RedirectURL)
	q.Set("response_type", "code")
	q.Set("scope", c.cfg.ScopeString())
	q.Set("code_challenge", challenge.Challenge)
	q.Set("code_challenge_method", challenge.Method)
	q.Set("state", state)
	q.Set("access_type", "offline")
	// Forces the provider to reissue a refresh token on every consent.
	q.Set("prompt", "consent")

	metrics.LoginsStarted.Inc()
	return c.endpoints.AuthURL + "?" + q.Encode(), nil
}

// HandleCallback validates the provider redirect and completes the flow:
// error surfacing, state (CSRF) check, code presence, verifier lookup, code
// exchange and, when configured, email-domain enforcement. Transient state
// is deleted only after every step has succeeded; failure paths leave it in
// place.
func (c *Client) HandleCallback(ctx context.Context, callbackURL string) (*store.Tokens, error) {
	tokens, err := c.handleCallback(ctx, callbackURL)
	if err != nil {
		metrics.Callbacks.WithLabelValues(string(KindOf(err))).Inc()
		return nil, err
	}
	metrics.Callbacks.WithLabelValues(metrics.ResultSuccess).Inc()
	return tokens, nil
}

func (c *Client) handleCallback(ctx context.Context, callbackURL string) (*store.Tokens, error) {
	u, err := url.Parse(callbackURL)
	if err != nil {
		return nil, E(KindCallbackError, "parsing callback URL", err)
	}
	q := u.Query()

	if errCode := q.Get("error"); errCode != "" {
		return nil, E(KindAuthFailed, fmt.Sprintf("authorization rejected: %s", errCode), nil).
			WithDetails(map[string]any{"provider_error": errCode})
	}

	storedState, ok, err := c.transient.Get(stateKey)
	if err != nil {
		return nil, E(KindStorageError, "reading stored state nonce", err)
	}
	if !ok || storedState == "" {
		return nil, E(KindInvalidState, "no state nonce found for this login attempt", nil)
	}
	if cbState := q.Get("state"); cbState == "" || cbState != storedState {
		return nil, E(KindInvalidState, "state nonce mismatch", nil)
	}

	code := q.Get("code")
	if code == "" {
		return nil, E(KindAuthFailed, "authorization code missing from callback", nil)
	}

	verifier, ok, err := c.transient.Get(verifierKey)
	if err != nil {
		return nil, E(KindStorageError, "reading stored PKCE verifier", err)
	}
	if !ok || verifier == "" {
		return nil, E(KindPKCEError, "no PKCE verifier found for this login attempt", nil)
	}

	tokens, err := c.ExchangeCode(ctx, code, verifier)
	if err != nil {
		return nil, err
	}

	if len(c.cfg.AllowedEmailDomains) > 0 {
		if err := c.enforceEmailDomain(ctx, tokens.AccessToken); err != nil {
			return nil, err
		}
	}

	// Cleanup happens only on this fully-successful path, and a cleanup
	// failure must not undo the completed login.
	if err := c.transient.Delete(verifierKey); err != nil {
		c.logger.Printf("auth: failed to delete transient verifier: %v", err)
	}
	if err := c.transient.Delete(stateKey); err != nil {
		c.logger.Printf("auth: failed to delete transient state: %v", err)
	}

	return tokens, nil
}

// enforceEmailDomain fetches the profile for the fresh access token and
// checks its email against the configured allow-list.
func (c *Client) enforceEmailDomain(ctx context.Context, accessToken string) error {
	info, err := c.GetUserInfo(ctx, accessToken)
	if err != nil {
		return err
	}

	if info.Email == "" {
		return E(KindAuthFailed, "email not available in user profile", nil)
	}
	at := strings.LastIndex(info.Email, "@")
	if at < 0 || at == len(info.Email)-1 {
		return E(KindAuthFailed, fmt.Sprintf("invalid email format: %s", info.Email), nil)
	}
	domain := info.Email[at+1:]

	for _, allowed := range c.cfg.AllowedEmailDomains {
		if strings.EqualFold(domain, allowed) {
			return nil
		}
	}
	return E(KindAuthFailed,
		fmt.Sprintf("email domain %q is not allowed (permitted: %s)",
			domain, strings.Join(c.cfg.AllowedEmailDomains, ", ")),
		nil).WithDetails(map[string]any{
		"domain":  domain,
		"allowed": c.cfg.AllowedEmailDomains,
	})
}

// tokenEndpointError is the parsed shape of a token-endpoint error body.
type tokenEndpointError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

// ExchangeCode trades an authorization code and its PKCE verifier for a
// token set at the token endpoint.
func (c *Client) ExchangeCode(ctx context.Context, code, verifier string) (*store.Tokens, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", c.cfg.RedirectURL)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("code_verifier", verifier)

	tokens, err := c.postTokenEndpoint(ctx, "authorization_code", form, KindAuthFailed, "code exchange failed")
	if err != nil {
		metrics.TokenExchanges.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	metrics.TokenExchanges.WithLabelValues(metrics.ResultSuccess).Inc()
	return tokens, nil
}

// RefreshTokens trades a refresh token for a new token set. When the
// provider omits a refresh token from the response, the old one is carried
// forward; providers do not always reissue it.
func (c *Client) RefreshTokens(ctx context.Context, refreshToken string) (*store.Tokens, error) {
	if refreshToken == "" {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultError).Inc()
		return nil, E(KindTokenRefreshFailed, "no refresh token available", nil)
	}

	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)

	tokens, err := c.postTokenEndpoint(ctx, "refresh_token", form, KindTokenRefreshFailed, "token refresh failed")
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues(metrics.ResultError).Inc()
		return nil, err
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = refreshToken
	}
	metrics.TokenRefreshes.WithLabelValues(metrics.ResultSuccess).Inc()
	return tokens, nil
}

// postTokenEndpoint performs a form POST to the token endpoint and parses
// the response. Non-2xx responses become failKind errors carrying the error
// body's description when one parses, the HTTP status text otherwise.
func (c *Client) postTokenEndpoint(ctx context.Context, grantType string, form url.Values, failKind Kind, failMsg string) (*store.Tokens, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.TokenURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, E(failKind, failMsg, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, E(KindNetworkError, "token endpoint request failed", err)
	}
	defer resp.Body.Close()
	metrics.ExchangeDuration.WithLabelValues(grantType).Observe(time.Since(start).Seconds())

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, E(KindNetworkError, "reading token endpoint response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, E(failKind, tokenErrorMessage(failMsg, resp.StatusCode, body), nil).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var tokens store.Tokens
	if err := json.Unmarshal(body, &tokens); err != nil {
		return nil, E(failKind, "parsing token endpoint response", err)
	}
	if tokens.TokenType == "" {
		tokens.TokenType = "Bearer"
	}
	return &tokens, nil
}

// tokenErrorMessage prefers the error body's description; a body that does
// not parse as JSON falls back to the HTTP status text.
func tokenErrorMessage(prefix string, status int, body []byte) string {
	var te tokenEndpointError
	if err := json.Unmarshal(body, &te); err == nil && te.Description != "" {
		return fmt.Sprintf("%s: %s", prefix, te.Description)
	}
	return fmt.Sprintf("%s: %s", prefix, http.StatusText(status))
}

// googleProfile is the provider-specific userinfo response shape.
type googleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
	Locale        string `json:"locale"`
	HD            string `json:"hd"`
}

// GetUserInfo fetches the profile for accessToken and maps it onto the
// normalized user shape.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoints.UserInfoURL, nil)
	if err != nil {
		return nil, E(KindUserFetchError, "building userinfo request", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UserInfoRequests.WithLabelValues(metrics.ResultError).Inc()
		return nil, E(KindNetworkError, "userinfo request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UserInfoRequests.WithLabelValues(metrics.ResultError).Inc()
		return nil, E(KindUserFetchError,
			fmt.Sprintf("userinfo fetch failed: %s", http.StatusText(resp.StatusCode)), nil).
			WithDetails(map[string]any{"status": resp.StatusCode})
	}

	var profile googleProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		metrics.UserInfoRequests.WithLabelValues(metrics.ResultError).Inc()
		return nil, E(KindUserFetchError, "parsing userinfo response", err)
	}

	metrics.UserInfoRequests.WithLabelValues(metrics.ResultSuccess).Inc()
	return &UserInfo{
		Sub:           profile.ID,
		Email:         profile.Email,
		EmailVerified: profile.VerifiedEmail,
		Name:          profile.Name,
		GivenName:     profile.GivenName,
		FamilyName:    profile.FamilyName,
		Picture:       profile.Picture,
		Locale:        profile.Locale,
		HostedDomain:  profile.HD,
	}, nil
}

// RevokeToken asks the provider to revoke token. Revocation is best-effort:
// the response status is ignored and failures are only logged, so local
// logout always succeeds.
func (c *Client) RevokeToken(ctx context.Context, tok string) {
	if tok == "" {
		return
	}

	form := url.Values{}
	form.Set("token", tok)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoints.RevokeURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		c.logger.Printf("auth: building revoke request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("auth: token revocation failed: %v", err)
		return
	}
	resp.Body.Close()
}

// IsTokenValid reports whether tok decodes and is not expired. Any failure
// reports invalid rather than propagating.
func (c *Client) IsTokenValid(tok string) bool {
	return tok != "" && !token.IsExpired(tok, 0)
}

// DecodeAccessToken decodes tok's payload without verifying its signature.
func (c *Client) DecodeAccessToken(tok string) (token.Claims, error) {
	claims, err := token.Decode(tok)
	if err != nil {
		return nil, E(KindInvalidToken, "decoding token", err)
	}
	return claims, nil
}
