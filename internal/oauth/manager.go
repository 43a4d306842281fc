// Package oauth turns auth configs into access tokens. Token endpoint
// grants (client credentials, password, refresh) carry errdef.CodeOAuth
// on failure; the interactive authorization step of the browser grants
// carries errdef.CodeAuth so callers can attribute the stage that broke.
package oauth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
	"github.com/unkn0wn-root/reqstage/internal/transport"
)

const (
	defaultFlowTimeout  = 5 * time.Minute
	defaultPollInterval = 500 * time.Millisecond
)

// SendFunc performs the HTTP exchange for token requests. The engine
// passes the active transport's Send so token traffic rides the same
// channel as request traffic.
type SendFunc func(ctx context.Context, req transport.Request) (*transport.Result, error)

type Manager struct {
	cache *tokens.Cache
	send  SendFunc

	mu       sync.Mutex
	inflight map[string]*call

	logf         func(format string, args ...any)
	now          func() time.Time
	flowTimeout  time.Duration
	pollInterval time.Duration

	callbackHost string
	callbackPort int
}

type call struct {
	done  chan struct{}
	token tokens.Token
	err   error
}

func NewManager(cache *tokens.Cache, send SendFunc) *Manager {
	if send == nil {
		send = transport.NewDirect(transport.DirectOptions{FollowRedirects: true}).Send
	}
	return &Manager{
		cache:        cache,
		send:         send,
		inflight:     make(map[string]*call),
		logf:         log.Printf,
		now:          time.Now,
		flowTimeout:  defaultFlowTimeout,
		pollInterval: defaultPollInterval,
	}
}

// SetSendFunc swaps the HTTP exchange used for token requests. Passing
// nil restores a plain direct transport.
func (m *Manager) SetSendFunc(fn SendFunc) {
	if fn == nil {
		fn = transport.NewDirect(transport.DirectOptions{FollowRedirects: true}).Send
	}
	m.send = fn
}

// SetCallbackAddr sets the listener address used for browser flows when
// the auth config does not pin its own redirect URL. Port 0 keeps the
// ephemeral-port behaviour.
func (m *Manager) SetCallbackAddr(host string, port int) {
	m.callbackHost = strings.TrimSpace(host)
	m.callbackPort = port
}

// Acquire returns a usable token for cacheKey, running the configured
// grant when the cache holds nothing fresh. Concurrent calls for the
// same key share one flight.
func (m *Manager) Acquire(ctx context.Context, cacheKey string, cfg reqmodel.AuthConfig) (tokens.Token, error) {
	if !reqmodel.IsOAuth(cfg) {
		kind := reqmodel.AuthKind("")
		if cfg != nil {
			kind = cfg.Kind()
		}
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "auth kind %q does not issue tokens", kind)
	}
	if token, ok := m.cache.Get(cacheKey); ok && !m.cache.NeedsRefresh(cacheKey) {
		return token, nil
	}

	m.mu.Lock()
	if c, ok := m.inflight[cacheKey]; ok {
		m.mu.Unlock()
		select {
		case <-c.done:
			return c.token, c.err
		case <-ctx.Done():
			return tokens.Token{}, errdef.Wrap(errdef.CodeCanceled, ctx.Err(), "wait for token")
		}
	}
	c := &call{done: make(chan struct{})}
	m.inflight[cacheKey] = c
	m.mu.Unlock()

	c.token, c.err = m.obtain(ctx, cacheKey, cfg)
	close(c.done)

	m.mu.Lock()
	delete(m.inflight, cacheKey)
	m.mu.Unlock()
	return c.token, c.err
}

func (m *Manager) obtain(ctx context.Context, cacheKey string, cfg reqmodel.AuthConfig) (tokens.Token, error) {
	// Another flight may have finished between the fast path and here.
	if token, ok := m.cache.Get(cacheKey); ok {
		if !m.cache.NeedsRefresh(cacheKey) {
			return token, nil
		}
		if token.RefreshToken != "" {
			fresh, err := m.refresh(ctx, cfg, token)
			if err == nil {
				m.cache.Set(cacheKey, fresh)
				return fresh, nil
			}
			m.logf("oauth: refresh for %s failed, running full grant: %v", cacheKey, err)
		}
	}

	var (
		token tokens.Token
		err   error
	)
	switch cfg := cfg.(type) {
	case reqmodel.ClientCredentialsAuth:
		token, err = m.clientCredentialsToken(ctx, cfg)
	case reqmodel.PasswordAuth:
		token, err = m.passwordToken(ctx, cfg)
	case reqmodel.AuthorizationCodeAuth:
		token, err = m.authorizationCodeToken(ctx, cfg)
	case reqmodel.ImplicitAuth:
		token, err = m.implicitToken(ctx, cfg)
	default:
		err = errdef.New(errdef.CodeOAuth, "auth kind %q does not issue tokens", cfg.Kind())
	}
	if err != nil {
		return tokens.Token{}, err
	}
	m.cache.Set(cacheKey, token)
	return token, nil
}

func (m *Manager) clientCredentialsToken(ctx context.Context, cfg reqmodel.ClientCredentialsAuth) (tokens.Token, error) {
	if cfg.TokenURL == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "client credentials grant needs a token url")
	}
	if cfg.ClientID == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "client credentials grant needs a client id")
	}
	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}
	if cfg.Audience != "" {
		form.Set("audience", cfg.Audience)
	}
	return m.requestToken(ctx, cfg.TokenURL, form, cfg.ClientID, cfg.ClientSecret)
}

func (m *Manager) passwordToken(ctx context.Context, cfg reqmodel.PasswordAuth) (tokens.Token, error) {
	if cfg.TokenURL == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "password grant needs a token url")
	}
	if cfg.Username == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "password grant needs a username")
	}
	form := url.Values{}
	form.Set("grant_type", "password")
	form.Set("username", cfg.Username)
	form.Set("password", cfg.Password)
	if cfg.Scope != "" {
		form.Set("scope", cfg.Scope)
	}
	return m.requestToken(ctx, cfg.TokenURL, form, cfg.ClientID, cfg.ClientSecret)
}

func (m *Manager) refresh(ctx context.Context, cfg reqmodel.AuthConfig, stale tokens.Token) (tokens.Token, error) {
	endpoint, clientID, clientSecret, ok := tokenEndpoint(cfg)
	if !ok || endpoint == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "no token url to refresh against")
	}
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", stale.RefreshToken)
	fresh, err := m.requestToken(ctx, endpoint, form, clientID, clientSecret)
	if err != nil {
		return tokens.Token{}, err
	}
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = stale.RefreshToken
	}
	return fresh, nil
}

// requestToken posts a form-encoded grant to the token endpoint. A
// client secret selects HTTP basic auth; a bare client id travels in
// the body, which public clients require.
func (m *Manager) requestToken(ctx context.Context, tokenURL string, form url.Values, clientID, clientSecret string) (tokens.Token, error) {
	headers := http.Header{}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	headers.Set("Accept", "application/json")
	if clientID != "" {
		if clientSecret != "" {
			raw := base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
			headers.Set("Authorization", "Basic "+raw)
		} else {
			form.Set("client_id", clientID)
		}
	}

	res, err := m.send(ctx, transport.Request{
		Method:  http.MethodPost,
		URL:     tokenURL,
		Headers: headers,
		Body:    []byte(form.Encode()),
	})
	if err != nil {
		return tokens.Token{}, errdef.Wrap(errdef.CodeOAuth, err, "request token")
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "token endpoint returned %s: %s", res.Status, snippet(res.Body))
	}
	payload, err := parseTokenResponse(res.Body)
	if err != nil {
		return tokens.Token{}, err
	}
	if payload.Error != "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "token endpoint error %s: %s", payload.Error, payload.ErrorDesc)
	}
	if payload.AccessToken == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "token response missing access_token")
	}
	return m.buildToken(payload), nil
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	Scope        string `json:"scope"`
	ExpiresIn    int64  `json:"expires_in"`
	Error        string `json:"error"`
	ErrorDesc    string `json:"error_description"`
}

// parseTokenResponse decodes a JSON token response, falling back to the
// form encoding some older providers still emit.
func parseTokenResponse(body []byte) (tokenPayload, error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return tokenPayload{}, errdef.New(errdef.CodeOAuth, "empty token response")
	}
	var payload tokenPayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err == nil {
		return payload, nil
	}
	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return tokenPayload{}, errdef.New(errdef.CodeOAuth, "unrecognized token response: %s", snippet(body))
	}
	payload = tokenPayload{
		AccessToken:  values.Get("access_token"),
		TokenType:    values.Get("token_type"),
		RefreshToken: values.Get("refresh_token"),
		Scope:        values.Get("scope"),
		Error:        values.Get("error"),
		ErrorDesc:    values.Get("error_description"),
	}
	if raw := values.Get("expires_in"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return tokenPayload{}, errdef.New(errdef.CodeOAuth, "bad expires_in %q", raw)
		}
		payload.ExpiresIn = seconds
	}
	return payload, nil
}

func (m *Manager) buildToken(payload tokenPayload) tokens.Token {
	token := tokens.Token{
		AccessToken:  payload.AccessToken,
		RefreshToken: payload.RefreshToken,
		TokenType:    payload.TokenType,
		Scope:        payload.Scope,
	}
	if token.TokenType == "" {
		token.TokenType = "Bearer"
	}
	if payload.ExpiresIn > 0 {
		token.ExpiresAt = m.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}
	return token
}

func tokenEndpoint(cfg reqmodel.AuthConfig) (endpoint, clientID, clientSecret string, ok bool) {
	switch cfg := cfg.(type) {
	case reqmodel.ClientCredentialsAuth:
		return cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, true
	case reqmodel.PasswordAuth:
		return cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, true
	case reqmodel.AuthorizationCodeAuth:
		return cfg.TokenURL, cfg.ClientID, cfg.ClientSecret, true
	}
	return "", "", "", false
}

func snippet(body []byte) string {
	text := strings.TrimSpace(string(body))
	if len(text) > 160 {
		return text[:160] + "..."
	}
	return text
}
