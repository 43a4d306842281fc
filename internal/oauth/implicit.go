package oauth

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
)

// implicitToken runs the legacy implicit grant. The token comes back in
// the redirect fragment, so the callback page relays it with a second
// request before the flow can finish.
func (m *Manager) implicitToken(ctx context.Context, cfg reqmodel.ImplicitAuth) (tokens.Token, error) {
	if cfg.AuthURL == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "implicit grant needs an auth url")
	}
	if cfg.ClientID == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "implicit grant needs a client id")
	}

	state, err := randString(stateBytes)
	if err != nil {
		return tokens.Token{}, errdef.Wrap(errdef.CodeOAuth, err, "generate state")
	}
	srv, err := startCallback(m.callbackRedirect(cfg.RedirectURL), state, flowModeImplicit)
	if err != nil {
		return tokens.Token{}, err
	}
	defer srv.shutdown()

	link, err := buildImplicitURL(cfg, srv.redirectURL(), state)
	if err != nil {
		return tokens.Token{}, err
	}
	if err := launchBrowser(link); err != nil {
		fmt.Fprintf(os.Stderr, "Open this URL to sign in: %s\n", link)
	}

	values, err := m.awaitCallback(ctx, srv)
	if err != nil {
		return tokens.Token{}, err
	}
	access := values.Get("access_token")
	if access == "" {
		return tokens.Token{}, errdef.New(errdef.CodeAuth, "authorization response missing access_token")
	}
	payload := tokenPayload{
		AccessToken: access,
		TokenType:   values.Get("token_type"),
		Scope:       values.Get("scope"),
	}
	if raw := values.Get("expires_in"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return tokens.Token{}, errdef.New(errdef.CodeAuth, "bad expires_in %q", raw)
		}
		payload.ExpiresIn = seconds
	}
	return m.buildToken(payload), nil
}

func buildImplicitURL(cfg reqmodel.ImplicitAuth, redirect, state string) (string, error) {
	u, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeOAuth, err, "parse auth url")
	}
	q := u.Query()
	q.Set("response_type", "token")
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", redirect)
	q.Set("state", state)
	if cfg.Scope != "" {
		q.Set("scope", cfg.Scope)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
