package oauth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"runtime"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
)

const (
	verifierBytes = 64
	stateBytes    = 24
)

// launchBrowser is swapped out by tests to simulate the user's browser.
var launchBrowser = openBrowser

func (m *Manager) authorizationCodeToken(ctx context.Context, cfg reqmodel.AuthorizationCodeAuth) (tokens.Token, error) {
	if cfg.AuthURL == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "authorization code grant needs an auth url")
	}
	if cfg.TokenURL == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "authorization code grant needs a token url")
	}
	if cfg.ClientID == "" {
		return tokens.Token{}, errdef.New(errdef.CodeOAuth, "authorization code grant needs a client id")
	}

	state, err := randString(stateBytes)
	if err != nil {
		return tokens.Token{}, errdef.Wrap(errdef.CodeOAuth, err, "generate state")
	}
	var verifier, challenge string
	if cfg.UsePKCE {
		verifier, err = randString(verifierBytes)
		if err != nil {
			return tokens.Token{}, errdef.Wrap(errdef.CodeOAuth, err, "generate code verifier")
		}
		challenge = buildChallenge(verifier)
	}

	srv, err := startCallback(m.callbackRedirect(cfg.RedirectURL), state, flowModeCode)
	if err != nil {
		return tokens.Token{}, err
	}
	defer srv.shutdown()

	link, err := buildAuthURL(cfg, srv.redirectURL(), state, challenge)
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
	code := values.Get("code")
	if code == "" {
		return tokens.Token{}, errdef.New(errdef.CodeAuth, "authorization response missing code")
	}

	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", srv.redirectURL())
	if cfg.UsePKCE {
		form.Set("code_verifier", verifier)
	}
	return m.requestToken(ctx, cfg.TokenURL, form, cfg.ClientID, cfg.ClientSecret)
}

func buildAuthURL(cfg reqmodel.AuthorizationCodeAuth, redirect, state, challenge string) (string, error) {
	u, err := url.Parse(cfg.AuthURL)
	if err != nil {
		return "", errdef.Wrap(errdef.CodeOAuth, err, "parse auth url")
	}
	q := u.Query()
	q.Set("response_type", "code")
	q.Set("client_id", cfg.ClientID)
	q.Set("redirect_uri", redirect)
	q.Set("state", state)
	if cfg.Scope != "" {
		q.Set("scope", cfg.Scope)
	}
	if challenge != "" {
		q.Set("code_challenge", challenge)
		q.Set("code_challenge_method", "S256")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func buildChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func randString(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func openBrowser(link string) error {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", link)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", link)
	default:
		cmd = exec.Command("xdg-open", link)
	}
	return cmd.Start()
}
