package engine

import (
	"encoding/base64"
	"net/url"
	"strings"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
	"github.com/unkn0wn-root/reqstage/internal/transport"
)

// applyAuth decorates the outgoing request for the non-token auth
// kinds. OAuth kinds never reach here; they go through the manager.
func applyAuth(req *transport.Request, cfg reqmodel.AuthConfig) error {
	switch cfg := cfg.(type) {
	case reqmodel.BasicAuth:
		raw := base64.StdEncoding.EncodeToString([]byte(cfg.Username + ":" + cfg.Password))
		req.Headers.Set("Authorization", "Basic "+raw)
	case reqmodel.BearerAuth:
		prefix := strings.TrimSpace(cfg.Prefix)
		if prefix == "" {
			prefix = "Bearer"
		}
		req.Headers.Set("Authorization", prefix+" "+cfg.Token)
	case reqmodel.APIKeyAuth:
		if strings.TrimSpace(cfg.Name) == "" {
			return errdef.New(errdef.CodeHTTP, "api key auth needs a parameter name")
		}
		if cfg.Placement == reqmodel.APIKeyInQuery {
			u, err := url.Parse(req.URL)
			if err != nil {
				return errdef.Wrap(errdef.CodeHTTP, err, "apply api key")
			}
			q := u.Query()
			q.Set(cfg.Name, cfg.Value)
			u.RawQuery = q.Encode()
			req.URL = u.String()
		} else {
			req.Headers.Set(cfg.Name, cfg.Value)
		}
	case reqmodel.ManualHeadersAuth:
		for _, h := range cfg.Headers {
			if h.Enabled && strings.TrimSpace(h.Name) != "" {
				req.Headers.Set(h.Name, h.Value)
			}
		}
	}
	return nil
}

func applyToken(req *transport.Request, token tokens.Token) {
	typ := token.TokenType
	if typ == "" {
		typ = "Bearer"
	}
	req.Headers.Set("Authorization", typ+" "+token.AccessToken)
}
