// Package curl renders request definitions as runnable curl commands.
package curl

import (
	"net/http"
	"net/url"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
)

// Command renders req as a single-line curl invocation. Variables must
// already be resolved. Static auth kinds are inlined; OAuth kinds are
// skipped because their tokens only exist at run time.
func Command(req *reqmodel.Request, auth reqmodel.AuthConfig) (string, error) {
	if req == nil {
		return "", errdef.New(errdef.CodeHTTP, "no request to render")
	}
	rawURL := strings.TrimSpace(req.URL)
	if rawURL == "" {
		return "", errdef.New(errdef.CodeHTTP, "request has no url")
	}

	headers := http.Header{}
	for _, h := range req.EnabledHeaders() {
		headers.Add(h.Name, h.Value)
	}

	var basicUser string
	switch cfg := auth.(type) {
	case reqmodel.BasicAuth:
		basicUser = cfg.Username + ":" + cfg.Password
	case reqmodel.BearerAuth:
		prefix := strings.TrimSpace(cfg.Prefix)
		if prefix == "" {
			prefix = "Bearer"
		}
		headers.Set("Authorization", prefix+" "+cfg.Token)
	case reqmodel.APIKeyAuth:
		if strings.TrimSpace(cfg.Name) == "" {
			return "", errdef.New(errdef.CodeHTTP, "api key auth needs a parameter name")
		}
		if cfg.Placement == reqmodel.APIKeyInQuery {
			u, err := url.Parse(rawURL)
			if err != nil {
				return "", errdef.Wrap(errdef.CodeHTTP, err, "apply api key")
			}
			q := u.Query()
			q.Set(cfg.Name, cfg.Value)
			u.RawQuery = q.Encode()
			rawURL = u.String()
		} else {
			headers.Set(cfg.Name, cfg.Value)
		}
	case reqmodel.ManualHeadersAuth:
		for _, h := range cfg.Headers {
			if h.Enabled && strings.TrimSpace(h.Name) != "" {
				headers.Set(h.Name, h.Value)
			}
		}
	}

	bodyArgs, contentType, err := bodyFlags(req.Body)
	if err != nil {
		return "", err
	}
	if contentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", contentType)
	}

	args := []string{"curl"}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	switch {
	case method == http.MethodHead:
		args = append(args, "--head")
	case method != http.MethodGet || len(bodyArgs) > 0:
		// curl silently turns a bodied GET into POST without -X
		args = append(args, "-X", method)
	}
	args = append(args, shellQuote(rawURL))

	if basicUser != "" {
		args = append(args, "-u", shellQuote(basicUser))
	}
	for _, name := range sortedHeaderNames(headers) {
		for _, value := range headers.Values(name) {
			args = append(args, "-H", shellQuote(name+": "+value))
		}
	}
	args = append(args, bodyArgs...)

	return strings.Join(args, " "), nil
}

// bodyFlags leaves the content type empty for the kinds curl derives
// itself (--data-urlencode, -F) so the rendered command and the engine
// produce the same wire request.
func bodyFlags(src reqmodel.BodySource) ([]string, string, error) {
	switch src.Kind {
	case reqmodel.BodyNone:
		if src.Text == "" {
			return nil, "", nil
		}
		return []string{"--data-raw", shellQuote(src.Text)}, "", nil
	case reqmodel.BodyText:
		return []string{"--data-raw", shellQuote(src.Text)}, "text/plain; charset=utf-8", nil
	case reqmodel.BodyJSON:
		return []string{"--data-raw", shellQuote(src.Text)}, "application/json", nil
	case reqmodel.BodyForm:
		var args []string
		for _, f := range src.Fields {
			if f.Enabled && strings.TrimSpace(f.Name) != "" {
				args = append(args, "--data-urlencode", shellQuote(f.Name+"="+f.Value))
			}
		}
		return args, "", nil
	case reqmodel.BodyMultipart:
		var args []string
		for _, f := range src.Fields {
			if f.Enabled && strings.TrimSpace(f.Name) != "" {
				args = append(args, "-F", shellQuote(f.Name+"="+f.Value))
			}
		}
		return args, "", nil
	case reqmodel.BodyGraphQL:
		payload, err := graphQLPayload(src.GraphQL)
		if err != nil {
			return nil, "", err
		}
		return []string{"--data-raw", shellQuote(string(payload))}, "application/json", nil
	default:
		return nil, "", errdef.New(errdef.CodeHTTP, "unsupported body kind %q", src.Kind)
	}
}

func graphQLPayload(body *reqmodel.GraphQLBody) ([]byte, error) {
	if body == nil || strings.TrimSpace(body.Query) == "" {
		return nil, errdef.New(errdef.CodeParse, "graphql body missing query")
	}
	envelope := map[string]any{"query": body.Query}
	if v := strings.TrimSpace(body.Variables); v != "" {
		if !json.Valid([]byte(v)) {
			return nil, errdef.New(errdef.CodeParse, "graphql variables are not valid json")
		}
		envelope["variables"] = json.RawMessage(v)
	}
	if body.OperationName != "" {
		envelope["operationName"] = body.OperationName
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeParse, err, "encode graphql body")
	}
	return payload, nil
}

func sortedHeaderNames(h http.Header) []string {
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// shellQuote wraps v for a POSIX shell. Single quotes pass everything
// literally; embedded quotes use the '\'' splice.
func shellQuote(v string) string {
	if v == "" {
		return "''"
	}
	if shellSafe(v) {
		return v
	}
	return "'" + strings.ReplaceAll(v, "'", `'\''`) + "'"
}

func shellSafe(v string) bool {
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case strings.ContainsRune("@%+=:,./-_", r):
		default:
			return false
		}
	}
	return true
}
