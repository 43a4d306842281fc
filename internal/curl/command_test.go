package curl

import (
	"strings"
	"testing"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
)

func TestCommandPlainGet(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{Method: "get", URL: "https://api.test/users"}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if got != "curl https://api.test/users" {
		t.Fatalf("got %q", got)
	}
}

func TestCommandPostJSON(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		Method: "post",
		URL:    "https://api.test/users",
		Body:   reqmodel.BodySource{Kind: reqmodel.BodyJSON, Text: `{"name":"ada"}`},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	want := `curl -X POST https://api.test/users -H 'Content-Type: application/json' --data-raw '{"name":"ada"}'`
	if got != want {
		t.Fatalf("got  %q\nwant %q", got, want)
	}
}

func TestCommandKeepsUserContentType(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		Method:  "POST",
		URL:     "https://api.test/raw",
		Headers: []reqmodel.Header{{Name: "Content-Type", Value: "application/vnd.custom", Enabled: true}},
		Body:    reqmodel.BodySource{Kind: reqmodel.BodyJSON, Text: `{}`},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if strings.Contains(got, "application/json") {
		t.Fatalf("user content type should win: %q", got)
	}
	if !strings.Contains(got, "'Content-Type: application/vnd.custom'") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandHeadersSorted(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		URL: "https://api.test",
		Headers: []reqmodel.Header{
			{Name: "X-Later", Value: "2", Enabled: true},
			{Name: "Accept", Value: "application/json", Enabled: true},
			{Name: "X-Off", Value: "skip", Enabled: false},
		},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	accept := strings.Index(got, "Accept:")
	later := strings.Index(got, "X-Later:")
	if accept == -1 || later == -1 || accept > later {
		t.Fatalf("headers should be sorted: %q", got)
	}
	if strings.Contains(got, "X-Off") {
		t.Fatalf("disabled header leaked: %q", got)
	}
}

func TestCommandBasicAuth(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{URL: "https://api.test"}
	got, err := Command(req, reqmodel.BasicAuth{Username: "ada", Password: "p w"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "-u 'ada:p w'") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandBearerDefaultPrefix(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{URL: "https://api.test"}
	got, err := Command(req, reqmodel.BearerAuth{Token: "abc"})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "'Authorization: Bearer abc'") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandAPIKeyQuery(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{URL: "https://api.test/search?page=2"}
	got, err := Command(req, reqmodel.APIKeyAuth{
		Name:      "key",
		Value:     "k 1",
		Placement: reqmodel.APIKeyInQuery,
	})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "key=k+1") || !strings.Contains(got, "page=2") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandAPIKeyNeedsName(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{URL: "https://api.test"}
	_, err := Command(req, reqmodel.APIKeyAuth{Value: "k"})
	if err == nil || errdef.CodeOf(err) != errdef.CodeHTTP {
		t.Fatalf("err = %v", err)
	}
}

func TestCommandSkipsOAuth(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{URL: "https://api.test"}
	got, err := Command(req, reqmodel.ClientCredentialsAuth{
		TokenURL: "https://id.test/token",
		ClientID: "cid",
	})
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if strings.Contains(got, "Authorization") || strings.Contains(got, "id.test") {
		t.Fatalf("oauth config should not leak into the command: %q", got)
	}
}

func TestCommandHeadUsesHeadFlag(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{Method: "HEAD", URL: "https://api.test"}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "--head") || strings.Contains(got, "-X") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandBodiedGetKeepsMethod(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		Method: "GET",
		URL:    "https://api.test",
		Body:   reqmodel.BodySource{Kind: reqmodel.BodyText, Text: "ping"},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "-X GET") {
		t.Fatalf("bodied GET needs an explicit method: %q", got)
	}
}

func TestCommandFormFields(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		Method: "POST",
		URL:    "https://api.test/login",
		Body: reqmodel.BodySource{
			Kind: reqmodel.BodyForm,
			Fields: []reqmodel.FormField{
				{Name: "user", Value: "ada", Enabled: true},
				{Name: "note", Value: "two words", Enabled: true},
				{Name: "off", Value: "x", Enabled: false},
			},
		},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "--data-urlencode user=ada") {
		t.Fatalf("got %q", got)
	}
	if !strings.Contains(got, "--data-urlencode 'note=two words'") {
		t.Fatalf("got %q", got)
	}
	if strings.Contains(got, "off=") {
		t.Fatalf("disabled field leaked: %q", got)
	}
	if strings.Contains(got, "Content-Type") {
		t.Fatalf("curl derives the form content type itself: %q", got)
	}
}

func TestCommandMultipartFields(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		Method: "POST",
		URL:    "https://api.test/upload",
		Body: reqmodel.BodySource{
			Kind:   reqmodel.BodyMultipart,
			Fields: []reqmodel.FormField{{Name: "tag", Value: "v1", Enabled: true}},
		},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, "-F tag=v1") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandGraphQL(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		Method: "POST",
		URL:    "https://api.test/graphql",
		Body: reqmodel.BodySource{
			Kind: reqmodel.BodyGraphQL,
			GraphQL: &reqmodel.GraphQLBody{
				Query:     "query($id: ID!) { user(id: $id) { name } }",
				Variables: `{"id":"7"}`,
			},
		},
	}
	got, err := Command(req, nil)
	if err != nil {
		t.Fatalf("Command: %v", err)
	}
	if !strings.Contains(got, `\"id\":\"7\"`) && !strings.Contains(got, `"id":"7"`) {
		t.Fatalf("variables missing: %q", got)
	}
	if !strings.Contains(got, "'Content-Type: application/json'") {
		t.Fatalf("got %q", got)
	}
}

func TestCommandGraphQLRejectsBadVariables(t *testing.T) {
	t.Parallel()

	req := &reqmodel.Request{
		URL: "https://api.test/graphql",
		Body: reqmodel.BodySource{
			Kind:    reqmodel.BodyGraphQL,
			GraphQL: &reqmodel.GraphQLBody{Query: "{ ping }", Variables: "not json"},
		},
	}
	if _, err := Command(req, nil); err == nil || errdef.CodeOf(err) != errdef.CodeParse {
		t.Fatalf("err = %v", err)
	}
}

func TestCommandRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := Command(&reqmodel.Request{URL: "  "}, nil); err == nil {
		t.Fatal("blank url should fail")
	}
	if _, err := Command(nil, nil); err == nil {
		t.Fatal("nil request should fail")
	}
}

func TestShellQuote(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"":              "''",
		"plain":         "plain",
		"a b":           "'a b'",
		"it's":          `'it'\''s'`,
		"https://x.y/z": "https://x.y/z",
	}
	for in, want := range cases {
		if got := shellQuote(in); got != want {
			t.Fatalf("shellQuote(%q) = %q, want %q", in, got, want)
		}
	}
}
