package engine

import (
	"net/http"
	"strings"
	"testing"

	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
	"github.com/unkn0wn-root/reqstage/internal/transport"
)

func blankRequest() transport.Request {
	return transport.Request{
		Method:  "GET",
		URL:     "https://api.test/things",
		Headers: http.Header{},
	}
}

func TestApplyBasicAuth(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	if err := applyAuth(&req, reqmodel.BasicAuth{Username: "ada", Password: "pw"}); err != nil {
		t.Fatalf("applyAuth: %v", err)
	}
	if got := req.Headers.Get("Authorization"); got != "Basic YWRhOnB3" {
		t.Fatalf("authorization = %q", got)
	}
}

func TestApplyBearerAuthPrefix(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	if err := applyAuth(&req, reqmodel.BearerAuth{Token: "abc"}); err != nil {
		t.Fatalf("applyAuth: %v", err)
	}
	if got := req.Headers.Get("Authorization"); got != "Bearer abc" {
		t.Fatalf("authorization = %q", got)
	}

	req = blankRequest()
	if err := applyAuth(&req, reqmodel.BearerAuth{Token: "abc", Prefix: "Token"}); err != nil {
		t.Fatalf("applyAuth: %v", err)
	}
	if got := req.Headers.Get("Authorization"); got != "Token abc" {
		t.Fatalf("authorization = %q", got)
	}
}

func TestApplyAPIKeyHeader(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	err := applyAuth(&req, reqmodel.APIKeyAuth{Name: "X-Api-Key", Value: "k-1"})
	if err != nil {
		t.Fatalf("applyAuth: %v", err)
	}
	if got := req.Headers.Get("X-Api-Key"); got != "k-1" {
		t.Fatalf("header = %q", got)
	}
}

func TestApplyAPIKeyQuery(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	req.URL = "https://api.test/things?page=2"
	err := applyAuth(&req, reqmodel.APIKeyAuth{Name: "key", Value: "k 1", Placement: reqmodel.APIKeyInQuery})
	if err != nil {
		t.Fatalf("applyAuth: %v", err)
	}
	if !strings.Contains(req.URL, "key=k+1") || !strings.Contains(req.URL, "page=2") {
		t.Fatalf("url = %q", req.URL)
	}
}

func TestApplyAPIKeyRequiresName(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	if err := applyAuth(&req, reqmodel.APIKeyAuth{Value: "k-1"}); err == nil {
		t.Fatal("expected error for nameless api key")
	}
}

func TestApplyManualHeadersSkipsDisabled(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	err := applyAuth(&req, reqmodel.ManualHeadersAuth{Headers: []reqmodel.Header{
		{Name: "X-One", Value: "1", Enabled: true},
		{Name: "X-Two", Value: "2", Enabled: false},
		{Name: "  ", Value: "3", Enabled: true},
	}})
	if err != nil {
		t.Fatalf("applyAuth: %v", err)
	}
	if got := req.Headers.Get("X-One"); got != "1" {
		t.Fatalf("X-One = %q", got)
	}
	if req.Headers.Get("X-Two") != "" {
		t.Fatal("disabled header applied")
	}
}

func TestApplyTokenDefaultsBearer(t *testing.T) {
	t.Parallel()
	req := blankRequest()
	applyToken(&req, tokens.Token{AccessToken: "tok-1"})
	if got := req.Headers.Get("Authorization"); got != "Bearer tok-1" {
		t.Fatalf("authorization = %q", got)
	}

	req = blankRequest()
	applyToken(&req, tokens.Token{AccessToken: "tok-2", TokenType: "MAC"})
	if got := req.Headers.Get("Authorization"); got != "MAC tok-2" {
		t.Fatalf("authorization = %q", got)
	}
}
