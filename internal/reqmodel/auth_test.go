package reqmodel

import "testing"

func TestAuthRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []AuthConfig{
		NoneAuth{},
		BasicAuth{Username: "alice", Password: "s3cret"},
		BearerAuth{Token: "abc"},
		APIKeyAuth{Name: "X-Api-Key", Value: "k", Placement: APIKeyInQuery},
		ClientCredentialsAuth{TokenURL: "https://id.test/token", ClientID: "cid", ClientSecret: "cs", Scope: "read"},
		PasswordAuth{TokenURL: "https://id.test/token", Username: "bob", Password: "pw"},
		AuthorizationCodeAuth{AuthURL: "https://id.test/auth", TokenURL: "https://id.test/token", ClientID: "cid", UsePKCE: true},
		ImplicitAuth{AuthURL: "https://id.test/auth", ClientID: "cid"},
		ManualHeadersAuth{Headers: []Header{{Name: "Authorization", Value: "Token t", Enabled: true}}},
	}

	for _, cfg := range cases {
		data, err := MarshalAuth(cfg)
		if err != nil {
			t.Fatalf("marshal %s: %v", cfg.Kind(), err)
		}
		back, err := UnmarshalAuth(data)
		if err != nil {
			t.Fatalf("unmarshal %s: %v", cfg.Kind(), err)
		}
		if back.Kind() != cfg.Kind() {
			t.Fatalf("kind mismatch: sent %s got %s", cfg.Kind(), back.Kind())
		}
	}
}

func TestUnmarshalAuthRejectsUnknownKind(t *testing.T) {
	t.Parallel()

	if _, err := UnmarshalAuth([]byte(`{"type":"kerberos"}`)); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestUnmarshalAuthNil(t *testing.T) {
	t.Parallel()

	cfg, err := UnmarshalAuth([]byte("null"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Fatalf("expected nil config, got %v", cfg)
	}
}

func TestIsOAuth(t *testing.T) {
	t.Parallel()

	if IsOAuth(BearerAuth{Token: "t"}) {
		t.Fatal("bearer is not an oauth grant")
	}
	if !IsOAuth(ClientCredentialsAuth{TokenURL: "u", ClientID: "c"}) {
		t.Fatal("client credentials should need a token")
	}
	if IsOAuth(nil) {
		t.Fatal("nil config never needs a token")
	}
}

func TestCloneIsDeep(t *testing.T) {
	t.Parallel()

	req := &Request{
		ID:     "r1",
		Method: "GET",
		URL:    "https://api.example.com/users/{{userId}}",
		Headers: []Header{
			{Name: "Accept", Value: "application/json", Enabled: true},
		},
		Variables: map[string]string{"userId": "42"},
	}
	clone := req.Clone()
	clone.Headers[0].Value = "text/plain"
	clone.Variables["userId"] = "7"

	if req.Headers[0].Value != "application/json" {
		t.Fatalf("clone mutated original headers: %q", req.Headers[0].Value)
	}
	if req.Variables["userId"] != "42" {
		t.Fatalf("clone mutated original variables: %q", req.Variables["userId"])
	}
}

func TestEnabledHeadersFiltersDisabled(t *testing.T) {
	t.Parallel()

	req := &Request{Headers: []Header{
		{Name: "A", Value: "1", Enabled: true},
		{Name: "B", Value: "2", Enabled: false},
		{Name: "  ", Value: "3", Enabled: true},
	}}
	got := req.EnabledHeaders()
	if len(got) != 1 || got[0].Name != "A" {
		t.Fatalf("unexpected headers %+v", got)
	}
}
