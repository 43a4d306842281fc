package reqmodel

import (
	"encoding/json"
	"fmt"
)

type AuthKind string

const (
	AuthNone              AuthKind = "none"
	AuthBasic             AuthKind = "basic"
	AuthBearer            AuthKind = "bearer"
	AuthAPIKey            AuthKind = "api-key"
	AuthClientCredentials AuthKind = "oauth2-client-credentials"
	AuthPassword          AuthKind = "oauth2-password"
	AuthAuthorizationCode AuthKind = "oauth2-authorization-code"
	AuthImplicit          AuthKind = "oauth2-implicit"
	AuthManualHeaders     AuthKind = "manual-headers"
)

// AuthConfig is a closed set: one variant per auth kind, each carrying
// only the fields that kind uses. A bearer config cannot smuggle basic
// credentials.
type AuthConfig interface {
	Kind() AuthKind
	sealed()
}

type NoneAuth struct{}

func (NoneAuth) Kind() AuthKind { return AuthNone }
func (NoneAuth) sealed()        {}

type BasicAuth struct {
	Username string `json:"username"`
	Password string `json:"password,omitempty"`
}

func (BasicAuth) Kind() AuthKind { return AuthBasic }
func (BasicAuth) sealed()        {}

type BearerAuth struct {
	Token  string `json:"token"`
	Prefix string `json:"prefix,omitempty"`
}

func (BearerAuth) Kind() AuthKind { return AuthBearer }
func (BearerAuth) sealed()        {}

type APIKeyPlacement string

const (
	APIKeyInHeader APIKeyPlacement = "header"
	APIKeyInQuery  APIKeyPlacement = "query"
)

type APIKeyAuth struct {
	Name      string          `json:"name"`
	Value     string          `json:"value"`
	Placement APIKeyPlacement `json:"placement,omitempty"`
}

func (APIKeyAuth) Kind() AuthKind { return AuthAPIKey }
func (APIKeyAuth) sealed()        {}

type ClientCredentialsAuth struct {
	TokenURL     string `json:"tokenUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Scope        string `json:"scope,omitempty"`
	Audience     string `json:"audience,omitempty"`
}

func (ClientCredentialsAuth) Kind() AuthKind { return AuthClientCredentials }
func (ClientCredentialsAuth) sealed()        {}

type PasswordAuth struct {
	TokenURL     string `json:"tokenUrl"`
	ClientID     string `json:"clientId,omitempty"`
	ClientSecret string `json:"clientSecret,omitempty"`
	Username     string `json:"username"`
	Password     string `json:"password"`
	Scope        string `json:"scope,omitempty"`
}

func (PasswordAuth) Kind() AuthKind { return AuthPassword }
func (PasswordAuth) sealed()        {}

type AuthorizationCodeAuth struct {
	AuthURL      string `json:"authUrl"`
	TokenURL     string `json:"tokenUrl"`
	ClientID     string `json:"clientId"`
	ClientSecret string `json:"clientSecret,omitempty"`
	RedirectURL  string `json:"redirectUrl,omitempty"`
	Scope        string `json:"scope,omitempty"`
	UsePKCE      bool   `json:"usePkce,omitempty"`
}

func (AuthorizationCodeAuth) Kind() AuthKind { return AuthAuthorizationCode }
func (AuthorizationCodeAuth) sealed()        {}

type ImplicitAuth struct {
	AuthURL     string `json:"authUrl"`
	ClientID    string `json:"clientId"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Scope       string `json:"scope,omitempty"`
}

func (ImplicitAuth) Kind() AuthKind { return AuthImplicit }
func (ImplicitAuth) sealed()        {}

type ManualHeadersAuth struct {
	Headers []Header `json:"headers"`
}

func (ManualHeadersAuth) Kind() AuthKind { return AuthManualHeaders }
func (ManualHeadersAuth) sealed()        {}

// IsOAuth reports whether the config needs a token from the flow engine.
func IsOAuth(cfg AuthConfig) bool {
	if cfg == nil {
		return false
	}
	switch cfg.Kind() {
	case AuthClientCredentials, AuthPassword, AuthAuthorizationCode, AuthImplicit:
		return true
	}
	return false
}

type authEnvelope struct {
	Type   AuthKind        `json:"type"`
	Config json.RawMessage `json:"config,omitempty"`
}

func MarshalAuth(cfg AuthConfig) ([]byte, error) {
	if cfg == nil {
		return []byte("null"), nil
	}
	payload, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}
	return json.Marshal(authEnvelope{Type: cfg.Kind(), Config: payload})
}

func UnmarshalAuth(data []byte) (AuthConfig, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var env authEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	switch env.Type {
	case AuthNone:
		return NoneAuth{}, nil
	case AuthBasic:
		var cfg BasicAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthBearer:
		var cfg BearerAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthAPIKey:
		var cfg APIKeyAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthClientCredentials:
		var cfg ClientCredentialsAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthPassword:
		var cfg PasswordAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthAuthorizationCode:
		var cfg AuthorizationCodeAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthImplicit:
		var cfg ImplicitAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	case AuthManualHeaders:
		var cfg ManualHeadersAuth
		if err := unmarshalConfig(env.Config, &cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	default:
		return nil, fmt.Errorf("unknown auth kind %q", env.Type)
	}
}

func unmarshalConfig(raw json.RawMessage, into any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, into)
}
