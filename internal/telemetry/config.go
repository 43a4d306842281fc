package telemetry

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	envEndpoint    = "REQSTAGE_OTLP_ENDPOINT"
	envInsecure    = "REQSTAGE_OTLP_INSECURE"
	envService     = "REQSTAGE_OTLP_SERVICE"
	envVersion     = "REQSTAGE_OTLP_SERVICE_VERSION"
	envDialTimeout = "REQSTAGE_OTLP_DIAL_TIMEOUT"
	envHeaders     = "REQSTAGE_OTLP_HEADERS"
)

type Config struct {
	Endpoint    string
	Insecure    bool
	ServiceName string
	Version     string
	DialTimeout time.Duration
	Headers     map[string]string
}

// Enabled reports whether spans leave the process; New still honors
// explicitly injected exporters and processors when it is false.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.Endpoint) != ""
}

// ConfigFromEnv reads the REQSTAGE_OTLP_* variables through the given
// lookup, typically os.Getenv. Malformed optional values are ignored
// rather than failing startup.
func ConfigFromEnv(getenv func(key string) string) Config {
	cfg := Config{
		Endpoint:    strings.TrimSpace(getenv(envEndpoint)),
		ServiceName: strings.TrimSpace(getenv(envService)),
		Version:     strings.TrimSpace(getenv(envVersion)),
	}
	if v := strings.TrimSpace(getenv(envInsecure)); v != "" {
		if insecure, err := strconv.ParseBool(v); err == nil {
			cfg.Insecure = insecure
		}
	}
	if v := strings.TrimSpace(getenv(envDialTimeout)); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.DialTimeout = d
		}
	}
	if headers, err := ParseHeaders(getenv(envHeaders)); err == nil {
		cfg.Headers = headers
	}
	return cfg
}

// ParseHeaders splits "k1=v1, k2=v2" into a map. Blank input yields
// nil; an entry without '=' is an error.
func ParseHeaders(raw string) (map[string]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	headers := make(map[string]string)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return nil, fmt.Errorf("telemetry header %q is not key=value", part)
		}
		key = strings.TrimSpace(key)
		if key == "" {
			return nil, fmt.Errorf("telemetry header %q has an empty key", part)
		}
		headers[key] = strings.TrimSpace(value)
	}
	if len(headers) == 0 {
		return nil, nil
	}
	return headers, nil
}
