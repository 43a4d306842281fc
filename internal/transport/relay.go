package transport

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/nettrace"
)

// Relay wire format shared by the extension bridge and the desktop IPC
// channel. Bodies ride as base64 (encoding/json []byte), timings as
// millisecond integers keyed by phase name.
const (
	relayTypeExecute = "execute"
	relayTypePing    = "ping"
	relayTypeResult  = "result"
	relayTypePong    = "pong"
	relayTypeError   = "error"
)

type relayRequest struct {
	ID            string              `json:"id"`
	Type          string              `json:"type"`
	Method        string              `json:"method,omitempty"`
	URL           string              `json:"url,omitempty"`
	Headers       map[string][]string `json:"headers,omitempty"`
	Body          []byte              `json:"body,omitempty"`
	TimeoutMillis int64               `json:"timeoutMillis,omitempty"`
}

type relayRedirect struct {
	Status         int    `json:"status"`
	URL            string `json:"url"`
	DurationMillis int64  `json:"durationMillis,omitempty"`
}

type relayResponse struct {
	ID             string              `json:"id"`
	Type           string              `json:"type"`
	Status         string              `json:"status,omitempty"`
	StatusCode     int                 `json:"statusCode,omitempty"`
	Headers        map[string][]string `json:"headers,omitempty"`
	Body           []byte              `json:"body,omitempty"`
	EffectiveURL   string              `json:"effectiveUrl,omitempty"`
	Redirects      []relayRedirect     `json:"redirects,omitempty"`
	TimingsMillis  map[string]int64    `json:"timingsMillis,omitempty"`
	DurationMillis int64               `json:"durationMillis,omitempty"`
	Error          string              `json:"error,omitempty"`
}

func newRelayExecute(req Request) relayRequest {
	env := relayRequest{
		ID:     uuid.NewString(),
		Type:   relayTypeExecute,
		Method: req.Method,
		URL:    req.URL,
		Body:   req.Body,
	}
	if len(req.Headers) > 0 {
		env.Headers = map[string][]string(req.Headers.Clone())
	}
	if req.Timeout > 0 {
		env.TimeoutMillis = req.Timeout.Milliseconds()
	}
	return env
}

func newRelayPing() relayRequest {
	return relayRequest{ID: uuid.NewString(), Type: relayTypePing}
}

func resultFromRelay(env relayResponse, via Kind) (*Result, error) {
	if env.Type == relayTypeError || env.Error != "" {
		msg := env.Error
		if msg == "" {
			msg = "relay reported failure"
		}
		return nil, errdef.New(errdef.CodeTransport, "%s", msg)
	}
	if env.Type != relayTypeResult {
		return nil, errdef.New(errdef.CodeTransport, "unexpected relay message type %q", env.Type)
	}

	result := &Result{
		Status:       env.Status,
		StatusCode:   env.StatusCode,
		Body:         env.Body,
		EffectiveURL: env.EffectiveURL,
		Duration:     time.Duration(env.DurationMillis) * time.Millisecond,
		Via:          via,
	}
	if result.Status == "" && result.StatusCode > 0 {
		result.Status = http.StatusText(result.StatusCode)
	}
	if len(env.Headers) > 0 {
		headers := make(http.Header, len(env.Headers))
		for name, values := range env.Headers {
			for _, value := range values {
				headers.Add(name, value)
			}
		}
		result.Headers = headers
	}
	for _, hop := range env.Redirects {
		result.Redirects = append(result.Redirects, Redirect{
			Status:   hop.Status,
			URL:      hop.URL,
			Duration: time.Duration(hop.DurationMillis) * time.Millisecond,
		})
	}
	if len(env.TimingsMillis) > 0 {
		breakdown := make(map[nettrace.PhaseKind]time.Duration, len(env.TimingsMillis))
		for phase, millis := range env.TimingsMillis {
			if millis < 0 {
				continue
			}
			breakdown[nettrace.PhaseKind(phase)] = time.Duration(millis) * time.Millisecond
		}
		result.Breakdown = breakdown
	}
	return result, nil
}
