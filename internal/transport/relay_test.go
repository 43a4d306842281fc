package transport

import (
	"net/http"
	"testing"
	"time"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/nettrace"
)

func TestNewRelayExecute(t *testing.T) {
	headers := make(http.Header)
	headers.Set("Accept", "application/json")

	env := newRelayExecute(Request{
		Method:  "PUT",
		URL:     "https://api.example.com/v1/items/7",
		Headers: headers,
		Body:    []byte(`{"done":true}`),
		Timeout: 30 * time.Second,
	})
	if env.Type != relayTypeExecute {
		t.Fatalf("expected execute type, got %s", env.Type)
	}
	if env.ID == "" {
		t.Fatalf("expected an envelope id")
	}
	if env.Method != "PUT" || env.URL != "https://api.example.com/v1/items/7" {
		t.Fatalf("unexpected request fields: %s %s", env.Method, env.URL)
	}
	if env.TimeoutMillis != 30000 {
		t.Fatalf("expected timeout 30000ms, got %d", env.TimeoutMillis)
	}
	if got := env.Headers["Accept"]; len(got) != 1 || got[0] != "application/json" {
		t.Fatalf("unexpected headers: %v", env.Headers)
	}

	other := newRelayExecute(Request{Method: "GET", URL: "https://example.com"})
	if other.ID == env.ID {
		t.Fatalf("expected unique envelope ids")
	}
}

func TestResultFromRelay(t *testing.T) {
	env := relayResponse{
		ID:         "abc",
		Type:       relayTypeResult,
		Status:     "200 OK",
		StatusCode: 200,
		Headers:    map[string][]string{"Content-Type": {"text/plain"}},
		Body:       []byte("hi"),
		Redirects: []relayRedirect{
			{Status: 301, URL: "https://example.com/new", DurationMillis: 12},
		},
		TimingsMillis:  map[string]int64{"dns": 3, "ttfb": 40, "total": 90},
		DurationMillis: 90,
		EffectiveURL:   "https://example.com/new",
	}

	result, err := resultFromRelay(env, KindBridge)
	if err != nil {
		t.Fatalf("convert relay result: %v", err)
	}
	if result.Via != KindBridge {
		t.Fatalf("expected bridge kind, got %s", result.Via)
	}
	if result.StatusCode != 200 || result.Status != "200 OK" {
		t.Fatalf("unexpected status: %d %s", result.StatusCode, result.Status)
	}
	if result.Headers.Get("Content-Type") != "text/plain" {
		t.Fatalf("unexpected headers: %v", result.Headers)
	}
	if result.Duration != 90*time.Millisecond {
		t.Fatalf("unexpected duration: %s", result.Duration)
	}
	if len(result.Redirects) != 1 || result.Redirects[0].Duration != 12*time.Millisecond {
		t.Fatalf("unexpected redirects: %+v", result.Redirects)
	}
	if result.Breakdown[nettrace.PhaseTTFB] != 40*time.Millisecond {
		t.Fatalf("unexpected breakdown: %v", result.Breakdown)
	}
	if result.Breakdown[nettrace.PhaseTotal] != 90*time.Millisecond {
		t.Fatalf("unexpected total: %v", result.Breakdown)
	}
}

func TestResultFromRelayFillsStatusText(t *testing.T) {
	result, err := resultFromRelay(relayResponse{Type: relayTypeResult, StatusCode: 404}, KindIPC)
	if err != nil {
		t.Fatalf("convert relay result: %v", err)
	}
	if result.Status != "Not Found" {
		t.Fatalf("expected status text fallback, got %q", result.Status)
	}
}

func TestResultFromRelayError(t *testing.T) {
	_, err := resultFromRelay(relayResponse{Type: relayTypeError, Error: "helper unreachable"}, KindBridge)
	if err == nil {
		t.Fatalf("expected relay error to surface")
	}
	if errdef.CodeOf(err) != errdef.CodeTransport {
		t.Fatalf("expected transport error code, got %s", errdef.CodeOf(err))
	}
	if errdef.Message(err) != "helper unreachable" {
		t.Fatalf("unexpected message: %s", errdef.Message(err))
	}
}

func TestResultFromRelayUnexpectedType(t *testing.T) {
	if _, err := resultFromRelay(relayResponse{Type: relayTypePong}, KindIPC); err == nil {
		t.Fatalf("expected error on unexpected message type")
	}
}
