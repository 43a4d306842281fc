package transport

import (
	"context"
	"net/http"
	"time"

	"github.com/unkn0wn-root/reqstage/internal/nettrace"
)

// Kind identifies which delivery channel carried a request.
type Kind string

const (
	KindDirect Kind = "direct"
	KindBridge Kind = "extension-bridge"
	KindIPC    Kind = "desktop-ipc"
)

const defaultUserAgent = "reqstage/0.1"

// Request is a fully prepared wire request: variables resolved and auth
// headers already applied by the caller.
type Request struct {
	Method  string
	URL     string
	Headers http.Header
	Body    []byte
	Timeout time.Duration
}

// Redirect records one followed hop. Status is the code of the response
// that triggered the hop, URL the target it pointed at.
type Redirect struct {
	Status   int
	URL      string
	Duration time.Duration
}

// Result is the raw outcome of a send. Timeline is populated by the
// direct adapter only; relayed channels report coarse per-phase timings
// through Breakdown instead.
type Result struct {
	Status       string
	StatusCode   int
	Proto        string
	Headers      http.Header
	Body         []byte
	EffectiveURL string
	Redirects    []Redirect
	Duration     time.Duration
	Timeline     *nettrace.Timeline
	Breakdown    map[nettrace.PhaseKind]time.Duration
	Via          Kind
}

// Transport delivers prepared requests over one channel. CheckHealth
// reports whether the channel is currently usable; it must not block
// longer than the context allows.
type Transport interface {
	Kind() Kind
	Send(ctx context.Context, req Request) (*Result, error)
	CheckHealth(ctx context.Context) bool
}

func cloneHeader(h http.Header) http.Header {
	if h == nil {
		return nil
	}
	return h.Clone()
}

func effectiveURL(req *http.Request, resp *http.Response) string {
	if resp != nil && resp.Request != nil && resp.Request.URL != nil {
		return resp.Request.URL.String()
	}
	if req != nil && req.URL != nil {
		return req.URL.String()
	}
	return ""
}
