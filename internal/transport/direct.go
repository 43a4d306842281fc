package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"golang.org/x/net/http2"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
)

const maxRedirectHops = 10

type DirectOptions struct {
	ProxyURL           string
	InsecureSkipVerify bool
	FollowRedirects    bool
}

// Direct sends over net/http in-process. The cookie jar is shared
// across sends so session cookies survive between requests.
type Direct struct {
	opts        DirectOptions
	jar         http.CookieJar
	httpFactory func(*redirectRecorder, time.Duration) (*http.Client, error)
}

func NewDirect(opts DirectOptions) *Direct {
	jar, _ := cookiejar.New(nil)
	d := &Direct{opts: opts, jar: jar}
	d.httpFactory = d.buildHTTPClient
	return d
}

// SetHTTPFactory overrides how http.Client instances are created.
// Passing nil restores the default factory.
func (d *Direct) SetHTTPFactory(factory func(*redirectRecorder, time.Duration) (*http.Client, error)) {
	if factory == nil {
		factory = d.buildHTTPClient
	}
	d.httpFactory = factory
}

func (d *Direct) Kind() Kind { return KindDirect }

func (d *Direct) CheckHealth(ctx context.Context) bool {
	return true
}

func (d *Direct) buildHTTPClient(recorder *redirectRecorder, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	if d.opts.ProxyURL != "" {
		proxyURL, err := url.Parse(d.opts.ProxyURL)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "parse proxy url")
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	if d.opts.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, errdef.Wrap(errdef.CodeHTTP, err, "enable http2")
		}
	}

	client := &http.Client{Transport: transport, Jar: d.jar}
	if timeout > 0 {
		client.Timeout = timeout
	}
	if !d.opts.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	} else if recorder != nil {
		client.CheckRedirect = recorder.check
	}
	return client, nil
}

func (d *Direct) prepareHTTPRequest(ctx context.Context, req Request) (*http.Request, error) {
	targetURL := req.URL
	if targetURL == "" {
		return nil, errdef.New(errdef.CodeHTTP, "request url is empty")
	}

	var bodyReader io.Reader
	if len(req.Body) > 0 {
		bodyReader = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, targetURL, bodyReader)
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "build request")
	}

	for name, values := range req.Headers {
		if http.CanonicalHeaderKey(name) == "Host" {
			for _, value := range values {
				httpReq.Host = value
			}
			continue
		}
		for _, value := range values {
			httpReq.Header.Add(name, value)
		}
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", defaultUserAgent)
	}
	return httpReq, nil
}

// Send performs the roundtrip with network tracing always on. The
// trace session hooks into the transport to capture per-phase timings,
// so even failed sends come back with a partial timeline.
func (d *Direct) Send(ctx context.Context, req Request) (*Result, error) {
	httpReq, err := d.prepareHTTPRequest(ctx, req)
	if err != nil {
		return nil, err
	}

	recorder := newRedirectRecorder()
	factory := d.httpFactory
	if factory == nil {
		factory = d.buildHTTPClient
	}
	client, err := factory(recorder, req.Timeout)
	if err != nil {
		return nil, err
	}

	proxy := proxyForRequest(httpReq, d.opts.ProxyURL, client)

	traceSess := newTraceSession()
	httpReq = traceSess.bind(httpReq)

	start := time.Now()
	recorder.start(start)

	httpResp, err := client.Do(httpReq)
	if err != nil {
		duration := time.Since(start)
		traceSess.fail(err)
		timeline := traceSess.complete(buildTraceExtras(httpReq, nil, proxy))
		return &Result{
				Duration:  duration,
				Redirects: recorder.hopsSnapshot(),
				Timeline:  timeline,
				Via:       KindDirect,
			}, errdef.Wrap(
				errdef.CodeHTTP,
				err,
				"perform request",
			)
	}

	defer func() {
		if closeErr := httpResp.Body.Close(); closeErr != nil && err == nil {
			err = errdef.Wrap(errdef.CodeHTTP, closeErr, "close response body")
		}
	}()

	body, err := io.ReadAll(httpResp.Body)
	traceSess.finishDownload(err)
	if err != nil {
		traceSess.fail(err)
		traceSess.complete(buildTraceExtras(httpReq, httpResp, proxy))
		return nil, errdef.Wrap(errdef.CodeHTTP, err, "read response body")
	}

	timeline := traceSess.complete(buildTraceExtras(httpReq, httpResp, proxy))
	duration := time.Since(start)

	result := &Result{
		Status:       httpResp.Status,
		StatusCode:   httpResp.StatusCode,
		Proto:        httpResp.Proto,
		Headers:      cloneHeader(httpResp.Header),
		Body:         body,
		EffectiveURL: effectiveURL(httpReq, httpResp),
		Redirects:    recorder.hopsSnapshot(),
		Duration:     duration,
		Timeline:     timeline,
		Via:          KindDirect,
	}
	if timeline != nil {
		result.Breakdown = timeline.Breakdown()
	}
	return result, nil
}

// redirectRecorder observes CheckRedirect callbacks. Durations are
// measured between consecutive hops, the first one from send start.
type redirectRecorder struct {
	mu   sync.Mutex
	last time.Time
	hops []Redirect
}

func newRedirectRecorder() *redirectRecorder {
	return &redirectRecorder{}
}

func (r *redirectRecorder) start(ts time.Time) {
	r.mu.Lock()
	r.last = ts
	r.mu.Unlock()
}

func (r *redirectRecorder) check(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirectHops {
		return errdef.New(errdef.CodeHTTP, "stopped after %d redirects", maxRedirectHops)
	}

	now := time.Now()
	hop := Redirect{}
	if req != nil {
		if req.URL != nil {
			hop.URL = req.URL.String()
		}
		if req.Response != nil {
			hop.Status = req.Response.StatusCode
		}
	}

	r.mu.Lock()
	if !r.last.IsZero() {
		hop.Duration = now.Sub(r.last)
	}
	r.last = now
	r.hops = append(r.hops, hop)
	r.mu.Unlock()
	return nil
}

func (r *redirectRecorder) hopsSnapshot() []Redirect {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.hops) == 0 {
		return nil
	}
	out := make([]Redirect, len(r.hops))
	copy(out, r.hops)
	return out
}
