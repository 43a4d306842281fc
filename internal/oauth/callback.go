package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
)

const (
	defaultCallbackPath = "/oauth/callback"
	completionPath      = "/oauth/callback/complete"
)

type flowMode int

const (
	flowModeCode flowMode = iota
	flowModeImplicit
)

// callbackServer is the per-flow loopback listener the browser lands on
// after the provider redirects. It accepts exactly one outcome: the
// first delivery wins and later hits get 410.
type callbackServer struct {
	srv      *http.Server
	listener net.Listener
	host     string
	path     string
	state    string
	mode     flowMode

	resultCh chan url.Values
	errCh    chan error

	deliverOnce sync.Once
	shutOnce    sync.Once
	done        atomic.Bool
}

// callbackRedirect substitutes the manager's configured listener
// address when the auth config leaves the redirect URL blank. A pinned
// redirect always wins.
func (m *Manager) callbackRedirect(configured string) string {
	if strings.TrimSpace(configured) != "" {
		return configured
	}
	if m.callbackHost == "" && m.callbackPort == 0 {
		return ""
	}
	host := m.callbackHost
	if host == "" {
		host = "127.0.0.1"
	}
	addr := net.JoinHostPort(host, strconv.Itoa(m.callbackPort))
	return fmt.Sprintf("http://%s%s", addr, defaultCallbackPath)
}

// startCallback binds a listener for redirect, which must point at a
// loopback address. An empty redirect binds an ephemeral port on
// 127.0.0.1 at the default callback path.
func startCallback(redirect, state string, mode flowMode) (*callbackServer, error) {
	host, port, path := "127.0.0.1", "0", defaultCallbackPath
	if redirect != "" {
		u, err := url.Parse(redirect)
		if err != nil {
			return nil, errdef.Wrap(errdef.CodeOAuth, err, "parse redirect url")
		}
		if u.Scheme != "http" {
			return nil, errdef.New(errdef.CodeOAuth, "redirect url must use http, got %q", u.Scheme)
		}
		if h := u.Hostname(); h != "" {
			if !isLoopback(h) {
				return nil, errdef.New(errdef.CodeOAuth, "redirect host %q is not loopback", h)
			}
			host = h
		}
		if p := u.Port(); p != "" {
			port = p
		}
		if u.Path != "" && u.Path != "/" {
			path = u.Path
		}
	}
	if path == completionPath {
		return nil, errdef.New(errdef.CodeOAuth, "redirect path %q is reserved", completionPath)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(host, port))
	if err != nil {
		return nil, errdef.Wrap(errdef.CodeAuth, err, "listen for authorization callback")
	}
	s := &callbackServer{
		listener: listener,
		host:     host,
		path:     path,
		state:    state,
		mode:     mode,
		resultCh: make(chan url.Values, 1),
		errCh:    make(chan error, 1),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, s.handleCallback)
	mux.HandleFunc(completionPath, s.handleCompletion)
	s.srv = &http.Server{Handler: mux}
	go func() {
		if err := s.srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.fail(errdef.Wrap(errdef.CodeAuth, err, "authorization callback server"))
		}
	}()
	return s, nil
}

func (s *callbackServer) redirectURL() string {
	_, port, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return "http://" + s.host + s.path
	}
	return "http://" + net.JoinHostPort(s.host, port) + s.path
}

func (s *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	if s.done.Load() {
		http.Error(w, "authorization already completed", http.StatusGone)
		return
	}
	query := r.URL.Query()
	if query.Get("code") == "" && query.Get("error") == "" {
		// Implicit responses arrive in the URL fragment, which never
		// reaches the server. Serve a page that lifts it out and posts
		// it back.
		if s.mode == flowModeImplicit {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			fmt.Fprint(w, fragmentLiftPage)
			return
		}
		http.Error(w, "missing authorization response", http.StatusBadRequest)
		return
	}
	if query.Get("state") != s.state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		s.fail(errdef.New(errdef.CodeAuth, "authorization state mismatch"))
		return
	}
	if errCode := query.Get("error"); errCode != "" {
		http.Error(w, "authorization failed: "+errCode, http.StatusBadRequest)
		s.fail(providerError(errCode, query.Get("error_description")))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, completePage)
	s.deliver(query)
}

func (s *callbackServer) handleCompletion(w http.ResponseWriter, r *http.Request) {
	if s.mode != flowModeImplicit {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.done.Load() {
		http.Error(w, "authorization already completed", http.StatusGone)
		return
	}
	var body struct {
		Fragment string `json:"fragment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "bad completion payload", http.StatusBadRequest)
		return
	}
	values, err := url.ParseQuery(strings.TrimPrefix(body.Fragment, "#"))
	if err != nil {
		http.Error(w, "bad fragment", http.StatusBadRequest)
		return
	}
	if values.Get("state") != s.state {
		http.Error(w, "state mismatch", http.StatusBadRequest)
		s.fail(errdef.New(errdef.CodeAuth, "authorization state mismatch"))
		return
	}
	if errCode := values.Get("error"); errCode != "" {
		http.Error(w, "authorization failed: "+errCode, http.StatusBadRequest)
		s.fail(providerError(errCode, values.Get("error_description")))
		return
	}
	w.WriteHeader(http.StatusNoContent)
	s.deliver(values)
}

func (s *callbackServer) deliver(values url.Values) {
	s.deliverOnce.Do(func() {
		s.done.Store(true)
		s.resultCh <- values
	})
}

func (s *callbackServer) fail(err error) {
	s.deliverOnce.Do(func() {
		s.done.Store(true)
		s.errCh <- err
	})
}

func (s *callbackServer) shutdown() {
	s.shutOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctx)
	})
}

// awaitCallback blocks until the browser hands the flow back. The
// ticker notices an abandoned window: when nothing arrives before the
// flow timeout the wait fails instead of hanging forever.
func (m *Manager) awaitCallback(ctx context.Context, srv *callbackServer) (url.Values, error) {
	deadline := m.now().Add(m.flowTimeout)
	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case values := <-srv.resultCh:
			return values, nil
		case err := <-srv.errCh:
			return nil, err
		case <-ctx.Done():
			return nil, errdef.Wrap(errdef.CodeCanceled, ctx.Err(), "waiting for authorization")
		case <-ticker.C:
			if !m.now().Before(deadline) {
				return nil, errdef.New(errdef.CodeAuth, "authorization window expired after %s", m.flowTimeout)
			}
		}
	}
}

func providerError(code, desc string) error {
	if desc != "" {
		return errdef.New(errdef.CodeAuth, "authorization failed: %s: %s", code, desc)
	}
	return errdef.New(errdef.CodeAuth, "authorization failed: %s", code)
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

const completePage = `<!doctype html>
<html><body><h3>Authentication complete</h3><p>You can close this window and return to reqstage.</p></body></html>
`

const fragmentLiftPage = `<!doctype html>
<html><body>
<p id="msg">Completing sign-in...</p>
<script>
fetch("/oauth/callback/complete", {
  method: "POST",
  headers: {"Content-Type": "application/json"},
  body: JSON.stringify({fragment: window.location.hash})
}).then(function (res) {
  if (!res.ok) { throw new Error("rejected"); }
  document.getElementById("msg").textContent = "Authentication complete. You can close this window and return to reqstage.";
}).catch(function () {
  document.getElementById("msg").textContent = "Sign-in could not be completed. Close this window and try again.";
});
</script>
</body></html>
`
