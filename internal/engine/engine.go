// Package engine runs requests through a phased execution machine:
// idle, then authenticating or authorizing when a token is needed, then
// fetching, ending in success or error. Every run gets a generation
// number; a completion whose generation is no longer current is
// dropped, so superseded or reset runs can never clobber newer state.
package engine

import (
	"context"
	"fmt"
	"log"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/unkn0wn-root/reqstage/internal/authcfg"
	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/history"
	"github.com/unkn0wn-root/reqstage/internal/oauth"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/response"
	"github.com/unkn0wn-root/reqstage/internal/telemetry"
	"github.com/unkn0wn-root/reqstage/internal/tokens"
	"github.com/unkn0wn-root/reqstage/internal/transport"
	"github.com/unkn0wn-root/reqstage/internal/vars"
)

type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseAuthenticating Phase = "authenticating"
	PhaseAuthorizing    Phase = "authorizing"
	PhaseFetching       Phase = "fetching"
	PhaseSuccess        Phase = "success"
	PhaseError          Phase = "error"
)

// ExecutionError describes a failed run. Phase is where the run died,
// not the terminal state: a 4xx or 5xx response is not an error, only
// transport, token and preparation failures are.
type ExecutionError struct {
	Phase   Phase       `json:"phase"`
	Code    errdef.Code `json:"code,omitempty"`
	Message string      `json:"message"`
}

type Snapshot struct {
	Phase      Phase            `json:"phase"`
	Generation uint64           `json:"generation"`
	Narration  string           `json:"narration,omitempty"`
	StartedAt  time.Time        `json:"startedAt,omitempty"`
	EndedAt    time.Time        `json:"endedAt,omitempty"`
	Duration   time.Duration    `json:"duration,omitempty"`
	Response   *response.Record `json:"response,omitempty"`
	Err        *ExecutionError  `json:"error,omitempty"`
}

// Sender is the transport seam; *transport.Selector satisfies it.
type Sender interface {
	Send(ctx context.Context, req transport.Request) (*transport.Result, error)
}

type RunInput struct {
	Request     *reqmodel.Request
	Document    *reqmodel.Document
	Environment *reqmodel.Environment
}

type Config struct {
	Sender    Sender
	Auth      *authcfg.Registry
	OAuth     *oauth.Manager
	History   *history.Log
	Telemetry telemetry.Instrumenter
	// Timeout bounds a whole run including token acquisition.
	Timeout time.Duration
	Logf    func(format string, args ...any)
}

type Engine struct {
	sender  Sender
	auth    *authcfg.Registry
	oauth   *oauth.Manager
	history *history.Log
	tele    telemetry.Instrumenter
	timeout time.Duration

	mu         sync.Mutex
	generation uint64
	snap       Snapshot
	watchers   []chan Snapshot

	logf     func(format string, args ...any)
	now      func() time.Time
	randIntN func(n int) int
}

const defaultRunTimeout = 30 * time.Second

func New(cfg Config) *Engine {
	e := &Engine{
		sender:   cfg.Sender,
		auth:     cfg.Auth,
		oauth:    cfg.OAuth,
		history:  cfg.History,
		tele:     cfg.Telemetry,
		timeout:  cfg.Timeout,
		logf:     cfg.Logf,
		now:      time.Now,
		randIntN: rand.IntN,
	}
	if e.sender == nil {
		e.sender = transport.NewSelector(transport.SelectorConfig{})
	}
	if e.tele == nil {
		e.tele = telemetry.Noop()
	}
	if e.timeout <= 0 {
		e.timeout = defaultRunTimeout
	}
	if e.logf == nil {
		e.logf = log.Printf
	}
	e.snap = Snapshot{Phase: PhaseIdle, Narration: e.narrate(PhaseIdle)}
	return e
}

// ExecuteRequest starts a run and returns its generation immediately;
// progress arrives through Watch and Snapshot. Starting a new run
// supersedes any run still in flight.
func (e *Engine) ExecuteRequest(input RunInput) uint64 {
	cfg, source := e.resolveAuth(input)
	effective := authcfg.Effective(cfg)
	first := PhaseFetching
	if reqmodel.IsOAuth(effective) {
		first = PhaseAuthenticating
		switch effective.Kind() {
		case reqmodel.AuthAuthorizationCode, reqmodel.AuthImplicit:
			first = PhaseAuthorizing
		}
	}

	start := e.now()
	e.mu.Lock()
	e.generation++
	gen := e.generation
	e.snap = Snapshot{Phase: first, Generation: gen, Narration: e.narrate(first), StartedAt: start}
	snap := e.snap
	e.mu.Unlock()
	e.publish(snap)

	go e.run(gen, input, effective, source, start, first)
	return gen
}

// Reset returns the machine to idle and forgets the last outcome. A
// run still in flight is not canceled; its completion will arrive with
// a stale generation and be dropped.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.generation++
	e.snap = Snapshot{Phase: PhaseIdle, Generation: e.generation, Narration: e.narrate(PhaseIdle)}
	snap := e.snap
	e.mu.Unlock()
	e.publish(snap)
}

func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snap
}

// Watch subscribes to state changes. Slow receivers miss intermediate
// snapshots rather than blocking the machine.
func (e *Engine) Watch() <-chan Snapshot {
	ch := make(chan Snapshot, 16)
	e.mu.Lock()
	e.watchers = append(e.watchers, ch)
	e.mu.Unlock()
	return ch
}

func (e *Engine) Unwatch(ch <-chan Snapshot) {
	e.mu.Lock()
	for i, w := range e.watchers {
		if w == ch {
			e.watchers = append(e.watchers[:i], e.watchers[i+1:]...)
			close(w)
			break
		}
	}
	e.mu.Unlock()
}

func (e *Engine) publish(snap Snapshot) {
	e.mu.Lock()
	watchers := append([]chan Snapshot(nil), e.watchers...)
	e.mu.Unlock()
	for _, ch := range watchers {
		select {
		case ch <- snap:
		default:
		}
	}
}

func (e *Engine) run(gen uint64, input RunInput, auth reqmodel.AuthConfig, source authcfg.Source, start time.Time, first Phase) {
	ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
	defer cancel()

	ctx, span := e.tele.Start(ctx, telemetry.RunStart{Request: input.Request, Environment: envName(input)})
	var outcome telemetry.RunResult
	defer func() { span.End(outcome) }()
	span.Phase(string(first), start)

	if input.Request == nil {
		outcome.Err = errdef.New(errdef.CodeInternal, "no request to execute")
		e.fail(gen, start, PhaseFetching, outcome.Err)
		return
	}
	values := vars.ForRequest(input.Request, input.Document, input.Environment)
	resolved := vars.ResolveRequest(input.Request, values, vars.KeepUnresolved)
	if strings.TrimSpace(resolved.URL) == "" {
		outcome.Err = errdef.New(errdef.CodeHTTP, "request has no url")
		e.fail(gen, start, PhaseFetching, outcome.Err)
		return
	}

	treq, err := buildTransportRequest(resolved)
	if err != nil {
		outcome.Err = err
		e.fail(gen, start, PhaseFetching, err)
		return
	}
	treq.Timeout = e.timeout

	if auth != nil {
		if reqmodel.IsOAuth(auth) {
			token, err := e.oauthManager().Acquire(ctx, tokenKey(resolved, source), auth)
			if err != nil {
				errPhase := PhaseAuthenticating
				if errdef.CodeOf(err) == errdef.CodeAuth {
					errPhase = PhaseAuthorizing
				}
				outcome.Err = err
				e.fail(gen, start, errPhase, err)
				return
			}
			applyToken(&treq, token)
		} else if err := applyAuth(&treq, auth); err != nil {
			outcome.Err = err
			e.fail(gen, start, PhaseFetching, err)
			return
		}
	}

	if first != PhaseFetching {
		span.Phase(string(PhaseFetching), e.now())
	}
	if !e.setPhase(gen, PhaseFetching) {
		return
	}
	res, err := e.sender.Send(ctx, treq)
	if err != nil {
		outcome.Err = err
		e.fail(gen, start, PhaseFetching, err)
		return
	}
	record := response.Normalize(res)
	outcome.StatusCode = record.StatusCode
	outcome.Via = record.Via
	outcome.Timing = record.Timing
	e.finish(gen, start, input, resolved, treq, record)
}

func envName(input RunInput) string {
	if input.Environment == nil {
		return ""
	}
	return input.Environment.Name
}

// setPhase advances the visible phase, reporting false when the run
// has been superseded. Re-entering the current phase keeps the
// narration instead of re-rolling it.
func (e *Engine) setPhase(gen uint64, phase Phase) bool {
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return false
	}
	if e.snap.Phase == phase {
		e.mu.Unlock()
		return true
	}
	e.snap.Phase = phase
	e.snap.Narration = e.narrate(phase)
	snap := e.snap
	e.mu.Unlock()
	e.publish(snap)
	return true
}

func (e *Engine) fail(gen uint64, start time.Time, phase Phase, err error) {
	end := e.now()
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.snap = Snapshot{
		Phase:      PhaseError,
		Generation: gen,
		Narration:  e.sadLine(),
		StartedAt:  start,
		EndedAt:    end,
		Duration:   end.Sub(start),
		Err: &ExecutionError{
			Phase:   phase,
			Code:    errdef.CodeOf(err),
			Message: errdef.Message(err),
		},
	}
	snap := e.snap
	e.mu.Unlock()
	e.publish(snap)
	e.logf("engine: run %d failed while %s: %v", gen, phase, err)
}

func (e *Engine) finish(gen uint64, start time.Time, input RunInput, resolved *reqmodel.Request, treq transport.Request, record response.Record) {
	end := e.now()
	duration := end.Sub(start)
	e.mu.Lock()
	if gen != e.generation {
		e.mu.Unlock()
		return
	}
	e.snap = Snapshot{
		Phase:      PhaseSuccess,
		Generation: gen,
		Narration:  fmt.Sprintf("%s in %s.", record.Status, duration.Round(time.Millisecond)),
		StartedAt:  start,
		EndedAt:    end,
		Duration:   duration,
		Response:   &record,
	}
	snap := e.snap
	e.mu.Unlock()
	e.publish(snap)
	e.recordHistory(input, resolved, treq, &record, duration, end)
}

func (e *Engine) recordHistory(input RunInput, resolved *reqmodel.Request, treq transport.Request, record *response.Record, duration time.Duration, end time.Time) {
	if e.history == nil {
		return
	}
	e.history.Record(history.Entry{
		RequestID:   resolved.ID,
		RequestName: resolved.Name,
		Environment: envName(input),
		Method:      treq.Method,
		URL:         treq.URL,
		Status:      record.Status,
		StatusCode:  record.StatusCode,
		Duration:    duration,
		ExecutedAt:  end,
		Via:         record.Via,
		Fingerprint: history.Fingerprint(treq.Method, treq.URL, treq.Body),
		BodySnippet: history.Snip(record.Body, 200),
		Timing:      record.Timing,
	})
}

func (e *Engine) resolveAuth(input RunInput) (reqmodel.AuthConfig, authcfg.Source) {
	if e.auth == nil {
		return nil, authcfg.SourceNone
	}
	return e.auth.ResolveForRequest(input.Request, input.Document)
}

func (e *Engine) oauthManager() *oauth.Manager {
	if e.oauth == nil {
		e.oauth = oauth.NewManager(tokens.NewCache(nil), e.sender.Send)
	}
	return e.oauth
}

// tokenKey maps the auth scope that supplied the config to the token
// cache scope: request-level configs cache per request, folder and
// file configs share the file's token, everything else is global.
func tokenKey(req *reqmodel.Request, source authcfg.Source) string {
	switch source {
	case authcfg.SourceRequest:
		if req.ID != "" {
			return req.ID
		}
	case authcfg.SourceFolder, authcfg.SourceFile:
		if req.FileID != "" {
			return tokens.FileKey(req.FileID)
		}
	}
	return tokens.GlobalKey
}
