package transport

import (
	"context"
	"log"
	"sync"
)

// Selector picks the delivery channel once per process. Detection
// order is desktop IPC, then the extension bridge, then direct; the
// first healthy channel wins and stays pinned for the process
// lifetime.
type Selector struct {
	once   sync.Once
	active Transport

	direct Transport
	bridge Transport
	ipc    Transport
	logf   func(string, ...any)
}

type SelectorConfig struct {
	Direct Transport
	Bridge Transport
	IPC    Transport
	Logf   func(string, ...any)
}

func NewSelector(cfg SelectorConfig) *Selector {
	s := &Selector{
		direct: cfg.Direct,
		bridge: cfg.Bridge,
		ipc:    cfg.IPC,
		logf:   cfg.Logf,
	}
	if s.direct == nil {
		s.direct = NewDirect(DirectOptions{FollowRedirects: true})
	}
	if s.logf == nil {
		s.logf = log.Printf
	}
	return s
}

// Active returns the pinned transport, detecting it on first use.
func (s *Selector) Active(ctx context.Context) Transport {
	s.once.Do(func() {
		s.active = s.detect(ctx)
		s.logf("transport: using %s", s.active.Kind())
	})
	return s.active
}

func (s *Selector) detect(ctx context.Context) Transport {
	if s.ipc != nil && s.ipc.CheckHealth(ctx) {
		return s.ipc
	}
	if s.bridge != nil && s.bridge.CheckHealth(ctx) {
		return s.bridge
	}
	return s.direct
}

// Send dispatches through the detected channel.
func (s *Selector) Send(ctx context.Context, req Request) (*Result, error) {
	return s.Active(ctx).Send(ctx, req)
}
