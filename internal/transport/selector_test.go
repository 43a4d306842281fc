package transport

import (
	"context"
	"testing"
)

type stubTransport struct {
	kind    Kind
	healthy bool
	sends   int
}

func (s *stubTransport) Kind() Kind { return s.kind }

func (s *stubTransport) Send(ctx context.Context, req Request) (*Result, error) {
	s.sends++
	return &Result{StatusCode: 200, Via: s.kind}, nil
}

func (s *stubTransport) CheckHealth(ctx context.Context) bool { return s.healthy }

func TestSelectorPrefersIPC(t *testing.T) {
	ipc := &stubTransport{kind: KindIPC, healthy: true}
	bridge := &stubTransport{kind: KindBridge, healthy: true}
	direct := &stubTransport{kind: KindDirect, healthy: true}

	sel := NewSelector(SelectorConfig{Direct: direct, Bridge: bridge, IPC: ipc, Logf: t.Logf})
	if got := sel.Active(context.Background()).Kind(); got != KindIPC {
		t.Fatalf("expected ipc to win, got %s", got)
	}
}

func TestSelectorFallsBackToBridge(t *testing.T) {
	ipc := &stubTransport{kind: KindIPC}
	bridge := &stubTransport{kind: KindBridge, healthy: true}

	sel := NewSelector(SelectorConfig{Bridge: bridge, IPC: ipc, Logf: t.Logf})
	if got := sel.Active(context.Background()).Kind(); got != KindBridge {
		t.Fatalf("expected bridge fallback, got %s", got)
	}
}

func TestSelectorDefaultsToDirect(t *testing.T) {
	ipc := &stubTransport{kind: KindIPC}
	bridge := &stubTransport{kind: KindBridge}

	sel := NewSelector(SelectorConfig{Bridge: bridge, IPC: ipc, Logf: t.Logf})
	if got := sel.Active(context.Background()).Kind(); got != KindDirect {
		t.Fatalf("expected direct fallback, got %s", got)
	}
}

func TestSelectorDetectsOnce(t *testing.T) {
	ipc := &stubTransport{kind: KindIPC, healthy: true}
	sel := NewSelector(SelectorConfig{IPC: ipc, Logf: t.Logf})

	if got := sel.Active(context.Background()).Kind(); got != KindIPC {
		t.Fatalf("expected ipc, got %s", got)
	}

	// Later health changes must not reshuffle the pinned channel.
	ipc.healthy = false
	if got := sel.Active(context.Background()).Kind(); got != KindIPC {
		t.Fatalf("expected detection to stick, got %s", got)
	}
}

func TestSelectorSendUsesActive(t *testing.T) {
	bridge := &stubTransport{kind: KindBridge, healthy: true}
	sel := NewSelector(SelectorConfig{Bridge: bridge, Logf: t.Logf})

	result, err := sel.Send(context.Background(), Request{Method: "GET", URL: "https://example.com"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if result.Via != KindBridge {
		t.Fatalf("expected bridge result, got %s", result.Via)
	}
	if bridge.sends != 1 {
		t.Fatalf("expected one send through the bridge, got %d", bridge.sends)
	}
}
