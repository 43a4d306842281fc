package nettrace

import (
	"errors"
	"testing"
	"time"
)

func TestCollectorTimeline(t *testing.T) {
	t.Parallel()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c := NewCollector()

	c.Begin(PhaseDNS, base)
	c.End(PhaseDNS, base.Add(5*time.Millisecond), nil)
	c.Begin(PhaseTCP, base.Add(5*time.Millisecond))
	c.UpdateMeta(PhaseTCP, func(meta *PhaseMeta) { meta.Addr = "93.184.216.34:443" })
	c.End(PhaseTCP, base.Add(20*time.Millisecond), nil)
	c.Begin(PhaseTTFB, base.Add(20*time.Millisecond))
	c.End(PhaseTTFB, base.Add(80*time.Millisecond), nil)
	c.Begin(PhaseDownload, base.Add(80*time.Millisecond))
	c.End(PhaseDownload, base.Add(100*time.Millisecond), nil)
	c.Complete(base.Add(100 * time.Millisecond))

	tl := c.Timeline()
	if tl == nil {
		t.Fatal("expected timeline")
	}
	if tl.Duration != 100*time.Millisecond {
		t.Fatalf("unexpected total duration %v", tl.Duration)
	}
	if len(tl.Phases) != 4 {
		t.Fatalf("expected 4 phases, got %d", len(tl.Phases))
	}
	if tl.Phases[0].Kind != PhaseDNS || tl.Phases[1].Kind != PhaseTCP {
		t.Fatalf("phases out of order: %v %v", tl.Phases[0].Kind, tl.Phases[1].Kind)
	}
	if tl.Phases[1].Meta.Addr != "93.184.216.34:443" {
		t.Fatalf("phase meta lost: %+v", tl.Phases[1].Meta)
	}

	breakdown := tl.Breakdown()
	if breakdown[PhaseDNS] != 5*time.Millisecond {
		t.Fatalf("dns breakdown %v", breakdown[PhaseDNS])
	}
	if breakdown[PhaseTotal] != 100*time.Millisecond {
		t.Fatalf("total breakdown %v", breakdown[PhaseTotal])
	}
}

func TestCompleteFlagsOpenPhases(t *testing.T) {
	t.Parallel()

	base := time.Now()
	c := NewCollector()
	c.Begin(PhaseTTFB, base)
	c.Fail(errors.New("connection reset"))
	c.Complete(base.Add(10 * time.Millisecond))

	tl := c.Timeline()
	if tl.Err != "connection reset" {
		t.Fatalf("collector error lost: %q", tl.Err)
	}
	if len(tl.Phases) != 1 || tl.Phases[0].Err != "incomplete" {
		t.Fatalf("open phase not flagged: %+v", tl.Phases)
	}
}

func TestEmptyCollectorHasNoTimeline(t *testing.T) {
	t.Parallel()

	if tl := NewCollector().Timeline(); tl != nil {
		t.Fatalf("expected nil timeline, got %+v", tl)
	}
}

func TestTimelineCloneIsDeep(t *testing.T) {
	t.Parallel()

	base := time.Now()
	c := NewCollector()
	c.Begin(PhaseDNS, base)
	c.End(PhaseDNS, base.Add(time.Millisecond), nil)
	c.Complete(base.Add(time.Millisecond))

	tl := c.Timeline()
	tl.Details = &TraceDetails{Connection: &ConnDetails{ResolvedAddrs: []string{"1.2.3.4"}}}

	clone := tl.Clone()
	clone.Phases[0].Kind = PhaseTLS
	clone.Details.Connection.ResolvedAddrs[0] = "9.9.9.9"

	if tl.Phases[0].Kind != PhaseDNS {
		t.Fatal("clone shares phase slice")
	}
	if tl.Details.Connection.ResolvedAddrs[0] != "1.2.3.4" {
		t.Fatal("clone shares resolved addrs")
	}
}
