package nettrace

import (
	"sort"
	"time"
)

type PhaseKind string

const (
	PhaseDNS      PhaseKind = "dns"
	PhaseTCP      PhaseKind = "tcp"
	PhaseTLS      PhaseKind = "tls"
	PhaseTTFB     PhaseKind = "ttfb"
	PhaseDownload PhaseKind = "download"
	PhaseTotal    PhaseKind = "total"
)

type PhaseMeta struct {
	Addr   string
	Reused bool
	Cached bool
}

type Phase struct {
	Kind     PhaseKind
	Start    time.Time
	End      time.Time
	Duration time.Duration
	Err      string
	Meta     PhaseMeta
}

type Timeline struct {
	Started   time.Time
	Completed time.Time
	Duration  time.Duration
	Err       string
	Phases    []Phase
	Details   *TraceDetails
}

func (tl *Timeline) Clone() *Timeline {
	if tl == nil {
		return nil
	}

	ph := make([]Phase, len(tl.Phases))
	copy(ph, tl.Phases)
	return &Timeline{
		Started:   tl.Started,
		Completed: tl.Completed,
		Duration:  tl.Duration,
		Err:       tl.Err,
		Phases:    ph,
		Details:   tl.Details.Clone(),
	}
}

// Breakdown sums phase durations per kind. A kind can occur more than
// once in a timeline (several DNS lookups across redirects), so values
// are aggregates.
func (tl *Timeline) Breakdown() map[PhaseKind]time.Duration {
	if tl == nil {
		return nil
	}
	out := make(map[PhaseKind]time.Duration, len(tl.Phases)+1)
	for _, phase := range tl.Phases {
		if phase.Duration <= 0 {
			continue
		}
		out[phase.Kind] += phase.Duration
	}
	if tl.Duration > 0 {
		out[PhaseTotal] = tl.Duration
	}
	return out
}

func normalizePhases(phases []Phase) []Phase {
	if len(phases) <= 1 {
		return phases
	}

	sorted := make([]Phase, len(phases))
	copy(sorted, phases)
	sort.SliceStable(sorted, func(i, j int) bool {
		si := sorted[i]
		sj := sorted[j]
		if si.Start.Equal(sj.Start) {
			return si.End.Before(sj.End)
		}
		return si.Start.Before(sj.Start)
	})
	return sorted
}

// TraceDetails carries the connection and handshake facts that outlive
// the phase timings. Only completed exchanges get one, so everything in
// here describes the connection the response actually travelled on.
type TraceDetails struct {
	Connection *ConnDetails
	TLS        *TLSDetails
}

func (d *TraceDetails) Clone() *TraceDetails {
	if d == nil {
		return nil
	}
	return &TraceDetails{
		Connection: d.Connection.Clone(),
		TLS:        d.TLS.Clone(),
	}
}

type ConnDetails struct {
	Reused        bool
	Network       string
	LocalAddr     string
	RemoteAddr    string
	ResolvedAddrs []string
	Proxy         string
	ProxyTunnel   bool
	Protocol      string
}

func (c *ConnDetails) Clone() *ConnDetails {
	if c == nil {
		return nil
	}
	clone := *c
	if len(c.ResolvedAddrs) > 0 {
		clone.ResolvedAddrs = append([]string(nil), c.ResolvedAddrs...)
	}
	return &clone
}

type TLSDetails struct {
	Version      string
	Cipher       string
	ALPN         string
	ServerName   string
	Resumed      bool
	Verified     bool
	Certificates []TLSCert
}

func (t *TLSDetails) Clone() *TLSDetails {
	if t == nil {
		return nil
	}
	clone := *t
	if len(t.Certificates) > 0 {
		clone.Certificates = make([]TLSCert, len(t.Certificates))
		for i, cert := range t.Certificates {
			clone.Certificates[i] = cert.Clone()
		}
	}
	return &clone
}

type TLSCert struct {
	Subject   string
	Issuer    string
	SANs      []string
	NotBefore time.Time
	NotAfter  time.Time
	Serial    string
}

func (c TLSCert) Clone() TLSCert {
	clone := c
	if len(c.SANs) > 0 {
		clone.SANs = append([]string(nil), c.SANs...)
	}
	return clone
}
