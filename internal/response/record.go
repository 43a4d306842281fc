package response

import (
	"net/http"
	"time"
)

// Record is the display-ready shape of a completed exchange. Every
// field is best-effort: whatever the transport could not supply stays
// at its zero value.
type Record struct {
	Status       string      `json:"status"`
	StatusCode   int         `json:"statusCode"`
	Proto        string      `json:"proto,omitempty"`
	Headers      http.Header `json:"headers,omitempty"`
	Body         []byte      `json:"body,omitempty"`
	BodyParsed   any         `json:"bodyParsed,omitempty"`
	Size         Size        `json:"size"`
	Timing       Timing      `json:"timing"`
	Redirects    []Hop       `json:"redirects,omitempty"`
	TLS          *TLSInfo    `json:"tls,omitempty"`
	Network      *NetInfo    `json:"network,omitempty"`
	EffectiveURL string      `json:"effectiveUrl,omitempty"`
	Via          string      `json:"via,omitempty"`
	ReceivedAt   time.Time   `json:"receivedAt"`
}

// Size carries the byte accounting. WireBody is the on-the-wire size
// before any Content-Encoding was undone; Body the decoded size. The
// two match when the payload was not compressed.
type Size struct {
	Headers  int    `json:"headers"`
	Body     int    `json:"body"`
	WireBody int    `json:"wireBody"`
	Total    int    `json:"total"`
	Encoding string `json:"encoding,omitempty"`
}

type Timing struct {
	DNS      time.Duration `json:"dns,omitempty"`
	TCP      time.Duration `json:"tcp,omitempty"`
	TLS      time.Duration `json:"tls,omitempty"`
	TTFB     time.Duration `json:"ttfb,omitempty"`
	Download time.Duration `json:"download,omitempty"`
	Total    time.Duration `json:"total,omitempty"`
}

type Hop struct {
	Status   int           `json:"status"`
	URL      string        `json:"url"`
	Duration time.Duration `json:"duration,omitempty"`
}

type TLSInfo struct {
	Version      string     `json:"version,omitempty"`
	Cipher       string     `json:"cipher,omitempty"`
	ALPN         string     `json:"alpn,omitempty"`
	ServerName   string     `json:"serverName,omitempty"`
	Resumed      bool       `json:"resumed,omitempty"`
	Verified     bool       `json:"verified,omitempty"`
	Certificates []CertInfo `json:"certificates,omitempty"`
}

type CertInfo struct {
	Subject   string    `json:"subject,omitempty"`
	Issuer    string    `json:"issuer,omitempty"`
	SANs      []string  `json:"sans,omitempty"`
	NotBefore time.Time `json:"notBefore,omitempty"`
	NotAfter  time.Time `json:"notAfter,omitempty"`
	Serial    string    `json:"serial,omitempty"`
}

type NetInfo struct {
	Reused        bool     `json:"reused,omitempty"`
	Network       string   `json:"network,omitempty"`
	LocalAddr     string   `json:"localAddr,omitempty"`
	RemoteAddr    string   `json:"remoteAddr,omitempty"`
	ResolvedAddrs []string `json:"resolvedAddrs,omitempty"`
	Proxy         string   `json:"proxy,omitempty"`
	ProxyTunnel   bool     `json:"proxyTunnel,omitempty"`
	Protocol      string   `json:"protocol,omitempty"`
}
