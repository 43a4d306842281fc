package response

import (
	"bytes"
	"strings"
	"time"
	"unicode"

	"github.com/goccy/go-json"

	"github.com/unkn0wn-root/reqstage/internal/nettrace"
	"github.com/unkn0wn-root/reqstage/internal/transport"
)

// Normalize converts a raw transport result into a Record. It never
// fails: malformed bodies, missing timelines and partial results all
// come back as a Record with the affected fields left empty.
func Normalize(res *transport.Result) Record {
	record := Record{ReceivedAt: time.Now()}
	if res == nil {
		return record
	}

	record.Status = res.Status
	record.StatusCode = res.StatusCode
	record.Proto = res.Proto
	record.Headers = res.Headers
	record.EffectiveURL = res.EffectiveURL
	record.Via = string(res.Via)

	rawBody := res.Body
	contentEncoding := ""
	contentType := ""
	if res.Headers != nil {
		contentEncoding = res.Headers.Get("Content-Encoding")
		contentType = res.Headers.Get("Content-Type")
	}

	body, undone := decodeBody(rawBody, contentEncoding)
	record.Body = body
	record.BodyParsed = parseBody(contentType, body)

	headerSize := headerBytes(res.Proto, res.Status, res.Headers)
	record.Size = Size{
		Headers:  headerSize,
		Body:     len(body),
		WireBody: len(rawBody),
		Total:    headerSize + len(rawBody),
		Encoding: undone,
	}

	record.Timing = buildTiming(res)
	for _, hop := range res.Redirects {
		record.Redirects = append(record.Redirects, Hop{
			Status:   hop.Status,
			URL:      hop.URL,
			Duration: hop.Duration,
		})
	}

	if res.Timeline != nil {
		record.TLS, record.Network = describeDetails(res.Timeline.Details)
	}
	return record
}

func buildTiming(res *transport.Result) Timing {
	breakdown := res.Breakdown
	if res.Timeline != nil {
		breakdown = res.Timeline.Breakdown()
	}

	timing := Timing{
		DNS:      breakdown[nettrace.PhaseDNS],
		TCP:      breakdown[nettrace.PhaseTCP],
		TLS:      breakdown[nettrace.PhaseTLS],
		TTFB:     breakdown[nettrace.PhaseTTFB],
		Download: breakdown[nettrace.PhaseDownload],
		Total:    breakdown[nettrace.PhaseTotal],
	}
	if timing.Total == 0 {
		timing.Total = res.Duration
	}
	return timing
}

// parseBody attempts a structured decode for JSON payloads. Numbers
// stay as json.Number so large ids survive a render round trip.
func parseBody(contentType string, body []byte) any {
	if len(body) == 0 {
		return nil
	}
	if !looksLikeJSON(contentType, body) {
		return nil
	}

	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var parsed any
	if err := decoder.Decode(&parsed); err != nil {
		return nil
	}
	return parsed
}

func looksLikeJSON(contentType string, body []byte) bool {
	mediaType := strings.ToLower(contentType)
	if idx := strings.IndexByte(mediaType, ';'); idx >= 0 {
		mediaType = mediaType[:idx]
	}
	mediaType = strings.TrimSpace(mediaType)
	if mediaType == "application/json" || strings.HasSuffix(mediaType, "+json") {
		return true
	}
	if mediaType != "" && mediaType != "text/plain" && mediaType != "application/octet-stream" {
		return false
	}

	for _, b := range body {
		if unicode.IsSpace(rune(b)) {
			continue
		}
		return b == '{' || b == '['
	}
	return false
}

func headerBytes(proto, status string, headers map[string][]string) int {
	if status == "" && len(headers) == 0 {
		return 0
	}

	size := len(proto) + 1 + len(status) + 2
	for name, values := range headers {
		for _, value := range values {
			size += len(name) + 2 + len(value) + 2
		}
	}
	return size + 2
}

func describeDetails(details *nettrace.TraceDetails) (*TLSInfo, *NetInfo) {
	if details == nil {
		return nil, nil
	}

	var tlsInfo *TLSInfo
	if src := details.TLS; src != nil {
		tlsInfo = &TLSInfo{
			Version:    src.Version,
			Cipher:     src.Cipher,
			ALPN:       src.ALPN,
			ServerName: src.ServerName,
			Resumed:    src.Resumed,
			Verified:   src.Verified,
		}
		for _, cert := range src.Certificates {
			tlsInfo.Certificates = append(tlsInfo.Certificates, CertInfo{
				Subject:   cert.Subject,
				Issuer:    cert.Issuer,
				SANs:      append([]string(nil), cert.SANs...),
				NotBefore: cert.NotBefore,
				NotAfter:  cert.NotAfter,
				Serial:    cert.Serial,
			})
		}
	}

	var netInfo *NetInfo
	if src := details.Connection; src != nil {
		netInfo = &NetInfo{
			Reused:        src.Reused,
			Network:       src.Network,
			LocalAddr:     src.LocalAddr,
			RemoteAddr:    src.RemoteAddr,
			ResolvedAddrs: append([]string(nil), src.ResolvedAddrs...),
			Proxy:         src.Proxy,
			ProxyTunnel:   src.ProxyTunnel,
			Protocol:      src.Protocol,
		}
	}
	return tlsInfo, netInfo
}
