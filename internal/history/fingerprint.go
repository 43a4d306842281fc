package history

import (
	"strings"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint hashes what makes two executions "the same request":
// method, URL and body, with NUL separators so field boundaries cannot
// collide.
func Fingerprint(method, url string, body []byte) uint64 {
	h := xxhash.New()
	h.WriteString(strings.ToUpper(strings.TrimSpace(method)))
	h.Write([]byte{0})
	h.WriteString(url)
	h.Write([]byte{0})
	h.Write(body)
	return h.Sum64()
}

// Snip bounds a body preview for history entries.
func Snip(body []byte, max int) string {
	if max <= 0 || len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
