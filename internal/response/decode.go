package response

import (
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
)

var zstdDecoder, _ = zstd.NewReader(nil)

// decodeBody undoes the Content-Encoding chain, last token first.
// Returns the body untouched when any token is unsupported or the
// payload turns out to be corrupt; normalization never fails on a
// bad body.
func decodeBody(body []byte, contentEncoding string) ([]byte, string) {
	if len(body) == 0 || contentEncoding == "" {
		return body, ""
	}

	tokens := splitEncodings(contentEncoding)
	if len(tokens) == 0 {
		return body, ""
	}

	decoded := body
	applied := make([]string, 0, len(tokens))
	for i := len(tokens) - 1; i >= 0; i-- {
		token := tokens[i]
		if token == "identity" {
			continue
		}
		out, err := decodeOne(decoded, token)
		if err != nil {
			return body, ""
		}
		decoded = out
		applied = append(applied, token)
	}
	if len(applied) == 0 {
		return body, ""
	}
	return decoded, strings.Join(applied, ",")
}

func decodeOne(body []byte, token string) ([]byte, error) {
	switch token {
	case "gzip", "x-gzip":
		reader, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		defer reader.Close()
		return io.ReadAll(reader)
	case "deflate":
		// Servers send both zlib-wrapped and raw deflate streams
		// under this token; try the RFC form first.
		if zr, err := zlib.NewReader(bytes.NewReader(body)); err == nil {
			out, readErr := io.ReadAll(zr)
			zr.Close()
			if readErr == nil {
				return out, nil
			}
		}
		reader := flate.NewReader(bytes.NewReader(body))
		defer reader.Close()
		return io.ReadAll(reader)
	case "zstd":
		return zstdDecoder.DecodeAll(body, nil)
	default:
		return nil, errUnsupportedEncoding(token)
	}
}

type errUnsupportedEncoding string

func (e errUnsupportedEncoding) Error() string {
	return "unsupported content encoding " + string(e)
}

func splitEncodings(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		token := strings.ToLower(strings.TrimSpace(part))
		if token == "" {
			continue
		}
		out = append(out, token)
	}
	return out
}
