package engine

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/unkn0wn-root/reqstage/internal/errdef"
	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
	"github.com/unkn0wn-root/reqstage/internal/transport"
)

// buildTransportRequest flattens a resolved request into the wire
// shape. A body-kind content type only applies when the user has not
// set one themselves.
func buildTransportRequest(req *reqmodel.Request) (transport.Request, error) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	out := transport.Request{
		Method:  method,
		URL:     strings.TrimSpace(req.URL),
		Headers: http.Header{},
	}
	for _, h := range req.EnabledHeaders() {
		out.Headers.Add(h.Name, h.Value)
	}

	body, contentType, err := encodeBody(req.Body)
	if err != nil {
		return transport.Request{}, err
	}
	out.Body = body
	if contentType != "" && out.Headers.Get("Content-Type") == "" {
		out.Headers.Set("Content-Type", contentType)
	}
	return out, nil
}

func encodeBody(src reqmodel.BodySource) ([]byte, string, error) {
	switch src.Kind {
	case reqmodel.BodyNone:
		if src.Text != "" {
			return []byte(src.Text), "", nil
		}
		return nil, "", nil
	case reqmodel.BodyText:
		return []byte(src.Text), "text/plain; charset=utf-8", nil
	case reqmodel.BodyJSON:
		return []byte(src.Text), "application/json", nil
	case reqmodel.BodyForm:
		form := url.Values{}
		for _, f := range src.Fields {
			if f.Enabled && strings.TrimSpace(f.Name) != "" {
				form.Add(f.Name, f.Value)
			}
		}
		return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
	case reqmodel.BodyMultipart:
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, f := range src.Fields {
			if !f.Enabled || strings.TrimSpace(f.Name) == "" {
				continue
			}
			if err := w.WriteField(f.Name, f.Value); err != nil {
				return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "encode multipart body")
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", errdef.Wrap(errdef.CodeHTTP, err, "encode multipart body")
		}
		return buf.Bytes(), w.FormDataContentType(), nil
	case reqmodel.BodyGraphQL:
		if src.GraphQL == nil || strings.TrimSpace(src.GraphQL.Query) == "" {
			return nil, "", errdef.New(errdef.CodeParse, "graphql body missing query")
		}
		envelope := map[string]any{"query": src.GraphQL.Query}
		if v := strings.TrimSpace(src.GraphQL.Variables); v != "" {
			if !json.Valid([]byte(v)) {
				return nil, "", errdef.New(errdef.CodeParse, "graphql variables are not valid json")
			}
			envelope["variables"] = json.RawMessage(v)
		}
		if src.GraphQL.OperationName != "" {
			envelope["operationName"] = src.GraphQL.OperationName
		}
		payload, err := json.Marshal(envelope)
		if err != nil {
			return nil, "", errdef.Wrap(errdef.CodeParse, err, "encode graphql body")
		}
		return payload, "application/json", nil
	default:
		return nil, "", errdef.New(errdef.CodeHTTP, "unsupported body kind %q", src.Kind)
	}
}
