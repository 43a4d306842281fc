package reqmodel

import "strings"

// RequestSource records where a request definition came from. Imported
// requests keep their origin so the UI can badge them; the engine treats
// all sources identically.
type RequestSource string

const (
	SourceManual        RequestSource = "manual"
	SourceImportedHTTP  RequestSource = "imported-http"
	SourceImportedBruno RequestSource = "imported-bruno"
)

type BodyKind string

const (
	BodyNone      BodyKind = ""
	BodyText      BodyKind = "text"
	BodyJSON      BodyKind = "json"
	BodyForm      BodyKind = "form"
	BodyMultipart BodyKind = "multipart"
	BodyGraphQL   BodyKind = "graphql"
)

type Header struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type FormField struct {
	Name    string `json:"name"`
	Value   string `json:"value"`
	Enabled bool   `json:"enabled"`
}

type GraphQLBody struct {
	Query         string `json:"query"`
	Variables     string `json:"variables,omitempty"`
	OperationName string `json:"operationName,omitempty"`
}

type BodySource struct {
	Kind    BodyKind     `json:"kind,omitempty"`
	Text    string       `json:"text,omitempty"`
	Fields  []FormField  `json:"fields,omitempty"`
	GraphQL *GraphQLBody `json:"graphql,omitempty"`
}

func (b BodySource) Empty() bool {
	return b.Kind == BodyNone && b.Text == "" && len(b.Fields) == 0 && b.GraphQL == nil
}

// Request is the executable unit. FileID and FolderID tie it back to the
// container that owns it; auth configuration is looked up by those ids,
// never embedded here.
type Request struct {
	ID        string            `json:"id"`
	Name      string            `json:"name,omitempty"`
	Method    string            `json:"method"`
	URL       string            `json:"url"`
	Headers   []Header          `json:"headers,omitempty"`
	Body      BodySource        `json:"body,omitempty"`
	Variables map[string]string `json:"variables,omitempty"`
	Source    RequestSource     `json:"source,omitempty"`
	FileID    string            `json:"fileId,omitempty"`
	FolderID  string            `json:"folderId,omitempty"`
}

func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	out.Headers = append([]Header(nil), r.Headers...)
	if r.Body.Fields != nil {
		out.Body.Fields = append([]FormField(nil), r.Body.Fields...)
	}
	if r.Body.GraphQL != nil {
		gql := *r.Body.GraphQL
		out.Body.GraphQL = &gql
	}
	if r.Variables != nil {
		out.Variables = make(map[string]string, len(r.Variables))
		for k, v := range r.Variables {
			out.Variables[k] = v
		}
	}
	return &out
}

// EnabledHeaders filters out rows the user toggled off in the builder.
func (r *Request) EnabledHeaders() []Header {
	if r == nil {
		return nil
	}
	out := make([]Header, 0, len(r.Headers))
	for _, h := range r.Headers {
		if h.Enabled && strings.TrimSpace(h.Name) != "" {
			out = append(out, h)
		}
	}
	return out
}

type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

// Document is an imported file or a manually-built collection: the
// container owning requests, folder structure, shared variables, and
// per-environment overrides.
type Document struct {
	ID           string                       `json:"id"`
	Name         string                       `json:"name"`
	Source       RequestSource                `json:"source,omitempty"`
	Variables    map[string]string            `json:"variables,omitempty"`
	EnvOverrides map[string]map[string]string `json:"envOverrides,omitempty"`
	Folders      []Folder                     `json:"folders,omitempty"`
	Requests     []*Request                   `json:"requests,omitempty"`
}

func (d *Document) FindRequest(id string) *Request {
	if d == nil {
		return nil
	}
	for _, req := range d.Requests {
		if req != nil && req.ID == id {
			return req
		}
	}
	return nil
}

func (d *Document) FindFolder(id string) *Folder {
	if d == nil || id == "" {
		return nil
	}
	for i := range d.Folders {
		if d.Folders[i].ID == id {
			return &d.Folders[i]
		}
	}
	return nil
}

// Environment is a named variable set the user can activate globally.
type Environment struct {
	Name      string            `json:"name"`
	Variables map[string]string `json:"variables,omitempty"`
}
