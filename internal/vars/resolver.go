package vars

import (
	"regexp"
	"strings"

	"github.com/unkn0wn-root/reqstage/internal/reqmodel"
)

// UnresolvedMode controls what happens to {{tokens}} that have no value
// in the map: keep them verbatim so the user can spot them, or blank
// them out for consumers that need a clean string.
type UnresolvedMode int

const (
	KeepUnresolved UnresolvedMode = iota
	BlankUnresolved
)

var templateVarPattern = regexp.MustCompile(`\{\{(\w+)\}\}`)

// Resolve substitutes every {{name}} token with its value from values.
// Missing names are left verbatim; substitution never fails.
func Resolve(input string, values map[string]string) string {
	return ResolveWith(input, values, KeepUnresolved)
}

func ResolveWith(input string, values map[string]string, mode UnresolvedMode) string {
	if input == "" || !strings.Contains(input, "{{") {
		return input
	}
	return templateVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		name := match[2 : len(match)-2]
		if value, ok := values[name]; ok {
			return value
		}
		if mode == BlankUnresolved {
			return ""
		}
		return match
	})
}

// ExtractNames returns the token names in first-appearance order, each
// name once.
func ExtractNames(input string) []string {
	matches := templateVarPattern.FindAllStringSubmatch(input, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, dup := seen[m[1]]; dup {
			continue
		}
		seen[m[1]] = struct{}{}
		names = append(names, m[1])
	}
	return names
}

// HasUnresolved reports whether input still contains a token the map
// cannot satisfy.
func HasUnresolved(input string, values map[string]string) bool {
	for _, name := range ExtractNames(input) {
		if _, ok := values[name]; !ok {
			return true
		}
	}
	return false
}

// Merge flattens maps in ascending precedence: a key in a later map
// overrides the same key in an earlier one. The argument order is the
// precedence contract; callers pass request vars first and the
// strongest override last.
func Merge(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// ForRequest assembles the per-execution variable map for a request:
// request-level vars, then its document's shared vars, then the active
// environment, then the document's override block for that environment.
// The map is ephemeral and rebuilt on every execution.
func ForRequest(
	req *reqmodel.Request,
	doc *reqmodel.Document,
	env *reqmodel.Environment,
) map[string]string {
	var reqVars, docVars, envVars, overrides map[string]string
	if req != nil {
		reqVars = req.Variables
	}
	if doc != nil {
		docVars = doc.Variables
	}
	if env != nil {
		envVars = env.Variables
		if doc != nil {
			overrides = doc.EnvOverrides[env.Name]
		}
	}
	return Merge(reqVars, docVars, envVars, overrides)
}

// ResolveRequest returns a copy of req with URL, header names and
// values, and body text substituted. The input request is never
// mutated.
func ResolveRequest(
	req *reqmodel.Request,
	values map[string]string,
	mode UnresolvedMode,
) *reqmodel.Request {
	if req == nil {
		return nil
	}
	out := req.Clone()
	out.URL = ResolveWith(out.URL, values, mode)
	for i := range out.Headers {
		out.Headers[i].Name = ResolveWith(out.Headers[i].Name, values, mode)
		out.Headers[i].Value = ResolveWith(out.Headers[i].Value, values, mode)
	}
	out.Body.Text = ResolveWith(out.Body.Text, values, mode)
	for i := range out.Body.Fields {
		out.Body.Fields[i].Name = ResolveWith(out.Body.Fields[i].Name, values, mode)
		out.Body.Fields[i].Value = ResolveWith(out.Body.Fields[i].Value, values, mode)
	}
	if out.Body.GraphQL != nil {
		out.Body.GraphQL.Query = ResolveWith(out.Body.GraphQL.Query, values, mode)
		out.Body.GraphQL.Variables = ResolveWith(out.Body.GraphQL.Variables, values, mode)
	}
	return out
}
