// Package request renders endpoint templates into concrete request URLs and
// query parameters.
package request

import (
	"fmt"
	"maps"
	"regexp"
	"strings"

	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

// placeholder matches {name} references in templates.
var placeholder = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Template is the request part of an endpoint definition.
type Template struct {
	// Path is appended to the base URL, e.g. "/balancing/settlement/system-prices/{date}".
	Path string

	// Query maps parameter names to templated values.
	Query map[string]string
}

// TemplateError reports a placeholder with no matching context field.
type TemplateError struct {
	Template    string
	Placeholder string
	Context     string
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q: no context field %q (context %s)", e.Template, e.Placeholder, e.Context)
}

// Build substitutes context fields into tmpl and joins the path onto
// baseURL (trailing slashes trimmed). Extra parameters win over template
// parameters with the same name.
func Build(baseURL string, tmpl Template, ctx window.Context, extra map[string]string) (string, map[string]string, error) {
	values := make(map[string]string)
	for _, f := range ctx.Fields() {
		values[f.Name] = fmt.Sprint(f.Value)
	}
	describe := func() string { return fmt.Sprintf("%s %s", ctx.Kind(), ctx.Day()) }

	path, err := render(tmpl.Path, values)
	if err != nil {
		err.Context = describe()
		return "", nil, err
	}

	params := make(map[string]string, len(tmpl.Query)+len(extra))
	for name, raw := range tmpl.Query {
		value, err := render(raw, values)
		if err != nil {
			err.Context = describe()
			return "", nil, err
		}
		params[name] = value
	}
	maps.Copy(params, extra)

	return strings.TrimRight(baseURL, "/") + path, params, nil
}

// render replaces every placeholder in s.
func render(s string, values map[string]string) (string, *TemplateError) {
	var missing *TemplateError
	out := placeholder.ReplaceAllStringFunc(s, func(m string) string {
		name := m[1 : len(m)-1]
		v, ok := values[name]
		if !ok {
			if missing == nil {
				missing = &TemplateError{Template: s, Placeholder: name}
			}
			return m
		}
		return v
	})
	if missing != nil {
		return "", missing
	}
	return out, nil
}

// Placeholders returns the distinct placeholder names in s in order of
// first appearance.
func Placeholders(s string) []string {
	var names []string
	seen := make(map[string]bool)
	for _, m := range placeholder.FindAllStringSubmatch(s, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	return names
}
