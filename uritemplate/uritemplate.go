// Package uritemplate implements the RFC 6570 subset used by MCP resource
// templates: simple path expansion ({name}) and form-style query expansion
// ({?a,b,c}). Templates compile lazily on first match.
package uritemplate

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"sync"
)

var varNameRe = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// Template is a compiled URI template matcher. Safe for concurrent use.
type Template struct {
	raw string

	once     sync.Once
	compiled *compiled
	err      error
}

type compiled struct {
	pathRe    *regexp.Regexp
	pathVars  []string
	queryVars []string
}

// New creates a template matcher. Compilation is deferred to the first
// Match or Validate call.
func New(template string) *Template {
	return &Template{raw: template}
}

// Raw returns the template string as registered.
func (t *Template) Raw() string {
	return t.raw
}

// Validate forces compilation and returns any template syntax error.
func (t *Template) Validate() error {
	t.compile()
	return t.err
}

func (t *Template) compile() {
	t.once.Do(func() {
		t.compiled, t.err = compile(t.raw)
	})
}

func compile(template string) (*compiled, error) {
	pathPart := template
	queryPart := ""

	// A trailing {?a,b,c} expression introduces query variables.
	if idx := strings.Index(template, "{?"); idx >= 0 {
		if !strings.HasSuffix(template, "}") {
			return nil, fmt.Errorf("unterminated query expression in template %q", template)
		}
		pathPart = template[:idx]
		queryPart = template[idx+2 : len(template)-1]
	}

	c := &compiled{}
	if queryPart != "" {
		for _, name := range strings.Split(queryPart, ",") {
			name = strings.TrimSpace(name)
			if !varNameRe.MatchString(name) {
				return nil, fmt.Errorf("invalid query variable %q in template %q", name, template)
			}
			c.queryVars = append(c.queryVars, name)
		}
	}

	// Translate the path part into an anchored regexp, replacing each {name}
	// with a capture group that stops at the next path or query delimiter.
	var pattern strings.Builder
	pattern.WriteString("^")
	rest := pathPart
	for {
		open := strings.Index(rest, "{")
		if open < 0 {
			pattern.WriteString(regexp.QuoteMeta(rest))
			break
		}
		closing := strings.Index(rest, "}")
		if closing < open {
			return nil, fmt.Errorf("unbalanced braces in template %q", template)
		}
		name := rest[open+1 : closing]
		if !varNameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid path variable %q in template %q", name, template)
		}
		pattern.WriteString(regexp.QuoteMeta(rest[:open]))
		pattern.WriteString(`([^/?#]+)`)
		c.pathVars = append(c.pathVars, name)
		rest = rest[closing+1:]
	}
	pattern.WriteString("$")

	re, err := regexp.Compile(pattern.String())
	if err != nil {
		return nil, fmt.Errorf("failed to compile template %q: %w", template, err)
	}
	c.pathRe = re
	return c, nil
}

// Match tests a URI against the template. It returns the extracted variable
// map on success and nil when the URI does not match. Query variables are
// optional: absent ones are simply omitted from the map.
func (t *Template) Match(uri string) map[string]string {
	t.compile()
	if t.err != nil {
		return nil
	}

	pathPart := uri
	rawQuery := ""
	if idx := strings.IndexByte(uri, '?'); idx >= 0 {
		pathPart = uri[:idx]
		rawQuery = uri[idx+1:]
	}

	m := t.compiled.pathRe.FindStringSubmatch(pathPart)
	if m == nil {
		return nil
	}

	vars := make(map[string]string, len(t.compiled.pathVars)+len(t.compiled.queryVars))
	for i, name := range t.compiled.pathVars {
		value, err := url.PathUnescape(m[i+1])
		if err != nil {
			return nil
		}
		vars[name] = value
	}

	if rawQuery != "" {
		values, err := url.ParseQuery(rawQuery)
		if err != nil {
			return nil
		}
		for _, name := range t.compiled.queryVars {
			if v, ok := values[name]; ok && len(v) > 0 {
				vars[name] = v[0]
			}
		}
	}
	return vars
}
