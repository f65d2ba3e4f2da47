// Package template substitutes {name} placeholders in URL templates.
package template

import (
	"net/url"
	"strings"

	"github.com/go-thor/rabbit/errors"
)

// Parser resolves placeholders from a name to value mapping.
//
//	http://api.example.com/users/{id}/repos?sort={{asc}}
//
// A placeholder may carry a constraint suffix, {id:[0-9]+}, which is
// ignored. Doubled braces produce literal braces.
type Parser struct {
	escape bool
}

// Option configures a Parser.
type Option func(*Parser)

// WithoutEscaping inserts values verbatim instead of path-escaping them.
func WithoutEscaping() Option {
	return func(p *Parser) {
		p.escape = false
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{escape: true}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns tpl with every placeholder replaced. A placeholder without
// a value fails with a template failure.
func (p *Parser) Parse(tpl string, values map[string]string) (string, error) {
	var b strings.Builder
	b.Grow(len(tpl))

	for i := 0; i < len(tpl); i++ {
		c := tpl[i]
		switch {
		case c == '{' && i+1 < len(tpl) && tpl[i+1] == '{':
			b.WriteByte('{')
			i++
		case c == '}' && i+1 < len(tpl) && tpl[i+1] == '}':
			b.WriteByte('}')
			i++
		case c == '{':
			end := strings.IndexByte(tpl[i+1:], '}')
			if end < 0 {
				return "", errors.Newf(errors.ErrorCodeTemplate, "unterminated placeholder at offset %d in %q", i, tpl)
			}
			name := placeholderName(tpl[i+1 : i+1+end])
			if name == "" {
				return "", errors.Newf(errors.ErrorCodeTemplate, "empty placeholder at offset %d in %q", i, tpl)
			}
			v, ok := values[name]
			if !ok {
				return "", errors.Newf(errors.ErrorCodeTemplate, "placeholder %q is not resolved", name)
			}
			b.WriteString(p.escapeValue(v))
			i += end + 1
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

// Names returns the placeholder names of tpl in order of appearance.
func Names(tpl string) []string {
	var names []string
	for i := 0; i < len(tpl); i++ {
		if tpl[i] != '{' {
			continue
		}
		if i+1 < len(tpl) && tpl[i+1] == '{' {
			i++
			continue
		}
		end := strings.IndexByte(tpl[i+1:], '}')
		if end < 0 {
			break
		}
		if name := placeholderName(tpl[i+1 : i+1+end]); name != "" {
			names = append(names, name)
		}
		i += end + 1
	}
	return names
}

func placeholderName(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}

func (p *Parser) escapeValue(v string) string {
	if !p.escape {
		return v
	}
	// Commas join multi-valued placeholders and are legal in a segment.
	return strings.ReplaceAll(url.PathEscape(v), "%2C", ",")
}
