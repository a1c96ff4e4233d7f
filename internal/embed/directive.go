// Package embed resolves ::embed[url]{options} directives into oEmbed markup.
package embed

import (
	"net/url"
	"regexp"
	"strings"
)

var (
	directivePattern = regexp.MustCompile(`::embed\[([^\]]+)\](?:\{([^}]*)\})?`)
	optionPattern    = regexp.MustCompile(`([A-Za-z][A-Za-z0-9_-]*)\s*=\s*(?:"([^"]*)"|(\S+))`)
)

// Directive is one ::embed occurrence in a body.
type Directive struct {
	Raw     string            `json:"raw"`
	URL     string            `json:"url"`
	Options map[string]string `json:"options,omitempty"`
	Start   int               `json:"start"`
	End     int               `json:"end"`
}

// Detect returns every directive in body in document order.
func Detect(body string) []Directive {
	matches := directivePattern.FindAllStringSubmatchIndex(body, -1)
	out := make([]Directive, 0, len(matches))
	for _, m := range matches {
		d := Directive{
			Raw:   body[m[0]:m[1]],
			URL:   strings.TrimSpace(body[m[2]:m[3]]),
			Start: m[0],
			End:   m[1],
		}
		if m[4] >= 0 {
			d.Options = ParseOptions(body[m[4]:m[5]])
		}
		out = append(out, d)
	}
	return out
}

// ParseOptions parses space separated key=value or key="quoted value" pairs.
func ParseOptions(s string) map[string]string {
	opts := make(map[string]string)
	for _, m := range optionPattern.FindAllStringSubmatch(s, -1) {
		value := m[2]
		if value == "" {
			value = m[3]
		}
		opts[strings.ToLower(m[1])] = value
	}
	return opts
}

var providers = []struct {
	name  string
	hosts []string
}{
	{"youtube", []string{"youtube.com", "youtu.be"}},
	{"vimeo", []string{"vimeo.com"}},
	{"twitter", []string{"twitter.com", "x.com"}},
	{"spotify", []string{"spotify.com"}},
	{"soundcloud", []string{"soundcloud.com"}},
	{"codepen", []string{"codepen.io"}},
	{"instagram", []string{"instagram.com"}},
}

// Validate reports the provider of an embeddable URL. Any absolute http(s)
// URL is embeddable; unknown hosts are "generic".
func Validate(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", false
	}

	host := strings.ToLower(u.Hostname())
	for _, p := range providers {
		for _, h := range p.hosts {
			if host == h || strings.HasSuffix(host, "."+h) {
				return p.name, true
			}
		}
	}
	return "generic", true
}
