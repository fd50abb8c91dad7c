// Package urlnorm canonicalizes page URLs so cache lookups are stable
// regardless of fragment, trailing slash or query parameter order.
package urlnorm

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
)

// ErrInvalidURL is returned when the input is not an absolute URL.
var ErrInvalidURL = errors.New("urlnorm: invalid url")

// Normalize returns scheme://host[path][?sorted-query] for raw.
// The fragment and userinfo are dropped, scheme and host are lowercased,
// default ports are removed, trailing slashes are stripped from the path
// (a root path becomes empty) and query parameters are sorted by key then
// value and re-encoded. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty url", ErrInvalidURL)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%w: %q is not absolute", ErrInvalidURL, raw)
	}

	scheme := strings.ToLower(u.Scheme)
	host := stripDefaultPort(scheme, strings.ToLower(u.Host))

	path := strings.TrimRight(u.EscapedPath(), "/")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(host)
	b.WriteString(path)
	if q := sortedQuery(u.RawQuery); q != "" {
		b.WriteByte('?')
		b.WriteString(q)
	}
	return b.String(), nil
}

func stripDefaultPort(scheme, host string) string {
	h, port, err := net.SplitHostPort(host)
	if err != nil {
		return host
	}
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		if strings.Contains(h, ":") {
			return "[" + h + "]"
		}
		return h
	}
	return host
}

type param struct{ key, value string }

func sortedQuery(raw string) string {
	if raw == "" {
		return ""
	}
	var params []param
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		params = append(params, param{unescape(k), unescape(v)})
	}
	sort.Slice(params, func(i, j int) bool {
		if params[i].key == params[j].key {
			return params[i].value < params[j].value
		}
		return params[i].key < params[j].key
	})

	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(p.key))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(p.value))
	}
	return b.String()
}

// unescape keeps the raw text when s holds a malformed escape, so a pair
// like q=%zz survives as a literal.
func unescape(s string) string {
	u, err := url.QueryUnescape(s)
	if err != nil {
		return s
	}
	return u
}
