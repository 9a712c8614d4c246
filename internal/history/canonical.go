package history

import (
	"net/url"
	"path"
	"strings"
)

// Canonicalize normalizes a URL into the merge key used for history
// deduplication: scheme and host are lower-cased and a single trailing slash
// is stripped. Path, query, and fragment are otherwise preserved, since they
// distinguish different downloads on the same site.
func Canonicalize(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		// Not a parseable absolute URL; fall back to a textual normalize.
		return strings.TrimSuffix(trimmed, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	out := u.String()
	return strings.TrimSuffix(out, "/")
}

// DisplayName derives a human-readable label from a URL when no filename or
// title is known: the last path segment, or the host when the path is bare.
func DisplayName(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return raw
	}
	segment := path.Base(strings.TrimSuffix(u.Path, "/"))
	if segment == "" || segment == "." || segment == "/" {
		return u.Host
	}
	if unescaped, err := url.PathUnescape(segment); err == nil {
		segment = unescaped
	}
	return segment
}
