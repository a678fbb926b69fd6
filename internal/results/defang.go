package results

import (
	"net/url"
	"strings"
)

// DefangDomain rewrites every dot as [.] so the value cannot be
// click-resolved when the report is shared.
func DefangDomain(domain string) string {
	if domain == "" {
		return ""
	}
	return strings.ReplaceAll(domain, ".", "[.]")
}

// DefangURL rewrites an http(s) URL so it cannot be click-resolved:
// the scheme's http prefix becomes hxxp and host dots become [.].
// Path, query, and fragment are preserved byte for byte. Strings that
// do not parse as a scheme-and-host URL — local filenames, bare words —
// pass through unchanged. Hostile URLs frequently carry bytes url.Parse
// rejects (stray percent escapes, control characters); anything with an
// http(s) prefix still gets its scheme and authority neutralized so a
// live indicator never reaches the report verbatim.
func DefangURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		if hasHTTPPrefix(raw) {
			return defangRaw(raw)
		}
		return raw
	}

	scheme := strings.Replace(u.Scheme, "http", "hxxp", 1)

	netloc := u.Host
	if u.User != nil {
		netloc = u.User.String() + "@" + netloc
	}
	netloc = strings.ReplaceAll(netloc, ".", "[.]")

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")
	b.WriteString(netloc)
	b.WriteString(u.EscapedPath())
	if u.RawQuery != "" {
		b.WriteString("?")
		b.WriteString(u.RawQuery)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.EscapedFragment())
	}
	return b.String()
}

func hasHTTPPrefix(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

// defangRaw neutralizes an unparseable http(s) string: the scheme
// becomes hxxp(s) and every dot up to the first path slash becomes [.].
// The remainder is kept byte for byte.
func defangRaw(raw string) string {
	rest := raw[len("http"):]
	authority := rest
	tail := ""
	if sep := strings.Index(rest, "://"); sep >= 0 {
		if slash := strings.Index(rest[sep+3:], "/"); slash >= 0 {
			authority = rest[:sep+3+slash]
			tail = rest[sep+3+slash:]
		}
	}
	return "hxxp" + strings.ReplaceAll(authority, ".", "[.]") + tail
}
