package extractor

import (
	"net/url"
	"path"
	"strings"
)

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".ico": {}, ".svg": {}, ".webp": {},
}

var imagePathHints = []string{"logo", "icon", "favicon"}

// BaseURL returns the homepage URL probed for a domain.
func BaseURL(domain string) string {
	return "https://" + domain
}

// Fallback is the conventional favicon location under base. It is always
// producible, though it may not resolve to an image.
func Fallback(base string) string {
	return strings.TrimRight(base, "/") + "/favicon.ico"
}

// ResolveURL turns a candidate reference into an absolute http(s) URL.
// Protocol-relative references inherit the base scheme. It returns ""
// for empty, data: or otherwise unusable references.
func ResolveURL(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || base == nil {
		return ""
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

// IsImageURL reports whether a URL looks like it points at an image:
// a known image extension, or a path mentioning logo, icon or favicon.
func IsImageURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(strings.ToLower(raw))
	if err != nil {
		return false
	}
	if _, ok := imageExtensions[path.Ext(u.Path)]; ok {
		return true
	}
	for _, hint := range imagePathHints {
		if strings.Contains(u.Path, hint) {
			return true
		}
	}
	return false
}
