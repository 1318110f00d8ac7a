// Package urlutil provides URL manipulation utilities that preserve original encoding.
package urlutil

import (
	"net/url"
	"strings"
)

// AbsoluteFrom makes src absolute using base for whatever is missing.
// The upstream emits scheme-relative media URLs ("//cdn…"); players need a
// scheme. String manipulation deliberately avoids url.ResolveReference,
// which re-encodes characters some CDNs are sensitive about.
func AbsoluteFrom(src, base string) string {
	switch {
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return src
	case strings.HasPrefix(src, "//"):
		return Scheme(base) + ":" + src
	case strings.HasPrefix(src, "/"):
		return GetSchemeHost(base) + src
	default:
		return baseDirectory(base) + src
	}
}

// Scheme returns the scheme of a URL, defaulting to https.
func Scheme(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return "https"
	}
	return parsed.Scheme
}

// GetSchemeHost extracts scheme://host from a URL.
func GetSchemeHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host
}

// baseDirectory returns the directory portion of a URL, query stripped.
func baseDirectory(rawURL string) string {
	if idx := strings.Index(rawURL, "?"); idx > 0 {
		rawURL = rawURL[:idx]
	}
	if lastSlash := strings.LastIndex(rawURL, "/"); lastSlash > strings.Index(rawURL, "//")+1 {
		return rawURL[:lastSlash+1]
	}
	return rawURL + "/"
}
