package scan

import (
	"net/url"
	"strings"
)

// NormalizeURL canonicalizes a URL to a stable deduplication key.
// It lowercases the scheme and host, removes default ports, strips the
// fragment, strips a single trailing slash unless the path is exactly "/",
// and sorts query parameters by key. Two URLs that normalize identically
// are considered the same page.
//
// Malformed input is returned unchanged; normalization never fails.
func NormalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	if u.Scheme == "http" {
		u.Host = strings.TrimSuffix(u.Host, ":80")
	}
	if u.Scheme == "https" {
		u.Host = strings.TrimSuffix(u.Host, ":443")
	}

	u.Fragment = ""

	if strings.HasSuffix(u.Path, "/") && u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	// url.Values.Encode serializes keys in sorted order.
	u.RawQuery = u.Query().Encode()

	return u.String()
}
