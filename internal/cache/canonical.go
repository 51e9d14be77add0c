package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// KeyFor computes the Cache Store's primary key for a URL: the hex-encoded
// SHA-256 digest of the canonicalized URL string. Two URLs with identical
// canonical byte-sequences produce the same key; differing URLs produce
// differing keys with overwhelming probability.
func KeyFor(rawURL string) string {
	digest := sha256.Sum256([]byte(CanonicalizeURL(rawURL)))
	return hex.EncodeToString(digest[:])
}

// CanonicalizeURL normalizes a URL for keying and deduplication:
//   - lowercases scheme and host
//   - removes the fragment
//   - sorts query parameters (and their repeated values)
//   - strips default ports (80 for http, 443 for https)
//   - removes a trailing slash, except for the root path
func CanonicalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	host := u.Hostname()
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		u.Host = host
	}

	if u.RawQuery != "" {
		params := u.Query()
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var sorted []string
		for _, k := range keys {
			vals := append([]string(nil), params[k]...)
			sort.Strings(vals)
			for _, v := range vals {
				sorted = append(sorted, url.QueryEscape(k)+"="+url.QueryEscape(v))
			}
		}
		u.RawQuery = strings.Join(sorted, "&")
	}

	if u.Path != "/" && strings.HasSuffix(u.Path, "/") {
		u.Path = strings.TrimRight(u.Path, "/")
	}
	if u.Path == "" {
		u.Path = "/"
	}

	return u.String()
}
