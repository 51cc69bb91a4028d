package infra

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"sort"
	"strings"
)

// secretParams are query parameters whose values are replaced before
// fingerprinting and before echoing URLs to users, so the same logical
// request hashes identically regardless of which key was used and no
// credential leaks into responses or logs.
var secretParams = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"apiKey":        true,
	"key":           true,
	"token":         true,
	"access_key":    true,
	"subscription-key": true,
}

// SecretPlaceholder replaces secret parameter values in echoed URLs.
const SecretPlaceholder = "REDACTED"

// volatileParams never affect the response payload and are stripped
// before hashing.
var volatileParams = map[string]bool{
	"_":         true,
	"timestamp": true,
	"nonce":     true,
}

// CanonicalURL normalizes a request URL for fingerprinting and echoing:
// lower-cased scheme and host, query parameters sorted by key, secret
// values replaced, volatile parameters dropped. Unparseable input is
// returned unchanged.
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)

	q := u.Query()
	keys := make([]string, 0, len(q))
	for k := range q {
		if volatileParams[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vals := q[k]
		sort.Strings(vals)
		for _, v := range vals {
			if secretParams[k] {
				v = SecretPlaceholder
			}
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	u.RawQuery = b.String()
	u.Fragment = ""
	return u.String()
}

// Fingerprint returns the cache key for an upstream request: the sha256
// hex digest of its canonical URL. Requests differing only in parameter
// order or API key collapse to the same key.
func Fingerprint(rawURL string) string {
	sum := sha256.Sum256([]byte(CanonicalURL(rawURL)))
	return hex.EncodeToString(sum[:])
}
