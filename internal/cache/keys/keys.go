// Package keys builds request signatures and the cache keys derived from them.
package keys

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

const (
	// FeatureVersion is bumped when feature engineering or a model contract
	// changes; old artifact keys stop matching.
	FeatureVersion = "v1"
	// ResponseVersion is bumped to orphan every cached response.
	ResponseVersion = "v1"

	ResponseNamespace = "resp:"
)

// DeriveKey returns "<endpoint>:<sha256 hex>" over endpoint, signature and version.
func DeriveKey(endpoint, signature, version string) string {
	ep := sanitizeEndpoint(endpoint)
	return ep + ":" + sum(strings.Join([]string{ep, signature, version}, "|"))
}

// ResponseKey returns "resp:<endpoint>:<sha256 hex>". The anchor and
// effective window are usually already part of the signature; they are
// folded in again so a key never outlives the window it was computed for.
func ResponseKey(endpoint, signature, anchor, start, end, version string) string {
	ep := sanitizeEndpoint(endpoint)
	raw := strings.Join([]string{ResponseNamespace + ep, signature, anchor, start, end, version}, "|")
	return ResponseNamespace + ep + ":" + sum(raw)
}

// ShortHash is a 12 hex char digest of key for logs and response meta.
func ShortHash(key string) string {
	return sum(key)[:12]
}

func EndpointPrefix(endpoint string) string {
	return sanitizeEndpoint(endpoint) + ":"
}

func ResponsePrefix(endpoint string) string {
	return ResponseNamespace + sanitizeEndpoint(endpoint) + ":"
}

func IsResponseKey(key string) bool {
	return strings.HasPrefix(key, ResponseNamespace)
}

func sum(s string) string {
	h := sha256.Sum256([]byte(s))
	return hex.EncodeToString(h[:])
}

// endpoint names end up as key prefixes, so ':' and '|' are not allowed in them
func sanitizeEndpoint(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(s))

	var prev rune
	for _, r := range s {
		out := rune(0)
		switch {
		case r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\v' || r == '\f':
			out = '_'
		case isAlphaNum(r) || r == '_' || r == '-' || r == '.' || r == '/':
			out = r
		default:
			// Any other rune (including non-ASCII) becomes '-'
			out = '-'
		}
		if (out == '_' || out == '-') && out == prev {
			continue
		}
		b.WriteRune(out)
		prev = out
	}
	return b.String()
}

func isAlphaNum(r rune) bool {
	return (r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		unicode.IsDigit(r)
}
