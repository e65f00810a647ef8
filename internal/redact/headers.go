// Package redact sanitizes captured traffic before it is stored or
// streamed to inspector clients. Secret-bearing header keys are
// replaced with a redaction marker; values never leave the process.
package redact

import "strings"

// Marker replaces redacted values in captured requests.
const Marker = "[REDACTED]"

// DefaultSecretKeys are header and query keys redacted automatically.
// Matching is case-insensitive and substring-based, so "X-Api-Key" and
// "authorization" are both caught.
var DefaultSecretKeys = []string{
	"authorization", "cookie", "set-cookie", "x-api-key", "api-key",
	"apikey", "x-auth-token", "auth-token", "token", "secret",
	"password", "x-csrf-token", "session",
}

// Sanitizer redacts secret-bearing keys from header and query maps.
type Sanitizer struct {
	keys []string
}

// NewSanitizer creates a Sanitizer redacting the default secret keys
// plus any extra keys. Extra keys are lowercased for matching.
func NewSanitizer(extraKeys ...string) *Sanitizer {
	keys := make([]string, 0, len(DefaultSecretKeys)+len(extraKeys))
	keys = append(keys, DefaultSecretKeys...)
	for _, k := range extraKeys {
		keys = append(keys, strings.ToLower(k))
	}
	return &Sanitizer{keys: keys}
}

// IsSecretKey reports whether a header or query key should be redacted.
func (s *Sanitizer) IsSecretKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range s.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

// Headers returns a copy of the map with secret values replaced by
// Marker. The input map is never mutated. Nil input returns an empty,
// non-nil map so callers can serialize it directly.
func (s *Sanitizer) Headers(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		if s.IsSecretKey(k) {
			out[k] = Marker
		} else {
			out[k] = v
		}
	}
	return out
}

// Values redacts a multi-valued header map (e.g. http.Header).
func (s *Sanitizer) Values(headers map[string][]string) map[string][]string {
	out := make(map[string][]string, len(headers))
	for k, vs := range headers {
		if s.IsSecretKey(k) {
			out[k] = []string{Marker}
			continue
		}
		cp := make([]string, len(vs))
		copy(cp, vs)
		out[k] = cp
	}
	return out
}
