package diaglog

import "strings"

const redacted = "[REDACTED]"

// Keys matched case-insensitively, either exactly or as a "_<key>" suffix
// so that "remote_token" and "access_token" are caught too.
var sensitiveKeys = []string{"token", "authorization", "api_key", "apikey", "password", "secret"}

func sensitive(key string) bool {
	k := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if k == s || strings.HasSuffix(k, "_"+s) {
			return true
		}
	}
	return false
}

// Redact returns a copy of v with sensitive map values replaced. Maps and
// slices are walked recursively; other values pass through. v is not
// modified.
func Redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		m := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitive(k) {
				m[k] = redacted
				continue
			}
			m[k] = Redact(child)
		}
		return m
	case map[string]string:
		m := make(map[string]interface{}, len(val))
		for k, child := range val {
			if sensitive(k) {
				m[k] = redacted
				continue
			}
			m[k] = child
		}
		return m
	case []interface{}:
		s := make([]interface{}, len(val))
		for i := range val {
			s[i] = Redact(val[i])
		}
		return s
	}
	return v
}
