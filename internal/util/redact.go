package util

import (
	"net/url"
	"strings"
)

// RedactURL masks credentials and token-like query values in a URL so it can
// be logged. Scheme, host and path are kept since they identify the remote.
// Example: "https://u:p@vault:8200/v1/x?token=abc" -> "https://***@vault:8200/v1/x?token=***"
func RedactURL(raw string) string {
	if raw == "" {
		return "none"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	if u.User != nil {
		u.User = url.User("***")
	}
	if u.RawQuery != "" {
		q := u.Query()
		for k := range q {
			if isSensitiveParam(k) {
				q.Set(k, "***")
			}
		}
		u.RawQuery = q.Encode()
	}
	// url.String escapes the mask; the literal form is easier to read in logs.
	return strings.ReplaceAll(u.String(), "%2A%2A%2A", "***")
}

func isSensitiveParam(name string) bool {
	name = strings.ToLower(name)
	for _, s := range []string{"token", "key", "secret", "password", "signature"} {
		if strings.Contains(name, s) {
			return true
		}
	}
	return false
}

// RedactKey masks most characters of a token or key share, showing only the
// first and last four.
// Example: "hvs.aVeryLongSecretToken" -> "hvs.***oken"
func RedactKey(key string) string {
	if len(key) < 12 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}

// SanitizePath masks the second path component of deep paths.
// Example: "/var/lib/vaulted/keys.json" -> "/var/***/vaulted/keys.json"
func SanitizePath(path string) string {
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		parts[2] = "***"
	}
	return strings.Join(parts, "/")
}
