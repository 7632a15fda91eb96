package health

import "regexp"

// Redaction rules applied in order. URLs go first since they embed hosts, ports and
// user info; paths go before credentials so "client.key: permission denied" stays a path.
var redactions = []struct {
	pattern     *regexp.Regexp
	replacement string
}{
	{regexp.MustCompile(`(?i)\b[a-z][a-z0-9+.-]*://[^\s,;]+`), "[URL]"},
	{regexp.MustCompile(`(^|\s)/[a-zA-Z0-9/_.-]+`), "${1}[PATH]"},
	{regexp.MustCompile(`[A-Z]:\\[^:\s]+`), "[PATH]"},
	{regexp.MustCompile(`(?i)\b(password|passwd|token|secret|credentials?|key)\s*[:=]\s*[^,\s}]+`), "[REDACTED]"},
	{regexp.MustCompile(`\b\d{1,3}(?:\.\d{1,3}){3}(?::\d{1,5})?\b`), "[ADDR]"},
	{regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9.-]*:\d{2,5}\b`), "[ADDR]"},
}

// sanitizeErrorMessage strips endpoints, file paths and credential-like fragments
// from a probe error.
func sanitizeErrorMessage(msg string) string {
	for _, r := range redactions {
		msg = r.pattern.ReplaceAllString(msg, r.replacement)
	}
	return msg
}
