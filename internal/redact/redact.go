// Package redact strips sensitive material from strings before they reach
// logs or error responses. The indexer handles donated OAuth tokens and
// database credentials, so raw upstream and driver errors must never be
// logged verbatim.
package redact

import "regexp"

// Placeholders substituted for matched material.
const (
	CredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	TokenPlaceholder      = "[REDACTED_TOKEN]"
	PathPlaceholder       = "[REDACTED_PATH]"
	HostPlaceholder       = "[REDACTED_HOST]"
)

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// Rules are applied in order: credential-bearing URLs first so a DSN is
// collapsed before the host pattern sees its remainder.
var rules = []rule{
	// postgres://user:pass@  and neo4j://user:pass@  connection strings
	{regexp.MustCompile(`(?i)\b(postgres|postgresql|neo4j|bolt)(\+s(sc)?)?://[^@\s]+@`), CredentialPlaceholder},

	// Bearer values and OAuth token fields (access_token, refresh_token,
	// client_secret) in query strings, form bodies, or logged payloads
	{regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9_\-.~+/]{16,}=*`), TokenPlaceholder},
	{regexp.MustCompile(`(?i)(access_token|refresh_token|client_secret|api_key|password)([=:\s]['"]?)[^'"&\s]{3,}`), TokenPlaceholder},

	// Filesystem paths from driver and config errors
	{regexp.MustCompile(`(/[\w.-]+){2,}`), PathPlaceholder},

	// host:port endpoints from dial errors
	{regexp.MustCompile(`\b(?:[a-zA-Z0-9](?:[a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}:\d{1,5}\b`), HostPlaceholder},
}

// String returns input with every sensitive fragment replaced by its
// placeholder.
func String(input string) string {
	if input == "" {
		return input
	}
	out := input
	for _, r := range rules {
		out = r.pattern.ReplaceAllString(out, r.placeholder)
	}
	return out
}

// Error redacts err's message. Returns "" for a nil error.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
