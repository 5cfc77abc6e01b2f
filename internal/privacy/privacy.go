// Package privacy strips credentials and tokens from URLs before they reach
// logs, notifications or telemetry. Notification service URLs carry their
// tokens in the user info and path, backend URLs sometimes in the query.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// Pre-compiled so scrubbing stays cheap on hot error paths.
var urlPattern = regexp.MustCompile(`\b[a-zA-Z][a-zA-Z0-9+.-]*://[^\s"']+`)

// ScrubMessage replaces every URL in message with its RedactURL form.
func ScrubMessage(message string) string {
	return urlPattern.ReplaceAllStringFunc(message, RedactURL)
}

// RedactURL keeps scheme, host and port and drops user info, path, query
// and fragment. Unparseable input collapses to "[redacted-url]".
func RedactURL(rawURL string) string {
	u, err := url.Parse(strings.TrimRight(rawURL, ".,;)"))
	if err != nil || u.Scheme == "" {
		return "[redacted-url]"
	}

	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	if u.User != nil {
		b.WriteString("***@")
	}
	b.WriteString(u.Host)
	if (u.Path != "" && u.Path != "/") || u.RawQuery != "" || u.Fragment != "" {
		b.WriteString("/...")
	}
	return b.String()
}

// ServiceName returns the scheme of a notification service URL, e.g.
// "telegram" for telegram://token@telegram?chats=1, or "unknown".
func ServiceName(rawURL string) string {
	scheme, _, ok := strings.Cut(rawURL, "://")
	if !ok || scheme == "" {
		return "unknown"
	}
	return strings.ToLower(scheme)
}
