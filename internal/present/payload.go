// Package present shows scan results and runs the result actions: copy to
// clipboard, open as URL and share to a directory.
package present

import (
	"net/url"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// TimestampLayout renders detection times like "Aug 21, 2025, 2:05:12 PM".
const TimestampLayout = "Jan 2, 2006, 3:04:05 PM"

// FormatTimestamp formats t in local time with TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.Local().Format(TimestampLayout)
}

// SanitizePayload NFC-normalizes s and removes control characters other than
// newline and tab.
func SanitizePayload(s string) string {
	s = norm.NFC.String(s)
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) || r == unicode.ReplacementChar {
			return -1
		}
		return r
	}, s)
}

// NormalizeURL turns a payload into an openable URL. Payloads with an http
// or https scheme are kept, bare hosts get an http:// prefix. Text with
// whitespace, without a dot in the host, or with another scheme is refused.
func NormalizeURL(payload string) (string, bool) {
	s := strings.TrimSpace(payload)
	if s == "" || strings.ContainsFunc(s, unicode.IsSpace) {
		return "", false
	}

	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		if strings.Contains(s, "://") || strings.HasPrefix(lower, "mailto:") {
			return "", false
		}
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return "", false
	}
	if !strings.Contains(u.Hostname(), ".") {
		return "", false
	}
	return u.String(), true
}
