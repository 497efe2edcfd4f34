package credentials

import (
	"regexp"
	"strings"
)

const (
	redactedUserInfoReplacementConstant = "${scheme}" + redactedPlaceholderConstant + "@"
)

var urlUserInfoPattern = regexp.MustCompile(`(?P<scheme>[A-Za-z][A-Za-z0-9+.-]*://)[^/@\s]+@`)

// Sanitize removes credentials from text: userinfo in any URL is replaced and
// every occurrence of the supplied tokens is redacted.
func Sanitize(text string, tokens ...Token) string {
	if len(text) == 0 {
		return text
	}

	sanitized := urlUserInfoPattern.ReplaceAllString(text, redactedUserInfoReplacementConstant)
	for _, token := range tokens {
		if token.IsEmpty() {
			continue
		}
		sanitized = strings.ReplaceAll(sanitized, token.value, redactedPlaceholderConstant)
	}
	return sanitized
}

// StripURLCredentials removes the userinfo component from a remote URL so it can be
// reported back to the user or used for lookups.
func StripURLCredentials(remoteURL string) string {
	return urlUserInfoPattern.ReplaceAllString(remoteURL, "${scheme}")
}

// SanitizeArguments returns a copy of arguments with credentials removed from each entry.
func SanitizeArguments(arguments []string, tokens ...Token) []string {
	sanitized := make([]string, 0, len(arguments))
	for _, argument := range arguments {
		sanitized = append(sanitized, Sanitize(argument, tokens...))
	}
	return sanitized
}
