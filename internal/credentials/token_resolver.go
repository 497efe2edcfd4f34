package credentials

import (
	"strings"
)

// Environment variable names consulted when no token is configured explicitly.
const (
	EnvGitHubCLIToken = "GH_TOKEN"
	EnvGitHubToken    = "GITHUB_TOKEN"
	EnvGitLabToken    = "GITLAB_TOKEN"
)

var tokenPreferenceByPlatform = map[string][]string{
	"github": {EnvGitHubCLIToken, EnvGitHubToken},
	"gitlab": {EnvGitLabToken},
}

// ResolveToken returns the configured token when present, otherwise the first
// non-empty platform-specific variable found in environment. The environment map
// is supplied by the command layer.
func ResolveToken(configuredToken string, platformKind string, environment map[string]string) (Token, bool) {
	if token := NewToken(configuredToken); !token.IsEmpty() {
		return token, true
	}

	for _, key := range tokenPreferenceByPlatform[strings.ToLower(strings.TrimSpace(platformKind))] {
		if value, ok := lookup(environment, key); ok {
			return NewToken(value), true
		}
	}
	return Token{}, false
}

func lookup(environment map[string]string, key string) (string, bool) {
	if environment == nil {
		return "", false
	}
	value, exists := environment[key]
	if !exists {
		return "", false
	}
	value = strings.TrimSpace(value)
	if len(value) == 0 {
		return "", false
	}
	return value, true
}
