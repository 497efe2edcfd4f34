// Package pathutils resolves user-supplied filesystem paths.
package pathutils

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	tildeSymbolConstant             = "~"
	tildeForwardSlashPrefixConstant = "~/"
)

var tildeWithPathSeparatorPrefix = tildeSymbolConstant + string(os.PathSeparator)

// HomeDirectoryProvider resolves the current user's home directory path.
type HomeDirectoryProvider func() (string, error)

// HomeExpander converts user home shortcuts to absolute paths. The home
// directory is looked up once.
type HomeExpander struct {
	homeDirectoryProvider HomeDirectoryProvider
	homeDirectory         string
	homeDirectoryError    error
	initializationGuard   sync.Once
}

// NewHomeExpander constructs a HomeExpander using the operating system lookup.
func NewHomeExpander() *HomeExpander {
	return NewHomeExpanderWithProvider(os.UserHomeDir)
}

// NewHomeExpanderWithProvider constructs a HomeExpander with a custom provider.
func NewHomeExpanderWithProvider(provider HomeDirectoryProvider) *HomeExpander {
	if provider == nil {
		provider = os.UserHomeDir
	}
	return &HomeExpander{homeDirectoryProvider: provider}
}

// Expand resolves a leading "~" to the user's home directory. Blank input
// stays blank and paths without a tilde prefix are returned trimmed.
func (expander *HomeExpander) Expand(candidatePath string) string {
	trimmedPath := strings.TrimSpace(candidatePath)
	if expander == nil || !strings.HasPrefix(trimmedPath, tildeSymbolConstant) {
		return trimmedPath
	}

	homeDirectory := expander.resolveHomeDirectory()
	if len(homeDirectory) == 0 {
		return trimmedPath
	}
	if trimmedPath == tildeSymbolConstant {
		return homeDirectory
	}
	for _, prefix := range []string{tildeForwardSlashPrefixConstant, tildeWithPathSeparatorPrefix} {
		if strings.HasPrefix(trimmedPath, prefix) {
			return filepath.Join(homeDirectory, strings.TrimPrefix(trimmedPath, prefix))
		}
	}
	return trimmedPath
}

// ExpandAll expands every path.
func (expander *HomeExpander) ExpandAll(candidatePaths []string) []string {
	expanded := make([]string, 0, len(candidatePaths))
	for _, candidatePath := range candidatePaths {
		expanded = append(expanded, expander.Expand(candidatePath))
	}
	return expanded
}

func (expander *HomeExpander) resolveHomeDirectory() string {
	expander.initializationGuard.Do(func() {
		expander.homeDirectory, expander.homeDirectoryError = expander.homeDirectoryProvider()
	})
	if expander.homeDirectoryError != nil {
		return ""
	}
	return expander.homeDirectory
}
