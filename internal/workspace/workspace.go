// Package workspace manages the scratch directory a command clones into.
package workspace

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	directoryPatternTemplateConstant = "repofleet-%s-*"
	claimedPathTemplateConstant      = "path %q is already claimed in this workspace"
	invalidNameTemplateConstant      = "invalid workspace entry name %q"
	fileSystemMissingMessageConstant = "workspace file system not configured"
	currentDirectoryNameConstant     = "."
	parentDirectoryNameConstant      = ".."
)

// ErrFileSystemNotConfigured indicates a workspace without a file system.
var ErrFileSystemNotConfigured = errors.New(fileSystemMissingMessageConstant)

// FileSystem abstracts the operations a workspace needs.
type FileSystem interface {
	MkdirTemp(parent string, pattern string) (string, error)
	RemoveAll(path string) error
}

// OSFileSystem implements FileSystem with the operating system primitives.
type OSFileSystem struct{}

// MkdirTemp creates a uniquely named directory under parent.
func (OSFileSystem) MkdirTemp(parent string, pattern string) (string, error) {
	return os.MkdirTemp(parent, pattern)
}

// RemoveAll removes a directory tree.
func (OSFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

// ClaimError reports a second claim of the same entry.
type ClaimError struct {
	Path string
}

// Error describes the conflicting claim.
func (claimError ClaimError) Error() string {
	return fmt.Sprintf(claimedPathTemplateConstant, claimError.Path)
}

// Workspace is a per-invocation scratch directory. Each entry is handed out
// once, so no two clones share a destination.
type Workspace struct {
	fileSystem FileSystem
	root       string
	mutex      sync.Mutex
	claimed    map[string]struct{}
}

// New creates a workspace directory under parent, or under the system
// temporary directory when parent is empty. runIdentifier becomes part of the
// directory name.
func New(fileSystem FileSystem, parent string, runIdentifier string) (*Workspace, error) {
	if fileSystem == nil {
		return nil, ErrFileSystemNotConfigured
	}
	root, creationError := fileSystem.MkdirTemp(parent, fmt.Sprintf(directoryPatternTemplateConstant, runIdentifier))
	if creationError != nil {
		return nil, creationError
	}
	return &Workspace{fileSystem: fileSystem, root: root, claimed: make(map[string]struct{})}, nil
}

// Root reports the workspace directory.
func (workspace *Workspace) Root() string {
	return workspace.root
}

// Claim reserves the entry called name and returns its path.
func (workspace *Workspace) Claim(name string) (string, error) {
	trimmedName := strings.TrimSpace(name)
	if len(trimmedName) == 0 || trimmedName == currentDirectoryNameConstant || trimmedName == parentDirectoryNameConstant || strings.ContainsAny(trimmedName, `/\`) {
		return "", fmt.Errorf(invalidNameTemplateConstant, name)
	}

	workspace.mutex.Lock()
	defer workspace.mutex.Unlock()
	entryPath := filepath.Join(workspace.root, trimmedName)
	if _, taken := workspace.claimed[entryPath]; taken {
		return "", ClaimError{Path: entryPath}
	}
	workspace.claimed[entryPath] = struct{}{}
	return entryPath, nil
}

// Remove deletes the workspace and everything cloned into it.
func (workspace *Workspace) Remove() error {
	removalError := workspace.fileSystem.RemoveAll(workspace.root)
	if removalError != nil && !errors.Is(removalError, fs.ErrNotExist) {
		return removalError
	}
	return nil
}
