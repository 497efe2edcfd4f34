// Package gitrepo parses and rewrites git remote URLs.
//
// Remote paths may carry nested namespaces (GitLab subgroups), so the owner of
// a remote is every path segment before the repository name.
package gitrepo
