package gitrepo

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	sshProtocolPrefixConstant           = "ssh://"
	sshUserDelimiterConstant            = "@"
	sshPathDelimiterConstant            = ":"
	httpsProtocolPrefixConstant         = "https://"
	httpProtocolPrefixConstant          = "http://"
	gitUserPrefixConstant               = "git@"
	pathSeparatorConstant               = "/"
	gitSuffixConstant                   = ".git"
	remoteURLParseErrorTemplateConstant = "%s: %s"
	invalidRemoteURLMessageConstant     = "invalid remote url"
	requiredValueMessageConstant        = "value required"
	unknownProtocolMessageConstant      = "unsupported remote protocol"
	credentialsNotSupportedConstant     = "credentials can only be inserted into http(s) remotes"
)

// RemoteProtocol enumerates supported git remote protocols.
type RemoteProtocol string

// Supported remote protocols.
const (
	RemoteProtocolSSH   RemoteProtocol = RemoteProtocol("ssh")
	RemoteProtocolHTTPS RemoteProtocol = RemoteProtocol("https")
	RemoteProtocolHTTP  RemoteProtocol = RemoteProtocol("http")
)

// RemoteURL represents a structured git remote URL.
type RemoteURL struct {
	Protocol   RemoteProtocol
	Host       string
	Owner      string
	Repository string
}

// RemoteURLParseError indicates a remote string could not be parsed.
type RemoteURLParseError struct {
	Input   string
	Message string
}

// Error describes the parse failure.
func (parseError RemoteURLParseError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, parseError.Input, parseError.Message)
}

// UnsupportedProtocolError indicates the provided protocol cannot be formatted.
type UnsupportedProtocolError struct {
	Protocol RemoteProtocol
}

// Error describes the unsupported protocol.
func (protocolError UnsupportedProtocolError) Error() string {
	return fmt.Sprintf(remoteURLParseErrorTemplateConstant, protocolError.Protocol, unknownProtocolMessageConstant)
}

// ParseRemoteURL converts a textual remote URL into a structured representation.
// Userinfo in http(s) remotes is ignored and never reported back.
func ParseRemoteURL(remote string) (RemoteURL, error) {
	trimmedRemote := strings.TrimSpace(remote)
	if len(trimmedRemote) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: requiredValueMessageConstant}
	}

	if strings.HasPrefix(trimmedRemote, sshProtocolPrefixConstant) {
		return parseSSHRemote(strings.TrimPrefix(trimmedRemote, sshProtocolPrefixConstant))
	}
	if strings.HasPrefix(trimmedRemote, gitUserPrefixConstant) {
		return parseSSHRemote(trimmedRemote)
	}
	if strings.HasPrefix(trimmedRemote, httpsProtocolPrefixConstant) || strings.HasPrefix(trimmedRemote, httpProtocolPrefixConstant) {
		return parseHTTPRemote(trimmedRemote)
	}

	return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
}

func parseSSHRemote(remote string) (RemoteURL, error) {
	userSplitIndex := strings.Index(remote, sshUserDelimiterConstant)
	if userSplitIndex == -1 {
		return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
	}
	hostAndPath := remote[userSplitIndex+1:]
	pathSplitIndex := strings.Index(hostAndPath, sshPathDelimiterConstant)
	var host string
	var path string
	if pathSplitIndex == -1 {
		slashIndex := strings.Index(hostAndPath, pathSeparatorConstant)
		if slashIndex == -1 {
			return RemoteURL{}, RemoteURLParseError{Input: remote, Message: invalidRemoteURLMessageConstant}
		}
		host = hostAndPath[:slashIndex]
		path = hostAndPath[slashIndex+1:]
	} else {
		host = hostAndPath[:pathSplitIndex]
		path = hostAndPath[pathSplitIndex+1:]
	}
	owner, repository, parseError := splitOwnerAndRepository(path)
	if parseError != nil {
		return RemoteURL{}, parseError
	}
	return RemoteURL{Protocol: RemoteProtocolSSH, Host: host, Owner: owner, Repository: repository}, nil
}

func parseHTTPRemote(remote string) (RemoteURL, error) {
	parsedURL, parseError := url.Parse(remote)
	if parseError != nil || len(parsedURL.Host) == 0 {
		return RemoteURL{}, RemoteURLParseError{Input: stripUserInfo(remote), Message: invalidRemoteURLMessageConstant}
	}
	owner, repository, splitError := splitOwnerAndRepository(strings.Trim(parsedURL.Path, pathSeparatorConstant))
	if splitError != nil {
		return RemoteURL{}, splitError
	}
	return RemoteURL{Protocol: RemoteProtocol(parsedURL.Scheme), Host: parsedURL.Host, Owner: owner, Repository: repository}, nil
}

func splitOwnerAndRepository(path string) (string, string, error) {
	segments := strings.Split(strings.Trim(path, pathSeparatorConstant), pathSeparatorConstant)
	if len(segments) < 2 {
		return "", "", RemoteURLParseError{Input: path, Message: invalidRemoteURLMessageConstant}
	}
	for _, segment := range segments {
		if len(segment) == 0 {
			return "", "", RemoteURLParseError{Input: path, Message: invalidRemoteURLMessageConstant}
		}
	}
	repository, parseError := normalizeRepositoryName(segments[len(segments)-1])
	if parseError != nil {
		return "", "", parseError
	}
	return strings.Join(segments[:len(segments)-1], pathSeparatorConstant), repository, nil
}

func normalizeRepositoryName(repository string) (string, error) {
	trimmed := strings.TrimSuffix(repository, gitSuffixConstant)
	if len(trimmed) == 0 {
		return "", RemoteURLParseError{Input: repository, Message: invalidRemoteURLMessageConstant}
	}
	return trimmed, nil
}

// FormatRemoteURL creates a textual remote URL from a structured representation.
func FormatRemoteURL(remote RemoteURL) (string, error) {
	if len(strings.TrimSpace(remote.Host)) == 0 {
		return "", RemoteURLParseError{Input: remote.Host, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(remote.Owner)) == 0 {
		return "", RemoteURLParseError{Input: remote.Owner, Message: requiredValueMessageConstant}
	}
	if len(strings.TrimSpace(remote.Repository)) == 0 {
		return "", RemoteURLParseError{Input: remote.Repository, Message: requiredValueMessageConstant}
	}

	switch remote.Protocol {
	case RemoteProtocolSSH:
		return fmt.Sprintf("%s%s%s%s%s%s", gitUserPrefixConstant, remote.Host, sshPathDelimiterConstant, remote.Owner, pathSeparatorConstant, remote.Repository+gitSuffixConstant), nil
	case RemoteProtocolHTTPS, RemoteProtocolHTTP:
		return fmt.Sprintf("%s://%s%s%s%s%s%s", remote.Protocol, remote.Host, pathSeparatorConstant, remote.Owner, pathSeparatorConstant, remote.Repository, gitSuffixConstant), nil
	default:
		return "", UnsupportedProtocolError{Protocol: remote.Protocol}
	}
}

// InsertUserInfo returns remote with its userinfo replaced by username and password.
// An empty username yields a URL carrying only the password as user.
func InsertUserInfo(remote string, username string, password string) (string, error) {
	parsedURL, parseError := url.Parse(strings.TrimSpace(remote))
	if parseError != nil || len(parsedURL.Host) == 0 {
		return "", RemoteURLParseError{Input: stripUserInfo(remote), Message: invalidRemoteURLMessageConstant}
	}
	if parsedURL.Scheme != string(RemoteProtocolHTTPS) && parsedURL.Scheme != string(RemoteProtocolHTTP) {
		return "", RemoteURLParseError{Input: stripUserInfo(remote), Message: credentialsNotSupportedConstant}
	}
	if len(username) == 0 {
		parsedURL.User = url.User(password)
	} else {
		parsedURL.User = url.UserPassword(username, password)
	}
	return parsedURL.String(), nil
}

func stripUserInfo(remote string) string {
	parsedURL, parseError := url.Parse(remote)
	if parseError != nil {
		return invalidRemoteURLMessageConstant
	}
	parsedURL.User = nil
	return parsedURL.String()
}
