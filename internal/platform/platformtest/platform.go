// Package platformtest provides an in-memory hosting platform for exercising
// code written against platform.Backend without a network.
package platformtest

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/temirov/repofleet/internal/credentials"
	"github.com/temirov/repofleet/internal/gitrepo"
	"github.com/temirov/repofleet/internal/platform"
)

const (
	// PlatformName identifies the in-memory backend.
	PlatformName   = "memory"
	// DefaultBaseURL is the git base URL repositories are reported under.
	DefaultBaseURL = "https://git.example.test"

	repositoryURLTemplateConstant = "%s/%s/%s"
	issueURLTemplateConstant      = "%s/issues/%d"
	injectedFailureMessage        = "injected failure"
)

// Calls counts the contract operations the backend served.
type Calls struct {
	GetTeams       int
	CreateTeam     int
	AddTeamMembers int
	AddedMembers   int
	GetRepos       int
	CreateRepos    int
	CreatedRepos   int
	OpenIssue      int
	ListIssues     int
	CloseIssues    int
}

// Platform holds the remote state shared by every Backend view of it.
type Platform struct {
	mutex         sync.Mutex
	baseURL       string
	organization  string
	token         credentials.Token
	nextTeamID    int64
	teams         map[string]platform.Team
	repositories  map[string]platform.Repo
	issues        map[string][]platform.IssueRecord
	unknownUsers  map[string]struct{}
	createFailure map[string]error
	grants        map[string]platform.Permission
	calls         Calls
}

// NewPlatform creates an empty platform with one organization.
func NewPlatform(organization string, token credentials.Token) *Platform {
	return &Platform{
		baseURL:       DefaultBaseURL,
		organization:  organization,
		token:         token,
		teams:         make(map[string]platform.Team),
		repositories:  make(map[string]platform.Repo),
		issues:        make(map[string][]platform.IssueRecord),
		unknownUsers:  make(map[string]struct{}),
		createFailure: make(map[string]error),
		grants:        make(map[string]platform.Permission),
	}
}

// Backend returns a contract view of the platform.
func (remote *Platform) Backend() *Backend {
	return &Backend{Unsupported: platform.Unsupported{Platform: PlatformName}, remote: remote}
}

// SeedTeam registers an existing team. Like a GitHub team listing, it reports
// pull as the team permission.
func (remote *Platform) SeedTeam(name string, members ...string) platform.Team {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.storeTeam(name, members, platform.PermissionPull)
}

// Grant reports the permission the owning team received on a created repository.
func (remote *Platform) Grant(repositoryName string) (platform.Permission, bool) {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	permission, granted := remote.grants[repositoryName]
	return permission, granted
}

// SeedRepository registers an existing repository in the organization.
func (remote *Platform) SeedRepository(name string) platform.Repo {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	repository := platform.Repo{Name: name, URL: remote.repositoryURL(remote.organization, name)}
	remote.repositories[name] = repository
	return repository
}

// MarkUnknownUser makes the platform reject username as a team member.
func (remote *Platform) MarkUnknownUser(username string) {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.unknownUsers[strings.ToLower(username)] = struct{}{}
}

// FailRepositoryCreation makes creating the named repository fail with a
// service-unavailable platform error.
func (remote *Platform) FailRepositoryCreation(name string) {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.createFailure[name] = platform.NewPlatformError(platform.ErrorKindServiceUnavailable, platform.OperationCreateRepos, http.StatusServiceUnavailable, injectedFailureMessage, nil)
}

// Calls returns a snapshot of the operation counters.
func (remote *Platform) Calls() Calls {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return remote.calls
}

// Team returns the named team.
func (remote *Platform) Team(name string) (platform.Team, bool) {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	team, found := remote.teams[name]
	return cloneTeam(team), found
}

// RepositoryNames lists repository names in lexical order.
func (remote *Platform) RepositoryNames() []string {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	names := make([]string, 0, len(remote.repositories))
	for name := range remote.repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Issues returns the issues recorded for a repository URL.
func (remote *Platform) Issues(repositoryURL string) []platform.IssueRecord {
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	return append([]platform.IssueRecord(nil), remote.issues[repositoryURL]...)
}

// RepositoryURL reports the URL a repository of the organization lives under.
func (remote *Platform) RepositoryURL(name string) string {
	return remote.repositoryURL(remote.organization, name)
}

func (remote *Platform) repositoryURL(organization string, name string) string {
	return fmt.Sprintf(repositoryURLTemplateConstant, remote.baseURL, organization, name)
}

func (remote *Platform) storeTeam(name string, members []string, permission platform.Permission) platform.Team {
	remote.nextTeamID++
	team := platform.Team{
		ID:         remote.nextTeamID,
		Name:       name,
		Slug:       name,
		Members:    append([]string(nil), members...),
		Permission: permission,
	}
	remote.teams[name] = team
	return cloneTeam(team)
}

func cloneTeam(team platform.Team) platform.Team {
	team.Members = append([]string(nil), team.Members...)
	return team
}

// Backend is the platform.Backend view of a Platform. VerifySettings is left
// to the embedded Unsupported implementation.
type Backend struct {
	platform.Unsupported
	remote *Platform
}

var _ platform.Backend = (*Backend)(nil)

// GetTeams lists every team.
func (backend *Backend) GetTeams(context.Context) ([]platform.Team, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.GetTeams++

	teams := make([]platform.Team, 0, len(remote.teams))
	for _, team := range remote.teams {
		teams = append(teams, cloneTeam(team))
	}
	sort.Slice(teams, func(left int, right int) bool { return teams[left].Name < teams[right].Name })
	return teams, nil
}

// CreateTeam creates an empty team.
func (backend *Backend) CreateTeam(_ context.Context, spec platform.TeamSpec) (platform.Team, error) {
	if validationError := spec.Validate(); validationError != nil {
		return platform.Team{}, validationError
	}
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.CreateTeam++
	return remote.storeTeam(spec.Name, nil, spec.Permission), nil
}

// AddTeamMembers adds each known user, skipping unknown ones.
func (backend *Backend) AddTeamMembers(_ context.Context, team platform.Team, members []string) (platform.Team, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.AddTeamMembers++

	stored, found := remote.teams[team.Name]
	if !found {
		return platform.Team{}, platform.NewPlatformError(platform.ErrorKindNotFound, platform.OperationAddTeamMembers, http.StatusNotFound, team.Name, nil)
	}
	for _, member := range members {
		if _, unknown := remote.unknownUsers[strings.ToLower(member)]; unknown {
			continue
		}
		if stored.HasMember(member) {
			continue
		}
		stored.Members = append(stored.Members, member)
		remote.calls.AddedMembers++
	}
	remote.teams[team.Name] = stored
	return cloneTeam(stored), nil
}

// GetRepos returns the repositories that exist.
func (backend *Backend) GetRepos(_ context.Context, specs []platform.RepoSpec) ([]platform.Repo, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.GetRepos++

	repositories := make([]platform.Repo, 0, len(specs))
	for _, spec := range specs {
		if repository, found := remote.repositories[spec.Name]; found {
			repositories = append(repositories, repository)
		}
	}
	return repositories, nil
}

// CreateRepos creates each repository in order, reusing existing ones and
// stopping at the first injected failure.
func (backend *Backend) CreateRepos(_ context.Context, specs []platform.RepoSpec) ([]platform.RepoCreation, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.CreateRepos++

	creations := make([]platform.RepoCreation, 0, len(specs))
	for _, spec := range specs {
		if failure, failing := remote.createFailure[spec.Name]; failing {
			return creations, failure
		}
		if repository, found := remote.repositories[spec.Name]; found {
			creations = append(creations, platform.RepoCreation{Repo: repository})
			continue
		}
		repository := platform.Repo{Name: spec.Name, URL: remote.repositoryURL(remote.organization, spec.Name)}
		remote.repositories[spec.Name] = repository
		if spec.OwningTeam != nil {
			remote.grants[spec.Name] = spec.OwningTeam.Permission
		}
		remote.calls.CreatedRepos++
		creations = append(creations, platform.RepoCreation{Repo: repository, Created: true})
	}
	return creations, nil
}

// GetRepoURLs derives repository URLs without contacting the platform.
func (backend *Backend) GetRepoURLs(names []string, organization string, teams []platform.Team) []string {
	remote := backend.remote
	if len(strings.TrimSpace(organization)) == 0 {
		organization = remote.organization
	}
	if len(teams) == 0 {
		urls := make([]string, 0, len(names))
		for _, name := range names {
			urls = append(urls, remote.repositoryURL(organization, name))
		}
		return urls
	}

	urls := make([]string, 0, len(names)*len(teams))
	for _, name := range names {
		for _, team := range teams {
			urls = append(urls, remote.repositoryURL(organization, platform.StudentRepoName(team.Name, name)))
		}
	}
	return urls
}

// InsertAuth embeds the token into an https repository URL.
func (backend *Backend) InsertAuth(repositoryURL string) (string, error) {
	return gitrepo.InsertUserInfo(repositoryURL, "", backend.remote.token.Reveal())
}

// ExtractRepoName returns the repository name of a URL.
func (backend *Backend) ExtractRepoName(repositoryURL string) (string, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return "", parseError
	}
	return remote.Repository, nil
}

// OpenIssue records an open issue.
func (backend *Backend) OpenIssue(_ context.Context, repositoryURL string, issue platform.Issue) (platform.IssueRecord, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.OpenIssue++

	if !remote.knowsURL(repositoryURL) {
		return platform.IssueRecord{}, platform.NewPlatformError(platform.ErrorKindNotFound, platform.OperationOpenIssue, http.StatusNotFound, repositoryURL, nil)
	}
	existing := remote.issues[repositoryURL]
	record := platform.IssueRecord{
		Number: int64(len(existing) + 1),
		Title:  issue.Title,
		State:  platform.IssueStateOpen,
		URL:    fmt.Sprintf(issueURLTemplateConstant, repositoryURL, len(existing)+1),
	}
	remote.issues[repositoryURL] = append(existing, record)
	return record, nil
}

// ListIssues lists issues in the requested state whose title matches pattern.
func (backend *Backend) ListIssues(_ context.Context, repositoryURL string, state platform.IssueState, pattern *regexp.Regexp) ([]platform.IssueRecord, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.ListIssues++
	return remote.matchingIssues(repositoryURL, state, pattern), nil
}

// CloseIssues closes the open issues whose title matches pattern.
func (backend *Backend) CloseIssues(_ context.Context, repositoryURL string, pattern *regexp.Regexp) ([]platform.IssueRecord, error) {
	remote := backend.remote
	remote.mutex.Lock()
	defer remote.mutex.Unlock()
	remote.calls.CloseIssues++

	closed := make([]platform.IssueRecord, 0)
	records := remote.issues[repositoryURL]
	for index := range records {
		if records[index].State != platform.IssueStateOpen {
			continue
		}
		if pattern != nil && !pattern.MatchString(records[index].Title) {
			continue
		}
		records[index].State = platform.IssueStateClosed
		closed = append(closed, records[index])
	}
	return closed, nil
}

func (remote *Platform) matchingIssues(repositoryURL string, state platform.IssueState, pattern *regexp.Regexp) []platform.IssueRecord {
	matching := make([]platform.IssueRecord, 0)
	for _, record := range remote.issues[repositoryURL] {
		if state != platform.IssueStateAll && record.State != state {
			continue
		}
		if pattern != nil && !pattern.MatchString(record.Title) {
			continue
		}
		matching = append(matching, record)
	}
	return matching
}

func (remote *Platform) knowsURL(repositoryURL string) bool {
	for _, repository := range remote.repositories {
		if repository.URL == repositoryURL {
			return true
		}
	}
	return false
}
