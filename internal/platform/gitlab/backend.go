package gitlab

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	gitlabapi "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/credentials"
	"github.com/temirov/repofleet/internal/gitrepo"
	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/platform/transport"
)

const (
	// PlatformName identifies the backend in logs and unsupported-operation errors.
	PlatformName = "gitlab"

	defaultBaseURLConstant           = "https://gitlab.com"
	defaultCredentialUserConstant    = "oauth2"
	apiPathSuffixConstant            = "/api/v4"
	pathSeparatorConstant            = "/"
	pageSizeConstant                 = 100
	missingOrganizationMessage       = "gitlab group is required"
	missingTokenMessage              = "gitlab token is required"
	skippedUnknownMemberMessage      = "skipping user unknown to gitlab"
	createdTeamMessage               = "created team group"
	addedTeamMemberMessage           = "added team member"
	createdRepositoryMessage         = "created repository"
	reusedRepositoryMessage          = "repository already exists"
	verifiedSettingsMessage          = "verified gitlab settings"
	logFieldTeamConstant             = "team"
	logFieldMemberConstant           = "member"
	logFieldRepositoryConstant       = "repository"
	logFieldOrganizationConstant     = "group"
	logFieldUserConstant             = "user"
	logFieldTemplateOrganizationName = "template_group"
)

var (
	// ErrOrganizationRequired indicates the backend was constructed without a group.
	ErrOrganizationRequired = errors.New(missingOrganizationMessage)
	// ErrTokenRequired indicates the backend was constructed without a token.
	ErrTokenRequired        = errors.New(missingTokenMessage)
)

// Options configures a Backend.
type Options struct {
	BaseURL              string
	Organization         string
	TemplateOrganization string
	User                 string
	Token                credentials.Token
	RequestInterval      time.Duration
	RetryMax             int
	RetryWaitMinimum     time.Duration
	RetryWaitMaximum     time.Duration
	HTTPTransport        http.RoundTripper
	Registerer           prometheus.Registerer
	Logger               *zap.Logger
}

// Backend talks to GitLab.
type Backend struct {
	platform.Unsupported
	client               *gitlabapi.Client
	baseURL              string
	organization         string
	templateOrganization string
	credentialUser       string
	token                credentials.Token
	logger               *zap.Logger
	groupMutex           sync.Mutex
	groups               map[string]*gitlabapi.Group
}

var _ platform.Backend = (*Backend)(nil)

// NewBackend builds a GitLab backend. BaseURL is the instance root, e.g. https://gitlab.com.
func NewBackend(options Options) (*Backend, error) {
	if len(strings.TrimSpace(options.Organization)) == 0 {
		return nil, ErrOrganizationRequired
	}
	if options.Token.IsEmpty() {
		return nil, ErrTokenRequired
	}

	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	baseURL := strings.TrimSuffix(strings.TrimSpace(options.BaseURL), pathSeparatorConstant)
	baseURL = strings.TrimSuffix(baseURL, apiPathSuffixConstant)
	if len(baseURL) == 0 {
		baseURL = defaultBaseURLConstant
	}
	credentialUser := strings.TrimSpace(options.User)
	if len(credentialUser) == 0 {
		credentialUser = defaultCredentialUserConstant
	}

	clientOptions := []gitlabapi.ClientOptionFunc{
		gitlabapi.WithBaseURL(baseURL),
		gitlabapi.WithHTTPClient(transport.NewInstrumentedHTTPClient(options.Registerer, PlatformName, options.HTTPTransport)),
		gitlabapi.WithCustomLimiter(transport.NewRequestLimiter(options.RequestInterval)),
		gitlabapi.WithCustomRetryMax(max(0, options.RetryMax)),
		gitlabapi.WithCustomRetry(transport.RetryPolicy),
		gitlabapi.WithCustomLeveledLogger(transport.NewLeveledLogger(logger)),
	}
	if options.RetryWaitMinimum > 0 && options.RetryWaitMaximum >= options.RetryWaitMinimum {
		clientOptions = append(clientOptions, gitlabapi.WithCustomRetryWaitMinMax(options.RetryWaitMinimum, options.RetryWaitMaximum))
	}
	client, clientError := gitlabapi.NewClient(options.Token.Reveal(), clientOptions...)
	if clientError != nil {
		return nil, clientError
	}

	backend := &Backend{
		Unsupported:          platform.Unsupported{Platform: PlatformName},
		client:               client,
		baseURL:              baseURL,
		organization:         strings.Trim(options.Organization, pathSeparatorConstant),
		templateOrganization: strings.Trim(options.TemplateOrganization, pathSeparatorConstant),
		credentialUser:       credentialUser,
		token:                options.Token,
		logger:               logger,
		groups:               map[string]*gitlabapi.Group{},
	}
	if contractError := platform.VerifyContract(backend); contractError != nil {
		return nil, contractError
	}
	return backend, nil
}

// VerifySettings checks the token and that both groups are reachable.
func (backend *Backend) VerifySettings(executionContext context.Context) error {
	user, _, userError := backend.client.Users.CurrentUser(gitlabapi.WithContext(executionContext))
	if userError != nil {
		return translateError(platform.OperationVerifySettings, userError)
	}
	groupPaths := []string{backend.organization}
	if len(backend.templateOrganization) > 0 && backend.templateOrganization != backend.organization {
		groupPaths = append(groupPaths, backend.templateOrganization)
	}
	for _, groupPath := range groupPaths {
		if _, groupError := backend.group(executionContext, platform.OperationVerifySettings, groupPath); groupError != nil {
			return groupError
		}
	}
	backend.logger.Info(verifiedSettingsMessage,
		zap.String(logFieldUserConstant, user.Username),
		zap.String(logFieldOrganizationConstant, backend.organization),
		zap.String(logFieldTemplateOrganizationName, backend.templateOrganization),
	)
	return nil
}

// GetTeams lists the subgroups of the organisation group with their direct members.
func (backend *Backend) GetTeams(executionContext context.Context) ([]platform.Team, error) {
	var teams []platform.Team
	listOptions := &gitlabapi.ListSubGroupsOptions{ListOptions: gitlabapi.ListOptions{PerPage: pageSizeConstant}}
	for {
		subgroups, response, listError := backend.client.Groups.ListSubGroups(backend.organization, listOptions, gitlabapi.WithContext(executionContext))
		if listError != nil {
			return nil, translateError(platform.OperationGetTeams, listError)
		}
		for _, subgroup := range subgroups {
			backend.rememberGroup(subgroup.FullPath, subgroup)
			members, membersError := backend.listGroupMembers(executionContext, subgroup.FullPath)
			if membersError != nil {
				return nil, membersError
			}
			teams = append(teams, platform.Team{
				ID:         int64(subgroup.ID),
				Name:       subgroup.Name,
				Slug:       subgroup.Path,
				Members:    members,
				Permission: platform.PermissionPush,
			})
		}
		if response.NextPage == 0 {
			return teams, nil
		}
		listOptions.Page = response.NextPage
	}
}

func (backend *Backend) listGroupMembers(executionContext context.Context, groupPath string) ([]string, error) {
	members := []string{}
	memberOptions := &gitlabapi.ListGroupMembersOptions{ListOptions: gitlabapi.ListOptions{PerPage: pageSizeConstant}}
	for {
		groupMembers, response, listError := backend.client.Groups.ListGroupMembers(groupPath, memberOptions, gitlabapi.WithContext(executionContext))
		if listError != nil {
			return nil, translateError(platform.OperationGetTeams, listError)
		}
		for _, groupMember := range groupMembers {
			members = append(members, groupMember.Username)
		}
		if response.NextPage == 0 {
			return members, nil
		}
		memberOptions.Page = response.NextPage
	}
}

// CreateTeam creates a private subgroup of the organisation group.
func (backend *Backend) CreateTeam(executionContext context.Context, spec platform.TeamSpec) (platform.Team, error) {
	organizationGroup, groupError := backend.group(executionContext, platform.OperationCreateTeam, backend.organization)
	if groupError != nil {
		return platform.Team{}, groupError
	}
	createdGroup, _, createError := backend.client.Groups.CreateGroup(&gitlabapi.CreateGroupOptions{
		Name:       gitlabapi.Ptr(spec.Name),
		Path:       gitlabapi.Ptr(spec.Name),
		ParentID:   gitlabapi.Ptr(organizationGroup.ID),
		Visibility: gitlabapi.Ptr(gitlabapi.PrivateVisibility),
	}, gitlabapi.WithContext(executionContext))
	if createError != nil {
		return platform.Team{}, translateError(platform.OperationCreateTeam, createError)
	}
	backend.rememberGroup(createdGroup.FullPath, createdGroup)
	backend.logger.Info(createdTeamMessage, zap.String(logFieldTeamConstant, createdGroup.FullPath))
	return platform.Team{
		ID:         int64(createdGroup.ID),
		Name:       createdGroup.Name,
		Slug:       createdGroup.Path,
		Members:    []string{},
		Permission: spec.Permission,
	}, nil
}

// AddTeamMembers adds each member that exists on GitLab to the team subgroup.
// Push teams receive developer access and pull teams reporter access.
func (backend *Backend) AddTeamMembers(executionContext context.Context, team platform.Team, members []string) (platform.Team, error) {
	observedTeam := team
	observedTeam.Members = append([]string{}, team.Members...)
	teamPath := backend.teamPath(team)
	accessLevel := gitlabapi.DeveloperPermissions
	if team.Permission == platform.PermissionPull {
		accessLevel = gitlabapi.ReporterPermissions
	}

	for _, member := range members {
		if observedTeam.HasMember(member) {
			continue
		}
		users, _, lookupError := backend.client.Users.ListUsers(&gitlabapi.ListUsersOptions{Username: gitlabapi.Ptr(member)}, gitlabapi.WithContext(executionContext))
		if lookupError != nil {
			return observedTeam, translateError(platform.OperationAddTeamMembers, lookupError)
		}
		if len(users) == 0 {
			backend.logger.Warn(skippedUnknownMemberMessage, zap.String(logFieldTeamConstant, teamPath), zap.String(logFieldMemberConstant, member))
			continue
		}
		_, _, addError := backend.client.GroupMembers.AddGroupMember(teamPath, &gitlabapi.AddGroupMemberOptions{
			UserID:      gitlabapi.Ptr(users[0].ID),
			AccessLevel: gitlabapi.Ptr(accessLevel),
		}, gitlabapi.WithContext(executionContext))
		if addError != nil && !isMemberAlreadyPresent(addError) {
			return observedTeam, translateError(platform.OperationAddTeamMembers, addError)
		}
		backend.logger.Debug(addedTeamMemberMessage, zap.String(logFieldTeamConstant, teamPath), zap.String(logFieldMemberConstant, member))
		observedTeam.Members = append(observedTeam.Members, users[0].Username)
	}
	return observedTeam, nil
}

// GetRepos returns the repositories among specs that exist.
func (backend *Backend) GetRepos(executionContext context.Context, specs []platform.RepoSpec) ([]platform.Repo, error) {
	repositories := make([]platform.Repo, 0, len(specs))
	for _, spec := range specs {
		repository, found, getError := backend.getProject(executionContext, platform.OperationGetRepos, backend.projectPath(spec))
		if getError != nil {
			return nil, getError
		}
		if found {
			repositories = append(repositories, repository)
		}
	}
	return repositories, nil
}

// CreateRepos creates each repository in its team subgroup, or in the
// organisation group when the spec has no owning team.
func (backend *Backend) CreateRepos(executionContext context.Context, specs []platform.RepoSpec) ([]platform.RepoCreation, error) {
	creations := make([]platform.RepoCreation, 0, len(specs))
	for _, spec := range specs {
		namespacePath := backend.organization
		if spec.OwningTeam != nil {
			namespacePath = backend.teamPath(*spec.OwningTeam)
		}
		namespaceGroup, groupError := backend.group(executionContext, platform.OperationCreateRepos, namespacePath)
		if groupError != nil {
			return creations, groupError
		}

		visibility := gitlabapi.PublicVisibility
		if spec.Private {
			visibility = gitlabapi.PrivateVisibility
		}
		project, _, createError := backend.client.Projects.CreateProject(&gitlabapi.CreateProjectOptions{
			Name:        gitlabapi.Ptr(spec.Name),
			Path:        gitlabapi.Ptr(spec.Name),
			NamespaceID: gitlabapi.Ptr(namespaceGroup.ID),
			Description: gitlabapi.Ptr(spec.Description),
			Visibility:  gitlabapi.Ptr(visibility),
		}, gitlabapi.WithContext(executionContext))
		if createError != nil {
			if !isAlreadyTaken(createError) {
				return creations, translateError(platform.OperationCreateRepos, createError)
			}
			existingRepository, found, getError := backend.getProject(executionContext, platform.OperationCreateRepos, backend.projectPath(spec))
			if getError != nil {
				return creations, getError
			}
			if !found {
				return creations, translateError(platform.OperationCreateRepos, createError)
			}
			backend.logger.Debug(reusedRepositoryMessage, zap.String(logFieldRepositoryConstant, existingRepository.URL))
			creations = append(creations, platform.RepoCreation{Repo: existingRepository, Created: false})
			continue
		}

		createdRepository := toRepo(project)
		backend.logger.Info(createdRepositoryMessage, zap.String(logFieldRepositoryConstant, createdRepository.URL))
		creations = append(creations, platform.RepoCreation{Repo: createdRepository, Created: true})
	}
	return creations, nil
}

// GetRepoURLs constructs repository URLs. With teams the URLs are those of the
// student repositories inside each team subgroup, ordered by name and then by team.
func (backend *Backend) GetRepoURLs(names []string, organization string, teams []platform.Team) []string {
	if len(organization) == 0 {
		organization = backend.organization
	}
	repositoryURLs := make([]string, 0, len(names)*max(1, len(teams)))
	for _, name := range names {
		if len(teams) == 0 {
			repositoryURLs = append(repositoryURLs, strings.Join([]string{backend.baseURL, organization, name}, pathSeparatorConstant))
			continue
		}
		for _, team := range teams {
			repositoryURLs = append(repositoryURLs, strings.Join([]string{backend.baseURL, organization, teamSlug(team), platform.StudentRepoName(team.Name, name)}, pathSeparatorConstant))
		}
	}
	return repositoryURLs
}

// InsertAuth returns https://<user>:<token>@host/... for repositoryURL.
func (backend *Backend) InsertAuth(repositoryURL string) (string, error) {
	return gitrepo.InsertUserInfo(repositoryURL, backend.credentialUser, backend.token.Reveal())
}

// ExtractRepoName returns the last path segment of repositoryURL without .git.
func (backend *Backend) ExtractRepoName(repositoryURL string) (string, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return "", parseError
	}
	return remote.Repository, nil
}

func (backend *Backend) group(executionContext context.Context, operation platform.Operation, groupPath string) (*gitlabapi.Group, error) {
	backend.groupMutex.Lock()
	cachedGroup, cached := backend.groups[groupPath]
	backend.groupMutex.Unlock()
	if cached {
		return cachedGroup, nil
	}

	remoteGroup, _, getError := backend.client.Groups.GetGroup(groupPath, &gitlabapi.GetGroupOptions{}, gitlabapi.WithContext(executionContext))
	if getError != nil {
		return nil, translateError(operation, getError)
	}
	backend.rememberGroup(groupPath, remoteGroup)
	return remoteGroup, nil
}

func (backend *Backend) rememberGroup(groupPath string, remoteGroup *gitlabapi.Group) {
	backend.groupMutex.Lock()
	defer backend.groupMutex.Unlock()
	backend.groups[groupPath] = remoteGroup
}

func (backend *Backend) getProject(executionContext context.Context, operation platform.Operation, projectPath string) (platform.Repo, bool, error) {
	project, _, getError := backend.client.Projects.GetProject(projectPath, &gitlabapi.GetProjectOptions{}, gitlabapi.WithContext(executionContext))
	if getError != nil {
		translatedError := translateError(operation, getError)
		if errors.Is(translatedError, platform.ErrNotFound) {
			return platform.Repo{}, false, nil
		}
		return platform.Repo{}, false, translatedError
	}
	return toRepo(project), true, nil
}

func (backend *Backend) teamPath(team platform.Team) string {
	return backend.organization + pathSeparatorConstant + teamSlug(team)
}

func (backend *Backend) projectPath(spec platform.RepoSpec) string {
	if spec.OwningTeam == nil {
		return backend.organization + pathSeparatorConstant + spec.Name
	}
	return backend.teamPath(*spec.OwningTeam) + pathSeparatorConstant + spec.Name
}

func teamSlug(team platform.Team) string {
	if len(team.Slug) > 0 {
		return team.Slug
	}
	return team.Name
}

func toRepo(project *gitlabapi.Project) platform.Repo {
	return platform.Repo{Name: project.Path, URL: project.WebURL}
}
