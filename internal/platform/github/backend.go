package github

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	githubapi "github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/credentials"
	"github.com/temirov/repofleet/internal/gitrepo"
	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/platform/transport"
)

const (
	// PlatformName identifies the backend in logs and unsupported-operation errors.
	PlatformName = "github"

	publicAPIHostConstant            = "api.github.com"
	publicGitBaseURLConstant         = "https://github.com"
	enterpriseAPIPathConstant        = "/api/v3"
	pathSeparatorConstant            = "/"
	pageSizeConstant                 = 100
	teamPrivacyClosedConstant        = "closed"
	teamMembershipRoleConstant       = "member"
	issueStateClosedConstant         = "closed"
	alreadyExistsMarkerConstant      = "already exists"
	missingOrganizationMessage       = "github organization is required"
	missingTokenMessage              = "github token is required"
	skippedUnknownMemberMessage      = "skipping user unknown to github"
	createdTeamMessage               = "created team"
	addedTeamMemberMessage           = "added team member"
	createdRepositoryMessage         = "created repository"
	reusedRepositoryMessage          = "repository already exists"
	verifiedSettingsMessage          = "verified github settings"
	logFieldTeamConstant             = "team"
	logFieldMemberConstant           = "member"
	logFieldRepositoryConstant       = "repository"
	logFieldOrganizationConstant     = "organization"
	logFieldUserConstant             = "user"
	logFieldTemplateOrganizationName = "template_organization"
)

var (
	// ErrOrganizationRequired indicates the backend was constructed without an organisation.
	ErrOrganizationRequired = errors.New(missingOrganizationMessage)
	// ErrTokenRequired indicates the backend was constructed without a token.
	ErrTokenRequired        = errors.New(missingTokenMessage)
)

// Options configures a Backend.
type Options struct {
	BaseURL              string
	GitBaseURL           string
	Organization         string
	TemplateOrganization string
	Token                credentials.Token
	HTTPClient           *http.Client
	Logger               *zap.Logger
}

// Backend talks to GitHub.
type Backend struct {
	platform.Unsupported
	client               *githubapi.Client
	organization         string
	templateOrganization string
	gitBaseURL           string
	token                credentials.Token
	logger               *zap.Logger
}

var _ platform.Backend = (*Backend)(nil)

// NewBackend builds a GitHub backend. BaseURL defaults to the public API; when
// HTTPClient is nil a client authenticating with Token is built.
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

	httpClient := options.HTTPClient
	if httpClient == nil {
		httpClient = transport.NewHTTPClient(transport.Options{Platform: PlatformName, Logger: logger, Token: options.Token.Reveal()})
	}

	client := githubapi.NewClient(httpClient)
	gitBaseURL := publicGitBaseURLConstant
	if len(strings.TrimSpace(options.BaseURL)) > 0 {
		apiURL, parseError := url.Parse(ensureTrailingSlash(strings.TrimSpace(options.BaseURL)))
		if parseError != nil {
			return nil, parseError
		}
		client.BaseURL = apiURL
		gitBaseURL = deriveGitBaseURL(apiURL)
	}
	if len(strings.TrimSpace(options.GitBaseURL)) > 0 {
		gitBaseURL = strings.TrimSuffix(strings.TrimSpace(options.GitBaseURL), pathSeparatorConstant)
	}

	backend := &Backend{
		Unsupported:          platform.Unsupported{Platform: PlatformName},
		client:               client,
		organization:         options.Organization,
		templateOrganization: options.TemplateOrganization,
		gitBaseURL:           gitBaseURL,
		token:                options.Token,
		logger:               logger,
	}
	if contractError := platform.VerifyContract(backend); contractError != nil {
		return nil, contractError
	}
	return backend, nil
}

// VerifySettings checks the token and that both organisations are reachable.
func (backend *Backend) VerifySettings(executionContext context.Context) error {
	user, _, userError := backend.client.Users.Get(executionContext, "")
	if userError != nil {
		return translateError(platform.OperationVerifySettings, userError)
	}
	organizations := []string{backend.organization}
	if len(backend.templateOrganization) > 0 && backend.templateOrganization != backend.organization {
		organizations = append(organizations, backend.templateOrganization)
	}
	for _, organization := range organizations {
		if _, _, organizationError := backend.client.Organizations.Get(executionContext, organization); organizationError != nil {
			return translateError(platform.OperationVerifySettings, organizationError)
		}
	}
	backend.logger.Info(verifiedSettingsMessage,
		zap.String(logFieldUserConstant, user.GetLogin()),
		zap.String(logFieldOrganizationConstant, backend.organization),
		zap.String(logFieldTemplateOrganizationName, backend.templateOrganization),
	)
	return nil
}

// GetTeams lists every team of the organisation with its members.
func (backend *Backend) GetTeams(executionContext context.Context) ([]platform.Team, error) {
	var teams []platform.Team
	listOptions := &githubapi.ListOptions{PerPage: pageSizeConstant}
	for {
		remoteTeams, response, listError := backend.client.Teams.ListTeams(executionContext, backend.organization, listOptions)
		if listError != nil {
			return nil, translateError(platform.OperationGetTeams, listError)
		}
		for _, remoteTeam := range remoteTeams {
			members, membersError := backend.listTeamMembers(executionContext, remoteTeam.GetSlug())
			if membersError != nil {
				return nil, membersError
			}
			teams = append(teams, platform.Team{
				ID:         remoteTeam.GetID(),
				Name:       remoteTeam.GetName(),
				Slug:       remoteTeam.GetSlug(),
				Members:    members,
				Permission: toPermission(remoteTeam.GetPermission()),
			})
		}
		if response.NextPage == 0 {
			return teams, nil
		}
		listOptions.Page = response.NextPage
	}
}

func (backend *Backend) listTeamMembers(executionContext context.Context, teamSlug string) ([]string, error) {
	members := []string{}
	memberOptions := &githubapi.TeamListTeamMembersOptions{ListOptions: githubapi.ListOptions{PerPage: pageSizeConstant}}
	for {
		users, response, listError := backend.client.Teams.ListTeamMembersBySlug(executionContext, backend.organization, teamSlug, memberOptions)
		if listError != nil {
			return nil, translateError(platform.OperationGetTeams, listError)
		}
		for _, user := range users {
			members = append(members, user.GetLogin())
		}
		if response.NextPage == 0 {
			return members, nil
		}
		memberOptions.Page = response.NextPage
	}
}

// CreateTeam creates a closed team without members.
func (backend *Backend) CreateTeam(executionContext context.Context, spec platform.TeamSpec) (platform.Team, error) {
	remoteTeam, _, createError := backend.client.Teams.CreateTeam(executionContext, backend.organization, githubapi.NewTeam{
		Name:    spec.Name,
		Privacy: githubapi.Ptr(teamPrivacyClosedConstant),
	})
	if createError != nil {
		return platform.Team{}, translateError(platform.OperationCreateTeam, createError)
	}
	backend.logger.Info(createdTeamMessage, zap.String(logFieldTeamConstant, remoteTeam.GetSlug()))
	return platform.Team{
		ID:         remoteTeam.GetID(),
		Name:       remoteTeam.GetName(),
		Slug:       remoteTeam.GetSlug(),
		Members:    []string{},
		Permission: spec.Permission,
	}, nil
}

// AddTeamMembers adds each member that exists on GitHub to the team.
func (backend *Backend) AddTeamMembers(executionContext context.Context, team platform.Team, members []string) (platform.Team, error) {
	observedTeam := team
	observedTeam.Members = append([]string{}, team.Members...)
	for _, member := range members {
		if observedTeam.HasMember(member) {
			continue
		}
		if _, _, userError := backend.client.Users.Get(executionContext, member); userError != nil {
			translatedError := translateError(platform.OperationAddTeamMembers, userError)
			if errors.Is(translatedError, platform.ErrNotFound) {
				backend.logger.Warn(skippedUnknownMemberMessage, zap.String(logFieldTeamConstant, team.Slug), zap.String(logFieldMemberConstant, member))
				continue
			}
			return observedTeam, translatedError
		}
		_, _, membershipError := backend.client.Teams.AddTeamMembershipBySlug(executionContext, backend.organization, team.Slug, member, &githubapi.TeamAddTeamMembershipOptions{Role: teamMembershipRoleConstant})
		if membershipError != nil {
			return observedTeam, translateError(platform.OperationAddTeamMembers, membershipError)
		}
		backend.logger.Debug(addedTeamMemberMessage, zap.String(logFieldTeamConstant, team.Slug), zap.String(logFieldMemberConstant, member))
		observedTeam.Members = append(observedTeam.Members, member)
	}
	return observedTeam, nil
}

// GetRepos returns the repositories among specs that exist in the organisation.
func (backend *Backend) GetRepos(executionContext context.Context, specs []platform.RepoSpec) ([]platform.Repo, error) {
	repositories := make([]platform.Repo, 0, len(specs))
	for _, spec := range specs {
		repository, found, getError := backend.getRepository(executionContext, platform.OperationGetRepos, spec.Name)
		if getError != nil {
			return nil, getError
		}
		if found {
			repositories = append(repositories, repository)
		}
	}
	return repositories, nil
}

func (backend *Backend) getRepository(executionContext context.Context, operation platform.Operation, name string) (platform.Repo, bool, error) {
	remoteRepository, _, getError := backend.client.Repositories.Get(executionContext, backend.organization, name)
	if getError != nil {
		translatedError := translateError(operation, getError)
		if errors.Is(translatedError, platform.ErrNotFound) {
			return platform.Repo{}, false, nil
		}
		return platform.Repo{}, false, translatedError
	}
	return toRepo(remoteRepository), true, nil
}

// CreateRepos creates the repositories in order and grants the owning team its permission.
func (backend *Backend) CreateRepos(executionContext context.Context, specs []platform.RepoSpec) ([]platform.RepoCreation, error) {
	creations := make([]platform.RepoCreation, 0, len(specs))
	for _, spec := range specs {
		requestedRepository := &githubapi.Repository{
			Name:        githubapi.Ptr(spec.Name),
			Description: githubapi.Ptr(spec.Description),
			Private:     githubapi.Ptr(spec.Private),
		}
		if spec.OwningTeam != nil && spec.OwningTeam.ID != 0 {
			requestedRepository.TeamID = githubapi.Ptr(spec.OwningTeam.ID)
		}

		remoteRepository, _, createError := backend.client.Repositories.Create(executionContext, backend.organization, requestedRepository)
		if createError != nil {
			if !isAlreadyExists(createError) {
				return creations, translateError(platform.OperationCreateRepos, createError)
			}
			existingRepository, found, getError := backend.getRepository(executionContext, platform.OperationCreateRepos, spec.Name)
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

		if spec.OwningTeam != nil && len(spec.OwningTeam.Slug) > 0 {
			_, grantError := backend.client.Teams.AddTeamRepoBySlug(executionContext, backend.organization, spec.OwningTeam.Slug, backend.organization, spec.Name, &githubapi.TeamAddTeamRepoOptions{Permission: string(spec.OwningTeam.Permission)})
			if grantError != nil {
				return creations, translateError(platform.OperationCreateRepos, grantError)
			}
		}
		createdRepository := toRepo(remoteRepository)
		backend.logger.Info(createdRepositoryMessage, zap.String(logFieldRepositoryConstant, createdRepository.URL))
		creations = append(creations, platform.RepoCreation{Repo: createdRepository, Created: true})
	}
	return creations, nil
}

// GetRepoURLs constructs repository URLs. With teams the URLs are those of the
// student repositories, ordered by name and then by team.
func (backend *Backend) GetRepoURLs(names []string, organization string, teams []platform.Team) []string {
	if len(organization) == 0 {
		organization = backend.organization
	}
	repositoryURLs := make([]string, 0, len(names)*max(1, len(teams)))
	for _, name := range names {
		if len(teams) == 0 {
			repositoryURLs = append(repositoryURLs, strings.Join([]string{backend.gitBaseURL, organization, name}, pathSeparatorConstant))
			continue
		}
		for _, team := range teams {
			repositoryURLs = append(repositoryURLs, strings.Join([]string{backend.gitBaseURL, organization, platform.StudentRepoName(team.Name, name)}, pathSeparatorConstant))
		}
	}
	return repositoryURLs
}

// InsertAuth returns https://<token>@host/... for repositoryURL.
func (backend *Backend) InsertAuth(repositoryURL string) (string, error) {
	return gitrepo.InsertUserInfo(repositoryURL, "", backend.token.Reveal())
}

// ExtractRepoName returns the last path segment of repositoryURL without .git.
func (backend *Backend) ExtractRepoName(repositoryURL string) (string, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return "", parseError
	}
	return remote.Repository, nil
}

func ensureTrailingSlash(value string) string {
	if strings.HasSuffix(value, pathSeparatorConstant) {
		return value
	}
	return value + pathSeparatorConstant
}

func deriveGitBaseURL(apiURL *url.URL) string {
	if apiURL.Host == publicAPIHostConstant {
		return publicGitBaseURLConstant
	}
	gitURL := url.URL{Scheme: apiURL.Scheme, Host: apiURL.Host, Path: strings.TrimSuffix(strings.TrimSuffix(apiURL.Path, pathSeparatorConstant), enterpriseAPIPathConstant)}
	return strings.TrimSuffix(gitURL.String(), pathSeparatorConstant)
}

func toRepo(remoteRepository *githubapi.Repository) platform.Repo {
	return platform.Repo{Name: remoteRepository.GetName(), URL: remoteRepository.GetHTMLURL()}
}

func toPermission(remotePermission string) platform.Permission {
	if remotePermission == string(platform.PermissionPush) {
		return platform.PermissionPush
	}
	return platform.PermissionPull
}
