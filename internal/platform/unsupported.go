package platform

import (
	"context"
	"regexp"
)

// Unsupported implements every contract operation by failing with
// UnsupportedOperationError. Backends embed it and override what they support.
type Unsupported struct {
	Platform string
}

func (unsupported Unsupported) fail(operation Operation) error {
	return UnsupportedOperationError{Platform: unsupported.Platform, Operation: operation}
}

// VerifySettings is not supported.
func (unsupported Unsupported) VerifySettings(context.Context) error {
	return unsupported.fail(OperationVerifySettings)
}

// GetTeams is not supported.
func (unsupported Unsupported) GetTeams(context.Context) ([]Team, error) {
	return nil, unsupported.fail(OperationGetTeams)
}

// CreateTeam is not supported.
func (unsupported Unsupported) CreateTeam(context.Context, TeamSpec) (Team, error) {
	return Team{}, unsupported.fail(OperationCreateTeam)
}

// AddTeamMembers is not supported.
func (unsupported Unsupported) AddTeamMembers(_ context.Context, team Team, _ []string) (Team, error) {
	return team, unsupported.fail(OperationAddTeamMembers)
}

// GetRepos is not supported.
func (unsupported Unsupported) GetRepos(context.Context, []RepoSpec) ([]Repo, error) {
	return nil, unsupported.fail(OperationGetRepos)
}

// CreateRepos is not supported.
func (unsupported Unsupported) CreateRepos(context.Context, []RepoSpec) ([]RepoCreation, error) {
	return nil, unsupported.fail(OperationCreateRepos)
}

// GetRepoURLs returns no URLs.
func (unsupported Unsupported) GetRepoURLs([]string, string, []Team) []string {
	return nil
}

// InsertAuth is not supported.
func (unsupported Unsupported) InsertAuth(string) (string, error) {
	return "", unsupported.fail(OperationInsertAuth)
}

// ExtractRepoName is not supported.
func (unsupported Unsupported) ExtractRepoName(string) (string, error) {
	return "", unsupported.fail(OperationExtractRepoName)
}

// OpenIssue is not supported.
func (unsupported Unsupported) OpenIssue(context.Context, string, Issue) (IssueRecord, error) {
	return IssueRecord{}, unsupported.fail(OperationOpenIssue)
}

// CloseIssues is not supported.
func (unsupported Unsupported) CloseIssues(context.Context, string, *regexp.Regexp) ([]IssueRecord, error) {
	return nil, unsupported.fail(OperationCloseIssues)
}

// ListIssues is not supported.
func (unsupported Unsupported) ListIssues(context.Context, string, IssueState, *regexp.Regexp) ([]IssueRecord, error) {
	return nil, unsupported.fail(OperationListIssues)
}
