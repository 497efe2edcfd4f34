package gitlab

import (
	"context"
	"regexp"

	gitlabapi "gitlab.com/gitlab-org/api/client-go"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/gitrepo"
	"github.com/temirov/repofleet/internal/platform"
)

const (
	openedIssueMessage        = "opened issue"
	closedIssueMessage        = "closed issue"
	logFieldIssueURL          = "issue_url"
	gitlabOpenedStateConstant = "opened"
	gitlabClosedStateConstant = "closed"
	gitlabAllStateConstant    = "all"
	gitlabCloseEventConstant  = "close"
	pathJoinSeparatorConstant = "/"
)

// OpenIssue opens an issue in the project at repositoryURL.
func (backend *Backend) OpenIssue(executionContext context.Context, repositoryURL string, issue platform.Issue) (platform.IssueRecord, error) {
	projectPath, parseError := projectPathFromURL(repositoryURL)
	if parseError != nil {
		return platform.IssueRecord{}, parseError
	}
	createdIssue, _, createError := backend.client.Issues.CreateIssue(projectPath, &gitlabapi.CreateIssueOptions{
		Title:       gitlabapi.Ptr(issue.Title),
		Description: gitlabapi.Ptr(issue.Body),
	}, gitlabapi.WithContext(executionContext))
	if createError != nil {
		return platform.IssueRecord{}, translateError(platform.OperationOpenIssue, createError)
	}
	record := toIssueRecord(createdIssue)
	backend.logger.Info(openedIssueMessage, zap.String(logFieldIssueURL, record.URL))
	return record, nil
}

// ListIssues lists issues in state whose title matches titlePattern. A nil
// pattern matches every issue.
func (backend *Backend) ListIssues(executionContext context.Context, repositoryURL string, state platform.IssueState, titlePattern *regexp.Regexp) ([]platform.IssueRecord, error) {
	projectPath, parseError := projectPathFromURL(repositoryURL)
	if parseError != nil {
		return nil, parseError
	}
	remoteIssues, listError := backend.listProjectIssues(executionContext, projectPath, state, titlePattern)
	if listError != nil {
		return nil, listError
	}
	records := make([]platform.IssueRecord, 0, len(remoteIssues))
	for _, remoteIssue := range remoteIssues {
		records = append(records, toIssueRecord(remoteIssue))
	}
	return records, nil
}

// CloseIssues closes the open issues whose title matches titlePattern.
func (backend *Backend) CloseIssues(executionContext context.Context, repositoryURL string, titlePattern *regexp.Regexp) ([]platform.IssueRecord, error) {
	projectPath, parseError := projectPathFromURL(repositoryURL)
	if parseError != nil {
		return nil, parseError
	}
	openIssues, listError := backend.listProjectIssues(executionContext, projectPath, platform.IssueStateOpen, titlePattern)
	if listError != nil {
		return nil, listError
	}

	closedIssues := make([]platform.IssueRecord, 0, len(openIssues))
	for _, openIssue := range openIssues {
		closedIssue, _, updateError := backend.client.Issues.UpdateIssue(projectPath, openIssue.IID, &gitlabapi.UpdateIssueOptions{
			StateEvent: gitlabapi.Ptr(gitlabCloseEventConstant),
		}, gitlabapi.WithContext(executionContext))
		if updateError != nil {
			return closedIssues, translateError(platform.OperationCloseIssues, updateError)
		}
		record := toIssueRecord(closedIssue)
		backend.logger.Info(closedIssueMessage, zap.String(logFieldIssueURL, record.URL))
		closedIssues = append(closedIssues, record)
	}
	return closedIssues, nil
}

func (backend *Backend) listProjectIssues(executionContext context.Context, projectPath string, state platform.IssueState, titlePattern *regexp.Regexp) ([]*gitlabapi.Issue, error) {
	var matchingIssues []*gitlabapi.Issue
	listOptions := &gitlabapi.ListProjectIssuesOptions{
		ListOptions: gitlabapi.ListOptions{PerPage: pageSizeConstant},
		State:       gitlabapi.Ptr(toGitLabState(state)),
	}
	for {
		remoteIssues, response, listError := backend.client.Issues.ListProjectIssues(projectPath, listOptions, gitlabapi.WithContext(executionContext))
		if listError != nil {
			return nil, translateError(platform.OperationListIssues, listError)
		}
		for _, remoteIssue := range remoteIssues {
			if titlePattern != nil && !titlePattern.MatchString(remoteIssue.Title) {
				continue
			}
			matchingIssues = append(matchingIssues, remoteIssue)
		}
		if response.NextPage == 0 {
			return matchingIssues, nil
		}
		listOptions.Page = response.NextPage
	}
}

func projectPathFromURL(repositoryURL string) (string, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return "", parseError
	}
	return remote.Owner + pathJoinSeparatorConstant + remote.Repository, nil
}

func toGitLabState(state platform.IssueState) string {
	switch state {
	case platform.IssueStateClosed:
		return gitlabClosedStateConstant
	case platform.IssueStateAll:
		return gitlabAllStateConstant
	default:
		return gitlabOpenedStateConstant
	}
}

func toIssueRecord(remoteIssue *gitlabapi.Issue) platform.IssueRecord {
	state := platform.IssueStateOpen
	if remoteIssue.State == gitlabClosedStateConstant {
		state = platform.IssueStateClosed
	}
	return platform.IssueRecord{
		Number: int64(remoteIssue.IID),
		Title:  remoteIssue.Title,
		State:  state,
		URL:    remoteIssue.WebURL,
	}
}
