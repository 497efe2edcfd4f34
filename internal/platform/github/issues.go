package github

import (
	"context"
	"regexp"

	githubapi "github.com/google/go-github/v68/github"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/gitrepo"
	"github.com/temirov/repofleet/internal/platform"
)

const (
	openedIssueMessage = "opened issue"
	closedIssueMessage = "closed issue"
	logFieldIssueURL   = "issue_url"
)

// OpenIssue opens an issue in the repository at repositoryURL.
func (backend *Backend) OpenIssue(executionContext context.Context, repositoryURL string, issue platform.Issue) (platform.IssueRecord, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return platform.IssueRecord{}, parseError
	}
	remoteIssue, _, createError := backend.client.Issues.Create(executionContext, remote.Owner, remote.Repository, &githubapi.IssueRequest{
		Title: githubapi.Ptr(issue.Title),
		Body:  githubapi.Ptr(issue.Body),
	})
	if createError != nil {
		return platform.IssueRecord{}, translateError(platform.OperationOpenIssue, createError)
	}
	record := toIssueRecord(remoteIssue)
	backend.logger.Info(openedIssueMessage, zap.String(logFieldIssueURL, record.URL))
	return record, nil
}

// ListIssues lists issues in state whose title matches titlePattern. A nil
// pattern matches every issue. Pull requests are excluded.
func (backend *Backend) ListIssues(executionContext context.Context, repositoryURL string, state platform.IssueState, titlePattern *regexp.Regexp) ([]platform.IssueRecord, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return nil, parseError
	}
	if len(state) == 0 {
		state = platform.IssueStateOpen
	}

	var records []platform.IssueRecord
	listOptions := &githubapi.IssueListByRepoOptions{State: string(state), ListOptions: githubapi.ListOptions{PerPage: pageSizeConstant}}
	for {
		remoteIssues, response, listError := backend.client.Issues.ListByRepo(executionContext, remote.Owner, remote.Repository, listOptions)
		if listError != nil {
			return nil, translateError(platform.OperationListIssues, listError)
		}
		for _, remoteIssue := range remoteIssues {
			if remoteIssue.IsPullRequest() {
				continue
			}
			if titlePattern != nil && !titlePattern.MatchString(remoteIssue.GetTitle()) {
				continue
			}
			records = append(records, toIssueRecord(remoteIssue))
		}
		if response.NextPage == 0 {
			return records, nil
		}
		listOptions.Page = response.NextPage
	}
}

// CloseIssues closes the open issues whose title matches titlePattern.
func (backend *Backend) CloseIssues(executionContext context.Context, repositoryURL string, titlePattern *regexp.Regexp) ([]platform.IssueRecord, error) {
	remote, parseError := gitrepo.ParseRemoteURL(repositoryURL)
	if parseError != nil {
		return nil, parseError
	}
	openIssues, listError := backend.ListIssues(executionContext, repositoryURL, platform.IssueStateOpen, titlePattern)
	if listError != nil {
		return nil, listError
	}

	closedIssues := make([]platform.IssueRecord, 0, len(openIssues))
	for _, openIssue := range openIssues {
		closedIssue, _, editError := backend.client.Issues.Edit(executionContext, remote.Owner, remote.Repository, int(openIssue.Number), &githubapi.IssueRequest{State: githubapi.Ptr(issueStateClosedConstant)})
		if editError != nil {
			return closedIssues, translateError(platform.OperationCloseIssues, editError)
		}
		record := toIssueRecord(closedIssue)
		backend.logger.Info(closedIssueMessage, zap.String(logFieldIssueURL, record.URL))
		closedIssues = append(closedIssues, record)
	}
	return closedIssues, nil
}

func toIssueRecord(remoteIssue *githubapi.Issue) platform.IssueRecord {
	return platform.IssueRecord{
		Number: int64(remoteIssue.GetNumber()),
		Title:  remoteIssue.GetTitle(),
		State:  platform.IssueState(remoteIssue.GetState()),
		URL:    remoteIssue.GetHTMLURL(),
	}
}
