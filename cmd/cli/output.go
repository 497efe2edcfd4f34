package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/temirov/repofleet/internal/orchestration"
	"github.com/temirov/repofleet/internal/platform"
)

const (
	runLineTemplateConstant          = "run %s\n"
	teamsLineTemplateConstant        = "teams: %d created, %d reused\n"
	repositoriesLineTemplateConstant = "repositories: %d created, %d reused\n"
	updatedLineTemplateConstant      = "repositories updated: %d of %d\n"
	failingHeaderConstant            = "failed to push:\n"
	unnotifiedHeaderConstant         = "no issue could be opened in:\n"
	openedIssuesLineTemplateConstant = "issues opened: %d\n"
	issuesLineTemplateConstant       = "issues: %d\n"
	issueFailuresHeaderConstant      = "failed repositories:\n"
	listEntryTemplateConstant        = "  %s\n"
	issueEntryTemplateConstant       = "  #%d %s [%s] %s\n"
	errorLineSeparatorConstant       = "\n"
	errorPartSeparatorConstant       = "; "
)

// FormatError renders an error on a single line. Joined errors put each
// failure on its own line, so the lines are trimmed and separated by "; ".
func FormatError(failure error) string {
	if failure == nil {
		return ""
	}
	parts := make([]string, 0)
	for _, line := range strings.Split(failure.Error(), errorLineSeparatorConstant) {
		if trimmed := strings.TrimSpace(line); len(trimmed) > 0 {
			parts = append(parts, trimmed)
		}
	}
	return strings.Join(parts, errorPartSeparatorConstant)
}

func writeSetupReport(writer io.Writer, report orchestration.SetupReport) {
	fmt.Fprintf(writer, runLineTemplateConstant, report.RunIdentifier)
	fmt.Fprintf(writer, teamsLineTemplateConstant, len(report.Teams.Created), len(report.Teams.Reused))
	fmt.Fprintf(writer, repositoriesLineTemplateConstant, len(report.Repositories.Created), len(report.Repositories.Reused))
	writeList(writer, failingHeaderConstant, report.FailingURLs)
}

func writeUpdateReport(writer io.Writer, report orchestration.UpdateReport) {
	fmt.Fprintf(writer, runLineTemplateConstant, report.RunIdentifier)
	fmt.Fprintf(writer, updatedLineTemplateConstant, len(report.RepositoryURLs)-len(report.FailingURLs), len(report.RepositoryURLs))
	writeList(writer, failingHeaderConstant, report.FailingURLs)
	if len(report.OpenedIssues) > 0 {
		fmt.Fprintf(writer, openedIssuesLineTemplateConstant, len(report.OpenedIssues))
		writeIssues(writer, report.OpenedIssues)
	}
	writeList(writer, unnotifiedHeaderConstant, report.UnnotifiedURLs)
}

func writeMigrateReport(writer io.Writer, report orchestration.MigrateReport) {
	fmt.Fprintf(writer, runLineTemplateConstant, report.RunIdentifier)
	fmt.Fprintf(writer, repositoriesLineTemplateConstant, len(report.Repositories.Created), len(report.Repositories.Reused))
	writeList(writer, failingHeaderConstant, report.FailingURLs)
}

func writeIssueReport(writer io.Writer, report orchestration.IssueReport) {
	fmt.Fprintf(writer, runLineTemplateConstant, report.RunIdentifier)
	fmt.Fprintf(writer, issuesLineTemplateConstant, len(report.Issues))
	writeIssues(writer, report.Issues)
	writeList(writer, issueFailuresHeaderConstant, report.FailedURLs)
}

func writeIssues(writer io.Writer, issues []platform.IssueRecord) {
	for _, issue := range issues {
		fmt.Fprintf(writer, issueEntryTemplateConstant, issue.Number, issue.Title, issue.State, issue.URL)
	}
}

func writeList(writer io.Writer, header string, entries []string) {
	if len(entries) == 0 {
		return
	}
	fmt.Fprint(writer, header)
	for _, entry := range entries {
		fmt.Fprintf(writer, listEntryTemplateConstant, entry)
	}
}
