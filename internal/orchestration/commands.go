package orchestration

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/reconcile"
	"github.com/temirov/repofleet/internal/workspace"
)

const (
	issueTitleFieldConstant           = "issue title"
	issueTitleRequiredMessageConstant = "must not be empty"
	titlePatternFieldConstant         = "title pattern"
	titlePatternRequiredMessage       = "is required"
	issueOperationFailedMessage       = "issue operation failed"
)

// SetupOptions describes a setup invocation.
type SetupOptions struct {
	TemplateURLs []string
	Teams        []platform.TeamSpec
	Private      bool
}

// SetupReport summarises a setup invocation.
type SetupReport struct {
	RunIdentifier string
	Teams         reconcile.Result[platform.Team]
	Repositories  reconcile.Result[platform.Repo]
	FailingURLs   []string
}

// UpdateOptions describes an update invocation. When Issue is set it is opened
// in every repository whose push still failed.
type UpdateOptions struct {
	TemplateURLs []string
	Teams        []platform.TeamSpec
	Issue        *platform.Issue
}

// UpdateReport summarises an update invocation.
type UpdateReport struct {
	RunIdentifier  string
	RepositoryURLs []string
	FailingURLs    []string
	OpenedIssues   []platform.IssueRecord
	UnnotifiedURLs []string
}

// MigrateOptions describes a migrate invocation. SourceURLs are cloned as given.
type MigrateOptions struct {
	SourceURLs []string
	Private    bool
}

// MigrateReport summarises a migrate invocation.
type MigrateReport struct {
	RunIdentifier string
	Repositories  reconcile.Result[platform.Repo]
	FailingURLs   []string
}

// IssueTargets selects the student repositories of TemplateNames x Teams, or the
// repositories named TemplateNames when Teams is empty.
type IssueTargets struct {
	TemplateNames []string
	Teams         []platform.TeamSpec
}

// OpenIssueOptions describes an issues open invocation.
type OpenIssueOptions struct {
	Targets IssueTargets
	Issue   platform.Issue
}

// CloseIssueOptions describes an issues close invocation.
type CloseIssueOptions struct {
	Targets      IssueTargets
	TitlePattern *regexp.Regexp
}

// IssueReport summarises an issue command.
type IssueReport struct {
	RunIdentifier string
	Issues        []platform.IssueRecord
	FailedURLs    []string
}

// Setup clones the templates, ensures the teams and one repository per
// template and team, and pushes each template into the repositories it created.
// A clone failure aborts before any push.
func (service *Service) Setup(executionContext context.Context, options SetupOptions) (SetupReport, error) {
	run := service.startRun(setupCommandNameConstant)
	report := SetupReport{RunIdentifier: run.identifier, FailingURLs: []string{}}
	setupError := service.setup(executionContext, run, options, &report)
	run.finish(setupError)
	return report, setupError
}

func (service *Service) setup(executionContext context.Context, run commandRun, options SetupOptions, report *SetupReport) error {
	templates, templateError := service.resolveTemplates(options.TemplateURLs)
	if templateError != nil {
		return templateError
	}
	if validationError := validateStudentRepositories(templates, options.Teams); validationError != nil {
		return validationError
	}

	return service.withWorkspace(run, func(scratch *workspace.Workspace) error {
		cloned, cloneError := service.cloneTemplates(executionContext, scratch, templates, true)
		if cloneError != nil {
			return cloneError
		}

		teamsResult, teamsError := service.reconciler.EnsureTeams(executionContext, options.Teams)
		report.Teams = teamsResult
		if teamsError != nil {
			return teamsError
		}
		teamsByName := make(map[string]platform.Team, len(options.Teams))
		for _, team := range teamsResult.All() {
			teamsByName[nameKey(team.Name)] = team
		}

		specs := make([]platform.RepoSpec, 0, len(cloned)*len(options.Teams))
		clonePathByRepository := make(map[string]string, cap(specs))
		for _, source := range cloned {
			for _, teamSpec := range options.Teams {
				owningTeam := teamsByName[nameKey(teamSpec.Name)]
				repositoryName := platform.StudentRepoName(owningTeam.Name, source.name)
				specs = append(specs, platform.RepoSpec{Name: repositoryName, Private: options.Private, OwningTeam: &owningTeam})
				clonePathByRepository[nameKey(repositoryName)] = source.localPath
			}
		}

		repositoriesResult, repositoriesError := service.reconciler.EnsureRepos(executionContext, specs)
		report.Repositories = repositoriesResult
		if repositoriesError != nil {
			return repositoriesError
		}

		targets, matchError := pushTargetsFor(repositoriesResult.Created, clonePathByRepository)
		if matchError != nil {
			return matchError
		}
		failingURLs, pushError := service.pushTargets(executionContext, targets)
		report.FailingURLs = failingURLs
		if pushError != nil {
			return pushError
		}
		run.logger.Info(templatesPushedMessage, zap.Int(logFieldFailingCountConstant, len(failingURLs)))
		return nil
	})
}

// Update pushes the current templates into every existing student repository
// and optionally opens an issue where the push kept failing.
func (service *Service) Update(executionContext context.Context, options UpdateOptions) (UpdateReport, error) {
	run := service.startRun(updateCommandNameConstant)
	report := UpdateReport{RunIdentifier: run.identifier, FailingURLs: []string{}}
	updateError := service.update(executionContext, run, options, &report)
	run.finish(updateError)
	return report, updateError
}

func (service *Service) update(executionContext context.Context, run commandRun, options UpdateOptions, report *UpdateReport) error {
	templates, templateError := service.resolveTemplates(options.TemplateURLs)
	if templateError != nil {
		return templateError
	}
	if validationError := validateStudentRepositories(templates, options.Teams); validationError != nil {
		return validationError
	}
	if options.Issue != nil && len(strings.TrimSpace(options.Issue.Title)) == 0 {
		return InvalidInputError{FieldName: issueTitleFieldConstant, Message: issueTitleRequiredMessageConstant}
	}

	return service.withWorkspace(run, func(scratch *workspace.Workspace) error {
		cloned, cloneError := service.cloneTemplates(executionContext, scratch, templates, true)
		if cloneError != nil {
			return cloneError
		}
		teams, teamsError := service.resolveTeams(executionContext, options.Teams)
		if teamsError != nil {
			return teamsError
		}

		targets := make([]pushTarget, 0, len(cloned)*len(teams))
		for _, source := range cloned {
			for _, repositoryURL := range service.backend.GetRepoURLs([]string{source.name}, "", teams) {
				targets = append(targets, pushTarget{localPath: source.localPath, repositoryURL: repositoryURL})
				report.RepositoryURLs = append(report.RepositoryURLs, repositoryURL)
			}
		}

		failingURLs, pushError := service.pushTargets(executionContext, targets)
		report.FailingURLs = failingURLs
		if pushError != nil {
			return pushError
		}

		if options.Issue == nil {
			return nil
		}
		for _, failingURL := range failingURLs {
			record, issueError := service.backend.OpenIssue(executionContext, failingURL, *options.Issue)
			if issueError != nil {
				run.logger.Warn(remediationIssueFailedMessage, zap.String(logFieldRepositoryURLConstant, failingURL), zap.Error(issueError))
				report.UnnotifiedURLs = append(report.UnnotifiedURLs, failingURL)
				continue
			}
			report.OpenedIssues = append(report.OpenedIssues, record)
		}
		return nil
	})
}

// Migrate clones external repositories, ensures a repository of the same name
// exists in the organization, and pushes each clone there.
func (service *Service) Migrate(executionContext context.Context, options MigrateOptions) (MigrateReport, error) {
	run := service.startRun(migrateCommandNameConstant)
	report := MigrateReport{RunIdentifier: run.identifier, FailingURLs: []string{}}
	migrateError := service.migrate(executionContext, run, options, &report)
	run.finish(migrateError)
	return report, migrateError
}

func (service *Service) migrate(executionContext context.Context, run commandRun, options MigrateOptions, report *MigrateReport) error {
	sources, sourceError := service.resolveTemplates(options.SourceURLs)
	if sourceError != nil {
		return sourceError
	}
	specs := make([]platform.RepoSpec, 0, len(sources))
	for _, source := range sources {
		specs = append(specs, platform.RepoSpec{Name: source.name, Private: options.Private})
	}

	return service.withWorkspace(run, func(scratch *workspace.Workspace) error {
		cloned, cloneError := service.cloneTemplates(executionContext, scratch, sources, false)
		if cloneError != nil {
			return cloneError
		}

		repositoriesResult, repositoriesError := service.reconciler.EnsureRepos(executionContext, specs)
		report.Repositories = repositoriesResult
		if repositoriesError != nil {
			return repositoriesError
		}
		clonePathByRepository := make(map[string]string, len(cloned))
		for _, source := range cloned {
			clonePathByRepository[nameKey(source.name)] = source.localPath
		}

		targets, matchError := pushTargetsFor(repositoriesResult.All(), clonePathByRepository)
		if matchError != nil {
			return matchError
		}
		failingURLs, pushError := service.pushTargets(executionContext, targets)
		report.FailingURLs = failingURLs
		return pushError
	})
}

// pushTargetsFor pairs every repository with the clone pushed into it. It fails
// before anything is pushed when a repository matches no clone.
func pushTargetsFor(repositories []platform.Repo, clonePathByRepository map[string]string) ([]pushTarget, error) {
	targets := make([]pushTarget, 0, len(repositories))
	for _, repository := range repositories {
		localPath, found := clonePathByRepository[nameKey(repository.Name)]
		if !found {
			return nil, UnmatchedRepositoryError{RepositoryName: repository.Name, RepositoryURL: repository.URL}
		}
		targets = append(targets, pushTarget{localPath: localPath, repositoryURL: repository.URL})
	}
	return targets, nil
}

// OpenIssues opens the issue in every targeted repository. Failures for one
// repository do not stop the others; they are joined into the returned error.
func (service *Service) OpenIssues(executionContext context.Context, options OpenIssueOptions) (IssueReport, error) {
	run := service.startRun(openIssueCommandNameConstant)
	report := IssueReport{RunIdentifier: run.identifier, Issues: []platform.IssueRecord{}, FailedURLs: []string{}}
	if len(strings.TrimSpace(options.Issue.Title)) == 0 {
		inputError := InvalidInputError{FieldName: issueTitleFieldConstant, Message: issueTitleRequiredMessageConstant}
		run.finish(inputError)
		return report, inputError
	}

	issueError := service.forEachTarget(executionContext, run, options.Targets, &report, func(repositoryURL string) ([]platform.IssueRecord, error) {
		record, openError := service.backend.OpenIssue(executionContext, repositoryURL, options.Issue)
		if openError != nil {
			return nil, openError
		}
		return []platform.IssueRecord{record}, nil
	})
	run.finish(issueError)
	return report, issueError
}

// CloseIssues closes the open issues whose title matches the pattern in every
// targeted repository.
func (service *Service) CloseIssues(executionContext context.Context, options CloseIssueOptions) (IssueReport, error) {
	run := service.startRun(closeIssueCommandNameConstant)
	report := IssueReport{RunIdentifier: run.identifier, Issues: []platform.IssueRecord{}, FailedURLs: []string{}}
	if options.TitlePattern == nil {
		inputError := InvalidInputError{FieldName: titlePatternFieldConstant, Message: titlePatternRequiredMessage}
		run.finish(inputError)
		return report, inputError
	}

	issueError := service.forEachTarget(executionContext, run, options.Targets, &report, func(repositoryURL string) ([]platform.IssueRecord, error) {
		return service.backend.CloseIssues(executionContext, repositoryURL, options.TitlePattern)
	})
	run.finish(issueError)
	return report, issueError
}

func (service *Service) forEachTarget(executionContext context.Context, run commandRun, targets IssueTargets, report *IssueReport, action func(repositoryURL string) ([]platform.IssueRecord, error)) error {
	if len(targets.TemplateNames) == 0 {
		return InvalidInputError{FieldName: templatesFieldConstant, Message: templatesRequiredMessageConstant}
	}
	teams, teamsError := service.resolveTeams(executionContext, targets.Teams)
	if teamsError != nil {
		return teamsError
	}

	failures := make([]error, 0)
	for _, repositoryURL := range service.backend.GetRepoURLs(targets.TemplateNames, "", teams) {
		records, actionError := action(repositoryURL)
		if actionError != nil {
			run.logger.Warn(issueOperationFailedMessage, zap.String(logFieldRepositoryURLConstant, repositoryURL), zap.Error(actionError))
			report.FailedURLs = append(report.FailedURLs, repositoryURL)
			failures = append(failures, actionError)
			continue
		}
		report.Issues = append(report.Issues, records...)
	}
	return errors.Join(failures...)
}
