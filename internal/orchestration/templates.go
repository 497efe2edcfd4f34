package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/transfer"
	"github.com/temirov/repofleet/internal/workspace"
)

// template is a source repository resolved from its URL.
type template struct {
	name      string
	sourceURL string
	localPath string
}

// pushTarget pairs a local clone with the repository it is pushed to.
type pushTarget struct {
	localPath     string
	repositoryURL string
}

func (service *Service) resolveTemplates(templateURLs []string) ([]template, error) {
	if len(templateURLs) == 0 {
		return nil, InvalidInputError{FieldName: templatesFieldConstant, Message: templatesRequiredMessageConstant}
	}
	templates := make([]template, 0, len(templateURLs))
	seen := make(map[string]struct{}, len(templateURLs))
	for _, templateURL := range templateURLs {
		trimmedURL := strings.TrimSpace(templateURL)
		name, nameError := service.backend.ExtractRepoName(trimmedURL)
		if nameError != nil {
			return nil, InvalidInputError{FieldName: templatesFieldConstant, Message: fmt.Sprintf(templateNameTemplateConstant, trimmedURL, nameError)}
		}
		if _, duplicate := seen[nameKey(name)]; duplicate {
			return nil, InvalidInputError{FieldName: templatesFieldConstant, Message: fmt.Sprintf(duplicateTemplateTemplateConstant, name)}
		}
		seen[nameKey(name)] = struct{}{}
		templates = append(templates, template{name: name, sourceURL: trimmedURL})
	}
	return templates, nil
}

func (service *Service) withWorkspace(run commandRun, action func(scratch *workspace.Workspace) error) error {
	scratch, creationError := workspace.New(service.fileSystem, service.workspaceParent, run.identifier)
	if creationError != nil {
		return creationError
	}
	run.logger.Debug(workspaceCreatedMessage, zap.String(logFieldWorkspaceConstant, scratch.Root()))
	defer func() {
		if removalError := scratch.Remove(); removalError != nil {
			run.logger.Warn(workspaceCleanupFailedMessage, zap.String(logFieldWorkspaceConstant, scratch.Root()), zap.Error(removalError))
		}
	}()
	return action(scratch)
}

// cloneTemplates clones every template into its own workspace entry. Any clone
// failure aborts the command with a CloneAbortedError.
func (service *Service) cloneTemplates(executionContext context.Context, scratch *workspace.Workspace, templates []template, authenticate bool) ([]template, error) {
	cloned := make([]template, 0, len(templates))
	tasks := make([]transfer.Task, 0, len(templates))
	for _, source := range templates {
		localPath, claimError := scratch.Claim(source.name)
		if claimError != nil {
			return nil, claimError
		}
		remoteURL := source.sourceURL
		if authenticate {
			authenticatedURL, authenticationError := service.backend.InsertAuth(source.sourceURL)
			if authenticationError != nil {
				return nil, fmt.Errorf(authenticationTemplateConstant, source.sourceURL, authenticationError)
			}
			remoteURL = authenticatedURL
		}
		source.localPath = localPath
		cloned = append(cloned, source)
		tasks = append(tasks, transfer.Task{LocalPath: localPath, RemoteURL: remoteURL, Branch: service.branch})
	}

	if _, cloneError := service.batcher.Clone(executionContext, tasks); cloneError != nil {
		if contextError := executionContext.Err(); contextError != nil {
			return nil, contextError
		}
		return nil, CloneAbortedError{Cause: cloneError}
	}
	return cloned, nil
}

// pushTargets pushes each clone to its repository with retries and returns
// the credential-free URLs that still failed.
func (service *Service) pushTargets(executionContext context.Context, targets []pushTarget) ([]string, error) {
	tasks := make([]transfer.Task, 0, len(targets))
	for _, target := range targets {
		authenticatedURL, authenticationError := service.backend.InsertAuth(target.repositoryURL)
		if authenticationError != nil {
			return nil, fmt.Errorf(authenticationTemplateConstant, target.repositoryURL, authenticationError)
		}
		tasks = append(tasks, transfer.Task{LocalPath: target.localPath, RemoteURL: authenticatedURL, Branch: service.branch})
	}
	if len(tasks) == 0 {
		return []string{}, nil
	}
	return service.pushRetries.Push(executionContext, tasks)
}

// resolveTeams looks up the named teams on the platform. Teams the platform
// does not know are returned by name only, so URLs can still be derived.
func (service *Service) resolveTeams(executionContext context.Context, specs []platform.TeamSpec) ([]platform.Team, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	for _, spec := range specs {
		if validationError := spec.Validate(); validationError != nil {
			return nil, validationError
		}
	}
	existingTeams, listError := service.backend.GetTeams(executionContext)
	if listError != nil {
		return nil, listError
	}
	teamsByName := make(map[string]platform.Team, len(existingTeams))
	for _, team := range existingTeams {
		teamsByName[nameKey(team.Name)] = team
	}

	teams := make([]platform.Team, 0, len(specs))
	for _, spec := range specs {
		if team, found := teamsByName[nameKey(spec.Name)]; found {
			teams = append(teams, team)
			continue
		}
		teams = append(teams, platform.Team{Name: spec.Name, Members: spec.Members, Permission: spec.Permission})
	}
	return teams, nil
}

func validateStudentRepositories(templates []template, teams []platform.TeamSpec) error {
	if len(teams) == 0 {
		return InvalidInputError{FieldName: teamsFieldConstant, Message: teamsRequiredMessageConstant}
	}
	validationErrors := make([]error, 0)
	for _, team := range teams {
		if teamError := team.Validate(); teamError != nil {
			validationErrors = append(validationErrors, teamError)
			continue
		}
		for _, source := range templates {
			repositorySpec := platform.RepoSpec{Name: platform.StudentRepoName(team.Name, source.name)}
			if nameError := repositorySpec.Validate(); nameError != nil {
				validationErrors = append(validationErrors, nameError)
			}
		}
	}
	return errors.Join(validationErrors...)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
