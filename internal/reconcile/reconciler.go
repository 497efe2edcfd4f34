package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/platform"
)

const (
	backendMissingMessageConstant  = "platform backend not configured"
	duplicateNameMessageConstant   = "is requested more than once"
	operationErrorTemplateConstant = "%s %s: %v"
	teamNameFieldConstant          = "team name"
	repositoryNameFieldConstant    = "repository name"
	missingCreationMessageConstant = "backend reported no outcome"
	teamsReconciledMessage         = "teams reconciled"
	repositoriesReconciledMessage  = "repositories reconciled"
	addingMembersMessage           = "adding missing team members"
	skippingMembersMessage         = "skipping users unknown to the platform"
	logFieldCreatedCount           = "created"
	logFieldReusedCount            = "reused"
	logFieldTeamName               = "team"
	logFieldMembers                = "members"
)

// ErrBackendNotConfigured indicates a Reconciler without a platform backend.
var ErrBackendNotConfigured = errors.New(backendMissingMessageConstant)

// Result partitions the requested entities into the ones this call created and
// the ones that already existed. Every requested entity appears in exactly one
// of the two lists.
type Result[T any] struct {
	Created []T
	Reused  []T
}

// All returns created entities followed by reused ones.
func (result Result[T]) All() []T {
	return append(append(make([]T, 0, len(result.Created)+len(result.Reused)), result.Created...), result.Reused...)
}

// OperationError reports the contract operation and entity a reconciliation
// step failed on.
type OperationError struct {
	Operation platform.Operation
	Subject   string
	Cause     error
}

// Error describes the failure.
func (operationError OperationError) Error() string {
	return fmt.Sprintf(operationErrorTemplateConstant, operationError.Operation, operationError.Subject, operationError.Cause)
}

// Unwrap exposes the translated platform error.
func (operationError OperationError) Unwrap() error {
	return operationError.Cause
}

// Reconciler brings remote teams and repositories in line with desired state
// using only the capability contract.
type Reconciler struct {
	backend        platform.Backend
	logger         *zap.Logger
	mutex          sync.Mutex
	unknownMembers map[string]struct{}
}

// NewReconciler constructs a Reconciler.
func NewReconciler(backend platform.Backend, logger *zap.Logger) (*Reconciler, error) {
	if backend == nil {
		return nil, ErrBackendNotConfigured
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{backend: backend, logger: logger, unknownMembers: make(map[string]struct{})}, nil
}

// EnsureTeams creates the missing teams and adds only the missing members.
// Every spec is validated before the platform is contacted. Users unknown to
// the platform are skipped by the backend, so a returned team lists the
// members actually observed; the reconciler remembers them and does not
// submit them again. Returned teams carry the requested permission, which is
// what repositories owned by the team are granted.
func (reconciler *Reconciler) EnsureTeams(executionContext context.Context, specs []platform.TeamSpec) (Result[platform.Team], error) {
	result := Result[platform.Team]{Created: []platform.Team{}, Reused: []platform.Team{}}
	if validationError := validateTeamSpecs(specs); validationError != nil {
		return result, validationError
	}
	if len(specs) == 0 {
		return result, nil
	}

	existingTeams, listError := reconciler.backend.GetTeams(executionContext)
	if listError != nil {
		return result, OperationError{Operation: platform.OperationGetTeams, Subject: teamNameFieldConstant, Cause: listError}
	}
	teamsByName := make(map[string]platform.Team, len(existingTeams))
	for _, team := range existingTeams {
		teamsByName[nameKey(team.Name)] = team
	}

	for _, spec := range specs {
		team, exists := teamsByName[nameKey(spec.Name)]
		if !exists {
			createdTeam, createError := reconciler.backend.CreateTeam(executionContext, spec)
			if createError != nil {
				return result, OperationError{Operation: platform.OperationCreateTeam, Subject: spec.Name, Cause: createError}
			}
			team = createdTeam
		}

		missingMembers := reconciler.missingMembers(team, spec.Members)
		if len(missingMembers) > 0 {
			reconciler.logger.Debug(addingMembersMessage, zap.String(logFieldTeamName, spec.Name), zap.Strings(logFieldMembers, missingMembers))
			updatedTeam, addError := reconciler.backend.AddTeamMembers(executionContext, team, missingMembers)
			if addError != nil {
				return result, OperationError{Operation: platform.OperationAddTeamMembers, Subject: spec.Name, Cause: addError}
			}
			team = updatedTeam
			reconciler.rememberSkipped(spec.Name, team, missingMembers)
		}
		team.Permission = spec.Permission

		if exists {
			result.Reused = append(result.Reused, team)
		} else {
			result.Created = append(result.Created, team)
		}
	}

	reconciler.logger.Info(teamsReconciledMessage, zap.Int(logFieldCreatedCount, len(result.Created)), zap.Int(logFieldReusedCount, len(result.Reused)))
	return result, nil
}

// EnsureRepos creates the repositories that do not exist yet. A repository the
// backend reports as already existing is returned in Reused with its existing
// URL. Names are validated before the platform is contacted.
func (reconciler *Reconciler) EnsureRepos(executionContext context.Context, specs []platform.RepoSpec) (Result[platform.Repo], error) {
	result := Result[platform.Repo]{Created: []platform.Repo{}, Reused: []platform.Repo{}}
	if validationError := validateRepoSpecs(specs); validationError != nil {
		return result, validationError
	}
	if len(specs) == 0 {
		return result, nil
	}

	existingRepositories, lookupError := reconciler.backend.GetRepos(executionContext, specs)
	if lookupError != nil {
		return result, OperationError{Operation: platform.OperationGetRepos, Subject: repositoryNameFieldConstant, Cause: lookupError}
	}
	existingByName := make(map[string]platform.Repo, len(existingRepositories))
	for _, repository := range existingRepositories {
		existingByName[nameKey(repository.Name)] = repository
	}

	missingSpecs := make([]platform.RepoSpec, 0, len(specs))
	for _, spec := range specs {
		if repository, exists := existingByName[nameKey(spec.Name)]; exists {
			result.Reused = append(result.Reused, repository)
			continue
		}
		missingSpecs = append(missingSpecs, spec)
	}

	if len(missingSpecs) > 0 {
		creations, createError := reconciler.backend.CreateRepos(executionContext, missingSpecs)
		for _, creation := range creations {
			if creation.Created {
				result.Created = append(result.Created, creation.Repo)
			} else {
				result.Reused = append(result.Reused, creation.Repo)
			}
		}
		if createError == nil && len(creations) < len(missingSpecs) {
			createError = errors.New(missingCreationMessageConstant)
		}
		if createError != nil {
			failedSpec := missingSpecs[min(len(creations), len(missingSpecs)-1)]
			return result, OperationError{Operation: platform.OperationCreateRepos, Subject: failedSpec.Name, Cause: createError}
		}
	}

	reconciler.logger.Info(repositoriesReconciledMessage, zap.Int(logFieldCreatedCount, len(result.Created)), zap.Int(logFieldReusedCount, len(result.Reused)))
	return result, nil
}

func (reconciler *Reconciler) missingMembers(team platform.Team, members []string) []string {
	reconciler.mutex.Lock()
	defer reconciler.mutex.Unlock()
	missing := make([]string, 0, len(members))
	for _, member := range members {
		if team.HasMember(member) {
			continue
		}
		if _, unknown := reconciler.unknownMembers[nameKey(member)]; unknown {
			continue
		}
		missing = append(missing, member)
	}
	return missing
}

// rememberSkipped records the submitted members the backend did not add.
func (reconciler *Reconciler) rememberSkipped(teamName string, team platform.Team, submitted []string) {
	skipped := make([]string, 0)
	reconciler.mutex.Lock()
	for _, member := range submitted {
		if !team.HasMember(member) {
			reconciler.unknownMembers[nameKey(member)] = struct{}{}
			skipped = append(skipped, member)
		}
	}
	reconciler.mutex.Unlock()
	if len(skipped) > 0 {
		reconciler.logger.Warn(skippingMembersMessage, zap.String(logFieldTeamName, teamName), zap.Strings(logFieldMembers, skipped))
	}
}

func validateTeamSpecs(specs []platform.TeamSpec) error {
	validationErrors := make([]error, 0)
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if specError := spec.Validate(); specError != nil {
			validationErrors = append(validationErrors, specError)
			continue
		}
		if _, duplicate := seen[nameKey(spec.Name)]; duplicate {
			validationErrors = append(validationErrors, platform.ValidationError{Field: teamNameFieldConstant, Value: spec.Name, Message: duplicateNameMessageConstant})
			continue
		}
		seen[nameKey(spec.Name)] = struct{}{}
	}
	return errors.Join(validationErrors...)
}

func validateRepoSpecs(specs []platform.RepoSpec) error {
	validationErrors := make([]error, 0)
	seen := make(map[string]struct{}, len(specs))
	for _, spec := range specs {
		if specError := spec.Validate(); specError != nil {
			validationErrors = append(validationErrors, specError)
			continue
		}
		if _, duplicate := seen[nameKey(spec.Name)]; duplicate {
			validationErrors = append(validationErrors, platform.ValidationError{Field: repositoryNameFieldConstant, Value: spec.Name, Message: duplicateNameMessageConstant})
			continue
		}
		seen[nameKey(spec.Name)] = struct{}{}
	}
	return errors.Join(validationErrors...)
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
