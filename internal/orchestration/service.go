package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/credentials"
	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/reconcile"
	"github.com/temirov/repofleet/internal/transfer"
	"github.com/temirov/repofleet/internal/workspace"
)

const (
	backendMissingMessageConstant     = "platform backend not configured"
	transportMissingMessageConstant   = "git transport not configured"
	templatesRequiredMessageConstant  = "at least one template repository is required"
	teamsRequiredMessageConstant      = "at least one team is required"
	duplicateTemplateTemplateConstant = "template %q is listed more than once"
	cloneAbortedTemplateConstant      = "cloning templates failed; nothing was pushed: %v"
	templateNameTemplateConstant      = "unable to determine repository name of %s: %v"
	authenticationTemplateConstant    = "unable to add credentials to %s: %v"
	unmatchedRepositoryTemplate       = "platform returned repository %q (%s) that matches no cloned source; nothing was pushed"
	templatesFieldConstant            = "templates"
	teamsFieldConstant                = "teams"
	workspaceCleanupFailedMessage     = "unable to remove workspace"
	commandStartedMessage             = "command started"
	commandFinishedMessage            = "command finished"
	workspaceCreatedMessage           = "workspace created"
	templatesPushedMessage            = "templates pushed"
	logFieldErrorConstant             = "error"
	remediationIssueFailedMessage     = "unable to open remediation issue"
	logFieldRunIdentifierConstant     = "run_id"
	logFieldCommandConstant           = "command"
	logFieldWorkspaceConstant         = "workspace"
	logFieldFailingCountConstant      = "failing_urls"
	logFieldRepositoryURLConstant     = "repository_url"
	setupCommandNameConstant          = "setup"
	updateCommandNameConstant         = "update"
	migrateCommandNameConstant        = "migrate"
	openIssueCommandNameConstant      = "issues open"
	closeIssueCommandNameConstant     = "issues close"
	verifyCommandNameConstant         = "verify"
)

var (
	// ErrBackendNotConfigured indicates a Service without a platform backend.
	ErrBackendNotConfigured      = errors.New(backendMissingMessageConstant)
	// ErrGitTransportNotConfigured indicates a Service without a git transport.
	ErrGitTransportNotConfigured = errors.New(transportMissingMessageConstant)
)

// InvalidInputError describes command input rejected before any remote call.
type InvalidInputError struct {
	FieldName string
	Message   string
}

// Error describes the invalid input.
func (inputError InvalidInputError) Error() string {
	return fmt.Sprintf("%s: %s", inputError.FieldName, inputError.Message)
}

// CloneAbortedError reports that a command stopped because a template could
// not be cloned. No push was attempted.
type CloneAbortedError struct {
	Cause error
}

// Error describes the aborted command.
func (abortedError CloneAbortedError) Error() string {
	return fmt.Sprintf(cloneAbortedTemplateConstant, abortedError.Cause)
}

// Unwrap exposes the clone failures.
func (abortedError CloneAbortedError) Unwrap() error {
	return abortedError.Cause
}

// UnmatchedRepositoryError reports a reconciled repository whose name matches
// none of the cloned sources, so there is nothing to push into it.
type UnmatchedRepositoryError struct {
	RepositoryName string
	RepositoryURL  string
}

// Error describes the unmatched repository.
func (unmatchedError UnmatchedRepositoryError) Error() string {
	return fmt.Sprintf(unmatchedRepositoryTemplate, unmatchedError.RepositoryName, unmatchedError.RepositoryURL)
}

// ServiceDependencies describes the collaborators of a Service.
type ServiceDependencies struct {
	Backend             platform.Backend
	GitTransport        transfer.GitTransport
	Logger              *zap.Logger
	Metrics             *transfer.Metrics
	FileSystem          workspace.FileSystem
	WorkspaceParent     string
	BatchSize           int
	PushTries           int
	BackOffProvider     transfer.BackOffProvider
	Branch              string
	RunIdentifierSource func() string
}

// Service composes reconciliation and transfers into the user-facing commands.
type Service struct {
	backend             platform.Backend
	logger              *zap.Logger
	reconciler          *reconcile.Reconciler
	batcher             *transfer.Batcher
	pushRetries         *transfer.PushRetryController
	fileSystem          workspace.FileSystem
	workspaceParent     string
	branch              string
	runIdentifierSource func() string
}

// NewService constructs a Service with the provided dependencies.
func NewService(dependencies ServiceDependencies) (*Service, error) {
	if dependencies.Backend == nil {
		return nil, ErrBackendNotConfigured
	}
	if dependencies.GitTransport == nil {
		return nil, ErrGitTransportNotConfigured
	}

	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fileSystem := dependencies.FileSystem
	if fileSystem == nil {
		fileSystem = workspace.OSFileSystem{}
	}
	pushTries := dependencies.PushTries
	if pushTries == 0 {
		pushTries = transfer.DefaultPushTries
	}
	backOffProvider := dependencies.BackOffProvider
	if backOffProvider == nil {
		backOffProvider = transfer.ExponentialBackOffProvider(transfer.DefaultRetryInitialInterval)
	}
	runIdentifierSource := dependencies.RunIdentifierSource
	if runIdentifierSource == nil {
		runIdentifierSource = uuid.NewString
	}

	reconciler, reconcilerError := reconcile.NewReconciler(dependencies.Backend, logger)
	if reconcilerError != nil {
		return nil, reconcilerError
	}
	batcher, batcherError := transfer.NewBatcher(transfer.BatcherDependencies{
		Transport: dependencies.GitTransport,
		Logger:    logger,
		Metrics:   dependencies.Metrics,
		BatchSize: dependencies.BatchSize,
	})
	if batcherError != nil {
		return nil, batcherError
	}
	pushRetries, retryError := transfer.NewPushRetryController(transfer.PushRetryControllerDependencies{
		Pusher:          batcher,
		Logger:          logger,
		Metrics:         dependencies.Metrics,
		MaximumTries:    pushTries,
		BackOffProvider: backOffProvider,
	})
	if retryError != nil {
		return nil, retryError
	}

	return &Service{
		backend:             dependencies.Backend,
		logger:              logger,
		reconciler:          reconciler,
		batcher:             batcher,
		pushRetries:         pushRetries,
		fileSystem:          fileSystem,
		workspaceParent:     dependencies.WorkspaceParent,
		branch:              strings.TrimSpace(dependencies.Branch),
		runIdentifierSource: runIdentifierSource,
	}, nil
}

// Verify checks the configured credentials and organizations.
func (service *Service) Verify(executionContext context.Context) error {
	run := service.startRun(verifyCommandNameConstant)
	verifyError := service.backend.VerifySettings(executionContext)
	run.finish(verifyError)
	return verifyError
}

// commandRun carries the logger of one command invocation.
type commandRun struct {
	identifier string
	logger     *zap.Logger
}

func (service *Service) startRun(commandName string) commandRun {
	identifier := service.runIdentifierSource()
	logger := service.logger.With(zap.String(logFieldRunIdentifierConstant, identifier), zap.String(logFieldCommandConstant, commandName))
	logger.Info(commandStartedMessage)
	return commandRun{identifier: identifier, logger: logger}
}

func (run commandRun) finish(commandError error) {
	if commandError != nil {
		run.logger.Info(commandFinishedMessage, zap.String(logFieldErrorConstant, credentials.Sanitize(commandError.Error())))
		return
	}
	run.logger.Info(commandFinishedMessage)
}
