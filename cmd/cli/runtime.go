package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/credentials"
	"github.com/temirov/repofleet/internal/execshell"
	"github.com/temirov/repofleet/internal/orchestration"
	"github.com/temirov/repofleet/internal/platform"
	"github.com/temirov/repofleet/internal/platform/github"
	"github.com/temirov/repofleet/internal/platform/gitlab"
	"github.com/temirov/repofleet/internal/platform/transport"
	"github.com/temirov/repofleet/internal/transfer"
	"github.com/temirov/repofleet/internal/ui"
)

const (
	tokenMissingMessageConstant          = "no platform token configured; set platform.token, REPOFLEET_PLATFORM_TOKEN, or the platform's token variable"
	backendCreationErrorTemplateConstant = "unable to construct %s backend: %w"
	metricsWriteErrorTemplateConstant    = "unable to write metrics to %s: %w"
	metricsWrittenMessageConstant        = "metrics written"
	logFieldMetricsFileConstant          = "metrics_file"
	remoteSchemeSeparatorConstant        = "://"
	scpRemotePrefixConstant              = "git@"
)

// ErrTokenNotConfigured indicates that neither configuration nor environment supplied a token.
var ErrTokenNotConfigured = errors.New(tokenMissingMessageConstant)

// BackendProvider constructs the platform backend for a command.
type BackendProvider func(configuration PlatformConfiguration, token credentials.Token, logger *zap.Logger, registerer prometheus.Registerer) (platform.Backend, error)

// GitTransportProvider constructs the git transport on top of the shell executor.
type GitTransportProvider func(executor transfer.GitExecutor) (transfer.GitTransport, error)

// RuntimeDependencies overrides the collaborators commands are built from.
// Zero values select the production implementations.
type RuntimeDependencies struct {
	BackendProvider      BackendProvider
	GitTransportProvider GitTransportProvider
	CommandRunner        execshell.CommandRunner
	RunIdentifierSource  func() string
}

// commandRuntime holds what one command invocation runs against.
type commandRuntime struct {
	service     *orchestration.Service
	backend     platform.Backend
	registry    *prometheus.Registry
	reporter    *ui.ProgressReporter
	metricsFile string
	logger      *zap.Logger
}

func (application *Application) newRuntime(command *cobra.Command) (*commandRuntime, error) {
	platformConfiguration := application.configuration.Platform
	transferConfiguration := application.configuration.Transfer
	logger := application.logger

	token, tokenFound := credentials.ResolveToken(platformConfiguration.Token, string(platformConfiguration.Kind), application.environmentProvider())
	if !tokenFound {
		return nil, ErrTokenNotConfigured
	}

	registry := prometheus.NewRegistry()
	backendProvider := application.runtimeDependencies.BackendProvider
	if backendProvider == nil {
		backendProvider = newPlatformBackend
	}
	backend, backendError := backendProvider(platformConfiguration, token, logger, registry)
	if backendError != nil {
		return nil, fmt.Errorf(backendCreationErrorTemplateConstant, platformConfiguration.Kind, backendError)
	}

	commandRunner := application.runtimeDependencies.CommandRunner
	if commandRunner == nil {
		commandRunner = execshell.NewOSCommandRunner()
	}
	executor, executorError := execshell.NewShellExecutor(logger, commandRunner, application.humanReadableLoggingEnabled(), token)
	if executorError != nil {
		return nil, executorError
	}
	var reporter *ui.ProgressReporter
	if application.humanReadableLoggingEnabled() {
		reporter = ui.NewProgressReporter(command.ErrOrStderr(), token)
		executor = executor.WithObserver(reporter)
	}

	gitTransportProvider := application.runtimeDependencies.GitTransportProvider
	if gitTransportProvider == nil {
		gitTransportProvider = newGitCommandTransport
	}
	gitTransport, transportError := gitTransportProvider(executor)
	if transportError != nil {
		return nil, transportError
	}

	metrics, metricsError := transfer.NewMetrics(registry)
	if metricsError != nil {
		return nil, metricsError
	}

	backOffProvider := transfer.ExponentialBackOffProvider(transferConfiguration.RetryInitialInterval)
	if transferConfiguration.RetryInitialInterval <= 0 {
		backOffProvider = immediateRetryProvider
	}
	service, serviceError := orchestration.NewService(orchestration.ServiceDependencies{
		Backend:             backend,
		GitTransport:        gitTransport,
		Logger:              logger,
		Metrics:             metrics,
		WorkspaceParent:     application.homeExpander.Expand(transferConfiguration.WorkspaceDirectory),
		BatchSize:           transferConfiguration.BatchSize,
		PushTries:           transferConfiguration.PushTries,
		BackOffProvider:     backOffProvider,
		Branch:              transferConfiguration.Branch,
		RunIdentifierSource: application.runtimeDependencies.RunIdentifierSource,
	})
	if serviceError != nil {
		return nil, serviceError
	}

	return &commandRuntime{
		service:     service,
		backend:     backend,
		registry:    registry,
		reporter:    reporter,
		metricsFile: application.homeExpander.Expand(transferConfiguration.MetricsFile),
		logger:      logger,
	}, nil
}

// finish prints the progress summary and exports metrics when a file is configured.
func (runtime *commandRuntime) finish() error {
	if runtime.reporter != nil {
		runtime.reporter.Summarize()
	}
	if len(runtime.metricsFile) == 0 {
		return nil
	}
	if writeError := prometheus.WriteToTextfile(runtime.metricsFile, runtime.registry); writeError != nil {
		return fmt.Errorf(metricsWriteErrorTemplateConstant, runtime.metricsFile, writeError)
	}
	runtime.logger.Debug(metricsWrittenMessageConstant, zap.String(logFieldMetricsFileConstant, runtime.metricsFile))
	return nil
}

// templateURLs turns bare template names into URLs in the template organization.
func (runtime *commandRuntime) templateURLs(templates []string, templateOrganization string) []string {
	urls := make([]string, 0, len(templates))
	for _, template := range templates {
		trimmedTemplate := strings.TrimSpace(template)
		if strings.Contains(trimmedTemplate, remoteSchemeSeparatorConstant) || strings.HasPrefix(trimmedTemplate, scpRemotePrefixConstant) {
			urls = append(urls, trimmedTemplate)
			continue
		}
		urls = append(urls, runtime.backend.GetRepoURLs([]string{trimmedTemplate}, strings.TrimSpace(templateOrganization), nil)...)
	}
	return urls
}

func newPlatformBackend(configuration PlatformConfiguration, token credentials.Token, logger *zap.Logger, registerer prometheus.Registerer) (platform.Backend, error) {
	if configuration.Kind == PlatformKindGitLab {
		backend, backendError := gitlab.NewBackend(gitlab.Options{
			BaseURL:              configuration.BaseURL,
			Organization:         configuration.Organization,
			TemplateOrganization: configuration.TemplateOrganization,
			User:                 configuration.User,
			Token:                token,
			RequestInterval:      configuration.RequestInterval,
			RetryMax:             configuration.HTTPRetries,
			Registerer:           registerer,
			Logger:               logger,
		})
		if backendError != nil {
			return nil, backendError
		}
		return backend, nil
	}

	httpClient := transport.NewHTTPClient(transport.Options{
		Platform:        github.PlatformName,
		Logger:          logger,
		Token:           token.Reveal(),
		RequestInterval: configuration.RequestInterval,
		RetryMax:        configuration.HTTPRetries,
		Registerer:      registerer,
	})
	backend, backendError := github.NewBackend(github.Options{
		BaseURL:              configuration.BaseURL,
		GitBaseURL:           configuration.GitBaseURL,
		Organization:         configuration.Organization,
		TemplateOrganization: configuration.TemplateOrganization,
		Token:                token,
		HTTPClient:           httpClient,
		Logger:               logger,
	})
	if backendError != nil {
		return nil, backendError
	}
	return backend, nil
}

// immediateRetryProvider retries failed pushes without waiting.
func immediateRetryProvider() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func newGitCommandTransport(executor transfer.GitExecutor) (transfer.GitTransport, error) {
	gitTransport, transportError := transfer.NewGitCommandTransport(executor)
	if transportError != nil {
		return nil, transportError
	}
	return gitTransport, nil
}
