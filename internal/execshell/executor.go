package execshell

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/credentials"
)

const (
	loggerNotConfiguredMessageConstant        = "shell executor logger not configured"
	commandRunnerNotConfiguredMessageConstant = "shell executor command runner not configured"
	commandFailedTemplateConstant             = "%s exited with code %d%s"
	commandExecutionFailedTemplateConstant    = "%s could not be executed: %s"
	logFieldCommandNameConstant               = "command"
	logFieldArgumentsConstant                 = "arguments"
	logFieldWorkingDirectoryConstant          = "working_directory"
	logFieldExitCodeConstant                  = "exit_code"
	logFieldStandardErrorConstant             = "stderr"
)

// CommandName identifies an executable invoked by ShellExecutor.
type CommandName string

// Supported executables.
const (
	CommandGit CommandName = CommandName("git")
)

// CommandDetails describes the arguments and environment of a single invocation.
type CommandDetails struct {
	Arguments            []string
	WorkingDirectory     string
	EnvironmentVariables map[string]string
}

// ShellCommand pairs an executable with its invocation details.
type ShellCommand struct {
	Name    CommandName
	Details CommandDetails
}

// ExecutionResult captures process output.
type ExecutionResult struct {
	StandardOutput string
	StandardError  string
	ExitCode       int
}

// CommandRunner executes shell commands.
type CommandRunner interface {
	Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error)
}

var (
	// ErrLoggerNotConfigured indicates the executor was constructed without a logger.
	ErrLoggerNotConfigured        = errors.New(loggerNotConfiguredMessageConstant)
	// ErrCommandRunnerNotConfigured indicates the executor was constructed without a runner.
	ErrCommandRunnerNotConfigured = errors.New(commandRunnerNotConfiguredMessageConstant)
)

// CommandFailedError reports a process that exited with a non-zero code. The
// rendered message never contains credentials embedded in the arguments.
type CommandFailedError struct {
	Command ShellCommand
	Result  ExecutionResult
}

// Error describes the failure.
func (failedError CommandFailedError) Error() string {
	standardError := strings.TrimSpace(credentials.Sanitize(failedError.Result.StandardError))
	suffix := ""
	if len(standardError) > 0 {
		suffix = ": " + standardError
	}
	return fmt.Sprintf(commandFailedTemplateConstant, describeCommandLine(failedError.Command), failedError.Result.ExitCode, suffix)
}

// CommandExecutionError reports a process that could not be started or awaited.
type CommandExecutionError struct {
	Command ShellCommand
	Cause   error
}

// Error describes the failure.
func (executionError CommandExecutionError) Error() string {
	cause := unknownFailureMessageConstant
	if executionError.Cause != nil {
		cause = credentials.Sanitize(executionError.Cause.Error())
	}
	return fmt.Sprintf(commandExecutionFailedTemplateConstant, describeCommandLine(executionError.Command), cause)
}

// Unwrap exposes the underlying cause.
func (executionError CommandExecutionError) Unwrap() error {
	return executionError.Cause
}

// ShellExecutor runs commands through a CommandRunner and logs their lifecycle.
type ShellExecutor struct {
	logger               *zap.Logger
	runner               CommandRunner
	formatter            CommandMessageFormatter
	observer             CommandEventObserver
	humanReadableLogging bool
}

// NewShellExecutor constructs a ShellExecutor. Secret tokens are redacted from every
// logged message in addition to URL userinfo.
func NewShellExecutor(logger *zap.Logger, runner CommandRunner, humanReadableLogging bool, secretTokens ...credentials.Token) (*ShellExecutor, error) {
	if logger == nil {
		return nil, ErrLoggerNotConfigured
	}
	if runner == nil {
		return nil, ErrCommandRunnerNotConfigured
	}
	return &ShellExecutor{
		logger:               logger,
		runner:               runner,
		formatter:            CommandMessageFormatter{SecretTokens: append([]credentials.Token(nil), secretTokens...)},
		observer:             discardingObserver{},
		humanReadableLogging: humanReadableLogging,
	}, nil
}

// WithObserver returns a copy of the executor that reports command events to observer.
func (executor *ShellExecutor) WithObserver(observer CommandEventObserver) *ShellExecutor {
	duplicate := *executor
	if observer == nil {
		observer = discardingObserver{}
	}
	duplicate.observer = observer
	return &duplicate
}

// ExecuteGit runs git with the supplied details.
func (executor *ShellExecutor) ExecuteGit(executionContext context.Context, details CommandDetails) (ExecutionResult, error) {
	return executor.Execute(executionContext, ShellCommand{Name: CommandGit, Details: details})
}

// Execute runs an arbitrary command.
func (executor *ShellExecutor) Execute(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executor.logger.Debug(executor.formatter.BuildStartedMessage(command), executor.commandFields(command)...)
	executor.observer.CommandStarted(command)

	result, runError := executor.runner.Run(executionContext, command)
	if runError != nil {
		executor.observer.CommandExecutionFailed(command, runError)
		executor.logger.Warn(executor.formatter.BuildExecutionFailureMessage(command, runError), executor.commandFields(command)...)
		return ExecutionResult{}, CommandExecutionError{Command: command, Cause: runError}
	}

	executor.observer.CommandCompleted(command, result)
	if result.ExitCode != 0 {
		failureFields := append(executor.commandFields(command), zap.Int(logFieldExitCodeConstant, result.ExitCode))
		if !executor.humanReadableLogging {
			failureFields = append(failureFields, zap.String(logFieldStandardErrorConstant, executor.formatter.sanitize(strings.TrimSpace(result.StandardError))))
		}
		executor.logger.Debug(executor.formatter.BuildFailureMessage(command, result), failureFields...)
		return ExecutionResult{}, CommandFailedError{Command: command, Result: result}
	}

	executor.logger.Debug(executor.formatter.BuildSuccessMessage(command), executor.commandFields(command)...)
	return result, nil
}

func (executor *ShellExecutor) commandFields(command ShellCommand) []zap.Field {
	if executor.humanReadableLogging {
		return nil
	}
	return []zap.Field{
		zap.String(logFieldCommandNameConstant, string(command.Name)),
		zap.Strings(logFieldArgumentsConstant, credentials.SanitizeArguments(command.Details.Arguments, executor.formatter.SecretTokens...)),
		zap.String(logFieldWorkingDirectoryConstant, command.Details.WorkingDirectory),
	}
}

func describeCommandLine(command ShellCommand) string {
	commandLine := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLine = commandLine + " " + strings.Join(credentials.SanitizeArguments(command.Details.Arguments), commandArgumentsJoinSeparatorConstant)
	}
	return commandLine
}
