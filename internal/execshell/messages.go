package execshell

import (
	"fmt"
	"strings"

	"github.com/temirov/repofleet/internal/credentials"
)

type messageStage int

const (
	messageStageStart messageStage = iota
	messageStageSuccess
	messageStageFailure
	messageStageExecutionFailure
)

const (
	genericStartTemplateConstant            = "Running %s"
	genericSuccessTemplateConstant          = "Completed %s"
	genericFailureTemplateConstant          = "%s failed with exit code %d%s"
	genericExecutionFailureTemplateConstant = "%s failed: %s"
	commandLabelTemplateConstant            = "%s%s"
	workingDirectorySuffixTemplateConstant  = " (in %s)"
	commandArgumentsJoinSeparatorConstant   = " "
	standardErrorSuffixTemplateConstant     = ": %s"
	unknownFailureMessageConstant           = "unknown error"
	emptyStringConstant                     = ""
	defaultWorkingDirectoryLabelConstant    = "current directory"
	fallbackUnknownValueLabelConstant       = "unknown"
	flagPrefixConstant                      = "-"
)

const (
	gitCloneSubcommandNameConstant = "clone"
	gitPushSubcommandNameConstant  = "push"
	gitBranchFlagConstant          = "--branch"
)

const (
	gitCloneStartTemplateConstant            = "Cloning %s into %s"
	gitCloneSuccessTemplateConstant          = "Cloned %s into %s"
	gitCloneFailureTemplateConstant          = "Failed to clone %s into %s (exit code %d%s)"
	gitCloneExecutionFailureTemplateConstant = "Unable to clone %s into %s: %s"
	gitPushStartTemplateConstant             = "Pushing %s to %s from %s"
	gitPushSuccessTemplateConstant           = "Pushed %s to %s from %s"
	gitPushFailureTemplateConstant           = "Failed to push %s to %s from %s (exit code %d%s)"
	gitPushExecutionFailureTemplateConstant  = "Unable to push %s to %s from %s: %s"
)

// CommandMessageFormatter builds human-readable, credential-free messages for command lifecycle events.
type CommandMessageFormatter struct {
	SecretTokens []credentials.Token
}

// BuildStartedMessage formats the message describing a command about to run.
func (formatter CommandMessageFormatter) BuildStartedMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageStart)
}

// BuildSuccessMessage formats the message describing a completed command with a zero exit code.
func (formatter CommandMessageFormatter) BuildSuccessMessage(command ShellCommand) string {
	return formatter.buildMessage(command, ExecutionResult{}, nil, messageStageSuccess)
}

// BuildFailureMessage formats the message describing a command that returned a non-zero exit code.
func (formatter CommandMessageFormatter) BuildFailureMessage(command ShellCommand, result ExecutionResult) string {
	return formatter.buildMessage(command, result, nil, messageStageFailure)
}

// BuildExecutionFailureMessage formats the message describing an unexpected execution failure.
func (formatter CommandMessageFormatter) BuildExecutionFailureMessage(command ShellCommand, failure error) string {
	return formatter.buildMessage(command, ExecutionResult{}, failure, messageStageExecutionFailure)
}

func (formatter CommandMessageFormatter) buildMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	if command.Name != CommandGit || len(command.Details.Arguments) == 0 {
		return formatter.sanitize(formatter.buildGenericMessage(command, result, failure, stage))
	}

	var message string
	switch strings.TrimSpace(command.Details.Arguments[0]) {
	case gitCloneSubcommandNameConstant:
		message = formatter.describeGitCloneMessage(command, result, failure, stage)
	case gitPushSubcommandNameConstant:
		message = formatter.describeGitPushMessage(command, result, failure, stage)
	default:
		message = formatter.buildGenericMessage(command, result, failure, stage)
	}
	return formatter.sanitize(message)
}

func (formatter CommandMessageFormatter) describeGitCloneMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	positional := formatter.positionalArguments(command.Details.Arguments[1:])
	source := formatter.ensureValue(formatter.argumentAtIndex(positional, 0))
	destination := formatter.argumentAtIndex(positional, 1)
	if len(strings.TrimSpace(destination)) == 0 {
		destination = formatter.describeWorkingDirectory(command)
	}

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitCloneStartTemplateConstant, source, destination)
	case messageStageSuccess:
		return fmt.Sprintf(gitCloneSuccessTemplateConstant, source, destination)
	case messageStageFailure:
		return fmt.Sprintf(gitCloneFailureTemplateConstant, source, destination, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitCloneExecutionFailureTemplateConstant, source, destination, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) describeGitPushMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	positional := formatter.positionalArguments(command.Details.Arguments[1:])
	remote := formatter.ensureValue(formatter.argumentAtIndex(positional, 0))
	references := fallbackUnknownValueLabelConstant
	if len(positional) > 1 {
		references = strings.Join(positional[1:], ", ")
	}
	workingDirectory := formatter.describeWorkingDirectory(command)

	switch stage {
	case messageStageStart:
		return fmt.Sprintf(gitPushStartTemplateConstant, references, remote, workingDirectory)
	case messageStageSuccess:
		return fmt.Sprintf(gitPushSuccessTemplateConstant, references, remote, workingDirectory)
	case messageStageFailure:
		return fmt.Sprintf(gitPushFailureTemplateConstant, references, remote, workingDirectory, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(gitPushExecutionFailureTemplateConstant, references, remote, workingDirectory, formatter.describeFailure(failure))
	default:
		return formatter.buildGenericMessage(command, result, failure, stage)
	}
}

func (formatter CommandMessageFormatter) buildGenericMessage(command ShellCommand, result ExecutionResult, failure error, stage messageStage) string {
	commandLabel := formatter.formatCommandLabel(command)
	switch stage {
	case messageStageStart:
		return fmt.Sprintf(genericStartTemplateConstant, commandLabel)
	case messageStageSuccess:
		return fmt.Sprintf(genericSuccessTemplateConstant, commandLabel)
	case messageStageFailure:
		return fmt.Sprintf(genericFailureTemplateConstant, commandLabel, result.ExitCode, formatter.formatStandardErrorSuffix(result.StandardError))
	case messageStageExecutionFailure:
		return fmt.Sprintf(genericExecutionFailureTemplateConstant, commandLabel, formatter.describeFailure(failure))
	default:
		return emptyStringConstant
	}
}

// positionalArguments drops flags and the values of flags that take one.
func (formatter CommandMessageFormatter) positionalArguments(arguments []string) []string {
	positional := make([]string, 0, len(arguments))
	for argumentIndex := 0; argumentIndex < len(arguments); argumentIndex++ {
		argument := strings.TrimSpace(arguments[argumentIndex])
		if argument == gitBranchFlagConstant {
			argumentIndex++
			continue
		}
		if strings.HasPrefix(argument, flagPrefixConstant) {
			continue
		}
		positional = append(positional, argument)
	}
	return positional
}

func (formatter CommandMessageFormatter) formatCommandLabel(command ShellCommand) string {
	commandLabel := string(command.Name)
	if len(command.Details.Arguments) > 0 {
		commandLabel = fmt.Sprintf("%s %s", commandLabel, strings.Join(command.Details.Arguments, commandArgumentsJoinSeparatorConstant))
	}
	return fmt.Sprintf(commandLabelTemplateConstant, commandLabel, formatter.formatWorkingDirectorySuffix(command))
}

func (formatter CommandMessageFormatter) formatWorkingDirectorySuffix(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(workingDirectorySuffixTemplateConstant, trimmedWorkingDirectory)
}

func (formatter CommandMessageFormatter) formatStandardErrorSuffix(standardError string) string {
	trimmedStandardError := strings.TrimSpace(standardError)
	if len(trimmedStandardError) == 0 {
		return emptyStringConstant
	}
	return fmt.Sprintf(standardErrorSuffixTemplateConstant, trimmedStandardError)
}

func (formatter CommandMessageFormatter) describeWorkingDirectory(command ShellCommand) string {
	trimmedWorkingDirectory := strings.TrimSpace(command.Details.WorkingDirectory)
	if len(trimmedWorkingDirectory) == 0 {
		return defaultWorkingDirectoryLabelConstant
	}
	return trimmedWorkingDirectory
}

func (formatter CommandMessageFormatter) describeFailure(failure error) string {
	if failure == nil {
		return unknownFailureMessageConstant
	}
	return failure.Error()
}

func (formatter CommandMessageFormatter) argumentAtIndex(arguments []string, index int) string {
	if index >= 0 && index < len(arguments) {
		return arguments[index]
	}
	return emptyStringConstant
}

func (formatter CommandMessageFormatter) ensureValue(value string) string {
	trimmed := strings.TrimSpace(value)
	if len(trimmed) == 0 {
		return fallbackUnknownValueLabelConstant
	}
	return trimmed
}

func (formatter CommandMessageFormatter) sanitize(message string) string {
	return credentials.Sanitize(message, formatter.SecretTokens...)
}
