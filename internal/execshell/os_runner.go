package execshell

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
)

const (
	environmentAssignmentSeparatorConstant = "="
	gitTerminalPromptVariableConstant      = "GIT_TERMINAL_PROMPT"
	gitTerminalPromptDisabledConstant      = "0"
	gitAskPassVariableConstant             = "GIT_ASKPASS"
	gitAskPassDisabledConstant             = "true"
	localeVariableConstant                 = "LC_ALL"
	neutralLocaleConstant                  = "C"
)

// gitEnvironmentOverrides keep git non-interactive and its messages in English,
// which push outcome classification depends on.
var gitEnvironmentOverrides = map[string]string{
	gitTerminalPromptVariableConstant: gitTerminalPromptDisabledConstant,
	gitAskPassVariableConstant:        gitAskPassDisabledConstant,
	localeVariableConstant:            neutralLocaleConstant,
}

// OSCommandRunner executes commands as operating system processes.
type OSCommandRunner struct {
	baseEnvironment func() []string
}

// NewOSCommandRunner constructs a runner that inherits the process environment.
func NewOSCommandRunner() *OSCommandRunner {
	return &OSCommandRunner{baseEnvironment: os.Environ}
}

// Run executes the command and captures both output streams. A non-zero exit
// status is reported through ExecutionResult.ExitCode rather than as an error.
func (runner *OSCommandRunner) Run(executionContext context.Context, command ShellCommand) (ExecutionResult, error) {
	executable := exec.CommandContext(executionContext, string(command.Name), command.Details.Arguments...)
	executable.Dir = command.Details.WorkingDirectory
	executable.Env = runner.environment(command)

	var standardOutputBuffer bytes.Buffer
	var standardErrorBuffer bytes.Buffer
	executable.Stdout = &standardOutputBuffer
	executable.Stderr = &standardErrorBuffer

	result := ExecutionResult{}
	if runError := executable.Run(); runError != nil {
		var exitError *exec.ExitError
		if !errors.As(runError, &exitError) {
			return ExecutionResult{}, runError
		}
		result.ExitCode = exitError.ExitCode()
	}
	result.StandardOutput = standardOutputBuffer.String()
	result.StandardError = standardErrorBuffer.String()
	return result, nil
}

func (runner *OSCommandRunner) environment(command ShellCommand) []string {
	baseEnvironment := os.Environ
	if runner.baseEnvironment != nil {
		baseEnvironment = runner.baseEnvironment
	}
	merged := append([]string{}, baseEnvironment()...)
	if command.Name == CommandGit {
		for key, value := range gitEnvironmentOverrides {
			merged = append(merged, key+environmentAssignmentSeparatorConstant+value)
		}
	}
	for key, value := range command.Details.EnvironmentVariables {
		merged = append(merged, key+environmentAssignmentSeparatorConstant+value)
	}
	return merged
}
