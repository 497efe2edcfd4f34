package transfer

import (
	"context"
	"errors"
	"strings"

	"github.com/temirov/repofleet/internal/execshell"
)

const (
	gitCloneSubcommandConstant    = "clone"
	gitPushSubcommandConstant     = "push"
	gitSingleBranchFlagConstant   = "--single-branch"
	gitBranchFlagConstant         = "--branch"
	gitCurrentReferenceConstant   = "HEAD"
	nothingToPushMarkerConstant   = "Everything up-to-date"
	gitExecutorMissingMessage     = "git executor not configured"
	gitTransportMissingMessage    = "git transport not configured"
	batchSizeInvalidMessage       = "batch size must be positive"
	maximumTriesInvalidMessage    = "push tries must be at least one"
	pusherMissingMessage          = "pusher not configured"
	backOffProviderMissingMessage = "back-off provider not configured"
)

var (
	// ErrGitExecutorNotConfigured indicates a transport without an executor.
	ErrGitExecutorNotConfigured  = errors.New(gitExecutorMissingMessage)
	// ErrGitTransportNotConfigured indicates a batcher without a transport.
	ErrGitTransportNotConfigured = errors.New(gitTransportMissingMessage)
)

// GitExecutor runs git commands.
type GitExecutor interface {
	ExecuteGit(executionContext context.Context, details execshell.CommandDetails) (execshell.ExecutionResult, error)
}

// GitTransport performs a single clone or push.
type GitTransport interface {
	Clone(executionContext context.Context, task Task) *TransferError
	Push(executionContext context.Context, task Task) (upToDate bool, transferError *TransferError)
}

// GitCommandTransport implements GitTransport with the git executable.
type GitCommandTransport struct {
	executor GitExecutor
}

// NewGitCommandTransport constructs a GitCommandTransport.
func NewGitCommandTransport(executor GitExecutor) (*GitCommandTransport, error) {
	if executor == nil {
		return nil, ErrGitExecutorNotConfigured
	}
	return &GitCommandTransport{executor: executor}, nil
}

// Clone clones task.RemoteURL into task.LocalPath, restricted to task.Branch when set.
func (transport *GitCommandTransport) Clone(executionContext context.Context, task Task) *TransferError {
	arguments := []string{gitCloneSubcommandConstant}
	if branch := strings.TrimSpace(task.Branch); len(branch) > 0 {
		arguments = append(arguments, gitSingleBranchFlagConstant, gitBranchFlagConstant, branch)
	}
	arguments = append(arguments, task.RemoteURL, task.LocalPath)

	_, executionError := transport.executor.ExecuteGit(executionContext, execshell.CommandDetails{Arguments: arguments})
	if executionError != nil {
		return translateGitError(KindClone, task, executionError)
	}
	return nil
}

// Push pushes task.Branch (or the checked out branch) of task.LocalPath to
// task.RemoteURL. A push that has nothing to send succeeds with upToDate set.
func (transport *GitCommandTransport) Push(executionContext context.Context, task Task) (bool, *TransferError) {
	reference := strings.TrimSpace(task.Branch)
	if len(reference) == 0 {
		reference = gitCurrentReferenceConstant
	}
	details := execshell.CommandDetails{
		Arguments:        []string{gitPushSubcommandConstant, task.RemoteURL, reference},
		WorkingDirectory: task.LocalPath,
	}

	result, executionError := transport.executor.ExecuteGit(executionContext, details)
	if executionError != nil {
		var failedError execshell.CommandFailedError
		if errors.As(executionError, &failedError) && reportsNothingToPush(failedError.Result) {
			return true, nil
		}
		return false, translateGitError(KindPush, task, executionError)
	}
	return reportsNothingToPush(result), nil
}

func reportsNothingToPush(result execshell.ExecutionResult) bool {
	return strings.Contains(result.StandardError, nothingToPushMarkerConstant) || strings.Contains(result.StandardOutput, nothingToPushMarkerConstant)
}

func translateGitError(kind Kind, task Task, executionError error) *TransferError {
	var failedError execshell.CommandFailedError
	if errors.As(executionError, &failedError) {
		return NewTransferError(kind, task.RemoteURL, failedError.Result.ExitCode, failedError.Result.StandardError, executionError)
	}
	return NewTransferError(kind, task.RemoteURL, 0, "", executionError)
}
