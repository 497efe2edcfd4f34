package transfer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/temirov/repofleet/internal/credentials"
)

const (
	cloneFailedMessageConstant      = "clone failed"
	pushFailedMessageConstant       = "push failed"
	transferErrorTemplateConstant   = "%s of %s failed with exit code %d%s"
	transferCauseTemplateConstant   = "%s of %s failed: %s"
	standardErrorSuffixTemplate     = ": %s"
	missingCauseDescriptionConstant = "unknown error"
)

// Kind distinguishes clone tasks from push tasks.
type Kind string

// Transfer kinds.
const (
	KindClone Kind = Kind("clone")
	KindPush  Kind = Kind("push")
)

var (
	// ErrCloneFailed matches every TransferError of KindClone.
	ErrCloneFailed = errors.New(cloneFailedMessageConstant)
	// ErrPushFailed matches every TransferError of KindPush.
	ErrPushFailed  = errors.New(pushFailedMessageConstant)
)

// Task is one clone or push. For a clone, RemoteURL is the source and
// LocalPath the destination; for a push, LocalPath is the repository pushed and
// RemoteURL the target. RemoteURL may carry credentials.
type Task struct {
	LocalPath string
	RemoteURL string
	Branch    string
}

// Outcome is the result of one Task. Err is nil exactly when Succeeded is true.
// UpToDate marks a push that had nothing to send.
type Outcome struct {
	Task      Task
	Succeeded bool
	UpToDate  bool
	Err       *TransferError
}

// TransferError describes a failed clone or push. URL and StandardError are
// stored without credentials.
type TransferError struct {
	Kind          Kind
	URL           string
	ExitCode      int
	StandardError string
	Cause         error
}

// NewTransferError builds a TransferError, removing credentials from the
// supplied URL and standard error.
func NewTransferError(kind Kind, remoteURL string, exitCode int, standardError string, cause error) *TransferError {
	return &TransferError{
		Kind:          kind,
		URL:           credentials.StripURLCredentials(remoteURL),
		ExitCode:      exitCode,
		StandardError: strings.TrimSpace(credentials.Sanitize(standardError)),
		Cause:         cause,
	}
}

// Error describes the failure.
func (transferError *TransferError) Error() string {
	if transferError.ExitCode == 0 && len(transferError.StandardError) == 0 {
		description := missingCauseDescriptionConstant
		if transferError.Cause != nil {
			description = credentials.Sanitize(transferError.Cause.Error())
		}
		return fmt.Sprintf(transferCauseTemplateConstant, transferError.Kind, transferError.URL, description)
	}
	suffix := ""
	if len(transferError.StandardError) > 0 {
		suffix = fmt.Sprintf(standardErrorSuffixTemplate, transferError.StandardError)
	}
	return fmt.Sprintf(transferErrorTemplateConstant, transferError.Kind, transferError.URL, transferError.ExitCode, suffix)
}

// Unwrap exposes the underlying failure.
func (transferError *TransferError) Unwrap() error {
	return transferError.Cause
}

// Is matches ErrCloneFailed or ErrPushFailed according to Kind.
func (transferError *TransferError) Is(target error) bool {
	switch transferError.Kind {
	case KindClone:
		return target == ErrCloneFailed
	case KindPush:
		return target == ErrPushFailed
	default:
		return false
	}
}

func succeeded(task Task, upToDate bool) Outcome {
	return Outcome{Task: task, Succeeded: true, UpToDate: upToDate}
}

func failed(task Task, transferError *TransferError) Outcome {
	return Outcome{Task: task, Err: transferError}
}

// FailedURLs lists the credential-free remote URLs of failed outcomes in order.
func FailedURLs(outcomes []Outcome) []string {
	urls := make([]string, 0)
	for _, outcome := range outcomes {
		if outcome.Succeeded {
			continue
		}
		urls = append(urls, credentials.StripURLCredentials(outcome.Task.RemoteURL))
	}
	return urls
}

// JoinFailures aggregates the errors of failed outcomes, or returns nil.
func JoinFailures(outcomes []Outcome) error {
	failures := make([]error, 0)
	for _, outcome := range outcomes {
		if outcome.Err != nil {
			failures = append(failures, outcome.Err)
		}
	}
	return errors.Join(failures...)
}
