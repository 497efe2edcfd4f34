package transfer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/temirov/repofleet/internal/credentials"
)

const (
	// DefaultPushTries is the number of push attempts per task.
	DefaultPushTries            = 3
	// DefaultRetryInitialInterval is the first delay between push attempts.
	DefaultRetryInitialInterval = time.Second

	remainingFailuresTemplateConstant = "%d pushes still failing"
	retryingPushesMessage             = "retrying failed pushes"
	pushesExhaustedMessage            = "pushes failed after every attempt"
	logFieldFailingCount              = "failing_tasks"
	logFieldNextAttemptDelay          = "next_attempt_in"
	logFieldFailingURLs               = "failing_urls"
	logFieldAttempts                  = "attempts"
)

var (
	// ErrInvalidPushTries indicates a retry controller allowed fewer than one attempt.
	ErrInvalidPushTries             = errors.New(maximumTriesInvalidMessage)
	// ErrPusherNotConfigured indicates a retry controller without a Pusher.
	ErrPusherNotConfigured          = errors.New(pusherMissingMessage)
	// ErrBackOffProviderNotConfigured is returned when a controller is built without a back-off source.
	ErrBackOffProviderNotConfigured = errors.New(backOffProviderMissingMessage)
)

// Pusher pushes a set of tasks and reports one outcome per task.
type Pusher interface {
	Push(executionContext context.Context, tasks []Task) ([]Outcome, error)
}

// BackOffProvider returns a fresh back-off policy for one retry run.
type BackOffProvider func() backoff.BackOff

// ExponentialBackOffProvider returns exponential delays starting at
// initialInterval with no elapsed-time limit.
func ExponentialBackOffProvider(initialInterval time.Duration) BackOffProvider {
	if initialInterval <= 0 {
		initialInterval = DefaultRetryInitialInterval
	}
	return func() backoff.BackOff {
		return backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(initialInterval),
			backoff.WithMaxElapsedTime(0),
		)
	}
}

// PushRetryControllerDependencies configures a PushRetryController.
type PushRetryControllerDependencies struct {
	Pusher          Pusher
	Logger          *zap.Logger
	Metrics         *Metrics
	MaximumTries    int
	BackOffProvider BackOffProvider
}

// PushRetryController re-submits failed pushes until they succeed or the
// attempt budget is spent.
type PushRetryController struct {
	pusher          Pusher
	logger          *zap.Logger
	metrics         *Metrics
	maximumTries    int
	backOffProvider BackOffProvider
}

type remainingFailuresError struct {
	count int
}

func (failuresError remainingFailuresError) Error() string {
	return fmt.Sprintf(remainingFailuresTemplateConstant, failuresError.count)
}

// NewPushRetryController constructs a PushRetryController.
func NewPushRetryController(dependencies PushRetryControllerDependencies) (*PushRetryController, error) {
	if dependencies.Pusher == nil {
		return nil, ErrPusherNotConfigured
	}
	if dependencies.MaximumTries < 1 {
		return nil, ErrInvalidPushTries
	}
	if dependencies.BackOffProvider == nil {
		return nil, ErrBackOffProviderNotConfigured
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PushRetryController{
		pusher:          dependencies.Pusher,
		logger:          logger,
		metrics:         dependencies.Metrics,
		maximumTries:    dependencies.MaximumTries,
		backOffProvider: dependencies.BackOffProvider,
	}, nil
}

// Push pushes tasks, retrying only the ones that failed, at most MaximumTries
// times each. It returns the credential-free URLs still failing after the last
// attempt. The error is non-nil only when the context ends first; the URLs
// then cover every task not yet pushed successfully.
func (controller *PushRetryController) Push(executionContext context.Context, tasks []Task) ([]string, error) {
	pending := append([]Task(nil), tasks...)
	attempts := 0

	operation := func() error {
		if len(pending) == 0 {
			return nil
		}
		attempts++
		outcomes, pushError := controller.pusher.Push(executionContext, pending)
		if pushError != nil {
			return backoff.Permanent(pushError)
		}
		pending = failedTasks(outcomes)
		if len(pending) > 0 {
			return remainingFailuresError{count: len(pending)}
		}
		return nil
	}
	notify := func(_ error, nextAttemptDelay time.Duration) {
		controller.metrics.observeRetry()
		controller.logger.Info(retryingPushesMessage,
			zap.Int(logFieldFailingCount, len(pending)),
			zap.Duration(logFieldNextAttemptDelay, nextAttemptDelay),
		)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(controller.backOffProvider(), uint64(controller.maximumTries-1)), executionContext)
	retryError := backoff.RetryNotify(operation, policy, notify)

	failingURLs := make([]string, 0, len(pending))
	for _, task := range pending {
		failingURLs = append(failingURLs, credentials.StripURLCredentials(task.RemoteURL))
	}

	var failuresError remainingFailuresError
	if retryError != nil && !errors.As(retryError, &failuresError) {
		return failingURLs, retryError
	}
	if len(failingURLs) > 0 {
		controller.logger.Warn(pushesExhaustedMessage,
			zap.Int(logFieldAttempts, attempts),
			zap.Strings(logFieldFailingURLs, failingURLs),
		)
	}
	return failingURLs, nil
}

func failedTasks(outcomes []Outcome) []Task {
	failing := make([]Task, 0)
	for _, outcome := range outcomes {
		if !outcome.Succeeded {
			failing = append(failing, outcome.Task)
		}
	}
	return failing
}
