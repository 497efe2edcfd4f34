package transfer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func zeroBackOff() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

type failingPusher struct {
	calls int
	err   error
}

func (pusher *failingPusher) Push(context.Context, []Task) ([]Outcome, error) {
	pusher.calls++
	return nil, pusher.err
}

func newRetryController(testInstance *testing.T, transport *scriptedTransport, maximumTries int, logger *zap.Logger, metrics *Metrics) *PushRetryController {
	testInstance.Helper()
	batcher, batcherError := NewBatcher(BatcherDependencies{Transport: transport, Logger: logger, BatchSize: 20})
	require.NoError(testInstance, batcherError)
	controller, controllerError := NewPushRetryController(PushRetryControllerDependencies{
		Pusher:          batcher,
		Logger:          logger,
		Metrics:         metrics,
		MaximumTries:    maximumTries,
		BackOffProvider: zeroBackOff,
	})
	require.NoError(testInstance, controllerError)
	return controller
}

func TestNewPushRetryControllerValidation(testInstance *testing.T) {
	testCases := []struct {
		name         string
		dependencies PushRetryControllerDependencies
		expectError  error
	}{
		{
			name:         "missing_pusher",
			dependencies: PushRetryControllerDependencies{MaximumTries: 1, BackOffProvider: zeroBackOff},
			expectError:  ErrPusherNotConfigured,
		},
		{
			name:         "zero_tries",
			dependencies: PushRetryControllerDependencies{Pusher: &failingPusher{}, BackOffProvider: zeroBackOff},
			expectError:  ErrInvalidPushTries,
		},
		{
			name:         "missing_back_off",
			dependencies: PushRetryControllerDependencies{Pusher: &failingPusher{}, MaximumTries: 2},
			expectError:  ErrBackOffProviderNotConfigured,
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			controller, creationError := NewPushRetryController(testCase.dependencies)
			require.ErrorIs(testInstance, creationError, testCase.expectError)
			require.Nil(testInstance, controller)
		})
	}
}

func TestPushRetryControllerRetriesOnlyFailures(testInstance *testing.T) {
	testCases := []struct {
		name                string
		maximumTries        int
		leadingFailures     int
		expectedAttempts    int
		expectedFailingURLs []string
	}{
		{
			name:                "succeeds_on_last_attempt",
			maximumTries:        3,
			leadingFailures:     2,
			expectedAttempts:    3,
			expectedFailingURLs: []string{},
		},
		{
			name:                "succeeds_on_second_attempt",
			maximumTries:        3,
			leadingFailures:     1,
			expectedAttempts:    2,
			expectedFailingURLs: []string{},
		},
		{
			name:                "exhausts_every_attempt",
			maximumTries:        3,
			leadingFailures:     5,
			expectedAttempts:    3,
			expectedFailingURLs: []string{"https://git.example.test/course/team-01-week-1.git"},
		},
		{
			name:                "single_attempt",
			maximumTries:        1,
			leadingFailures:     1,
			expectedAttempts:    1,
			expectedFailingURLs: []string{"https://git.example.test/course/team-01-week-1.git"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			registry := prometheus.NewRegistry()
			metrics, metricsError := NewMetrics(registry)
			require.NoError(testInstance, metricsError)

			transport := newScriptedTransport(0)
			tasks := buildTasks(3)
			flakyURL := tasks[1].RemoteURL
			transport.failuresByURL[flakyURL] = testCase.leadingFailures

			controller := newRetryController(testInstance, transport, testCase.maximumTries, zap.NewNop(), metrics)
			failingURLs, pushError := controller.Push(context.Background(), tasks)
			require.NoError(testInstance, pushError)

			require.Equal(testInstance, testCase.expectedFailingURLs, failingURLs)
			require.Equal(testInstance, testCase.expectedAttempts, transport.attempts(flakyURL))
			require.Equal(testInstance, 1, transport.attempts(tasks[0].RemoteURL))
			require.Equal(testInstance, 1, transport.attempts(tasks[2].RemoteURL))
			require.Equal(testInstance, float64(testCase.expectedAttempts-1), testutil.ToFloat64(metrics.retries))
		})
	}
}

func TestPushRetryControllerNeverRetriesUpToDatePushes(testInstance *testing.T) {
	transport := newScriptedTransport(0)
	tasks := buildTasks(2)
	transport.upToDateURLs[tasks[0].RemoteURL] = true

	controller := newRetryController(testInstance, transport, 3, zap.NewNop(), nil)
	failingURLs, pushError := controller.Push(context.Background(), tasks)
	require.NoError(testInstance, pushError)
	require.Empty(testInstance, failingURLs)
	require.Equal(testInstance, 1, transport.attempts(tasks[0].RemoteURL))
}

func TestPushRetryControllerLogsWithoutCredentials(testInstance *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	transport := newScriptedTransport(0)
	tasks := buildTasks(1)
	transport.alwaysFailing[tasks[0].RemoteURL] = true

	controller := newRetryController(testInstance, transport, 2, zap.New(core), nil)
	failingURLs, pushError := controller.Push(context.Background(), tasks)
	require.NoError(testInstance, pushError)
	require.Len(testInstance, failingURLs, 1)

	require.Len(testInstance, logs.FilterMessage(retryingPushesMessage).All(), 1)
	exhausted := logs.FilterMessage(pushesExhaustedMessage).All()
	require.Len(testInstance, exhausted, 1)
	require.Equal(testInstance, int64(2), exhausted[0].ContextMap()[logFieldAttempts])
	for _, entry := range logs.All() {
		require.NotContains(testInstance, entry.Message, "secret-token")
		for _, value := range entry.ContextMap() {
			require.NotContains(testInstance, fmt.Sprint(value), "secret-token")
		}
	}
}

func TestPushRetryControllerStopsOnPusherError(testInstance *testing.T) {
	pusherError := errors.New("context ended")
	pusher := &failingPusher{err: pusherError}
	controller, creationError := NewPushRetryController(PushRetryControllerDependencies{
		Pusher:          pusher,
		MaximumTries:    3,
		BackOffProvider: zeroBackOff,
	})
	require.NoError(testInstance, creationError)

	tasks := buildTasks(2)
	failingURLs, pushError := controller.Push(context.Background(), tasks)
	require.ErrorIs(testInstance, pushError, pusherError)
	require.Equal(testInstance, 1, pusher.calls)
	require.Len(testInstance, failingURLs, 2)
}

func TestPushRetryControllerHonoursCancellationDuringBackOff(testInstance *testing.T) {
	transport := newScriptedTransport(0)
	tasks := buildTasks(1)
	transport.alwaysFailing[tasks[0].RemoteURL] = true

	batcher, batcherError := NewBatcher(BatcherDependencies{Transport: transport})
	require.NoError(testInstance, batcherError)
	controller, controllerError := NewPushRetryController(PushRetryControllerDependencies{
		Pusher:          batcher,
		MaximumTries:    5,
		BackOffProvider: func() backoff.BackOff { return backoff.NewConstantBackOff(time.Hour) },
	})
	require.NoError(testInstance, controllerError)

	executionContext, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	failingURLs, pushError := controller.Push(executionContext, tasks)
	require.ErrorIs(testInstance, pushError, context.DeadlineExceeded)
	require.Equal(testInstance, []string{"https://git.example.test/course/team-00-week-1.git"}, failingURLs)
	require.Equal(testInstance, 1, transport.attempts(tasks[0].RemoteURL))
}

func TestExponentialBackOffProviderDefaults(testInstance *testing.T) {
	policy := ExponentialBackOffProvider(0)()
	exponential, isExponential := policy.(*backoff.ExponentialBackOff)
	require.True(testInstance, isExponential)
	require.Equal(testInstance, DefaultRetryInitialInterval, exponential.InitialInterval)
	require.Zero(testInstance, exponential.MaxElapsedTime)
}
