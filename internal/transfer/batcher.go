package transfer

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultBatchSize bounds how many transfers run at once.
	DefaultBatchSize = 20

	chunkStartedMessage    = "starting transfer chunk"
	cloneAbortedMessage    = "clone chunk failed; remaining chunks skipped"
	taskFailedMessage      = "transfer task failed"
	logFieldKindConstant   = "kind"
	logFieldChunkIndex     = "chunk_index"
	logFieldChunkSize      = "chunk_size"
	logFieldRemainingTasks = "remaining_tasks"
	logFieldURLConstant    = "url"
	logFieldExitCode       = "exit_code"
	logFieldLocalPath      = "local_path"
)

// ErrInvalidBatchSize indicates a non-positive batch size.
var ErrInvalidBatchSize = errors.New(batchSizeInvalidMessage)

// BatcherDependencies configures a Batcher.
type BatcherDependencies struct {
	Transport GitTransport
	Logger    *zap.Logger
	Metrics   *Metrics
	BatchSize int
}

// Batcher runs transfer tasks in consecutive chunks of at most BatchSize
// concurrent tasks. A task failure never cancels its siblings.
type Batcher struct {
	transport GitTransport
	logger    *zap.Logger
	metrics   *Metrics
	batchSize int
}

// NewBatcher constructs a Batcher. A zero batch size selects DefaultBatchSize.
func NewBatcher(dependencies BatcherDependencies) (*Batcher, error) {
	if dependencies.Transport == nil {
		return nil, ErrGitTransportNotConfigured
	}
	batchSize := dependencies.BatchSize
	if batchSize == 0 {
		batchSize = DefaultBatchSize
	}
	if batchSize < 0 {
		return nil, ErrInvalidBatchSize
	}
	logger := dependencies.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Batcher{
		transport: dependencies.Transport,
		logger:    logger,
		metrics:   dependencies.Metrics,
		batchSize: batchSize,
	}, nil
}

// BatchSize reports the configured chunk size.
func (batcher *Batcher) BatchSize() int {
	return batcher.batchSize
}

// Clone clones every task. After a chunk containing a failed clone no further
// chunks are started; the returned outcomes then cover only the chunks that
// ran and the error joins every clone failure.
func (batcher *Batcher) Clone(executionContext context.Context, tasks []Task) ([]Outcome, error) {
	outcomes, contextError := batcher.run(executionContext, KindClone, tasks, true)
	if contextError != nil {
		return outcomes, contextError
	}
	return outcomes, JoinFailures(outcomes)
}

// Push pushes every task and reports one outcome per task in input order. The
// error is non-nil only when the context ended before every chunk ran.
func (batcher *Batcher) Push(executionContext context.Context, tasks []Task) ([]Outcome, error) {
	return batcher.run(executionContext, KindPush, tasks, false)
}

func (batcher *Batcher) run(executionContext context.Context, kind Kind, tasks []Task, stopAfterFailingChunk bool) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(tasks))
	for chunkStart, chunkIndex := 0, 0; chunkStart < len(tasks); chunkStart, chunkIndex = chunkStart+batcher.batchSize, chunkIndex+1 {
		if contextError := executionContext.Err(); contextError != nil {
			return outcomes, contextError
		}

		chunkEnd := chunkStart + batcher.batchSize
		if chunkEnd > len(tasks) {
			chunkEnd = len(tasks)
		}
		chunk := tasks[chunkStart:chunkEnd]
		batcher.logger.Debug(chunkStartedMessage,
			zap.String(logFieldKindConstant, string(kind)),
			zap.Int(logFieldChunkIndex, chunkIndex),
			zap.Int(logFieldChunkSize, len(chunk)),
		)
		batcher.metrics.observeChunk(kind)

		chunkOutcomes := batcher.runChunk(executionContext, kind, chunk)
		outcomes = append(outcomes, chunkOutcomes...)

		if stopAfterFailingChunk && JoinFailures(chunkOutcomes) != nil && chunkEnd < len(tasks) {
			batcher.logger.Warn(cloneAbortedMessage,
				zap.Int(logFieldChunkIndex, chunkIndex),
				zap.Int(logFieldRemainingTasks, len(tasks)-chunkEnd),
			)
			break
		}
	}
	return outcomes, nil
}

func (batcher *Batcher) runChunk(executionContext context.Context, kind Kind, chunk []Task) []Outcome {
	chunkOutcomes := make([]Outcome, len(chunk))
	var group errgroup.Group
	group.SetLimit(batcher.batchSize)
	for taskIndex := range chunk {
		group.Go(func() error {
			chunkOutcomes[taskIndex] = batcher.runTask(executionContext, kind, chunk[taskIndex])
			return nil
		})
	}
	_ = group.Wait()
	return chunkOutcomes
}

func (batcher *Batcher) runTask(executionContext context.Context, kind Kind, task Task) Outcome {
	startedAt := time.Now()
	var outcome Outcome
	switch kind {
	case KindClone:
		if transferError := batcher.transport.Clone(executionContext, task); transferError != nil {
			outcome = failed(task, transferError)
		} else {
			outcome = succeeded(task, false)
		}
	default:
		upToDate, transferError := batcher.transport.Push(executionContext, task)
		if transferError != nil {
			outcome = failed(task, transferError)
		} else {
			outcome = succeeded(task, upToDate)
		}
	}
	batcher.metrics.observeTask(kind, outcome, time.Since(startedAt))

	if outcome.Err != nil {
		batcher.logger.Warn(taskFailedMessage,
			zap.String(logFieldKindConstant, string(kind)),
			zap.String(logFieldURLConstant, outcome.Err.URL),
			zap.Int(logFieldExitCode, outcome.Err.ExitCode),
			zap.String(logFieldLocalPath, task.LocalPath),
		)
	}
	return outcome
}
