// pkg/publish/worker.go
package publish

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Target is the database a worker publishes into
type Target interface {
	EnsureSchema(ctx context.Context, schema string) error
	CreateTableIfNotExists(ctx context.Context, schema, table string, columnDefs []string) error
	BatchInsert(ctx context.Context, schema, table string, columns []string, rows [][]interface{}, batchSize int) (int64, error)
}

// WorkerState represents the current state of a worker
type WorkerState string

const (
	WorkerStateIdle      WorkerState = "idle"
	WorkerStateWorking   WorkerState = "working"
	WorkerStateCompleted WorkerState = "completed"
)

// Worker executes publish jobs
type Worker struct {
	ID         int
	target     Target
	logger     *zap.Logger
	chunkSize  int
	retryDelay time.Duration
	state      WorkerState
	stateLock  sync.RWMutex
}

// NewWorker creates a new worker
func NewWorker(id int, target Target, chunkSize int, retryDelay time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		ID:         id,
		target:     target,
		logger:     logger.With(zap.Int("workerID", id)),
		chunkSize:  chunkSize,
		retryDelay: retryDelay,
		state:      WorkerStateIdle,
	}
}

// GetState returns the current state of the worker
func (w *Worker) GetState() WorkerState {
	w.stateLock.RLock()
	defer w.stateLock.RUnlock()
	return w.state
}

func (w *Worker) setState(state WorkerState) {
	w.stateLock.Lock()
	defer w.stateLock.Unlock()
	w.state = state
}

// Start processes jobs until the channel is closed or ctx is done
func (w *Worker) Start(ctx context.Context, jobs <-chan Job, results chan<- JobResult) {
	defer w.setState(WorkerStateCompleted)

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("Worker stopping due to context cancellation")
			return

		case job, ok := <-jobs:
			if !ok {
				return
			}

			result := w.ProcessJob(ctx, job)

			select {
			case results <- result:
			case <-ctx.Done():
				w.logger.Warn("Context cancelled while sending result",
					zap.String("table", job.FullName()))
				return
			}
		}
	}
}

// ProcessJob converts and loads one dataset. Retryable failures are retried
// only while no chunk of the job has been committed.
func (w *Worker) ProcessJob(ctx context.Context, job Job) JobResult {
	w.setState(WorkerStateWorking)
	defer w.setState(WorkerStateIdle)

	result := NewJobResult(job, w.ID)

	w.logger.Info("Publishing cleaned file",
		zap.String("file", job.SourceFile),
		zap.String("table", job.FullName()))

	rows, err := ConvertRows(job.Dataset, job.Types)
	if err != nil {
		result.AddError(NewErrorRecord(err, CategorizeError(err)).WithTable(job.Schema, job.Table))
		result.Complete(false)
		return *result
	}
	result.RowsRead = int64(len(rows))

	for {
		inserted, err := w.publish(ctx, job, rows)
		result.RowsInserted += inserted
		if err == nil {
			break
		}

		category := CategorizeError(err)
		record := NewErrorRecord(err, category).
			WithTable(job.Schema, job.Table).
			WithRetry(job.RetryCount)

		if category.Retryable() && result.RowsInserted == 0 && job.IsRetryable() {
			job = job.Retry()
			w.logger.Warn("Retrying publish job",
				zap.String("table", job.FullName()),
				zap.String("category", category.String()),
				zap.Int("retry", job.RetryCount),
				zap.Error(err))
			if werr := w.wait(ctx, job.RetryCount); werr != nil {
				result.AddError(NewErrorRecord(werr, CategorizeError(werr)).WithTable(job.Schema, job.Table))
				break
			}
			continue
		}

		result.AddError(record)
		break
	}

	result.RetryCount = job.RetryCount
	result.Complete(!result.HasErrors())

	if result.Success {
		w.logger.Info("Publish job completed",
			zap.String("table", job.FullName()),
			zap.Int64("rows", result.RowsInserted),
			zap.Duration("duration", result.Duration))
	} else {
		w.logger.Warn("Publish job failed",
			zap.String("table", job.FullName()),
			zap.Int("errors", len(result.Errors)),
			zap.Int64("rows_inserted", result.RowsInserted))
	}
	return *result
}

func (w *Worker) publish(ctx context.Context, job Job, rows [][]interface{}) (int64, error) {
	columns := job.Dataset.Columns()
	if err := w.target.CreateTableIfNotExists(ctx, job.Schema, job.Table, ColumnDefinitions(columns, job.Types)); err != nil {
		return 0, fmt.Errorf("create table: %w", err)
	}
	inserted, err := w.target.BatchInsert(ctx, job.Schema, job.Table, columns, rows, w.chunkSize)
	if err != nil {
		return inserted, fmt.Errorf("insert rows: %w", err)
	}
	return inserted, nil
}

// wait sleeps for a linearly growing backoff or until ctx is done
func (w *Worker) wait(ctx context.Context, attempt int) error {
	if w.retryDelay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.retryDelay * time.Duration(attempt))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
