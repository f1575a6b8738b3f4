// pkg/publish/manager.go
package publish

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/cleaner"
	"github.com/David-Botos/retail-bi/pkg/config"
)

const maxWorkers = 8

// Options configures a publish run
type Options struct {
	Schema     string
	Workers    int // 0 picks a count from the CPUs and the job count
	ChunkSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// OptionsFromConfig maps the environment configuration onto Options
func OptionsFromConfig(cfg config.PublishConfig) Options {
	return Options{
		Schema:     cfg.Schema,
		Workers:    cfg.WorkerPoolSize,
		ChunkSize:  cfg.ChunkSize,
		MaxRetries: cfg.RetryAttempts,
		RetryDelay: cfg.RetryDelay,
	}
}

// Manager loads cleaned files into PostgreSQL with a pool of workers
type Manager struct {
	target Target
	opts   Options
	logger *zap.Logger
}

// NewManager creates a new publish manager
func NewManager(target Target, opts Options, logger *zap.Logger) *Manager {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	return &Manager{
		target: target,
		opts:   opts,
		logger: logger.Named("publish"),
	}
}

// Publish loads every cleaned result. Per-job failures are reported in the
// summary; only a schema failure or cancellation returns an error.
func (m *Manager) Publish(ctx context.Context, results []*cleaner.Result) (*Summary, error) {
	summary := NewSummary(m.opts.Schema)

	jobs := make([]Job, 0, len(results))
	for _, res := range results {
		job, err := NewJob(res, m.opts.Schema)
		if err != nil {
			m.logger.Warn("Skipping result", zap.Error(err))
			continue
		}
		jobs = append(jobs, job.WithMaxRetries(m.opts.MaxRetries))
	}
	if len(jobs) == 0 {
		summary.Complete()
		return summary, nil
	}

	if err := m.target.EnsureSchema(ctx, m.opts.Schema); err != nil {
		return nil, fmt.Errorf("failed to ensure schema %s: %w", m.opts.Schema, err)
	}

	workerCount := m.opts.Workers
	if workerCount <= 0 {
		workerCount = calculateWorkerCount(len(jobs))
	}

	m.logger.Info("Starting publish",
		zap.String("schema", m.opts.Schema),
		zap.Int("jobs", len(jobs)),
		zap.Int("workers", workerCount))

	jobQueue := make(chan Job, len(jobs))
	resultQueue := make(chan JobResult, len(jobs))

	var wg sync.WaitGroup
	for i := 0; i < workerCount; i++ {
		worker := NewWorker(i, m.target, m.opts.ChunkSize, m.opts.RetryDelay, m.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker.Start(ctx, jobQueue, resultQueue)
		}()
	}

	for _, job := range jobs {
		jobQueue <- job
	}
	close(jobQueue)

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	for result := range resultQueue {
		summary.AddResult(result)
	}
	summary.Complete()

	m.logger.Info("Publish completed",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.Int64("rows", summary.TotalRows),
		zap.Duration("duration", summary.Duration))

	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// calculateWorkerCount uses 75% of the CPUs, never more workers than jobs
func calculateWorkerCount(jobs int) int {
	n := runtime.NumCPU() * 3 / 4
	n = min(n, jobs, maxWorkers)
	if n < 1 {
		n = 1
	}
	return n
}
