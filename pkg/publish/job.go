// pkg/publish/job.go
package publish

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/David-Botos/retail-bi/pkg/cleaner"
	"github.com/David-Botos/retail-bi/pkg/model"
)

// Job loads one cleaned dataset into one table
type Job struct {
	ID         string
	SourceFile string
	Schema     string
	Table      string
	Dataset    *model.Dataset
	Types      map[string]model.ColumnType
	CreatedAt  time.Time
	RetryCount int
	MaxRetries int
}

// NewJob creates a job for a cleaned file. The table is named after the
// source file.
func NewJob(res *cleaner.Result, schema string) (Job, error) {
	if res == nil || res.Cleaned == nil {
		return Job{}, errors.New("result carries no cleaned dataset")
	}
	return Job{
		ID:         uuid.New().String(),
		SourceFile: res.SourceFile,
		Schema:     schema,
		Table:      TableName(res.SourceFile),
		Dataset:    res.Cleaned,
		Types:      res.ColumnTypes,
		CreatedAt:  time.Now(),
		MaxRetries: 3,
	}, nil
}

// WithMaxRetries sets the maximum retry count and returns the modified job
func (j Job) WithMaxRetries(maxRetries int) Job {
	j.MaxRetries = maxRetries
	return j
}

// IsRetryable checks if the job can be retried
func (j Job) IsRetryable() bool {
	return j.RetryCount < j.MaxRetries
}

// Retry increments the retry count and returns the modified job
func (j Job) Retry() Job {
	j.RetryCount++
	return j
}

// FullName returns the fully qualified table name
func (j Job) FullName() string {
	return fmt.Sprintf("%s.%s", j.Schema, j.Table)
}

// JobResult represents the result of a publish job
type JobResult struct {
	JobID        string
	SourceFile   string
	Schema       string
	Table        string
	Success      bool
	RowsRead     int64
	RowsInserted int64
	Errors       []ErrorRecord
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	RetryCount   int
	WorkerID     int
}

// NewJobResult initializes a result for a job
func NewJobResult(job Job, workerID int) *JobResult {
	return &JobResult{
		JobID:      job.ID,
		SourceFile: job.SourceFile,
		Schema:     job.Schema,
		Table:      job.Table,
		StartTime:  time.Now(),
		RetryCount: job.RetryCount,
		WorkerID:   workerID,
	}
}

// Complete marks the job as complete and calculates duration
func (r *JobResult) Complete(success bool) {
	r.EndTime = time.Now()
	r.Duration = r.EndTime.Sub(r.StartTime)
	r.Success = success
}

// AddError adds an error to the result
func (r *JobResult) AddError(err ErrorRecord) {
	r.Errors = append(r.Errors, err)
	r.Success = false
}

// HasErrors checks if any errors occurred
func (r *JobResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// Summary aggregates the results of a publish run
type Summary struct {
	Schema          string
	Results         []JobResult
	Succeeded       int
	Failed          int
	TotalRows       int64
	ErrorCategories map[ErrorCategory]int
	StartTime       time.Time
	EndTime         time.Time
	Duration        time.Duration
	Throughput      float64 // rows/second
}

// NewSummary initializes a new summary
func NewSummary(schema string) *Summary {
	return &Summary{
		Schema:          schema,
		StartTime:       time.Now(),
		ErrorCategories: make(map[ErrorCategory]int),
	}
}

// AddResult incorporates a job result into the summary
func (s *Summary) AddResult(result JobResult) {
	s.Results = append(s.Results, result)
	if result.Success {
		s.Succeeded++
		s.TotalRows += result.RowsInserted
	} else {
		s.Failed++
	}
	for _, e := range result.Errors {
		s.ErrorCategories[e.Category]++
	}
}

// Complete marks the run as complete and calculates throughput
func (s *Summary) Complete() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
	if s.Duration.Seconds() > 0 {
		s.Throughput = float64(s.TotalRows) / s.Duration.Seconds()
	}
}

// SuccessRate returns the percentage of jobs that succeeded
func (s *Summary) SuccessRate() float64 {
	total := s.Succeeded + s.Failed
	if total == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(total) * 100
}
