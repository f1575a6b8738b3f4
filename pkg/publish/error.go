// pkg/publish/error.go
package publish

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/jackc/pgconn"
)

// ErrorCategory defines categories of errors during publishing
type ErrorCategory int

const (
	// Error categories with increasing severity
	ErrorCategoryNone ErrorCategory = iota
	ErrorCategoryDataConversion
	ErrorCategoryRowLevel
	ErrorCategoryChunkLevel
	ErrorCategoryTableLevel
	ErrorCategoryConnectionLevel
	ErrorCategoryCritical
)

// String returns a string representation of the error category
func (ec ErrorCategory) String() string {
	switch ec {
	case ErrorCategoryNone:
		return "None"
	case ErrorCategoryDataConversion:
		return "DataConversion"
	case ErrorCategoryRowLevel:
		return "RowLevel"
	case ErrorCategoryChunkLevel:
		return "ChunkLevel"
	case ErrorCategoryTableLevel:
		return "TableLevel"
	case ErrorCategoryConnectionLevel:
		return "ConnectionLevel"
	case ErrorCategoryCritical:
		return "Critical"
	default:
		return fmt.Sprintf("Unknown(%d)", ec)
	}
}

// Retryable reports whether an error of this category may succeed on a
// later attempt
func (ec ErrorCategory) Retryable() bool {
	return ec == ErrorCategoryChunkLevel || ec == ErrorCategoryConnectionLevel
}

// ErrorRecord is one failure while publishing a file
type ErrorRecord struct {
	Category   ErrorCategory
	Table      string
	Err        error
	Message    string
	Timestamp  time.Time
	RetryCount int
}

// NewErrorRecord stamps err with its category and the current time
func NewErrorRecord(err error, category ErrorCategory) ErrorRecord {
	r := ErrorRecord{Category: category, Err: err, Timestamp: time.Now()}
	if err != nil {
		r.Message = err.Error()
	}
	return r
}

// WithTable sets the qualified target table
func (r ErrorRecord) WithTable(schema, table string) ErrorRecord {
	r.Table = schema + "." + table
	return r
}

// WithRetry sets the attempt count
func (r ErrorRecord) WithRetry(n int) ErrorRecord {
	r.RetryCount = n
	return r
}

// String renders the record for the CLI summary. Conversion failures name
// the offending column.
func (r ErrorRecord) String() string {
	parts := []string{"[" + r.Category.String() + "]"}
	if r.Table != "" {
		parts = append(parts, r.Table)
	}
	var conv *ConversionError
	if errors.As(r.Err, &conv) {
		parts = append(parts, fmt.Sprintf("columna %q", conv.Column))
	}
	parts = append(parts, r.Message)
	if r.RetryCount > 0 {
		parts = append(parts, fmt.Sprintf("(intentos: %d)", r.RetryCount+1))
	}
	return strings.Join(parts, " ")
}

// ConversionError reports a cell that does not fit its column type
type ConversionError struct {
	Column string
	Row    int
	Value  interface{}
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("convert column %q row %d (%v): %v", e.Column, e.Row, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// CategorizeError determines the category of an error. PostgreSQL errors are
// classified by SQLSTATE class.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryNone
	}

	var convErr *ConversionError
	if errors.As(err, &convErr) {
		return ErrorCategoryDataConversion
	}
	if errors.Is(err, context.Canceled) {
		return ErrorCategoryCritical
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCategoryConnectionLevel
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "08", "53", "57":
			// connection exception, insufficient resources, operator intervention
			return ErrorCategoryConnectionLevel
		case "40":
			// serialization failure, deadlock
			return ErrorCategoryChunkLevel
		case "22":
			return ErrorCategoryDataConversion
		case "23":
			return ErrorCategoryRowLevel
		case "42":
			return ErrorCategoryTableLevel
		case "XX":
			return ErrorCategoryCritical
		}
		return ErrorCategoryTableLevel
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return ErrorCategoryConnectionLevel
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "bad connection"):
		return ErrorCategoryConnectionLevel
	case strings.Contains(msg, "permission denied"):
		return ErrorCategoryTableLevel
	default:
		return ErrorCategoryChunkLevel
	}
}
