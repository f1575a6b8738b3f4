// pkg/cleaner/audit.go
package cleaner

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/David-Botos/retail-bi/pkg/model"
)

// AuditTable stores one row per repaired cell
const AuditTable = "cleaned_on_ingress"

// AuditRecorder persists the cells a run repaired
type AuditRecorder interface {
	RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) error
}

// NopAuditRecorder discards operations
type NopAuditRecorder struct{}

func (NopAuditRecorder) RecordCleaningOperations(context.Context, []model.CleaningOperation) error {
	return nil
}

// SQLAuditRecorder writes cleaning operations to a SQL table
type SQLAuditRecorder struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLAuditRecorder creates a recorder and ensures the tracking table exists
func NewSQLAuditRecorder(ctx context.Context, db *sqlx.DB, logger *zap.Logger) (*SQLAuditRecorder, error) {
	if db == nil {
		return nil, errors.New("database connection cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	r := &SQLAuditRecorder{db: db, logger: logger}
	if err := r.setupAuditTable(ctx); err != nil {
		return nil, fmt.Errorf("failed to setup audit table: %w", err)
	}
	return r, nil
}

func (r *SQLAuditRecorder) setupAuditTable(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	idColumn := "id INTEGER PRIMARY KEY AUTOINCREMENT"
	tsType := "TIMESTAMP"
	if sqlx.BindType(r.db.DriverName()) == sqlx.DOLLAR {
		idColumn = "id BIGSERIAL PRIMARY KEY"
		tsType = "TIMESTAMP WITH TIME ZONE"
	}

	createTableSQL := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s,
			run_id TEXT NOT NULL,
			file_name TEXT NOT NULL,
			column_name TEXT NOT NULL,
			column_type TEXT NOT NULL,
			row_index INTEGER NOT NULL,
			original_value TEXT,
			new_value TEXT NOT NULL,
			cleaning_operation TEXT NOT NULL,
			cleaning_reason TEXT NOT NULL,
			cleaned_at %s NOT NULL
		)
	`, AuditTable, idColumn, tsType)

	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create tracking table: %w", err)
	}

	r.logger.Info("Ensured audit table exists", zap.String("table", AuditTable))
	return nil
}

// RecordCleaningOperations inserts all operations in one transaction
func (r *SQLAuditRecorder) RecordCleaningOperations(ctx context.Context, operations []model.CleaningOperation) (err error) {
	if len(operations) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Error("Failed to rollback transaction",
					zap.Error(rbErr),
					zap.NamedError("cause", err))
			}
		}
	}()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(fmt.Sprintf(`
		INSERT INTO %s
		(run_id, file_name, column_name, column_type, row_index, original_value,
		 new_value, cleaning_operation, cleaning_reason, cleaned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, AuditTable)))
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, op := range operations {
		cleanedAt := op.CleanedAt
		if cleanedAt.IsZero() {
			cleanedAt = time.Now().UTC()
		}
		if _, err = stmt.ExecContext(ctx,
			op.RunID,
			op.FileName,
			op.ColumnName,
			op.ColumnType,
			op.RowIndex,
			toNullableString(op.OriginalValue),
			op.NewValue,
			op.CleaningOperation,
			op.CleaningReason,
			cleanedAt,
		); err != nil {
			return fmt.Errorf("failed to insert cleaning operation: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("Recorded cleaning operations", zap.Int("count", len(operations)))
	return nil
}

type auditRow struct {
	RunID             string         `db:"run_id"`
	FileName          string         `db:"file_name"`
	ColumnName        string         `db:"column_name"`
	ColumnType        string         `db:"column_type"`
	RowIndex          int            `db:"row_index"`
	OriginalValue     sql.NullString `db:"original_value"`
	NewValue          string         `db:"new_value"`
	CleaningOperation string         `db:"cleaning_operation"`
	CleaningReason    string         `db:"cleaning_reason"`
}

// Operations returns the recorded operations of a run ordered by insertion
func (r *SQLAuditRecorder) Operations(ctx context.Context, runID string) ([]model.CleaningOperation, error) {
	var rows []auditRow
	query := r.db.Rebind(fmt.Sprintf(`
		SELECT run_id, file_name, column_name, column_type, row_index, original_value,
		       new_value, cleaning_operation, cleaning_reason
		FROM %s WHERE run_id = ? ORDER BY id`, AuditTable))
	if err := r.db.SelectContext(ctx, &rows, query, runID); err != nil {
		return nil, fmt.Errorf("failed to query cleaning operations: %w", err)
	}

	ops := make([]model.CleaningOperation, 0, len(rows))
	for _, row := range rows {
		op := model.CleaningOperation{
			RunID:             row.RunID,
			FileName:          row.FileName,
			ColumnName:        row.ColumnName,
			ColumnType:        row.ColumnType,
			RowIndex:          row.RowIndex,
			NewValue:          row.NewValue,
			CleaningOperation: row.CleaningOperation,
			CleaningReason:    row.CleaningReason,
		}
		if row.OriginalValue.Valid {
			op.OriginalValue = row.OriginalValue.String
		}
		ops = append(ops, op)
	}
	return ops, nil
}

// toNullableString keeps nil as SQL NULL
func toNullableString(v interface{}) *string {
	if model.IsNull(v) {
		return nil
	}
	s := model.Stringify(v)
	return &s
}
