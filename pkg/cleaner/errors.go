// pkg/cleaner/errors.go
package cleaner

import (
	"errors"
	"fmt"
)

var (
	// ErrDirectoryNotFound means the source directory does not exist
	ErrDirectoryNotFound = errors.New("source directory not found")
	// ErrNoValidFiles means the source directory holds no .csv, .xlsx or .xls file
	ErrNoValidFiles = errors.New("no valid files in source directory")
	// ErrFileNotFound means the requested file is not among the valid files
	ErrFileNotFound = errors.New("file not found or not valid")
	// ErrUnknownFile is an alias of ErrFileNotFound
	ErrUnknownFile = ErrFileNotFound
	// ErrEmptyFile means the loaded dataset has no rows
	ErrEmptyFile = errors.New("file has no data rows")
	// ErrLoadFailure wraps parse errors of a source file
	ErrLoadFailure = errors.New("failed to load file")
	// ErrSaveFailure wraps write errors of the cleaned output
	ErrSaveFailure = errors.New("failed to save cleaned file")

	ErrInvalidTransition = errors.New("invalid pipeline transition")
)

// FileError is a failure of one file's pipeline
type FileError struct {
	File  string
	State State
	Err   error
}

func (e *FileError) Error() string {
	if e.File == "" {
		return fmt.Sprintf("cleaning failed in state %s: %v", e.State, e.Err)
	}
	return fmt.Sprintf("cleaning %s failed in state %s: %v", e.File, e.State, e.Err)
}

func (e *FileError) Unwrap() error {
	return e.Err
}
