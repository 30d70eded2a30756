// Package gitrepo defines the capability interface the promotion core uses
// to talk to a version-controlled file tree. The hosting provider's REST
// mechanics live behind this interface.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
)

// Standard repository error types that all implementations should use.
var (
	// ErrFileNotFound indicates the requested path does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrFileAlreadyExists indicates an immutable-create hit an existing path.
	ErrFileAlreadyExists = errors.New("file already exists")

	// ErrRefConflict indicates a ref update lost a race against another writer.
	ErrRefConflict = errors.New("ref update conflict")
)

// Repository is the version-controlled file tree the snapshot store writes
// to. Every write produces a commit identified by its sha. The hosting
// provider serializes commits per branch.
type Repository interface {
	// ReadFile returns the content at path, or ErrFileNotFound.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or overwrites the file at path and returns the
	// resulting commit sha.
	WriteFile(ctx context.Context, path string, content []byte, message string) (string, error)

	// CreateFile writes the file at path only if it does not already exist,
	// failing with ErrFileAlreadyExists otherwise. This is the primitive the
	// snapshot immutability guarantee is built on.
	CreateFile(ctx context.Context, path string, content []byte, message string) (string, error)

	// FileExists reports whether a file exists at path.
	FileExists(ctx context.Context, path string) (bool, error)

	// ListDir returns the entry names directly under path. A missing
	// directory returns an empty list, not an error.
	ListDir(ctx context.Context, path string) ([]string, error)

	// GetRef returns the current head commit sha of the tracked branch, or
	// an empty string for a repository with no commits yet.
	GetRef(ctx context.Context) (string, error)

	// UpdateRef moves the tracked branch head to sha, failing with
	// ErrRefConflict when expectedSHA no longer matches the current head.
	UpdateRef(ctx context.Context, sha, expectedSHA string) error
}

// RepositoryError wraps repository errors with operation context.
type RepositoryError struct {
	Op   string
	Path string
	Err  error
}

func (e *RepositoryError) Error() string {
	return fmt.Sprintf("%s failed for %s: %v", e.Op, e.Path, e.Err)
}

func (e *RepositoryError) Unwrap() error {
	return e.Err
}

func (e *RepositoryError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsFileNotFound checks if an error indicates a missing file.
func IsFileNotFound(err error) bool {
	return errors.Is(err, ErrFileNotFound)
}

// IsFileAlreadyExists checks if an error indicates an immutable-create
// violation.
func IsFileAlreadyExists(err error) bool {
	return errors.Is(err, ErrFileAlreadyExists)
}
