// Package snapshotstore owns the immutable snapshot and pointer structure in
// the Git repository.
package snapshotstore

import (
	"errors"
	"fmt"
)

// Standard snapshot store error types.
var (
	// ErrSnapshotAlreadyExists indicates a write targeted an existing
	// snapshot id. Snapshots are immutable; this is always fail-closed.
	ErrSnapshotAlreadyExists = errors.New("snapshot already exists")

	// ErrSnapshotNotFound indicates no manifest exists at the given id.
	ErrSnapshotNotFound = errors.New("snapshot not found")

	// ErrSnapshotEmpty indicates a snapshot holds no workflows, making it
	// unusable as a promotion or rollback source.
	ErrSnapshotEmpty = errors.New("snapshot is empty")

	// ErrPointerTargetInvalid indicates a pointer update referenced a
	// snapshot not owned by the same environment. Always fail-closed.
	ErrPointerTargetInvalid = errors.New("pointer target invalid")

	// ErrPointerNotFound indicates an environment has no current pointer
	// yet, i.e. it has never been onboarded.
	ErrPointerNotFound = errors.New("environment pointer not found")

	// ErrWorkingCopyNotFound indicates no canonical working copy exists for
	// a workflow in an environment folder.
	ErrWorkingCopyNotFound = errors.New("working copy not found")

	// ErrEnvMapNotFound indicates no env-map sidecar exists for a workflow
	// in an environment folder.
	ErrEnvMapNotFound = errors.New("env-map not found")
)

// SnapshotError wraps snapshot store errors with operation context.
type SnapshotError struct {
	Op         string
	Env        string
	SnapshotID string
	Err        error
}

func (e *SnapshotError) Error() string {
	if e.SnapshotID != "" {
		return fmt.Sprintf("%s failed for snapshot %s in %s: %v", e.Op, e.SnapshotID, e.Env, e.Err)
	}

	return fmt.Sprintf("%s failed for environment %s: %v", e.Op, e.Env, e.Err)
}

func (e *SnapshotError) Unwrap() error {
	return e.Err
}

func (e *SnapshotError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsSnapshotAlreadyExists checks if an error indicates an immutability
// violation.
func IsSnapshotAlreadyExists(err error) bool {
	return errors.Is(err, ErrSnapshotAlreadyExists)
}

// IsSnapshotNotFound checks if an error indicates a missing snapshot.
func IsSnapshotNotFound(err error) bool {
	return errors.Is(err, ErrSnapshotNotFound)
}

// IsPointerTargetInvalid checks if an error indicates a cross-environment
// pointer violation.
func IsPointerTargetInvalid(err error) bool {
	return errors.Is(err, ErrPointerTargetInvalid)
}

// IsWorkingCopyNotFound checks if an error indicates a missing canonical
// working copy.
func IsWorkingCopyNotFound(err error) bool {
	return errors.Is(err, ErrWorkingCopyNotFound)
}

// IsEnvMapNotFound checks if an error indicates a missing env-map sidecar.
func IsEnvMapNotFound(err error) bool {
	return errors.Is(err, ErrEnvMapNotFound)
}
