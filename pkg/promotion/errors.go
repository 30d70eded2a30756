package promotion

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dukex/promion/pkg/definition"
)

// Standard orchestration error types.
var (
	// ErrWorkflowNotLinked indicates a selected workflow's mapping is not
	// linked to a canonical identity. Promotion is rejected before any Git
	// write happens.
	ErrWorkflowNotLinked = errors.New("workflow is not linked to a canonical identity")

	// ErrSourceUnonboarded indicates the source environment has no current
	// pointer, so there is nothing to promote from.
	ErrSourceUnonboarded = errors.New("source environment has no current snapshot")

	// ErrNotPendingApproval indicates an approve or reject call on a record
	// that is not waiting for a decision.
	ErrNotPendingApproval = errors.New("promotion is not awaiting approval")

	// ErrInvalidTransition indicates a status move outside the lifecycle
	// table.
	ErrInvalidTransition = errors.New("invalid promotion status transition")

	// ErrNotRollback indicates a rollback operation was attempted on a
	// record created as a forward promotion.
	ErrNotRollback = errors.New("promotion record is not a rollback")
)

// GuardrailError lists the workflows that blocked a promotion because their
// mappings are not linked. It is returned before any snapshot is written.
type GuardrailError struct {
	RuntimeIDs []string
}

func (e *GuardrailError) Error() string {
	return fmt.Sprintf("%d workflow(s) not linked: %s", len(e.RuntimeIDs), strings.Join(e.RuntimeIDs, ", "))
}

func (e *GuardrailError) Unwrap() error {
	return ErrWorkflowNotLinked
}

// ValidationError carries the definition issues that failed promotion
// pre-flight.
type ValidationError struct {
	Issues []definition.Issue
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		keys = append(keys, issue.Key)
	}

	return fmt.Sprintf("%d workflow definition(s) invalid: %s", len(e.Issues), strings.Join(keys, ", "))
}

// IsGuardrailViolation checks if an error indicates an unlinked workflow
// blocked the promotion.
func IsGuardrailViolation(err error) bool {
	return errors.Is(err, ErrWorkflowNotLinked)
}
