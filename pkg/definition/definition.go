// Package definition validates raw workflow definitions before they are
// snapshotted. A malformed export is rejected as a promotion pre-flight
// failure with a remediation hint, never written to Git.
package definition

import (
	"fmt"

	"github.com/xeipuuv/gojsonschema"
)

// workflowSchema is the shape an exported workflow definition must have
// before it may be snapshotted.
var workflowSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "nodes"},
	"properties": map[string]any{
		"name": map[string]any{
			"type":      "string",
			"minLength": 1,
		},
		"nodes": map[string]any{
			"type": "array",
			"items": map[string]any{
				"type":     "object",
				"required": []any{"name", "type"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string", "minLength": 1},
					"type": map[string]any{"type": "string", "minLength": 1},
				},
			},
		},
		"connections": map[string]any{
			"type": "object",
		},
	},
}

// Issue is one validation failure for one workflow definition.
type Issue struct {
	Key         string `json:"key"`
	Check       string `json:"check"`
	Detail      string `json:"detail"`
	Remediation string `json:"remediation"`
}

// Validator checks workflow definitions against the export schema.
type Validator struct {
	schema gojsonschema.JSONLoader
}

// NewValidator creates a workflow definition validator.
func NewValidator() *Validator {
	return &Validator{schema: gojsonschema.NewGoLoader(workflowSchema)}
}

// Validate checks one definition. It returns the list of issues found, empty
// when the definition is valid. The error return is for schema evaluation
// failures only.
func (v *Validator) Validate(key string, def map[string]any) ([]Issue, error) {
	result, err := gojsonschema.Validate(v.schema, gojsonschema.NewGoLoader(def))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate definition schema: %w", err)
	}

	if result.Valid() {
		return nil, nil
	}

	issues := make([]Issue, 0, len(result.Errors()))

	for _, desc := range result.Errors() {
		issues = append(issues, Issue{
			Key:         key,
			Check:       "definition_schema",
			Detail:      desc.String(),
			Remediation: fmt.Sprintf("Re-export workflow %q from the runtime; its definition is incomplete (%s)", key, desc.Field()),
		})
	}

	return issues, nil
}

// ValidateAll checks a batch of definitions and aggregates issues across all
// of them.
func (v *Validator) ValidateAll(workflows map[string]map[string]any) ([]Issue, error) {
	var issues []Issue

	for key, def := range workflows {
		found, err := v.Validate(key, def)
		if err != nil {
			return nil, err
		}

		issues = append(issues, found...)
	}

	return issues, nil
}
