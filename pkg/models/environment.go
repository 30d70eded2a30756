// Package models defines the core domain models for environment promotion of
// workflow definitions.
package models

import "time"

// EnvironmentClass represents the governance class of an environment.
type EnvironmentClass string

const (
	EnvironmentClassDevelopment EnvironmentClass = "development" // Runtime is authoritative, no drift tracking
	EnvironmentClassStaging     EnvironmentClass = "staging"     // Git is authoritative, no approval gate
	EnvironmentClassProduction  EnvironmentClass = "production"  // Git is authoritative, approval required
)

// Environment represents one workflow runtime targeted by promotions.
type Environment struct {
	ID        string           `json:"id"`
	TenantID  string           `json:"tenant_id"  validate:"required"`
	Name      string           `json:"name"       validate:"required,min=2"`
	Class     EnvironmentClass `json:"class"      validate:"required,oneof=development staging production"`
	Provider  string           `json:"provider"`  // Runtime adapter provider name (e.g. "n8n")
	GitFolder string           `json:"git_folder" validate:"required"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// RequiresApproval reports whether promotions into this environment need a
// human approval before the deploy phase runs.
func (e *Environment) RequiresApproval() bool {
	return e.Class == EnvironmentClassProduction
}

// TracksDrift reports whether Git is the desired state for this environment.
// Development environments treat the runtime as authoritative.
func (e *Environment) TracksDrift() bool {
	return e.Class != EnvironmentClassDevelopment
}
