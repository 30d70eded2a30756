package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dukex/promion/pkg/enforcement"
	"github.com/dukex/promion/pkg/entitlements"
	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/services"
)

// SiteConfig is the static site description the binaries load at startup:
// which environments exist, how to reach their runtimes, and the per-tenant
// drift policies and plans.
type SiteConfig struct {
	Environments []SiteEnvironment              `json:"environments"`
	Policies     map[string]*models.DriftPolicy `json:"drift_policies,omitempty"`
	Tenants      map[string]SiteTenant          `json:"tenants,omitempty"`
}

// SiteEnvironment pairs an environment record with its runtime connection
// config (base_url, api_key for the n8n provider).
type SiteEnvironment struct {
	Environment *models.Environment `json:"environment"`
	Config      map[string]any      `json:"config"`
}

// SiteTenant is a tenant's plan state.
type SiteTenant struct {
	Plan             string          `json:"plan"`
	EnvironmentCount int             `json:"environment_count"`
	Flags            map[string]bool `json:"flags,omitempty"`
}

// LoadSiteConfig reads and parses a site config JSON file.
func LoadSiteConfig(path string) (*SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read site config %s: %w", path, err)
	}

	var config SiteConfig

	err = json.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse site config %s: %w", path, err)
	}

	for _, entry := range config.Environments {
		if entry.Environment == nil || entry.Environment.ID == "" {
			return nil, fmt.Errorf("site config %s: environment entry without an id", path)
		}
	}

	return &config, nil
}

// Directory builds the environment directory the services resolve
// environments through.
func (c *SiteConfig) Directory() services.StaticDirectory {
	directory := make(services.StaticDirectory, len(c.Environments))
	for _, entry := range c.Environments {
		directory[entry.Environment.ID] = &services.Entry{
			Environment: entry.Environment,
			Config:      entry.Config,
		}
	}

	return directory
}

// PolicyLoader builds the drift policy loader.
func (c *SiteConfig) PolicyLoader() enforcement.StaticPolicies {
	policies := make(enforcement.StaticPolicies, len(c.Policies))
	for tenantID, policy := range c.Policies {
		policies[tenantID] = policy
	}

	return policies
}

// EntitlementsGate builds the plan gate from the tenant table.
func (c *SiteConfig) EntitlementsGate() *entitlements.StaticGate {
	tenants := make(map[string]entitlements.Tenant, len(c.Tenants))
	for tenantID, tenant := range c.Tenants {
		tenants[tenantID] = entitlements.Tenant{
			Plan:             entitlements.Plan(tenant.Plan),
			EnvironmentCount: tenant.EnvironmentCount,
			Flags:            tenant.Flags,
		}
	}

	return entitlements.NewStaticGate(tenants)
}
