package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create promotions table
			CREATE TABLE promotions (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				source_env_id VARCHAR(255),
				target_env_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				snapshot_id VARCHAR(255),
				commit_sha VARCHAR(255),
				source_snapshot_id VARCHAR(255),
				workflows_count INT NOT NULL DEFAULT 0,
				created_by VARCHAR(255),
				reason TEXT,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE,
				finished_at TIMESTAMP WITH TIME ZONE,
				approved_at TIMESTAMP WITH TIME ZONE,
				approved_by VARCHAR(255),
				error_message TEXT,
				rollback BOOLEAN NOT NULL DEFAULT FALSE
			);

			CREATE INDEX idx_promotions_tenant_target ON promotions(tenant_id, target_env_id);
			CREATE INDEX idx_promotions_status ON promotions(status);
			CREATE INDEX idx_promotions_created_at ON promotions(created_at);

			-- At most one non-terminal promotion per (tenant, target environment)
			CREATE UNIQUE INDEX idx_promotions_active ON promotions(tenant_id, target_env_id)
				WHERE status NOT IN ('completed', 'failed', 'rejected');

			-- Create drift_incidents table
			CREATE TABLE drift_incidents (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				severity VARCHAR(50),
				affected_workflows JSONB DEFAULT '[]',
				owner_user_id VARCHAR(255),
				detected_at TIMESTAMP WITH TIME ZONE NOT NULL,
				expires_at TIMESTAMP WITH TIME ZONE,
				closed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_drift_incidents_environment ON drift_incidents(environment_id);
			CREATE INDEX idx_drift_incidents_status ON drift_incidents(status);
			CREATE INDEX idx_drift_incidents_detected_at ON drift_incidents(detected_at);

			-- Create workflow_mappings table
			CREATE TABLE workflow_mappings (
				environment_id VARCHAR(255) NOT NULL,
				runtime_workflow_id VARCHAR(255) NOT NULL,
				canonical_id VARCHAR(255),
				workflow_name VARCHAR(255),
				status VARCHAR(50) NOT NULL CHECK (status IN ('untracked', 'linked', 'missing')),
				env_content_hash VARCHAR(255),
				workflow_data JSONB,
				linked_at TIMESTAMP WITH TIME ZONE,
				last_seen_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (environment_id, runtime_workflow_id)
			);

			CREATE INDEX idx_workflow_mappings_canonical ON workflow_mappings(canonical_id);
			CREATE INDEX idx_workflow_mappings_status ON workflow_mappings(status);

			-- Create approvals table
			CREATE TABLE approvals (
				id UUID PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				incident_id VARCHAR(255),
				action_type VARCHAR(50),
				override BOOLEAN NOT NULL DEFAULT FALSE,
				state VARCHAR(50) NOT NULL,
				requested_by VARCHAR(255),
				decided_by VARCHAR(255),
				requested_at TIMESTAMP WITH TIME ZONE NOT NULL,
				decided_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_approvals_incident ON approvals(incident_id);
			CREATE INDEX idx_approvals_state ON approvals(state);

			-- Create retention_records table
			CREATE TABLE retention_records (
				kind VARCHAR(50) NOT NULL,
				id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				environment_id VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (kind, id)
			);

			CREATE INDEX idx_retention_records_tenant ON retention_records(kind, tenant_id);
			CREATE INDEX idx_retention_records_created_at ON retention_records(created_at);
		`,
		2: `
			-- Single-row checkpoint for resumable retention sweeps
			CREATE TABLE retention_sweep_checkpoint (
				id SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
				sweep_id UUID NOT NULL,
				last_tenant VARCHAR(255) NOT NULL,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);
		`,
	}
}
