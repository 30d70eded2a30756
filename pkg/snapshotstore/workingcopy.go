package snapshotstore

import (
	"context"
	"encoding/json"
	"fmt"
	"path"

	"github.com/dukex/promion/pkg/gitrepo"
	"github.com/dukex/promion/pkg/models"
)

// UpdateWorkingCopy writes the canonical (non-snapshot) working copy of one
// workflow under workflows/<gitFolder>/<canonicalID>.json. Unlike snapshots
// the working copy is mutable; every deploy overwrites it.
func (s *Store) UpdateWorkingCopy(ctx context.Context, gitFolder, canonicalID string, definition map[string]any) (string, error) {
	content, err := json.MarshalIndent(definition, "", "  ")
	if err != nil {
		return "", &SnapshotError{Op: "UpdateWorkingCopy", Env: gitFolder,
			Err: fmt.Errorf("failed to serialize workflow %s: %w", canonicalID, err)}
	}

	commitSHA, err := s.repo.WriteFile(ctx, s.workingCopyPath(gitFolder, canonicalID), content,
		fmt.Sprintf("working copy %s in %s", canonicalID, gitFolder))
	if err != nil {
		return "", &SnapshotError{Op: "UpdateWorkingCopy", Env: gitFolder, Err: err}
	}

	return commitSHA, nil
}

// GetWorkingCopy reads the canonical working copy of one workflow, or
// ErrWorkingCopyNotFound.
func (s *Store) GetWorkingCopy(ctx context.Context, gitFolder, canonicalID string) (map[string]any, error) {
	content, err := s.repo.ReadFile(ctx, s.workingCopyPath(gitFolder, canonicalID))
	if err != nil {
		if gitrepo.IsFileNotFound(err) {
			return nil, &SnapshotError{Op: "GetWorkingCopy", Env: gitFolder, Err: ErrWorkingCopyNotFound}
		}

		return nil, &SnapshotError{Op: "GetWorkingCopy", Env: gitFolder, Err: err}
	}

	var definition map[string]any
	if err := json.Unmarshal(content, &definition); err != nil {
		return nil, &SnapshotError{Op: "GetWorkingCopy", Env: gitFolder,
			Err: fmt.Errorf("failed to decode workflow %s: %w", canonicalID, err)}
	}

	return definition, nil
}

// GetEnvMap reads the env-map sidecar of one canonical workflow, or
// ErrEnvMapNotFound.
func (s *Store) GetEnvMap(ctx context.Context, gitFolder, canonicalID string) (*models.EnvMapSidecar, error) {
	content, err := s.repo.ReadFile(ctx, s.envMapPath(gitFolder, canonicalID))
	if err != nil {
		if gitrepo.IsFileNotFound(err) {
			return nil, &SnapshotError{Op: "GetEnvMap", Env: gitFolder, Err: ErrEnvMapNotFound}
		}

		return nil, &SnapshotError{Op: "GetEnvMap", Env: gitFolder, Err: err}
	}

	var sidecar models.EnvMapSidecar
	if err := json.Unmarshal(content, &sidecar); err != nil {
		return nil, &SnapshotError{Op: "GetEnvMap", Env: gitFolder,
			Err: fmt.Errorf("failed to decode env-map for %s: %w", canonicalID, err)}
	}

	return &sidecar, nil
}

// UpsertEnvMapEntry merges one environment's runtime identity into the
// env-map sidecar next to the working copy, creating the sidecar on first
// write. Entries for other environments are preserved.
func (s *Store) UpsertEnvMapEntry(ctx context.Context, gitFolder, canonicalID, workflowName, environmentID string, entry models.EnvMapSidecarEntry) (string, error) {
	sidecar, err := s.GetEnvMap(ctx, gitFolder, canonicalID)
	if err != nil {
		if !IsEnvMapNotFound(err) {
			return "", err
		}

		sidecar = &models.EnvMapSidecar{CanonicalWorkflowID: canonicalID}
	}

	if sidecar.Environments == nil {
		sidecar.Environments = make(map[string]models.EnvMapSidecarEntry)
	}

	sidecar.CanonicalWorkflowID = canonicalID
	if workflowName != "" {
		sidecar.WorkflowName = workflowName
	}

	sidecar.Environments[environmentID] = entry

	content, err := json.MarshalIndent(sidecar, "", "  ")
	if err != nil {
		return "", &SnapshotError{Op: "UpsertEnvMapEntry", Env: gitFolder,
			Err: fmt.Errorf("failed to serialize env-map for %s: %w", canonicalID, err)}
	}

	commitSHA, err := s.repo.WriteFile(ctx, s.envMapPath(gitFolder, canonicalID), content,
		fmt.Sprintf("env-map %s: %s", canonicalID, environmentID))
	if err != nil {
		return "", &SnapshotError{Op: "UpsertEnvMapEntry", Env: gitFolder, Err: err}
	}

	return commitSHA, nil
}

func (s *Store) workingCopyPath(gitFolder, canonicalID string) string {
	return path.Join("workflows", gitFolder, canonicalID+".json")
}

func (s *Store) envMapPath(gitFolder, canonicalID string) string {
	return path.Join("workflows", gitFolder, canonicalID+".env-map.json")
}
