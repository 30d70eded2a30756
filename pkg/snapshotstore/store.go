package snapshotstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"time"

	"github.com/dukex/promion/pkg/fingerprint"
	"github.com/dukex/promion/pkg/gitrepo"
	"github.com/dukex/promion/pkg/models"
	"github.com/google/uuid"
)

// Store owns the snapshot and pointer file tree:
//
//	<env>/current.json
//	<env>/snapshots/<id>/manifest.json
//	<env>/snapshots/<id>/workflows/<key>.json
//
// A snapshot always lives under the folder of the environment it is deployed
// to, never the source ("target-ownership model"). That keeps pointer
// validation local to one folder.
type Store struct {
	repo   gitrepo.Repository
	guard  *fingerprint.Service
	logger *slog.Logger
}

// CreateSnapshotRequest carries everything needed to capture a snapshot.
type CreateSnapshotRequest struct {
	TargetEnv        string
	Workflows        map[string]map[string]any // workflow key -> raw definition
	Kind             models.SnapshotKind
	SourceEnv        string
	SourceSnapshotID string
	CreatedBy        string
	Reason           string
}

// CreateSnapshotResult reports the committed snapshot.
type CreateSnapshotResult struct {
	SnapshotID string
	CommitSHA  string
	Manifest   *models.SnapshotManifest
}

// NewStore creates a snapshot store on top of a repository.
func NewStore(repo gitrepo.Repository, logger *slog.Logger) *Store {
	return &Store{
		repo:   repo,
		logger: logger.With("module", "snapshotstore"),
	}
}

// WithGuard routes manifest hashing through the collision-guarded
// fingerprint service instead of plain hashing.
func (s *Store) WithGuard(guard *fingerprint.Service) *Store {
	s.guard = guard

	return s
}

// workflowHash computes the content hash recorded in the manifest for one
// workflow.
func (s *Store) workflowHash(ctx context.Context, key string, raw map[string]any) (string, error) {
	if s.guard == nil {
		return fingerprint.HashRaw(raw)
	}

	result, err := s.guard.HashWithGuard(ctx, raw, key)
	if err != nil {
		return "", err
	}

	return result.Digest, nil
}

// CreateSnapshot writes a new immutable snapshot under the target
// environment's folder: manifest first, then one file per workflow. A write
// to an existing snapshot id fails with ErrSnapshotAlreadyExists. If a
// workflow write fails mid-sequence the partial snapshot is left in place
// and the error surfaced; callers treat creation as all-or-nothing by
// checking the returned error before deploying.
func (s *Store) CreateSnapshot(ctx context.Context, req CreateSnapshotRequest) (*CreateSnapshotResult, error) {
	snapshotID, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate snapshot id: %w", err)
	}

	return s.createSnapshotWithID(ctx, snapshotID.String(), req)
}

func (s *Store) createSnapshotWithID(ctx context.Context, snapshotID string, req CreateSnapshotRequest) (*CreateSnapshotResult, error) {
	manifestPath := s.manifestPath(req.TargetEnv, snapshotID)

	exists, err := s.repo.FileExists(ctx, manifestPath)
	if err != nil {
		return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID, Err: err}
	}

	if exists {
		return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID, Err: ErrSnapshotAlreadyExists}
	}

	hashes := make(map[string]string, len(req.Workflows))

	for key, raw := range req.Workflows {
		hash, err := s.workflowHash(ctx, key, raw)
		if err != nil {
			return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID, Err: err}
		}

		hashes[key] = hash
	}

	manifest := &models.SnapshotManifest{
		SnapshotID:       snapshotID,
		Kind:             req.Kind,
		TargetEnv:        req.TargetEnv,
		SourceEnv:        req.SourceEnv,
		SourceSnapshotID: req.SourceSnapshotID,
		CreatedAt:        time.Now().UTC(),
		CreatedBy:        req.CreatedBy,
		Reason:           req.Reason,
		Workflows:        hashes,
		WorkflowsCount:   len(req.Workflows),
		OverallHash:      fingerprint.OverallHash(hashes),
	}

	manifestContent, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to serialize manifest: %w", err)
	}

	commitSHA, err := s.repo.CreateFile(ctx, manifestPath, manifestContent,
		fmt.Sprintf("snapshot %s: manifest (%s)", snapshotID, req.Kind))
	if err != nil {
		if gitrepo.IsFileAlreadyExists(err) {
			return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID, Err: ErrSnapshotAlreadyExists}
		}

		return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID, Err: err}
	}

	// Deterministic write order keeps partial failures attributable.
	keys := make([]string, 0, len(req.Workflows))
	for key := range req.Workflows {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	for _, key := range keys {
		content, err := json.MarshalIndent(req.Workflows[key], "", "  ")
		if err != nil {
			return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID,
				Err: fmt.Errorf("failed to serialize workflow %s: %w", key, err)}
		}

		commitSHA, err = s.repo.CreateFile(ctx, s.workflowPath(req.TargetEnv, snapshotID, key), content,
			fmt.Sprintf("snapshot %s: workflow %s", snapshotID, key))
		if err != nil {
			return nil, &SnapshotError{Op: "CreateSnapshot", Env: req.TargetEnv, SnapshotID: snapshotID,
				Err: fmt.Errorf("failed to write workflow %s: %w", key, err)}
		}
	}

	s.logger.InfoContext(ctx, "Snapshot created",
		"env", req.TargetEnv,
		"snapshot_id", snapshotID,
		"kind", req.Kind,
		"workflows", len(req.Workflows),
	)

	return &CreateSnapshotResult{
		SnapshotID: snapshotID,
		CommitSHA:  commitSHA,
		Manifest:   manifest,
	}, nil
}

// GetSnapshotContent loads a snapshot's manifest and workflow files.
func (s *Store) GetSnapshotContent(ctx context.Context, env, snapshotID string) (*models.SnapshotManifest, map[string]map[string]any, error) {
	manifest, err := s.getManifest(ctx, env, snapshotID)
	if err != nil {
		return nil, nil, err
	}

	workflows := make(map[string]map[string]any, len(manifest.Workflows))

	for key := range manifest.Workflows {
		content, err := s.repo.ReadFile(ctx, s.workflowPath(env, snapshotID, key))
		if err != nil {
			return nil, nil, &SnapshotError{Op: "GetSnapshotContent", Env: env, SnapshotID: snapshotID,
				Err: fmt.Errorf("failed to read workflow %s: %w", key, err)}
		}

		var raw map[string]any
		if err := json.Unmarshal(content, &raw); err != nil {
			return nil, nil, &SnapshotError{Op: "GetSnapshotContent", Env: env, SnapshotID: snapshotID,
				Err: fmt.Errorf("failed to decode workflow %s: %w", key, err)}
		}

		workflows[key] = raw
	}

	return manifest, workflows, nil
}

// GetCurrentSnapshotID returns the pointer target for env, or an empty
// string for a new environment that has never been promoted to.
func (s *Store) GetCurrentSnapshotID(ctx context.Context, env string) (string, error) {
	pointer, err := s.GetEnvPointer(ctx, env)
	if err != nil {
		if IsPointerNotFound(err) {
			return "", nil
		}

		return "", err
	}

	return pointer.CurrentSnapshotID, nil
}

// GetEnvPointer loads current.json for env.
func (s *Store) GetEnvPointer(ctx context.Context, env string) (*models.EnvironmentPointer, error) {
	content, err := s.repo.ReadFile(ctx, s.pointerPath(env))
	if err != nil {
		if gitrepo.IsFileNotFound(err) {
			return nil, &SnapshotError{Op: "GetEnvPointer", Env: env, Err: ErrPointerNotFound}
		}

		return nil, &SnapshotError{Op: "GetEnvPointer", Env: env, Err: err}
	}

	var pointer models.EnvironmentPointer
	if err := json.Unmarshal(content, &pointer); err != nil {
		return nil, &SnapshotError{Op: "GetEnvPointer", Env: env, Err: fmt.Errorf("failed to decode pointer: %w", err)}
	}

	return &pointer, nil
}

// UpdateEnvPointer moves current.json to the given snapshot after verifying
// the snapshot exists under this environment's own folder. This is the only
// write allowed to touch current.json.
func (s *Store) UpdateEnvPointer(ctx context.Context, env, snapshotID, commitSHA, updatedBy string) (string, error) {
	exists, err := s.repo.FileExists(ctx, s.manifestPath(env, snapshotID))
	if err != nil {
		return "", &SnapshotError{Op: "UpdateEnvPointer", Env: env, SnapshotID: snapshotID, Err: err}
	}

	if !exists {
		return "", &SnapshotError{Op: "UpdateEnvPointer", Env: env, SnapshotID: snapshotID, Err: ErrPointerTargetInvalid}
	}

	pointer := models.EnvironmentPointer{
		Env:                   env,
		CurrentSnapshotID:     snapshotID,
		CurrentSnapshotCommit: commitSHA,
		UpdatedAt:             time.Now().UTC(),
		UpdatedBy:             updatedBy,
	}

	content, err := json.MarshalIndent(pointer, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to serialize pointer: %w", err)
	}

	pointerCommit, err := s.repo.WriteFile(ctx, s.pointerPath(env), content,
		fmt.Sprintf("point %s at snapshot %s", env, snapshotID))
	if err != nil {
		return "", &SnapshotError{Op: "UpdateEnvPointer", Env: env, SnapshotID: snapshotID, Err: err}
	}

	s.logger.InfoContext(ctx, "Environment pointer updated",
		"env", env,
		"snapshot_id", snapshotID,
		"updated_by", updatedBy,
	)

	return pointerCommit, nil
}

// ListSnapshots returns snapshot summaries for env, newest first.
func (s *Store) ListSnapshots(ctx context.Context, env string) ([]models.SnapshotSummary, error) {
	ids, err := s.repo.ListDir(ctx, path.Join(env, "snapshots"))
	if err != nil {
		return nil, &SnapshotError{Op: "ListSnapshots", Env: env, Err: err}
	}

	summaries := make([]models.SnapshotSummary, 0, len(ids))

	for _, id := range ids {
		manifest, err := s.getManifest(ctx, env, id)
		if err != nil {
			s.logger.WarnContext(ctx, "Skipping unreadable snapshot", "env", env, "snapshot_id", id, "error", err)

			continue
		}

		summaries = append(summaries, models.SnapshotSummary{
			SnapshotID:     manifest.SnapshotID,
			Kind:           manifest.Kind,
			CreatedAt:      manifest.CreatedAt,
			CreatedBy:      manifest.CreatedBy,
			Reason:         manifest.Reason,
			WorkflowsCount: manifest.WorkflowsCount,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})

	return summaries, nil
}

// CopySnapshotToEnv re-wraps a source snapshot's content under the target
// environment's folder with a new id, preserving provenance fields. Used by
// the staging-to-production pointer-copy flow.
func (s *Store) CopySnapshotToEnv(ctx context.Context, sourceEnv, sourceSnapshotID, targetEnv string, kind models.SnapshotKind, createdBy, reason string) (*CreateSnapshotResult, error) {
	_, workflows, err := s.GetSnapshotContent(ctx, sourceEnv, sourceSnapshotID)
	if err != nil {
		return nil, err
	}

	if len(workflows) == 0 {
		return nil, &SnapshotError{Op: "CopySnapshotToEnv", Env: sourceEnv, SnapshotID: sourceSnapshotID, Err: ErrSnapshotEmpty}
	}

	return s.CreateSnapshot(ctx, CreateSnapshotRequest{
		TargetEnv:        targetEnv,
		Workflows:        workflows,
		Kind:             kind,
		SourceEnv:        sourceEnv,
		SourceSnapshotID: sourceSnapshotID,
		CreatedBy:        createdBy,
		Reason:           reason,
	})
}

func (s *Store) getManifest(ctx context.Context, env, snapshotID string) (*models.SnapshotManifest, error) {
	content, err := s.repo.ReadFile(ctx, s.manifestPath(env, snapshotID))
	if err != nil {
		if gitrepo.IsFileNotFound(err) {
			return nil, &SnapshotError{Op: "GetSnapshot", Env: env, SnapshotID: snapshotID, Err: ErrSnapshotNotFound}
		}

		return nil, &SnapshotError{Op: "GetSnapshot", Env: env, SnapshotID: snapshotID, Err: err}
	}

	var manifest models.SnapshotManifest
	if err := json.Unmarshal(content, &manifest); err != nil {
		return nil, &SnapshotError{Op: "GetSnapshot", Env: env, SnapshotID: snapshotID,
			Err: fmt.Errorf("failed to decode manifest: %w", err)}
	}

	return &manifest, nil
}

func (s *Store) pointerPath(env string) string {
	return path.Join(env, "current.json")
}

func (s *Store) manifestPath(env, snapshotID string) string {
	return path.Join(env, "snapshots", snapshotID, "manifest.json")
}

func (s *Store) workflowPath(env, snapshotID, key string) string {
	return path.Join(env, "snapshots", snapshotID, "workflows", key+".json")
}

// IsPointerNotFound checks if an error indicates a missing pointer, i.e. an
// environment that has never been onboarded.
func IsPointerNotFound(err error) bool {
	return errors.Is(err, ErrPointerNotFound)
}
