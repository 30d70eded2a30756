package file

import (
	"context"
	"os"
	"sort"
	"time"

	"github.com/dukex/promion/pkg/persistence"
)

const recordsDir = "records"

// RetentionRepository stores historical records as JSON files under
// records/<kind>/<tenant>/<id>.json.
type RetentionRepository struct {
	p *Persistence
}

func (r *RetentionRepository) Tenants(_ context.Context) ([]string, error) {
	seen := make(map[string]bool)

	for _, kind := range persistence.AllRecordKinds {
		tenants, err := r.p.listDirs(recordsDir, string(kind))
		if err != nil {
			return nil, err
		}

		for _, tenant := range tenants {
			seen[tenant] = true
		}
	}

	tenants := make([]string, 0, len(seen))
	for tenant := range seen {
		tenants = append(tenants, tenant)
	}

	sort.Strings(tenants)

	return tenants, nil
}

func (r *RetentionRepository) CountByTenant(ctx context.Context, kind persistence.RecordKind, tenantID string) (int, error) {
	refs, err := r.load(ctx, kind, tenantID)
	if err != nil {
		return 0, err
	}

	return len(refs), nil
}

func (r *RetentionRepository) ListOlderThan(ctx context.Context, kind persistence.RecordKind, tenantID string, cutoff time.Time, limit int) ([]persistence.RecordRef, error) {
	refs, err := r.load(ctx, kind, tenantID)
	if err != nil {
		return nil, err
	}

	older := make([]persistence.RecordRef, 0)

	for _, ref := range refs {
		if ref.CreatedAt.Before(cutoff) {
			older = append(older, ref)
		}
	}

	sort.Slice(older, func(i, j int) bool {
		return older[i].CreatedAt.Before(older[j].CreatedAt)
	})

	if limit > 0 && len(older) > limit {
		older = older[:limit]
	}

	return older, nil
}

func (r *RetentionRepository) LatestPerEnvironment(ctx context.Context, kind persistence.RecordKind, tenantID string) (map[string]string, error) {
	refs, err := r.load(ctx, kind, tenantID)
	if err != nil {
		return nil, err
	}

	latest := make(map[string]persistence.RecordRef)

	for _, ref := range refs {
		if ref.EnvironmentID == "" {
			continue
		}

		current, ok := latest[ref.EnvironmentID]
		if !ok || ref.CreatedAt.After(current.CreatedAt) {
			latest[ref.EnvironmentID] = ref
		}
	}

	ids := make(map[string]string, len(latest))
	for env, ref := range latest {
		ids[env] = ref.ID
	}

	return ids, nil
}

func (r *RetentionRepository) DeleteBatch(_ context.Context, kind persistence.RecordKind, ids []string) (int, error) {
	deleted := 0

	for _, id := range ids {
		tenants, err := r.p.listDirs(recordsDir, string(kind))
		if err != nil {
			return deleted, err
		}

		for _, tenant := range tenants {
			var ref persistence.RecordRef

			err := r.p.readJSON(&ref, recordsDir, string(kind), tenant, id)
			if err != nil {
				continue
			}

			err = r.p.remove(recordsDir, string(kind), tenant, id)
			if err != nil {
				return deleted, err
			}

			deleted++
		}
	}

	return deleted, nil
}

func (r *RetentionRepository) Insert(_ context.Context, kind persistence.RecordKind, ref persistence.RecordRef) error {
	return r.p.writeJSON(ref, recordsDir, string(kind), ref.TenantID, ref.ID)
}

func (r *RetentionRepository) load(_ context.Context, kind persistence.RecordKind, tenantID string) ([]persistence.RecordRef, error) {
	ids, err := r.p.listIDs(recordsDir, string(kind), tenantID)
	if err != nil {
		return nil, err
	}

	refs := make([]persistence.RecordRef, 0, len(ids))

	for _, id := range ids {
		var ref persistence.RecordRef

		err := r.p.readJSON(&ref, recordsDir, string(kind), tenantID, id)
		if err != nil {
			continue
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

const sweepCheckpointFile = "sweep-checkpoint"

func (r *RetentionRepository) SaveSweepCheckpoint(_ context.Context, checkpoint *persistence.SweepCheckpoint) error {
	return r.p.writeJSON(checkpoint, recordsDir, sweepCheckpointFile)
}

func (r *RetentionRepository) LoadSweepCheckpoint(_ context.Context) (*persistence.SweepCheckpoint, error) {
	var checkpoint persistence.SweepCheckpoint

	err := r.p.readJSON(&checkpoint, recordsDir, sweepCheckpointFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, err
	}

	return &checkpoint, nil
}

func (r *RetentionRepository) ClearSweepCheckpoint(_ context.Context) error {
	return r.p.remove(recordsDir, sweepCheckpointFile)
}
