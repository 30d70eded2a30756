package file

import (
	"context"
	"os"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

const mappingsDir = "mappings"

// MappingRepository stores workflow environment mappings as JSON files,
// partitioned per environment.
type MappingRepository struct {
	p *Persistence
}

func (r *MappingRepository) Save(_ context.Context, mapping *models.WorkflowEnvironmentMapping) error {
	err := r.p.writeJSON(mapping, mappingsDir, mapping.EnvironmentID, mapping.RuntimeWorkflowID)
	if err != nil {
		return persistence.NewRecordError("Save", mapping.RuntimeWorkflowID, err)
	}

	return nil
}

func (r *MappingRepository) GetByRuntimeID(_ context.Context, environmentID, runtimeWorkflowID string) (*models.WorkflowEnvironmentMapping, error) {
	var mapping models.WorkflowEnvironmentMapping

	err := r.p.readJSON(&mapping, mappingsDir, environmentID, runtimeWorkflowID)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRecordError("GetByRuntimeID", runtimeWorkflowID, persistence.ErrMappingNotFound)
		}

		return nil, persistence.NewRecordError("GetByRuntimeID", runtimeWorkflowID, err)
	}

	return &mapping, nil
}

func (r *MappingRepository) ListByEnvironment(_ context.Context, environmentID string) ([]*models.WorkflowEnvironmentMapping, error) {
	ids, err := r.p.listIDs(mappingsDir, environmentID)
	if err != nil {
		return nil, err
	}

	mappings := make([]*models.WorkflowEnvironmentMapping, 0, len(ids))

	for _, id := range ids {
		var mapping models.WorkflowEnvironmentMapping

		err := r.p.readJSON(&mapping, mappingsDir, environmentID, id)
		if err != nil {
			continue
		}

		mappings = append(mappings, &mapping)
	}

	return mappings, nil
}

func (r *MappingRepository) Delete(_ context.Context, environmentID, runtimeWorkflowID string) error {
	return r.p.remove(mappingsDir, environmentID, runtimeWorkflowID)
}
