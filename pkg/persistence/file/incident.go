package file

import (
	"context"
	"os"
	"sort"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

const incidentsDir = "incidents"

// IncidentRepository stores drift incidents as JSON files.
type IncidentRepository struct {
	p *Persistence
}

func (r *IncidentRepository) Save(_ context.Context, incident *models.DriftIncident) error {
	err := r.p.writeJSON(incident, incidentsDir, incident.ID)
	if err != nil {
		return persistence.NewRecordError("Save", incident.ID, err)
	}

	return nil
}

func (r *IncidentRepository) GetByID(_ context.Context, id string) (*models.DriftIncident, error) {
	var incident models.DriftIncident

	err := r.p.readJSON(&incident, incidentsDir, id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRecordError("GetByID", id, persistence.ErrIncidentNotFound)
		}

		return nil, persistence.NewRecordError("GetByID", id, err)
	}

	return &incident, nil
}

func (r *IncidentRepository) ActiveByEnvironment(_ context.Context, environmentID string) ([]*models.DriftIncident, error) {
	ids, err := r.p.listIDs(incidentsDir)
	if err != nil {
		return nil, err
	}

	incidents := make([]*models.DriftIncident, 0)

	for _, id := range ids {
		var incident models.DriftIncident

		err := r.p.readJSON(&incident, incidentsDir, id)
		if err != nil {
			continue
		}

		if incident.EnvironmentID == environmentID && incident.Active() {
			incidents = append(incidents, &incident)
		}
	}

	sort.Slice(incidents, func(i, j int) bool {
		return incidents[i].DetectedAt.After(incidents[j].DetectedAt)
	})

	return incidents, nil
}

func (r *IncidentRepository) Delete(_ context.Context, id string) error {
	return r.p.remove(incidentsDir, id)
}
