package file

import (
	"context"
	"os"
	"sort"

	"github.com/dukex/promion/pkg/models"
	"github.com/dukex/promion/pkg/persistence"
)

const promotionsDir = "promotions"

// PromotionRepository stores promotion records as JSON files.
type PromotionRepository struct {
	p *Persistence
}

func (r *PromotionRepository) Save(_ context.Context, record *models.PromotionRecord) error {
	err := r.p.writeJSON(record, promotionsDir, record.ID)
	if err != nil {
		return persistence.NewRecordError("Save", record.ID, err)
	}

	return nil
}

func (r *PromotionRepository) GetByID(_ context.Context, id string) (*models.PromotionRecord, error) {
	var record models.PromotionRecord

	err := r.p.readJSON(&record, promotionsDir, id)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewRecordError("GetByID", id, persistence.ErrPromotionNotFound)
		}

		return nil, persistence.NewRecordError("GetByID", id, err)
	}

	return &record, nil
}

func (r *PromotionRepository) ActiveByTenantAndTarget(ctx context.Context, tenantID, targetEnvID string) (*models.PromotionRecord, error) {
	records, err := r.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, record := range records {
		if record.TargetEnvID == targetEnvID && !record.Status.IsTerminal() {
			return record, nil
		}
	}

	return nil, nil
}

func (r *PromotionRepository) ListByTenant(_ context.Context, tenantID string) ([]*models.PromotionRecord, error) {
	ids, err := r.p.listIDs(promotionsDir)
	if err != nil {
		return nil, err
	}

	records := make([]*models.PromotionRecord, 0)

	for _, id := range ids {
		var record models.PromotionRecord

		err := r.p.readJSON(&record, promotionsDir, id)
		if err != nil {
			continue
		}

		if record.TenantID == tenantID {
			records = append(records, &record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt.After(records[j].CreatedAt)
	})

	return records, nil
}

func (r *PromotionRepository) Delete(_ context.Context, id string) error {
	return r.p.remove(promotionsDir, id)
}
