package repository

import (
	"context"
	"errors"

	"stratix/importer"
	"stratix/models"

	"gorm.io/gorm"
)

// ImportRepository is the GORM implementation of importer.Store. Title
// matching is done with LOWER() so Postgres does the case folding; every
// query carries the tenant id.
type ImportRepository struct {
	db *gorm.DB
}

func NewImportRepository(db *gorm.DB) *ImportRepository {
	return &ImportRepository{db: db}
}

func (r *ImportRepository) FindAreaByName(ctx context.Context, tenantID int, name string) (*models.Area, error) {
	var area models.Area
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(name) = LOWER(?)", tenantID, name).
		Order("created_at ASC, id ASC").
		First(&area).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &area, nil
}

func (r *ImportRepository) CreateArea(ctx context.Context, area *models.Area) error {
	return r.db.WithContext(ctx).Create(area).Error
}

func (r *ImportRepository) FindObjectivesByTitle(ctx context.Context, tenantID int, areaID *int, title string) ([]models.Objective, error) {
	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(title) = LOWER(?)", tenantID, title)
	if areaID != nil {
		q = q.Where("area_id = ?", *areaID)
	}
	var objectives []models.Objective
	if err := q.Find(&objectives).Error; err != nil {
		return nil, err
	}
	return objectives, nil
}

func (r *ImportRepository) CreateObjective(ctx context.Context, o *models.Objective) error {
	return r.db.WithContext(ctx).Create(o).Error
}

func (r *ImportRepository) UpdateObjective(ctx context.Context, o *models.Objective) error {
	return r.db.WithContext(ctx).Save(o).Error
}

func (r *ImportRepository) FindInitiativesByTitle(ctx context.Context, tenantID int, areaID int, objectiveID *int, title string) ([]models.Initiative, error) {
	q := r.db.WithContext(ctx).
		Where("tenant_id = ? AND LOWER(title) = LOWER(?)", tenantID, title)
	if objectiveID != nil {
		q = q.Where("objective_id = ?", *objectiveID)
	} else {
		q = q.Where("area_id = ?", areaID)
	}
	var initiatives []models.Initiative
	if err := q.Find(&initiatives).Error; err != nil {
		return nil, err
	}
	return initiatives, nil
}

func (r *ImportRepository) CreateInitiative(ctx context.Context, i *models.Initiative) error {
	return r.db.WithContext(ctx).Create(i).Error
}

func (r *ImportRepository) UpdateInitiative(ctx context.Context, i *models.Initiative) error {
	return r.db.WithContext(ctx).Save(i).Error
}

func (r *ImportRepository) FindSubtasksByTitle(ctx context.Context, tenantID int, initiativeID int, title string) ([]models.Subtask, error) {
	var subtasks []models.Subtask
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND initiative_id = ? AND LOWER(title) = LOWER(?)", tenantID, initiativeID, title).
		Find(&subtasks).Error
	if err != nil {
		return nil, err
	}
	return subtasks, nil
}

func (r *ImportRepository) CreateSubtask(ctx context.Context, s *models.Subtask) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *ImportRepository) UpdateSubtask(ctx context.Context, s *models.Subtask) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *ImportRepository) InTransaction(ctx context.Context, fn func(tx importer.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ImportRepository{db: tx})
	})
}
