package repository

import (
	"context"

	"stratix/models"
	"stratix/progress"

	"gorm.io/gorm"
)

// ProgressRepository is the GORM implementation of progress.Store.
type ProgressRepository struct {
	db *gorm.DB
}

func NewProgressRepository(db *gorm.DB) *ProgressRepository {
	return &ProgressRepository{db: db}
}

func (r *ProgressRepository) GetInitiative(ctx context.Context, tenantID, initiativeID int) (*models.Initiative, error) {
	var init models.Initiative
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, initiativeID).
		First(&init).Error
	if err != nil {
		return nil, err
	}
	return &init, nil
}

func (r *ProgressRepository) SaveInitiative(ctx context.Context, init *models.Initiative) error {
	return r.db.WithContext(ctx).Save(init).Error
}

func (r *ProgressRepository) GetSubtask(ctx context.Context, tenantID, initiativeID, subtaskID int) (*models.Subtask, error) {
	var sub models.Subtask
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND initiative_id = ? AND id = ?", tenantID, initiativeID, subtaskID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *ProgressRepository) ListSubtasks(ctx context.Context, tenantID, initiativeID int) ([]models.Subtask, error) {
	var subtasks []models.Subtask
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND initiative_id = ?", tenantID, initiativeID).
		Order("sort_order ASC, id ASC").
		Find(&subtasks).Error
	if err != nil {
		return nil, err
	}
	return subtasks, nil
}

func (r *ProgressRepository) SaveSubtask(ctx context.Context, s *models.Subtask) error {
	return r.db.WithContext(ctx).Save(s).Error
}

func (r *ProgressRepository) DeleteSubtask(ctx context.Context, tenantID, initiativeID, subtaskID int) error {
	return r.db.WithContext(ctx).
		Where("tenant_id = ? AND initiative_id = ? AND id = ?", tenantID, initiativeID, subtaskID).
		Delete(&models.Subtask{}).Error
}

func (r *ProgressRepository) InTransaction(ctx context.Context, fn func(tx progress.Store) error) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&ProgressRepository{db: tx})
	})
}
