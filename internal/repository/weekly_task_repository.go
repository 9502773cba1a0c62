package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"weekly-planner/internal/model"
)

// WeeklyTaskRepository handles CRUD for weekly task templates.
type WeeklyTaskRepository struct {
	db *gorm.DB
}

func NewWeeklyTaskRepository(db *gorm.DB) *WeeklyTaskRepository {
	return &WeeklyTaskRepository{db: db}
}

func (r *WeeklyTaskRepository) Create(ctx context.Context, task *model.WeeklyTask) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create weekly task: %w", err)
	}
	return nil
}

func (r *WeeklyTaskRepository) FindByID(ctx context.Context, id uint) (*model.WeeklyTask, error) {
	var task model.WeeklyTask
	if err := r.db.WithContext(ctx).First(&task, id).Error; err != nil {
		return nil, err
	}
	return &task, nil
}

func (r *WeeklyTaskRepository) ListByUser(ctx context.Context, userID uint) ([]model.WeeklyTask, error) {
	var tasks []model.WeeklyTask
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}

func (r *WeeklyTaskRepository) Save(ctx context.Context, task *model.WeeklyTask) error {
	if err := r.db.WithContext(ctx).Save(task).Error; err != nil {
		return fmt.Errorf("save weekly task: %w", err)
	}
	return nil
}

// DeleteByID removes the template with the given id. The first return
// value reports whether a row existed.
func (r *WeeklyTaskRepository) DeleteByID(ctx context.Context, id uint) (bool, error) {
	var task model.WeeklyTask
	err := r.db.WithContext(ctx).First(&task, id).Error
	switch {
	case err == gorm.ErrRecordNotFound:
		return false, nil
	case err != nil:
		return false, fmt.Errorf("find weekly task: %w", err)
	}
	if err := r.db.WithContext(ctx).Delete(&model.WeeklyTask{}, id).Error; err != nil {
		return false, fmt.Errorf("delete weekly task: %w", err)
	}
	return true, nil
}
