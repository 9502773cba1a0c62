package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"weekly-planner/internal/model"
)

// TaskRepository handles CRUD for generated tasks.
type TaskRepository struct {
	db *gorm.DB
}

func NewTaskRepository(db *gorm.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(ctx context.Context, task *model.Task) error {
	if err := r.db.WithContext(ctx).Create(task).Error; err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// FindDuplicate looks for a task of the user with the same time, date
// and title. Content and importance are not part of the identity, so
// an otherwise-identical task with edited content still counts as a
// duplicate.
func (r *TaskRepository) FindDuplicate(ctx context.Context, userID uint, timeStr string, date time.Time, title string) (*model.Task, error) {
	var task model.Task
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("time = ?", timeStr).
		Where("date = ?", date).
		Where("title = ?", title).
		First(&task).Error
	switch {
	case err == nil:
		return &task, nil
	case err == gorm.ErrRecordNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("find duplicate task: %w", err)
	}
}

// ListBetween returns the user's tasks with dates in [from, to], ordered
// by date and time.
func (r *TaskRepository) ListBetween(ctx context.Context, userID uint, from, to time.Time) ([]model.Task, error) {
	var tasks []model.Task
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND date >= ? AND date <= ?", userID, from, to).
		Order("date ASC, time ASC").
		Find(&tasks).Error; err != nil {
		return nil, err
	}
	return tasks, nil
}
