package service

import (
	"context"
	"iter"
	"strings"
	"time"

	"weekly-planner/internal/model"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/weekday"
)

// WeeklyTaskService manages weekly task templates and expands them
// into dated tasks for the current week.
type WeeklyTaskService struct {
	weeklyRepo *repository.WeeklyTaskRepository
	taskRepo   *repository.TaskRepository
	now        func() time.Time
}

func NewWeeklyTaskService(weeklyRepo *repository.WeeklyTaskRepository, taskRepo *repository.TaskRepository) *WeeklyTaskService {
	return &WeeklyTaskService{
		weeklyRepo: weeklyRepo,
		taskRepo:   taskRepo,
		now:        time.Now,
	}
}

// FromInput assembles a template from raw field inputs. Title, content,
// importance and the owner id are always set; a non-zero existingID is
// copied onto the result so the caller can update in place. When any of
// title, days or taskTime is missing the result is a draft: Days and
// TaskTime stay empty and the template is not actionable. No validation
// of the days string happens here; the caller owns its contents.
func (s *WeeklyTaskService) FromInput(owner model.Owner, title, days, content string, taskTime *time.Time, isImportant bool, existingID uint) model.WeeklyTask {
	task := model.WeeklyTask{
		Title:       title,
		Content:     content,
		IsImportant: isImportant,
		UserID:      owner.OwnerID(),
	}

	if existingID != 0 {
		task.ID = existingID
	}

	if title == "" || days == "" || taskTime == nil {
		return task
	}
	task.Days = days
	task.TaskTime = taskTime.Format("15:04")
	return task
}

// Create inserts a new template. Drafts are rejected with false and no
// write happens.
func (s *WeeklyTaskService) Create(ctx context.Context, task *model.WeeklyTask) (bool, error) {
	if !task.Actionable() {
		return false, nil
	}
	if err := s.weeklyRepo.Create(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}

// Update overwrites the stored template identified by task.ID with the
// incoming field values. Drafts are rejected. The ownership check
// compares the incoming template's owner id against the requester, not
// the stored row's owner; callers are expected to build the template
// through FromInput so the two agree.
func (s *WeeklyTaskService) Update(ctx context.Context, owner model.Owner, task *model.WeeklyTask) (bool, error) {
	if !task.Actionable() {
		return false, nil
	}

	stored, err := s.weeklyRepo.FindByID(ctx, task.ID)
	if err != nil {
		return false, err
	}

	if task.UserID != owner.OwnerID() {
		return false, nil
	}

	stored.Title = task.Title
	stored.Days = task.Days
	stored.Content = task.Content
	stored.IsImportant = task.IsImportant
	stored.TaskTime = task.TaskTime
	if err := s.weeklyRepo.Save(ctx, stored); err != nil {
		return false, err
	}
	return true, nil
}

// ListTemplates returns the user's templates in creation order.
func (s *WeeklyTaskService) ListTemplates(ctx context.Context, user *model.User) ([]model.WeeklyTask, error) {
	return s.weeklyRepo.ListByUser(ctx, user.ID)
}

// Delete removes the template with the given id; false means there was
// nothing to remove.
func (s *WeeklyTaskService) Delete(ctx context.Context, id uint) (bool, error) {
	return s.weeklyRepo.DeleteByID(ctx, id)
}

// Generate expands every template of the user into tasks for the
// current week and yields, per enabled weekday, whether a task was
// actually inserted. A false element means an identical task (same
// date, time and title) already existed and was left untouched; the
// error slot carries store and decode failures. The sequence is lazy
// and finite; ranging over it again re-runs the expansion.
func (s *WeeklyTaskService) Generate(ctx context.Context, user *model.User) iter.Seq2[bool, error] {
	return func(yield func(bool, error) bool) {
		templates, err := s.weeklyRepo.ListByUser(ctx, user.ID)
		if err != nil {
			yield(false, err)
			return
		}

		now := s.now()
		year, week := now.Year(), weekday.WeekNumber(now)

		for _, tpl := range templates {
			if tpl.Days == "" {
				continue
			}
			for _, abbrev := range strings.Split(tpl.Days, ", ") {
				day, err := weekday.Parse(abbrev)
				if err != nil {
					if !yield(false, err) {
						return
					}
					continue
				}
				date := weekday.DateOf(year, week, day, now.Location())
				task := model.Task{
					Title:       tpl.Title,
					Description: tpl.Content,
					IsDone:      false,
					IsImportant: tpl.IsImportant,
					Date:        date,
					Time:        tpl.TaskTime,
					UserID:      user.ID,
				}
				if !yield(s.insertIfAbsent(ctx, &task)) {
					return
				}
			}
		}
	}
}

// insertIfAbsent adds the task unless one with the same owner, time,
// date and title already exists.
func (s *WeeklyTaskService) insertIfAbsent(ctx context.Context, task *model.Task) (bool, error) {
	existing, err := s.taskRepo.FindDuplicate(ctx, task.UserID, task.Time, task.Date, task.Title)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	if err := s.taskRepo.Create(ctx, task); err != nil {
		return false, err
	}
	return true, nil
}
