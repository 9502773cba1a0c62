package service

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"weekly-planner/internal/model"
	"weekly-planner/internal/repository"
	"weekly-planner/internal/weekday"
)

// SummaryService builds human-readable overviews of the generated week.
type SummaryService struct {
	taskRepo *repository.TaskRepository
}

func NewSummaryService(taskRepo *repository.TaskRepository) *SummaryService {
	return &SummaryService{taskRepo: taskRepo}
}

// WeekSummary renders the user's tasks for the current week, grouped by
// day, as Telegram HTML.
func (s *SummaryService) WeekSummary(ctx context.Context, user *model.User, now time.Time) (string, error) {
	year, week := now.Year(), weekday.WeekNumber(now)
	monday := weekday.DateOf(year, week, time.Monday, now.Location())
	sunday := weekday.DateOf(year, week, time.Sunday, now.Location())

	tasks, err := s.taskRepo.ListBetween(ctx, user.ID, monday, sunday)
	if err != nil {
		return "", err
	}

	var builder strings.Builder
	builder.WriteString("🗓 <b>План на неделю</b>\n")
	builder.WriteString(fmt.Sprintf("%s — %s\n", monday.Format("02.01"), sunday.Format("02.01.2006")))

	if len(tasks) == 0 {
		builder.WriteString("\n— задач на эту неделю нет\n")
		return strings.TrimSpace(builder.String()), nil
	}

	var lastDay string
	for _, task := range tasks {
		day := task.Date.Format("2006-01-02")
		if day != lastDay {
			builder.WriteString(fmt.Sprintf("\n📆 <b>%s %s</b>\n", weekday.Abbrev(task.Date.Weekday()), task.Date.Format("02.01")))
			lastDay = day
		}
		builder.WriteString(formatTask(task))
	}

	return strings.TrimSpace(builder.String()), nil
}

func formatTask(task model.Task) string {
	var sb strings.Builder

	icon := "🟢"
	if task.IsImportant {
		icon = "❗️"
	}
	if task.IsDone {
		icon = "✅"
	}

	sb.WriteString(fmt.Sprintf("%s %s — %s", icon, task.Time, html.EscapeString(strings.TrimSpace(task.Title))))
	if task.Description != "" {
		sb.WriteString(fmt.Sprintf("\n   📝 %s", html.EscapeString(strings.TrimSpace(task.Description))))
	}
	sb.WriteByte('\n')
	return sb.String()
}
