package model

import "time"

// WeeklyTask is a recurring template that expands into one Task per
// enabled weekday of the current week.
//
// Days holds the wire encoding of the enabled weekdays: a comma-space
// separated list of 3-letter abbreviations, e.g. "Mon, Wed, Fri"
// (see the weekday package). TaskTime is "HH:MM" or empty when not
// configured. A template with empty Title, Days or TaskTime is a draft
// and must not be persisted or expanded.
type WeeklyTask struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index"`
	Title       string
	Content     string
	Days        string
	TaskTime    string
	IsImportant bool `gorm:"default:false"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Actionable reports whether the template is complete enough to be
// stored and expanded.
func (w *WeeklyTask) Actionable() bool {
	return w.Title != "" && w.Days != "" && w.TaskTime != ""
}
