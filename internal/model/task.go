package model

import "time"

// Task is a single dated item in the planner. Tasks produced from a
// weekly template carry the template's title, content and importance
// at generation time and are never updated by the generator afterwards.
type Task struct {
	ID          uint      `gorm:"primaryKey"`
	UserID      uint      `gorm:"index"`
	Title       string
	Description string
	IsDone      bool      `gorm:"default:false"`
	IsImportant bool      `gorm:"default:false"`
	Date        time.Time `gorm:"index"`
	Time        string    // "HH:MM", 24-hour
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
