package model

import "time"

// User stores Telegram user metadata.
type User struct {
	ID         uint  `gorm:"primaryKey"`
	TelegramID int64 `gorm:"uniqueIndex"`
	FirstName  string
	LastName   string
	Username   string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// OwnerID implements Owner.
func (u *User) OwnerID() uint { return u.ID }

// Owner is any identity that can own templates and tasks: a full User
// row or a lightweight session identity carrying only the id.
type Owner interface {
	OwnerID() uint
}

// SessionUser is a request-scoped identity used where the full User row
// is not loaded.
type SessionUser struct {
	UserID uint
}

// OwnerID implements Owner.
func (s SessionUser) OwnerID() uint { return s.UserID }
